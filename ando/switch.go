package ando

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

// switchSettle is the time the switch takes to move
const switchSettle = time.Second

const (
	// Straight routes A1 to B1
	Straight = 1

	// Cross routes A1 to B2
	Cross = 2
)

// Switch is an AQ8201-418, 422 or 43 optical switch
type Switch struct {
	module
}

var _ scpi.Instrument = Switch{}

// NewSwitch returns the switch in slot of mf.  bank selects one switch of a
// multi switch module with D<bank>; use 0 for single switch modules.
func NewSwitch(mf *Mainframe, slot, bank int) Switch {
	return Switch{module{mf: mf, slot: slot, head: bank}}
}

// Route returns the route, Straight or Cross
func (s Switch) Route() (int, error) {
	resp, err := s.query("SASB?")
	if err != nil {
		return 0, err
	}
	switch {
	case strings.Contains(resp, "SSTRAIGHT"), strings.Contains(resp, "SA1SB1"):
		return Straight, nil
	case strings.Contains(resp, "SCROSS"), strings.Contains(resp, "SA1SB2"):
		return Cross, nil
	}
	return 0, fmt.Errorf("unknown switch state %q", strings.TrimSpace(resp))
}

// SetRoute moves the switch to Straight or Cross
func (s Switch) SetRoute(route int) error {
	if route != Straight && route != Cross {
		return &scpi.InvalidArgument{Setting: "route", Value: route, Domain: "1 (straight) or 2 (cross)"}
	}
	set := func(r int) error { return s.write("SA1SB" + strconv.Itoa(r)) }
	return verify.SetAndVerifyExact("route", set, s.Route, route, verify.DefaultAttempts+1, verify.Settle(switchSettle))
}

// ConfigLine renders the switch's route as a comment line for a data file header
func (s Switch) ConfigLine() (string, error) {
	r, err := s.Route()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("# Switch, slot %d: \troute %d", s.slot, r), nil
}
