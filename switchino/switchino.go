// Package switchino provides a driver for the Switchino, an Arduino driven
// pair of single pole, ten throw RF switches
package switchino

import (
	"fmt"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
)

const (
	// Pacing is the minimum interval between commands, the relays need it to settle
	Pacing = time.Second

	// Ports is the number of throws of each switch
	Ports = 10
)

// Switchino is a two switch Switchino
type Switchino struct {
	scpi.SCPI
}

// New wraps a session and sets its pacing to Pacing
func New(s *comm.Session) *Switchino {
	s.SetPacing(Pacing)
	return &Switchino{scpi.SCPI{Session: s}}
}

func checkSwitch(sw int) error {
	if sw != 1 && sw != 2 {
		return &scpi.InvalidArgument{Setting: "switch", Value: sw, Domain: "1 or 2"}
	}
	return nil
}

// SelectPort connects a switch to a port, 1 to 10.  The Switchino
// acknowledges every command.
func (s *Switchino) SelectPort(sw, port int) error {
	if err := checkSwitch(sw); err != nil {
		return err
	}
	if port < 1 || port > Ports {
		return &scpi.InvalidArgument{Setting: "port", Value: port, Domain: fmt.Sprintf("in [1, %d]", Ports)}
	}
	_, err := s.Query(fmt.Sprintf("SWITCH %d PORT %d", sw, port))
	return err
}

// SelectPorts connects switch 1 to a and switch 2 to b
func (s *Switchino) SelectPorts(a, b int) error {
	if err := s.SelectPort(1, a); err != nil {
		return err
	}
	return s.SelectPort(2, b)
}

// Disable disconnects a switch from every port.  Switch 0 disables both.
func (s *Switchino) Disable(sw int) error {
	if sw == 0 {
		if err := s.Disable(1); err != nil {
			return err
		}
		return s.Disable(2)
	}
	if err := checkSwitch(sw); err != nil {
		return err
	}
	_, err := s.Query(fmt.Sprintf("SWITCH %d OFF", sw))
	return err
}
