package fibercontrol

import (
	"errors"
	"testing"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"github.com/google/go-cmp/cmp"
)

func TestWaveplates(t *testing.T) {
	m := comm.NewMock().On("Y?", "12.50")
	c := NewMPC101(comm.NewSession("ASRL3::INSTR", m, time.Second, comm.Terminators{Tx: '\n', Rx: '\n'}))
	if err := c.SetWaveplates([3]float64{1, -2.5, 99}); err != nil {
		t.Fatal(err)
	}
	y, err := c.Waveplate("y")
	if err != nil || y != 12.5 {
		t.Errorf("expected 12.5, got %v %v", y, err)
	}
	exp := []string{"X=1.00", "Y=-2.50", "Z=99.00", "Y?"}
	if diff := cmp.Diff(exp, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestWaveplateLimits(t *testing.T) {
	m := comm.NewMock()
	c := NewMPC101(comm.NewSession("ASRL3::INSTR", m, time.Second, comm.Terminators{Tx: '\n', Rx: '\n'}))
	var ia *scpi.InvalidArgument
	if err := c.SetWaveplates([3]float64{0, 0, 100}); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for 100 degrees, got %v", err)
	}
	if err := c.SetWaveplate("W", 0); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for axis W, got %v", err)
	}
	if err := c.SetRate(21); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for rate 21, got %v", err)
	}
	if len(m.Writes()) != 0 {
		t.Errorf("expected no writes, got %v", m.Writes())
	}
}
