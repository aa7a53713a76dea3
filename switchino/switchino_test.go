package switchino

import (
	"errors"
	"testing"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"github.com/google/go-cmp/cmp"
)

func TestSelectPortsIsPaced(t *testing.T) {
	m := comm.NewMock().Handle(func(cmd string) (string, bool) { return "OK", true })
	s := New(comm.NewSession("ASRL5::INSTR", m, time.Second, comm.Terminators{Tx: '\n', Rx: '\n'}))
	start := time.Now()
	if err := s.SelectPorts(3, 5); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("two commands took %v, expected about %v", elapsed, Pacing)
	}
	exp := []string{"SWITCH 1 PORT 3", "SWITCH 2 PORT 5"}
	if diff := cmp.Diff(exp, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestDisableBoth(t *testing.T) {
	m := comm.NewMock().Handle(func(cmd string) (string, bool) { return "OK", true })
	sess := comm.NewSession("ASRL5::INSTR", m, time.Second, comm.Terminators{Tx: '\n', Rx: '\n'})
	s := New(sess)
	sess.SetPacing(0)
	if err := s.Disable(0); err != nil {
		t.Fatal(err)
	}
	exp := []string{"SWITCH 1 OFF", "SWITCH 2 OFF"}
	if diff := cmp.Diff(exp, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectPortLimits(t *testing.T) {
	m := comm.NewMock()
	sess := comm.NewSession("ASRL5::INSTR", m, time.Second, comm.Terminators{Tx: '\n', Rx: '\n'})
	s := New(sess)
	var ia *scpi.InvalidArgument
	if err := s.SelectPort(1, 11); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for port 11, got %v", err)
	}
	if err := s.SelectPort(3, 1); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for switch 3, got %v", err)
	}
}
