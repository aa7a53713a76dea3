package srs

import (
	"errors"
	"testing"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"github.com/google/go-cmp/cmp"
)

func newFrame(t *testing.T) (*Mainframe, *comm.Mock) {
	m := comm.NewMock()
	s := comm.NewSession("GPIB0::2::INSTR", m, 100*time.Millisecond, comm.Terminators{Tx: '\n', Rx: '\n'})
	mf, err := NewMainframe(s)
	if err != nil {
		t.Fatal(err)
	}
	m.Reset()
	return mf, m
}

func TestNewMainframeInit(t *testing.T) {
	m := comm.NewMock()
	s := comm.NewSession("GPIB0::2::INSTR", m, 0, comm.Terminators{Tx: '\n', Rx: '\n'})
	if _, err := NewMainframe(s); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"CEOI ON", "EOIX ON"}, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestResistance(t *testing.T) {
	mf, m := newFrame(t)
	m.On("RVAL?", "+1.234500E+02")
	r, err := NewSIM921(mf, 4).Resistance()
	if err != nil {
		t.Fatal(err)
	}
	if r != 123.45 {
		t.Errorf("expected 123.45, got %v", r)
	}
	exp := []string{`CONN 4,"xyz"`, "RVAL?", "xyz"}
	if diff := cmp.Diff(exp, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestEscapeSentOnFailure(t *testing.T) {
	mf, m := newFrame(t)
	// no response scripted, the query times out
	_, err := NewSIM922(mf, 1).Temperature(2)
	if !comm.IsTransport(err) {
		t.Fatalf("expected a transport error, got %v", err)
	}
	w := m.Writes()
	if w[len(w)-1] != "xyz" {
		t.Errorf("expected the escape last, got %v", w)
	}
}

func TestRangeFor(t *testing.T) {
	tests := []struct {
		ohms float64
		code int
	}{
		{0.001, 0},
		{20e-3, 0},
		{21e-3, 1},
		{200, 4},
		{201, 5},
		{20e6, 9},
	}
	for _, tt := range tests {
		code, err := RangeFor(tt.ohms)
		if err != nil {
			t.Errorf("%v: %v", tt.ohms, err)
			continue
		}
		if code != tt.code {
			t.Errorf("%v: expected code %d, got %d", tt.ohms, tt.code, code)
		}
	}
	var ia *scpi.InvalidArgument
	if _, err := RangeFor(21e6); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument above 20 MOhm, got %v", err)
	}
}

func TestSetRange(t *testing.T) {
	mf, m := newFrame(t)
	m.On("RANG?", "4")
	full, err := NewSIM921(mf, 3).SetRange(150)
	if err != nil {
		t.Fatal(err)
	}
	if full != 200 {
		t.Errorf("expected the 200 Ohm range, got %v", full)
	}
	exp := []string{`CONN 3,"xyz"`, "RANG 4", "xyz", `CONN 3,"xyz"`, "RANG?", "xyz"}
	if diff := cmp.Diff(exp, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestExcitationAndTimeConstant(t *testing.T) {
	mf, m := newFrame(t)
	m.On("EXCI?", "1").On("TCON?", "2")
	s := NewSIM921(mf, 3)
	if err := s.SetExcitation(10e-6); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTimeConstant(3); err != nil {
		t.Fatal(err)
	}
	var ia *scpi.InvalidArgument
	if err := s.SetExcitation(5e-6); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for 5 uV, got %v", err)
	}
	if err := s.SetTimeConstant(2); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for 2 s, got %v", err)
	}
	tc, err := s.TimeConstant()
	if err != nil || tc != 3 {
		t.Errorf("expected 3 s, got %v %v", tc, err)
	}
}

func TestSetImpedance(t *testing.T) {
	mf, m := newFrame(t)
	if err := NewSIM970(mf, 2).SetImpedance(3, true); err != nil {
		t.Fatal(err)
	}
	exp := []string{`CONN 2,"xyz"`, "AUTO 3,13", "DVDR 3,2", "xyz"}
	if diff := cmp.Diff(exp, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestVoltageChannelChecked(t *testing.T) {
	mf, m := newFrame(t)
	var ia *scpi.InvalidArgument
	if _, err := NewSIM970(mf, 2).Voltage(5); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for channel 5, got %v", err)
	}
	if _, err := NewSIM970(mf, 9).Voltage(1); !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument for port 9, got %v", err)
	}
	if len(m.Writes()) != 0 {
		t.Errorf("expected no writes, got %v", m.Writes())
	}
}

func TestPortReset(t *testing.T) {
	mf, m := newFrame(t)
	var inst scpi.Instrument = NewSIM922(mf, 5)
	if err := inst.Reset(); err != nil {
		t.Fatal(err)
	}
	exp := []string{`CONN 5,"xyz"`, "*RST", "xyz"}
	if diff := cmp.Diff(exp, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}
