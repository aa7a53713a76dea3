package thorlabs

import (
	"errors"
	"testing"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/verify"
)

func TestPM100DPower(t *testing.T) {
	m := comm.NewMock().On("READ?", "1.234000E-06")
	pm := NewPM100D(comm.NewSession("USB0::0x1313::0x8078::INSTR", m, time.Second, comm.Terminators{Tx: '\n', Rx: '\n'}))
	p, err := pm.Power()
	if err != nil {
		t.Fatal(err)
	}
	if p != 1.234e-6 {
		t.Errorf("expected 1.234 uW, got %v", p)
	}
}

func TestPM100DAverageCountVerified(t *testing.T) {
	m := comm.NewMock().On(":SENSE:AVERAGE:COUNT?", "1")
	pm := NewPM100D(comm.NewSession("USB0::0x1313::0x8078::INSTR", m, time.Second, comm.Terminators{Tx: '\n', Rx: '\n'}))
	err := pm.SetAverageCount(100)
	var svf *verify.SetVerifyFailed
	if !errors.As(err, &svf) {
		t.Fatalf("expected SetVerifyFailed, got %v", err)
	}
	if svf.Observed != 1 {
		t.Errorf("expected observed 1, got %v", svf.Observed)
	}
}

func TestParseError(t *testing.T) {
	if err := parseError(`0,"No error"`); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	err := parseError(`-113,"Undefined header"`)
	var de DeviceError
	if !errors.As(err, &de) || de.Code != -113 {
		t.Fatalf("expected DeviceError -113, got %v", err)
	}
	if de.Error() != "-113 - UNDEFINED HEADER (UNKNOWN COMMAND)" {
		t.Errorf("unexpected message %q", de.Error())
	}
	if parseError(`7,"Vendor"`).Error() != "7 - Vendor" {
		t.Errorf("vendor codes should carry the device message")
	}
}

func TestLFLTM(t *testing.T) {
	m := comm.NewMock().On("enable?", "enable? 1")
	m.Term = '\r'
	l := NewLFLTM(comm.NewSession("/dev/ttyUSB0", m, time.Second, LFLTMTerminators))
	if err := l.Enable(); err != nil {
		t.Fatal(err)
	}
	on, err := l.Enabled()
	if err != nil || !on {
		t.Errorf("expected enabled, got %v %v", on, err)
	}
	if m.Writes()[0] != "enable=1" {
		t.Errorf("unexpected writes %v", m.Writes())
	}
}
