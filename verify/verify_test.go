package verify_test

import (
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
)

// fakeDevice holds one setting.  readback transforms what was set into what
// is read back
type fakeDevice struct {
	value    float64
	sets     int
	gets     int
	readback func(set float64, n int) (float64, error)
}

func (f *fakeDevice) set(v float64) error {
	f.sets++
	f.value = v
	return nil
}

func (f *fakeDevice) get() (float64, error) {
	f.gets++
	if f.readback == nil {
		return f.value, nil
	}
	return f.readback(f.value, f.gets)
}

func TestSetAndVerifyFirstAttempt(t *testing.T) {
	f := &fakeDevice{}
	err := verify.SetAndVerify("attenuation", f.set, f.get, 12.5, 5e-4, 5)
	if err != nil {
		t.Fatal(err)
	}
	if f.sets != 1 || f.gets != 1 {
		t.Errorf("took %d sets and %d gets, wanted 1 each", f.sets, f.gets)
	}
}

func TestSetAndVerifyExhaustsExactly(t *testing.T) {
	for _, attempts := range []int{1, 2, 5} {
		f := &fakeDevice{readback: func(v float64, _ int) (float64, error) { return v + 1, nil }}
		err := verify.SetAndVerify("wavelength", f.set, f.get, 1550, 0.05, attempts)
		var svf *verify.SetVerifyFailed
		if !errors.As(err, &svf) {
			t.Fatalf("expected SetVerifyFailed, got %v", err)
		}
		if svf.Attempts != attempts || f.sets != attempts {
			t.Errorf("wanted %d attempts, error says %d, setter called %d times", attempts, svf.Attempts, f.sets)
		}
		if svf.Requested != 1550. || svf.Observed != 1551. {
			t.Errorf("requested %v observed %v", svf.Requested, svf.Observed)
		}
	}
}

func TestSetAndVerifyRecovers(t *testing.T) {
	f := &fakeDevice{readback: func(v float64, n int) (float64, error) {
		if n < 3 {
			return 0, nil
		}
		return v, nil
	}}
	if err := verify.SetAndVerify("power", f.set, f.get, -3, 0.01, 3); err != nil {
		t.Fatal(err)
	}
	if f.sets != 3 {
		t.Errorf("setter called %d times", f.sets)
	}
}

func TestSetAndVerifyParseErrorIsAnAttempt(t *testing.T) {
	f := &fakeDevice{readback: func(float64, int) (float64, error) {
		return strconv.ParseFloat("AAV", 64)
	}}
	err := verify.SetAndVerify("attenuation", f.set, f.get, 3, 0.01, 4)
	var svf *verify.SetVerifyFailed
	if !errors.As(err, &svf) {
		t.Fatalf("expected SetVerifyFailed, got %v", err)
	}
	if svf.Attempts != 4 || svf.Err == nil {
		t.Errorf("attempts %d, err %v", svf.Attempts, svf.Err)
	}
}

func TestSetAndVerifyTransportErrorPropagates(t *testing.T) {
	boom := &comm.TimeoutError{Op: "read", Addr: "GPIB0::5::INSTR", After: time.Second}
	f := &fakeDevice{readback: func(float64, int) (float64, error) { return 0, boom }}
	err := verify.SetAndVerify("attenuation", f.set, f.get, 3, 0.01, 4)
	if err != boom {
		t.Errorf("expected the transport error unmodified, got %v", err)
	}
	if f.sets != 1 {
		t.Errorf("retried %d times after a transport error", f.sets)
	}
}

func TestSetAndVerifyInvalidArgumentPropagates(t *testing.T) {
	calls := 0
	set := func(v float64) error {
		calls++
		return scpi.CheckRange("attenuation", v, 0, 60)
	}
	get := func() (float64, error) { return 0, nil }
	err := verify.SetAndVerify("attenuation", set, get, 61, 0.01, 3)
	var ia *scpi.InvalidArgument
	if !errors.As(err, &ia) || calls != 1 {
		t.Errorf("got %v after %d calls", err, calls)
	}
}

func TestSetAndVerifyExact(t *testing.T) {
	mode := "Auto"
	set := func(s string) error { mode = s; return nil }
	get := func() (string, error) { return mode, nil }
	if err := verify.SetAndVerifyExact("trigger mode", set, get, "Single", 3); err != nil {
		t.Fatal(err)
	}
	stuck := func() (string, error) { return "Stopped", nil }
	err := verify.SetAndVerifyExact("trigger mode", set, stuck, "Normal", 2)
	var svf *verify.SetVerifyFailed
	if !errors.As(err, &svf) || svf.Attempts != 2 {
		t.Errorf("got %v", err)
	}
}

func TestSetAndVerifySettle(t *testing.T) {
	f := &fakeDevice{}
	start := time.Now()
	if err := verify.SetAndVerify("route", f.set, f.get, 2, 0, 1, verify.Settle(30*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("did not settle")
	}
}
