package scpi_test

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/scpi"
)

func mockSCPI(m *comm.Mock) *scpi.SCPI {
	return &scpi.SCPI{Session: comm.NewSession("mock", m, time.Second, comm.Terminators{Tx: '\n', Rx: '\n'})}
}

func TestIdentify(t *testing.T) {
	s := mockSCPI(comm.NewMock().On("*IDN?", "Agilent Technologies,33522A,MY50001234,2.03"))
	idn, err := s.Identify()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(idn, "Agilent") {
		t.Errorf("got %q", idn)
	}
}

func TestReadFloat(t *testing.T) {
	s := mockSCPI(comm.NewMock().On("SOUR1:FREQ?", "+1.00000000000000E+06"))
	f, err := s.ReadFloat("SOUR1:FREQ?")
	if err != nil {
		t.Fatal(err)
	}
	if f != 1e6 {
		t.Errorf("got %v", f)
	}
}

func TestReadFloatGarbageIsNotTransport(t *testing.T) {
	s := mockSCPI(comm.NewMock().On("VOLT?", "hello"))
	_, err := s.ReadFloat("VOLT?")
	if err == nil {
		t.Fatal("parsed garbage")
	}
	if comm.IsTransport(err) {
		t.Error("parse failure reported as transport error")
	}
}

func TestHandshakeError(t *testing.T) {
	m := comm.NewMock()
	m.Fallback = `-222,"Data out of range"`
	s := mockSCPI(m)
	s.Handshaking = true
	err := s.Write("FREQ 1e99")
	var ce *scpi.CommandError
	if !errors.As(err, &ce) || ce.Cmd != "FREQ 1e99" || !strings.HasPrefix(ce.Msg, "-222") {
		t.Errorf("expected CommandError -222, got %v", err)
	}
	if w := m.Writes(); len(w) != 1 || w[0] != "*CLS;FREQ 1e99;:SYSTem:ERRor?" {
		t.Errorf("wrote %q", w)
	}
}

func TestHandshakeOK(t *testing.T) {
	m := comm.NewMock().On("*CLS;OUTP1 ON;:SYSTem:ERRor?", `+0,"No error"`)
	s := mockSCPI(m)
	s.Handshaking = true
	if err := s.Write("OUTP1 ON"); err != nil {
		t.Fatal(err)
	}
	// queries are sent as they are
	m.On("OUTP1?", "1")
	if on, err := s.ReadBool("OUTP1?"); err != nil || !on {
		t.Errorf("got %v %v", on, err)
	}
}

func TestAllErrors(t *testing.T) {
	m := comm.NewMock().
		On("SYSTem:ERRor?", `-113,"Undefined header"`).
		On("SYSTem:ERRor?", `-222,"Data out of range"`).
		On("SYSTem:ERRor?", `+0,"No error"`)
	s := mockSCPI(m)
	str := s.AllErrorsString()
	if strings.Count(str, "\n") != 1 || !strings.Contains(str, "-113") || !strings.Contains(str, "-222") {
		t.Errorf("got %q", str)
	}
}

func TestEncodeFormats(t *testing.T) {
	cases := []struct {
		s    scpi.Setting
		v    float64
		want string
	}{
		{scpi.Setting{Name: "attenuation", Prefix: "AAV", Format: scpi.Fixed, Precision: 3}, 12.5, "AAV12.500"},
		{scpi.Setting{Name: "frequency", Prefix: "SOUR1:FREQ ", Format: scpi.Scientific, Precision: 6}, 1234567.8, "SOUR1:FREQ 1.234568e+06"},
		{scpi.Setting{Name: "wavelength", Prefix: "AW", Format: scpi.Integer}, 1550.4, "AW1550"},
		{scpi.Setting{Name: "attenuation", Prefix: ":INP:ATT ", Suffix: " dB", Format: scpi.Fixed, Precision: 1}, 3, ":INP:ATT 3.0 dB"},
	}
	for _, c := range cases {
		got, err := c.s.Encode(c.v)
		if err != nil {
			t.Errorf("%s: %v", c.s.Name, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s: got %q wanted %q", c.s.Name, got, c.want)
		}
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	s := scpi.Setting{Name: "attenuation", Prefix: ":INP:ATT ", Format: scpi.Fixed, Precision: 1, Range: &scpi.Range{Min: 0, Max: 100}}
	for _, v := range []float64{-0.1, 100.01, math.NaN(), math.Inf(1)} {
		_, err := s.Encode(v)
		var ia *scpi.InvalidArgument
		if !errors.As(err, &ia) {
			t.Errorf("%v: expected InvalidArgument, got %v", v, err)
			continue
		}
		if ia.Setting != "attenuation" {
			t.Errorf("error names setting %q", ia.Setting)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	settings := []scpi.Setting{
		{Name: "fixed", Format: scpi.Fixed, Precision: 2, Range: &scpi.Range{Min: -99, Max: 99}},
		{Name: "sci", Format: scpi.Scientific, Precision: 6, Range: &scpi.Range{Min: 1e-6, Max: 30e6}},
		{Name: "int", Format: scpi.Integer, Range: &scpi.Range{Min: 1200, Max: 1700}},
	}
	for _, s := range settings {
		for i := 0; i <= 100; i++ {
			v := s.Range.Min + (s.Range.Max-s.Range.Min)*float64(i)/100
			str, err := s.Encode(v)
			if err != nil {
				t.Fatalf("%s %v: %v", s.Name, v, err)
			}
			back, err := strconv.ParseFloat(str, 64)
			if err != nil {
				t.Fatalf("%s: could not parse %q", s.Name, str)
			}
			if math.Abs(back-v) > s.Tolerance(v)*(1+1e-9) {
				t.Errorf("%s: %v rendered %q, off by %v", s.Name, v, str, back-v)
			}
		}
	}
}

func TestEncodeToken(t *testing.T) {
	s := scpi.Setting{Name: "coupling", Prefix: "C1:CPL ", Format: scpi.Token, Enum: []string{"AC1M", "DC1M", "DC50", "Gnd"}}
	got, err := s.EncodeToken("dc50")
	if err != nil || got != "C1:CPL DC50" {
		t.Errorf("got %q %v", got, err)
	}
	_, err = s.EncodeToken("DC75")
	var ia *scpi.InvalidArgument
	if !errors.As(err, &ia) {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestWithPrefix(t *testing.T) {
	freq := scpi.Setting{Name: "frequency", Format: scpi.Scientific, Precision: 6}
	got, _ := freq.WithPrefix("SOUR%d:FREQ ", 2).Encode(10)
	if got != "SOUR2:FREQ 1.000000e+01" {
		t.Errorf("got %q", got)
	}
	if freq.Prefix != "" {
		t.Error("WithPrefix modified the original")
	}
}
