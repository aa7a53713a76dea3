package oscilloscope_test

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/amcc/golab/oscilloscope"
	"github.com/astrogo/fitsio"
)

func sampleTrace() oscilloscope.Trace {
	return oscilloscope.Trace{
		Channel: "C1",
		Time:    []float64{0, 1e-9, 2e-9},
		Voltage: []float64{-1, 199, math.NaN()},
	}
}

func TestTraceEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleTrace().EncodeCSV(&buf); err != nil {
		t.Fatal(err)
	}
	want := "time,C1\n0,-1\n1E-09,199\n2E-09,NaN\n"
	if buf.String() != want {
		t.Errorf("got\n%s\nwanted\n%s", buf.String(), want)
	}
}

func TestChecksumChangesWithData(t *testing.T) {
	a := sampleTrace()
	b := sampleTrace()
	b.Voltage[1] = 198
	if a.Checksum() == b.Checksum() {
		t.Error("checksum did not change")
	}
	if a.Checksum() != sampleTrace().Checksum() {
		t.Error("checksum is not deterministic")
	}
}

func TestTraceEncodeFITS(t *testing.T) {
	var buf bytes.Buffer
	tr := sampleTrace()
	if err := tr.EncodeFITS(&buf, fitsio.Card{Name: "INSTRUME", Value: "WR620Zi"}); err != nil {
		t.Fatal(err)
	}
	f, err := fitsio.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	hdr := f.HDU(0).Header()
	card := hdr.Get("CHANNEL")
	if card == nil || card.Value != "C1" {
		t.Errorf("CHANNEL card %v", card)
	}
	if card := hdr.Get("DATACRC"); card == nil {
		t.Error("no DATACRC card")
	}
	if axes := hdr.Axes(); len(axes) != 2 || axes[0] != 3 || axes[1] != 2 {
		t.Errorf("axes %v", axes)
	}
}

func TestRecordingEncodeCSV(t *testing.T) {
	var r oscilloscope.Recording
	r.Name = "power"
	t0 := time.Date(2023, 4, 2, 12, 0, 0, 0, time.UTC)
	r.Append(t0, 1e-3)
	r.Append(t0.Add(500*time.Millisecond), 2e-3)
	var buf bytes.Buffer
	if err := r.EncodeCSV(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || lines[0] != "time,elapsed,power" {
		t.Fatalf("got %q", lines)
	}
	if lines[2] != "2023-04-02T12:00:00.5Z,0.5,0.002" {
		t.Errorf("got %q", lines[2])
	}
}

func TestSpectrumEncodeCSV(t *testing.T) {
	s := oscilloscope.Spectrum{X: []float64{1e6, 2e6}, Y: []float64{-3.5, -40}, XUnit: "Hz", YUnit: "dB"}
	var buf bytes.Buffer
	if err := s.EncodeCSV(&buf); err != nil {
		t.Fatal(err)
	}
	want := "Hz,dB\n1E+06,-3.5\n2E+06,-40\n"
	if buf.String() != want {
		t.Errorf("got\n%s\nwanted\n%s", buf.String(), want)
	}
	s.Y = s.Y[:1]
	if err := s.EncodeCSV(&buf); err == nil {
		t.Error("mismatched lengths encoded")
	}
}
