package tmc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amcc/golab/agilent"
	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/lecroy"
	"github.com/amcc/golab/oscilloscope"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/server"
	"github.com/go-chi/chi"
	"github.com/google/go-cmp/cmp"
)

func serve(rt server.RouteTable, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	rt.Bind(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

type fakeAttenuator struct {
	db float64
	nm float64
}

func (f *fakeAttenuator) Attenuation() (float64, error) { return f.db, nil }
func (f *fakeAttenuator) SetAttenuation(db float64) error {
	if err := scpi.CheckRange("attenuation", db, 0, 60); err != nil {
		return err
	}
	f.db = db
	return nil
}
func (f *fakeAttenuator) Wavelength() (int, error)      { return int(f.nm), nil }
func (f *fakeAttenuator) SetWavelength(nm float64) error { f.nm = nm; return nil }

func TestHTTPOpticalCapabilities(t *testing.T) {
	rt := server.RouteTable{}
	HTTPOptical(&fakeAttenuator{}, rt)
	exp := []string{
		"GET /attenuation", "POST /attenuation",
		"GET /wavelength", "POST /wavelength",
	}
	if diff := cmp.Diff(exp, rt.Endpoints()); diff != "" {
		t.Errorf("routes mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPOpticalSetAndGet(t *testing.T) {
	att := &fakeAttenuator{}
	rt := server.RouteTable{}
	HTTPOptical(att, rt)
	if w := serve(rt, http.MethodPost, "/attenuation", `{"f64": 12.5}`); w.Code != http.StatusOK {
		t.Fatalf("POST /attenuation: %d %s", w.Code, w.Body.String())
	}
	if w := serve(rt, http.MethodPost, "/attenuation", `{"f64": 70}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("POST /attenuation out of range: expected 422, got %d", w.Code)
	}
	w := serve(rt, http.MethodGet, "/attenuation", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"f64":12.5}` {
		t.Errorf("GET /attenuation: %s", body)
	}
	serve(rt, http.MethodPost, "/wavelength", `{"f64": 1550}`)
	w = serve(rt, http.MethodGet, "/wavelength", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"int":1550}` {
		t.Errorf("GET /wavelength: %s", body)
	}
}

type fakeScope struct {
	wf      lecroy.Waveform
	timeout time.Duration
}

func (f *fakeScope) SingleTrace(ctx context.Context, ch string, timeout time.Duration) (lecroy.Waveform, error) {
	f.timeout = timeout
	if ch != "C2" {
		return lecroy.Waveform{}, fmt.Errorf("unexpected channel %s", ch)
	}
	return f.wf, nil
}
func (f *fakeScope) Waveform(ch string) (lecroy.Waveform, error) { return f.wf, nil }
func (f *fakeScope) GetTriggerMode() (string, error)            { return "Stopped", nil }
func (f *fakeScope) SetTriggerMode(string) error                 { return nil }
func (f *fakeScope) ClearSweeps() error                          { return nil }
func (f *fakeScope) Screenshot(w io.Writer, white bool) error {
	_, err := w.Write([]byte("PNG"))
	return err
}

func TestTraceCSV(t *testing.T) {
	s := &fakeScope{}
	s.wf.Trace = oscilloscope.Trace{Channel: "C2", Time: []float64{0, 1e-9}, Voltage: []float64{-1, 199}}
	rt := server.RouteTable{}
	HTTPOscilloscope(s, rt)
	w := serve(rt, http.MethodGet, "/trace?ch=c2&timeout=2s", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /trace: %d %s", w.Code, w.Body.String())
	}
	if s.timeout != 2*time.Second {
		t.Errorf("expected a 2s timeout, got %v", s.timeout)
	}
	exp := "time,C2\n0,-1\n1E-09,199\n"
	if w.Body.String() != exp {
		t.Errorf("expected\n%q\ngot\n%q", exp, w.Body.String())
	}
	if crc := w.Header().Get("X-Data-CRC"); crc != fmt.Sprintf("%08x", s.wf.Checksum()) {
		t.Errorf("bad CRC header %q", crc)
	}
}

func TestTraceBadFormat(t *testing.T) {
	s := &fakeScope{}
	rt := server.RouteTable{}
	HTTPOscilloscope(s, rt)
	w := serve(rt, http.MethodGet, "/waveform?fmt=xml", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

type fakeSwitch struct{ sw, port int }

func (f *fakeSwitch) SelectPort(sw, port int) error { f.sw, f.port = sw, port; return nil }
func (f *fakeSwitch) Disable(sw int) error           { return nil }

func TestRFSwitch(t *testing.T) {
	s := &fakeSwitch{}
	rt := server.RouteTable{}
	HTTPRFSwitch(s, rt)
	if w := serve(rt, http.MethodPost, "/switch/2", `{"int": 7}`); w.Code != http.StatusOK {
		t.Fatalf("POST /switch/2: %d", w.Code)
	}
	if s.sw != 2 || s.port != 7 {
		t.Errorf("expected switch 2 port 7, got %d %d", s.sw, s.port)
	}
}

func TestHTTPLightwaveSlots(t *testing.T) {
	m := comm.NewMock()
	s := comm.NewSession("GPIB0::20::INSTR", m, 100*time.Millisecond, comm.Terminators{Tx: '\n', Rx: '\n'})
	m.On("INP2:ATT?", "+1.25000000E+001")
	rt := server.RouteTable{}
	HTTPLightwave(agilent.NewLightwave(s), rt)

	if w := serve(rt, http.MethodPost, "/laser/1/wavelength", `{"f64": 1550}`); w.Code != http.StatusOK {
		t.Fatalf("POST wavelength: %d %s", w.Code, w.Body.String())
	}
	w := serve(rt, http.MethodGet, "/attenuator/2/attenuation", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"f64":12.5}` {
		t.Errorf("GET attenuation: %s", body)
	}
	if w = serve(rt, http.MethodGet, "/meter/x/power", ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad slot: expected 422, got %d", w.Code)
	}
	exp := []string{"SOUR1:WAV 1550NM", "INP2:ATT?"}
	if diff := cmp.Diff(exp, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}
