package tmc

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/amcc/golab/agilent"
	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/server"
	"github.com/amcc/golab/tektronix"
	"github.com/google/go-cmp/cmp"
)

func mockSession(addr string) (*comm.Session, *comm.Mock) {
	m := comm.NewMock()
	return comm.NewSession(addr, m, 100*time.Millisecond, comm.Terminators{Tx: '\n', Rx: '\n'}), m
}

func TestHTTPAWG(t *testing.T) {
	s, m := mockSession("TCPIP0::awg::4000::SOCKET")
	rt := server.RouteTable{}
	HTTPAWG(tektronix.NewAWG(s, tektronix.AWG610), rt)

	if w := serve(rt, http.MethodPost, "/run-mode", `{"str": "cont"}`); w.Code != http.StatusOK {
		t.Fatalf("POST run-mode: %d %s", w.Code, w.Body.String())
	}
	if w := serve(rt, http.MethodPost, "/output?ch=1", `{"bool": true}`); w.Code != http.StatusOK {
		t.Fatalf("POST output: %d %s", w.Code, w.Body.String())
	}
	if w := serve(rt, http.MethodPost, "/load/a.wfm", ""); w.Code != http.StatusOK {
		t.Fatalf("POST load: %d %s", w.Code, w.Body.String())
	}
	if w := serve(rt, http.MethodPost, "/amplitude?ch=2", `{"f64": 1}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("channel 2 of a 610: expected 422, got %d", w.Code)
	}
	if w := serve(rt, http.MethodPost, "/waveform/short.wfm", `{"voltages": [0, 1, 0]}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("short waveform: expected 422, got %d", w.Code)
	}
	exp := []string{"AWGControl:RMODE CONT", "OUTPUT1:STATE ON", "AWGControl:RUN", `SOUR1:FUNC:USER "a.wfm"`}
	if diff := cmp.Diff(exp, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}

	m.Reset()
	if w := serve(rt, http.MethodPost, "/pulse/p.wfm", `{"width": 1e-8, "edge": 1e-9, "volts": 0.5, "rate": 2.6e9}`); w.Code != http.StatusOK {
		t.Fatalf("POST pulse: %d %s", w.Code, w.Body.String())
	}
	if w := m.Writes(); len(w) == 0 || !strings.HasPrefix(w[0], `MMEMORY:DATA "p.wfm",#42580MAGIC 1000`) {
		t.Errorf("pulse upload began %q", w)
	}
}

func TestHTTPAWGFile(t *testing.T) {
	s, m := mockSession("TCPIP0::awg::4000::SOCKET")
	m.On(`MMEMORY:DATA? "a.seq"`, "#210MAGIC 3002")
	rt := server.RouteTable{}
	HTTPAWG(tektronix.NewAWG(s, tektronix.AWG610), rt)
	w := serve(rt, http.MethodGet, "/file/a.seq", "")
	if w.Code != http.StatusOK || w.Body.String() != "MAGIC 3002" {
		t.Errorf("GET file: %d %q", w.Code, w.Body.String())
	}
}

func TestHTTPSignalAnalyzer(t *testing.T) {
	s, m := mockSession("GPIB0::19::INSTR")
	m.On("TRACE:X:UNIT? TRACE1", `"HZ"`).
		On("CALCULATE1:FORMAT?", "MLOG").
		On("TRACE:X? TRACE1", "1E+6,2E+6").
		On("CALCULATE1:DATA?", "-10,-20")
	v, err := agilent.NewVSA(s, 1)
	if err != nil {
		t.Fatal(err)
	}
	rt := server.RouteTable{}
	HTTPSignalAnalyzer(v, rt)

	if w := serve(rt, http.MethodPost, "/average", `{"on": true, "type": "VRMS", "count": 10}`); w.Code != http.StatusOK {
		t.Fatalf("POST average: %d %s", w.Code, w.Body.String())
	}
	if w := serve(rt, http.MethodPost, "/span", `{"center": 1e6, "span": 2e5}`); w.Code != http.StatusOK {
		t.Fatalf("POST span: %d %s", w.Code, w.Body.String())
	}
	w := serve(rt, http.MethodGet, "/spectrum", "")
	if w.Code != http.StatusOK || w.Body.String() != "HZ,MLOG\n1E+06,-10\n2E+06,-20\n" {
		t.Errorf("GET spectrum: %d %q", w.Code, w.Body.String())
	}
	if w = serve(rt, http.MethodGet, "/spectrum?fmt=fits", ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("fits spectrum: expected 422, got %d", w.Code)
	}
	exp := []string{
		"AVERAGE ON", "AVERAGE:TYPE RMS;TCON NORM", "AVERAGE:COUNT 10",
		"FREQUENCY:SPAN 2.000000e+05", "FREQUENCY:CENTER 1.000000e+06",
	}
	if diff := cmp.Diff(exp, m.Writes()[:len(exp)]); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPNetworkAnalyzer(t *testing.T) {
	s, m := mockSession("TCPIP0::fieldfox::inst0::INSTR")
	m.On("SENS:SWEEP:POINTS?", "2").
		On("SENS:FREQ:STAR?", "1E+9").
		On("SENS:FREQ:STOP?", "2E+9").
		On("CALC:FORM?", "MLOG").
		On("INIT:IMM;*OPC?", "1").
		On("CALC:DATA:FDATa?", "-3,-6")
	rt := server.RouteTable{}
	HTTPNetworkAnalyzer(agilent.NewFieldFox(s), rt)

	if w := serve(rt, http.MethodPost, "/start-stop", `{"start": 2e9, "stop": 1e9}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("reversed band: expected 422, got %d", w.Code)
	}
	w := serve(rt, http.MethodGet, "/sweep?trace=1&fmt=json", "")
	if body := strings.TrimSpace(w.Body.String()); body != `{"x":[1000000000,2000000000],"y":[-3,-6],"xUnit":"Hz","yUnit":"MLOG"}` {
		t.Errorf("GET sweep: %d %s", w.Code, body)
	}
	if w = serve(rt, http.MethodGet, "/sweep?trace=x", ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad trace: expected 422, got %d", w.Code)
	}
}
