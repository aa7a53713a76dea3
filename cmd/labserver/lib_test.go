package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mockLab() *Lab {
	return NewLab(Config{
		Mock: true,
		Nodes: []Node{
			{Type: "ando-attenuator", Endpoint: "/att", Addr: "GPIB0::5::INSTR", Slot: 1},
			{Type: "Ando-Switch", Endpoint: "omc/switch/*", Addr: "GPIB0::5::INSTR", Slot: 3, Head: 1},
			{Type: "sim922", Endpoint: "/temps", Addr: "ASRL1::INSTR", Slot: 2},
		},
	})
}

func TestBuildMuxSharesMainframes(t *testing.T) {
	lab := mockLab()
	defer lab.Close()
	mux, err := BuildMux(lab)
	if err != nil {
		t.Fatal(err)
	}
	if len(lab.ando) != 1 || len(lab.sessions) != 2 {
		t.Errorf("expected 1 Ando mainframe and 2 sessions, got %d and %d", len(lab.ando), len(lab.sessions))
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	graph := map[string][]string{}
	if err = json.NewDecoder(w.Body).Decode(&graph); err != nil {
		t.Fatal(err)
	}
	exp := []string{
		"GET /idn", "GET /lock", "POST /lock", "POST /raw", "POST /reset",
		"GET /route", "POST /route",
	}
	if diff := cmp.Diff(exp, graph["/omc/switch"]); diff != "" {
		t.Errorf("switch routes mismatch (-want +got):\n%s", diff)
	}
	if len(graph["/att"]) == 0 || len(graph["/temps"]) == 0 {
		t.Errorf("missing nodes in %v", graph)
	}
}

func TestMockTemperature(t *testing.T) {
	lab := mockLab()
	defer lab.Close()
	mux, err := BuildMux(lab)
	if err != nil {
		t.Fatal(err)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/temps/temperature?ch=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /temps/temperature: %d %s", w.Code, w.Body.String())
	}
	exp := []string{"CEOI ON", "EOIX ON", `CONN 2,"xyz"`, "TVAL? 2", "xyz"}
	if diff := cmp.Diff(exp, lab.Mock("ASRL1::INSTR").Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/temps/temperature?ch=5", nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("channel 5: expected 422, got %d", w.Code)
	}
}

func TestLockedNode(t *testing.T) {
	lab := mockLab()
	defer lab.Close()
	mux, err := BuildMux(lab)
	if err != nil {
		t.Fatal(err)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/temps/lock", strings.NewReader(`{"bool": true}`)))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/temps/temperature", nil))
	if w.Code != http.StatusLocked {
		t.Errorf("expected 423, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/att/idn", nil))
	if w.Code != http.StatusOK {
		t.Errorf("other node: expected 200, got %d", w.Code)
	}
}

func TestMainframeModulesShareLock(t *testing.T) {
	lab := mockLab()
	defer lab.Close()
	mux, err := BuildMux(lab)
	if err != nil {
		t.Fatal(err)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/att/lock", strings.NewReader(`{"bool": true}`)))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/omc/switch/route", nil))
	if w.Code != http.StatusLocked {
		t.Errorf("switch on the locked mainframe: expected 423, got %d", w.Code)
	}
}

func TestDuplicateEndpoint(t *testing.T) {
	lab := NewLab(Config{Mock: true, Nodes: []Node{
		{Type: "ha9", Endpoint: "/a", Addr: "GPIB0::1::INSTR"},
		{Type: "lockin", Endpoint: "a/", Addr: "GPIB0::2::INSTR"},
	}})
	defer lab.Close()
	if _, err := BuildMux(lab); err == nil {
		t.Error("expected an error for two nodes at /a")
	}
}

func TestUnknownType(t *testing.T) {
	lab := NewLab(Config{Mock: true, Nodes: []Node{{Type: "flux-capacitor", Endpoint: "/a", Addr: "GPIB0::1::INSTR"}}})
	defer lab.Close()
	if _, err := BuildMux(lab); err == nil {
		t.Error("expected an error for an unknown type")
	}
}

func TestAnalyzerNodes(t *testing.T) {
	lab := NewLab(Config{Mock: true, Nodes: []Node{
		{Type: "tektronix-awg", Endpoint: "/awg", Addr: "TCPIP0::10.0.0.3::4000::SOCKET", Args: map[string]interface{}{"Dialect": "AWG7000"}},
		{Type: "89410a", Endpoint: "/vsa", Addr: "GPIB0::19::INSTR", Slot: 2},
		{Type: "fieldfox", Endpoint: "/na", Addr: "TCPIP0::10.0.0.4::INSTR"},
	}})
	defer lab.Close()
	mux, err := BuildMux(lab)
	if err != nil {
		t.Fatal(err)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/awg/amplitude?ch=2", strings.NewReader(`{"f64": 0.5}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("POST /awg/amplitude: %d %s", w.Code, w.Body.String())
	}
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/vsa/format", strings.NewReader(`{"str": "phas"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("POST /vsa/format: %d %s", w.Code, w.Body.String())
	}
	if s := lab.sessions["TCPIP0::10.0.0.4::INSTR"]; s == nil || s.Timeout.Seconds() != 30 {
		t.Errorf("fieldfox session %+v", s)
	}
	exp := []string{"SOUR2:VOLT:AMPLITUDE 5.000e-01"}
	if diff := cmp.Diff(exp, lab.Mock("TCPIP0::10.0.0.3::4000::SOCKET").Writes()); diff != "" {
		t.Errorf("awg writes mismatch (-want +got):\n%s", diff)
	}
	if w := lab.Mock("GPIB0::19::INSTR").Writes(); len(w) == 0 || w[len(w)-1] != "CALCULATE2:FORMAT PHAS" {
		t.Errorf("vsa writes %q", w)
	}

	bad := NewLab(Config{Mock: true, Nodes: []Node{{Type: "tektronix-awg", Endpoint: "/a", Addr: "GPIB0::1::INSTR", Args: map[string]interface{}{"Dialect": "awg5000"}}}})
	defer bad.Close()
	if _, err := BuildMux(bad); err == nil {
		t.Error("expected an error for an unknown AWG dialect")
	}
}

func TestLoadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labserver.yml")
	doc := `Addr: ":9000"
Prologix:
  Addr: 192.168.1.50
Nodes:
  - Type: function-generator
    Endpoint: /fg
    Addr: TCPIP::192.168.1.20::INSTR
    Slot: 2
    Args:
      Dialect: rigol
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadYaml(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Addr != ":9000" || c.Prologix.Addr != "192.168.1.50" || len(c.Nodes) != 1 {
		t.Fatalf("bad config %+v", c)
	}
	d, err := dialect(c.Nodes[0])
	if err != nil || d.String() != "Rigol DG5000" {
		t.Errorf("expected the Rigol dialect, got %v %v", d, err)
	}
}
