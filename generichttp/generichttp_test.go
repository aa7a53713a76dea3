package generichttp

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amcc/golab/comm"
	"github.com/amcc/golab/lecroy"
	"github.com/amcc/golab/scpi"
	"github.com/amcc/golab/verify"
	"github.com/pkg/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{&scpi.InvalidArgument{Setting: "x", Value: 1, Domain: "in [0, 0]"}, http.StatusUnprocessableEntity},
		{&scpi.CommandError{Cmd: "FREQ 1e99", Msg: `-222,"Data out of range"`}, http.StatusUnprocessableEntity},
		{&verify.SetVerifyFailed{Setting: "x", Requested: 1, Observed: 2, Attempts: 3}, http.StatusConflict},
		{&verify.PollTimeout{Op: "zero", Elapsed: time.Second}, http.StatusGatewayTimeout},
		{&comm.TimeoutError{Op: "read", Addr: "GPIB0::1::INSTR", After: time.Second}, http.StatusBadGateway},
		{&comm.TransportError{Op: "write", Addr: "GPIB0::1::INSTR", Err: comm.ErrClosed}, http.StatusBadGateway},
		{&lecroy.DecodeError{Reason: "no #"}, http.StatusBadGateway},
		{errors.Wrap(&scpi.InvalidArgument{Setting: "x"}, "slot 3"), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.code {
			t.Errorf("StatusFor(%v) = %d, expected %d", tt.err, got, tt.code)
		}
	}
}

func TestSetFloatBadPayload(t *testing.T) {
	called := false
	h := SetFloat(func(float64) error { called = true; return nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("{not json")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if called {
		t.Error("setter called with a bad payload")
	}
}

func TestSetFloatInvalidArgument(t *testing.T) {
	h := SetFloat(func(f float64) error { return scpi.CheckRange("attenuation", f, 0, 60) })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"f64": 61}`)))
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestGetFloat(t *testing.T) {
	h := GetFloat(func() (float64, error) { return 1.5, nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if body := strings.TrimSpace(w.Body.String()); body != `{"f64":1.5}` {
		t.Errorf("expected {\"f64\":1.5}, got %s", body)
	}
}

func TestSubMuxSanitize(t *testing.T) {
	for _, in := range []string{"omc/nkt", "/omc/nkt/*", "omc/nkt/"} {
		if out := SubMuxSanitize(in); out != "/omc/nkt" {
			t.Errorf("SubMuxSanitize(%q) = %q", in, out)
		}
	}
}

func TestSetAndGetJSON(t *testing.T) {
	type span struct {
		Start float64 `json:"start"`
		Stop  float64 `json:"stop"`
	}
	var got span
	h := SetJSON(func(s span) error { got = s; return nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"start": 1e6, "stop": 2e6}`)))
	if w.Code != http.StatusOK || got != (span{1e6, 2e6}) {
		t.Errorf("got %d %+v", w.Code, got)
	}

	w = httptest.NewRecorder()
	GetJSON(func() (span, error) { return got, nil })(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if body := strings.TrimSpace(w.Body.String()); body != `{"start":1000000,"stop":2000000}` {
		t.Errorf("GET body %s", body)
	}
}
