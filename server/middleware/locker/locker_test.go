package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amcc/golab/server"
	"github.com/go-chi/chi"
)

type table server.RouteTable

func (t table) RT() server.RouteTable { return server.RouteTable(t) }

func TestLockedNodeReturns423(t *testing.T) {
	rt := table{server.Get("/power"): func(w http.ResponseWriter, r *http.Request) {}}
	l := New()
	Inject(rt, l)
	r := chi.NewRouter()
	r.Use(l.Check)
	server.RouteTable(rt).Bind(r)

	do := func(method, path, body string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w.Code
	}
	if code := do(http.MethodGet, "/power", ""); code != http.StatusOK {
		t.Fatalf("unlocked GET /power: %d", code)
	}
	if code := do(http.MethodPost, "/lock", `{"bool": true}`); code != http.StatusOK {
		t.Fatalf("POST /lock: %d", code)
	}
	if code := do(http.MethodGet, "/power", ""); code != http.StatusLocked {
		t.Errorf("locked GET /power: expected 423, got %d", code)
	}
	if code := do(http.MethodGet, "/lock", ""); code != http.StatusOK {
		t.Errorf("GET /lock while locked: expected 200, got %d", code)
	}
	do(http.MethodPost, "/lock", `{"bool": false}`)
	if l.Locked() {
		t.Error("expected unlocked")
	}
}

func TestHolderInMessage(t *testing.T) {
	l := New()
	l.Lock("10.0.0.7:5150")
	h := l.Check(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/omc/att/attenuation", nil))
	if w.Code != http.StatusLocked {
		t.Fatalf("expected 423, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "10.0.0.7:5150") {
		t.Errorf("message does not name the holder: %q", w.Body.String())
	}
	if who, _ := l.Holder(); who != "10.0.0.7:5150" {
		t.Errorf("Holder() = %q", who)
	}
	l.Unlock()
	if who, _ := l.Holder(); who != "" {
		t.Errorf("Holder() after unlock = %q", who)
	}
}
