package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bdobrica/Saikoro/internal/saikoro/app"
)

type fakeStats struct {
	stats app.Stats
	err   error
}

func (f *fakeStats) Stats(context.Context) (app.Stats, error) { return f.stats, f.err }

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if w.Code == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return w.Code, body
}

func TestHealthServer_Health(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", nil)
	code, body := get(t, hs, "/health")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

func TestHealthServer_Status(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &fakeStats{stats: app.Stats{
		ActiveSessions: map[string]int{"matrix": 2},
		Rolls:          map[string]int{"confirmed": 7},
	}})
	code, body := get(t, hs, "/status")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("status: %v", body["status"])
	}
	active := body["active_sessions"].(map[string]any)
	if active["matrix"].(float64) != 2 {
		t.Errorf("active_sessions: %v", active)
	}
	rolls := body["rolls"].(map[string]any)
	if rolls["confirmed"].(float64) != 7 {
		t.Errorf("rolls: %v", rolls)
	}
}

func TestHealthServer_StatusDegraded(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", &fakeStats{err: errors.New("db locked")})
	code, body := get(t, hs, "/status")
	if code != http.StatusOK || body["status"] != "degraded" {
		t.Errorf("got %d %v", code, body["status"])
	}
}

func TestHealthServer_UnknownRoute(t *testing.T) {
	hs := app.NewHealthServer("127.0.0.1:0", nil)
	if code, _ := get(t, hs, "/metrics"); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}
