package skills

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeBridge records group-action requests against a minimal Hue API.
type fakeBridge struct {
	mu      sync.Mutex
	actions map[string]string // group id -> last action body
}

func newFakeBridge(t *testing.T) (*fakeBridge, *httptest.Server) {
	t.Helper()
	fb := &fakeBridge{actions: make(map[string]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/{user}/groups", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]hueGroup{
			"1": {Name: "Kitchen"},
			"2": {Name: "Living Room"},
		})
	})
	mux.HandleFunc("PUT /api/{user}/groups/{id}/action", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.actions[r.PathValue("id")] = string(body)
		fb.mu.Unlock()
		w.Write([]byte(`[{"success":{}}]`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fb, srv
}

func (fb *fakeBridge) action(id string) string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.actions[id]
}

func TestLightsTurnOnAndOff(t *testing.T) {
	t.Parallel()

	fb, srv := newFakeBridge(t)
	l := NewLights(srv.URL, "testuser")

	reply, err := l.TurnOn(context.Background(), "kitchen")
	if err != nil {
		t.Fatalf("TurnOn: %v", err)
	}
	if reply != "The kitchen lights are on." {
		t.Errorf("reply = %q", reply)
	}
	if got := fb.action("1"); got != `{"on":true}` {
		t.Errorf("bridge action = %q", got)
	}

	// Group names match case-insensitively.
	if _, err := l.TurnOff(context.Background(), "living room"); err != nil {
		t.Fatalf("TurnOff: %v", err)
	}
	if got := fb.action("2"); got != `{"on":false}` {
		t.Errorf("bridge action = %q", got)
	}
}

func TestLightsUnknownRoom(t *testing.T) {
	t.Parallel()

	_, srv := newFakeBridge(t)
	l := NewLights(srv.URL, "testuser")

	if _, err := l.TurnOn(context.Background(), "garage"); err == nil {
		t.Error("expected error for unknown room")
	}
}

func TestLightsBridgeUnreachable(t *testing.T) {
	t.Parallel()

	l := NewLights("http://127.0.0.1:1", "testuser")
	if _, err := l.TurnOn(context.Background(), "kitchen"); err == nil {
		t.Error("expected error when the bridge is unreachable")
	}
}
