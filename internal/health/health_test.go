package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxgate/voxgate/pkg/history"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New(nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestReadyzAllPassing(t *testing.T) {
	t.Parallel()

	h := New([]Checker{
		{Name: "inference", Check: func(ctx context.Context) error { return nil }},
		HistoryChecker(history.NewMemStore(0)),
	}, WithCapabilityCount(func() int { return 7 }))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Status       string            `json:"status"`
		Capabilities int               `json:"capabilities"`
		Checks       map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Capabilities != 7 {
		t.Errorf("body = %+v", body)
	}
	if body.Checks["history"] != "ok" {
		t.Errorf("history check = %q", body.Checks["history"])
	}
}

func TestReadyzFailingCheck(t *testing.T) {
	t.Parallel()

	h := New([]Checker{
		{Name: "inference", Check: func(ctx context.Context) error { return errors.New("backend down") }},
	})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status field = %q", body.Status)
	}
}
