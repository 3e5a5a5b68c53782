package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sentrydeck/internal/serving"
	"sentrydeck/internal/storage"
)

type fakeStore struct {
	alerts    map[string]storage.Alert
	overrides map[string]storage.AlertOverride
	logs      []storage.LogEntry
}

func (f *fakeStore) ListAlerts(_ context.Context, _ int) ([]storage.Alert, error) {
	out := make([]storage.Alert, 0, len(f.alerts))
	for _, a := range f.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeStore) GetAlert(_ context.Context, id string) (storage.Alert, error) {
	alert, ok := f.alerts[id]
	if !ok {
		return storage.Alert{}, &storage.Error{Op: "GetAlert", Table: "alerts", Err: storage.ErrNotFound}
	}
	return alert, nil
}

func (f *fakeStore) ListLogs(_ context.Context, _ int) ([]storage.LogEntry, error) {
	return f.logs, nil
}

func (f *fakeStore) ListOverrides(_ context.Context) (map[string]storage.AlertOverride, error) {
	return f.overrides, nil
}

func (f *fakeStore) GetOverride(_ context.Context, id string) (storage.AlertOverride, error) {
	ov, ok := f.overrides[id]
	if !ok {
		return storage.AlertOverride{}, &storage.Error{Op: "GetOverride", Table: "alert_overrides", Err: storage.ErrNotFound}
	}
	return ov, nil
}

func (f *fakeStore) UpsertOverride(_ context.Context, ov storage.AlertOverride) error {
	if f.overrides == nil {
		f.overrides = make(map[string]storage.AlertOverride)
	}
	ov.UpdatedAt = time.Now()
	f.overrides[ov.AlertID] = ov
	return nil
}

func newTestMux(store *fakeStore) *http.ServeMux {
	handler := NewHandler(serving.NewService(store, nil, nil), nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux
}

func TestHandleListAlerts(t *testing.T) {
	mux := newTestMux(&fakeStore{
		alerts: map[string]storage.Alert{
			"a": {ID: "a", Status: "new", Severity: "high"},
		},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Alerts []storage.Alert `json:"alerts"`
		Count  int             `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Alerts) != 1 {
		t.Errorf("count = %d, alerts = %d", body.Count, len(body.Alerts))
	}
}

func TestHandleListAlerts_Empty(t *testing.T) {
	mux := newTestMux(&fakeStore{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"alerts":[]`) {
		t.Errorf("empty list should encode as [], got %s", rec.Body.String())
	}
}

func TestHandleGetAlert(t *testing.T) {
	mux := newTestMux(&fakeStore{
		alerts: map[string]storage.Alert{
			"incident-42": {ID: "incident-42", Status: "new"},
		},
		overrides: map[string]storage.AlertOverride{
			"incident-42": {AlertID: "incident-42", Status: "resolved"},
		},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts/incident-42", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var alert storage.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if alert.Status != "resolved" {
		t.Errorf("Status = %q, want resolved (override applied)", alert.Status)
	}
}

func TestHandleGetAlert_NotFound(t *testing.T) {
	mux := newTestMux(&fakeStore{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandlePatchAlert(t *testing.T) {
	store := &fakeStore{
		alerts: map[string]storage.Alert{
			"incident-42": {ID: "incident-42", Status: "new"},
		},
	}
	mux := newTestMux(store)

	body := strings.NewReader(`{"status":"dismissed","updated_by":"analyst@contoso.com"}`)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/v1/alerts/incident-42", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var alert storage.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if alert.Status != "dismissed" {
		t.Errorf("Status = %q, want dismissed", alert.Status)
	}
}

func TestHandlePatchAlert_BadBody(t *testing.T) {
	mux := newTestMux(&fakeStore{
		alerts: map[string]storage.Alert{"a": {ID: "a"}},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/v1/alerts/a", strings.NewReader("{nope")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePatchAlert_InvalidStatus(t *testing.T) {
	mux := newTestMux(&fakeStore{
		alerts: map[string]storage.Alert{"a": {ID: "a", Status: "new"}},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/v1/alerts/a", strings.NewReader(`{"status":"escalated"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleListLogs(t *testing.T) {
	mux := newTestMux(&fakeStore{
		logs: []storage.LogEntry{
			{ID: "l1", Severity: "low", Message: "routine"},
		},
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/logs?limit=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	mux := newTestMux(&fakeStore{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
