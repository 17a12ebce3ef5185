package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/mux"
)

func newTestRouter() (*mux.Router, *Manager) {
	m, _, _ := newTestManager()
	router := mux.NewRouter()
	NewHTTPHandler(m).RegisterRoutes(router)
	return router, m
}

func doRequest(router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHTTPHandler_SessionLifecycle(t *testing.T) {
	router, _ := newTestRouter()

	rec := doRequest(router, http.MethodPost, "/api/sessions", []byte(`{"user_id":"u1"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	id := created.Session.ID

	rec = doRequest(router, http.MethodGet, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodPost, "/api/sessions/"+id+"/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on stop, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodPost, "/api/sessions/"+id+"/stop", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 on second stop, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodPost, "/api/sessions/"+id+"/save", []byte(`{"notes":"ok"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on save, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(router, http.MethodGet, "/api/sessions?limit=10", nil)
	var list struct {
		Count int `json:"count"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Count != 1 {
		t.Errorf("Expected 1 saved session, got %d", list.Count)
	}

	rec = doRequest(router, http.MethodDelete, "/api/sessions/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 on delete, got %d", rec.Code)
	}
}

func TestHTTPHandler_NotFound(t *testing.T) {
	router, _ := newTestRouter()

	for _, target := range []string{
		"/api/sessions/missing",
		"/api/sessions/missing/metrics",
		"/api/sessions/missing/data",
	} {
		rec := doRequest(router, http.MethodGet, target, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", target, rec.Code)
		}

		var body map[string]interface{}
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body["error"] == nil {
			t.Errorf("%s: expected error body, got %s", target, rec.Body.String())
		}
	}

	rec := doRequest(router, http.MethodPost, "/api/sessions/missing/stop", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on stop of missing session, got %d", rec.Code)
	}
}

func TestHTTPHandler_Events(t *testing.T) {
	router, m := newTestRouter()

	analysis := tachycardiaAnalysis()
	if err := m.RecordAnalysis(context.Background(), "s1", &analysis); err != nil {
		t.Fatalf("RecordAnalysis failed: %v", err)
	}

	rec := doRequest(router, http.MethodGet, "/api/sessions/s1/events?type="+url.QueryEscape("Sudden change"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Count  int            `json:"count"`
		Events []SessionEvent `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if resp.Count != 1 || resp.Events[0].Value != "Change of 50 BPM" {
		t.Errorf("Unexpected events: %+v", resp)
	}

	rec = doRequest(router, http.MethodGet, "/api/sessions/s1/events?type=Unknown", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown type, got %d", rec.Code)
	}
}

func TestHTTPHandler_InvalidBody(t *testing.T) {
	router, _ := newTestRouter()

	rec := doRequest(router, http.MethodPost, "/api/sessions", []byte(`{`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestHTTPHandler_SaveBody(t *testing.T) {
	router, _ := newTestRouter()

	rec := doRequest(router, http.MethodPost, "/api/sessions", []byte(`{}`))
	var created SessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	id := created.Session.ID

	rec = doRequest(router, http.MethodPost, "/api/sessions/"+id+"/save", []byte(`{"notes":`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 on malformed body, got %d", rec.Code)
	}

	rec = doRequest(router, http.MethodPost, "/api/sessions/"+id+"/save", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 on save without body, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["session_id"] != id || resp["message"] != "Session saved" {
		t.Errorf("Unexpected response: %v", resp)
	}
}

func TestHTTPHandler_ListLimit(t *testing.T) {
	router, _ := newTestRouter()

	for target, want := range map[string]float64{
		"/api/sessions":              50,
		"/api/sessions?limit=0":      50,
		"/api/sessions?limit=-3":     50,
		"/api/sessions?limit=7":      7,
		"/api/sessions?limit=100000": 500,
	} {
		rec := doRequest(router, http.MethodGet, target, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, rec.Code)
		}
		var resp map[string]interface{}
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp["limit"] != want {
			t.Errorf("%s: expected limit %v, got %v", target, want, resp["limit"])
		}
	}
}
