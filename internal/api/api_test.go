package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("health body not JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status field = %q, want ok", body["status"])
	}
}

func TestHealthEndpointRejectsPost(t *testing.T) {
	server := NewServer(nil)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("health POST status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestWebhookMounting(t *testing.T) {
	called := false
	webhook := func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}

	server := NewServer(webhook)
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if !called {
		t.Fatal("webhook handler was not invoked")
	}

	// Without a webhook the route does not exist.
	server = NewServer(nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/twilio", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unmounted webhook status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestWithAddr(t *testing.T) {
	server := NewServer(nil, WithAddr(":9090"))
	if server.srv.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", server.srv.Addr)
	}

	server = NewServer(nil)
	if server.srv.Addr != DefaultAddr {
		t.Errorf("default addr = %q, want %q", server.srv.Addr, DefaultAddr)
	}
}
