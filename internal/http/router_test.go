package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/manvelegoyan072/bord-application/internal/config"
	"github.com/manvelegoyan072/bord-application/internal/store"
)

func testServer() *Server {
	cfg := &config.Config{
		Server:      config.ServerConfig{Port: 8000, AllowedOrigins: []string{"http://localhost:5173"}},
		IntakeToken: "secret-token",
	}
	return NewServer(cfg, store.New(nil), nil)
}

func TestHealthzShallow(t *testing.T) {
	s := testServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "bord_http_requests_total") {
		t.Fatalf("metrics output missing counters: %s", body)
	}
}

func TestV1RequiresBearerToken(t *testing.T) {
	s := testServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/tenders/IS1/status", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/tenders/IS1/status", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err = s.App().Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.StatusCode)
	}
}

func TestListTendersRejectsOutOfRangePerPage(t *testing.T) {
	s := testServer()

	for _, perPage := range []string{"0", "101", "-5"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/tenders?per_page="+perPage, nil)
		req.Header.Set("Authorization", "Bearer secret-token")

		resp, err := s.App().Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("per_page=%s: expected 422, got %d", perPage, resp.StatusCode)
		}
	}
}

func TestIncomingDataRejectsMalformedBody(t *testing.T) {
	s := testServer()

	cases := []string{
		`not json at all`,
		`{"data":[]}`,
		`{"data":[{"type":"kontur","requests":[]}]}`,
		`{"data":[{"type":"kontur","requests":[{"title":"no id"}]}]}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/tenders/incoming_data", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer secret-token")
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.App().Test(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("body %q: expected 422, got %d", body, resp.StatusCode)
		}
	}
}
