package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHeadReturnsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	status, err := c.Head(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if status != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
}

func TestGetReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file-bytes"))
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(body) != "file-bytes" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestGetNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	if _, err := c.Get(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestGetDriveURLWithoutFileIDIsError(t *testing.T) {
	c := NewClient(time.Second)
	_, err := c.Get(context.Background(), "https://drive.google.com/open?id=broken")
	if err == nil {
		t.Fatal("expected error for drive URL without file id path")
	}
}

func TestExtractConfirmToken(t *testing.T) {
	html := `<a href="/uc?export=download&confirm=AbC123&id=XYZ">Download anyway</a>`
	if got := ExtractConfirmToken(html); got != "AbC123" {
		t.Fatalf("expected AbC123, got %q", got)
	}
	if got := ExtractConfirmToken("<html>no token here</html>"); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}
