package storage

import (
	"testing"

	"github.com/manvelegoyan072/bord-application/internal/config"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(config.StorageConfig{
		EndpointURL: "https://storage.yandexcloud.net",
		Bucket:      "tender-docs",
		Region:      "ru-central1",
		AccessKey:   "key",
		SecretKey:   "secret",
	}, nil, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestObjectKeyScheme(t *testing.T) {
	got := ObjectKey("IS49226739", "spec.pdf")
	if got != "tenders/IS49226739/spec.pdf" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestObjectURLRoundTrip(t *testing.T) {
	c := testClient(t)

	key := ObjectKey("IS49226739", "spec.pdf")
	url := c.ObjectURL(key)
	if url != "https://storage.yandexcloud.net/tender-docs/tenders/IS49226739/spec.pdf" {
		t.Fatalf("unexpected url %q", url)
	}
	if !c.Contains(url) {
		t.Fatal("canonical url must be recognized as store-hosted")
	}
	if got := c.KeyFromURL(url); got != key {
		t.Fatalf("expected key %q, got %q", key, got)
	}
}

func TestContainsRejectsForeignURLs(t *testing.T) {
	c := testClient(t)
	for _, url := range []string{
		"https://elsewhere.example/tender-docs/tenders/IS1/x.pdf",
		"https://storage.yandexcloud.net/other-bucket/tenders/IS1/x.pdf",
		"",
	} {
		if c.Contains(url) {
			t.Errorf("foreign url recognized as store-hosted: %q", url)
		}
	}
}

func TestNewClientRejectsBadEndpoint(t *testing.T) {
	_, err := NewClient(config.StorageConfig{EndpointURL: "not a url"}, nil, nil)
	if err == nil {
		t.Fatal("expected error for endpoint without host")
	}
}
