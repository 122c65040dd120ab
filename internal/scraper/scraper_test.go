package scraper

import (
	"net/url"
	"testing"
)

func TestExtractPDFLinks(t *testing.T) {
	base, _ := url.Parse("https://kontur.example/tender/1")
	html := `
		<html><body>
		<a href="/files/spec.pdf">Spec</a>
		<a href="https://cdn.example/terms.PDF">Terms</a>
		<a href="/files/spec.pdf">Spec again</a>
		<a href="/about">About</a>
		<a href="mailto:help@example.com">Mail</a>
		</body></html>`

	links := extractPDFLinks(html, base)
	if len(links) != 2 {
		t.Fatalf("expected 2 links, got %d: %v", len(links), links)
	}
	if links[0].absolute != "https://kontur.example/files/spec.pdf" {
		t.Errorf("relative href not resolved: %s", links[0].absolute)
	}
	if links[1].absolute != "https://cdn.example/terms.PDF" {
		t.Errorf("absolute href mangled: %s", links[1].absolute)
	}
}

func TestExtractPDFLinksEmptyPage(t *testing.T) {
	base, _ := url.Parse("https://kontur.example/tender/1")
	if links := extractPDFLinks("<html><body>nothing</body></html>", base); len(links) != 0 {
		t.Fatalf("expected no links, got %v", links)
	}
}

func TestFileNameFromURL(t *testing.T) {
	cases := []struct {
		url  string
		n    int
		want string
	}{
		{"https://cdn.example/files/spec.pdf", 1, "spec.pdf"},
		{"https://cdn.example/files/spec.pdf?token=abc", 1, "spec.pdf"},
		{"https://cdn.example/", 3, "document_3.pdf"},
		{"://broken", 2, "document_2.pdf"},
	}
	for _, tc := range cases {
		if got := fileNameFromURL(tc.url, tc.n); got != tc.want {
			t.Errorf("fileNameFromURL(%q): expected %q, got %q", tc.url, tc.want, got)
		}
	}
}
