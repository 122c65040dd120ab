// Package scraper drives a headless browser against a tender landing page
// to discover and download attachment PDFs that are not directly fetchable.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/manvelegoyan072/bord-application/internal/model"
)

// ScrapedDocument is one discovered attachment already persisted to the
// object store.
type ScrapedDocument struct {
	FileName string
	URL      string
}

// Uploader is the slice of the object-store client the scraper needs.
type Uploader interface {
	UploadFromFile(ctx context.Context, filePath, fileName, tenderID string) (string, error)
	UploadFromURL(ctx context.Context, srcURL, fileName, tenderID string) (string, error)
}

// Scraper discovers and stores a tender's attachments from its landing page.
type Scraper interface {
	ScrapeDocuments(ctx context.Context, tender *model.Tender) ([]ScrapedDocument, error)
}

// RodScraper renders the landing page in a real browser (via rod), waits
// for PDF anchors to appear, and downloads each one by clicking it. One
// browser per invocation; it is released on every exit path.
type RodScraper struct {
	BrowserURL      string
	DownloadDir     string
	LinkTimeout     time.Duration
	DownloadTimeout time.Duration

	uploader Uploader
	logger   *slog.Logger
}

func NewRodScraper(browserURL, downloadDir string, uploader Uploader, logger *slog.Logger) *RodScraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodScraper{
		BrowserURL:      browserURL,
		DownloadDir:     downloadDir,
		LinkTimeout:     15 * time.Second,
		DownloadTimeout: 15 * time.Second,
		uploader:        uploader,
		logger:          logger,
	}
}

func (s *RodScraper) ScrapeDocuments(ctx context.Context, tender *model.Tender) ([]ScrapedDocument, error) {
	pageURL := tender.KonturLink
	if pageURL == "" {
		return nil, fmt.Errorf("tender %s has no landing URL to scrape", tender.ExternalID)
	}
	s.logger.Info("starting document scraping", "tender_id", tender.ExternalID, "url", pageURL)

	browser := rod.New().Context(ctx)
	if s.BrowserURL != "" {
		browser = browser.ControlURL(s.BrowserURL)
	}
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer browser.MustClose()

	// Route browser downloads into the configured directory.
	_ = proto.BrowserSetDownloadBehavior{
		Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath: s.DownloadDir,
	}.Call(browser)

	page, err := browser.Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		return nil, fmt.Errorf("open page %s: %w", pageURL, err)
	}
	defer page.MustClose()

	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load %s: %w", pageURL, err)
	}

	links, err := s.waitForPDFLinks(ctx, page, pageURL)
	if err != nil {
		return nil, err
	}

	var scraped []ScrapedDocument
	for _, link := range links {
		fileName := fileNameFromURL(link.absolute, len(scraped)+1)
		doc, err := s.downloadLink(ctx, page, link, fileName, tender.ExternalID)
		if err != nil {
			s.logger.Error("failed to process document", "tender_id", tender.ExternalID, "url", link.absolute, "error", err)
			continue
		}
		scraped = append(scraped, *doc)
	}

	if len(scraped) == 0 {
		return nil, fmt.Errorf("no documents scraped from %s", pageURL)
	}
	s.logger.Info("scraping finished", "tender_id", tender.ExternalID, "documents", len(scraped))
	return scraped, nil
}

type pdfLink struct {
	// href as written in the page, used to locate the anchor for clicking.
	raw      string
	absolute string
}

// waitForPDFLinks polls the rendered HTML until at least one PDF anchor is
// present or the link timeout expires.
func (s *RodScraper) waitForPDFLinks(ctx context.Context, page *rod.Page, pageURL string) ([]pdfLink, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.LinkTimeout)
	for {
		htmlStr, err := page.HTML()
		if err != nil {
			return nil, fmt.Errorf("read page HTML: %w", err)
		}
		links := extractPDFLinks(htmlStr, base)
		if len(links) > 0 {
			return links, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for PDF links on %s", pageURL)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func extractPDFLinks(htmlStr string, base *url.URL) []pdfLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []pdfLink
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || !strings.Contains(strings.ToLower(href), ".pdf") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if !linkURL.IsAbs() {
			linkURL = base.ResolveReference(linkURL)
		}
		abs := linkURL.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, pdfLink{raw: href, absolute: abs})
	})
	return links
}

// downloadLink clicks the anchor and waits for the file to materialize in
// the download directory; when the click path fails, the document is
// uploaded straight from its URL.
func (s *RodScraper) downloadLink(ctx context.Context, page *rod.Page, link pdfLink, fileName, tenderID string) (*ScrapedDocument, error) {
	if localPath, err := s.clickAndWait(ctx, page, link, fileName); err == nil {
		storeURL, upErr := s.uploader.UploadFromFile(ctx, localPath, fileName, tenderID)
		if upErr == nil {
			os.Remove(localPath)
			return &ScrapedDocument{FileName: fileName, URL: storeURL}, nil
		}
		s.logger.Error("failed to upload downloaded file", "file", localPath, "error", upErr)
	} else {
		s.logger.Warn("click download failed, uploading via direct URL", "url", link.absolute, "error", err)
	}

	storeURL, err := s.uploader.UploadFromURL(ctx, link.absolute, fileName, tenderID)
	if err != nil {
		return nil, err
	}
	return &ScrapedDocument{FileName: fileName, URL: storeURL}, nil
}

func (s *RodScraper) clickAndWait(ctx context.Context, page *rod.Page, link pdfLink, fileName string) (string, error) {
	el, err := page.Element(fmt.Sprintf("a[href=%q]", link.raw))
	if err != nil {
		return "", fmt.Errorf("locate anchor: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return "", fmt.Errorf("click anchor: %w", err)
	}

	localPath := filepath.Join(s.DownloadDir, fileName)
	deadline := time.Now().Add(s.DownloadTimeout)
	for {
		if _, err := os.Stat(localPath); err == nil {
			return localPath, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("download of %s did not finish in time", fileName)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

// fileNameFromURL derives a file name from the URL path's last segment,
// falling back to a synthesized name.
func fileNameFromURL(rawURL string, n int) string {
	u, err := url.Parse(rawURL)
	if err == nil {
		if name := filepath.Base(u.Path); name != "." && name != "/" && name != "" {
			return name
		}
	}
	return fmt.Sprintf("document_%d.pdf", n)
}
