package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/manvelegoyan072/bord-application/internal/model"
	"github.com/manvelegoyan072/bord-application/internal/scraper"
)

type fakeStore struct {
	tender *model.Tender

	states    []string
	updated   []model.Document
	upserted  []model.Document
	errorRows []string
}

func (f *fakeStore) GetTenderByExternalID(ctx context.Context, externalID string) (*model.Tender, error) {
	if f.tender == nil || f.tender.ExternalID != externalID {
		return nil, errors.New("not found")
	}
	return f.tender, nil
}

func (f *fakeStore) UpdateTenderState(ctx context.Context, externalID, state string) error {
	f.states = append(f.states, state)
	return nil
}

func (f *fakeStore) UpdateDocument(ctx context.Context, tenderID, fileName, url, storageLocation, status string) error {
	f.updated = append(f.updated, model.Document{
		TenderID: tenderID, FileName: fileName, URL: url,
		StorageLocation: storageLocation, Status: status,
	})
	return nil
}

func (f *fakeStore) UpsertDocument(ctx context.Context, d model.Document) error {
	f.upserted = append(f.upserted, d)
	return nil
}

func (f *fakeStore) LogTenderError(ctx context.Context, tenderID, module, message string) error {
	f.errorRows = append(f.errorRows, message)
	return nil
}

type fakeProber struct {
	statuses map[string]int
	calls    []string
}

func (f *fakeProber) Head(ctx context.Context, url string) (int, error) {
	f.calls = append(f.calls, url)
	if status, ok := f.statuses[url]; ok {
		return status, nil
	}
	return 200, nil
}

type fakeUploader struct {
	calls []string
	err   error
}

func (f *fakeUploader) UploadFromURL(ctx context.Context, srcURL, fileName, tenderID string) (string, error) {
	f.calls = append(f.calls, srcURL)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("https://store.example/tender-docs/tenders/%s/%s", tenderID, fileName), nil
}

type fakeScraper struct {
	okURL string
	calls []string
}

func (f *fakeScraper) ScrapeDocuments(ctx context.Context, tender *model.Tender) ([]scraper.ScrapedDocument, error) {
	f.calls = append(f.calls, tender.KonturLink)
	if f.okURL != "" && tender.KonturLink == f.okURL {
		return []scraper.ScrapedDocument{
			{FileName: "scraped.pdf", URL: "https://store.example/tender-docs/tenders/" + tender.ExternalID + "/scraped.pdf"},
		}, nil
	}
	return nil, errors.New("no links found")
}

type fakeFilters struct {
	pass bool
	err  error
}

func (f *fakeFilters) Apply(ctx context.Context, tender *model.Tender) (bool, error) {
	return f.pass, f.err
}

type fakeClassifier struct {
	accepted bool
	err      error
}

func (f *fakeClassifier) Classify(ctx context.Context, tender *model.Tender) (bool, error) {
	return f.accepted, f.err
}

type fakeExporter struct {
	err    error
	called bool
}

func (f *fakeExporter) Export(ctx context.Context, tender *model.Tender) error {
	f.called = true
	return f.err
}

type fakeAlerter struct {
	messages []string
}

func (f *fakeAlerter) Alert(ctx context.Context, tender *model.Tender, message string) {
	f.messages = append(f.messages, message)
}

type deps struct {
	store    *fakeStore
	prober   *fakeProber
	uploader *fakeUploader
	scraper  *fakeScraper
	filters  *fakeFilters
	ai       *fakeClassifier
	crm      *fakeExporter
	alerter  *fakeAlerter
}

func newDeps(tender *model.Tender) *deps {
	return &deps{
		store:    &fakeStore{tender: tender},
		prober:   &fakeProber{statuses: map[string]int{}},
		uploader: &fakeUploader{},
		scraper:  &fakeScraper{},
		filters:  &fakeFilters{pass: true},
		ai:       &fakeClassifier{accepted: true},
		crm:      &fakeExporter{},
		alerter:  &fakeAlerter{},
	}
}

func (d *deps) processor() *Processor {
	return NewProcessor(d.store, d.prober, d.uploader, d.scraper, d.filters, d.ai, d.crm, d.alerter, nil)
}

func processableTender() *model.Tender {
	now := time.Now()
	return &model.Tender{
		ExternalID:          "IS49226739",
		Title:               "Поставка оборудования",
		NotificationNumber:  "0123456789",
		PublicationDate:     &now,
		ApplicationDeadline: &now,
		KonturLink:          "https://kontur.example/tender/1",
		EtpURL:              "https://etp.example/lot/1",
		Type:                "kontur",
		State:               "RECEIVED",
		Organizer: map[string]any{
			"fullName": "ООО Ромашка",
			"inn":      "7707083893",
		},
		Docs: []model.Document{
			{FileName: "spec.pdf", URL: "https://files.example/spec.pdf"},
		},
	}
}

func TestProcessHappyPath(t *testing.T) {
	d := newDeps(processableTender())
	if err := d.processor().Process(context.Background(), "IS49226739"); err != nil {
		t.Fatalf("process: %v", err)
	}

	want := []string{
		"VALIDATING", "FETCHING_DOCUMENTS", "DOCUMENTS_SAVED",
		"FILTERING", "AI_PROCESSING", "READY_FOR_EXPORT", "EXPORTING", "COMPLETED",
	}
	if strings.Join(d.store.states, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected state sequence %v", d.store.states)
	}
	if !d.crm.called {
		t.Fatal("export not invoked")
	}
	if len(d.store.updated) != 1 || d.store.updated[0].Status != model.DocStatusDownloaded {
		t.Fatalf("document row not updated: %v", d.store.updated)
	}
	if len(d.alerter.messages) != 0 {
		t.Fatalf("unexpected alerts: %v", d.alerter.messages)
	}
}

func TestProcessValidationFailure(t *testing.T) {
	tender := processableTender()
	tender.NotificationNumber = ""
	d := newDeps(tender)

	if err := d.processor().Process(context.Background(), "IS49226739"); err != nil {
		t.Fatalf("validation failure must not return an error: %v", err)
	}
	if tender.State != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %s", tender.State)
	}
	if len(d.store.errorRows) != 1 || !strings.Contains(d.store.errorRows[0], "Отсутствует номер закупки") {
		t.Fatalf("validation error not logged: %v", d.store.errorRows)
	}
	if len(d.alerter.messages) != 1 || !strings.HasPrefix(d.alerter.messages[0], "Ошибка валидации") {
		t.Fatalf("expected validation alert, got %v", d.alerter.messages)
	}
	if d.crm.called {
		t.Fatal("export must not run after validation failure")
	}
}

func TestProcessDuplicateURLsDeduplicated(t *testing.T) {
	tender := processableTender()
	tender.Docs = append(tender.Docs, model.Document{FileName: "copy.pdf", URL: "https://files.example/spec.pdf"})
	d := newDeps(tender)

	if err := d.processor().Process(context.Background(), "IS49226739"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(d.uploader.calls) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(d.uploader.calls))
	}
}

func TestProcessScrapeFallbackViaLandingPage(t *testing.T) {
	tender := processableTender()
	d := newDeps(tender)
	d.prober.statuses["https://files.example/spec.pdf"] = 404
	d.scraper.okURL = tender.KonturLink

	if err := d.processor().Process(context.Background(), "IS49226739"); err != nil {
		t.Fatalf("process: %v", err)
	}
	want := []string{
		"VALIDATING", "FETCHING_DOCUMENTS", "DOCUMENTS_NOT_FOUND", "SCRAPING_DOCUMENTS", "DOCUMENTS_SAVED",
		"FILTERING", "AI_PROCESSING", "READY_FOR_EXPORT", "EXPORTING", "COMPLETED",
	}
	if strings.Join(d.store.states, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected state sequence %v", d.store.states)
	}
	if len(d.store.upserted) != 1 || d.store.upserted[0].FileName != "scraped.pdf" {
		t.Fatalf("scraped document not saved: %v", d.store.upserted)
	}
}

func TestProcessScrapeFallbackViaTradingPlatform(t *testing.T) {
	tender := processableTender()
	d := newDeps(tender)
	d.prober.statuses["https://files.example/spec.pdf"] = 404
	d.scraper.okURL = tender.EtpURL

	if err := d.processor().Process(context.Background(), "IS49226739"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(d.scraper.calls) != 2 {
		t.Fatalf("expected 2 scrape attempts, got %v", d.scraper.calls)
	}
	if d.scraper.calls[0] != "https://kontur.example/tender/1" || d.scraper.calls[1] != "https://etp.example/lot/1" {
		t.Fatalf("unexpected scrape targets %v", d.scraper.calls)
	}
	if tender.KonturLink != "https://kontur.example/tender/1" {
		t.Fatalf("kontur link not restored after swap: %s", tender.KonturLink)
	}
	if tender.State != "COMPLETED" {
		t.Fatalf("expected COMPLETED, got %s", tender.State)
	}
}

func TestProcessScrapeFailureParksTender(t *testing.T) {
	tender := processableTender()
	d := newDeps(tender)
	d.prober.statuses["https://files.example/spec.pdf"] = 404

	if err := d.processor().Process(context.Background(), "IS49226739"); err != nil {
		t.Fatalf("scrape failure must not return an error: %v", err)
	}
	if tender.State != "DOCUMENTS_FETCH_FAILED" {
		t.Fatalf("expected DOCUMENTS_FETCH_FAILED, got %s", tender.State)
	}
	if len(d.alerter.messages) != 1 || !strings.Contains(d.alerter.messages[0], "kontur_link") {
		t.Fatalf("expected scrape failure alert, got %v", d.alerter.messages)
	}
	if d.crm.called {
		t.Fatal("export must not run after scrape failure")
	}
}

func TestProcessFilterRejection(t *testing.T) {
	d := newDeps(processableTender())
	d.filters.pass = false

	if err := d.processor().Process(context.Background(), "IS49226739"); err != nil {
		t.Fatalf("filter rejection must not return an error: %v", err)
	}
	if d.store.tender.State != "REJECTED_FILTER" {
		t.Fatalf("expected REJECTED_FILTER, got %s", d.store.tender.State)
	}
	if d.crm.called {
		t.Fatal("export must not run after filter rejection")
	}
}

// Timeouts, service-side errors, and failed submissions all come back from
// the classifier as accepted=false with no error; the tender must end in
// REJECTED_AI without any operator alert.
func TestProcessAIRejection(t *testing.T) {
	d := newDeps(processableTender())
	d.ai.accepted = false

	if err := d.processor().Process(context.Background(), "IS49226739"); err != nil {
		t.Fatalf("ai rejection must not return an error: %v", err)
	}
	if d.store.tender.State != "REJECTED_AI" {
		t.Fatalf("expected REJECTED_AI, got %s", d.store.tender.State)
	}
	if len(d.alerter.messages) != 0 {
		t.Fatalf("ai rejection must not alert: %v", d.alerter.messages)
	}
	if d.crm.called {
		t.Fatal("export must not run after ai rejection")
	}
}

func TestProcessAIPersistenceFaultParksTenderInError(t *testing.T) {
	d := newDeps(processableTender())
	d.ai.err = errors.New("open ai check: connection refused")

	if err := d.processor().Process(context.Background(), "IS49226739"); err == nil {
		t.Fatal("persistence fault must return an error")
	}
	if d.store.tender.State != "ERROR" {
		t.Fatalf("expected ERROR, got %s", d.store.tender.State)
	}
	if len(d.store.errorRows) != 1 || !strings.Contains(d.store.errorRows[0], "connection refused") {
		t.Fatalf("fault not logged: %v", d.store.errorRows)
	}
	if len(d.alerter.messages) != 1 || !strings.Contains(d.alerter.messages[0], "Ошибка обработки тендера") {
		t.Fatalf("expected fault alert, got %v", d.alerter.messages)
	}
}

func TestProcessExportFailure(t *testing.T) {
	d := newDeps(processableTender())
	d.crm.err = errors.New("HTTP 500")

	if err := d.processor().Process(context.Background(), "IS49226739"); err != nil {
		t.Fatalf("export failure must not return an error: %v", err)
	}
	if d.store.tender.State != "EXPORT_FAILED" {
		t.Fatalf("expected EXPORT_FAILED, got %s", d.store.tender.State)
	}
	if len(d.alerter.messages) != 1 || d.alerter.messages[0] != "Ошибка экспорта в Bitrix" {
		t.Fatalf("expected export alert, got %v", d.alerter.messages)
	}
}
