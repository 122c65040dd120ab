package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/manvelegoyan072/bord-application/internal/model"
)

type fakeDocs struct{}

func (fakeDocs) Fetch(ctx context.Context, storeURL string) ([]byte, string, error) {
	return []byte("pdf-bytes"), "spec.pdf", nil
}

func (fakeDocs) Contains(rawURL string) bool {
	return strings.HasPrefix(rawURL, "https://store.example/")
}

type fakeAlerter struct {
	messages []string
}

func (f *fakeAlerter) Alert(ctx context.Context, tender *model.Tender, message string) {
	f.messages = append(f.messages, message)
}

func exportTender() *model.Tender {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &model.Tender{
		ExternalID:         "IS49226739",
		Title:              "Поставка оборудования",
		NotificationNumber: "0123456789",
		InitialPrice:       150000,
		Currency:           "RUB",
		EtpURL:             "https://etp.example/lot/1",
		KonturLink:         "https://kontur.example/tender/1",
		ApplicationDeadline: &deadline,
		Organizer: map[string]any{
			"fullName":  "ООО Ромашка",
			"shortName": "Ромашка",
			"inn":       "7707083893",
			"phone":     "+7 (495) 123-45-67",
			"email":     "tender@example.com",
		},
		Lots: []model.Lot{{
			Title:         "Лот 1: оборудование",
			DeliveryPlace: "Москва",
			DeliveryTerm:  "30 дней",
			PaymentTerm:   "Оплата после поставки",
		}},
		Docs: []model.Document{{
			FileName: "spec.pdf",
			URL:      "https://store.example/tenders/IS49226739/spec.pdf",
		}},
	}
}

func TestExportCreatesLead(t *testing.T) {
	var leadFields map[string]any
	var userFieldCalls, fileUploads int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crm.userfield.update":
			userFieldCalls++
			json.NewEncoder(w).Encode(map[string]any{"result": true})
		case "/disk.file.upload":
			fileUploads++
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			if len(r.MultipartForm.File["file"]) != 1 {
				t.Errorf("expected 1 file part")
			}
			json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"ID": 42}})
		case "/crm.lead.add.json":
			var payload struct {
				Fields map[string]any `json:"fields"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode lead: %v", err)
			}
			leadFields = payload.Fields
			json.NewEncoder(w).Encode(map[string]any{"result": 1001})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	alerter := &fakeAlerter{}
	exporter := NewExporter(srv.URL, fakeDocs{}, alerter, nil)

	if err := exporter.Export(context.Background(), exportTender()); err != nil {
		t.Fatalf("export: %v", err)
	}
	if userFieldCalls != 2 {
		t.Fatalf("expected 2 user field updates, got %d", userFieldCalls)
	}
	if fileUploads != 1 {
		t.Fatalf("expected 1 file upload, got %d", fileUploads)
	}
	if len(alerter.messages) != 0 {
		t.Fatalf("unexpected alerts: %v", alerter.messages)
	}

	if got := leadFields["TITLE"]; got != "Лот 1: оборудование (ID: IS49226739)" {
		t.Errorf("unexpected TITLE: %v", got)
	}
	if got := leadFields["OPPORTUNascopy link | edit linkOPPORTUNITY"]; got != "150000" {
		t.Errorf("unexpected opportunity value: %v", got)
	}
	if got := leadFields["UF_CRM_1742606680844"]; got != "42" {
		t.Errorf("expected uploaded file id, got %v", got)
	}
	if got := leadFields["UF_CRM_1742609875440"]; got != "IS49226739" {
		t.Errorf("unexpected external id field: %v", got)
	}
	if got := leadFields["UF_CRM_1742608808760"]; got != "Оплата после поставки" {
		t.Errorf("unexpected payment term field: %v", got)
	}
	if got := leadFields["COMPANY_TITLE"]; got != "Ромашка" {
		t.Errorf("unexpected company title: %v", got)
	}
}

func TestExportWithoutLotsFallsBackToTenderTitle(t *testing.T) {
	var leadFields map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crm.lead.add.json" {
			var payload struct {
				Fields map[string]any `json:"fields"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			leadFields = payload.Fields
			json.NewEncoder(w).Encode(map[string]any{"result": 1002})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": true})
	}))
	defer srv.Close()

	tender := exportTender()
	tender.Lots = nil
	tender.Docs = nil
	tender.SelectionMethod = ""

	exporter := NewExporter(srv.URL, fakeDocs{}, &fakeAlerter{}, nil)
	if err := exporter.Export(context.Background(), tender); err != nil {
		t.Fatalf("export: %v", err)
	}
	if got := leadFields["TITLE"]; got != "Поставка оборудования (ID: IS49226739)" {
		t.Errorf("unexpected TITLE: %v", got)
	}
	if got := leadFields["UF_CRM_1742609963686"]; got != "Тендер" {
		t.Errorf("expected selection method fallback, got %v", got)
	}
}

func TestExportLeadFailureAlerts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crm.lead.add.json" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": true})
	}))
	defer srv.Close()

	alerter := &fakeAlerter{}
	tender := exportTender()
	tender.Docs = nil

	exporter := NewExporter(srv.URL, fakeDocs{}, alerter, nil)
	if err := exporter.Export(context.Background(), tender); err == nil {
		t.Fatal("expected export error")
	}
	if len(alerter.messages) != 1 || !strings.Contains(alerter.messages[0], "IS49226739") {
		t.Fatalf("expected failure alert, got %v", alerter.messages)
	}
}

func TestExportUserFieldFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crm.userfield.update" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": 1003})
	}))
	defer srv.Close()

	tender := exportTender()
	tender.Docs = nil

	exporter := NewExporter(srv.URL, fakeDocs{}, &fakeAlerter{}, nil)
	if err := exporter.Export(context.Background(), tender); err != nil {
		t.Fatalf("user field failure must not fail export: %v", err)
	}
}

func TestUploadSkipsForeignURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/disk.file.upload" {
			t.Error("upload attempted for foreign URL")
		}
		json.NewEncoder(w).Encode(map[string]any{"result": 1004})
	}))
	defer srv.Close()

	tender := exportTender()
	tender.Docs = []model.Document{{FileName: "x.pdf", URL: "https://elsewhere.example/x.pdf"}}

	exporter := NewExporter(srv.URL, fakeDocs{}, &fakeAlerter{}, nil)
	if err := exporter.Export(context.Background(), tender); err != nil {
		t.Fatalf("export: %v", err)
	}
}
