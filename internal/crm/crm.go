// Package crm exports accepted tenders to Bitrix as leads, including the
// first stored document and the fixed user-field dictionary updates.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/manvelegoyan072/bord-application/internal/model"
)

// DocumentSource resolves stored documents back into bytes for upload.
type DocumentSource interface {
	Fetch(ctx context.Context, storeURL string) ([]byte, string, error)
	Contains(rawURL string) bool
}

// Alerter notifies operators about export failures.
type Alerter interface {
	Alert(ctx context.Context, tender *model.Tender, message string)
}

// Exporter drives the Bitrix webhook API.
type Exporter struct {
	WebhookURL string

	http    *http.Client
	docs    DocumentSource
	alerter Alerter
	logger  *slog.Logger
}

func NewExporter(webhookURL string, docs DocumentSource, alerter Alerter, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		WebhookURL: strings.TrimRight(webhookURL, "/"),
		http:       &http.Client{Timeout: 30 * time.Second},
		docs:       docs,
		alerter:    alerter,
		logger:     logger,
	}
}

// Export creates a Bitrix lead for the tender. User-field dictionary
// updates and the document upload are best-effort; only the lead creation
// itself is fatal.
func (e *Exporter) Export(ctx context.Context, tender *model.Tender) error {
	e.updateUserField(ctx, "UF_CRM_1742608808760", []string{"Оплата после поставки"})
	e.updateUserField(ctx, "UF_CRM_1742608851091", []string{"30 дней"})

	fileID := ""
	if len(tender.Docs) > 0 && tender.Docs[0].URL != "" {
		fileID = e.uploadFile(ctx, tender.Docs[0].URL)
	}

	payload := map[string]any{"fields": e.leadFields(tender, fileID)}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal lead payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.WebhookURL+"/crm.lead.add.json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		e.alerter.Alert(ctx, tender, fmt.Sprintf("Ошибка экспорта в Bitrix для заявки %s: %v", tender.ExternalID, err))
		return fmt.Errorf("create lead: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.alerter.Alert(ctx, tender, fmt.Sprintf("Ошибка экспорта в Bitrix для заявки %s: %d", tender.ExternalID, resp.StatusCode))
		return fmt.Errorf("create lead: HTTP %d", resp.StatusCode)
	}

	var created struct {
		Result json.Number `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return fmt.Errorf("decode lead response: %w", err)
	}
	if created.Result == "" {
		return fmt.Errorf("lead creation returned no id")
	}
	e.logger.Info("tender exported to bitrix", "tender_id", tender.ExternalID, "bitrix_id", created.Result.String())
	return nil
}

// updateUserField refreshes a CRM enum field's value list. Failures are
// logged, not propagated.
func (e *Exporter) updateUserField(ctx context.Context, fieldID string, values []string) {
	enum := make([]map[string]string, 0, len(values))
	for _, v := range values {
		enum = append(enum, map[string]string{"VALUE": v})
	}
	payload, _ := json.Marshal(map[string]any{
		"ID":     fieldID,
		"fields": map[string]any{"ENUM": enum},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.WebhookURL+"/crm.userfield.update", bytes.NewReader(payload))
	if err != nil {
		e.logger.Error("failed to build user field request", "field_id", fieldID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		e.logger.Error("failed to update user field", "field_id", fieldID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		e.logger.Error("user field update rejected", "field_id", fieldID, "status", resp.StatusCode, "body", string(body))
		return
	}
	e.logger.Info("updated user field", "field_id", fieldID, "values", values)
}

// uploadFile pushes the first stored document to Bitrix disk and returns
// the file id, or "" when anything fails. Only store-hosted URLs qualify.
func (e *Exporter) uploadFile(ctx context.Context, fileURL string) string {
	if !e.docs.Contains(fileURL) {
		e.logger.Error("unsupported file URL for bitrix upload", "url", fileURL)
		return ""
	}

	content, fileName, err := e.docs.Fetch(ctx, fileURL)
	if err != nil {
		e.logger.Error("failed to download document for bitrix", "url", fileURL, "error", err)
		return ""
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return ""
	}
	if _, err := part.Write(content); err != nil {
		return ""
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.WebhookURL+"/disk.file.upload", &body)
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := e.http.Do(req)
	if err != nil {
		e.logger.Error("failed to upload file to bitrix", "url", fileURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rb, _ := io.ReadAll(resp.Body)
		e.logger.Error("bitrix file upload rejected", "status", resp.StatusCode, "body", string(rb))
		return ""
	}

	var uploaded struct {
		Result struct {
			ID json.Number `json:"ID"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		e.logger.Error("failed to decode bitrix upload response", "error", err)
		return ""
	}
	fileID := uploaded.Result.ID.String()
	e.logger.Info("file uploaded to bitrix", "file_name", fileName, "file_id", fileID)
	return fileID
}

// leadFields builds the fixed Bitrix lead field mapping. The field keys
// match the CRM portal's configured user fields and must not be renamed.
func (e *Exporter) leadFields(t *model.Tender, fileID string) map[string]any {
	leadTitle := t.Title
	var firstLot *model.Lot
	if len(t.Lots) > 0 {
		firstLot = &t.Lots[0]
		leadTitle = firstLot.Title
	}

	lotField := func(get func(*model.Lot) string) string {
		if firstLot == nil {
			return ""
		}
		return get(firstLot)
	}
	firstDocURL := ""
	if len(t.Docs) > 0 {
		firstDocURL = t.Docs[0].URL
	}

	selectionMethod := t.SelectionMethod
	if selectionMethod == "" {
		selectionMethod = "Тендер"
	}

	comments := fmt.Sprintf(
		"Тип: %s\nНомер уведомления: %s\nТип уведомления: %s\nМетод выбора: %s\nSMP: %s\nДата публикации: %s",
		t.Type, t.NotificationNumber, t.NotificationType, t.SelectionMethod, t.Smp, formatTime(t.PublicationDate),
	)
	summary := fmt.Sprintf(
		"%s, сумма: %s %s, доставка: %s, срок: %s, оплата: %s",
		leadTitle, formatPrice(t.InitialPrice), t.Currency,
		lotField(func(l *model.Lot) string { return l.DeliveryPlace }),
		lotField(func(l *model.Lot) string { return l.DeliveryTerm }),
		lotField(func(l *model.Lot) string { return l.PaymentTerm }),
	)

	return map[string]any{
		"TITLE":              fmt.Sprintf("%s (ID: %s)", leadTitle, t.ExternalID),
		"ASSIGNED_BY_ID":     9,
		"SOURCE_ID":          "BIDZAAR",
		"SOURCE_DESCRIPTION": t.EtpURL,
		// Key preserved verbatim: the CRM portal field was created with
		// this exact name.
		"OPPORTUNascopy link | edit linkOPPORTUNITY": formatPrice(t.InitialPrice),
		"CURRENCY_ID":   t.Currency,
		"COMPANY_TITLE": organizerField(t, "shortName"),
		"PHONE":         []map[string]string{{"VALUE": organizerField(t, "phone"), "VALUE_TYPE": "WORK"}},
		"EMAIL":         []map[string]string{{"VALUE": organizerField(t, "email"), "VALUE_TYPE": "WORK"}},
		"COMMENTS":      comments,

		"UF_CRM_1742603751016": leadTitle,
		"UF_CRM_1742606680844": fileID,
		"UF_CRM_1742606760239": t.EtpURL,
		"UF_CRM_1742609850193": organizerField(t, "fullName"),
		"UF_CRM_1742609875440": t.ExternalID,
		"UF_CRM_1742609910653": t.NotificationNumber,
		"UF_CRM_1742609934994": leadTitle,
		"UF_CRM_1742609963686": selectionMethod,
		"UF_CRM_1742609998740": t.NotificationType,
		"UF_CRM_1742610026724": formatPrice(t.InitialPrice),
		"UF_CRM_1742610077432": t.EtpURL,
		"UF_CRM_1742610126567": t.KonturLink,
		"UF_CRM_1742610167102": formatTime(t.ApplicationDeadline),
		"UF_CRM_1742610221983": formatTime(t.LastModified),
		"UF_CRM_1742610256352": lotField(func(l *model.Lot) string { return l.DeliveryPlace }),
		"UF_CRM_1742610279807": organizerField(t, "inn"),
		"UF_CRM_1742610403956": fileID,
		"UF_CRM_1742610442197": firstDocURL,
		"UF_CRM_1742610493435": organizerField(t, "phone"),
		"UF_CRM_1742610518824": summary,
		"UF_CRM_1742608808760": lotField(func(l *model.Lot) string { return l.PaymentTerm }),
		"UF_CRM_1742608851091": lotField(func(l *model.Lot) string { return l.DeliveryTerm }),
	}
}

func organizerField(t *model.Tender, key string) string {
	if t.Organizer == nil {
		return ""
	}
	if v, ok := t.Organizer[key].(string); ok {
		return v
	}
	return ""
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
