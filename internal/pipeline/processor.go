// Package pipeline orchestrates the tender lifecycle: validation,
// document acquisition with the scraping fallback, filtering, AI
// classification, and CRM export. Every state transition is persisted
// before the next stage runs, so a crash resumes from the stored state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/manvelegoyan072/bord-application/internal/metrics"
	"github.com/manvelegoyan072/bord-application/internal/model"
	"github.com/manvelegoyan072/bord-application/internal/scraper"
	"github.com/manvelegoyan072/bord-application/internal/state"
	"github.com/manvelegoyan072/bord-application/internal/validate"
)

const errorModule = "tender_processing"

// TenderStore is the slice of the persistence layer the processor needs.
type TenderStore interface {
	GetTenderByExternalID(ctx context.Context, externalID string) (*model.Tender, error)
	UpdateTenderState(ctx context.Context, externalID, state string) error
	UpdateDocument(ctx context.Context, tenderID, fileName, url, storageLocation, status string) error
	UpsertDocument(ctx context.Context, d model.Document) error
	LogTenderError(ctx context.Context, tenderID, module, message string) error
}

// Prober checks document URL reachability.
type Prober interface {
	Head(ctx context.Context, url string) (int, error)
}

// Uploader moves a reachable document URL into the object store.
type Uploader interface {
	UploadFromURL(ctx context.Context, srcURL, fileName, tenderID string) (string, error)
}

// FilterEngine decides whether a tender passes the configured filters.
type FilterEngine interface {
	Apply(ctx context.Context, tender *model.Tender) (bool, error)
}

// Classifier runs the async AI check and reports acceptance. AI-side
// failures surface as a rejection; an error means the attempt could not
// be persisted.
type Classifier interface {
	Classify(ctx context.Context, tender *model.Tender) (bool, error)
}

// Exporter pushes an accepted tender to the CRM.
type Exporter interface {
	Export(ctx context.Context, tender *model.Tender) error
}

// Alerter notifies operators about failures.
type Alerter interface {
	Alert(ctx context.Context, tender *model.Tender, message string)
}

// Processor runs one tender through the pipeline.
type Processor struct {
	store    TenderStore
	prober   Prober
	uploader Uploader
	scraper  scraper.Scraper
	filters  FilterEngine
	ai       Classifier
	crm      Exporter
	alerter  Alerter
	logger   *slog.Logger
}

func NewProcessor(
	store TenderStore,
	prober Prober,
	uploader Uploader,
	sc scraper.Scraper,
	filters FilterEngine,
	ai Classifier,
	crm Exporter,
	alerter Alerter,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:    store,
		prober:   prober,
		uploader: uploader,
		scraper:  sc,
		filters:  filters,
		ai:       ai,
		crm:      crm,
		alerter:  alerter,
		logger:   logger,
	}
}

// Process drives the tender identified by externalID to a terminal state.
// Expected outcomes (validation failure, filter or AI rejection, export
// failure) return nil; only infrastructure faults return an error, after
// the tender has been parked in ERROR and the operators alerted.
func (p *Processor) Process(ctx context.Context, externalID string) error {
	tender, err := p.store.GetTenderByExternalID(ctx, externalID)
	if err != nil {
		return fmt.Errorf("load tender %s: %w", externalID, err)
	}
	p.logger.Info("starting tender processing", "tender_id", externalID, "state", tender.State)

	sm := state.New(externalID, state.State(tender.State), p.logger)
	defer func() {
		metrics.RecordTenderProcessed(tender.State)
	}()

	// Validation.
	if err := p.step(ctx, tender, sm, state.TriggerStartValidating); err != nil {
		return p.fault(ctx, tender, sm, err)
	}
	problems := append(validate.Tender(tender), validate.Documents(tender.Docs)...)
	if len(problems) > 0 {
		if err := p.step(ctx, tender, sm, state.TriggerFailValidation); err != nil {
			return p.fault(ctx, tender, sm, err)
		}
		message := strings.Join(problems, "; ")
		p.logger.Error("validation failed", "tender_id", externalID, "errors", message)
		if err := p.store.LogTenderError(ctx, externalID, errorModule, message); err != nil {
			p.logger.Error("failed to log tender error", "tender_id", externalID, "error", err)
		}
		p.alerter.Alert(ctx, tender, "Ошибка валидации: "+message)
		return nil
	}

	// Document acquisition.
	if err := p.step(ctx, tender, sm, state.TriggerFetchDocuments); err != nil {
		return p.fault(ctx, tender, sm, err)
	}
	done, err := p.acquireDocuments(ctx, tender, sm)
	if err != nil {
		return p.fault(ctx, tender, sm, err)
	}
	if done {
		return nil
	}

	// Filtering.
	if err := p.step(ctx, tender, sm, state.TriggerStartFiltering); err != nil {
		return p.fault(ctx, tender, sm, err)
	}
	passed, err := p.filters.Apply(ctx, tender)
	if err != nil {
		return p.fault(ctx, tender, sm, err)
	}
	if !passed {
		if err := p.step(ctx, tender, sm, state.TriggerRejectAfterFiltering); err != nil {
			return p.fault(ctx, tender, sm, err)
		}
		p.logger.Info("tender rejected after filtering", "tender_id", externalID)
		return nil
	}

	// AI classification.
	if err := p.step(ctx, tender, sm, state.TriggerStartAI); err != nil {
		return p.fault(ctx, tender, sm, err)
	}
	accepted, err := p.ai.Classify(ctx, tender)
	if err != nil {
		return p.fault(ctx, tender, sm, err)
	}
	if !accepted {
		if err := p.step(ctx, tender, sm, state.TriggerRejectAfterAI); err != nil {
			return p.fault(ctx, tender, sm, err)
		}
		p.logger.Info("tender rejected after ai processing", "tender_id", externalID)
		return nil
	}

	// Export.
	if err := p.step(ctx, tender, sm, state.TriggerPrepareExport); err != nil {
		return p.fault(ctx, tender, sm, err)
	}
	if err := p.step(ctx, tender, sm, state.TriggerStartExporting); err != nil {
		return p.fault(ctx, tender, sm, err)
	}
	if err := p.crm.Export(ctx, tender); err != nil {
		metrics.RecordExport(false)
		if stepErr := p.step(ctx, tender, sm, state.TriggerFailExport); stepErr != nil {
			return p.fault(ctx, tender, sm, stepErr)
		}
		p.logger.Error("export failed", "tender_id", externalID, "error", err)
		p.alerter.Alert(ctx, tender, "Ошибка экспорта в Bitrix")
		return nil
	}
	metrics.RecordExport(true)
	if err := p.step(ctx, tender, sm, state.TriggerComplete); err != nil {
		return p.fault(ctx, tender, sm, err)
	}
	p.logger.Info("tender successfully completed", "tender_id", externalID)
	return nil
}

// acquireDocuments uploads every reachable document URL to the object
// store, falling back to browser scraping when any direct fetch fails.
// It returns done=true when processing should stop with the current state.
func (p *Processor) acquireDocuments(ctx context.Context, tender *model.Tender, sm *state.Machine) (bool, error) {
	seen := make(map[string]struct{})
	var fetched []model.Document
	directFailed := false

	for _, doc := range tender.Docs {
		if _, dup := seen[doc.URL]; dup {
			p.logger.Warn("skipping duplicate document URL", "tender_id", tender.ExternalID, "url", doc.URL)
			continue
		}
		seen[doc.URL] = struct{}{}

		status, err := p.prober.Head(ctx, doc.URL)
		if err != nil || status != 200 {
			p.logger.Warn("document URL not reachable", "tender_id", tender.ExternalID, "url", doc.URL, "status", status, "error", err)
			metrics.RecordDocumentFetch("direct", false)
			directFailed = true
			continue
		}

		storeURL, err := p.uploader.UploadFromURL(ctx, doc.URL, doc.FileName, tender.ExternalID)
		if err != nil {
			p.logger.Error("failed to upload document", "tender_id", tender.ExternalID, "url", doc.URL, "error", err)
			metrics.RecordDocumentFetch("direct", false)
			directFailed = true
			continue
		}
		if err := p.store.UpdateDocument(ctx, tender.ExternalID, doc.FileName, storeURL, model.StorageS3, model.DocStatusDownloaded); err != nil {
			return false, err
		}
		metrics.RecordDocumentFetch("direct", true)
		fetched = append(fetched, model.Document{
			TenderID:        tender.ExternalID,
			FileName:        doc.FileName,
			URL:             storeURL,
			StorageLocation: model.StorageS3,
			Status:          model.DocStatusDownloaded,
		})
		p.logger.Info("document uploaded", "tender_id", tender.ExternalID, "file_name", doc.FileName, "url", storeURL)
	}

	if directFailed {
		return p.scrapeFallback(ctx, tender, sm, fetched)
	}

	if len(fetched) == 0 {
		if err := p.step(ctx, tender, sm, state.TriggerDocumentsNotFound); err != nil {
			return false, err
		}
		p.alerter.Alert(ctx, tender, fmt.Sprintf("Не удалось обработать документы для тендера %s", tender.ExternalID))
		return true, nil
	}

	tender.Docs = fetched
	if err := p.step(ctx, tender, sm, state.TriggerSaveDocuments); err != nil {
		return false, err
	}
	return false, nil
}

// scrapeFallback tries the landing page first and the trading platform URL
// second, mirroring the manual recovery an operator would do.
func (p *Processor) scrapeFallback(ctx context.Context, tender *model.Tender, sm *state.Machine, fetched []model.Document) (bool, error) {
	if err := p.step(ctx, tender, sm, state.TriggerDocumentsNotFound); err != nil {
		return false, err
	}
	if err := p.step(ctx, tender, sm, state.TriggerStartScraping); err != nil {
		return false, err
	}

	p.logger.Info("attempting scraping via landing page", "tender_id", tender.ExternalID, "url", tender.KonturLink)
	scraped, err := p.scraper.ScrapeDocuments(ctx, tender)
	if err != nil && tender.EtpURL != "" {
		p.logger.Info("landing page scraping failed, attempting trading platform URL",
			"tender_id", tender.ExternalID, "url", tender.EtpURL, "error", err)
		original := tender.KonturLink
		tender.KonturLink = tender.EtpURL
		scraped, err = p.scraper.ScrapeDocuments(ctx, tender)
		tender.KonturLink = original
	}
	if err != nil {
		metrics.RecordDocumentFetch("scrape", false)
		if stepErr := p.step(ctx, tender, sm, state.TriggerFailScraping); stepErr != nil {
			return false, stepErr
		}
		p.logger.Error("scraping failed on both URLs", "tender_id", tender.ExternalID, "error", err)
		p.alerter.Alert(ctx, tender, fmt.Sprintf(
			"Не удалось скачать документы через kontur_link (%s) и etp_url (%s)", tender.KonturLink, tender.EtpURL))
		return true, nil
	}

	for _, doc := range scraped {
		row := model.Document{
			TenderID:        tender.ExternalID,
			FileName:        doc.FileName,
			URL:             doc.URL,
			StorageLocation: model.StorageS3,
			Status:          model.DocStatusDownloaded,
		}
		if err := p.store.UpsertDocument(ctx, row); err != nil {
			metrics.RecordDocumentFetch("scrape", false)
			if stepErr := p.step(ctx, tender, sm, state.TriggerFailScraping); stepErr != nil {
				return false, stepErr
			}
			p.logger.Error("failed to save scraped documents", "tender_id", tender.ExternalID, "error", err)
			p.alerter.Alert(ctx, tender, "Не удалось сохранить документы, скачанные при обходе площадки")
			return true, nil
		}
		fetched = append(fetched, row)
	}
	metrics.RecordDocumentFetch("scrape", true)

	tender.Docs = fetched
	if err := p.step(ctx, tender, sm, state.TriggerFinishScraping); err != nil {
		return false, err
	}
	p.logger.Info("scraping successful", "tender_id", tender.ExternalID, "documents", len(scraped))
	return false, nil
}

// step fires a trigger and persists the resulting state before returning.
func (p *Processor) step(ctx context.Context, tender *model.Tender, sm *state.Machine, trigger state.Trigger) error {
	if err := sm.Fire(trigger); err != nil {
		return err
	}
	tender.State = string(sm.Current())
	return p.store.UpdateTenderState(ctx, tender.ExternalID, tender.State)
}

// fault parks the tender in ERROR, records the cause durably, alerts the
// operators, and propagates the original error.
func (p *Processor) fault(ctx context.Context, tender *model.Tender, sm *state.Machine, cause error) error {
	p.logger.Error("error processing tender", "tender_id", tender.ExternalID, "error", cause)
	_ = sm.Fire(state.TriggerEncounterError)
	tender.State = string(sm.Current())
	if err := p.store.UpdateTenderState(ctx, tender.ExternalID, tender.State); err != nil {
		p.logger.Error("failed to persist error state", "tender_id", tender.ExternalID, "error", err)
	}
	if err := p.store.LogTenderError(ctx, tender.ExternalID, errorModule, cause.Error()); err != nil {
		p.logger.Error("failed to log tender error", "tender_id", tender.ExternalID, "error", err)
	}
	p.alerter.Alert(ctx, tender, fmt.Sprintf("Ошибка обработки тендера %s: %v", tender.ExternalID, cause))
	return cause
}
