// Package filter evaluates the user-configured boolean filter rules
// against a tender projected as a flat attribute map.
package filter

import (
	"context"
	"log/slog"

	"github.com/manvelegoyan072/bord-application/internal/model"
)

// ActiveFilterLister is the slice of the persistence layer the engine
// needs: active filters of one category type in ascending priority order.
type ActiveFilterLister interface {
	ListActiveFilters(ctx context.Context, filterType string) ([]model.Filter, error)
}

// Engine applies the configured filters to tenders.
type Engine struct {
	filters ActiveFilterLister
	logger  *slog.Logger
}

func NewEngine(filters ActiveFilterLister, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{filters: filters, logger: logger}
}

// Apply reports whether the tender passes filtering: at least one active
// filter of the tender's type evaluates true, short-circuiting on the
// first success. No active filters means pass.
func (e *Engine) Apply(ctx context.Context, tender *model.Tender) (bool, error) {
	active, err := e.filters.ListActiveFilters(ctx, tender.Type)
	if err != nil {
		return false, err
	}
	e.logger.Info("found active filters", "tender_id", tender.ExternalID, "count", len(active))
	if len(active) == 0 {
		return true, nil
	}

	flat := Flatten(tender)
	for _, f := range active {
		if e.checkFilter(&f, flat) {
			e.logger.Info("tender passed filter", "tender_id", tender.ExternalID, "filter_id", f.ID)
			return true, nil
		}
		e.logger.Info("tender failed filter", "tender_id", tender.ExternalID, "filter_id", f.ID)
	}
	e.logger.Info("tender did not pass any filters", "tender_id", tender.ExternalID)
	return false, nil
}

// checkFilter evaluates one filter row. Absence of a condition is
// trivially true; malformed condition JSON evaluates false.
func (e *Engine) checkFilter(f *model.Filter, flat map[string]any) bool {
	if f.Condition == "" {
		return true
	}
	cond, err := ParseCondition(f.Condition)
	if err != nil {
		e.logger.Error("invalid filter condition JSON", "filter_id", f.ID, "error", err)
		return false
	}
	return Evaluate(cond, flat)
}

// Flatten projects the tender's filterable attributes into the map the
// condition language operates on. Nested organizer fields are reachable
// via dotted paths ("organizer.inn").
func Flatten(t *model.Tender) map[string]any {
	flat := map[string]any{
		"external_id":         t.ExternalID,
		"title":               t.Title,
		"notification_number": t.NotificationNumber,
		"notification_type":   t.NotificationType,
		"organizer":           t.Organizer,
		"initial_price":       t.InitialPrice,
		"currency":            t.Currency,
		"etp_code":            t.EtpCode,
		"etp_name":            t.EtpName,
		"etp_url":             t.EtpURL,
		"kontur_link":         t.KonturLink,
		"selection_method":    t.SelectionMethod,
		"smp":                 t.Smp,
		"type":                t.Type,
		"state":               t.State,
	}
	if t.ApplicationDeadline != nil {
		flat["application_deadline"] = t.ApplicationDeadline.Format("2006-01-02T15:04:05Z07:00")
	}
	if t.PublicationDate != nil {
		flat["publication_date"] = t.PublicationDate.Format("2006-01-02T15:04:05Z07:00")
	}
	if t.LastModified != nil {
		flat["last_modified"] = t.LastModified.Format("2006-01-02T15:04:05Z07:00")
	}
	return flat
}
