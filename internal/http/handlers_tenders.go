package http

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/manvelegoyan072/bord-application/internal/model"
	"github.com/manvelegoyan072/bord-application/internal/store"
)

func storeFrom(c *fiber.Ctx) *store.Store {
	return c.Locals("store").(*store.Store)
}

func loggerFrom(c *fiber.Ctx) *slog.Logger {
	if l, ok := c.Locals("logger").(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// incomingDataHandler accepts a batch of tender groups from the upstream
// feed. Only the first tender of the first group is persisted per request;
// the feed delivers one tender per call and the envelope is kept for
// contract compatibility. Processing happens asynchronously once the row
// is stored in RECEIVED.
func incomingDataHandler(c *fiber.Ctx) error {
	st := storeFrom(c)
	logger := loggerFrom(c)
	logger.Info("received incoming tender data")

	var payload model.IncomingTenderData
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(DetailResponse{Detail: "Invalid tender data"})
	}
	if len(payload.Data) == 0 || len(payload.Data[0].Requests) == 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(DetailResponse{Detail: "Invalid tender data"})
	}

	group := payload.Data[0]
	req := group.Requests[0]
	if req.ID == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(DetailResponse{Detail: "Invalid tender data"})
	}

	tender := tenderFromRequest(req, group.Type)
	if err := st.CreateTender(c.Context(), tender); err != nil {
		if errors.Is(err, store.ErrDuplicateTender) {
			logger.Warn("tender already exists", "tender_id", req.ID)
			return c.Status(fiber.StatusConflict).JSON(DetailResponse{Detail: fiber.Map{
				"message":   fmt.Sprintf("Tender with id '%s' already exists", req.ID),
				"tender_id": req.ID,
			}})
		}
		logger.Error("failed to save tender", "tender_id", req.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(DetailResponse{Detail: "Failed to save tender"})
	}

	logger.Info("tender accepted", "tender_id", req.ID, "type", group.Type)
	return c.JSON(TenderResponse{Status: "success", TenderID: req.ID, State: "RECEIVED"})
}

func tenderFromRequest(req model.TenderRequest, tenderType string) *model.Tender {
	t := &model.Tender{
		ExternalID:          req.ID,
		Title:               req.Title,
		NotificationNumber:  req.NotificationNumber,
		NotificationType:    req.NotificationType,
		Organizer:           req.Organizer,
		InitialPrice:        req.InitialSum.Price,
		Currency:            req.InitialSum.Currency,
		ApplicationDeadline: req.ApplicationDeadline,
		KonturLink:          req.KonturLink,
		PublicationDate:     req.PublicationDate,
		LastModified:        req.LastModified,
		SelectionMethod:     req.SelectionMethod,
		Smp:                 req.Smp,
		Type:                tenderType,
		State:               "RECEIVED",
	}
	if req.Etp != nil {
		t.EtpCode = req.Etp.Code
		t.EtpName = req.Etp.Name
		t.EtpURL = req.Etp.URL
	}
	for _, lot := range req.Lots {
		t.Lots = append(t.Lots, model.Lot{
			TenderID:      req.ID,
			Title:         lot.Title,
			InitialSum:    lot.InitialSum.Price,
			Currency:      lot.InitialSum.Currency,
			DeliveryPlace: lot.DeliveryPlace,
			DeliveryTerm:  lot.DeliveryTerm,
			PaymentTerm:   lot.PaymentTerm,
		})
	}
	for _, doc := range req.Docs {
		t.Docs = append(t.Docs, model.Document{
			TenderID:        req.ID,
			FileName:        doc.FileName,
			URL:             doc.URL,
			StorageLocation: model.StorageOriginal,
			Status:          model.DocStatusPending,
		})
	}
	return t
}

// tenderStatusHandler returns the tender's current lifecycle state.
func tenderStatusHandler(c *fiber.Ctx) error {
	st := storeFrom(c)
	id := c.Params("id")

	tender, err := st.GetTenderByExternalID(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(TenderResponse{Status: "error", TenderID: id, State: "NOT_FOUND"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(DetailResponse{Detail: "Failed to load tender"})
	}
	return c.JSON(TenderResponse{Status: "success", TenderID: id, State: tender.State})
}

// tenderDetailHandler returns the tender with its lots, documents and the
// most recent classification attempt.
func tenderDetailHandler(c *fiber.Ctx) error {
	st := storeFrom(c)
	id := c.Params("id")

	tender, err := st.GetTenderByExternalID(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(DetailResponse{Detail: fmt.Sprintf("Tender with id '%s' not found", id)})
		}
		loggerFrom(c).Error("failed to load tender", "tender_id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(DetailResponse{Detail: "Failed to load tender"})
	}

	resp := TenderDetailResponse{Tender: tender}
	check, err := st.GetLatestAICheck(c.Context(), id)
	switch {
	case err == nil:
		resp.AICheck = check
	case !errors.Is(err, store.ErrNotFound):
		loggerFrom(c).Error("failed to load ai check", "tender_id", id, "error", err)
	}
	return c.JSON(resp)
}

// listTendersHandler returns one page of tenders with optional substring
// filters on external_id, state and type, plus created_at date equality.
func listTendersHandler(c *fiber.Ctx) error {
	st := storeFrom(c)

	perPage := c.QueryInt("per_page", 20)
	if perPage < 1 || perPage > 100 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(DetailResponse{Detail: "per_page must be between 1 and 100"})
	}

	params := store.ListTendersParams{
		Page:       c.QueryInt("page", 1),
		PageSize:   perPage,
		ExternalID: c.Query("external_id"),
		State:      c.Query("state"),
		Type:       c.Query("type"),
		CreatedAt:  c.Query("created_at"),
		SortBy:     c.Query("sort_field", "created_at"),
		SortDir:    c.Query("sort_direction", "desc"),
	}

	tenders, total, err := st.ListTenders(c.Context(), params)
	if err != nil {
		loggerFrom(c).Error("failed to list tenders", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(DetailResponse{Detail: "Failed to list tenders"})
	}
	if tenders == nil {
		tenders = []model.Tender{}
	}
	return c.JSON(TenderListResponse{
		Tenders: tenders,
		Total:   total,
		Page:    params.Page,
		PerPage: params.PageSize,
	})
}
