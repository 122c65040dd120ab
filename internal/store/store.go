// Package store is the Postgres persistence layer. All SQL lives here;
// the rest of the pipeline talks in model types.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"

	"github.com/manvelegoyan072/bord-application/internal/model"
)

var (
	// ErrDuplicateTender reports an intake collision on external_id.
	ErrDuplicateTender = errors.New("tender already exists")
	// ErrNotFound reports a missing row.
	ErrNotFound = errors.New("not found")
)

// Store wraps access to the database via a shared *sql.DB with pooling.
type Store struct {
	DB *sql.DB
}

func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullJSON(v any) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// CreateTender inserts the tender plus its lots and documents in one
// transaction. A colliding external_id yields ErrDuplicateTender.
func (s *Store) CreateTender(ctx context.Context, t *model.Tender) error {
	organizer, err := nullJSON(t.Organizer)
	if err != nil {
		return fmt.Errorf("marshal organizer: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tenders (
			external_id, title, notification_number, notification_type,
			organizer, initial_price, currency, application_deadline,
			etp_code, etp_name, etp_url, kontur_link,
			publication_date, last_modified, selection_method, smp,
			type, state
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		t.ExternalID, t.Title, t.NotificationNumber, t.NotificationType,
		organizer, t.InitialPrice, t.Currency, nullTime(t.ApplicationDeadline),
		t.EtpCode, t.EtpName, t.EtpURL, t.KonturLink,
		nullTime(t.PublicationDate), nullTime(t.LastModified), t.SelectionMethod, t.Smp,
		t.Type, t.State,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateTender
		}
		return fmt.Errorf("insert tender: %w", err)
	}

	for _, lot := range t.Lots {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO lots (tender_id, title, customer_id, initial_sum, currency, delivery_place, delivery_term, payment_term)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			t.ExternalID, lot.Title, lot.CustomerID, lot.InitialSum, lot.Currency,
			lot.DeliveryPlace, lot.DeliveryTerm, lot.PaymentTerm,
		)
		if err != nil {
			return fmt.Errorf("insert lot: %w", err)
		}
	}

	for _, doc := range t.Docs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (tender_id, file_name, url, storage_location, status)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT ON CONSTRAINT uq_tender_file
			DO UPDATE SET url = EXCLUDED.url, storage_location = EXCLUDED.storage_location, status = EXCLUDED.status`,
			t.ExternalID, doc.FileName, doc.URL, doc.StorageLocation, doc.Status,
		)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const tenderColumns = `external_id, title, notification_number, notification_type,
	organizer, initial_price, currency, application_deadline,
	etp_code, etp_name, etp_url, kontur_link,
	publication_date, last_modified, selection_method, smp,
	type, state, created_at`

func scanTender(row interface{ Scan(...any) error }) (*model.Tender, error) {
	var (
		t                                      model.Tender
		notifNum, notifType                    sql.NullString
		organizer                              pqtype.NullRawMessage
		initialPrice                           sql.NullFloat64
		currency, etpCode, etpName, etpURL     sql.NullString
		konturLink, selectionMethod, smp       sql.NullString
		deadline, publicationDate, lastChanged sql.NullTime
	)
	err := row.Scan(
		&t.ExternalID, &t.Title, &notifNum, &notifType,
		&organizer, &initialPrice, &currency, &deadline,
		&etpCode, &etpName, &etpURL, &konturLink,
		&publicationDate, &lastChanged, &selectionMethod, &smp,
		&t.Type, &t.State, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.NotificationNumber = notifNum.String
	t.NotificationType = notifType.String
	t.InitialPrice = initialPrice.Float64
	t.Currency = currency.String
	t.EtpCode = etpCode.String
	t.EtpName = etpName.String
	t.EtpURL = etpURL.String
	t.KonturLink = konturLink.String
	t.SelectionMethod = selectionMethod.String
	t.Smp = smp.String
	if organizer.Valid {
		_ = json.Unmarshal(organizer.RawMessage, &t.Organizer)
	}
	if deadline.Valid {
		t.ApplicationDeadline = &deadline.Time
	}
	if publicationDate.Valid {
		t.PublicationDate = &publicationDate.Time
	}
	if lastChanged.Valid {
		t.LastModified = &lastChanged.Time
	}
	return &t, nil
}

// GetTenderByExternalID loads a tender with its lots and documents.
func (s *Store) GetTenderByExternalID(ctx context.Context, externalID string) (*model.Tender, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+tenderColumns+` FROM tenders WHERE external_id = $1`, externalID)
	t, err := scanTender(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select tender: %w", err)
	}

	if t.Lots, err = s.listLots(ctx, externalID); err != nil {
		return nil, err
	}
	if t.Docs, err = s.ListDocuments(ctx, externalID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) listLots(ctx context.Context, tenderID string) ([]model.Lot, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, tender_id, title, customer_id, initial_sum, currency, delivery_place, delivery_term, payment_term
		FROM lots WHERE tender_id = $1 ORDER BY id`, tenderID)
	if err != nil {
		return nil, fmt.Errorf("select lots: %w", err)
	}
	defer rows.Close()

	var lots []model.Lot
	for rows.Next() {
		var (
			lot                                              model.Lot
			title, currency, place, term, payment            sql.NullString
			initialSum                                       sql.NullFloat64
		)
		if err := rows.Scan(&lot.ID, &lot.TenderID, &title, &lot.CustomerID, &initialSum, &currency, &place, &term, &payment); err != nil {
			return nil, fmt.Errorf("scan lot: %w", err)
		}
		lot.Title = title.String
		lot.InitialSum = initialSum.Float64
		lot.Currency = currency.String
		lot.DeliveryPlace = place.String
		lot.DeliveryTerm = term.String
		lot.PaymentTerm = payment.String
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// ListDocuments returns a tender's documents in insertion order.
func (s *Store) ListDocuments(ctx context.Context, tenderID string) ([]model.Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, tender_id, file_name, url, storage_location, status
		FROM documents WHERE tender_id = $1 ORDER BY id`, tenderID)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.TenderID, &d.FileName, &d.URL, &d.StorageLocation, &d.Status); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateTenderState persists a state transition.
func (s *Store) UpdateTenderState(ctx context.Context, externalID, state string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE tenders SET state = $1 WHERE external_id = $2`, state, externalID)
	if err != nil {
		return fmt.Errorf("update tender state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateDocument rewrites a document's URL, storage location, and status,
// keyed by (tender_id, file_name).
func (s *Store) UpdateDocument(ctx context.Context, tenderID, fileName, url, storageLocation, status string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE documents SET url = $1, storage_location = $2, status = $3
		WHERE tender_id = $4 AND file_name = $5`,
		url, storageLocation, status, tenderID, fileName)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// UpsertDocument inserts or refreshes a document row, used for documents
// discovered by scraping.
func (s *Store) UpsertDocument(ctx context.Context, d model.Document) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO documents (tender_id, file_name, url, storage_location, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT ON CONSTRAINT uq_tender_file
		DO UPDATE SET url = EXCLUDED.url, storage_location = EXCLUDED.storage_location, status = EXCLUDED.status`,
		d.TenderID, d.FileName, d.URL, d.StorageLocation, d.Status)
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// ListReceivedTenders returns tenders awaiting processing, oldest first.
func (s *Store) ListReceivedTenders(ctx context.Context, limit int) ([]model.Tender, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+tenderColumns+` FROM tenders WHERE state = $1 ORDER BY created_at LIMIT $2`,
		"RECEIVED", limit)
	if err != nil {
		return nil, fmt.Errorf("select received tenders: %w", err)
	}
	defer rows.Close()

	var tenders []model.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tender: %w", err)
		}
		tenders = append(tenders, *t)
	}
	return tenders, rows.Err()
}

// ListTendersParams carries pagination and filtering for tender listings.
// ExternalID, Type and State match as substrings; CreatedAt matches the
// calendar date (YYYY-MM-DD).
type ListTendersParams struct {
	Page       int
	PageSize   int
	ExternalID string
	State      string
	Type       string
	CreatedAt  string
	SortBy     string
	SortDir    string
}

var tenderSortColumns = map[string]bool{
	"external_id": true,
	"type":        true,
	"state":       true,
	"created_at":  true,
}

// ListTenders returns one page of tenders plus the total row count.
// Sort columns outside the whitelist fall back to created_at.
func (s *Store) ListTenders(ctx context.Context, p ListTendersParams) ([]model.Tender, int, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
	if !tenderSortColumns[p.SortBy] {
		p.SortBy = "created_at"
	}
	dir := "DESC"
	if strings.EqualFold(p.SortDir, "asc") {
		dir = "ASC"
	}

	var (
		where []string
		args  []any
	)
	if p.ExternalID != "" {
		args = append(args, "%"+p.ExternalID+"%")
		where = append(where, fmt.Sprintf("external_id ILIKE $%d", len(args)))
	}
	if p.State != "" {
		args = append(args, "%"+p.State+"%")
		where = append(where, fmt.Sprintf("state ILIKE $%d", len(args)))
	}
	if p.Type != "" {
		args = append(args, "%"+p.Type+"%")
		where = append(where, fmt.Sprintf("type ILIKE $%d", len(args)))
	}
	if p.CreatedAt != "" {
		args = append(args, p.CreatedAt)
		where = append(where, fmt.Sprintf("created_at::date = $%d::date", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT count(*) FROM tenders`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenders: %w", err)
	}

	args = append(args, p.PageSize, (p.Page-1)*p.PageSize)
	query := fmt.Sprintf(`SELECT %s FROM tenders%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		tenderColumns, cond, p.SortBy, dir, len(args)-1, len(args))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select tenders: %w", err)
	}
	defer rows.Close()

	var tenders []model.Tender
	for rows.Next() {
		t, err := scanTender(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tender: %w", err)
		}
		tenders = append(tenders, *t)
	}
	return tenders, total, rows.Err()
}

// LogTenderError appends a durable error row for a tender.
func (s *Store) LogTenderError(ctx context.Context, tenderID, module, message string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO errors (tender_id, module, error_message) VALUES ($1,$2,$3)`,
		tenderID, module, message)
	if err != nil {
		return fmt.Errorf("insert error row: %w", err)
	}
	return nil
}

// InsertAICheck opens a PENDING classification attempt for the remote task
// and returns the row id. The task id is stored up front so a crash
// mid-poll leaves a row that can still be correlated with the service.
func (s *Store) InsertAICheck(ctx context.Context, tenderID, taskID string) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO ai_checks (tender_id, ai_status, task_id) VALUES ($1, $2, $3) RETURNING id`,
		tenderID, model.AIStatusPending, taskID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert ai check: %w", err)
	}
	return id, nil
}

// UpdateAICheck records the outcome of a classification attempt.
func (s *Store) UpdateAICheck(ctx context.Context, id int64, status, response string) error {
	var resp pqtype.NullRawMessage
	if response != "" {
		resp = pqtype.NullRawMessage{RawMessage: json.RawMessage(response), Valid: true}
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE ai_checks SET ai_status = $1, ai_response = $2, checked_at = now()
		WHERE id = $3`,
		status, resp, id)
	if err != nil {
		return fmt.Errorf("update ai check: %w", err)
	}
	return nil
}

// GetLatestAICheck returns a tender's most recent classification attempt.
func (s *Store) GetLatestAICheck(ctx context.Context, tenderID string) (*model.AICheck, error) {
	var (
		chk    model.AICheck
		resp   pqtype.NullRawMessage
		taskID sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, tender_id, ai_status, ai_response, task_id, checked_at
		FROM ai_checks WHERE tender_id = $1 ORDER BY id DESC LIMIT 1`,
		tenderID).Scan(&chk.ID, &chk.TenderID, &chk.AIStatus, &resp, &taskID, &chk.CheckedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select ai check: %w", err)
	}
	if resp.Valid {
		chk.AIResponse = string(resp.RawMessage)
	}
	chk.TaskID = taskID.String
	return &chk, nil
}

// ListActiveFilters returns the active filters of one category type in
// ascending priority order, the order they are evaluated in.
func (s *Store) ListActiveFilters(ctx context.Context, filterType string) ([]model.Filter, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+filterColumns+` FROM filters WHERE type = $1 AND active ORDER BY priority ASC, id`,
		filterType)
	if err != nil {
		return nil, fmt.Errorf("select active filters: %w", err)
	}
	defer rows.Close()
	return collectFilters(rows)
}

const filterColumns = `id, title, description, type, condition, calculation,
	formula_target, formula, user_id, provider_id, priority, parent_id,
	active, success_action, created_at`

func scanFilter(row interface{ Scan(...any) error }) (*model.Filter, error) {
	var (
		f                                       model.Filter
		description, calculation                sql.NullString
		formulaTarget, formula                  sql.NullString
		condition                               pqtype.NullRawMessage
	)
	err := row.Scan(
		&f.ID, &f.Title, &description, &f.Type, &condition, &calculation,
		&formulaTarget, &formula, &f.UserID, &f.ProviderID, &f.Priority, &f.ParentID,
		&f.Active, &f.SuccessAction, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Description = description.String
	f.Calculation = calculation.String
	f.FormulaTarget = formulaTarget.String
	f.Formula = formula.String
	if condition.Valid {
		f.Condition = string(condition.RawMessage)
	}
	return &f, nil
}

func collectFilters(rows *sql.Rows) ([]model.Filter, error) {
	var filters []model.Filter
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan filter: %w", err)
		}
		filters = append(filters, *f)
	}
	return filters, rows.Err()
}

// CreateFilter inserts a filter rule and returns it with its id.
func (s *Store) CreateFilter(ctx context.Context, f *model.Filter) (*model.Filter, error) {
	condition, err := conditionJSON(f.Condition)
	if err != nil {
		return nil, err
	}
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO filters (title, description, type, condition, calculation, formula_target, formula, user_id, provider_id, priority, parent_id, active, success_action)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING `+filterColumns,
		f.Title, f.Description, f.Type, condition, f.Calculation,
		f.FormulaTarget, f.Formula, f.UserID, f.ProviderID, f.Priority,
		f.ParentID, f.Active, f.SuccessAction)
	created, err := scanFilter(row)
	if err != nil {
		return nil, fmt.Errorf("insert filter: %w", err)
	}
	return created, nil
}

// GetFilter loads one filter by id.
func (s *Store) GetFilter(ctx context.Context, id int64) (*model.Filter, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+filterColumns+` FROM filters WHERE id = $1`, id)
	f, err := scanFilter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select filter: %w", err)
	}
	return f, nil
}

// ListFilters returns all filters, newest first.
func (s *Store) ListFilters(ctx context.Context) ([]model.Filter, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+filterColumns+` FROM filters ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("select filters: %w", err)
	}
	defer rows.Close()
	return collectFilters(rows)
}

// UpdateFilter rewrites a filter row in place.
func (s *Store) UpdateFilter(ctx context.Context, f *model.Filter) (*model.Filter, error) {
	condition, err := conditionJSON(f.Condition)
	if err != nil {
		return nil, err
	}
	row := s.DB.QueryRowContext(ctx, `
		UPDATE filters SET title=$1, description=$2, type=$3, condition=$4, calculation=$5,
			formula_target=$6, formula=$7, user_id=$8, provider_id=$9, priority=$10,
			parent_id=$11, active=$12, success_action=$13
		WHERE id = $14
		RETURNING `+filterColumns,
		f.Title, f.Description, f.Type, condition, f.Calculation,
		f.FormulaTarget, f.Formula, f.UserID, f.ProviderID, f.Priority,
		f.ParentID, f.Active, f.SuccessAction, f.ID)
	updated, err := scanFilter(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update filter: %w", err)
	}
	return updated, nil
}

// DeleteFilter removes a filter by id.
func (s *Store) DeleteFilter(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM filters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func conditionJSON(condition string) (pqtype.NullRawMessage, error) {
	if condition == "" {
		return pqtype.NullRawMessage{}, nil
	}
	if !json.Valid([]byte(condition)) {
		return pqtype.NullRawMessage{}, fmt.Errorf("condition is not valid JSON")
	}
	return pqtype.NullRawMessage{RawMessage: json.RawMessage(condition), Valid: true}, nil
}
