package model

import "time"

// Tender is the root entity, keyed by the externally supplied identifier.
type Tender struct {
	ExternalID          string         `json:"external_id"`
	Title               string         `json:"title"`
	NotificationNumber  string         `json:"notification_number"`
	NotificationType    string         `json:"notification_type"`
	Organizer           map[string]any `json:"organizer"`
	InitialPrice        float64        `json:"initial_price"`
	Currency            string         `json:"currency"`
	ApplicationDeadline *time.Time     `json:"application_deadline"`
	EtpCode             string         `json:"etp_code"`
	EtpName             string         `json:"etp_name"`
	EtpURL              string         `json:"etp_url"`
	KonturLink          string         `json:"kontur_link"`
	PublicationDate     *time.Time     `json:"publication_date"`
	LastModified        *time.Time     `json:"last_modified"`
	SelectionMethod     string         `json:"selection_method"`
	Smp                 string         `json:"smp"`
	Type                string         `json:"type"`
	State               string         `json:"state"`
	CreatedAt           time.Time      `json:"created_at"`

	Lots []Lot      `json:"lots,omitempty"`
	Docs []Document `json:"docs,omitempty"`
}

// Lot is a per-tender line item.
type Lot struct {
	ID            int64   `json:"id"`
	TenderID      string  `json:"tender_id"`
	Title         string  `json:"title"`
	CustomerID    *int64  `json:"customer_id,omitempty"`
	InitialSum    float64 `json:"initial_sum"`
	Currency      string  `json:"currency"`
	DeliveryPlace string  `json:"delivery_place"`
	DeliveryTerm  string  `json:"delivery_term"`
	PaymentTerm   string  `json:"payment_term"`
}

// Document storage locations and statuses. These values must match the
// text stored in documents.storage_location and documents.status.
const (
	StorageOriginal = "original"
	StorageS3       = "s3"

	DocStatusPending    = "pending"
	DocStatusDownloaded = "downloaded"
	DocStatusError      = "error"
)

// Document is a per-tender attachment, unique by (tender_id, file_name).
type Document struct {
	ID              int64  `json:"id"`
	TenderID        string `json:"tender_id"`
	FileName        string `json:"file_name"`
	URL             string `json:"url"`
	StorageLocation string `json:"storage_location"`
	Status          string `json:"status"`
}

// Filter is a user-configured rule row; Condition holds the JSON
// expression tree evaluated by the filter engine.
type Filter struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Type          string    `json:"type"`
	Condition     string    `json:"condition,omitempty"`
	Calculation   string    `json:"calculation"`
	FormulaTarget string    `json:"formula_target,omitempty"`
	Formula       string    `json:"formula,omitempty"`
	UserID        *int64    `json:"user_id,omitempty"`
	ProviderID    *int64    `json:"provider_id,omitempty"`
	Priority      int       `json:"priority"`
	ParentID      *int64    `json:"parent_id,omitempty"`
	Active        bool      `json:"active"`
	SuccessAction *int64    `json:"success_action,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AI check statuses as persisted in ai_checks.ai_status.
const (
	AIStatusPending  = "PENDING"
	AIStatusSuccess  = "SUCCESS"
	AIStatusRejected = "REJECTED"
	AIStatusError    = "ERROR"
	AIStatusFailed   = "FAILED"
	AIStatusTimeout  = "TIMEOUT"
)

// AICheck records one AI classification attempt for a tender.
type AICheck struct {
	ID         int64     `json:"id"`
	TenderID   string    `json:"tender_id"`
	AIStatus   string    `json:"ai_status"`
	AIResponse string    `json:"ai_response,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// TenderError is a durable error log row for a tender.
type TenderError struct {
	ID           int64     `json:"id"`
	TenderID     string    `json:"tender_id"`
	Module       string    `json:"module"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
