package model

import "time"

// Money is a price with its currency code as delivered by the upstream feed.
type Money struct {
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// EtpRequest describes the trading platform a tender was published on.
type EtpRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// LotRequest is one lot line of an incoming tender.
type LotRequest struct {
	Title         string `json:"title"`
	InitialSum    Money  `json:"initial_sum"`
	DeliveryPlace string `json:"delivery_place,omitempty"`
	DeliveryTerm  string `json:"delivery_term,omitempty"`
	PaymentTerm   string `json:"payment_term,omitempty"`
}

// DocumentRequest is one attachment reference of an incoming tender.
type DocumentRequest struct {
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

// TenderRequest is the intake payload for a single tender.
type TenderRequest struct {
	ID                  string            `json:"id"`
	Title               string            `json:"title"`
	NotificationNumber  string            `json:"notification_number,omitempty"`
	NotificationType    string            `json:"notification_type,omitempty"`
	Organizer           map[string]any    `json:"organizer"`
	InitialSum          Money             `json:"initial_sum"`
	ApplicationDeadline *time.Time        `json:"application_deadline,omitempty"`
	Etp                 *EtpRequest       `json:"etp,omitempty"`
	KonturLink          string            `json:"kontur_link,omitempty"`
	PublicationDate     *time.Time        `json:"publication_date,omitempty"`
	LastModified        *time.Time        `json:"last_modified,omitempty"`
	Docs                []DocumentRequest `json:"docs"`
	Lots                []LotRequest      `json:"lots"`
	SelectionMethod     string            `json:"selection_method,omitempty"`
	Smp                 string            `json:"smp,omitempty"`
	State               string            `json:"state,omitempty"`
}

// TenderGroup is one typed batch of tender requests.
type TenderGroup struct {
	Type     string          `json:"type"`
	Requests []TenderRequest `json:"requests"`
}

// IncomingTenderData is the top-level intake body.
type IncomingTenderData struct {
	Data []TenderGroup `json:"data"`
}
