package http

import "github.com/manvelegoyan072/bord-application/internal/model"

// ErrorResponse is the generic error envelope for auth and infrastructure
// failures.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// DetailResponse mirrors the intake API's error contract, which upstream
// integrations already parse.
type DetailResponse struct {
	Detail any `json:"detail"`
}

// TenderResponse acknowledges intake and status requests.
type TenderResponse struct {
	Status   string `json:"status"`
	TenderID string `json:"tender_id"`
	State    string `json:"state"`
}

// TenderListResponse is one page of the tender listing.
type TenderListResponse struct {
	Tenders []model.Tender `json:"tenders"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}

// TenderDetailResponse is the full tender view with its latest
// classification attempt, when one exists.
type TenderDetailResponse struct {
	Tender  *model.Tender  `json:"tender"`
	AICheck *model.AICheck `json:"ai_check,omitempty"`
}

// FilterShort is the summary row of the filter listing.
type FilterShort struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

// FilterListResponse is one page of the filter listing.
type FilterListResponse struct {
	Filters []FilterShort `json:"filters"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// StatusResponse is a bare {"status": "..."} acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}
