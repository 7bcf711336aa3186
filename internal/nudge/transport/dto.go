package transport

import "retention_backend/internal/nudge/scoring"

// PreviewQuery is the query string of GET /nudge/preview.
type PreviewQuery struct {
	Limit int `form:"limit" validate:"omitempty,gte=1,lte=500"`
}

// PreviewClient is a scored candidate with a human-formatted phone.
type PreviewClient struct {
	scoring.ScoredClient
	DisplayName  string `json:"displayName"`
	PhoneDisplay string `json:"phoneDisplay"`
}

// PreviewResponse is the dry-run outreach list.
type PreviewResponse struct {
	Limit                 int             `json:"limit"`
	TotalAvailableClients int             `json:"totalAvailableClients"`
	Clients               []PreviewClient `json:"clients"`
}

// EvaluateRequest reports open capacity for the coming week.
type EvaluateRequest struct {
	OpenSlots           int    `json:"openSlots" validate:"gte=0,lte=1000"`
	RevenuePerSlotCents *int64 `json:"revenuePerSlotCents,omitempty" validate:"omitempty,gte=0"`
}

// TaskAcceptedResponse acknowledges a queued evaluation.
type TaskAcceptedResponse struct {
	TaskID string `json:"taskId"`
}
