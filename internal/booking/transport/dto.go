package transport

import (
	"retention_backend/internal/booking/domain"
)

// StartSyncRequest is the body of POST /sync/:platform. Both fields are optional.
type StartSyncRequest struct {
	MonthsBack int  `json:"monthsBack" validate:"gte=0,lte=120"`
	Force      bool `json:"force"`
}

// ResumeSyncRequest is the body of POST /sync/:platform/resume.
type ResumeSyncRequest struct {
	RetryFailed bool `json:"retryFailed"`
}

// TaskAcceptedResponse acknowledges queued work.
type TaskAcceptedResponse struct {
	TaskID   string `json:"taskId"`
	Platform string `json:"platform"`
}

// SyncStatusResponse lists per-period progress with status totals.
type SyncStatusResponse struct {
	Platform string                `json:"platform"`
	Totals   map[string]int        `json:"totals"`
	Periods  []domain.PeriodStatus `json:"periods"`
}

// SaveIntegrationRequest connects or updates a platform account.
type SaveIntegrationRequest struct {
	AccessToken string  `json:"accessToken" validate:"required,min=8,max=4096"`
	AccountRef  *string `json:"accountRef,omitempty" validate:"omitempty,max=200"`
	Active      *bool   `json:"active,omitempty"`
}

// IntegrationResponse never echoes the token.
type IntegrationResponse struct {
	Platform   string  `json:"platform"`
	AccountRef *string `json:"accountRef,omitempty"`
	Active     bool    `json:"active"`
}

// ArchiveURLResponse is a short-lived download link for a raw period payload.
type ArchiveURLResponse struct {
	Period string `json:"period"`
	URL    string `json:"url"`
}
