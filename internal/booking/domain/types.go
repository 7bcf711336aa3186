// Package domain holds the booking sync data model shared by the resolver,
// reconciler, aggregate maintainer, repository and platform adapters.
package domain

import (
	"context"
	"time"

	"retention_backend/internal/shared/visiting"

	"github.com/google/uuid"
)

// Platform identifies an external scheduling platform.
type Platform string

const (
	PlatformAcuity Platform = "acuity"
	PlatformSquare Platform = "square"
)

// NormalizedAppointment is one booking event in the platform-independent shape
// every adapter produces. Money is carried in integer cents.
type NormalizedAppointment struct {
	ExternalID      string     `json:"externalId" validate:"required"`
	Datetime        time.Time  `json:"datetime"`
	Date            string     `json:"date" validate:"required,isodate"`
	Email           *string    `json:"email,omitempty"`
	Phone           *string    `json:"phone,omitempty"`
	PhoneNormalized *string    `json:"phoneNormalized,omitempty"`
	FirstName       *string    `json:"firstName,omitempty"`
	LastName        *string    `json:"lastName,omitempty"`
	ServiceType     string     `json:"serviceType"`
	PriceCents      int64      `json:"priceCents"`
	TipCents        int64      `json:"tipCents"`
	Notes           *string    `json:"notes,omitempty"`
	ReferralSource  *string    `json:"referralSource,omitempty"`
	BookedAt        *time.Time `json:"bookedAt,omitempty"`
}

// Client is a persisted client identity with its derived aggregates.
type Client struct {
	ID                 uuid.UUID
	OwnerID            uuid.UUID
	Email              *string
	PhoneNormalized    *string
	FirstName          *string
	LastName           *string
	FirstAppt          *string
	SecondAppt         *string
	LastAppt           *string
	FirstSource        *string
	TotalAppointments  int
	TotalTipsCents     int64
	AvgWeeklyVisits    *float64
	VisitingType       visiting.Type
	VisitingTypeLocked bool
	SMSOptedOut        bool
	LastMessagedAt     *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Appointment is a persisted appointment row. SyncedRevenueCents and
// SyncedTipCents hold what the most recent sync wrote; a live value that
// differs from its synced value was edited by hand.
type Appointment struct {
	OwnerID            uuid.UUID
	ExternalID         string
	ClientID           uuid.UUID
	Date               string
	Datetime           time.Time
	ServiceType        string
	RevenueCents       int64
	TipCents           int64
	SyncedRevenueCents int64
	SyncedTipCents     int64
	Notes              *string
	ReferralSource     *string
	BookedAt           *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ManuallyEdited reports whether revenue or tip were changed after the last sync.
func (a Appointment) ManuallyEdited() bool {
	return a.RevenueCents != a.SyncedRevenueCents || a.TipCents != a.SyncedTipCents
}

// ClientAggregate is the full-replace set of derived client fields.
type ClientAggregate struct {
	ClientID          uuid.UUID
	FirstAppt         *string
	SecondAppt        *string
	LastAppt          *string
	FirstSource       *string
	TotalAppointments int
	TotalTipsCents    int64
	AvgWeeklyVisits   *float64
	VisitingType      visiting.Type
}

// SyncStatus is the lifecycle state of one (owner, platform, period).
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncProcessing SyncStatus = "processing"
	SyncRetrying   SyncStatus = "retrying"
	SyncCompleted  SyncStatus = "completed"
	SyncFailed     SyncStatus = "failed"
)

// Resumable reports whether a resume pass should pick the period up again.
func (s SyncStatus) Resumable() bool {
	switch s {
	case SyncPending, SyncProcessing, SyncRetrying:
		return true
	default:
		return false
	}
}

// PeriodStatus is the persisted progress record for one sync period.
type PeriodStatus struct {
	OwnerID     uuid.UUID  `json:"ownerId"`
	Platform    Platform   `json:"platform"`
	Period      Period     `json:"period"`
	Status      SyncStatus `json:"status"`
	Priority    bool       `json:"priority"`
	RetryCount  int        `json:"retryCount"`
	LastError   *string    `json:"lastError,omitempty"`
	Fetched     int        `json:"fetched"`
	Upserted    int        `json:"upserted"`
	Skipped     int        `json:"skipped"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// PeriodCounts are the per-period figures recorded on completion.
type PeriodCounts struct {
	Fetched  int
	Upserted int
	Skipped  int
}

// Integration is an owner's connection to one scheduling platform.
type Integration struct {
	OwnerID     uuid.UUID
	Platform    Platform
	AccessToken string
	AccountRef  *string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FetchResult is what an adapter returns for one date window. Raw holds the
// untouched upstream payload for archiving and may be nil.
type FetchResult struct {
	Appointments []NormalizedAppointment
	Raw          []byte
}

// Adapter pulls appointments for a date window from one external platform and
// converts them to NormalizedAppointment.
type Adapter interface {
	Platform() Platform
	Fetch(ctx context.Context, integration Integration, window Window) (FetchResult, error)
}
