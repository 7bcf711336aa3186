// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"retention_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Booking Sync Events
// =============================================================================

// BookingSyncCompleted is published once per sync run after every period has
// been attempted.
type BookingSyncCompleted struct {
	BaseEvent
	OwnerID              uuid.UUID     `json:"ownerId"`
	Platform             string        `json:"platform"`
	Fetched              int           `json:"fetched"`
	Resolved             int           `json:"resolved"`
	NewClients           int           `json:"newClients"`
	AppointmentsUpserted int           `json:"appointmentsUpserted"`
	Skipped              int           `json:"skipped"`
	Invalid              int           `json:"invalid"`
	RevenuePreserved     int           `json:"revenuePreserved"`
	PeriodsCompleted     int           `json:"periodsCompleted"`
	PeriodsFailed        int           `json:"periodsFailed"`
	RevenueCents         int64         `json:"revenueCents"`
	TipCents             int64         `json:"tipCents"`
	Duration             time.Duration `json:"duration"`
}

func (e BookingSyncCompleted) EventName() string { return "booking.sync.completed" }
func (e BookingSyncCompleted) Owner() uuid.UUID  { return e.OwnerID }

// BookingPeriodFailed is published when a period exhausts into the failed state.
type BookingPeriodFailed struct {
	BaseEvent
	OwnerID  uuid.UUID `json:"ownerId"`
	Platform string    `json:"platform"`
	Period   string    `json:"period"`
	Reason   string    `json:"reason"`
}

func (e BookingPeriodFailed) EventName() string { return "booking.period.failed" }
func (e BookingPeriodFailed) Owner() uuid.UUID  { return e.OwnerID }

// =============================================================================
// Nudge Events
// =============================================================================

// NudgeRecipient is the slice of a scored candidate that downstream senders need.
type NudgeRecipient struct {
	ClientID     string `json:"clientId"`
	FirstName    string `json:"firstName,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	Phone        string `json:"phone"`
	Score        int    `json:"score"`
	DaysOverdue  int    `json:"daysOverdue"`
	VisitingType string `json:"visitingType"`
}

// NudgeCandidatesSelected is published by the outreach trigger with the
// clients chosen for this run.
type NudgeCandidatesSelected struct {
	BaseEvent
	OwnerID               uuid.UUID        `json:"ownerId"`
	OpenSlots             int              `json:"openSlots"`
	Limit                 int              `json:"limit"`
	TotalAvailableClients int              `json:"totalAvailableClients"`
	Recipients            []NudgeRecipient `json:"recipients"`
}

func (e NudgeCandidatesSelected) EventName() string { return "nudge.candidates.selected" }
func (e NudgeCandidatesSelected) Owner() uuid.UUID  { return e.OwnerID }
