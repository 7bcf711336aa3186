package syncer

import (
	"time"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/reconciler"
	"retention_backend/internal/booking/resolver"
	"retention_backend/internal/events"

	"github.com/google/uuid"
)

// PeriodFailure names a period that ended in the failed state.
type PeriodFailure struct {
	Period domain.Period `json:"period"`
	Reason string        `json:"reason"`
}

// Summary reports one sync run. Counts are filled in even when some periods
// fail. Skipped counts records without an identity signal and Invalid counts
// malformed records; neither is upserted.
type Summary struct {
	OwnerID              uuid.UUID       `json:"ownerId"`
	Platform             domain.Platform `json:"platform"`
	Fetched              int             `json:"fetched"`
	Resolved             int             `json:"resolved"`
	NewClients           int             `json:"newClients"`
	AppointmentsUpserted int             `json:"appointmentsUpserted"`
	AppointmentsInserted int             `json:"appointmentsInserted"`
	AppointmentsUpdated  int             `json:"appointmentsUpdated"`
	Skipped              int             `json:"skipped"`
	Invalid              int             `json:"invalid"`
	RevenuePreserved     int             `json:"revenuePreserved"`
	PeriodsCompleted     int             `json:"periodsCompleted"`
	PeriodsFailed        int             `json:"periodsFailed"`
	PeriodsSkipped       int             `json:"periodsSkipped"`
	RevenueCents         int64           `json:"revenueCents"`
	TipCents             int64           `json:"tipCents"`
	Failures             []PeriodFailure `json:"failures,omitempty"`
	Duration             time.Duration   `json:"duration"`
}

type periodResult struct {
	fetched    int
	resolution resolver.Resolution
	reconcile  reconciler.Result
}

func (s *Summary) add(r periodResult) {
	s.Fetched += r.fetched
	s.Resolved += r.resolution.Resolved()
	s.NewClients += len(r.resolution.NewClientIDs)
	s.Skipped += r.resolution.Skipped
	s.Invalid += r.resolution.Invalid
	s.AppointmentsUpserted += r.reconcile.TotalProcessed
	s.AppointmentsInserted += r.reconcile.Inserted
	s.AppointmentsUpdated += r.reconcile.Updated
	s.RevenuePreserved += r.reconcile.RevenuePreserved
	s.RevenueCents += r.reconcile.RevenueCents
	s.TipCents += r.reconcile.TipCents
	s.PeriodsCompleted++
}

func (s *Summary) fail(period domain.Period, reason string) {
	s.PeriodsFailed++
	s.Failures = append(s.Failures, PeriodFailure{Period: period, Reason: reason})
}

func (s Summary) event() events.BookingSyncCompleted {
	return events.BookingSyncCompleted{
		BaseEvent:            events.NewBaseEvent(),
		OwnerID:              s.OwnerID,
		Platform:             string(s.Platform),
		Fetched:              s.Fetched,
		Resolved:             s.Resolved,
		NewClients:           s.NewClients,
		AppointmentsUpserted: s.AppointmentsUpserted,
		Skipped:              s.Skipped,
		Invalid:              s.Invalid,
		RevenuePreserved:     s.RevenuePreserved,
		PeriodsCompleted:     s.PeriodsCompleted,
		PeriodsFailed:        s.PeriodsFailed,
		RevenueCents:         s.RevenueCents,
		TipCents:             s.TipCents,
		Duration:             s.Duration,
	}
}
