// Package aggregates derives each client's first, second and last visit,
// lifetime totals and visiting pattern from the full persisted appointment
// history. Results always replace what is stored.
package aggregates

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/repository"
	"retention_backend/internal/shared/visiting"
	"retention_backend/platform/apperr"
	"retention_backend/platform/logger"

	"github.com/google/uuid"
)

// MaxTipsCents is the largest tip total the clients table can hold.
const MaxTipsCents int64 = 99999

// Visiting-pattern thresholds in days.
const (
	newClientWindowDays = 60
	consistentGapDays   = 21
	semiGapDays         = 42
	easyGoingGapDays    = 70
)

// chunkSize bounds the number of clients recomputed per history query.
const chunkSize = 500

// Compute derives the aggregate for one client. appts may be in any order.
func Compute(clientID uuid.UUID, appts []domain.Appointment, asOf time.Time) domain.ClientAggregate {
	agg := domain.ClientAggregate{
		ClientID:          clientID,
		TotalAppointments: len(appts),
		VisitingType:      visiting.Unknown,
	}
	if len(appts) == 0 {
		return agg
	}

	ordered := make([]domain.Appointment, len(appts))
	copy(ordered, appts)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Date != ordered[j].Date {
			return ordered[i].Date < ordered[j].Date
		}
		return ordered[i].Datetime.Before(ordered[j].Datetime)
	})

	days := domain.DaySet{}
	var tips int64
	for i := range ordered {
		a := ordered[i]
		days.Add(&a.Date)
		tips += a.TipCents
		if agg.FirstSource == nil {
			agg.FirstSource = domain.NonBlank(a.ReferralSource)
		}
	}

	agg.TotalTipsCents = min(tips, MaxTipsCents)
	agg.FirstAppt, agg.SecondAppt, agg.LastAppt = days.Markers()
	agg.AvgWeeklyVisits, agg.VisitingType = classify(len(days), agg.FirstAppt, agg.LastAppt, asOf)
	return agg
}

func classify(distinctDays int, first, last *string, asOf time.Time) (*float64, visiting.Type) {
	if first == nil || last == nil {
		return nil, visiting.Unknown
	}
	firstDay, err := domain.ParseDate(*first)
	if err != nil {
		return nil, visiting.Unknown
	}
	lastDay, err := domain.ParseDate(*last)
	if err != nil {
		return nil, visiting.Unknown
	}

	if distinctDays == 1 {
		if domain.DaysBetween(lastDay, asOf) <= newClientWindowDays {
			return nil, visiting.New
		}
		return nil, visiting.Rare
	}

	span := domain.DaysBetween(firstDay, lastDay)
	if span <= 0 {
		return nil, visiting.Unknown
	}
	weekly := 7 * float64(distinctDays-1) / float64(span)
	gap := float64(span) / float64(distinctDays-1)

	switch {
	case gap <= consistentGapDays:
		return &weekly, visiting.Consistent
	case gap <= semiGapDays:
		return &weekly, visiting.SemiConsistent
	case gap <= easyGoingGapDays:
		return &weekly, visiting.EasyGoing
	default:
		return &weekly, visiting.Rare
	}
}

// Store is the persistence the maintainer needs.
type Store interface {
	repository.AppointmentReader
	repository.AggregateWriter
}

// Maintainer recomputes and stores client aggregates.
type Maintainer struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

// NewMaintainer creates a maintainer backed by store.
func NewMaintainer(store Store, log *logger.Logger) *Maintainer {
	return &Maintainer{store: store, log: log, now: time.Now}
}

// Recompute rebuilds the aggregates of clientIDs from their full history and
// returns how many clients were written.
func (m *Maintainer) Recompute(ctx context.Context, ownerID uuid.UUID, clientIDs []uuid.UUID) (int, error) {
	asOf := m.now().UTC()
	written := 0

	for start := 0; start < len(clientIDs); start += chunkSize {
		end := min(start+chunkSize, len(clientIDs))
		chunk := clientIDs[start:end]

		history, err := m.store.AppointmentsForClients(ctx, ownerID, chunk)
		if err != nil {
			return written, wrap("load client history", err)
		}

		aggs := make([]domain.ClientAggregate, 0, len(chunk))
		for _, id := range chunk {
			aggs = append(aggs, Compute(id, history[id], asOf))
		}
		if err := m.store.ReplaceAggregates(ctx, ownerID, aggs); err != nil {
			return written, wrap("replace aggregates", err)
		}
		written += len(aggs)
	}

	m.log.Debug("aggregates recomputed", slog.String("owner_id", ownerID.String()), slog.Int("clients", written))
	return written, nil
}

func wrap(msg string, err error) error {
	if apperr.IsTransient(err) {
		return apperr.Transient(msg, err).WithOp("aggregates.Recompute")
	}
	return apperr.Persistence(msg, err).WithOp("aggregates.Recompute")
}
