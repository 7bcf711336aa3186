// Package reconciler turns resolved appointments into appointment rows and
// upserts them without clobbering revenue or tips a person corrected by hand.
package reconciler

import (
	"context"
	"log/slog"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/repository"
	"retention_backend/internal/booking/resolver"
	"retention_backend/platform/apperr"
	"retention_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence the reconciler needs.
type Store interface {
	repository.AppointmentReader
	repository.AppointmentWriter
}

// Result summarises one Upsert.
type Result struct {
	TotalProcessed   int
	Inserted         int
	Updated          int
	RevenuePreserved int
	Skipped          int
	// RevenueCents and TipCents sum the values actually written.
	RevenueCents int64
	TipCents     int64
	// ReassignedFrom lists clients that previously owned a row this batch
	// moved to a different client. Their aggregates are stale.
	ReassignedFrom []uuid.UUID
}

// Reconciler accumulates rows for one owner and writes them in one batch.
// It is not safe for concurrent use.
type Reconciler struct {
	store   Store
	ownerID uuid.UUID
	log     *logger.Logger

	pending []domain.Appointment
	index   map[string]int
	skipped int
}

// New creates a reconciler scoped to ownerID.
func New(store Store, ownerID uuid.UUID, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		ownerID: ownerID,
		log:     log,
		index:   make(map[string]int),
	}
}

// Process builds rows for every appointment the resolution assigned to a
// client. Unassigned appointments are counted as skipped. A repeated external
// id replaces the earlier row.
func (r *Reconciler) Process(appts []domain.NormalizedAppointment, res resolver.Resolution) {
	for _, a := range appts {
		clientID, ok := res.AppointmentToClient[a.ExternalID]
		if !ok {
			r.skipped++
			continue
		}

		row := domain.Appointment{
			OwnerID:            r.ownerID,
			ExternalID:         a.ExternalID,
			ClientID:           clientID,
			Date:               a.Date,
			Datetime:           a.Datetime,
			ServiceType:        a.ServiceType,
			RevenueCents:       a.PriceCents,
			TipCents:           a.TipCents,
			SyncedRevenueCents: a.PriceCents,
			SyncedTipCents:     a.TipCents,
			Notes:              a.Notes,
			ReferralSource:     domain.NonBlank(a.ReferralSource),
			BookedAt:           a.BookedAt,
		}

		if i, seen := r.index[a.ExternalID]; seen {
			r.pending[i] = row
			continue
		}
		r.index[a.ExternalID] = len(r.pending)
		r.pending = append(r.pending, row)
	}
}

// Pending is the number of rows waiting for Upsert.
func (r *Reconciler) Pending() int {
	return len(r.pending)
}

// Upsert writes the pending rows. Rows whose persisted revenue or tip was
// edited since the last sync, and differ from the incoming source value, keep
// the persisted value. The pending set is cleared on success.
func (r *Reconciler) Upsert(ctx context.Context) (Result, error) {
	result := Result{Skipped: r.skipped}
	if len(r.pending) == 0 {
		r.reset()
		return result, nil
	}

	ids := make([]string, len(r.pending))
	for i, row := range r.pending {
		ids[i] = row.ExternalID
	}

	existing, err := r.store.AppointmentsByExternalIDs(ctx, r.ownerID, ids)
	if err != nil {
		return result, classify("load existing appointments", err)
	}

	rows := make([]domain.Appointment, len(r.pending))
	moved := make(map[uuid.UUID]struct{})
	for i, row := range r.pending {
		prior, ok := existing[row.ExternalID]
		if ok && prior.ClientID != row.ClientID {
			if _, seen := moved[prior.ClientID]; !seen {
				moved[prior.ClientID] = struct{}{}
				result.ReassignedFrom = append(result.ReassignedFrom, prior.ClientID)
			}
		}
		if ok && prior.ManuallyEdited() {
			var kept bool
			row, kept = preserveEdits(prior, row)
			if kept {
				result.RevenuePreserved++
			}
		}
		result.RevenueCents += row.RevenueCents
		result.TipCents += row.TipCents
		rows[i] = row
	}

	counts, err := r.store.UpsertAppointments(ctx, r.ownerID, rows)
	if err != nil {
		return result, classify("upsert appointments", err)
	}

	result.TotalProcessed = len(rows)
	result.Inserted = counts.Inserted
	result.Updated = counts.Updated

	r.log.Debug("appointments reconciled",
		slog.String("owner_id", r.ownerID.String()),
		slog.Int("processed", result.TotalProcessed),
		slog.Int("inserted", result.Inserted),
		slog.Int("updated", result.Updated),
		slog.Int("revenue_preserved", result.RevenuePreserved),
		slog.Int("skipped", result.Skipped),
		slog.Int("reassigned_from", len(result.ReassignedFrom)),
	)

	r.reset()
	return result, nil
}

// preserveEdits keeps each hand-edited money field the incoming sync would
// overwrite. A manual value equal to the source value is indistinguishable
// from a sync and is not counted.
func preserveEdits(prior, incoming domain.Appointment) (domain.Appointment, bool) {
	kept := false
	if prior.RevenueCents != prior.SyncedRevenueCents && prior.RevenueCents != incoming.RevenueCents {
		incoming.RevenueCents = prior.RevenueCents
		kept = true
	}
	if prior.TipCents != prior.SyncedTipCents && prior.TipCents != incoming.TipCents {
		incoming.TipCents = prior.TipCents
		kept = true
	}
	return incoming, kept
}

func (r *Reconciler) reset() {
	r.pending = nil
	r.index = make(map[string]int)
	r.skipped = 0
}

func classify(msg string, err error) error {
	if apperr.IsTransient(err) {
		return apperr.Transient(msg, err).WithOp("reconciler.Upsert")
	}
	return apperr.Persistence(msg, err).WithOp("reconciler.Upsert")
}
