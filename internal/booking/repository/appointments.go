package repository

import (
	"context"
	"fmt"

	"retention_backend/internal/booking/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func scanAppointment(row pgx.Row) (domain.Appointment, error) {
	var a domain.Appointment
	err := row.Scan(
		&a.OwnerID, &a.ExternalID, &a.ClientID, &a.Date, &a.Datetime, &a.ServiceType,
		&a.RevenueCents, &a.TipCents, &a.SyncedRevenueCents, &a.SyncedTipCents, &a.Notes, &a.ReferralSource, &a.BookedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// AppointmentsByExternalIDs returns the persisted rows for the given ids.
// Ids without a row are absent from the map.
func (r *Repository) AppointmentsByExternalIDs(ctx context.Context, ownerID uuid.UUID, externalIDs []string) (map[string]domain.Appointment, error) {
	existing := make(map[string]domain.Appointment, len(externalIDs))
	if len(externalIDs) == 0 {
		return existing, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1 AND external_id = ANY($2)`, ownerID, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		existing[a.ExternalID] = a
	}
	return existing, rows.Err()
}

// AppointmentsForClients returns the full history of each client, oldest first.
func (r *Repository) AppointmentsForClients(ctx context.Context, ownerID uuid.UUID, clientIDs []uuid.UUID) (map[uuid.UUID][]domain.Appointment, error) {
	history := make(map[uuid.UUID][]domain.Appointment, len(clientIDs))
	if len(clientIDs) == 0 {
		return history, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1 AND client_id = ANY($2::uuid[])
		ORDER BY appointment_date, datetime, external_id`, ownerID, clientIDs)
	if err != nil {
		return nil, fmt.Errorf("load client history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		history[a.ClientID] = append(history[a.ClientID], a)
	}
	return history, rows.Err()
}

// UpsertAppointments inserts or updates rows keyed by (owner, external id).
// The caller decides revenue and tip; synced_* always records the source values.
func (r *Repository) UpsertAppointments(ctx context.Context, ownerID uuid.UUID, rows []domain.Appointment) (UpsertCounts, error) {
	var counts UpsertCounts
	if len(rows) == 0 {
		return counts, nil
	}

	batch := &pgx.Batch{}
	for _, a := range rows {
		batch.Queue(`
			INSERT INTO appointments (
				owner_id, external_id, client_id, appointment_date, datetime, service_type,
				revenue_cents, tip_cents, synced_revenue_cents, synced_tip_cents,
				notes, referral_source, booked_at
			) VALUES ($1, $2, $3, $4::text::date, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (owner_id, external_id) DO UPDATE SET
				client_id = EXCLUDED.client_id,
				appointment_date = EXCLUDED.appointment_date,
				datetime = EXCLUDED.datetime,
				service_type = EXCLUDED.service_type,
				revenue_cents = EXCLUDED.revenue_cents,
				tip_cents = EXCLUDED.tip_cents,
				synced_revenue_cents = EXCLUDED.synced_revenue_cents,
				synced_tip_cents = EXCLUDED.synced_tip_cents,
				notes = EXCLUDED.notes,
				referral_source = EXCLUDED.referral_source,
				booked_at = EXCLUDED.booked_at,
				updated_at = now()
			RETURNING (xmax = 0)`,
			ownerID, a.ExternalID, a.ClientID, a.Date, a.Datetime, a.ServiceType,
			a.RevenueCents, a.TipCents, a.SyncedRevenueCents, a.SyncedTipCents,
			a.Notes, a.ReferralSource, a.BookedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range rows {
		var inserted bool
		if err := results.QueryRow().Scan(&inserted); err != nil {
			return counts, fmt.Errorf("upsert appointment %s: %w", rows[i].ExternalID, err)
		}
		if inserted {
			counts.Inserted++
		} else {
			counts.Updated++
		}
	}
	return counts, nil
}
