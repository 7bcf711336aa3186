package repository

import (
	"context"
	"fmt"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/shared/visiting"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListClients returns every client the owner has.
func (r *Repository) ListClients(ctx context.Context, ownerID uuid.UUID) ([]domain.Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+clientColumns+` FROM clients WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0)
	for rows.Next() {
		var (
			c            domain.Client
			visitingType string
		)
		if err := rows.Scan(
			&c.ID, &c.OwnerID, &c.Email, &c.PhoneNormalized, &c.FirstName, &c.LastName,
			&c.FirstAppt, &c.SecondAppt, &c.LastAppt,
			&c.FirstSource, &c.TotalAppointments, &c.TotalTipsCents,
			&c.AvgWeeklyVisits, &visitingType, &c.VisitingTypeLocked, &c.SMSOptedOut, &c.LastMessagedAt,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		c.VisitingType = visiting.Parse(visitingType)
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return clients, nil
}

// UpsertClients writes identity and provisional date markers for each client
// in one batch. Aggregates are rewritten afterwards by ReplaceAggregates.
func (r *Repository) UpsertClients(ctx context.Context, ownerID uuid.UUID, clients []domain.Client) error {
	if len(clients) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range clients {
		batch.Queue(`
			INSERT INTO clients (
				owner_id, id, email, phone_normalized, first_name, last_name,
				first_appt, second_appt, last_appt, first_source
			) VALUES ($1, $2, $3, $4, $5, $6, $7::text::date, $8::text::date, $9::text::date, $10)
			ON CONFLICT (owner_id, id) DO UPDATE SET
				email = EXCLUDED.email,
				phone_normalized = EXCLUDED.phone_normalized,
				first_name = EXCLUDED.first_name,
				last_name = EXCLUDED.last_name,
				first_appt = EXCLUDED.first_appt,
				second_appt = EXCLUDED.second_appt,
				last_appt = EXCLUDED.last_appt,
				first_source = EXCLUDED.first_source,
				updated_at = now()`,
			ownerID, c.ID, c.Email, c.PhoneNormalized, c.FirstName, c.LastName,
			c.FirstAppt, c.SecondAppt, c.LastAppt, c.FirstSource,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range clients {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert client %s: %w", clients[i].ID, err)
		}
	}
	return nil
}

// ReplaceAggregates overwrites derived fields with values computed from the
// full appointment history.
func (r *Repository) ReplaceAggregates(ctx context.Context, ownerID uuid.UUID, aggregates []domain.ClientAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, agg := range aggregates {
		batch.Queue(`
			UPDATE clients SET
				first_appt = $3::text::date,
				second_appt = $4::text::date,
				last_appt = $5::text::date,
				first_source = $6,
				total_appointments = $7,
				total_tips_all_time = $8::bigint / 100.0,
				avg_weekly_visits = $9,
				visiting_type = CASE WHEN visiting_type_locked THEN visiting_type ELSE $10 END,
				updated_at = now()
			WHERE owner_id = $1 AND id = $2`,
			ownerID, agg.ClientID, agg.FirstAppt, agg.SecondAppt, agg.LastAppt, agg.FirstSource,
			agg.TotalAppointments, agg.TotalTipsCents, agg.AvgWeeklyVisits, string(agg.VisitingType),
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range aggregates {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("replace aggregates for %s: %w", aggregates[i].ClientID, err)
		}
	}
	return nil
}
