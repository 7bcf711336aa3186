// Package repository reads the client aggregate table for nudge selection.
package repository

import (
	"context"
	"fmt"
	"time"

	"retention_backend/internal/nudge/holidays"
	"retention_backend/internal/nudge/scoring"
	"retention_backend/internal/shared/visiting"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CandidateQuery narrows a phase's pool in the database. Scoring re-checks
// every condition, so a store may return a superset.
type CandidateQuery struct {
	LastApptFrom   time.Time
	LastApptTo     time.Time
	MessagedBefore time.Time
}

// Reader is what the selection service needs from storage.
type Reader interface {
	Candidates(ctx context.Context, ownerID uuid.UUID, q CandidateQuery) ([]scoring.Candidate, error)
	// HolidayActivity returns the clients among clientIDs with an appointment
	// dated, or booked, inside any of the windows.
	HolidayActivity(ctx context.Context, ownerID uuid.UUID, clientIDs []uuid.UUID, windows []holidays.Window) (map[uuid.UUID]struct{}, error)
}

// Repository implements Reader on Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a nudge repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Reader = (*Repository)(nil)

const dateLayout = "2006-01-02"

// Candidates returns reachable clients whose last visit falls in the query
// range and who were not messaged since MessagedBefore.
func (r *Repository) Candidates(ctx context.Context, ownerID uuid.UUID, q CandidateQuery) ([]scoring.Candidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, first_name, last_name, phone_normalized, to_char(last_appt, 'YYYY-MM-DD'),
			avg_weekly_visits, visiting_type, total_appointments, sms_opted_out, last_messaged_at
		FROM clients
		WHERE owner_id = $1
			AND phone_normalized IS NOT NULL
			AND last_appt IS NOT NULL
			AND last_appt BETWEEN $2::text::date AND $3::text::date
			AND total_appointments >= 1
			AND NOT sms_opted_out
			AND (last_messaged_at IS NULL OR last_messaged_at < $4)
		ORDER BY last_appt DESC, id`,
		ownerID, q.LastApptFrom.Format(dateLayout), q.LastApptTo.Format(dateLayout), q.MessagedBefore)
	if err != nil {
		return nil, fmt.Errorf("query nudge candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]scoring.Candidate, 0)
	for rows.Next() {
		var (
			c            scoring.Candidate
			visitingType string
		)
		if err := rows.Scan(
			&c.ClientID, &c.FirstName, &c.LastName, &c.PhoneNormalized, &c.LastAppt,
			&c.AvgWeeklyVisits, &visitingType, &c.TotalAppointments, &c.SMSOptedOut, &c.LastMessagedAt,
		); err != nil {
			return nil, fmt.Errorf("scan nudge candidate: %w", err)
		}
		c.VisitingType = visiting.Parse(visitingType)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nudge candidates: %w", err)
	}
	return candidates, nil
}

// HolidayActivity runs one query per window in a single batch.
func (r *Repository) HolidayActivity(ctx context.Context, ownerID uuid.UUID, clientIDs []uuid.UUID, windows []holidays.Window) (map[uuid.UUID]struct{}, error) {
	active := make(map[uuid.UUID]struct{})
	if len(clientIDs) == 0 || len(windows) == 0 {
		return active, nil
	}

	batch := &pgx.Batch{}
	for _, w := range windows {
		start := w.Start.Format(dateLayout)
		end := w.End.Format(dateLayout)
		batch.Queue(`
			SELECT DISTINCT client_id
			FROM appointments
			WHERE owner_id = $1
				AND client_id = ANY($2::uuid[])
				AND (
					appointment_date BETWEEN $3::text::date AND $4::text::date
					OR (booked_at IS NOT NULL AND booked_at::date BETWEEN $3::text::date AND $4::text::date)
				)`,
			ownerID, clientIDs, start, end)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for _, w := range windows {
		rows, err := results.Query()
		if err != nil {
			return nil, fmt.Errorf("holiday activity %s: %w", w.Name, err)
		}
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan holiday activity: %w", err)
			}
			active[id] = struct{}{}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate holiday activity: %w", err)
		}
	}
	return active, nil
}
