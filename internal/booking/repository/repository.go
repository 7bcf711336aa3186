// Package repository persists booking clients, appointments, sync progress
// and platform integrations in Postgres. Memory is an in-process equivalent
// used by tests and dry runs.
package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides database operations for booking sync.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new booking repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// Money is stored as cents except the client tip total, which is a
// NUMERIC(5,2) dollar column.
const (
	clientColumns = `
		id, owner_id, email, phone_normalized, first_name, last_name,
		to_char(first_appt, 'YYYY-MM-DD'), to_char(second_appt, 'YYYY-MM-DD'), to_char(last_appt, 'YYYY-MM-DD'),
		first_source, total_appointments, (total_tips_all_time * 100)::bigint,
		avg_weekly_visits, visiting_type, visiting_type_locked, sms_opted_out, last_messaged_at,
		created_at, updated_at`

	appointmentColumns = `
		owner_id, external_id, client_id, to_char(appointment_date, 'YYYY-MM-DD'), datetime, service_type,
		revenue_cents, tip_cents, synced_revenue_cents, synced_tip_cents, notes, referral_source, booked_at,
		created_at, updated_at`
)
