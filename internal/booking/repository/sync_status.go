package repository

import (
	"context"
	"fmt"

	"retention_backend/internal/booking/domain"
	"retention_backend/platform/apperr"

	"github.com/google/uuid"
)

// EnsurePeriod creates a pending row if none exists and returns the current state.
func (r *Repository) EnsurePeriod(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, priority bool) (domain.PeriodStatus, error) {
	var s domain.PeriodStatus
	var status, p, per string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sync_status (owner_id, platform, period, priority)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id, platform, period) DO UPDATE SET priority = EXCLUDED.priority
		RETURNING owner_id, platform, period, status, priority, retry_count, last_error,
			fetched, upserted, skipped, started_at, completed_at, updated_at`,
		ownerID, string(platform), string(period), priority,
	).Scan(&s.OwnerID, &p, &per, &status, &s.Priority, &s.RetryCount, &s.LastError,
		&s.Fetched, &s.Upserted, &s.Skipped, &s.StartedAt, &s.CompletedAt, &s.UpdatedAt)
	if err != nil {
		return s, fmt.Errorf("ensure sync period %s: %w", period, err)
	}
	s.Platform = domain.Platform(p)
	s.Period = domain.Period(per)
	s.Status = domain.SyncStatus(status)
	return s, nil
}

func (r *Repository) setStatus(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("sync period not found")
	}
	return nil
}

// MarkProcessing moves the period to processing and stamps started_at.
func (r *Repository) MarkProcessing(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period) error {
	err := r.setStatus(ctx, `
		UPDATE sync_status SET status = 'processing', started_at = now(), completed_at = NULL, updated_at = now()
		WHERE owner_id = $1 AND platform = $2 AND period = $3`,
		ownerID, string(platform), string(period))
	if err != nil {
		return fmt.Errorf("mark %s processing: %w", period, err)
	}
	return nil
}

// MarkRetrying records a transient failure and bumps the retry counter.
func (r *Repository) MarkRetrying(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, reason string) error {
	err := r.setStatus(ctx, `
		UPDATE sync_status SET status = 'retrying', retry_count = retry_count + 1, last_error = $4, updated_at = now()
		WHERE owner_id = $1 AND platform = $2 AND period = $3`,
		ownerID, string(platform), string(period), reason)
	if err != nil {
		return fmt.Errorf("mark %s retrying: %w", period, err)
	}
	return nil
}

// MarkCompleted records the period's counts.
func (r *Repository) MarkCompleted(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, counts domain.PeriodCounts) error {
	err := r.setStatus(ctx, `
		UPDATE sync_status SET status = 'completed', last_error = NULL,
			fetched = $4, upserted = $5, skipped = $6, completed_at = now(), updated_at = now()
		WHERE owner_id = $1 AND platform = $2 AND period = $3`,
		ownerID, string(platform), string(period), counts.Fetched, counts.Upserted, counts.Skipped)
	if err != nil {
		return fmt.Errorf("mark %s completed: %w", period, err)
	}
	return nil
}

// MarkFailed parks the period until an explicit retry.
func (r *Repository) MarkFailed(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, reason string) error {
	err := r.setStatus(ctx, `
		UPDATE sync_status SET status = 'failed', last_error = $4, updated_at = now()
		WHERE owner_id = $1 AND platform = $2 AND period = $3`,
		ownerID, string(platform), string(period), reason)
	if err != nil {
		return fmt.Errorf("mark %s failed: %w", period, err)
	}
	return nil
}

// ListPeriods returns every tracked period, newest first.
func (r *Repository) ListPeriods(ctx context.Context, ownerID uuid.UUID, platform domain.Platform) ([]domain.PeriodStatus, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT owner_id, platform, period, status, priority, retry_count, last_error,
			fetched, upserted, skipped, started_at, completed_at, updated_at
		FROM sync_status
		WHERE owner_id = $1 AND platform = $2
		ORDER BY period DESC`, ownerID, string(platform))
	if err != nil {
		return nil, fmt.Errorf("list sync periods: %w", err)
	}
	defer rows.Close()

	periods := make([]domain.PeriodStatus, 0)
	for rows.Next() {
		var s domain.PeriodStatus
		var status, p, per string
		if err := rows.Scan(&s.OwnerID, &p, &per, &status, &s.Priority, &s.RetryCount, &s.LastError,
			&s.Fetched, &s.Upserted, &s.Skipped, &s.StartedAt, &s.CompletedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sync period: %w", err)
		}
		s.Platform = domain.Platform(p)
		s.Period = domain.Period(per)
		s.Status = domain.SyncStatus(status)
		periods = append(periods, s)
	}
	return periods, rows.Err()
}
