package repository

import (
	"context"
	"errors"
	"fmt"

	"retention_backend/internal/booking/domain"
	"retention_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const integrationNotFoundMsg = "booking integration not found"

// GetIntegration returns the owner's connection to platform.
func (r *Repository) GetIntegration(ctx context.Context, ownerID uuid.UUID, platform domain.Platform) (domain.Integration, error) {
	var (
		in domain.Integration
		p  string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT owner_id, platform, access_token, account_ref, active, created_at, updated_at
		FROM booking_integrations
		WHERE owner_id = $1 AND platform = $2`, ownerID, string(platform),
	).Scan(&in.OwnerID, &p, &in.AccessToken, &in.AccountRef, &in.Active, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return in, apperr.NotFound(integrationNotFoundMsg)
	}
	if err != nil {
		return in, fmt.Errorf("get integration: %w", err)
	}
	in.Platform = domain.Platform(p)
	return in, nil
}

// ListActiveIntegrations returns every active connection across owners.
func (r *Repository) ListActiveIntegrations(ctx context.Context) ([]domain.Integration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT owner_id, platform, access_token, account_ref, active, created_at, updated_at
		FROM booking_integrations
		WHERE active
		ORDER BY owner_id, platform`)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Integration, 0)
	for rows.Next() {
		var (
			in domain.Integration
			p  string
		)
		if err := rows.Scan(&in.OwnerID, &p, &in.AccessToken, &in.AccountRef, &in.Active, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		in.Platform = domain.Platform(p)
		out = append(out, in)
	}
	return out, rows.Err()
}

// SaveIntegration inserts or replaces a connection.
func (r *Repository) SaveIntegration(ctx context.Context, in domain.Integration) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO booking_integrations (owner_id, platform, access_token, account_ref, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, platform) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			account_ref = EXCLUDED.account_ref,
			active = EXCLUDED.active,
			updated_at = now()`,
		in.OwnerID, string(in.Platform), in.AccessToken, in.AccountRef, in.Active)
	if err != nil {
		return fmt.Errorf("save integration: %w", err)
	}
	return nil
}
