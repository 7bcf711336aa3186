package repository

import (
	"context"

	"retention_backend/internal/booking/domain"

	"github.com/google/uuid"
)

// ClientReader loads the client identities the resolver matches against.
type ClientReader interface {
	ListClients(ctx context.Context, ownerID uuid.UUID) ([]domain.Client, error)
}

// ClientWriter persists resolved identities. Rows are keyed by (owner, id).
type ClientWriter interface {
	UpsertClients(ctx context.Context, ownerID uuid.UUID, clients []domain.Client) error
}

// AppointmentReader reads persisted appointment rows.
type AppointmentReader interface {
	AppointmentsByExternalIDs(ctx context.Context, ownerID uuid.UUID, externalIDs []string) (map[string]domain.Appointment, error)
	AppointmentsForClients(ctx context.Context, ownerID uuid.UUID, clientIDs []uuid.UUID) (map[uuid.UUID][]domain.Appointment, error)
}

// UpsertCounts splits an appointment upsert into new and existing rows.
type UpsertCounts struct {
	Inserted int
	Updated  int
}

// AppointmentWriter upserts appointment rows keyed by (owner, external id).
type AppointmentWriter interface {
	UpsertAppointments(ctx context.Context, ownerID uuid.UUID, rows []domain.Appointment) (UpsertCounts, error)
}

// AggregateWriter replaces derived client fields. A locked visiting type is
// left untouched.
type AggregateWriter interface {
	ReplaceAggregates(ctx context.Context, ownerID uuid.UUID, aggregates []domain.ClientAggregate) error
}

// SyncStatusStore tracks per-period sync progress.
type SyncStatusStore interface {
	EnsurePeriod(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, priority bool) (domain.PeriodStatus, error)
	MarkProcessing(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period) error
	MarkRetrying(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, reason string) error
	MarkCompleted(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, counts domain.PeriodCounts) error
	MarkFailed(ctx context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, reason string) error
	ListPeriods(ctx context.Context, ownerID uuid.UUID, platform domain.Platform) ([]domain.PeriodStatus, error)
}

// IntegrationStore holds owner platform connections.
type IntegrationStore interface {
	GetIntegration(ctx context.Context, ownerID uuid.UUID, platform domain.Platform) (domain.Integration, error)
	ListActiveIntegrations(ctx context.Context) ([]domain.Integration, error)
	SaveIntegration(ctx context.Context, integration domain.Integration) error
}

// BookingStore is everything one period's sync touches.
type BookingStore interface {
	ClientReader
	ClientWriter
	AppointmentReader
	AppointmentWriter
	AggregateWriter
}

// Store is the full repository surface.
type Store interface {
	BookingStore
	SyncStatusStore
	IntegrationStore
}
