package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/shared/visiting"
	"retention_backend/platform/apperr"

	"github.com/google/uuid"
)

type periodKey struct {
	owner    uuid.UUID
	platform domain.Platform
	period   domain.Period
}

type integrationKey struct {
	owner    uuid.UUID
	platform domain.Platform
}

// Memory is an in-process Store with the same upsert semantics as Repository.
type Memory struct {
	mu           sync.Mutex
	clients      map[uuid.UUID]map[uuid.UUID]domain.Client
	clientOrder  map[uuid.UUID][]uuid.UUID
	appointments map[uuid.UUID]map[string]domain.Appointment
	periods      map[periodKey]domain.PeriodStatus
	integrations map[integrationKey]domain.Integration

	listClientsErr error
	upsertErr      error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		clients:      make(map[uuid.UUID]map[uuid.UUID]domain.Client),
		clientOrder:  make(map[uuid.UUID][]uuid.UUID),
		appointments: make(map[uuid.UUID]map[string]domain.Appointment),
		periods:      make(map[periodKey]domain.PeriodStatus),
		integrations: make(map[integrationKey]domain.Integration),
	}
}

var _ Store = (*Memory)(nil)

// FailListClients makes ListClients return err until cleared with nil.
func (m *Memory) FailListClients(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listClientsErr = err
}

// FailAppointmentUpserts makes UpsertAppointments return err until cleared with nil.
func (m *Memory) FailAppointmentUpserts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

func (m *Memory) ListClients(_ context.Context, ownerID uuid.UUID) ([]domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listClientsErr != nil {
		return nil, m.listClientsErr
	}
	return m.clientsLocked(ownerID), nil
}

func (m *Memory) clientsLocked(ownerID uuid.UUID) []domain.Client {
	out := make([]domain.Client, 0, len(m.clientOrder[ownerID]))
	for _, id := range m.clientOrder[ownerID] {
		out = append(out, m.clients[ownerID][id])
	}
	return out
}

// Clients returns the owner's clients in creation order.
func (m *Memory) Clients(ownerID uuid.UUID) []domain.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientsLocked(ownerID)
}

// Client returns one client.
func (m *Memory) Client(ownerID, clientID uuid.UUID) (domain.Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[ownerID][clientID]
	return c, ok
}

// PutClient stores a client as-is, e.g. to seed a test.
func (m *Memory) PutClient(c domain.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putClientLocked(c.OwnerID, c)
}

func (m *Memory) putClientLocked(ownerID uuid.UUID, c domain.Client) {
	byID, ok := m.clients[ownerID]
	if !ok {
		byID = make(map[uuid.UUID]domain.Client)
		m.clients[ownerID] = byID
	}
	if _, exists := byID[c.ID]; !exists {
		m.clientOrder[ownerID] = append(m.clientOrder[ownerID], c.ID)
	}
	byID[c.ID] = c
}

func (m *Memory) UpsertClients(_ context.Context, ownerID uuid.UUID, clients []domain.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, incoming := range clients {
		row, exists := m.clients[ownerID][incoming.ID]
		if !exists {
			row = domain.Client{
				ID:           incoming.ID,
				OwnerID:      ownerID,
				VisitingType: visiting.Unknown,
				CreatedAt:    now,
			}
		}
		row.Email = incoming.Email
		row.PhoneNormalized = incoming.PhoneNormalized
		row.FirstName = incoming.FirstName
		row.LastName = incoming.LastName
		row.FirstAppt = incoming.FirstAppt
		row.SecondAppt = incoming.SecondAppt
		row.LastAppt = incoming.LastAppt
		row.FirstSource = incoming.FirstSource
		row.UpdatedAt = now
		m.putClientLocked(ownerID, row)
	}
	return nil
}

func (m *Memory) ReplaceAggregates(_ context.Context, ownerID uuid.UUID, aggregates []domain.ClientAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, agg := range aggregates {
		row, ok := m.clients[ownerID][agg.ClientID]
		if !ok {
			continue
		}
		row.FirstAppt = agg.FirstAppt
		row.SecondAppt = agg.SecondAppt
		row.LastAppt = agg.LastAppt
		row.FirstSource = agg.FirstSource
		row.TotalAppointments = agg.TotalAppointments
		row.TotalTipsCents = agg.TotalTipsCents
		row.AvgWeeklyVisits = agg.AvgWeeklyVisits
		if !row.VisitingTypeLocked {
			row.VisitingType = agg.VisitingType
		}
		row.UpdatedAt = time.Now().UTC()
		m.clients[ownerID][agg.ClientID] = row
	}
	return nil
}

func (m *Memory) AppointmentsByExternalIDs(_ context.Context, ownerID uuid.UUID, externalIDs []string) (map[string]domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.Appointment, len(externalIDs))
	for _, id := range externalIDs {
		if a, ok := m.appointments[ownerID][id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m *Memory) AppointmentsForClients(_ context.Context, ownerID uuid.UUID, clientIDs []uuid.UUID) (map[uuid.UUID][]domain.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[uuid.UUID]struct{}, len(clientIDs))
	for _, id := range clientIDs {
		wanted[id] = struct{}{}
	}

	out := make(map[uuid.UUID][]domain.Appointment, len(clientIDs))
	for _, a := range m.appointments[ownerID] {
		if _, ok := wanted[a.ClientID]; ok {
			out[a.ClientID] = append(out[a.ClientID], a)
		}
	}
	for id := range out {
		history := out[id]
		sort.Slice(history, func(i, j int) bool {
			if history[i].Date != history[j].Date {
				return history[i].Date < history[j].Date
			}
			if !history[i].Datetime.Equal(history[j].Datetime) {
				return history[i].Datetime.Before(history[j].Datetime)
			}
			return history[i].ExternalID < history[j].ExternalID
		})
	}
	return out, nil
}

func (m *Memory) UpsertAppointments(_ context.Context, ownerID uuid.UUID, rows []domain.Appointment) (UpsertCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var counts UpsertCounts
	if m.upsertErr != nil {
		return counts, m.upsertErr
	}

	byID, ok := m.appointments[ownerID]
	if !ok {
		byID = make(map[string]domain.Appointment)
		m.appointments[ownerID] = byID
	}

	now := time.Now().UTC()
	for _, row := range rows {
		row.OwnerID = ownerID
		if existing, exists := byID[row.ExternalID]; exists {
			row.CreatedAt = existing.CreatedAt
			counts.Updated++
		} else {
			row.CreatedAt = now
			counts.Inserted++
		}
		row.UpdatedAt = now
		byID[row.ExternalID] = row
	}
	return counts, nil
}

// Appointments returns every appointment of the owner ordered by external id.
func (m *Memory) Appointments(ownerID uuid.UUID) []domain.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Appointment, 0, len(m.appointments[ownerID]))
	for _, a := range m.appointments[ownerID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

// EditAppointment changes live revenue and tip without touching the synced
// values, the way a dashboard correction does.
func (m *Memory) EditAppointment(ownerID uuid.UUID, externalID string, revenueCents, tipCents int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[ownerID][externalID]
	if !ok {
		return false
	}
	a.RevenueCents = revenueCents
	a.TipCents = tipCents
	m.appointments[ownerID][externalID] = a
	return true
}

func (m *Memory) EnsurePeriod(_ context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, priority bool) (domain.PeriodStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := periodKey{ownerID, platform, period}
	s, ok := m.periods[key]
	if !ok {
		s = domain.PeriodStatus{
			OwnerID:  ownerID,
			Platform: platform,
			Period:   period,
			Status:   domain.SyncPending,
		}
	}
	s.Priority = priority
	s.UpdatedAt = time.Now().UTC()
	m.periods[key] = s
	return s, nil
}

func (m *Memory) updatePeriod(ownerID uuid.UUID, platform domain.Platform, period domain.Period, fn func(*domain.PeriodStatus)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := periodKey{ownerID, platform, period}
	s, ok := m.periods[key]
	if !ok {
		return apperr.NotFound("sync period not found")
	}
	fn(&s)
	s.UpdatedAt = time.Now().UTC()
	m.periods[key] = s
	return nil
}

func (m *Memory) MarkProcessing(_ context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period) error {
	return m.updatePeriod(ownerID, platform, period, func(s *domain.PeriodStatus) {
		now := time.Now().UTC()
		s.Status = domain.SyncProcessing
		s.StartedAt = &now
		s.CompletedAt = nil
	})
}

func (m *Memory) MarkRetrying(_ context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, reason string) error {
	return m.updatePeriod(ownerID, platform, period, func(s *domain.PeriodStatus) {
		s.Status = domain.SyncRetrying
		s.RetryCount++
		s.LastError = &reason
	})
}

func (m *Memory) MarkCompleted(_ context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, counts domain.PeriodCounts) error {
	return m.updatePeriod(ownerID, platform, period, func(s *domain.PeriodStatus) {
		now := time.Now().UTC()
		s.Status = domain.SyncCompleted
		s.LastError = nil
		s.Fetched = counts.Fetched
		s.Upserted = counts.Upserted
		s.Skipped = counts.Skipped
		s.CompletedAt = &now
	})
}

func (m *Memory) MarkFailed(_ context.Context, ownerID uuid.UUID, platform domain.Platform, period domain.Period, reason string) error {
	return m.updatePeriod(ownerID, platform, period, func(s *domain.PeriodStatus) {
		s.Status = domain.SyncFailed
		s.LastError = &reason
	})
}

func (m *Memory) ListPeriods(_ context.Context, ownerID uuid.UUID, platform domain.Platform) ([]domain.PeriodStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.PeriodStatus, 0)
	for key, s := range m.periods {
		if key.owner == ownerID && key.platform == platform {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	return out, nil
}

// SetPeriodStatus forces a period into a state, e.g. to simulate an
// interrupted run.
func (m *Memory) SetPeriodStatus(ownerID uuid.UUID, platform domain.Platform, period domain.Period, status domain.SyncStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := periodKey{ownerID, platform, period}
	s := m.periods[key]
	s.OwnerID, s.Platform, s.Period, s.Status = ownerID, platform, period, status
	m.periods[key] = s
}

func (m *Memory) GetIntegration(_ context.Context, ownerID uuid.UUID, platform domain.Platform) (domain.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	in, ok := m.integrations[integrationKey{ownerID, platform}]
	if !ok {
		return domain.Integration{}, apperr.NotFound(integrationNotFoundMsg)
	}
	return in, nil
}

func (m *Memory) ListActiveIntegrations(_ context.Context) ([]domain.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Integration, 0, len(m.integrations))
	for _, in := range m.integrations {
		if in.Active {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID.String() < out[j].OwnerID.String()
		}
		return out[i].Platform < out[j].Platform
	})
	return out, nil
}

func (m *Memory) SaveIntegration(_ context.Context, in domain.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := integrationKey{in.OwnerID, in.Platform}
	if existing, ok := m.integrations[key]; ok {
		in.CreatedAt = existing.CreatedAt
	} else {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	m.integrations[key] = in
	return nil
}
