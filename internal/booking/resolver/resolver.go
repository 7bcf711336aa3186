// Package resolver assigns normalized appointments to stable client
// identities. Matching is phone first, then email, then full name, and is
// processed in input order: every resolved appointment registers its keys so
// later appointments in the same batch can match transitively.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/repository"
	"retention_backend/internal/shared/visiting"
	"retention_backend/platform/apperr"
	"retention_backend/platform/logger"
	"retention_backend/platform/validator"

	"github.com/google/uuid"
)

// Resolution is the outcome of one Resolve call. Clients only holds clients
// touched by the batch.
type Resolution struct {
	Clients             map[uuid.UUID]*domain.Client
	AppointmentToClient map[string]uuid.UUID
	NewClientIDs        map[uuid.UUID]struct{}
	// Skipped counts appointments without any usable identity signal.
	Skipped int
	// Invalid counts appointments rejected as malformed (missing id, bad date).
	Invalid int
}

// Resolved is the number of appointments assigned to a client.
func (r Resolution) Resolved() int {
	return len(r.AppointmentToClient)
}

// ClientIDs lists the touched clients.
func (r Resolution) ClientIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.Clients))
	for id := range r.Clients {
		ids = append(ids, id)
	}
	return ids
}

// Resolver matches appointments against an owner's clients.
type Resolver struct {
	clients     repository.ClientReader
	assignments repository.AppointmentReader
	validate    *validator.Validator
	log         *logger.Logger
	newID       func() uuid.UUID
}

// New creates a resolver reading existing clients from store.
func New(clients repository.ClientReader, log *logger.Logger) *Resolver {
	return &Resolver{
		clients:  clients,
		validate: validator.New(),
		log:      log,
		newID:    uuid.New,
	}
}

// WithAssignments makes Resolve keep an already persisted appointment on its
// client while that client still shares a key with the appointment.
func (r *Resolver) WithAssignments(appointments repository.AppointmentReader) *Resolver {
	r.assignments = appointments
	return r
}

type clientState struct {
	client *domain.Client
	days   domain.DaySet

	// Date and time of the newest appointment whose contact details the
	// client currently displays.
	identityDate string
	identityTime time.Time

	// Date of the appointment firstSource was taken from.
	sourceDate string
}

type index struct {
	byPhone map[string]uuid.UUID
	byEmail map[string]uuid.UUID
	byName  map[string]uuid.UUID
}

func newIndex(size int) *index {
	return &index{
		byPhone: make(map[string]uuid.UUID, size),
		byEmail: make(map[string]uuid.UUID, size),
		byName:  make(map[string]uuid.UUID, size),
	}
}

// register adds keys for id. The first client to claim a key keeps it.
func (ix *index) register(keys domain.IdentityKeys, id uuid.UUID) {
	if keys.Phone != nil {
		if _, taken := ix.byPhone[*keys.Phone]; !taken {
			ix.byPhone[*keys.Phone] = id
		}
	}
	if keys.Email != nil {
		if _, taken := ix.byEmail[*keys.Email]; !taken {
			ix.byEmail[*keys.Email] = id
		}
	}
	if keys.HasName() {
		if _, taken := ix.byName[keys.Name]; !taken {
			ix.byName[keys.Name] = id
		}
	}
}

func (ix *index) match(keys domain.IdentityKeys) (uuid.UUID, bool) {
	if keys.Phone != nil {
		if id, ok := ix.byPhone[*keys.Phone]; ok {
			return id, true
		}
	}
	if keys.Email != nil {
		if id, ok := ix.byEmail[*keys.Email]; ok {
			return id, true
		}
	}
	if keys.HasName() {
		if id, ok := ix.byName[keys.Name]; ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

func keysOfClient(c domain.Client) domain.IdentityKeys {
	keys := domain.IdentityKeys{
		Phone: domain.NonBlank(c.PhoneNormalized),
		Email: domain.NormalizeEmail(c.Email),
	}
	if name, ok := domain.NameKey(c.FirstName, c.LastName); ok {
		keys.Name = name
	}
	return keys
}

// Resolve assigns every resolvable appointment to a client. Only failing to
// load the owner's existing clients is returned as an error; bad records are
// counted in the Resolution.
func (r *Resolver) Resolve(ctx context.Context, ownerID uuid.UUID, appts []domain.NormalizedAppointment) (Resolution, error) {
	if ownerID == uuid.Nil {
		return Resolution{}, apperr.PermanentInput("owner scope is required", nil).WithOp("resolver.Resolve")
	}

	existing, err := r.clients.ListClients(ctx, ownerID)
	if err != nil {
		if apperr.IsTransient(err) {
			return Resolution{}, apperr.Transient("load clients", err).WithOp("resolver.Resolve")
		}
		return Resolution{}, apperr.Wrap(apperr.KindInternal, "load clients", err).WithOp("resolver.Resolve")
	}

	ix := newIndex(len(existing))
	known := make(map[uuid.UUID]domain.Client, len(existing))
	for _, c := range existing {
		known[c.ID] = c
		ix.register(keysOfClient(c), c.ID)
	}

	prior, err := r.priorAssignments(ctx, ownerID, appts)
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{
		Clients:             make(map[uuid.UUID]*domain.Client),
		AppointmentToClient: make(map[string]uuid.UUID, len(appts)),
		NewClientIDs:        make(map[uuid.UUID]struct{}),
	}
	states := make(map[uuid.UUID]*clientState)

	for _, appt := range appts {
		if err := r.validate.Struct(appt); err != nil {
			res.Invalid++
			r.log.Debug("invalid appointment", slog.String("external_id", appt.ExternalID), slog.String("error", err.Error()))
			continue
		}

		keys := domain.KeysFor(appt)
		if keys.Empty() {
			res.Skipped++
			continue
		}

		id, matched := keepPrior(prior[appt.ExternalID], keys, states, known)
		if !matched {
			id, matched = ix.match(keys)
		}
		if !matched {
			id = r.newID()
			res.NewClientIDs[id] = struct{}{}
		}

		state, ok := states[id]
		if !ok {
			state = r.openState(ownerID, id, known, matched)
			states[id] = state
			res.Clients[id] = state.client
		}

		state.merge(appt, keys)
		ix.register(keys, id)
		res.AppointmentToClient[appt.ExternalID] = id
	}

	for _, state := range states {
		state.client.FirstAppt, state.client.SecondAppt, state.client.LastAppt = state.days.Markers()
	}

	r.log.Debug("resolve complete",
		slog.String("owner_id", ownerID.String()),
		slog.Int("appointments", len(appts)),
		slog.Int("resolved", res.Resolved()),
		slog.Int("new_clients", len(res.NewClientIDs)),
		slog.Int("skipped", res.Skipped),
		slog.Int("invalid", res.Invalid),
	)
	return res, nil
}

func (r *Resolver) priorAssignments(ctx context.Context, ownerID uuid.UUID, appts []domain.NormalizedAppointment) (map[string]uuid.UUID, error) {
	if r.assignments == nil || len(appts) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(appts))
	for _, a := range appts {
		ids = append(ids, a.ExternalID)
	}
	rows, err := r.assignments.AppointmentsByExternalIDs(ctx, ownerID, ids)
	if err != nil {
		if apperr.IsTransient(err) {
			return nil, apperr.Transient("load prior assignments", err).WithOp("resolver.Resolve")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load prior assignments", err).WithOp("resolver.Resolve")
	}
	prior := make(map[string]uuid.UUID, len(rows))
	for ext, row := range rows {
		prior[ext] = row.ClientID
	}
	return prior, nil
}

// keepPrior reports whether the client an appointment is stored under still
// shares a phone, email or name key with it.
func keepPrior(id uuid.UUID, keys domain.IdentityKeys, states map[uuid.UUID]*clientState, known map[uuid.UUID]domain.Client) (uuid.UUID, bool) {
	if id == uuid.Nil {
		return uuid.Nil, false
	}
	var current domain.Client
	if state, ok := states[id]; ok {
		current = *state.client
	} else if c, ok := known[id]; ok {
		current = c
	} else {
		return uuid.Nil, false
	}
	if sharesKey(keys, keysOfClient(current)) {
		return id, true
	}
	return uuid.Nil, false
}

func sharesKey(a, b domain.IdentityKeys) bool {
	if a.Phone != nil && b.Phone != nil && *a.Phone == *b.Phone {
		return true
	}
	if a.Email != nil && b.Email != nil && *a.Email == *b.Email {
		return true
	}
	return a.HasName() && a.Name == b.Name
}

func (r *Resolver) openState(ownerID, id uuid.UUID, known map[uuid.UUID]domain.Client, matched bool) *clientState {
	state := &clientState{days: domain.DaySet{}}

	if c, ok := known[id]; matched && ok {
		copied := c
		state.client = &copied
		state.days.Add(c.FirstAppt)
		state.days.Add(c.SecondAppt)
		state.days.Add(c.LastAppt)
		if c.LastAppt != nil {
			state.identityDate = *c.LastAppt
		}
		if c.FirstAppt != nil {
			state.sourceDate = *c.FirstAppt
		}
		return state
	}

	state.client = &domain.Client{
		ID:           id,
		OwnerID:      ownerID,
		VisitingType: visiting.Unknown,
	}
	return state
}

func (s *clientState) merge(appt domain.NormalizedAppointment, keys domain.IdentityKeys) {
	c := s.client
	s.days.Add(&appt.Date)

	firstName := domain.NonBlank(appt.FirstName)
	lastName := domain.NonBlank(appt.LastName)

	newest := s.identityDate == "" ||
		appt.Date > s.identityDate ||
		(appt.Date == s.identityDate && !appt.Datetime.Before(s.identityTime))

	if newest {
		c.Email = coalesce(keys.Email, c.Email)
		c.PhoneNormalized = coalesce(keys.Phone, c.PhoneNormalized)
		c.FirstName = coalesce(firstName, c.FirstName)
		c.LastName = coalesce(lastName, c.LastName)
		s.identityDate = appt.Date
		s.identityTime = appt.Datetime
	} else {
		c.Email = coalesce(c.Email, keys.Email)
		c.PhoneNormalized = coalesce(c.PhoneNormalized, keys.Phone)
		c.FirstName = coalesce(c.FirstName, firstName)
		c.LastName = coalesce(c.LastName, lastName)
	}

	if source := domain.NonBlank(appt.ReferralSource); source != nil {
		if c.FirstSource == nil || appt.Date < s.sourceDate {
			c.FirstSource = source
			s.sourceDate = appt.Date
		}
	}
}

func coalesce(preferred, fallback *string) *string {
	if preferred != nil {
		return preferred
	}
	return fallback
}
