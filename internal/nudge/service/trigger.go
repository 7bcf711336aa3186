package service

import (
	"context"
	"log/slog"

	"retention_backend/internal/events"
	"retention_backend/platform/apperr"
	"retention_backend/platform/config"
	"retention_backend/platform/logger"

	"github.com/google/uuid"
)

// Availability is the weekly capacity reported by the calendar side.
type Availability struct {
	OpenSlots           int    `json:"openSlots" validate:"gte=0"`
	RevenuePerSlotCents *int64 `json:"revenuePerSlotCents,omitempty" validate:"omitempty,gte=0"`
}

// Decision records what one evaluation did.
type Decision struct {
	OwnerID   uuid.UUID `json:"ownerId"`
	OpenSlots int       `json:"openSlots"`
	Triggered bool      `json:"triggered"`
	Limit     int       `json:"limit"`

	// EstimatedRevenueCents is the revenue of filling every open slot, when
	// a per-slot figure was supplied.
	EstimatedRevenueCents *int64          `json:"estimatedRevenueCents,omitempty"`
	Selection             SelectionResult `json:"selection"`
}

// Trigger decides whether a week has enough open capacity to warrant
// outreach and, if so, how many clients to select.
type Trigger struct {
	selector *Service
	bus      events.Bus
	cfg      config.NudgeConfig
	log      *logger.Logger
}

// NewTrigger creates a trigger publishing selections on bus.
func NewTrigger(selector *Service, bus events.Bus, cfg config.NudgeConfig, log *logger.Logger) *Trigger {
	return &Trigger{selector: selector, bus: bus, cfg: cfg, log: log}
}

// Limit is the number of clients to contact for openSlots free slots, or
// zero below the configured minimum.
func (t *Trigger) Limit(openSlots int) int {
	if openSlots <= 0 || openSlots < t.cfg.GetNudgeMinOpenSlots() {
		return 0
	}
	limit := openSlots * max(t.cfg.GetNudgeClientsPerSlot(), 1)
	if maxPerRun := t.cfg.GetNudgeMaxPerRun(); maxPerRun > 0 && limit > maxPerRun {
		limit = maxPerRun
	}
	return limit
}

// Evaluate selects and publishes candidates for one owner.
func (t *Trigger) Evaluate(ctx context.Context, ownerID uuid.UUID, availability Availability) (Decision, error) {
	if ownerID == uuid.Nil {
		return Decision{}, apperr.PermanentInput("owner scope is required", nil).WithOp("nudge.Evaluate")
	}

	decision := Decision{
		OwnerID:   ownerID,
		OpenSlots: availability.OpenSlots,
		Limit:     t.Limit(availability.OpenSlots),
		Selection: SelectionResult{},
	}
	if availability.RevenuePerSlotCents != nil {
		estimate := int64(availability.OpenSlots) * *availability.RevenuePerSlotCents
		decision.EstimatedRevenueCents = &estimate
	}

	log := t.log.WithOwnerID(ownerID.String())
	if decision.Limit == 0 {
		log.Info("nudge not triggered", slog.Int("open_slots", availability.OpenSlots))
		return decision, nil
	}

	decision.Selection = t.selector.SelectClients(ctx, ownerID, decision.Limit)
	decision.Triggered = len(decision.Selection.Clients) > 0
	if !decision.Triggered {
		return decision, nil
	}

	recipients := make([]events.NudgeRecipient, 0, len(decision.Selection.Clients))
	for _, c := range decision.Selection.Clients {
		r := events.NudgeRecipient{
			ClientID:     c.ClientID.String(),
			DisplayName:  c.DisplayName(),
			Phone:        c.PhoneNormalized,
			Score:        c.Score,
			DaysOverdue:  c.DaysOverdue,
			VisitingType: string(c.VisitingType),
		}
		if c.FirstName != nil {
			r.FirstName = *c.FirstName
		}
		recipients = append(recipients, r)
	}

	if t.bus != nil {
		t.bus.Publish(ctx, events.NudgeCandidatesSelected{
			BaseEvent:             events.NewBaseEvent(),
			OwnerID:               ownerID,
			OpenSlots:             availability.OpenSlots,
			Limit:                 decision.Limit,
			TotalAvailableClients: decision.Selection.TotalAvailableClients,
			Recipients:            recipients,
		})
	}
	return decision, nil
}
