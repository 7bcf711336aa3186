// Package service selects win-back candidates: a strict pass over clients who
// are due for a visit, a lenient fill-in when the strict pool is short, and a
// holiday boost for clients who booked around the same holiday last year.
package service

import (
	"context"
	"log/slog"
	"time"

	"retention_backend/internal/nudge/holidays"
	"retention_backend/internal/nudge/repository"
	"retention_backend/internal/nudge/scoring"
	"retention_backend/platform/logger"

	"github.com/google/uuid"
)

// SelectionResult is the ranked outreach list. TotalAvailableClients counts
// the distinct eligible phones before the limit was applied.
type SelectionResult struct {
	Clients               []scoring.ScoredClient `json:"clients"`
	TotalAvailableClients int                    `json:"totalAvailableClients"`
}

// Service runs candidate selection.
type Service struct {
	repo     repository.Reader
	calendar *holidays.Calendar
	buffer   int
	log      *logger.Logger
	now      func() time.Time
}

// New creates a selection service. A nil calendar disables the holiday boost;
// a negative buffer uses the calendar's own.
func New(repo repository.Reader, calendar *holidays.Calendar, bufferDays int, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		calendar: calendar,
		buffer:   bufferDays,
		log:      log,
		now:      time.Now,
	}
}

// SelectClients never fails: a phase whose query errors contributes no
// candidates and a failed holiday lookup applies no boost.
func (s *Service) SelectClients(ctx context.Context, ownerID uuid.UUID, limit int) SelectionResult {
	result := SelectionResult{Clients: []scoring.ScoredClient{}}
	if limit <= 0 {
		return result
	}

	asOf := s.now().UTC()
	log := s.log.WithOwnerID(ownerID.String())

	strict := s.phase(ctx, log, ownerID, scoring.PhaseStrict, asOf)

	var lenient []scoring.ScoredClient
	if len(strict) < limit {
		lenient = s.phase(ctx, log, ownerID, scoring.PhaseLenient, asOf)
	}

	merged := scoring.Merge(strict, lenient)
	s.applyHolidayBoost(ctx, log, ownerID, merged, asOf)

	result.TotalAvailableClients = len(merged)
	result.Clients = scoring.Rank(merged, limit)

	log.NudgeSelection(limit, len(strict), len(lenient), len(result.Clients))
	return result
}

func (s *Service) phase(ctx context.Context, log *logger.Logger, ownerID uuid.UUID, phase scoring.Phase, asOf time.Time) []scoring.ScoredClient {
	var (
		q     repository.CandidateQuery
		score func(scoring.Candidate, time.Time) (scoring.ScoredClient, bool)
	)
	switch phase {
	case scoring.PhaseStrict:
		q.LastApptFrom, q.LastApptTo = scoring.StrictWindow(asOf)
		q.MessagedBefore = asOf.Add(-scoring.StrictCooldown)
		score = scoring.Strict
	default:
		q.LastApptFrom, q.LastApptTo = scoring.LenientWindow(asOf)
		q.MessagedBefore = asOf.Add(-scoring.LenientCooldown)
		score = scoring.Lenient
	}

	pool, err := s.repo.Candidates(ctx, ownerID, q)
	if err != nil {
		log.Error("nudge phase query failed",
			slog.String("phase", string(phase)),
			slog.String("error", err.Error()),
		)
		return nil
	}

	scored := make([]scoring.ScoredClient, 0, len(pool))
	for _, c := range pool {
		if sc, ok := score(c, asOf); ok {
			scored = append(scored, sc)
		}
	}
	return scored
}

func (s *Service) applyHolidayBoost(ctx context.Context, log *logger.Logger, ownerID uuid.UUID, clients []scoring.ScoredClient, asOf time.Time) {
	if s.calendar == nil || len(clients) == 0 {
		return
	}
	windows := s.calendar.LastYearWindows(asOf, s.buffer)
	if len(windows) == 0 {
		return
	}

	ids := make([]uuid.UUID, 0, len(clients))
	for _, c := range clients {
		ids = append(ids, c.ClientID)
	}

	active, err := s.repo.HolidayActivity(ctx, ownerID, ids, windows)
	if err != nil {
		log.Warn("holiday boost skipped", slog.String("error", err.Error()))
		return
	}

	for i := range clients {
		if _, ok := active[clients[i].ClientID]; ok {
			clients[i].Score += scoring.HolidayBoost
			clients[i].HolidayBoosted = true
		}
	}
}
