// Package scoring ranks clients for win-back outreach. Scoring is pure: every
// function takes the client snapshot and the evaluation time and returns a
// score, so the selection service can run both phases against any store.
package scoring

import (
	"math"
	"sort"
	"time"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/shared/visiting"

	"github.com/google/uuid"
)

// Phase names the selection pass that produced a candidate.
type Phase string

const (
	PhaseStrict  Phase = "strict"
	PhaseLenient Phase = "lenient"
)

const (
	// StrictBoost lifts every strict survivor above any lenient fill-in.
	StrictBoost = 500
	// HolidayBoost is added for activity around the same holiday last year.
	HolidayBoost = 50

	StrictCooldown  = 7 * 24 * time.Hour
	LenientCooldown = 15 * 24 * time.Hour

	strictMinDaysSince  = 14
	lenientMinDaysSince = 7

	lenientBase         = 200
	lenientDecayAfter   = 60
	lenientDecayPerDay  = 3
	lenientMaxOverdue   = 120
	lenientMinimumScore = 1
)

// Candidate is the slice of a client row the scorer needs.
type Candidate struct {
	ClientID          uuid.UUID
	FirstName         *string
	LastName          *string
	PhoneNormalized   *string
	LastAppt          *string
	AvgWeeklyVisits   *float64
	VisitingType      visiting.Type
	TotalAppointments int
	SMSOptedOut       bool
	LastMessagedAt    *time.Time
}

// ScoredClient is a ranked outreach candidate.
type ScoredClient struct {
	ClientID                  uuid.UUID     `json:"clientId"`
	FirstName                 *string       `json:"firstName,omitempty"`
	LastName                  *string       `json:"lastName,omitempty"`
	PhoneNormalized           string        `json:"phoneNormalized"`
	VisitingType              visiting.Type `json:"visitingType"`
	AvgWeeklyVisits           *float64      `json:"avgWeeklyVisits,omitempty"`
	LastAppt                  string        `json:"lastAppt"`
	DaysSinceLastVisit        int           `json:"daysSinceLastVisit"`
	ExpectedVisitIntervalDays int           `json:"expectedVisitIntervalDays"`
	DaysOverdue               int           `json:"daysOverdue"`
	Score                     int           `json:"score"`
	Phase                     Phase         `json:"phase"`
	HolidayBoosted            bool          `json:"holidayBoosted"`
}

// DisplayName joins the known name parts.
func (s ScoredClient) DisplayName() string {
	switch {
	case s.FirstName != nil && s.LastName != nil:
		return *s.FirstName + " " + *s.LastName
	case s.FirstName != nil:
		return *s.FirstName
	case s.LastName != nil:
		return *s.LastName
	default:
		return ""
	}
}

// policy is the strict-phase curve for one visiting type.
type policy struct {
	minOverdue  int
	maxOverdue  int
	base        float64
	linear      float64
	optimal     float64
	bonusMax    float64
	decayAfter  int
	decayPerDay float64
}

var policies = map[visiting.Type]policy{
	visiting.Consistent: {
		minOverdue: 0, maxOverdue: 30,
		base: 300, linear: 2,
		optimal: 10, bonusMax: 50,
		decayAfter: 21, decayPerDay: 5,
	},
	visiting.SemiConsistent: {
		minOverdue: 0, maxOverdue: 45,
		base: 260, linear: 1.5,
		optimal: 14, bonusMax: 40,
		decayAfter: 30, decayPerDay: 4,
	},
	visiting.EasyGoing: {
		minOverdue: 0, maxOverdue: 60,
		base: 220, linear: 1,
		optimal: 21, bonusMax: 30,
		decayAfter: 45, decayPerDay: 3,
	},
	// New clients score the flat base anywhere in the window.
	visiting.New: {
		minOverdue: 0, maxOverdue: 45,
		base: 240,
		optimal: 14,
	},
	visiting.Rare: {
		minOverdue: 0, maxOverdue: 90,
		base: 150, linear: 0.5,
		optimal: 30, bonusMax: 20,
		decayAfter: 60, decayPerDay: 2,
	},
	visiting.Unknown: {
		minOverdue: 0, maxOverdue: 60,
		base: 180, linear: 1,
		optimal: 20, bonusMax: 25,
		decayAfter: 40, decayPerDay: 3,
	},
}

func policyFor(t visiting.Type) policy {
	if p, ok := policies[t]; ok {
		return p
	}
	return policies[visiting.Unknown]
}

// ExpectedIntervalDays converts a weekly visit rate into days between visits,
// falling back to the visiting type's default when no rate is known.
func ExpectedIntervalDays(avgWeekly *float64, t visiting.Type) int {
	if avgWeekly != nil && *avgWeekly > 0 {
		days := int(math.Round(7 / *avgWeekly))
		if days < 1 {
			days = 1
		}
		return days
	}
	return t.FallbackIntervalDays()
}

// PolicyScore evaluates the strict curve at overdue days. Zero means the
// value falls outside the type's window.
func PolicyScore(t visiting.Type, overdue int) int {
	p := policyFor(t)
	if overdue < p.minOverdue || overdue > p.maxOverdue {
		return 0
	}

	score := p.base + p.linear*float64(overdue)
	if p.bonusMax > 0 && p.optimal > 0 {
		distance := math.Abs(float64(overdue) - p.optimal)
		score += math.Max(0, p.bonusMax-distance*p.bonusMax/p.optimal)
	}
	if p.decayPerDay > 0 && overdue > p.decayAfter {
		score -= float64(overdue-p.decayAfter) * p.decayPerDay
	}

	rounded := int(math.Round(score))
	if rounded < 1 {
		return 1
	}
	return rounded
}

// LenientScore evaluates the flat fallback curve. Zero means excluded.
func LenientScore(overdue int) int {
	if overdue > lenientMaxOverdue {
		return 0
	}
	score := lenientBase
	if overdue > lenientDecayAfter {
		score -= (overdue - lenientDecayAfter) * lenientDecayPerDay
	}
	if score < lenientMinimumScore {
		return lenientMinimumScore
	}
	return score
}

type timing struct {
	lastAppt  string
	daysSince int
	expected  int
	overdue   int
}

func eligible(c Candidate, asOf time.Time, cooldown time.Duration) (timing, bool) {
	if c.PhoneNormalized == nil || *c.PhoneNormalized == "" || c.LastAppt == nil {
		return timing{}, false
	}
	if c.SMSOptedOut || c.TotalAppointments < 1 {
		return timing{}, false
	}
	if c.LastMessagedAt != nil && asOf.Sub(*c.LastMessagedAt) < cooldown {
		return timing{}, false
	}

	last, err := domain.ParseDate(*c.LastAppt)
	if err != nil {
		return timing{}, false
	}
	daysSince := domain.DaysBetween(last, asOf)
	expected := ExpectedIntervalDays(c.AvgWeeklyVisits, c.VisitingType)
	return timing{
		lastAppt:  *c.LastAppt,
		daysSince: daysSince,
		expected:  expected,
		overdue:   daysSince - expected,
	}, true
}

// StrictWindow is the last-visit range of the strict phase: 8 months ago up
// to 14 days ago, both as calendar days.
func StrictWindow(asOf time.Time) (from, to time.Time) {
	return asOf.AddDate(0, -8, 0), asOf.AddDate(0, 0, -strictMinDaysSince)
}

// LenientWindow is the last-visit range of the lenient phase: 2 years ago up
// to 7 days ago.
func LenientWindow(asOf time.Time) (from, to time.Time) {
	return asOf.AddDate(-2, 0, 0), asOf.AddDate(0, 0, -lenientMinDaysSince)
}

func inWindow(lastAppt string, from, to time.Time) bool {
	return lastAppt >= from.Format(domain.DateLayout) && lastAppt <= to.Format(domain.DateLayout)
}

// Strict scores c for the strict phase. The boolean is false when the client
// is excluded.
func Strict(c Candidate, asOf time.Time) (ScoredClient, bool) {
	tm, ok := eligible(c, asOf, StrictCooldown)
	if !ok {
		return ScoredClient{}, false
	}
	from, to := StrictWindow(asOf)
	if !inWindow(tm.lastAppt, from, to) {
		return ScoredClient{}, false
	}

	score := PolicyScore(c.VisitingType, tm.overdue)
	if score == 0 {
		return ScoredClient{}, false
	}
	return build(c, tm, score, PhaseStrict), true
}

// Lenient scores c for the lenient phase.
func Lenient(c Candidate, asOf time.Time) (ScoredClient, bool) {
	tm, ok := eligible(c, asOf, LenientCooldown)
	if !ok {
		return ScoredClient{}, false
	}
	from, to := LenientWindow(asOf)
	if !inWindow(tm.lastAppt, from, to) {
		return ScoredClient{}, false
	}

	score := LenientScore(tm.overdue)
	if score == 0 {
		return ScoredClient{}, false
	}
	return build(c, tm, score, PhaseLenient), true
}

func build(c Candidate, tm timing, score int, phase Phase) ScoredClient {
	visitingType := c.VisitingType
	if visitingType == "" {
		visitingType = visiting.Unknown
	}
	return ScoredClient{
		ClientID:                  c.ClientID,
		FirstName:                 c.FirstName,
		LastName:                  c.LastName,
		PhoneNormalized:           *c.PhoneNormalized,
		VisitingType:              visitingType,
		AvgWeeklyVisits:           c.AvgWeeklyVisits,
		LastAppt:                  tm.lastAppt,
		DaysSinceLastVisit:        tm.daysSince,
		ExpectedVisitIntervalDays: tm.expected,
		DaysOverdue:               tm.overdue,
		Score:                     score,
		Phase:                     phase,
	}
}

// Merge boosts the strict survivors, then keeps one entry per phone: the
// highest score wins and ties go to the more recent last visit. The result
// keeps strict-then-lenient input order for entries that survive.
func Merge(strict, lenient []ScoredClient) []ScoredClient {
	all := make([]ScoredClient, 0, len(strict)+len(lenient))
	for _, s := range strict {
		s.Score += StrictBoost
		all = append(all, s)
	}
	all = append(all, lenient...)

	best := make(map[string]int, len(all))
	out := make([]ScoredClient, 0, len(all))
	for _, s := range all {
		idx, seen := best[s.PhoneNormalized]
		if !seen {
			best[s.PhoneNormalized] = len(out)
			out = append(out, s)
			continue
		}
		if better(s, out[idx]) {
			out[idx] = s
		}
	}
	return out
}

func better(a, b ScoredClient) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.LastAppt > b.LastAppt
}

// Rank sorts by score descending, truncates to limit and floors negative
// overdue values to zero.
func Rank(clients []ScoredClient, limit int) []ScoredClient {
	sort.SliceStable(clients, func(i, j int) bool { return clients[i].Score > clients[j].Score })
	if limit >= 0 && len(clients) > limit {
		clients = clients[:limit]
	}
	for i := range clients {
		if clients[i].DaysOverdue < 0 {
			clients[i].DaysOverdue = 0
		}
	}
	return clients
}
