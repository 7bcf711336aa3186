package scoring

import (
	"testing"
	"time"

	"retention_backend/internal/shared/visiting"

	"github.com/google/uuid"
)

var asOf = time.Date(2025, 6, 30, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func daysAgo(n int) *string {
	return ptr(asOf.AddDate(0, 0, -n).Format("2006-01-02"))
}

func consistentClient(lastVisitDaysAgo int) Candidate {
	return Candidate{
		ClientID:          uuid.New(),
		FirstName:         ptr("Maya"),
		PhoneNormalized:   ptr("+14165550000"),
		LastAppt:          daysAgo(lastVisitDaysAgo),
		AvgWeeklyVisits:   ptr(1.0),
		VisitingType:      visiting.Consistent,
		TotalAppointments: 12,
	}
}

func TestStrictConsistentClientInsideWindow(t *testing.T) {
	got, ok := Strict(consistentClient(17), asOf)
	if !ok {
		t.Fatal("expected consistent client 10 days overdue to be eligible")
	}
	if got.DaysOverdue != 10 {
		t.Fatalf("expected 10 days overdue, got %d", got.DaysOverdue)
	}
	if got.ExpectedVisitIntervalDays != 7 {
		t.Fatalf("expected 7 day interval, got %d", got.ExpectedVisitIntervalDays)
	}
	// base 300 + 2*10 + full proximity bonus at the optimum
	if got.Score != 370 {
		t.Fatalf("expected score 370, got %d", got.Score)
	}
	if got.Phase != PhaseStrict {
		t.Fatalf("expected strict phase, got %s", got.Phase)
	}
}

func TestStrictConsistentClientOutsideWindow(t *testing.T) {
	if PolicyScore(visiting.Consistent, 33) != 0 {
		t.Fatal("expected zero score 33 days overdue")
	}
	if _, ok := Strict(consistentClient(40), asOf); ok {
		t.Fatal("expected consistent client 33 days overdue to be excluded")
	}
	got, ok := Lenient(consistentClient(40), asOf)
	if !ok || got.Score != lenientBase {
		t.Fatalf("expected lenient fallback with base score, got %+v ok=%v", got, ok)
	}
}

func TestStrictExclusions(t *testing.T) {
	recentlyMessaged := consistentClient(17)
	recentlyMessaged.LastMessagedAt = ptr(asOf.Add(-3 * 24 * time.Hour))

	optedOut := consistentClient(17)
	optedOut.SMSOptedOut = true

	noPhone := consistentClient(17)
	noPhone.PhoneNormalized = nil

	noHistory := consistentClient(17)
	noHistory.TotalAppointments = 0

	tooRecent := consistentClient(10)
	tooOld := consistentClient(260)

	cases := map[string]Candidate{
		"messaged 3 days ago": recentlyMessaged,
		"opted out":           optedOut,
		"no phone":            noPhone,
		"no appointments":     noHistory,
		"visited 10 days ago": tooRecent,
		"visited 260 days":    tooOld,
	}
	for name, c := range cases {
		if _, ok := Strict(c, asOf); ok {
			t.Errorf("%s: expected exclusion", name)
		}
	}

	messagedLastMonth := consistentClient(17)
	messagedLastMonth.LastMessagedAt = ptr(asOf.Add(-30 * 24 * time.Hour))
	if _, ok := Strict(messagedLastMonth, asOf); !ok {
		t.Fatal("expected client messaged 30 days ago to be eligible")
	}
}

func TestPolicyScoreCurve(t *testing.T) {
	cases := []struct {
		name    string
		typ     visiting.Type
		overdue int
		want    int
	}{
		{"consistent on time", visiting.Consistent, 0, 300},
		{"consistent decaying", visiting.Consistent, 25, 300 + 50 - 20},
		{"consistent negative", visiting.Consistent, -1, 0},
		{"semi at optimum", visiting.SemiConsistent, 14, 260 + 21 + 40},
		{"easy-going past window", visiting.EasyGoing, 61, 0},
		{"new flat", visiting.New, 30, 240},
		{"rare late", visiting.Rare, 90, 150 + 45 - 60},
		{"unrecognised uses unknown", visiting.Type("vip"), 20, 180 + 20 + 25},
	}
	for _, tc := range cases {
		if got := PolicyScore(tc.typ, tc.overdue); got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestLenientScoreCurve(t *testing.T) {
	cases := map[int]int{
		-20: 200,
		60:  200,
		70:  170,
		120: 20,
		121: 0,
	}
	for overdue, want := range cases {
		if got := LenientScore(overdue); got != want {
			t.Errorf("overdue %d: got %d, want %d", overdue, got, want)
		}
	}
}

func TestLenientWindowAndCooldown(t *testing.T) {
	c := consistentClient(8)
	c.LastMessagedAt = ptr(asOf.Add(-10 * 24 * time.Hour))
	if _, ok := Lenient(c, asOf); ok {
		t.Fatal("expected 15 day cooldown to exclude client messaged 10 days ago")
	}

	c.LastMessagedAt = ptr(asOf.Add(-16 * 24 * time.Hour))
	if _, ok := Lenient(c, asOf); !ok {
		t.Fatal("expected client past cooldown to be eligible")
	}

	if _, ok := Lenient(consistentClient(5), asOf); ok {
		t.Fatal("expected visit 5 days ago to be too recent")
	}
	if _, ok := Lenient(consistentClient(800), asOf); ok {
		t.Fatal("expected visit over 2 years ago to be excluded")
	}
}

func TestExpectedIntervalDays(t *testing.T) {
	if got := ExpectedIntervalDays(ptr(0.5), visiting.Rare); got != 14 {
		t.Fatalf("expected 14, got %d", got)
	}
	if got := ExpectedIntervalDays(nil, visiting.Rare); got != 90 {
		t.Fatalf("expected rare fallback 90, got %d", got)
	}
	if got := ExpectedIntervalDays(ptr(0.0), visiting.Consistent); got != 14 {
		t.Fatalf("expected consistent fallback 14, got %d", got)
	}
	if got := ExpectedIntervalDays(ptr(20.0), visiting.Consistent); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
}

func TestMergeKeepsBestEntryPerPhone(t *testing.T) {
	strict := []ScoredClient{
		{ClientID: uuid.New(), PhoneNormalized: "+1", Score: 100, LastAppt: "2025-05-01"},
	}
	lenient := []ScoredClient{
		{ClientID: uuid.New(), PhoneNormalized: "+1", Score: 200, LastAppt: "2025-06-01"},
		{ClientID: uuid.New(), PhoneNormalized: "+2", Score: 150, LastAppt: "2025-04-01"},
		{ClientID: uuid.New(), PhoneNormalized: "+2", Score: 150, LastAppt: "2025-05-15"},
	}

	merged := Merge(strict, lenient)
	if len(merged) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(merged))
	}
	if merged[0].ClientID != strict[0].ClientID || merged[0].Score != 600 {
		t.Fatalf("expected boosted strict entry to win, got %+v", merged[0])
	}
	if merged[1].LastAppt != "2025-05-15" {
		t.Fatalf("expected tie to go to the more recent visit, got %s", merged[1].LastAppt)
	}
}

func TestRankSortsTruncatesAndClamps(t *testing.T) {
	ranked := Rank([]ScoredClient{
		{PhoneNormalized: "+1", Score: 210, DaysOverdue: -4},
		{PhoneNormalized: "+2", Score: 650, DaysOverdue: 12},
		{PhoneNormalized: "+3", Score: 400, DaysOverdue: 3},
	}, 2)

	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
	if ranked[0].Score != 650 || ranked[1].Score != 400 {
		t.Fatalf("unexpected order: %+v", ranked)
	}

	clamped := Rank([]ScoredClient{{PhoneNormalized: "+1", Score: 210, DaysOverdue: -4}}, 5)
	if clamped[0].DaysOverdue != 0 {
		t.Fatalf("expected negative overdue floored to 0, got %d", clamped[0].DaysOverdue)
	}
}
