package aggregates

import (
	"context"
	"testing"
	"time"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/repository"
	"retention_backend/internal/shared/visiting"
	"retention_backend/platform/logger"

	"github.com/google/uuid"
)

var owner = uuid.MustParse("5b1f0e2d-9c8b-4a7f-8e6d-5c4b3a291807")

func str(s string) *string { return &s }

func row(client uuid.UUID, id, date string, tip int64, source *string) domain.Appointment {
	day, _ := domain.ParseDate(date)
	return domain.Appointment{
		OwnerID:        owner,
		ExternalID:     id,
		ClientID:       client,
		Date:           date,
		Datetime:       day.Add(9 * time.Hour),
		TipCents:       tip,
		SyncedTipCents: tip,
		ReferralSource: source,
	}
}

func TestComputeMarkersAndSource(t *testing.T) {
	id := uuid.New()
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	agg := Compute(id, []domain.Appointment{
		row(id, "c", "2025-03-01", 500, str("Walk-in")),
		row(id, "a", "2025-01-01", 200, nil),
		row(id, "b", "2025-01-01", 300, str("Instagram")),
		row(id, "d", "2025-02-01", 0, str("Google")),
	}, asOf)

	if *agg.FirstAppt != "2025-01-01" || *agg.SecondAppt != "2025-02-01" || *agg.LastAppt != "2025-03-01" {
		t.Fatalf("markers = %s %s %s", *agg.FirstAppt, *agg.SecondAppt, *agg.LastAppt)
	}
	if agg.FirstSource == nil || *agg.FirstSource != "Instagram" {
		t.Fatalf("firstSource = %v", agg.FirstSource)
	}
	if agg.TotalAppointments != 4 || agg.TotalTipsCents != 1000 {
		t.Fatalf("totals = %d %d", agg.TotalAppointments, agg.TotalTipsCents)
	}
}

func TestComputeCapsTips(t *testing.T) {
	id := uuid.New()
	agg := Compute(id, []domain.Appointment{
		row(id, "a", "2025-01-01", 80000, nil),
		row(id, "b", "2025-01-02", 80000, nil),
	}, time.Now())
	if agg.TotalTipsCents != MaxTipsCents {
		t.Fatalf("expected cap, got %d", agg.TotalTipsCents)
	}
}

func TestComputeSameDaySecondApptNil(t *testing.T) {
	id := uuid.New()
	agg := Compute(id, []domain.Appointment{
		row(id, "a", "2025-01-01", 0, nil),
		row(id, "b", "2025-01-01", 0, nil),
	}, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	if agg.SecondAppt != nil {
		t.Fatalf("expected nil secondAppt")
	}
	if agg.VisitingType != visiting.New {
		t.Fatalf("expected new, got %s", agg.VisitingType)
	}
}

func TestClassify(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		dates []string
		want  visiting.Type
	}{
		{"none", nil, visiting.Unknown},
		{"recent single", []string{"2025-05-01"}, visiting.New},
		{"old single", []string{"2024-01-01"}, visiting.Rare},
		{"weekly", []string{"2025-05-01", "2025-05-08", "2025-05-15"}, visiting.Consistent},
		{"monthly", []string{"2025-03-01", "2025-04-01", "2025-05-01"}, visiting.SemiConsistent},
		{"bimonthly", []string{"2025-01-01", "2025-03-01", "2025-05-01"}, visiting.EasyGoing},
		{"yearly", []string{"2023-05-01", "2024-05-01"}, visiting.Rare},
	}

	for _, tc := range cases {
		id := uuid.New()
		var appts []domain.Appointment
		for i, d := range tc.dates {
			appts = append(appts, row(id, string(rune('a'+i)), d, 0, nil))
		}
		if got := Compute(id, appts, asOf).VisitingType; got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestComputeWeeklyAverage(t *testing.T) {
	id := uuid.New()
	agg := Compute(id, []domain.Appointment{
		row(id, "a", "2025-05-01", 0, nil),
		row(id, "b", "2025-05-08", 0, nil),
		row(id, "c", "2025-05-15", 0, nil),
	}, time.Now())
	if agg.AvgWeeklyVisits == nil || *agg.AvgWeeklyVisits != 1 {
		t.Fatalf("avg weekly = %v", agg.AvgWeeklyVisits)
	}
}

func TestRecomputeUsesFullHistoryOutOfOrder(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	id := uuid.New()
	store.PutClient(domain.Client{ID: id, OwnerID: owner, Email: str("h@x.com")})

	m := NewMaintainer(store, logger.Discard())
	m.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }

	// Recent months first, older backfill later.
	recent := []domain.Appointment{row(id, "r1", "2025-04-01", 100, nil), row(id, "r2", "2025-05-01", 100, str("Google"))}
	if _, err := store.UpsertAppointments(ctx, owner, recent); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := m.Recompute(ctx, owner, []uuid.UUID{id}); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	c, _ := store.Client(owner, id)
	if *c.FirstAppt != "2025-04-01" || *c.FirstSource != "Google" {
		t.Fatalf("after priority pass: %s %v", *c.FirstAppt, *c.FirstSource)
	}

	older := []domain.Appointment{row(id, "o1", "2023-02-01", 100, str("Flyer"))}
	if _, err := store.UpsertAppointments(ctx, owner, older); err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, err := m.Recompute(ctx, owner, []uuid.UUID{id})
	if err != nil || n != 1 {
		t.Fatalf("recompute: %d %v", n, err)
	}

	c, _ = store.Client(owner, id)
	if *c.FirstAppt != "2023-02-01" || *c.SecondAppt != "2025-04-01" || *c.LastAppt != "2025-05-01" {
		t.Fatalf("markers = %s %s %s", *c.FirstAppt, *c.SecondAppt, *c.LastAppt)
	}
	if *c.FirstSource != "Flyer" {
		t.Fatalf("firstSource = %s", *c.FirstSource)
	}
	if c.TotalAppointments != 3 || c.TotalTipsCents != 300 {
		t.Fatalf("totals = %d %d", c.TotalAppointments, c.TotalTipsCents)
	}
}

func TestRecomputeRespectsLockedVisitingType(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	id := uuid.New()
	store.PutClient(domain.Client{ID: id, OwnerID: owner, VisitingType: visiting.Consistent, VisitingTypeLocked: true})
	if _, err := store.UpsertAppointments(ctx, owner, []domain.Appointment{row(id, "x", "2020-01-01", 0, nil)}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := NewMaintainer(store, logger.Discard()).Recompute(ctx, owner, []uuid.UUID{id}); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	c, _ := store.Client(owner, id)
	if c.VisitingType != visiting.Consistent {
		t.Fatalf("locked type overwritten: %s", c.VisitingType)
	}
	if c.TotalAppointments != 1 {
		t.Fatalf("totals not updated")
	}
}
