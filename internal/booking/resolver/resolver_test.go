package resolver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"retention_backend/internal/booking/domain"
	"retention_backend/internal/booking/repository"
	"retention_backend/platform/logger"

	"github.com/google/uuid"
)

var owner = uuid.MustParse("7a3c1a8e-6a55-4f0e-9f31-1a3f7d0b2c11")

func str(s string) *string { return &s }

func appt(id, date string) domain.NormalizedAppointment {
	day, _ := time.Parse(domain.DateLayout, date)
	return domain.NormalizedAppointment{
		ExternalID:  id,
		Date:        date,
		Datetime:    day.Add(10 * time.Hour),
		ServiceType: "Haircut",
		PriceCents:  4000,
	}
}

func newResolver(store repository.ClientReader) *Resolver {
	return New(store, logger.Discard())
}

func TestResolveTransitiveMatch(t *testing.T) {
	a := appt("a1", "2025-01-05")
	a.Phone = str("+14165550000")
	b := appt("a2", "2025-01-10")
	b.Phone = str("+14165550000")
	b.Email = str("a@x.com")
	c := appt("a3", "2025-01-20")
	c.Email = str("a@x.com")

	res, err := newResolver(repository.NewMemory()).Resolve(context.Background(), owner, []domain.NormalizedAppointment{a, b, c})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id := res.AppointmentToClient["a1"]
	if res.AppointmentToClient["a2"] != id || res.AppointmentToClient["a3"] != id {
		t.Fatalf("expected one client, got %v", res.AppointmentToClient)
	}
	if len(res.NewClientIDs) != 1 {
		t.Fatalf("expected 1 new client, got %d", len(res.NewClientIDs))
	}

	client := res.Clients[id]
	if *client.FirstAppt != "2025-01-05" || *client.LastAppt != "2025-01-20" {
		t.Fatalf("got first=%s last=%s", *client.FirstAppt, *client.LastAppt)
	}
	if *client.SecondAppt != "2025-01-10" {
		t.Fatalf("got second=%s", *client.SecondAppt)
	}
	if *client.PhoneNormalized != "+14165550000" || *client.Email != "a@x.com" {
		t.Fatalf("contact not merged: %v %v", client.PhoneNormalized, client.Email)
	}
}

func TestResolveOrderIndependentSourceAndNewestEmail(t *testing.T) {
	early := appt("e1", "2025-02-01")
	early.Phone = str("416-555-1111")
	early.Email = str("old@x.com")
	early.ReferralSource = str("Instagram")

	late := appt("e2", "2025-03-01")
	late.Phone = str("(416) 555-1111")
	late.Email = str("NEW@x.com")
	late.ReferralSource = str("Walk-in")

	orders := [][]domain.NormalizedAppointment{{early, late}, {late, early}}
	for i, batch := range orders {
		res, err := newResolver(repository.NewMemory()).Resolve(context.Background(), owner, batch)
		if err != nil {
			t.Fatalf("order %d: unexpected error: %v", i, err)
		}
		if len(res.Clients) != 1 {
			t.Fatalf("order %d: expected one client, got %d", i, len(res.Clients))
		}
		client := res.Clients[res.AppointmentToClient["e1"]]
		if client.FirstSource == nil || *client.FirstSource != "Instagram" {
			t.Fatalf("order %d: firstSource = %v", i, client.FirstSource)
		}
		if client.Email == nil || *client.Email != "new@x.com" {
			t.Fatalf("order %d: email = %v", i, client.Email)
		}
	}
}

func TestResolveNullSourceDoesNotOverwrite(t *testing.T) {
	a := appt("s1", "2025-01-01")
	a.Email = str("s@x.com")
	b := appt("s2", "2025-01-01")
	b.Email = str("s@x.com")
	b.ReferralSource = str("Google")
	c := appt("s3", "2024-12-01")
	c.Email = str("s@x.com")

	res, err := newResolver(repository.NewMemory()).Resolve(context.Background(), owner, []domain.NormalizedAppointment{a, b, c})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client := res.Clients[res.AppointmentToClient["s1"]]
	if client.FirstSource == nil || *client.FirstSource != "Google" {
		t.Fatalf("firstSource = %v", client.FirstSource)
	}
}

func TestResolveNilAndBlankFieldsStayDistinct(t *testing.T) {
	a := appt("n1", "2025-01-01")
	a.Email = str("only-email@x.com")

	b := appt("n2", "2025-01-01")
	b.Email = str("   ")
	b.Phone = str("4165552222")

	res, err := newResolver(repository.NewMemory()).Resolve(context.Background(), owner, []domain.NormalizedAppointment{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AppointmentToClient["n1"] == res.AppointmentToClient["n2"] {
		t.Fatalf("expected distinct clients")
	}
	if len(res.NewClientIDs) != 2 {
		t.Fatalf("expected 2 new clients, got %d", len(res.NewClientIDs))
	}
}

func TestResolveSingleDaySecondApptIsNil(t *testing.T) {
	a := appt("d1", "2025-04-04")
	a.Email = str("d@x.com")
	b := appt("d2", "2025-04-04")
	b.Email = str("d@x.com")
	b.Datetime = b.Datetime.Add(2 * time.Hour)

	res, err := newResolver(repository.NewMemory()).Resolve(context.Background(), owner, []domain.NormalizedAppointment{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client := res.Clients[res.AppointmentToClient["d1"]]
	if client.SecondAppt != nil {
		t.Fatalf("expected nil secondAppt, got %s", *client.SecondAppt)
	}
}

func TestResolveCountsSkippedAndInvalid(t *testing.T) {
	var batch []domain.NormalizedAppointment
	for i := 0; i < 8; i++ {
		a := appt("ok"+string(rune('a'+i)), "2025-05-01")
		a.Email = str("c" + string(rune('a'+i)) + "@x.com")
		batch = append(batch, a)
	}
	batch = append(batch, appt("anon1", "2025-05-01"))
	noName := appt("anon2", "2025-05-01")
	noName.FirstName = str("Cher")
	batch = append(batch, noName)

	bad := appt("bad", "05/01/2025")
	bad.Email = str("bad@x.com")
	batch = append(batch, bad)

	res, err := newResolver(repository.NewMemory()).Resolve(context.Background(), owner, batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Resolved() != 8 || res.Skipped != 2 || res.Invalid != 1 {
		t.Fatalf("resolved=%d skipped=%d invalid=%d", res.Resolved(), res.Skipped, res.Invalid)
	}
	if _, ok := res.AppointmentToClient["anon1"]; ok {
		t.Fatalf("unresolvable appointment must not be assigned")
	}
}

func TestResolveMatchesExistingClients(t *testing.T) {
	store := repository.NewMemory()
	existingID := uuid.New()
	store.PutClient(domain.Client{
		ID:              existingID,
		OwnerID:         owner,
		PhoneNormalized: str("+14165553333"),
		FirstName:       str("Dana"),
		LastName:        str("Lee"),
		FirstAppt:       str("2024-06-01"),
		LastAppt:        str("2024-09-01"),
		FirstSource:     str("Yelp"),
	})

	older := appt("x1", "2024-01-15")
	older.Phone = str("416 555 3333")
	older.ReferralSource = str("Referral")
	older.FirstName = str("Danielle")

	byName := appt("x2", "2025-01-15")
	byName.FirstName = str("dana")
	byName.LastName = str("LEE")
	byName.Email = str("dana@x.com")

	res, err := newResolver(store).Resolve(context.Background(), owner, []domain.NormalizedAppointment{older, byName})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.NewClientIDs) != 0 {
		t.Fatalf("expected no new clients")
	}
	if res.AppointmentToClient["x1"] != existingID || res.AppointmentToClient["x2"] != existingID {
		t.Fatalf("expected both matched to existing client")
	}

	client := res.Clients[existingID]
	if *client.FirstAppt != "2024-01-15" || *client.SecondAppt != "2024-06-01" || *client.LastAppt != "2025-01-15" {
		t.Fatalf("markers = %s %s %s", *client.FirstAppt, *client.SecondAppt, *client.LastAppt)
	}
	if *client.FirstSource != "Referral" {
		t.Fatalf("older sourced appointment should win, got %s", *client.FirstSource)
	}
	if *client.FirstName != "dana" || *client.Email != "dana@x.com" {
		t.Fatalf("display identity should follow the newest visit, got %s %v", *client.FirstName, client.Email)
	}
}

func TestResolveFamilyPhoneMerges(t *testing.T) {
	a := appt("f1", "2025-01-01")
	a.Phone = str("4165554444")
	a.FirstName, a.LastName = str("Ann"), str("Smith")
	b := appt("f2", "2025-01-02")
	b.Phone = str("4165554444")
	b.FirstName, b.LastName = str("Bob"), str("Smith")

	res, err := newResolver(repository.NewMemory()).Resolve(context.Background(), owner, []domain.NormalizedAppointment{a, b})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Clients) != 1 {
		t.Fatalf("shared phone should merge, got %d clients", len(res.Clients))
	}
}

func TestResolveAccentedNamesDoNotUnify(t *testing.T) {
	a := appt("u1", "2025-01-01")
	a.FirstName, a.LastName = str("José"), str("Núñez")
	b := appt("u2", "2025-01-02")
	b.FirstName, b.LastName = str("Jose"), str("Nunez")
	long := strings.Repeat("x", 150) + "@example.com"
	c := appt("u3", "2025-01-03")
	c.Email = str(long)

	res, err := newResolver(repository.NewMemory()).Resolve(context.Background(), owner, []domain.NormalizedAppointment{a, b, c})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AppointmentToClient["u1"] == res.AppointmentToClient["u2"] {
		t.Fatalf("accented and plain names must stay separate")
	}
	if *res.Clients[res.AppointmentToClient["u1"]].FirstName != "José" {
		t.Fatalf("unicode name not preserved")
	}
	if *res.Clients[res.AppointmentToClient["u3"]].Email != long {
		t.Fatalf("long email truncated")
	}
}

func TestResolveLoadFailureIsReturned(t *testing.T) {
	store := repository.NewMemory()
	store.FailListClients(errors.New("connection refused"))

	a := appt("l1", "2025-01-01")
	a.Email = str("l@x.com")
	if _, err := newResolver(store).Resolve(context.Background(), owner, []domain.NormalizedAppointment{a}); err == nil {
		t.Fatalf("expected error when clients cannot be loaded")
	}
}

func TestResolveRequiresOwner(t *testing.T) {
	if _, err := newResolver(repository.NewMemory()).Resolve(context.Background(), uuid.Nil, nil); err == nil {
		t.Fatalf("expected error for missing owner")
	}
}

func TestResolveKeepsStoredClientWhileAKeyStillMatches(t *testing.T) {
	store := repository.NewMemory()
	first, second := uuid.New(), uuid.New()
	store.PutClient(domain.Client{
		ID:              first,
		OwnerID:         owner,
		PhoneNormalized: str("+14165550001"),
		Email:           str("e@x.com"),
		FirstAppt:       str("2025-02-05"),
		LastAppt:        str("2025-03-01"),
	})
	store.PutClient(domain.Client{ID: second, OwnerID: owner, PhoneNormalized: str("+14165550002")})
	_, err := store.UpsertAppointments(context.Background(), owner, []domain.Appointment{
		{ExternalID: "x2", ClientID: first, Date: "2025-02-05"},
		{ExternalID: "x4", ClientID: first, Date: "2025-02-06"},
	})
	if err != nil {
		t.Fatalf("seed appointments: %v", err)
	}

	sharesEmail := appt("x2", "2025-02-05")
	sharesEmail.Phone = str("4165550002")
	sharesEmail.Email = str("E@x.com")

	phoneOnly := appt("x4", "2025-02-06")
	phoneOnly.Phone = str("4165550002")

	res, err := New(store, logger.Discard()).WithAssignments(store).
		Resolve(context.Background(), owner, []domain.NormalizedAppointment{sharesEmail, phoneOnly})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AppointmentToClient["x2"] != first {
		t.Fatalf("x2 should stay on its stored client")
	}
	if res.AppointmentToClient["x4"] != second {
		t.Fatalf("x4 no longer matches its stored client and should follow the phone")
	}
}
