package main

import (
	"testing"

	"retention_backend/internal/booking/domain"

	"github.com/google/uuid"
)

func TestByOwnerKeepsPlatformsTogether(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	groups := byOwner([]account{
		{ownerID: a, platform: domain.PlatformAcuity},
		{ownerID: b, platform: domain.PlatformAcuity},
		{ownerID: a, platform: domain.PlatformSquare},
	})

	if len(groups) != 2 {
		t.Fatalf("expected 2 owner groups, got %d", len(groups))
	}
	if len(groups[0]) != 2 || groups[0][1].platform != domain.PlatformSquare {
		t.Fatalf("first owner should carry both platforms: %+v", groups[0])
	}
	if groups[1][0].ownerID != b {
		t.Fatalf("second group should belong to the second owner")
	}
}
