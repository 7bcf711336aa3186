package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/retention")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.GetSyncMonthsBack() != 36 {
		t.Fatalf("expected 36 months back, got %d", cfg.GetSyncMonthsBack())
	}
	if cfg.GetSyncPriorityMonths() != 12 {
		t.Fatalf("expected 12 priority months, got %d", cfg.GetSyncPriorityMonths())
	}
	if cfg.GetSyncBackgroundRetryMax() != 30*time.Second {
		t.Fatalf("expected 30s background retry cap, got %s", cfg.GetSyncBackgroundRetryMax())
	}
	if cfg.IsMinIOEnabled() {
		t.Fatal("minio should be disabled without an endpoint")
	}
}

func TestLoadRejectsPriorityWindowLargerThanBackfill(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/retention")
	t.Setenv("SYNC_MONTHS_BACK", "6")
	t.Setenv("SYNC_PRIORITY_MONTHS", "12")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when priority months exceed months back")
	}
}

func TestSplitCSVDropsBlanks(t *testing.T) {
	got := splitCSV(" a , ,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected split result: %#v", got)
	}
}
