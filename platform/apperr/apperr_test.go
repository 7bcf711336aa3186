package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed transient", Transient("upstream 503", errors.New("boom")), true},
		{"wrapped typed transient", fmt.Errorf("fetch: %w", Transient("timeout", nil)), true},
		{"permanent input", PermanentInput("bad date", nil), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"serialization", fmt.Errorf("tx: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("nope"), false},
	}

	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestGetKindFollowsWrapChain(t *testing.T) {
	err := fmt.Errorf("period 2024-03: %w", Persistence("write rejected", errors.New("disk full")))
	if GetKind(err) != KindPersistence {
		t.Fatalf("expected KindPersistence, got %v", GetKind(err))
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := Transient("x", nil).HTTPStatus(); got != http.StatusServiceUnavailable {
		t.Fatalf("transient status = %d", got)
	}
	if got := PermanentInput("x", nil).HTTPStatus(); got != http.StatusBadRequest {
		t.Fatalf("permanent input status = %d", got)
	}
	if got := NotFound("x").HTTPStatus(); got != http.StatusNotFound {
		t.Fatalf("not found status = %d", got)
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(KindInternal, "load clients", errors.New("connection refused")).WithOp("resolver.Resolve")
	want := "resolver.Resolve: load clients: connection refused"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}
