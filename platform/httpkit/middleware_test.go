package httpkit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtConfig string

func (c jwtConfig) GetJWTAccessSecret() string { return string(c) }

const testSecret = jwtConfig("test-secret")

func signed(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func authEngine(seen *uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/owned", AuthRequired(testSecret), func(c *gin.Context) {
		owner, ok := MustGetOwner(c)
		if !ok {
			return
		}
		*seen = owner.ID
		c.Status(http.StatusNoContent)
	})
	return engine
}

func TestAuthRequired(t *testing.T) {
	owner := uuid.New()
	exp := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, jwt.MapClaims{"sub": owner.String(), "type": "access", "exp": exp}, "other"), http.StatusUnauthorized},
		{"refresh token", "Bearer " + signed(t, jwt.MapClaims{"sub": owner.String(), "type": "refresh", "exp": exp}, string(testSecret)), http.StatusUnauthorized},
		{"bad subject", "Bearer " + signed(t, jwt.MapClaims{"sub": "nope", "type": "access", "exp": exp}, string(testSecret)), http.StatusUnauthorized},
		{"valid", "Bearer " + signed(t, jwt.MapClaims{"sub": owner.String(), "type": "access", "exp": exp}, string(testSecret)), http.StatusNoContent},
	}

	for _, tc := range cases {
		var seen uuid.UUID
		req := httptest.NewRequest(http.MethodGet, "/owned", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		authEngine(&seen).ServeHTTP(rec, req)

		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.want)
		}
		if tc.want == http.StatusNoContent && seen != owner {
			t.Errorf("%s: owner = %s, want %s", tc.name, seen, owner)
		}
	}
}

func TestTriggerRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/sync", NewTriggerRateLimiter(nil).RateLimit(), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	var last int
	for i := 0; i < 7; i++ {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", nil))
		last = rec.Code
		if i < 6 && rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("7th request status = %d, want 429", last)
	}
}
