package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foodmarket/internal/server/httpx"
)

func sign(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuthenticator_Middleware(t *testing.T) {
	auth := NewAuthenticator("s3cret", "identity", zap.NewNop())
	valid := jwt.RegisteredClaims{
		Subject:   "u-42",
		Issuer:    "identity",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	var seen string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = httpx.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		query  string
		status int
		user   string
	}{
		{"valid bearer", "Bearer " + sign(t, "s3cret", valid), "", http.StatusNoContent, "u-42"},
		{"query token", "", sign(t, "s3cret", valid), http.StatusNoContent, "u-42"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", "", http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + sign(t, "other", valid), "", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + sign(t, "s3cret", jwt.RegisteredClaims{
			Subject: "u-42", Issuer: "identity", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}), "", http.StatusUnauthorized, ""},
		{"wrong issuer", "Bearer " + sign(t, "s3cret", jwt.RegisteredClaims{
			Subject: "u-42", Issuer: "elsewhere", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}), "", http.StatusUnauthorized, ""},
		{"no subject", "Bearer " + sign(t, "s3cret", jwt.RegisteredClaims{
			Issuer: "identity", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}), "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			target := "/orders"
			if tt.query != "" {
				target += "?access_token=" + tt.query
			}
			r := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, r)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.user, seen)
		})
	}
}
