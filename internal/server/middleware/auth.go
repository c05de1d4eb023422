package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"foodmarket/internal/server/httpx"
)

// Authenticator verifies bearer tokens issued by the identity provider and
// puts the subject in the request context as the caller id.
type Authenticator struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

func NewAuthenticator(secret, issuer string, logger *zap.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, logger: logger}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := httpx.TraceID(r)

		raw, ok := bearerToken(r)
		if !ok {
			httpx.WriteErrorResponse(w, traceID, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", a.logger)
			return
		}

		userID, err := a.Verify(raw)
		if err != nil {
			a.logger.Debug("rejected token", zap.String("traceId", traceID), zap.Error(err))
			httpx.WriteErrorResponse(w, traceID, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", a.logger)
			return
		}

		next.ServeHTTP(w, r.WithContext(httpx.WithUserID(r.Context(), userID)))
	})
}

// Verify parses an HS256 token and returns its subject.
func (a *Authenticator) Verify(raw string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			return strings.TrimSpace(token), true
		}
		return "", false
	}
	// EventSource cannot set headers.
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t, true
	}
	return "", false
}
