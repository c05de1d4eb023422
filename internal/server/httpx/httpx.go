// Package httpx holds the response helpers shared by every controller.
package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"foodmarket/internal/dto"
	apperrors "foodmarket/internal/errors"
)

type userKey struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserID returns the verified caller id put in the context by the auth
// middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok && id != ""
}

// TraceID reuses the chi request id when present.
func TraceID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return uuid.New().String()
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

func WriteValidationError(w http.ResponseWriter, traceID, message string, logger *zap.Logger, details ...apperrors.ValidationDetail) {
	WriteJSON(w, http.StatusBadRequest, dto.ValidationErrorResponse{
		TraceID: traceID,
		Error:   "VALIDATION_ERROR",
		Message: message,
		Details: details,
	}, logger)
}

func WriteErrorResponse(w http.ResponseWriter, traceID string, status int, code, message string, logger *zap.Logger) {
	WriteJSON(w, status, dto.ErrorResponse{
		TraceID:   traceID,
		Status:    status,
		Message:   message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	}, logger)
}

// WriteError maps err onto the HTTP error contract. Unknown errors are
// logged and reported as a generic 500.
func WriteError(w http.ResponseWriter, traceID string, err error, logger *zap.Logger) {
	if ve, ok := apperrors.IsValidationError(err); ok {
		WriteValidationError(w, traceID, ve.Message, logger, ve.Details...)
		return
	}

	if _, ok := apperrors.IsNotFoundError(err); ok {
		WriteErrorResponse(w, traceID, http.StatusNotFound, "NOT_FOUND", err.Error(), logger)
		return
	}

	if _, ok := apperrors.IsConflictError(err); ok {
		WriteErrorResponse(w, traceID, http.StatusConflict, "CONFLICT", err.Error(), logger)
		return
	}

	if _, ok := apperrors.IsForbiddenError(err); ok {
		WriteErrorResponse(w, traceID, http.StatusForbidden, "FORBIDDEN", err.Error(), logger)
		return
	}

	if _, ok := apperrors.IsDeadlockError(err); ok {
		WriteErrorResponse(w, traceID, http.StatusConflict, "DEADLOCK", err.Error(), logger)
		return
	}

	if ge, ok := apperrors.IsGatewayError(err); ok {
		logger.Warn("payment gateway error", zap.Error(err), zap.String("kind", string(ge.Kind)))
		status := http.StatusBadGateway
		if ge.Kind == apperrors.GatewayTimeout {
			status = http.StatusGatewayTimeout
		}
		WriteErrorResponse(w, traceID, status, "GATEWAY_"+string(ge.Kind), "payment provider error", logger)
		return
	}

	logger.Error("unexpected error", zap.Error(err))
	WriteErrorResponse(w, traceID, http.StatusInternalServerError, "INTERNAL_ERROR", "an unexpected error occurred", logger)
}

// MaxBodyBytes bounds every JSON request body.
const MaxBodyBytes = 64 << 10

// DecodeJSON decodes the request body into dst, reporting a malformed or
// oversized body as a ValidationError.
func DecodeJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return apperrors.NewValidationError("unreadable body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body could not be read",
		})
	}
	if len(body) > MaxBodyBytes {
		return apperrors.NewValidationError("request body too large", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must not exceed 64KiB",
		})
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.NewValidationError("invalid JSON body", apperrors.ValidationDetail{
			Field:   "body",
			Message: "request body must be valid JSON",
		})
	}
	return nil
}

// RequireUser writes a 401 and returns false when the request carries no
// verified caller.
func RequireUser(w http.ResponseWriter, r *http.Request, traceID string, logger *zap.Logger) (string, bool) {
	id, ok := UserID(r.Context())
	if !ok {
		WriteErrorResponse(w, traceID, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", logger)
		return "", false
	}
	return id, true
}
