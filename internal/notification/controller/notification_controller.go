package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"foodmarket/internal/dto"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/notification/stream"
	"foodmarket/internal/server/httpx"
)

type TokenRepository interface {
	Upsert(ctx context.Context, userID, token string) error
}

type NotificationController struct {
	hub       *stream.Hub
	tokens    TokenRepository
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewNotificationController(hub *stream.Hub, tokens TokenRepository, heartbeat time.Duration, logger *zap.Logger) *NotificationController {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &NotificationController{
		hub:       hub,
		tokens:    tokens,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

func (c *NotificationController) Routes(r chi.Router) {
	r.Get("/stream", c.Stream)
	r.Post("/tokens", c.RegisterToken)
}

// Stream serves the caller's live order events as server-sent events until
// the client disconnects or the hub shuts down.
func (c *NotificationController) Stream(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.WriteErrorResponse(w, traceID, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "streaming not supported", logger)
		return
	}

	sub, err := c.hub.Subscribe(userID)
	if err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}
	defer c.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger.Debug("notification stream opened", zap.String("userId", userID))
	defer logger.Debug("notification stream closed", zap.String("userId", userID))

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, open := <-sub.C():
			if !open {
				return
			}
			data, err := json.Marshal(msg.Data)
			if err != nil {
				logger.Error("encoding stream message", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (c *NotificationController) RegisterToken(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	userID, ok := httpx.RequireUser(w, r, traceID, logger)
	if !ok {
		return
	}

	var req dto.RegisterPushTokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}

	token := strings.TrimSpace(req.Token)
	if token == "" {
		httpx.WriteError(w, traceID, apperrors.NewValidationError("validation failed", apperrors.ValidationDetail{
			Field:   "token",
			Message: "token is required",
		}), logger)
		return
	}

	if err := c.tokens.Upsert(r.Context(), userID, token); err != nil {
		httpx.WriteError(w, traceID, err, logger)
		return
	}

	logger.Info("push token registered", zap.String("userId", userID))
	httpx.WriteJSON(w, http.StatusCreated, dto.RegisterPushTokenResponse{TraceID: traceID, Status: "registered"}, logger)
}
