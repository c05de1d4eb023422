package controller

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foodmarket/internal/notification/stream"
	"foodmarket/internal/server/httpx"
)

type mockTokenRepository struct {
	UpsertFunc func(ctx context.Context, userID, token string) error
}

func (m *mockTokenRepository) Upsert(ctx context.Context, userID, token string) error {
	return m.UpsertFunc(ctx, userID, token)
}

func newRouter(ctrl *NotificationController, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != "" {
				req = req.WithContext(httpx.WithUserID(req.Context(), userID))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/notifications", ctrl.Routes)
	return r
}

func TestStream_DeliversEvents(t *testing.T) {
	hub := stream.NewHub(4, 2, zap.NewNop(), nil)
	ctrl := NewNotificationController(hub, &mockTokenRepository{}, time.Minute, zap.NewNop())
	srv := httptest.NewServer(newRouter(ctrl, "u-1"))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/notifications/stream", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.Connections("u-1") == 1 }, time.Second, 5*time.Millisecond)
	hub.Send("u-1", stream.Message{Type: "order.status.updated", Data: map[string]string{"orderId": "o-1"}})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "event:") || strings.HasPrefix(line, "data:") {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, "event: order.status.updated", lines[0])
	assert.Equal(t, `data: {"orderId":"o-1"}`, lines[1])

	cancel()
	assert.Eventually(t, func() bool { return hub.Connections("u-1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestStream_Unauthenticated(t *testing.T) {
	hub := stream.NewHub(4, 2, zap.NewNop(), nil)
	ctrl := NewNotificationController(hub, &mockTokenRepository{}, time.Minute, zap.NewNop())

	rec := httptest.NewRecorder()
	newRouter(ctrl, "").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications/stream", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStream_TooManyConnections(t *testing.T) {
	hub := stream.NewHub(4, 1, zap.NewNop(), nil)
	_, err := hub.Subscribe("u-1")
	require.NoError(t, err)
	ctrl := NewNotificationController(hub, &mockTokenRepository{}, time.Minute, zap.NewNop())

	rec := httptest.NewRecorder()
	newRouter(ctrl, "u-1").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/notifications/stream", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterToken(t *testing.T) {
	var got string
	tokens := &mockTokenRepository{
		UpsertFunc: func(ctx context.Context, userID, token string) error {
			assert.Equal(t, "u-1", userID)
			got = token
			return nil
		},
	}
	ctrl := NewNotificationController(stream.NewHub(1, 1, zap.NewNop(), nil), tokens, time.Minute, zap.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/notifications/tokens", strings.NewReader(`{"token":" fcm-abc "}`))
	newRouter(ctrl, "u-1").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "fcm-abc", got)
}

func TestRegisterToken_Missing(t *testing.T) {
	ctrl := NewNotificationController(stream.NewHub(1, 1, zap.NewNop(), nil), &mockTokenRepository{}, time.Minute, zap.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/notifications/tokens", strings.NewReader(`{"token":""}`))
	newRouter(ctrl, "u-1").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
