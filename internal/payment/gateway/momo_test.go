package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"foodmarket/internal/config"
	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
)

type fakeMoMo struct {
	t *testing.T

	apiUserCalls atomic.Int32
	apiKeyCalls  atomic.Int32
	tokenCalls   atomic.Int32
	payCalls     atomic.Int32
	statusCalls  atomic.Int32
	balanceCalls atomic.Int32

	// overridable per test
	apiUserStatus int
	payStatus     int
	statusReplies []int
	rejectFirst   atomic.Bool

	mu      sync.Mutex
	lastPay *http.Request
	payBody map[string]interface{}
}

func newFakeMoMo(t *testing.T) (*fakeMoMo, *httptest.Server) {
	f := &fakeMoMo{t: t, apiUserStatus: http.StatusCreated, payStatus: http.StatusAccepted}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeMoMo) serve(w http.ResponseWriter, r *http.Request) {
	assert.Equal(f.t, "sub-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
	assert.NotEmpty(f.t, r.Header.Get("X-Correlation-Id"))

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1_0/apiuser":
		f.apiUserCalls.Add(1)
		assert.NotEmpty(f.t, r.Header.Get("X-Reference-Id"))
		w.WriteHeader(f.apiUserStatus)

	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/apikey"):
		f.apiKeyCalls.Add(1)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"apiKey":"secret-key"}`))

	case r.Method == http.MethodPost && r.URL.Path == "/collection/token/":
		n := f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(f.t, ok)
		assert.NotEmpty(f.t, user)
		assert.Equal(f.t, "secret-key", pass)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-" + string(rune('0'+n)),
			"expires_in":   3600,
		})

	case !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "):
		w.WriteHeader(http.StatusUnauthorized)

	case f.rejectFirst.CompareAndSwap(true, false):
		w.WriteHeader(http.StatusUnauthorized)

	case r.Method == http.MethodPost && r.URL.Path == "/collection/v1_0/requesttopay":
		f.payCalls.Add(1)
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastPay = r
		f.payBody = body
		f.mu.Unlock()
		w.WriteHeader(f.payStatus)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/collection/v1_0/requesttopay/"):
		n := int(f.statusCalls.Add(1))
		if n <= len(f.statusReplies) && f.statusReplies[n-1] != http.StatusOK {
			w.WriteHeader(f.statusReplies[n-1])
			return
		}
		_, _ = w.Write([]byte(`{"status":"SUCCESSFUL","financialTransactionId":"fin-1"}`))

	case r.Method == http.MethodGet && r.URL.Path == "/collection/v1_0/account/balance":
		f.balanceCalls.Add(1)
		_, _ = w.Write([]byte(`{"availableBalance":"15000","currency":"XAF"}`))

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient(config.MoMoConfig{
		BaseURL:           srv.URL,
		SubscriptionKey:   "sub-key",
		Environment:       "sandbox",
		TargetEnvironment: "sandbox",
		RequestTimeout:    5 * time.Second,
		StatusRetries:     2,
	}, zap.NewNop(), nil)
	c.backoff = time.Millisecond
	return c
}

func TestProvision_Sandbox(t *testing.T) {
	f, srv := newFakeMoMo(t)
	f.apiUserStatus = http.StatusConflict
	c := newTestClient(srv)

	require.NoError(t, c.Provision(context.Background()))
	assert.True(t, c.Ready())
	assert.NoError(t, c.Err())

	require.NoError(t, c.Provision(context.Background()))
	assert.Equal(t, int32(1), f.apiUserCalls.Load())
	assert.Equal(t, int32(1), f.apiKeyCalls.Load())
}

func TestProvision_ProductionRequiresCredentials(t *testing.T) {
	f, srv := newFakeMoMo(t)
	c := NewClient(config.MoMoConfig{BaseURL: srv.URL, Environment: "production"}, zap.NewNop(), nil)

	err := c.Provision(context.Background())
	ge, ok := apperrors.IsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.GatewayAuth, ge.Kind)
	assert.False(t, c.Ready())
	assert.Equal(t, err, c.Err())
	assert.Zero(t, f.apiUserCalls.Load())
}

func TestInitiate(t *testing.T) {
	f, srv := newFakeMoMo(t)
	c := newTestClient(srv)

	ref, err := c.Initiate(context.Background(), RequestToPay{
		Amount:       5500,
		Currency:     "XAF",
		PayerPhone:   "242061234567",
		ExternalID:   "pay-1",
		PayerMessage: "Order order-1",
		PayeeNote:    "Chez Mama",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotNil(t, f.lastPay)
	assert.Equal(t, ref, f.lastPay.Header.Get("X-Reference-Id"))
	assert.Equal(t, "sandbox", f.lastPay.Header.Get("X-Target-Environment"))
	assert.Equal(t, "5500", f.payBody["amount"])
	assert.Equal(t, "pay-1", f.payBody["externalId"])
	payer := f.payBody["payer"].(map[string]interface{})
	assert.Equal(t, "MSISDN", payer["partyIdType"])
	assert.Equal(t, "242061234567", payer["partyId"])
}

func TestInitiate_NeverRetried(t *testing.T) {
	f, srv := newFakeMoMo(t)
	f.payStatus = http.StatusServiceUnavailable
	c := newTestClient(srv)

	_, err := c.Initiate(context.Background(), RequestToPay{Amount: 1000, Currency: "XAF", PayerPhone: "242061234567"})
	ge, ok := apperrors.IsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.GatewayUnavailable, ge.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, ge.StatusCode)
	assert.Equal(t, int32(1), f.payCalls.Load())
}

func TestInitiate_Declined(t *testing.T) {
	f, srv := newFakeMoMo(t)
	f.payStatus = http.StatusBadRequest
	c := newTestClient(srv)

	_, err := c.Initiate(context.Background(), RequestToPay{Amount: 1000, Currency: "XAF"})
	ge, ok := apperrors.IsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.GatewayDeclined, ge.Kind)
}

func TestQueryStatus_RetriesTransientFailures(t *testing.T) {
	f, srv := newFakeMoMo(t)
	f.statusReplies = []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}
	c := newTestClient(srv)

	ts, err := c.QueryStatus(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, domain.GatewayStatusSuccessful, ts.Status)
	assert.Equal(t, "fin-1", ts.FinancialTransactionID)
	assert.Equal(t, int32(3), f.statusCalls.Load())
}

func TestQueryStatus_GivesUp(t *testing.T) {
	f, srv := newFakeMoMo(t)
	f.statusReplies = []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway}
	c := newTestClient(srv)

	_, err := c.QueryStatus(context.Background(), "ref-1")
	_, ok := apperrors.IsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, int32(3), f.statusCalls.Load())
}

func TestQueryStatus_NotRetriedOnClientError(t *testing.T) {
	f, srv := newFakeMoMo(t)
	f.statusReplies = []int{http.StatusNotFound}
	c := newTestClient(srv)

	_, err := c.QueryStatus(context.Background(), "ref-1")
	ge, ok := apperrors.IsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.GatewayDeclined, ge.Kind)
	assert.Equal(t, int32(1), f.statusCalls.Load())
}

func TestToken_CachedUntilRefreshWindow(t *testing.T) {
	f, srv := newFakeMoMo(t)
	c := newTestClient(srv)

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	c.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	_, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	_, err = c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())

	advance(54 * time.Minute)
	_, err = c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load())

	// inside the five minute margin
	advance(2 * time.Minute)
	_, err = c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestToken_ConcurrentCallersShareRefresh(t *testing.T) {
	f, srv := newFakeMoMo(t)
	c := newTestClient(srv)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetBalance(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.apiUserCalls.Load())
	assert.Equal(t, int32(1), f.tokenCalls.Load())
	assert.Equal(t, int32(20), f.balanceCalls.Load())
}

func TestUnauthorizedRefreshesTokenOnce(t *testing.T) {
	f, srv := newFakeMoMo(t)
	c := newTestClient(srv)
	require.NoError(t, c.Provision(context.Background()))

	f.rejectFirst.Store(true)
	b, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "15000", b.AvailableBalance)
	assert.Equal(t, "XAF", b.Currency)
	assert.Equal(t, int32(2), f.tokenCalls.Load())
}

func TestTransportFailure(t *testing.T) {
	_, srv := newFakeMoMo(t)
	c := newTestClient(srv)
	srv.Close()

	_, err := c.GetBalance(context.Background())
	ge, ok := apperrors.IsGatewayError(err)
	require.True(t, ok)
	assert.True(t, ge.Transient())
	assert.False(t, c.Ready())
}
