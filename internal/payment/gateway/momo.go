// Package gateway is the client for the MTN MoMo collection API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"foodmarket/internal/config"
	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/infrastructure/metrics"
)

const (
	tokenRefreshMargin = 5 * time.Minute
	maxResponseBytes   = 1 << 20

	opProvision = "provision"
	opToken     = "token"
	opInitiate  = "requesttopay"
	opStatus    = "status"
	opBalance   = "balance"
)

type RequestToPay struct {
	Amount       int64
	Currency     string
	PayerPhone   string
	ExternalID   string
	PayerMessage string
	PayeeNote    string
}

type TransactionStatus struct {
	Status                 domain.GatewayStatus `json:"status"`
	Reason                 string               `json:"reason,omitempty"`
	FinancialTransactionID string               `json:"financialTransactionId,omitempty"`
}

type Balance struct {
	AvailableBalance string `json:"availableBalance"`
	Currency         string `json:"currency"`
}

type requestToPayBody struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        party  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

type party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Client talks to the collection product. It is safe for concurrent use and
// meant to be built once per process.
type Client struct {
	cfg     config.MoMoConfig
	http    *http.Client
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
	backoff time.Duration

	provisionMu  sync.Mutex
	credMu       sync.RWMutex
	apiUser      string
	apiKey       string
	provisioned  bool
	provisionErr error

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
	refresh     singleflight.Group
}

func NewClient(cfg config.MoMoConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	apiUser := cfg.APIUser
	if cfg.Sandbox() && apiUser == "" {
		apiUser = uuid.New().String()
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		logger:  logger.With(zap.String("component", "momo")),
		metrics: m,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		backoff: 200 * time.Millisecond,
		apiUser: apiUser,
		apiKey:  cfg.APIKey,
	}
}

// Ready reports whether credentials are in place.
func (c *Client) Ready() bool {
	c.credMu.RLock()
	defer c.credMu.RUnlock()
	return c.provisioned
}

// Err returns the last provisioning failure, if any.
func (c *Client) Err() error {
	c.credMu.RLock()
	defer c.credMu.RUnlock()
	return c.provisionErr
}

// Provision obtains API credentials. In sandbox the API user and key are
// created on the fly; in production the configured ones are used.
// Concurrent callers share one attempt.
func (c *Client) Provision(ctx context.Context) error {
	c.provisionMu.Lock()
	defer c.provisionMu.Unlock()

	if c.Ready() {
		return nil
	}

	err := c.provision(ctx)

	c.credMu.Lock()
	c.provisionErr = err
	c.provisioned = err == nil
	c.credMu.Unlock()

	if err != nil {
		c.logger.Error("momo provisioning failed", zap.Error(err))
		return err
	}
	c.logger.Info("momo client provisioned", zap.Bool("sandbox", c.cfg.Sandbox()))
	return nil
}

func (c *Client) provision(ctx context.Context) error {
	if !c.cfg.Sandbox() {
		if c.cfg.APIUser == "" || c.cfg.APIKey == "" {
			return apperrors.NewGatewayError(opProvision, apperrors.GatewayAuth, 0,
				errors.New("MTN_MOMO_API_USER and MTN_MOMO_API_KEY are required in production"))
		}
		return nil
	}

	c.credMu.RLock()
	apiUser := c.apiUser
	c.credMu.RUnlock()

	header := http.Header{}
	header.Set("X-Reference-Id", apiUser)
	status, _, err := c.send(ctx, opProvision, http.MethodPost, "/v1_0/apiuser",
		map[string]string{"providerCallbackHost": c.cfg.CallbackHost}, header)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return statusError(opProvision, status)
	}

	status, data, err := c.send(ctx, opProvision, http.MethodPost, "/v1_0/apiuser/"+apiUser+"/apikey", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return statusError(opProvision, status)
	}

	var key struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(data, &key); err != nil || key.APIKey == "" {
		return apperrors.NewGatewayError(opProvision, apperrors.GatewayMalformed, status, err)
	}

	c.credMu.Lock()
	c.apiKey = key.APIKey
	c.credMu.Unlock()
	return nil
}

// Initiate asks the payer to approve a debit and returns the reference id
// that identifies the transaction from now on. It is never retried: a
// second request would debit the payer twice.
func (c *Client) Initiate(ctx context.Context, req RequestToPay) (string, error) {
	referenceID := c.newID()

	header := http.Header{}
	header.Set("X-Reference-Id", referenceID)
	header.Set("X-Target-Environment", c.cfg.TargetEnvironment)
	if c.cfg.CallbackHost != "" {
		header.Set("X-Callback-Url", strings.TrimRight(c.cfg.CallbackHost, "/")+"/webhooks/mtn-momo")
	}

	body := requestToPayBody{
		Amount:       strconv.FormatInt(req.Amount, 10),
		Currency:     req.Currency,
		ExternalID:   req.ExternalID,
		Payer:        party{PartyIDType: "MSISDN", PartyID: req.PayerPhone},
		PayerMessage: req.PayerMessage,
		PayeeNote:    req.PayeeNote,
	}

	status, _, err := c.authorized(ctx, opInitiate, http.MethodPost, "/collection/v1_0/requesttopay", body, header)
	if err != nil {
		c.metrics.RecordGatewayRequest(opInitiate, outcome(err))
		return "", err
	}
	if status != http.StatusAccepted {
		err := statusError(opInitiate, status)
		c.metrics.RecordGatewayRequest(opInitiate, outcome(err))
		return "", err
	}

	c.metrics.RecordGatewayRequest(opInitiate, "ok")
	c.logger.Info("request to pay accepted", zap.String("referenceId", referenceID), zap.String("externalId", req.ExternalID))
	return referenceID, nil
}

// QueryStatus reads the provider's view of a transaction, retrying
// transient failures.
func (c *Client) QueryStatus(ctx context.Context, referenceID string) (*TransactionStatus, error) {
	attempts := c.cfg.StatusRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ts, err := c.queryStatus(ctx, referenceID)
		if err == nil {
			c.metrics.RecordGatewayRequest(opStatus, "ok")
			return ts, nil
		}
		lastErr = err

		ge, ok := apperrors.IsGatewayError(err)
		if !ok || !ge.Transient() || attempt == attempts {
			break
		}

		wait := c.backoff * time.Duration(attempt)
		c.logger.Warn("status query failed, retrying",
			zap.String("referenceId", referenceID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			c.metrics.RecordGatewayRequest(opStatus, string(apperrors.GatewayTimeout))
			return nil, apperrors.NewGatewayError(opStatus, apperrors.GatewayTimeout, 0, ctx.Err())
		case <-time.After(wait):
		}
	}

	c.metrics.RecordGatewayRequest(opStatus, outcome(lastErr))
	return nil, lastErr
}

func (c *Client) queryStatus(ctx context.Context, referenceID string) (*TransactionStatus, error) {
	header := http.Header{}
	header.Set("X-Target-Environment", c.cfg.TargetEnvironment)

	status, data, err := c.authorized(ctx, opStatus, http.MethodGet, "/collection/v1_0/requesttopay/"+referenceID, nil, header)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(opStatus, status)
	}

	var ts TransactionStatus
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, apperrors.NewGatewayError(opStatus, apperrors.GatewayMalformed, status, err)
	}
	if !ts.Status.Valid() {
		return nil, apperrors.NewGatewayError(opStatus, apperrors.GatewayMalformed, status,
			fmt.Errorf("unknown transaction status %q", ts.Status))
	}
	return &ts, nil
}

func (c *Client) GetBalance(ctx context.Context) (*Balance, error) {
	header := http.Header{}
	header.Set("X-Target-Environment", c.cfg.TargetEnvironment)

	status, data, err := c.authorized(ctx, opBalance, http.MethodGet, "/collection/v1_0/account/balance", nil, header)
	if err != nil {
		c.metrics.RecordGatewayRequest(opBalance, outcome(err))
		return nil, err
	}
	if status != http.StatusOK {
		err := statusError(opBalance, status)
		c.metrics.RecordGatewayRequest(opBalance, outcome(err))
		return nil, err
	}

	var b Balance
	if err := json.Unmarshal(data, &b); err != nil {
		err := apperrors.NewGatewayError(opBalance, apperrors.GatewayMalformed, status, err)
		c.metrics.RecordGatewayRequest(opBalance, outcome(err))
		return nil, err
	}
	c.metrics.RecordGatewayRequest(opBalance, "ok")
	return &b, nil
}

// authorized sends a bearer-authenticated request. A 401 drops the cached
// token and the request is replayed once with a fresh one.
func (c *Client) authorized(ctx context.Context, op, method, path string, body interface{}, header http.Header) (int, []byte, error) {
	if !c.Ready() {
		if err := c.Provision(ctx); err != nil {
			return 0, nil, err
		}
	}

	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return 0, nil, err
		}

		h := header.Clone()
		if h == nil {
			h = http.Header{}
		}
		h.Set("Authorization", "Bearer "+token)

		status, data, err := c.send(ctx, op, method, path, body, h)
		if err != nil {
			return 0, nil, err
		}
		if status == http.StatusUnauthorized && attempt == 0 {
			c.logger.Warn("access token rejected, refreshing", zap.String("op", op))
			c.invalidateToken(token)
			continue
		}
		return status, data, nil
	}
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if token, ok := c.cachedToken(); ok {
		return token, nil
	}

	v, err, _ := c.refresh.Do("token", func() (interface{}, error) {
		if token, ok := c.cachedToken(); ok {
			return token, nil
		}
		return c.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) cachedToken() (string, bool) {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	if c.token == "" || !c.now().Before(c.tokenExpiry.Add(-tokenRefreshMargin)) {
		return "", false
	}
	return c.token, true
}

func (c *Client) invalidateToken(token string) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.token == token {
		c.token = ""
	}
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	c.credMu.RLock()
	user, key := c.apiUser, c.apiKey
	c.credMu.RUnlock()

	req, err := c.newRequest(ctx, http.MethodPost, "/collection/token/", nil, nil)
	if err != nil {
		return "", apperrors.NewGatewayError(opToken, apperrors.GatewayUnavailable, 0, err)
	}
	req.SetBasicAuth(user, key)

	status, data, err := c.do(opToken, req)
	if err != nil {
		c.metrics.RecordGatewayRequest(opToken, outcome(err))
		return "", err
	}
	if status != http.StatusOK {
		err := statusError(opToken, status)
		c.metrics.RecordGatewayRequest(opToken, outcome(err))
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil || tr.AccessToken == "" {
		err := apperrors.NewGatewayError(opToken, apperrors.GatewayMalformed, status, err)
		c.metrics.RecordGatewayRequest(opToken, outcome(err))
		return "", err
	}

	expiry := c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	c.tokenMu.Lock()
	c.token = tr.AccessToken
	c.tokenExpiry = expiry
	c.tokenMu.Unlock()

	c.metrics.RecordGatewayRequest(opToken, "ok")
	c.metrics.RecordTokenRefresh()
	c.logger.Debug("access token refreshed", zap.Time("expiresAt", expiry))
	return tr.AccessToken, nil
}

func (c *Client) send(ctx context.Context, op, method, path string, body interface{}, header http.Header) (int, []byte, error) {
	req, err := c.newRequest(ctx, method, path, body, header)
	if err != nil {
		return 0, nil, apperrors.NewGatewayError(op, apperrors.GatewayMalformed, 0, err)
	}
	return c.do(op, req)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}, header http.Header) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	req.Header.Set("X-Correlation-Id", c.newID())
	return req, nil
}

func (c *Client) do(op string, req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, transportError(op, err)
	}

	c.logger.Debug("momo response",
		zap.String("op", op),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
	)
	return resp.StatusCode, data, nil
}

// statusError classifies an unexpected HTTP status.
func statusError(op string, status int) error {
	kind := apperrors.GatewayUnavailable
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = apperrors.GatewayAuth
	case status == http.StatusTooManyRequests || status >= 500:
		kind = apperrors.GatewayUnavailable
	case status >= 400:
		kind = apperrors.GatewayDeclined
	}
	return apperrors.NewGatewayError(op, kind, status, fmt.Errorf("unexpected status %d", status))
}

func transportError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewGatewayError(op, apperrors.GatewayTimeout, 0, err)
	}
	return apperrors.NewGatewayError(op, apperrors.GatewayUnavailable, 0, err)
}

func outcome(err error) string {
	if ge, ok := apperrors.IsGatewayError(err); ok {
		return strings.ToLower(string(ge.Kind))
	}
	return "error"
}
