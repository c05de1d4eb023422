package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/events"
	"foodmarket/internal/infrastructure/metrics"
	"foodmarket/internal/infrastructure/mysql"
	"foodmarket/internal/payment/gateway"
)

// WebhookProvider is the only provider path accepted by HandleWebhook.
const WebhookProvider = "mtn-momo"

type Gateway interface {
	Initiate(ctx context.Context, req gateway.RequestToPay) (string, error)
	QueryStatus(ctx context.Context, referenceID string) (*gateway.TransactionStatus, error)
	GetBalance(ctx context.Context) (*gateway.Balance, error)
	Ready() bool
	Err() error
}

type PaymentRepository interface {
	Insert(ctx context.Context, q mysql.Querier, p *domain.Payment) error
	FindByID(ctx context.Context, id string) (*domain.Payment, error)
	LockByID(ctx context.Context, tx *sql.Tx, id string) (*domain.Payment, error)
	FindByReference(ctx context.Context, provider, reference string) (*domain.Payment, error)
	LatestForOrder(ctx context.Context, q mysql.Querier, orderID string) (*domain.Payment, error)
	ListPending(ctx context.Context, limit int) ([]domain.Payment, error)
	SetReference(ctx context.Context, id, reference string, meta domain.PaymentMetadata) error
	UpdateStatus(ctx context.Context, q mysql.Querier, id string, from, to domain.PaymentStatus, meta domain.PaymentMetadata) (bool, error)
	UpdateMetadata(ctx context.Context, q mysql.Querier, id string, meta domain.PaymentMetadata) error
}

type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	LockByID(ctx context.Context, tx *sql.Tx, id string) (*domain.Order, error)
	MarkPaid(ctx context.Context, tx *sql.Tx, id string, paidAt time.Time) (bool, error)
}

type RestaurantRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Restaurant, error)
}

type Emitter interface {
	Emit(ctx context.Context, e events.Event)
}

type Config struct {
	Timeout          time.Duration
	TxTimeout        time.Duration
	MaxRetryAttempts int
	Currency         string
	CountryCode      string
	VerifyWebhooks   bool
}

type PaymentService struct {
	db          mysql.DB
	payments    PaymentRepository
	orders      OrderRepository
	restaurants RestaurantRepository
	gateway     Gateway
	events      Emitter
	metrics     *metrics.Metrics
	logger      *zap.Logger
	cfg         Config
	now         func() time.Time
	newID       func() string
}

func NewPaymentService(
	db mysql.DB,
	payments PaymentRepository,
	orders OrderRepository,
	restaurants RestaurantRepository,
	gw Gateway,
	emitter Emitter,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg Config,
) *PaymentService {
	return &PaymentService{
		db:          db,
		payments:    payments,
		orders:      orders,
		restaurants: restaurants,
		gateway:     gw,
		events:      emitter,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return uuid.New().String() },
	}
}

type InitiateResult struct {
	Payment     *domain.Payment
	ReferenceID string
}

// Initiate starts a mobile money collection for a PENDING order of userID.
// The phone number is validated before anything else so a bad number never
// reaches the provider.
func (s *PaymentService) Initiate(ctx context.Context, userID, orderID, phone string) (*InitiateResult, error) {
	msisdn, err := gateway.NormalizePhone(phone, s.cfg.CountryCode)
	if err != nil {
		return nil, err
	}

	var (
		payment    *domain.Payment
		order      *domain.Order
		restaurant *domain.Restaurant
	)
	err = mysql.WithDeadlockRetry(ctx, s.logger, "payment.initiate", s.cfg.MaxRetryAttempts, func(ctx context.Context) error {
		p, o, r, err := s.reserve(ctx, userID, orderID, msisdn)
		payment, order, restaurant = p, o, r
		return err
	})
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("paymentId", payment.ID), zap.String("orderId", order.ID))

	ref, err := s.gateway.Initiate(ctx, gateway.RequestToPay{
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		PayerPhone:   msisdn,
		ExternalID:   payment.ID,
		PayerMessage: "Payment for order " + order.ID,
		PayeeNote:    "Payment at " + restaurant.Name,
	})
	if err != nil {
		meta := payment.Metadata
		meta.FailureReason = err.Error()
		meta.FailureKind = "INITIATION"
		if ge, ok := apperrors.IsGatewayError(err); ok {
			meta.FailureKind = string(ge.Kind)
		}
		// record the failure even if the caller went away
		if _, uerr := s.payments.UpdateStatus(context.WithoutCancel(ctx), s.db, payment.ID,
			domain.PaymentStatusPending, domain.PaymentStatusFailed, meta); uerr != nil {
			logger.Error("failed to record initiation failure", zap.Error(uerr))
		}
		logger.Warn("payment initiation failed", zap.Error(err))
		return nil, err
	}

	payment.ProviderTransactionID = &ref
	payment.Metadata.ReferenceID = ref
	if err := s.payments.SetReference(ctx, payment.ID, ref, payment.Metadata); err != nil {
		logger.Error("provider accepted the payment but the reference could not be stored",
			zap.String("referenceId", ref), zap.Error(err))
		return nil, err
	}

	logger.Info("payment initiated", zap.String("referenceId", ref), zap.Int64("amount", payment.Amount))
	return &InitiateResult{Payment: payment, ReferenceID: ref}, nil
}

// reserve records a PENDING attempt while holding the order row lock, so
// concurrent initiations for one order see each other's attempt and only
// one of them reaches the provider.
func (s *PaymentService) reserve(ctx context.Context, userID, orderID, msisdn string) (*domain.Payment, *domain.Order, *domain.Restaurant, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	order, err := s.orders.LockByID(txCtx, tx, orderID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, nil, nil, apperrors.NewNotFoundError("order not found")
		}
		return nil, nil, nil, err
	}
	if order.UserID != userID {
		return nil, nil, nil, apperrors.NewForbiddenError("not authorized to pay this order")
	}
	if order.Status != domain.OrderStatusPending {
		return nil, nil, nil, apperrors.NewConflictError(fmt.Sprintf("order cannot be paid in status %s", order.Status))
	}
	if order.PaymentMethod != domain.PaymentMethodMobileMoney {
		return nil, nil, nil, apperrors.NewConflictError("order is not paid by mobile money")
	}

	latest, err := s.payments.LatestForOrder(txCtx, tx, orderID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); !ok {
			return nil, nil, nil, err
		}
	}
	if latest != nil && latest.Status == domain.PaymentStatusPending && !latest.Expired(s.now(), s.cfg.Timeout) {
		return nil, nil, nil, apperrors.NewConflictError("a payment is already in progress for this order")
	}

	restaurant, err := s.restaurants.FindByID(txCtx, order.RestaurantID)
	if err != nil {
		return nil, nil, nil, err
	}

	payment := &domain.Payment{
		ID:          s.newID(),
		OrderID:     order.ID,
		Amount:      order.Total,
		Currency:    s.cfg.Currency,
		PhoneNumber: msisdn,
		Status:      domain.PaymentStatusPending,
		Provider:    domain.ProviderMTNMoMo,
		CreatedAt:   s.now(),
	}
	if err := s.payments.Insert(txCtx, tx, payment); err != nil {
		return nil, nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, nil, fmt.Errorf("committing transaction: %w", err)
	}
	return payment, order, restaurant, nil
}

// CheckStatus is the poll path. It asks the provider for the current state
// and converges through ApplyStatus. actorID may be empty for internal
// callers; otherwise it must be the buyer or the restaurant owner.
func (s *PaymentService) CheckStatus(ctx context.Context, paymentID, actorID string) (*domain.Payment, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if actorID != "" {
		if err := s.authorize(ctx, payment.OrderID, actorID); err != nil {
			return nil, err
		}
	}

	if payment.Status == domain.PaymentStatusSuccess {
		return payment, nil
	}
	if payment.Status == domain.PaymentStatusFailed && !payment.TimedOut() {
		return payment, nil
	}

	logger := s.logger.With(zap.String("paymentId", payment.ID))

	if payment.ProviderTransactionID == nil {
		if payment.Expired(s.now(), s.cfg.Timeout) {
			return s.HandleTimeout(ctx, payment.ID)
		}
		return payment, nil
	}

	ts, err := s.gateway.QueryStatus(ctx, *payment.ProviderTransactionID)
	if err != nil {
		logger.Warn("status query failed, keeping local status", zap.Error(err))
		if payment.Expired(s.now(), s.cfg.Timeout) {
			return s.HandleTimeout(ctx, payment.ID)
		}
		return payment, nil
	}

	updated, err := s.ApplyStatus(ctx, payment.ID, Report{
		Status:                 ts.Status,
		Reason:                 ts.Reason,
		FinancialTransactionID: ts.FinancialTransactionID,
	})
	if err != nil {
		return nil, err
	}

	if updated.Expired(s.now(), s.cfg.Timeout) {
		return s.HandleTimeout(ctx, updated.ID)
	}
	return updated, nil
}

type WebhookPayload struct {
	ReferenceID            string
	Status                 domain.GatewayStatus
	FinancialTransactionID string
	Reason                 string
}

// HandleWebhook applies a provider notification. Any error is reported so
// the provider delivers the notification again.
func (s *PaymentService) HandleWebhook(ctx context.Context, provider string, payload WebhookPayload) (*domain.Payment, error) {
	if provider != WebhookProvider {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("unknown payment provider %q", provider))
	}

	var details []apperrors.ValidationDetail
	if strings.TrimSpace(payload.ReferenceID) == "" {
		details = append(details, apperrors.ValidationDetail{Field: "referenceId", Message: "referenceId is required"})
	}
	if !payload.Status.Valid() {
		details = append(details, apperrors.ValidationDetail{Field: "status", Message: "status must be PENDING, SUCCESSFUL or FAILED"})
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("validation failed", details...)
	}

	payment, err := s.payments.FindByReference(ctx, domain.ProviderMTNMoMo, payload.ReferenceID)
	if err != nil {
		return nil, err
	}

	report := Report{
		Status:                 payload.Status,
		Reason:                 payload.Reason,
		FinancialTransactionID: payload.FinancialTransactionID,
	}

	if s.cfg.VerifyWebhooks {
		ts, err := s.gateway.QueryStatus(ctx, payload.ReferenceID)
		if err != nil {
			return nil, err
		}
		if ts.Status != payload.Status {
			s.logger.Warn("webhook status differs from provider status",
				zap.String("paymentId", payment.ID),
				zap.String("webhookStatus", string(payload.Status)),
				zap.String("providerStatus", string(ts.Status)),
			)
		}
		report = Report{Status: ts.Status, Reason: ts.Reason, FinancialTransactionID: ts.FinancialTransactionID}
	}

	s.logger.Info("payment webhook received",
		zap.String("paymentId", payment.ID),
		zap.String("referenceId", payload.ReferenceID),
		zap.String("status", string(report.Status)),
	)
	return s.ApplyStatus(ctx, payment.ID, report)
}

type GatewayHealth struct {
	Ready bool
	Err   error
}

// Health reports whether the provider is usable. The balance call only
// proves that the credentials work; the amount itself is not exposed.
func (s *PaymentService) Health(ctx context.Context) GatewayHealth {
	if !s.gateway.Ready() {
		return GatewayHealth{Err: s.gateway.Err()}
	}
	if _, err := s.gateway.GetBalance(ctx); err != nil {
		return GatewayHealth{Ready: true, Err: err}
	}
	return GatewayHealth{Ready: true}
}

// ListPending exposes the poll batch to the poller.
func (s *PaymentService) ListPending(ctx context.Context, limit int) ([]domain.Payment, error) {
	return s.payments.ListPending(ctx, limit)
}

func (s *PaymentService) authorize(ctx context.Context, orderID, actorID string) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID == actorID {
		return nil
	}
	restaurant, err := s.restaurants.FindByID(ctx, order.RestaurantID)
	if err != nil {
		return err
	}
	if _, ok := order.RoleOf(actorID, restaurant.OwnerID); !ok {
		return apperrors.NewForbiddenError("not authorized to access this payment")
	}
	return nil
}
