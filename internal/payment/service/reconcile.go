package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"foodmarket/internal/domain"
	apperrors "foodmarket/internal/errors"
	"foodmarket/internal/events"
	"foodmarket/internal/infrastructure/mysql"
)

// Report is a provider statement about a transaction, from a webhook or a
// status query.
type Report struct {
	Status                 domain.GatewayStatus
	Reason                 string
	FinancialTransactionID string
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeLate      Outcome = "late"
	OutcomeReview    Outcome = "review"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomePending   Outcome = "pending"
)

const defaultFailureReason = "Payment failed"

type reconciliation struct {
	payment *domain.Payment
	order   *domain.Order
	outcome Outcome
}

// ApplyStatus is the single convergence point for webhooks and polling.
// Reports are applied under the payment row lock so that concurrent
// deliveries of the same report produce one transition and one event.
func (s *PaymentService) ApplyStatus(ctx context.Context, paymentID string, report Report) (*domain.Payment, error) {
	if !report.Status.Valid() {
		return nil, apperrors.NewValidationError("validation failed", apperrors.ValidationDetail{
			Field:   "status",
			Message: "unknown transaction status",
		})
	}

	var rec *reconciliation
	err := mysql.WithDeadlockRetry(ctx, s.logger, "payment.apply_status", s.cfg.MaxRetryAttempts, func(ctx context.Context) error {
		r, err := s.applyStatus(ctx, paymentID, report)
		rec = r
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordReconciliation(string(rec.outcome))
	logger := s.logger.With(
		zap.String("paymentId", rec.payment.ID),
		zap.String("orderId", rec.payment.OrderID),
		zap.String("outcome", string(rec.outcome)),
	)

	switch rec.outcome {
	case OutcomeConfirmed, OutcomeLate:
		s.events.Emit(ctx, events.NewPaymentConfirmed(subjectOf(rec.order), rec.payment.ID, rec.payment.Amount, rec.payment.Currency))
		logger.Info("payment confirmed")
	case OutcomeFailed:
		s.emitForOrder(ctx, rec.payment, func(sub events.Subject) events.Event {
			return events.NewPaymentFailed(sub, rec.payment.ID, rec.payment.Metadata.FailureReason)
		})
		logger.Info("payment failed", zap.String("reason", rec.payment.Metadata.FailureReason))
	case OutcomeReview:
		logger.Warn("payment succeeded for an order that is no longer payable, flagged for review")
	case OutcomeDuplicate:
		logger.Debug("status report already applied")
	}

	return rec.payment, nil
}

func (s *PaymentService) applyStatus(ctx context.Context, paymentID string, report Report) (*reconciliation, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	payment, err := s.payments.LockByID(txCtx, tx, paymentID)
	if err != nil {
		return nil, err
	}

	rec := &reconciliation{payment: payment, outcome: OutcomeDuplicate}
	now := s.now()

	switch report.Status {
	case domain.GatewayStatusSuccessful:
		if payment.Status == domain.PaymentStatusSuccess {
			return rec, nil
		}

		meta := payment.Metadata
		if report.FinancialTransactionID != "" {
			meta.FinancialTransactionID = report.FinancialTransactionID
		}

		late := payment.TimedOut()
		if payment.Status == domain.PaymentStatusFailed && !late {
			// the provider already said FAILED; keep it and let a human look
			meta.RequiresReview = true
			if err := s.payments.UpdateMetadata(txCtx, tx, payment.ID, meta); err != nil {
				return nil, err
			}
			payment.Metadata = meta
			rec.outcome = OutcomeReview
			break
		}
		if late {
			meta.LateReconciledAt = &now
		}

		ok, err := s.payments.UpdateStatus(txCtx, tx, payment.ID, payment.Status, domain.PaymentStatusSuccess, meta)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.NewConflictError(fmt.Sprintf("payment %s changed concurrently", payment.ID))
		}
		payment.Status = domain.PaymentStatusSuccess
		payment.Metadata = meta

		order, err := s.orders.LockByID(txCtx, tx, payment.OrderID)
		if err != nil {
			return nil, err
		}
		rec.order = order

		paid, err := s.orders.MarkPaid(txCtx, tx, order.ID, now)
		if err != nil {
			return nil, err
		}
		if !paid {
			meta.RequiresReview = true
			if err := s.payments.UpdateMetadata(txCtx, tx, payment.ID, meta); err != nil {
				return nil, err
			}
			payment.Metadata = meta
			rec.outcome = OutcomeReview
			break
		}
		order.Status = domain.OrderStatusPaid
		order.PaidAt = &now

		rec.outcome = OutcomeConfirmed
		if late {
			rec.outcome = OutcomeLate
		}

	case domain.GatewayStatusFailed:
		if payment.Status != domain.PaymentStatusPending {
			return rec, nil
		}

		meta := payment.Metadata
		meta.FailureReason = report.Reason
		if meta.FailureReason == "" {
			meta.FailureReason = defaultFailureReason
		}
		meta.FailureKind = string(apperrors.GatewayDeclined)

		ok, err := s.payments.UpdateStatus(txCtx, tx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed, meta)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.NewConflictError(fmt.Sprintf("payment %s changed concurrently", payment.ID))
		}
		payment.Status = domain.PaymentStatusFailed
		payment.Metadata = meta
		rec.outcome = OutcomeFailed

	case domain.GatewayStatusPending:
		if payment.Status != domain.PaymentStatusPending {
			return rec, nil
		}
		meta := payment.Metadata
		meta.LastStatusCheck = &now
		if err := s.payments.UpdateMetadata(txCtx, tx, payment.ID, meta); err != nil {
			return nil, err
		}
		payment.Metadata = meta
		rec.outcome = OutcomePending
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return rec, nil
}

// HandleTimeout fails a payment that stayed PENDING for too long. It is a
// no-op for any other status.
func (s *PaymentService) HandleTimeout(ctx context.Context, paymentID string) (*domain.Payment, error) {
	var (
		payment  *domain.Payment
		timedOut bool
	)
	err := mysql.WithDeadlockRetry(ctx, s.logger, "payment.timeout", s.cfg.MaxRetryAttempts, func(ctx context.Context) error {
		p, changed, err := s.timeout(ctx, paymentID)
		payment, timedOut = p, changed
		return err
	})
	if err != nil {
		return nil, err
	}
	if !timedOut {
		return payment, nil
	}

	s.metrics.RecordReconciliation(string(OutcomeTimeout))
	s.emitForOrder(ctx, payment, func(sub events.Subject) events.Event {
		return events.NewPaymentTimedOut(sub, payment.ID)
	})
	s.logger.Info("payment timed out", zap.String("paymentId", payment.ID), zap.String("orderId", payment.OrderID))
	return payment, nil
}

func (s *PaymentService) timeout(ctx context.Context, paymentID string) (*domain.Payment, bool, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.cfg.TxTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	payment, err := s.payments.LockByID(txCtx, tx, paymentID)
	if err != nil {
		return nil, false, err
	}
	if payment.Status != domain.PaymentStatusPending {
		return payment, false, nil
	}

	now := s.now()
	meta := payment.Metadata
	meta.TimeoutAt = &now
	meta.FailureReason = "payment timed out"
	meta.FailureKind = string(apperrors.GatewayTimeout)

	ok, err := s.payments.UpdateStatus(txCtx, tx, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed, meta)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return payment, false, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing transaction: %w", err)
	}

	payment.Status = domain.PaymentStatusFailed
	payment.Metadata = meta
	return payment, true, nil
}

// emitForOrder resolves the order subject outside the transaction. A lookup
// failure loses the notification, not the state change.
func (s *PaymentService) emitForOrder(ctx context.Context, p *domain.Payment, build func(events.Subject) events.Event) {
	order, err := s.orders.FindByID(ctx, p.OrderID)
	if err != nil {
		s.logger.Error("cannot resolve order for payment event", zap.String("paymentId", p.ID), zap.Error(err))
		return
	}
	s.events.Emit(ctx, build(subjectOf(order)))
}

func subjectOf(o *domain.Order) events.Subject {
	return events.Subject{OrderID: o.ID, UserID: o.UserID, RestaurantID: o.RestaurantID}
}
