package poller

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"foodmarket/internal/domain"
)

type PaymentChecker interface {
	ListPending(ctx context.Context, limit int) ([]domain.Payment, error)
	CheckStatus(ctx context.Context, paymentID, actorID string) (*domain.Payment, error)
}

type Config struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// Poller periodically re-checks PENDING payments with the provider, so that
// payments whose webhook never arrives still settle or time out.
type Poller struct {
	payments PaymentChecker
	cfg      Config
	logger   *zap.Logger
}

func New(payments PaymentChecker, cfg Config, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Poller{payments: payments, cfg: cfg, logger: logger}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("payment poller started", zap.Duration("interval", p.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("payment poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick checks one batch and returns how many payments were examined.
func (p *Poller) Tick(ctx context.Context) int {
	pending, err := p.payments.ListPending(ctx, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("listing pending payments", zap.Error(err))
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, payment := range pending {
		id := payment.ID
		g.Go(func() error {
			// one failing payment must not stop the batch
			if _, err := p.payments.CheckStatus(gctx, id, ""); err != nil {
				p.logger.Warn("payment status check failed", zap.String("paymentId", id), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Debug("payment poll finished", zap.Int("checked", len(pending)))
	return len(pending)
}
