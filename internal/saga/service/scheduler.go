package service

import (
	"context"
	"time"

	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/domain"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/internal/saga/repository"
	"github.com/Fabio-Dev-Bauru/ecommerce-cqrs-eventsourcing/pkg/mylogger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	sagaTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_timeouts_total",
		Help: "Sagas failed by the timeout sweep.",
	})
	sagaRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_retries_total",
		Help: "Failed sagas re-driven by the retry sweep.",
	})
)

type SchedulerConfig struct {
	TimeoutWindow time.Duration
	SweepInterval time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

// Scheduler runs two periodic sweeps over the saga table: one that fails
// sagas stuck in a pending state past the timeout window, and one that
// re-drives FAILED sagas that still have retry budget left.
type Scheduler struct {
	repo         repository.SagaRepository
	orchestrator *Orchestrator
	cfg          SchedulerConfig
	logger       *zap.Logger
}

func NewScheduler(repo repository.SagaRepository, orchestrator *Orchestrator, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		repo:         repo,
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       logger,
	}
}

// Start blocks, running both sweeps on their own tickers until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	timeoutTicker := time.NewTicker(s.cfg.SweepInterval)
	defer timeoutTicker.Stop()

	retryTicker := time.NewTicker(s.cfg.RetryInterval)
	defer retryTicker.Stop()

	mylogger.Info(
		ctx,
		s.logger,
		"Saga scheduler started",
		zap.Duration("timeout_window", s.cfg.TimeoutWindow),
		zap.Duration("sweep_interval", s.cfg.SweepInterval),
		zap.Duration("retry_interval", s.cfg.RetryInterval),
		zap.Int("max_retries", s.cfg.MaxRetries),
	)

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, s.logger, "Saga scheduler stopped")

			return
		case <-timeoutTicker.C:
			s.SweepTimeouts(ctx)
		case <-retryTicker.C:
			s.SweepRetries(ctx)
		}
	}
}

// SweepTimeouts fails every non-terminal saga that has made no progress for
// longer than the timeout window, whether it is waiting on a collaborator
// reply or was stranded mid-transition by a crash. A late reply arriving
// afterwards no longer matches the step gate and is discarded; the retry
// sweep may still resurrect the saga from the step it died on.
func (s *Scheduler) SweepTimeouts(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.TimeoutWindow)

	sagas, err := s.repo.FindTimedOut(ctx, domain.PendingStatuses(), cutoff)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Timeout sweep query failed", zap.Error(err))

		return
	}

	for _, saga := range sagas {
		mylogger.Warn(
			ctx,
			s.logger,
			"Saga timed out",
			zap.String("correlation_id", saga.CorrelationID.String()),
			zap.String("status", string(saga.Status)),
			zap.Time("updated_at", saga.UpdatedAt),
		)

		reason := "Saga timed out waiting on step " + string(saga.CurrentStep)
		if err := s.orchestrator.failSaga(ctx, saga, reason); err != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to time out saga",
				zap.String("correlation_id", saga.CorrelationID.String()),
				zap.Error(err),
			)

			continue
		}

		sagaTimeoutsTotal.Inc()
	}
}

// SweepRetries resurrects FAILED sagas that still have retry budget: the
// retry count goes up and the orchestrator re-drives the step the saga
// died on, forward or compensating.
func (s *Scheduler) SweepRetries(ctx context.Context) {
	sagas, err := s.repo.FindRetryable(ctx, s.cfg.MaxRetries)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Retry sweep query failed", zap.Error(err))

		return
	}

	for _, saga := range sagas {
		mylogger.Info(
			ctx,
			s.logger,
			"Re-driving failed saga",
			zap.String("correlation_id", saga.CorrelationID.String()),
			zap.String("current_step", string(saga.CurrentStep)),
			zap.Int("retry_count", saga.RetryCount+1),
		)

		saga.IncrementRetryCount()

		if err := s.orchestrator.Redrive(ctx, saga); err != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to re-drive saga",
				zap.String("correlation_id", saga.CorrelationID.String()),
				zap.Error(err),
			)

			continue
		}

		sagaRetriesTotal.Inc()
	}
}
