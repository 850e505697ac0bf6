package worker

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/service"
)

// Sweeper raises escalations for breached and at-risk work items.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// SweepWorker runs a Sweeper on a fixed interval.
type SweepWorker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewSweepWorker builds a worker. A non-positive interval disables it.
func NewSweepWorker(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *SweepWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepWorker{sweeper: sweeper, interval: interval, logger: logger}
}

// Start launches the loop. It returns immediately.
func (w *SweepWorker) Start(ctx context.Context) {
	if w.sweeper == nil || w.interval <= 0 {
		w.logger.Info("escalation sweep disabled")
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	w.logger.Info("escalation sweep started", zap.Duration("interval", w.interval))
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (w *SweepWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *SweepWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *SweepWorker) sweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()
	sweepCtx, span := otel.Tracer("github.com/spec-kit/sla-service/internal/worker").
		Start(sweepCtx, "escalation.sweep", trace.WithNewRoot(), trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	result, err := w.sweeper.Sweep(sweepCtx)
	if err != nil {
		span.RecordError(err)
		w.logger.Warn("escalation sweep failed", zap.Error(err))
		return
	}
	if result.Breaches > 0 || result.AtRisk > 0 {
		w.logger.Info("escalation sweep raised escalations",
			zap.Int("breaches", result.Breaches),
			zap.Int("at_risk", result.AtRisk))
	}
}
