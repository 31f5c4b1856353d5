package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayo6706/wallet-ledger/internal/observability"
	"github.com/ayo6706/wallet-ledger/internal/service"
	"go.uber.org/zap"
)

// PendingVerifier polls the provider for deposits still awaiting settlement.
type PendingVerifier interface {
	VerifyPending(ctx context.Context, batch int32) (service.VerifyStats, error)
}

// DepositVerificationWorker settles deposits whose webhook never arrived and
// expires the ones the provider reports as failed.
type DepositVerificationWorker struct {
	deposits  PendingVerifier
	interval  time.Duration
	batchSize int32
	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// NewDepositVerificationWorker constructs a worker polling every minute, 50 deposits at a time.
func NewDepositVerificationWorker(deposits PendingVerifier) *DepositVerificationWorker {
	return &DepositVerificationWorker{
		deposits:  deposits,
		interval:  time.Minute,
		batchSize: 50,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// WithInterval updates the poll interval.
func (w *DepositVerificationWorker) WithInterval(interval time.Duration) *DepositVerificationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithBatchSize sets how many pending deposits one pass inspects.
func (w *DepositVerificationWorker) WithBatchSize(size int32) *DepositVerificationWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and verifies pending deposits at the configured interval.
func (w *DepositVerificationWorker) Start(ctx context.Context) {
	defer close(w.done)
	zap.L().Info("deposit verification worker starting",
		zap.Duration("interval", w.interval),
		zap.Int32("batch_size", w.batchSize),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("deposit verification worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("deposit verification worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop. It is safe to call more than once.
func (w *DepositVerificationWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Done is closed once Start has returned.
func (w *DepositVerificationWorker) Done() <-chan struct{} {
	return w.done
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *DepositVerificationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce runs a single pass immediately.
func (w *DepositVerificationWorker) ProcessOnce(ctx context.Context) (service.VerifyStats, error) {
	return w.deposits.VerifyPending(ctx, w.batchSize)
}

func (w *DepositVerificationWorker) runOnce(ctx context.Context) {
	stats, err := w.ProcessOnce(ctx)
	if err != nil {
		observability.IncrementWorkerRun("deposit_verification", "failed")
		zap.L().Error("deposit verification run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("deposit_verification", "success")
	if stats.Checked > 0 {
		zap.L().Info("deposit verification run completed",
			zap.Int("checked", stats.Checked),
			zap.Int("settled", stats.Settled),
			zap.Int("expired", stats.Expired),
			zap.Int("failed", stats.Failed),
		)
	}
}

func (w *DepositVerificationWorker) String() string {
	return fmt.Sprintf("DepositVerificationWorker(interval=%v, batch=%d)", w.interval, w.batchSize)
}
