package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
	ledgerOpCounter       *prometheus.CounterVec
	settlementCounter     *prometheus.CounterVec
	amountMismatchCounter prometheus.Counter
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		ledgerOpCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger engine operations by outcome",
		}, []string{"operation", "outcome"})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposit_settlements_total",
			Help: "Deposit settlement attempts by trigger and outcome",
		}, []string{"source", "outcome"})

		amountMismatchCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deposit_amount_mismatch_total",
			Help: "Settlements where the provider amount differed from the requested amount",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			idempotencyCounter,
			workerRunCounter,
			ledgerOpCounter,
			settlementCounter,
			amountMismatchCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func IncrementLedgerOperation(operation, outcome string) {
	if ledgerOpCounter == nil {
		return
	}
	ledgerOpCounter.WithLabelValues(operation, outcome).Inc()
}

// IncrementSettlement records a settle attempt; source is webhook, verify or worker.
func IncrementSettlement(source, outcome string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(source, outcome).Inc()
}

func IncrementAmountMismatch() {
	if amountMismatchCounter == nil {
		return
	}
	amountMismatchCounter.Inc()
}
