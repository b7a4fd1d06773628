package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	transferCounter        *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	ledgerImbalanceCounter prometheus.Counter
	lockWaitHistogram      prometheus.Histogram
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Ledger transfer outcomes by transaction type",
		}, []string{"type", "outcome"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_idempotency_events_total",
			Help: "Idempotency resolution outcomes",
		}, []string{"outcome"})

		ledgerImbalanceCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of times double-entry invariants diverged",
		})

		lockWaitHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_lock_wait_seconds",
			Help:    "Time spent inside the account-lock unit of work",
			Buckets: prometheus.DefBuckets,
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			transferCounter,
			idempotencyCounter,
			ledgerImbalanceCounter,
			lockWaitHistogram,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementTransfer(txType, outcome string) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(txType, outcome).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementLedgerImbalance() {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.Inc()
}

func ObserveLockWait(duration time.Duration) {
	if lockWaitHistogram == nil {
		return
	}
	lockWaitHistogram.Observe(duration.Seconds())
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
