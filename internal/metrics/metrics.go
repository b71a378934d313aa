package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CollectRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialpulse_collect_runs_total",
		Help: "Total collection job runs",
	})
	CollectErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialpulse_collect_errors_total",
		Help: "Total collection job errors",
	})
	CollectDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "socialpulse_collect_duration_seconds",
		Help:    "Collection job duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	CommentsCollected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialpulse_comments_collected_total",
		Help: "Total newly persisted comments",
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socialpulse_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	QuotaDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socialpulse_quota_denials_total",
		Help: "Total quota admission denials by priority class",
	}, []string{"class"})
	QuotaConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialpulse_quota_consumed_total",
		Help: "Total API calls charged against the quota window",
	})
	AnalysisDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialpulse_analysis_dispatched_total",
		Help: "Total sentiment analysis tasks submitted",
	})
	AnalysisFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialpulse_analysis_failures_total",
		Help: "Total sentiment analysis task failures",
	})
	AnalysisDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "socialpulse_analysis_dropped_total",
		Help: "Total sentiment analysis tasks dropped on a full queue",
	})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socialpulse_command_runs_total",
		Help: "Total CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "socialpulse_command_errors_total",
		Help: "Total CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(
		CollectRuns, CollectErrors, CollectDuration, CommentsCollected,
		APIRetries, QuotaDenials, QuotaConsumed,
		AnalysisDispatched, AnalysisFailures, AnalysisDropped,
		CommandRuns, CommandErrors,
	)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
// jobs and quota, if non-nil, are mounted at /jobs and /quota for
// operational visibility.
func StartServer(addr string, jobs, quota http.Handler) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	if jobs != nil {
		http.Handle("/jobs", jobs)
	}
	if quota != nil {
		http.Handle("/quota", quota)
	}
	go func() { _ = http.ListenAndServe(addr, nil) }()
}

// ObserveCollectDuration records a run duration.
func ObserveCollectDuration(start time.Time) {
	CollectDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

// IncQuotaDenial increments the denial counter for a priority class.
func IncQuotaDenial(class string) { QuotaDenials.WithLabelValues(class).Inc() }

// IncCommandRun increments the invocation counter for a CLI command.
func IncCommandRun(cmd string) { CommandRuns.WithLabelValues(cmd).Inc() }

// IncCommandError increments the failure counter for a CLI command.
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
