package quota

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"socialpulse/internal/config"
	"socialpulse/internal/logging"
	"socialpulse/internal/metrics"
)

// Priority classes competing for the shared API call budget. Each class is
// admitted only while consumption stays under its fraction of the limit.
type Priority string

const (
	PriorityBatch      Priority = "batch"
	PriorityRealTime   Priority = "realtime"
	PriorityBackground Priority = "background"
)

// ErrExhausted signals that the current window's budget is spent for the
// caller's priority class. Batch loops stop early when they see it.
var ErrExhausted = errors.New("api quota exhausted")

// Status is a point-in-time view of the ledger.
type Status struct {
	Used    int64         `json:"used"`
	Limit   int64         `json:"limit"`
	ResetIn time.Duration `json:"reset_in"`
}

// Ledger tracks API call consumption against a rolling window. The budget
// is advisory; the API's own enforcement is the final backstop, so stale
// reads between Admit and Consume are acceptable.
type Ledger struct {
	mu          sync.Mutex
	limit       int64
	window      time.Duration
	fractions   map[Priority]float64
	consumed    int64
	windowStart time.Time
	now         func() time.Time
}

// NewLedger builds a ledger from quota configuration.
func NewLedger(cfg config.QuotaConfig) *Ledger {
	limit := cfg.DailyLimit
	if limit <= 0 {
		limit = 10000
	}
	window := time.Duration(cfg.WindowHours) * time.Hour
	if window <= 0 {
		window = 24 * time.Hour
	}
	fractions := map[Priority]float64{
		PriorityBatch:      cfg.BatchFraction,
		PriorityRealTime:   cfg.RealTimeFraction,
		PriorityBackground: cfg.BackgroundFraction,
	}
	for p, f := range fractions {
		if f <= 0 || f > 1 {
			fractions[p] = 0.80
		}
	}
	return &Ledger{
		limit:       limit,
		window:      window,
		fractions:   fractions,
		windowStart: time.Now().UTC(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// rollover resets the counter once the window has elapsed. Callers hold mu.
func (l *Ledger) rollover() {
	if l.now().Sub(l.windowStart) >= l.window {
		l.consumed = 0
		l.windowStart = l.now()
	}
}

// Admit reports whether the given priority class may issue another API
// call in the current window. It does not consume budget.
func (l *Ledger) Admit(p Priority) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	frac, ok := l.fractions[p]
	if !ok {
		frac = l.fractions[PriorityBatch]
	}
	allowed := int64(float64(l.limit) * frac)
	if l.consumed >= allowed {
		logging.Warn("quota_denied", map[string]any{
			"class": string(p), "consumed": l.consumed, "allowed": allowed, "limit": l.limit,
		})
		metrics.IncQuotaDenial(string(p))
		return false
	}
	return true
}

// Consume charges one API call against the current window.
func (l *Ledger) Consume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	l.consumed++
	metrics.QuotaConsumed.Inc()
}

// Status returns current consumption and time until the window resets.
func (l *Ledger) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	resetIn := l.window - l.now().Sub(l.windowStart)
	if resetIn < 0 {
		resetIn = 0
	}
	return Status{Used: l.consumed, Limit: l.limit, ResetIn: resetIn}
}

// ServeHTTP reports quota status as JSON for the metrics mux.
func (l *Ledger) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	st := l.Status()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int64{
		"used":        st.Used,
		"limit":       st.Limit,
		"reset_in_ms": st.ResetIn.Milliseconds(),
	})
}
