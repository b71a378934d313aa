package jobmon

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"socialpulse/internal/model"
)

// Registry keeps the latest status per job name. Purely in-memory: a
// process restart loses history, which is fine for operational visibility.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*model.JobStatus
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[string]*model.JobStatus),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Start records a fresh running entry for name, overwriting any prior run.
func (r *Registry) Start(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[name] = &model.JobStatus{
		Name:      name,
		State:     model.JobRunning,
		StartedAt: r.now(),
	}
}

// Progress updates the processed/total counters for a running job.
func (r *Registry) Progress(name string, processed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.jobs[name]; ok {
		st.Processed = processed
		st.Total = total
	}
}

// Succeed marks the job finished successfully.
func (r *Registry) Succeed(name string) { r.finish(name, model.JobSuccess, "") }

// Fail marks the job failed with the given reason.
func (r *Registry) Fail(name string, reason string) { r.finish(name, model.JobFailed, reason) }

func (r *Registry) finish(name string, state model.JobState, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.jobs[name]
	if !ok {
		st = &model.JobStatus{Name: name, StartedAt: r.now()}
		r.jobs[name] = st
	}
	end := r.now()
	st.State = state
	st.EndedAt = &end
	if reason != "" {
		st.LastError = reason
	}
}

// Get returns a copy of the latest status for name, if any.
func (r *Registry) Get(name string) (model.JobStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.jobs[name]
	if !ok {
		return model.JobStatus{}, false
	}
	return *st, true
}

// GetAll returns a copy of every known job status keyed by name.
func (r *Registry) GetAll() map[string]model.JobStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]model.JobStatus, len(r.jobs))
	for k, v := range r.jobs {
		out[k] = *v
	}
	return out
}

// ServeHTTP dumps all job statuses as JSON for the metrics mux.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(r.GetAll())
}
