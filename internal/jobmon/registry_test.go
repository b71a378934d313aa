package jobmon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"socialpulse/internal/model"
)

func TestJobLifecycle(t *testing.T) {
	r := NewRegistry()
	r.Start("post_metrics")
	r.Progress("post_metrics", 3, 10)
	st, ok := r.Get("post_metrics")
	if !ok || st.State != model.JobRunning || st.Processed != 3 || st.Total != 10 {
		t.Fatalf("unexpected running status: %+v", st)
	}
	r.Succeed("post_metrics")
	st, _ = r.Get("post_metrics")
	if st.State != model.JobSuccess || st.EndedAt == nil {
		t.Fatalf("expected success with end time, got %+v", st)
	}
}

func TestFailKeepsLastError(t *testing.T) {
	r := NewRegistry()
	r.Start("account_metrics")
	r.Fail("account_metrics", "api quota exhausted")
	st, _ := r.Get("account_metrics")
	if st.State != model.JobFailed || st.LastError != "api quota exhausted" {
		t.Fatalf("unexpected failed status: %+v", st)
	}
}

func TestRestartOverwritesPriorRun(t *testing.T) {
	r := NewRegistry()
	r.Start("comments")
	r.Fail("comments", "boom")
	r.Start("comments")
	st, _ := r.Get("comments")
	if st.State != model.JobRunning || st.LastError != "" || st.EndedAt != nil {
		t.Fatalf("expected fresh running entry, got %+v", st)
	}
}

func TestGetUnknownJob(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nope"); ok {
		t.Fatalf("expected no status for unknown job")
	}
}

func TestConcurrentProgressAndReads(t *testing.T) {
	r := NewRegistry()
	r.Start("j")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for p := 0; p < 100; p++ {
				r.Progress("j", p, 100)
				_ = r.GetAll()
			}
		}(i)
	}
	wg.Wait()
	if st, ok := r.Get("j"); !ok || st.Total != 100 {
		t.Fatalf("unexpected status after concurrent updates: %+v", st)
	}
}

func TestServeHTTPDump(t *testing.T) {
	r := NewRegistry()
	r.Start("a")
	r.Succeed("a")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	var out map[string]model.JobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out["a"].State != model.JobSuccess {
		t.Fatalf("expected success state in dump, got %+v", out["a"])
	}
}
