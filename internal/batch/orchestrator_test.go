package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"socialpulse/internal/jobmon"
	"socialpulse/internal/model"
	"socialpulse/internal/quota"
)

type item struct{ ID string }

func pagedSource(ids []string, pageSize int) Source[item] {
	return Source[item]{
		Count: func(ctx context.Context) (int, error) { return len(ids), nil },
		Page: func(ctx context.Context, page int) ([]item, error) {
			start := page * pageSize
			if start >= len(ids) {
				return nil, nil
			}
			end := start + pageSize
			if end > len(ids) {
				end = len(ids)
			}
			out := make([]item, 0, end-start)
			for _, id := range ids[start:end] {
				out = append(out, item{ID: id})
			}
			return out, nil
		},
	}
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("id-%d", i+1)
	}
	return out
}

func TestRunProcessesAllPages(t *testing.T) {
	mon := jobmon.NewRegistry()
	var seen []string
	err := Run(context.Background(), mon, "job", pagedSource(ids(5), 2),
		func(it item) string { return it.ID },
		func(ctx context.Context, it item) error { seen = append(seen, it.ID); return nil })
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 items processed, got %d", len(seen))
	}
	st, _ := mon.Get("job")
	if st.State != model.JobSuccess || st.Processed != 5 || st.Total != 5 {
		t.Fatalf("unexpected job status: %+v", st)
	}
}

func TestRunIsolatesItemFailures(t *testing.T) {
	mon := jobmon.NewRegistry()
	var attempted int
	err := Run(context.Background(), mon, "job", pagedSource(ids(10), 3),
		func(it item) string { return it.ID },
		func(ctx context.Context, it item) error {
			attempted++
			if it.ID == "id-3" {
				return errors.New("transient failure")
			}
			return nil
		})
	if err != nil {
		t.Fatalf("single item failure must not abort the batch: %v", err)
	}
	if attempted != 10 {
		t.Fatalf("expected all 10 items attempted, got %d", attempted)
	}
	st, _ := mon.Get("job")
	if st.State != model.JobSuccess || st.Processed != 10 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestRunStopsOnQuotaExhaustion(t *testing.T) {
	mon := jobmon.NewRegistry()
	var attempted int
	err := Run(context.Background(), mon, "job", pagedSource(ids(10), 4),
		func(it item) string { return it.ID },
		func(ctx context.Context, it item) error {
			attempted++
			if attempted == 3 {
				return fmt.Errorf("get stats: %w", quota.ErrExhausted)
			}
			return nil
		})
	if !errors.Is(err, quota.ErrExhausted) {
		t.Fatalf("expected quota exhaustion surfaced, got %v", err)
	}
	if attempted != 3 {
		t.Fatalf("expected early stop after 3 attempts, got %d", attempted)
	}
	st, _ := mon.Get("job")
	if st.State != model.JobFailed || st.Processed != 2 {
		t.Fatalf("expected failed job with partial progress, got %+v", st)
	}
}

func TestRunFailsOnPageError(t *testing.T) {
	mon := jobmon.NewRegistry()
	src := Source[item]{
		Count: func(ctx context.Context) (int, error) { return 4, nil },
		Page: func(ctx context.Context, page int) ([]item, error) {
			if page == 1 {
				return nil, errors.New("db gone")
			}
			return []item{{ID: "a"}, {ID: "b"}}, nil
		},
	}
	err := Run(context.Background(), mon, "job", src,
		func(it item) string { return it.ID },
		func(ctx context.Context, it item) error { return nil })
	if err == nil {
		t.Fatalf("expected page error to abort the run")
	}
	st, _ := mon.Get("job")
	if st.State != model.JobFailed || st.LastError == "" {
		t.Fatalf("expected failed job with last error, got %+v", st)
	}
}

func TestRunEmptySource(t *testing.T) {
	mon := jobmon.NewRegistry()
	err := Run(context.Background(), mon, "job", pagedSource(nil, 10),
		func(it item) string { return it.ID },
		func(ctx context.Context, it item) error { t.Fatal("no items expected"); return nil })
	if err != nil {
		t.Fatal(err)
	}
	st, _ := mon.Get("job")
	if st.State != model.JobSuccess || st.Processed != 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
}
