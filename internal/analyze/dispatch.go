package analyze

import (
	"context"
	"sync"

	"socialpulse/internal/logging"
	"socialpulse/internal/metrics"
	"socialpulse/internal/model"
)

// Store is the slice of persistence the dispatcher writes through.
type Store interface {
	UpdateCommentSentiment(ctx context.Context, id int64, sentiment string) error
	ReplaceKeywords(ctx context.Context, postID string, positive, negative []string) error
	FindKeywords(ctx context.Context, postID string) (positive, negative []string, err error)
}

type task struct {
	postID   string
	comments []model.Comment
}

// Dispatcher runs sentiment analysis on a fixed-size worker pool. Submit
// is detached: the collection flow never waits on analysis, and analysis
// failures never reach it. Results land in the store as they complete,
// in no particular order.
type Dispatcher struct {
	store    Store
	analyzer Analyzer
	tasks    chan task
	wg       sync.WaitGroup
	once     sync.Once
}

// NewDispatcher starts workers goroutines consuming a queue of queueSize
// pending tasks.
func NewDispatcher(store Store, analyzer Analyzer, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		store:    store,
		analyzer: analyzer,
		tasks:    make(chan task, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d
}

// Submit queues a post's newly collected comments for analysis. When the
// queue is full the task is dropped with a warning; the comments keep a
// null sentiment and are picked up by the next re-analysis pass.
func (d *Dispatcher) Submit(postID string, comments []model.Comment) {
	if len(comments) == 0 {
		return
	}
	select {
	case d.tasks <- task{postID: postID, comments: comments}:
		metrics.AnalysisDispatched.Inc()
	default:
		metrics.AnalysisDropped.Inc()
		logging.Warn("analysis_queue_full", map[string]any{"post_id": postID, "comments": len(comments)})
	}
}

// Close stops accepting tasks and waits for in-flight analysis to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.tasks) })
	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for t := range d.tasks {
		d.process(context.Background(), t)
	}
}

// process performs one analysis round trip. Every failure path logs and
// returns; nothing propagates to the submitter.
func (d *Dispatcher) process(ctx context.Context, t task) {
	positive, negative, err := d.store.FindKeywords(ctx, t.postID)
	if err != nil {
		logging.Warn("analysis_keywords_load_failed", map[string]any{"post_id": t.postID, "error": err.Error()})
	}
	req := Request{
		Comments: make([]RequestComment, 0, len(t.comments)),
		Keywords: KeywordSet{Positive: positive, Negative: negative},
	}
	for _, c := range t.comments {
		req.Comments = append(req.Comments, RequestComment{ID: c.ID, Text: c.Content})
	}
	resp, err := d.analyzer.Analyze(ctx, req)
	if err != nil {
		metrics.AnalysisFailures.Inc()
		logging.Error("analysis_failed", map[string]any{"post_id": t.postID, "error": err.Error()})
		return
	}
	bySentiment := make(map[int64]string, len(resp.Results))
	for _, r := range resp.Results {
		bySentiment[r.ID] = r.Sentiment
	}
	for _, c := range t.comments {
		label, ok := bySentiment[c.ID]
		if !ok {
			logging.Warn("analysis_missing_result", map[string]any{"post_id": t.postID, "comment_id": c.ID})
			continue
		}
		if err := d.store.UpdateCommentSentiment(ctx, c.ID, label); err != nil {
			logging.Warn("sentiment_write_failed", map[string]any{"comment_id": c.ID, "error": err.Error()})
		}
	}
	if err := d.store.ReplaceKeywords(ctx, t.postID, resp.Keywords.Positive, resp.Keywords.Negative); err != nil {
		logging.Warn("keyword_replace_failed", map[string]any{"post_id": t.postID, "error": err.Error()})
	}
}
