package collect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"socialpulse/internal/batch"
	"socialpulse/internal/config"
	"socialpulse/internal/jobmon"
	"socialpulse/internal/logging"
	"socialpulse/internal/model"
	"socialpulse/internal/quota"
	"socialpulse/internal/snsapi"
	"socialpulse/internal/store/analyticsdb"
)

// Job names surfaced through the job monitor.
const (
	JobAccountMetrics  = "account_metrics"
	JobPostMetrics     = "post_metrics"
	JobPostComments    = "post_comments"
	JobCommentBackfill = "comment_backfill"
)

// ErrValidation rejects metric values outside sane bounds. The item is
// not persisted and the batch moves on.
var ErrValidation = errors.New("metric validation failed")

// maxSaneCount bounds any single metric value; anything above is treated
// as upstream corruption rather than a real count.
const maxSaneCount = int64(1e12)

// Dispatcher is the detached sentiment-analysis entry point.
type Dispatcher interface {
	Submit(postID string, comments []model.Comment)
}

// Service drives metric and comment collection against the quota ledger,
// reporting every job through the monitor.
type Service struct {
	db       *analyticsdb.DB
	client   snsapi.Client
	ledger   *quota.Ledger
	mon      *jobmon.Registry
	dispatch Dispatcher
	cfg      config.CollectionConfig
}

func NewService(db *analyticsdb.DB, client snsapi.Client, ledger *quota.Ledger, mon *jobmon.Registry, dispatch Dispatcher, cfg config.CollectionConfig) *Service {
	if cfg.EntityPageSize <= 0 {
		cfg.EntityPageSize = 50
	}
	if cfg.CommentPageSize <= 0 {
		cfg.CommentPageSize = 100
	}
	if cfg.MaxCommentLength <= 0 {
		cfg.MaxCommentLength = 1000
	}
	return &Service{db: db, client: client, ledger: ledger, mon: mon, dispatch: dispatch, cfg: cfg}
}

// CollectAccountMetrics walks every tracked account and snapshots its
// remote statistics under the shared batch quota class.
func (s *Service) CollectAccountMetrics(ctx context.Context) error {
	src := batch.Source[model.Account]{
		Count: s.db.CountAccounts,
		Page: func(ctx context.Context, page int) ([]model.Account, error) {
			return s.db.FindAccountPage(ctx, page, s.cfg.EntityPageSize)
		},
	}
	return batch.Run(ctx, s.mon, JobAccountMetrics, src,
		func(a model.Account) string { return a.ID },
		func(ctx context.Context, a model.Account) error {
			return s.collectAccount(ctx, a, quota.PriorityBatch)
		})
}

// CollectAccountMetricsByID snapshots a single account on the real-time
// quota class.
func (s *Service) CollectAccountMetricsByID(ctx context.Context, id string) error {
	name := JobAccountMetrics + ":" + id
	s.mon.Start(name)
	a, err := s.db.FindAccountByID(ctx, id)
	if err != nil {
		s.mon.Fail(name, err.Error())
		return fmt.Errorf("find account %s: %w", id, err)
	}
	if err := s.collectAccount(ctx, a, quota.PriorityRealTime); err != nil {
		s.mon.Fail(name, err.Error())
		return err
	}
	s.mon.Progress(name, 1, 1)
	s.mon.Succeed(name)
	return nil
}

func (s *Service) collectAccount(ctx context.Context, a model.Account, p quota.Priority) error {
	if !s.ledger.Admit(p) {
		return quota.ErrExhausted
	}
	s.ledger.Consume()
	st, err := s.client.GetAccountStatistics(ctx, a.ExternalRef)
	if err != nil {
		if errors.Is(err, snsapi.ErrQuotaExceeded) {
			return quota.ErrExhausted
		}
		return fmt.Errorf("account stats %s: %w", a.ID, err)
	}
	if err := validateCounts(st.Followers, st.Views); err != nil {
		logging.Warn("account_stats_rejected", map[string]any{"account_id": a.ID, "error": err.Error()})
		return err
	}
	return s.db.SaveAccountStats(ctx, model.AccountStats{
		AccountID:   a.ID,
		Followers:   st.Followers,
		Views:       st.Views,
		CollectedAt: time.Now().UTC(),
	})
}

// CollectPostMetrics walks every tracked post and snapshots its remote
// statistics under the shared batch quota class.
func (s *Service) CollectPostMetrics(ctx context.Context) error {
	src := batch.Source[model.Post]{
		Count: s.db.CountPosts,
		Page: func(ctx context.Context, page int) ([]model.Post, error) {
			return s.db.FindPostPage(ctx, page, s.cfg.EntityPageSize)
		},
	}
	return batch.Run(ctx, s.mon, JobPostMetrics, src,
		func(p model.Post) string { return p.ID },
		func(ctx context.Context, p model.Post) error {
			return s.collectPost(ctx, p, quota.PriorityBatch)
		})
}

// CollectPostMetricsByID snapshots a single post on the real-time quota class.
func (s *Service) CollectPostMetricsByID(ctx context.Context, id string) error {
	name := JobPostMetrics + ":" + id
	s.mon.Start(name)
	p, err := s.db.FindPostByID(ctx, id)
	if err != nil {
		s.mon.Fail(name, err.Error())
		return fmt.Errorf("find post %s: %w", id, err)
	}
	if err := s.collectPost(ctx, p, quota.PriorityRealTime); err != nil {
		s.mon.Fail(name, err.Error())
		return err
	}
	s.mon.Progress(name, 1, 1)
	s.mon.Succeed(name)
	return nil
}

func (s *Service) collectPost(ctx context.Context, p model.Post, prio quota.Priority) error {
	if !s.ledger.Admit(prio) {
		return quota.ErrExhausted
	}
	s.ledger.Consume()
	st, err := s.client.GetPostStatistics(ctx, p.ExternalRef)
	if err != nil {
		if errors.Is(err, snsapi.ErrQuotaExceeded) {
			return quota.ErrExhausted
		}
		return fmt.Errorf("post stats %s: %w", p.ID, err)
	}
	if err := validateCounts(st.Views, st.Likes, st.CommentCount); err != nil {
		logging.Warn("post_stats_rejected", map[string]any{"post_id": p.ID, "error": err.Error()})
		return err
	}
	return s.db.SavePostStats(ctx, model.PostStats{
		PostID:       p.ID,
		Views:        st.Views,
		Likes:        st.Likes,
		CommentCount: st.CommentCount,
		CollectedAt:  time.Now().UTC(),
	})
}

func validateCounts(vals ...int64) error {
	for _, v := range vals {
		if v < 0 || v > maxSaneCount {
			return fmt.Errorf("%w: value %d out of bounds", ErrValidation, v)
		}
	}
	return nil
}

// ReanalyzePending re-submits comments that still have a null sentiment.
// Analysis only re-runs through this trigger; there is no automatic
// re-drive inside the dispatcher.
func (s *Service) ReanalyzePending(ctx context.Context, limit int) error {
	if s.dispatch == nil {
		return nil
	}
	if limit <= 0 {
		limit = 500
	}
	pending, err := s.db.FindCommentsWithoutSentiment(ctx, limit)
	if err != nil {
		return fmt.Errorf("load pending comments: %w", err)
	}
	byPost := make(map[string][]model.Comment)
	for _, c := range pending {
		byPost[c.PostID] = append(byPost[c.PostID], c)
	}
	for postID, cs := range byPost {
		s.dispatch.Submit(postID, cs)
	}
	if len(pending) > 0 {
		logging.Info("reanalyze_pending", map[string]any{"comments": len(pending), "posts": len(byPost)})
	}
	return nil
}
