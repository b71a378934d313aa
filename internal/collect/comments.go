package collect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"socialpulse/internal/batch"
	"socialpulse/internal/logging"
	"socialpulse/internal/metrics"
	"socialpulse/internal/model"
	"socialpulse/internal/quota"
	"socialpulse/internal/snsapi"
	"socialpulse/internal/util"
)

// CollectPostComments incrementally collects comments for every tracked
// post, then hands the new ones to the sentiment dispatcher.
func (s *Service) CollectPostComments(ctx context.Context) error {
	src := batch.Source[model.Post]{
		Count: s.db.CountPosts,
		Page: func(ctx context.Context, page int) ([]model.Post, error) {
			return s.db.FindPostPage(ctx, page, s.cfg.EntityPageSize)
		},
	}
	return batch.Run(ctx, s.mon, JobPostComments, src,
		func(p model.Post) string { return p.ID },
		func(ctx context.Context, p model.Post) error {
			_, err := s.collectComments(ctx, p, quota.PriorityBatch)
			return err
		})
}

// CollectPostCommentsByID collects comments for one post on the real-time
// quota class and returns how many new comments were persisted.
func (s *Service) CollectPostCommentsByID(ctx context.Context, id string) (int, error) {
	name := JobPostComments + ":" + id
	s.mon.Start(name)
	p, err := s.db.FindPostByID(ctx, id)
	if err != nil {
		s.mon.Fail(name, err.Error())
		return 0, fmt.Errorf("find post %s: %w", id, err)
	}
	n, err := s.collectComments(ctx, p, quota.PriorityRealTime)
	if err != nil {
		s.mon.Fail(name, err.Error())
		return n, err
	}
	s.mon.Progress(name, 1, 1)
	s.mon.Succeed(name)
	return n, nil
}

// BackfillComments seeds comment history for posts that have none stored
// yet. It runs on the background quota class, so it only spends budget
// the batch and real-time classes left over.
func (s *Service) BackfillComments(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = 50
	}
	posts, err := s.db.FindPostsWithoutComments(ctx, limit)
	if err != nil {
		return fmt.Errorf("load backfill posts: %w", err)
	}
	if len(posts) == 0 {
		return nil
	}
	s.mon.Start(JobCommentBackfill)
	for i, p := range posts {
		if _, err := s.collectComments(ctx, p, quota.PriorityBackground); err != nil {
			if errors.Is(err, quota.ErrExhausted) {
				s.mon.Fail(JobCommentBackfill, "api quota exhausted")
				return fmt.Errorf("%s: %w", JobCommentBackfill, quota.ErrExhausted)
			}
			logging.Warn("backfill_failed", map[string]any{"post_id": p.ID, "error": err.Error()})
		}
		s.mon.Progress(JobCommentBackfill, i+1, len(posts))
	}
	s.mon.Succeed(JobCommentBackfill)
	return nil
}

// collectComments runs the early-stop incremental fetch for one post and
// persists the result. Fetching completes before any row is written so a
// mid-fetch failure never strands a half-open storage transaction.
func (s *Service) collectComments(ctx context.Context, p model.Post, prio quota.Priority) (int, error) {
	fresh, err := s.fetchNewComments(ctx, p, prio)
	if err != nil {
		return 0, err
	}
	inserted := make([]model.Comment, 0, len(fresh))
	for i := range fresh {
		ok, err := s.db.SaveComment(ctx, &fresh[i])
		if err != nil {
			// One bad row must not sink the rest of the fetch.
			logging.Warn("comment_save_failed", map[string]any{
				"post_id": p.ID, "external_id": fresh[i].ExternalID, "error": err.Error(),
			})
			continue
		}
		if ok {
			inserted = append(inserted, fresh[i])
		}
	}
	if len(inserted) > 0 {
		metrics.CommentsCollected.Add(float64(len(inserted)))
		if s.dispatch != nil {
			s.dispatch.Submit(p.ID, inserted)
		}
	}
	return len(inserted), nil
}

// fetchNewComments pages the remote feed newest-first and stops at the
// first comment already in storage: a known comment means everything
// beyond it was captured by a prior run, so work stays proportional to
// what's new. Duplicate at the very start and an empty feed both return
// zero comments without error.
func (s *Service) fetchNewComments(ctx context.Context, p model.Post, prio quota.Priority) ([]model.Comment, error) {
	var fresh []model.Comment
	cursor := ""
	for {
		if !s.ledger.Admit(prio) {
			return nil, quota.ErrExhausted
		}
		s.ledger.Consume()
		page, err := s.client.ListComments(ctx, p.ExternalRef, cursor, s.cfg.CommentPageSize)
		if err != nil {
			if errors.Is(err, snsapi.ErrQuotaExceeded) {
				return nil, quota.ErrExhausted
			}
			return nil, fmt.Errorf("list comments %s: %w", p.ID, err)
		}
		for _, item := range page.Items {
			seen, err := s.db.CommentExists(ctx, p.ID, item.ExternalID)
			if err != nil {
				return nil, fmt.Errorf("dedup check %s: %w", item.ExternalID, err)
			}
			if seen {
				return fresh, nil
			}
			fresh = append(fresh, model.Comment{
				PostID:      p.ID,
				ExternalID:  item.ExternalID,
				AuthorRef:   item.AuthorRef,
				Content:     util.TruncateRunes(util.NormalizeWhitespace(item.Text), s.cfg.MaxCommentLength),
				LikeCount:   item.LikeCount,
				PublishedAt: item.PublishedAt,
				CreatedAt:   time.Now().UTC(),
			})
		}
		if page.NextCursor == "" {
			return fresh, nil
		}
		cursor = page.NextCursor
	}
}
