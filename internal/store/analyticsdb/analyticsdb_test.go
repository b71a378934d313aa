package analyticsdb

import (
	"context"
	"testing"
	"time"

	"socialpulse/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil { t.Fatal(err) }
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSaveCommentIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := model.Comment{PostID: "p1", ExternalID: "ext-1", Content: "nice", PublishedAt: time.Now().UTC()}
	ins, err := db.SaveComment(ctx, &c)
	if err != nil || !ins {
		t.Fatalf("expected first insert, got ins=%v err=%v", ins, err)
	}
	if c.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	dup := model.Comment{PostID: "p1", ExternalID: "ext-1", Content: "nice again", PublishedAt: time.Now().UTC()}
	ins, err = db.SaveComment(ctx, &dup)
	if err != nil {
		t.Fatal(err)
	}
	if ins {
		t.Fatalf("expected duplicate external id to be a no-op")
	}
	ok, err := db.CommentExists(ctx, "p1", "ext-1")
	if err != nil || !ok {
		t.Fatalf("expected comment to exist, got %v %v", ok, err)
	}
	// Same external id on a different post is a distinct comment.
	other := model.Comment{PostID: "p2", ExternalID: "ext-1", Content: "hello", PublishedAt: time.Now().UTC()}
	if ins, err := db.SaveComment(ctx, &other); err != nil || !ins {
		t.Fatalf("expected insert on other post, got ins=%v err=%v", ins, err)
	}
}

func TestUpdateCommentSentimentOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	c := model.Comment{PostID: "p1", ExternalID: "e1", Content: "great", PublishedAt: time.Now().UTC()}
	if _, err := db.SaveComment(ctx, &c); err != nil { t.Fatal(err) }
	if err := db.UpdateCommentSentiment(ctx, c.ID, model.SentimentPositive); err != nil { t.Fatal(err) }
	// Second write must not flip an already-labeled row.
	if err := db.UpdateCommentSentiment(ctx, c.ID, model.SentimentNegative); err != nil { t.Fatal(err) }
	left, err := db.FindCommentsWithoutSentiment(ctx, 10)
	if err != nil { t.Fatal(err) }
	if len(left) != 0 {
		t.Fatalf("expected no unlabeled comments, got %d", len(left))
	}
	counts, err := db.SentimentCounts(ctx)
	if err != nil { t.Fatal(err) }
	if len(counts) != 1 || counts[0].Sentiment != model.SentimentPositive || counts[0].Count != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestReplaceKeywordsWholesale(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := db.ReplaceKeywords(ctx, "p1", []string{"fast", "clean"}, []string{"slow"}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceKeywords(ctx, "p1", []string{"fresh"}, nil); err != nil {
		t.Fatal(err)
	}
	pos, neg, err := db.FindKeywords(ctx, "p1")
	if err != nil { t.Fatal(err) }
	if len(pos) != 1 || pos[0] != "fresh" || len(neg) != 0 {
		t.Fatalf("expected wholesale replacement, got pos=%v neg=%v", pos, neg)
	}
}

func TestEntityPaging(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"a1", "a2", "a3"} {
		if err := db.UpsertAccount(ctx, model.Account{ID: id, ExternalRef: "ref-" + id, CreatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := db.CountAccounts(ctx)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 accounts, got %d %v", n, err)
	}
	page0, err := db.FindAccountPage(ctx, 0, 2)
	if err != nil || len(page0) != 2 {
		t.Fatalf("expected 2 on page 0, got %d %v", len(page0), err)
	}
	page1, err := db.FindAccountPage(ctx, 1, 2)
	if err != nil || len(page1) != 1 {
		t.Fatalf("expected 1 on page 1, got %d %v", len(page1), err)
	}
	page2, err := db.FindAccountPage(ctx, 2, 2)
	if err != nil || len(page2) != 0 {
		t.Fatalf("expected empty page 2, got %d %v", len(page2), err)
	}
}

func TestStatSnapshots(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	if err := db.SaveAccountStats(ctx, model.AccountStats{AccountID: "a1", Followers: 100, Views: 5000, CollectedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := db.SavePostStats(ctx, model.PostStats{PostID: "p1", Views: 10, Likes: 2, CommentCount: 1, CollectedAt: now}); err != nil {
		t.Fatal(err)
	}
}
