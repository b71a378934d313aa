package analyticsdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"socialpulse/internal/model"
)

// DB wraps the SQLite analytics store.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil { return nil, err }
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA foreign_keys=ON;`); err != nil { return nil, err }
	db := &DB{sql: d}
	if err := db.migrate(); err != nil { _ = d.Close(); return nil, err }
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS accounts (
	  id TEXT PRIMARY KEY,
	  external_ref TEXT NOT NULL,
	  name TEXT,
	  created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS posts (
	  id TEXT PRIMARY KEY,
	  account_id TEXT NOT NULL,
	  external_ref TEXT NOT NULL,
	  title TEXT,
	  published_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS comments (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  post_id TEXT NOT NULL,
	  external_id TEXT NOT NULL,
	  author_ref TEXT,
	  content TEXT NOT NULL,
	  like_count INTEGER NOT NULL DEFAULT 0,
	  published_at INTEGER,
	  sentiment TEXT,
	  created_at INTEGER NOT NULL,
	  UNIQUE(post_id, external_id)
	);
	CREATE INDEX IF NOT EXISTS idx_comments_sentiment ON comments(sentiment) WHERE sentiment IS NULL;
	CREATE TABLE IF NOT EXISTS keywords (
	  post_id TEXT NOT NULL,
	  keyword TEXT NOT NULL,
	  polarity TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_keywords_post ON keywords(post_id);
	CREATE TABLE IF NOT EXISTS account_stats (
	  account_id TEXT NOT NULL,
	  followers INTEGER NOT NULL,
	  views INTEGER NOT NULL,
	  collected_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS post_stats (
	  post_id TEXT NOT NULL,
	  views INTEGER NOT NULL,
	  likes INTEGER NOT NULL,
	  comment_count INTEGER NOT NULL,
	  collected_at INTEGER NOT NULL
	);
	`)
	return err
}

// UpsertAccount registers or refreshes a tracked account.
func (d *DB) UpsertAccount(ctx context.Context, a model.Account) error {
	q, args, err := sq.Insert("accounts").
		Columns("id", "external_ref", "name", "created_at").
		Values(a.ID, a.ExternalRef, a.Name, a.CreatedAt.Unix()).
		Suffix("ON CONFLICT(id) DO UPDATE SET external_ref=excluded.external_ref, name=excluded.name").
		ToSql()
	if err != nil { return err }
	_, err = d.sql.ExecContext(ctx, q, args...)
	return err
}

// UpsertPost registers or refreshes a tracked post.
func (d *DB) UpsertPost(ctx context.Context, p model.Post) error {
	q, args, err := sq.Insert("posts").
		Columns("id", "account_id", "external_ref", "title", "published_at").
		Values(p.ID, p.AccountID, p.ExternalRef, p.Title, p.PublishedAt.Unix()).
		Suffix("ON CONFLICT(id) DO UPDATE SET external_ref=excluded.external_ref, title=excluded.title").
		ToSql()
	if err != nil { return err }
	_, err = d.sql.ExecContext(ctx, q, args...)
	return err
}

// FindAccountByID returns one account or sql.ErrNoRows.
func (d *DB) FindAccountByID(ctx context.Context, id string) (model.Account, error) {
	q, args, _ := sq.Select("id", "external_ref", "name", "created_at").
		From("accounts").Where(sq.Eq{"id": id}).ToSql()
	var a model.Account
	var created int64
	if err := d.sql.QueryRowContext(ctx, q, args...).Scan(&a.ID, &a.ExternalRef, &a.Name, &created); err != nil {
		return a, err
	}
	a.CreatedAt = time.Unix(created, 0).UTC()
	return a, nil
}

// FindPostByID returns one post or sql.ErrNoRows.
func (d *DB) FindPostByID(ctx context.Context, id string) (model.Post, error) {
	q, args, _ := sq.Select("id", "account_id", "external_ref", "title", "published_at").
		From("posts").Where(sq.Eq{"id": id}).ToSql()
	var p model.Post
	var published int64
	if err := d.sql.QueryRowContext(ctx, q, args...).Scan(&p.ID, &p.AccountID, &p.ExternalRef, &p.Title, &published); err != nil {
		return p, err
	}
	p.PublishedAt = time.Unix(published, 0).UTC()
	return p, nil
}

func (d *DB) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}

func (d *DB) CountPosts(ctx context.Context) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n)
	return n, err
}

// FindAccountPage returns the page-th page (0-based) of accounts in stable order.
func (d *DB) FindAccountPage(ctx context.Context, page, size int) ([]model.Account, error) {
	q, args, err := sq.Select("id", "external_ref", "name", "created_at").
		From("accounts").OrderBy("id").
		Limit(uint64(size)).Offset(uint64(page * size)).ToSql()
	if err != nil { return nil, err }
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []model.Account
	for rows.Next() {
		var a model.Account
		var created int64
		if err := rows.Scan(&a.ID, &a.ExternalRef, &a.Name, &created); err != nil { return nil, err }
		a.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindPostPage returns the page-th page (0-based) of posts in stable order.
func (d *DB) FindPostPage(ctx context.Context, page, size int) ([]model.Post, error) {
	q, args, err := sq.Select("id", "account_id", "external_ref", "title", "published_at").
		From("posts").OrderBy("id").
		Limit(uint64(size)).Offset(uint64(page * size)).ToSql()
	if err != nil { return nil, err }
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []model.Post
	for rows.Next() {
		var p model.Post
		var published int64
		if err := rows.Scan(&p.ID, &p.AccountID, &p.ExternalRef, &p.Title, &published); err != nil { return nil, err }
		p.PublishedAt = time.Unix(published, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindPostsWithoutComments returns up to limit posts with no collected
// comments yet, typically posts tracked after the last collection cycle.
func (d *DB) FindPostsWithoutComments(ctx context.Context, limit int) ([]model.Post, error) {
	q, args, err := sq.Select("id", "account_id", "external_ref", "title", "published_at").
		From("posts").
		Where("NOT EXISTS (SELECT 1 FROM comments WHERE comments.post_id = posts.id)").
		OrderBy("id").Limit(uint64(limit)).ToSql()
	if err != nil { return nil, err }
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []model.Post
	for rows.Next() {
		var p model.Post
		var published int64
		if err := rows.Scan(&p.ID, &p.AccountID, &p.ExternalRef, &p.Title, &published); err != nil { return nil, err }
		p.PublishedAt = time.Unix(published, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// CommentExists reports whether a comment with this external id was
// already collected for the post. This is the early-stop anchor.
func (d *DB) CommentExists(ctx context.Context, postID, externalID string) (bool, error) {
	q, args, _ := sq.Select("1").From("comments").
		Where(sq.Eq{"post_id": postID, "external_id": externalID}).
		Limit(1).ToSql()
	var one int
	err := d.sql.QueryRowContext(ctx, q, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SaveComment inserts a newly collected comment. The unique
// (post_id, external_id) constraint makes repeated runs idempotent:
// inserted=false means the row already existed. On insert c.ID is set.
func (d *DB) SaveComment(ctx context.Context, c *model.Comment) (bool, error) {
	q, args, err := sq.Insert("comments").
		Columns("post_id", "external_id", "author_ref", "content", "like_count", "published_at", "created_at").
		Values(c.PostID, c.ExternalID, c.AuthorRef, c.Content, c.LikeCount, c.PublishedAt.Unix(), time.Now().UTC().Unix()).
		Suffix("ON CONFLICT(post_id, external_id) DO NOTHING").
		ToSql()
	if err != nil { return false, err }
	res, err := d.sql.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("save comment %s: %w", c.ExternalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil { return false, err }
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil { return false, err }
	c.ID = id
	return true, nil
}

// UpdateCommentSentiment sets the sentiment label once; rows that already
// carry a label are left untouched.
func (d *DB) UpdateCommentSentiment(ctx context.Context, id int64, sentiment string) error {
	q, args, err := sq.Update("comments").
		Set("sentiment", sentiment).
		Where(sq.Eq{"id": id}).
		Where("sentiment IS NULL").
		ToSql()
	if err != nil { return err }
	_, err = d.sql.ExecContext(ctx, q, args...)
	return err
}

// FindCommentsWithoutSentiment returns up to limit unlabeled comments,
// oldest first, for the re-analysis pass.
func (d *DB) FindCommentsWithoutSentiment(ctx context.Context, limit int) ([]model.Comment, error) {
	q, args, err := sq.Select("id", "post_id", "external_id", "author_ref", "content", "like_count", "published_at", "created_at").
		From("comments").Where("sentiment IS NULL").
		OrderBy("id").Limit(uint64(limit)).ToSql()
	if err != nil { return nil, err }
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil { return nil, err }
	defer rows.Close()
	return scanComments(rows)
}

// FindCommentsByPost returns all comments collected for a post.
func (d *DB) FindCommentsByPost(ctx context.Context, postID string) ([]model.Comment, error) {
	q, args, err := sq.Select("id", "post_id", "external_id", "author_ref", "content", "like_count", "published_at", "created_at").
		From("comments").Where(sq.Eq{"post_id": postID}).OrderBy("id").ToSql()
	if err != nil { return nil, err }
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil { return nil, err }
	defer rows.Close()
	return scanComments(rows)
}

func scanComments(rows *sql.Rows) ([]model.Comment, error) {
	var out []model.Comment
	for rows.Next() {
		var c model.Comment
		var published, created int64
		if err := rows.Scan(&c.ID, &c.PostID, &c.ExternalID, &c.AuthorRef, &c.Content, &c.LikeCount, &published, &created); err != nil {
			return nil, err
		}
		c.PublishedAt = time.Unix(published, 0).UTC()
		c.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceKeywords swaps the post's keyword set in one transaction:
// delete everything, insert the analyzer's latest lists.
func (d *DB) ReplaceKeywords(ctx context.Context, postID string, positive, negative []string) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil { return err }
	defer func() { _ = tx.Rollback() }()

	q, args, _ := sq.Delete("keywords").Where(sq.Eq{"post_id": postID}).ToSql()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete keywords: %w", err)
	}
	if len(positive)+len(negative) > 0 {
		ins := sq.Insert("keywords").Columns("post_id", "keyword", "polarity")
		for _, k := range positive {
			ins = ins.Values(postID, k, model.SentimentPositive)
		}
		for _, k := range negative {
			ins = ins.Values(postID, k, model.SentimentNegative)
		}
		q, args, err := ins.ToSql()
		if err != nil { return err }
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert keywords: %w", err)
		}
	}
	return tx.Commit()
}

// FindKeywords returns the stored positive and negative keyword lists.
func (d *DB) FindKeywords(ctx context.Context, postID string) (positive, negative []string, err error) {
	q, args, _ := sq.Select("keyword", "polarity").From("keywords").
		Where(sq.Eq{"post_id": postID}).OrderBy("rowid").ToSql()
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil { return nil, nil, err }
	defer rows.Close()
	for rows.Next() {
		var kw, pol string
		if err := rows.Scan(&kw, &pol); err != nil { return nil, nil, err }
		if pol == model.SentimentNegative {
			negative = append(negative, kw)
		} else {
			positive = append(positive, kw)
		}
	}
	return positive, negative, rows.Err()
}

// SaveAccountStats appends a metric snapshot row.
func (d *DB) SaveAccountStats(ctx context.Context, s model.AccountStats) error {
	q, args, err := sq.Insert("account_stats").
		Columns("account_id", "followers", "views", "collected_at").
		Values(s.AccountID, s.Followers, s.Views, s.CollectedAt.Unix()).ToSql()
	if err != nil { return err }
	_, err = d.sql.ExecContext(ctx, q, args...)
	return err
}

// SavePostStats appends a metric snapshot row.
func (d *DB) SavePostStats(ctx context.Context, s model.PostStats) error {
	q, args, err := sq.Insert("post_stats").
		Columns("post_id", "views", "likes", "comment_count", "collected_at").
		Values(s.PostID, s.Views, s.Likes, s.CommentCount, s.CollectedAt.Unix()).ToSql()
	if err != nil { return err }
	_, err = d.sql.ExecContext(ctx, q, args...)
	return err
}

// SentimentCount is one row of the per-post sentiment distribution.
type SentimentCount struct {
	PostID    string
	Sentiment string
	Count     int
}

// SentimentCounts aggregates labeled comments per post and label.
// Unlabeled comments are reported under the empty sentiment string.
func (d *DB) SentimentCounts(ctx context.Context) ([]SentimentCount, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT post_id, COALESCE(sentiment, ''), COUNT(*) FROM comments GROUP BY post_id, sentiment ORDER BY post_id`)
	if err != nil { return nil, err }
	defer rows.Close()
	var out []SentimentCount
	for rows.Next() {
		var sc SentimentCount
		if err := rows.Scan(&sc.PostID, &sc.Sentiment, &sc.Count); err != nil { return nil, err }
		out = append(out, sc)
	}
	return out, rows.Err()
}
