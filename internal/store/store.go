package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "embed"

	_ "modernc.org/sqlite"

	"github.com/driftware/harvester/pkg/models"
)

//go:embed schema.sql
var Schema string

// DefaultPendingCondition selects items whose detail pass has not run yet.
const DefaultPendingCondition = "detail_extracted = 0"

// Store persists the work queue and extracted content in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open database. The schema must be applied.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PostSummary is one listing entry captured by an extraction pass.
type PostSummary struct {
	PostID string `json:"post_id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	URL    string `json:"url"`
}

// Comment is one extracted comment of a post.
type Comment struct {
	Author  string `json:"author"`
	Content string `json:"content"`
	Likes   int    `json:"likes"`
	IsReply bool   `json:"is_reply"`
}

// PostDetail is the full extraction result for one post: its content, its
// comments, and the raw agent payload for anything the columns don't model.
type PostDetail struct {
	PostID   string
	Content  string
	Comments []Comment
	Payload  map[string]any
}

// SavePosts upserts listing entries so later detail passes can find them.
// Already-extracted posts keep their flag.
func (s *Store) SavePosts(ctx context.Context, posts []PostSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, p := range posts {
		if p.PostID == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO posts (post_id, title, author, url, discovered_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(post_id) DO UPDATE SET title = excluded.title, author = excluded.author, url = excluded.url`,
			p.PostID, p.Title, p.Author, p.URL, now)
		if err != nil {
			return fmt.Errorf("failed to upsert post %s: %w", p.PostID, err)
		}
	}
	return tx.Commit()
}

// QueryPending returns up to limit work items matching the condition. The
// condition is an opaque SQL predicate over the posts table, forwarded
// as-is; callers own its correctness.
func (s *Store) QueryPending(ctx context.Context, condition string, limit int) ([]models.WorkItem, error) {
	if condition == "" {
		condition = DefaultPendingCondition
	}
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(
		"SELECT post_id, title, failure_count FROM posts WHERE %s ORDER BY discovered_at, rowid LIMIT ?",
		condition)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending items: %w", err)
	}
	defer rows.Close()

	var items []models.WorkItem
	for rows.Next() {
		var item models.WorkItem
		if err := rows.Scan(&item.ID, &item.Title, &item.FailureCount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveDetail stores a post's extracted detail and comments in one
// transaction. Re-extraction replaces earlier detail rows.
func (s *Store) SaveDetail(ctx context.Context, detail PostDetail) error {
	if detail.PostID == "" {
		return fmt.Errorf("post id is required")
	}

	payload, err := json.Marshal(detail.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO post_details (post_id, content, payload, stored_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(post_id) DO UPDATE SET content = excluded.content, payload = excluded.payload, stored_at = excluded.stored_at`,
		detail.PostID, detail.Content, string(payload), now)
	if err != nil {
		return fmt.Errorf("failed to store detail: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE post_id = ?", detail.PostID); err != nil {
		return err
	}
	for _, c := range detail.Comments {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO comments (post_id, author, content, likes, is_reply, stored_at) VALUES (?, ?, ?, ?, ?, ?)",
			detail.PostID, c.Author, c.Content, c.Likes, boolToInt(c.IsReply), now)
		if err != nil {
			return fmt.Errorf("failed to store comment: %w", err)
		}
	}

	return tx.Commit()
}

// MarkProcessed flags an item as done. Only called after extraction and the
// detail write both succeeded.
func (s *Store) MarkProcessed(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE posts SET detail_extracted = 1, extracted_at = ? WHERE post_id = ?",
		time.Now().Unix(), postID)
	if err != nil {
		return fmt.Errorf("failed to mark post %s processed: %w", postID, err)
	}
	return nil
}

// RecordFailure bumps an item's failure count without changing its queue
// state; failed items stay pending for a later run.
func (s *Store) RecordFailure(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE posts SET failure_count = failure_count + 1 WHERE post_id = ?", postID)
	if err != nil {
		return fmt.Errorf("failed to record failure for post %s: %w", postID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
