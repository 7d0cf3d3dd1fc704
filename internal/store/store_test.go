package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func setup(t testing.TB) *Store {
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t testing.TB, s *Store, posts ...PostSummary) {
	t.Helper()
	require.NoError(t, s.SavePosts(context.Background(), posts))
}

func TestSavePostsAndQueryPending(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	seed(t, s,
		PostSummary{PostID: "p1", Title: "first", Author: "ann", URL: "https://www.xiaohongshu.com/explore/p1"},
		PostSummary{PostID: "p2", Title: "second", Author: "ben", URL: "https://www.xiaohongshu.com/explore/p2"},
		PostSummary{PostID: "", Title: "no id, dropped"},
	)

	items, err := s.QueryPending(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "p1", items[0].ID)
	require.Equal(t, "first", items[0].Title)
}

func TestSavePostsUpsertKeepsExtractedFlag(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	seed(t, s, PostSummary{PostID: "p1", Title: "first"})
	require.NoError(t, s.MarkProcessed(ctx, "p1"))

	// Re-discovering the post must not reopen it.
	seed(t, s, PostSummary{PostID: "p1", Title: "first, retitled"})

	items, err := s.QueryPending(ctx, "", 10)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestQueryPendingConditionAndLimit(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	seed(t, s,
		PostSummary{PostID: "p1", Title: "a"},
		PostSummary{PostID: "p2", Title: "b"},
		PostSummary{PostID: "p3", Title: "c"},
	)
	require.NoError(t, s.RecordFailure(ctx, "p2"))
	require.NoError(t, s.RecordFailure(ctx, "p2"))
	require.NoError(t, s.RecordFailure(ctx, "p2"))

	items, err := s.QueryPending(ctx, "detail_extracted = 0 AND failure_count < 3", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, item := range items {
		require.NotEqual(t, "p2", item.ID)
	}

	items, err = s.QueryPending(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestMarkProcessedRemovesFromQueue(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	seed(t, s, PostSummary{PostID: "p1", Title: "a"}, PostSummary{PostID: "p2", Title: "b"})
	require.NoError(t, s.MarkProcessed(ctx, "p1"))

	items, err := s.QueryPending(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "p2", items[0].ID)
}

func TestRecordFailureKeepsItemPending(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	seed(t, s, PostSummary{PostID: "p1", Title: "a"})
	require.NoError(t, s.RecordFailure(ctx, "p1"))

	items, err := s.QueryPending(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, items[0].FailureCount)
}

func TestSaveDetailReplacesOnReExtraction(t *testing.T) {
	ctx := context.Background()
	s := setup(t)

	seed(t, s, PostSummary{PostID: "p1", Title: "a"})

	require.NoError(t, s.SaveDetail(ctx, PostDetail{
		PostID:  "p1",
		Content: "first pass",
		Comments: []Comment{
			{Author: "ann", Content: "one", Likes: 2},
			{Author: "ben", Content: "two", IsReply: true},
		},
		Payload: map[string]any{"title": "a"},
	}))

	require.NoError(t, s.SaveDetail(ctx, PostDetail{
		PostID:   "p1",
		Content:  "second pass",
		Comments: []Comment{{Author: "cat", Content: "three"}},
	}))

	var content string
	require.NoError(t, s.db.QueryRow(
		"SELECT content FROM post_details WHERE post_id = ?", "p1").Scan(&content))
	require.Equal(t, "second pass", content)

	var count int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM comments WHERE post_id = ?", "p1").Scan(&count))
	require.Equal(t, 1, count)
}

func TestSaveDetailRequiresPostID(t *testing.T) {
	s := setup(t)
	err := s.SaveDetail(context.Background(), PostDetail{Content: "orphan"})
	require.Error(t, err)
}
