package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftware/harvester/internal/store"
	"github.com/driftware/harvester/pkg/models"
)

// Executor dispatches one ordered operation batch through a session.
type Executor interface {
	Execute(ctx context.Context, sess *models.Session, operations []models.Operation) models.BatchResult
}

// Registry resolves session ids. The driver never creates sessions: callers
// must have already opened a browser and positioned it on the listing page.
type Registry interface {
	Get(id string) (*models.Session, error)
	Touch(id string)
}

// Storage is the work-queue side of the store.
type Storage interface {
	SavePosts(ctx context.Context, posts []store.PostSummary) error
	QueryPending(ctx context.Context, condition string, limit int) ([]models.WorkItem, error)
	SaveDetail(ctx context.Context, detail store.PostDetail) error
	MarkProcessed(ctx context.Context, postID string) error
	RecordFailure(ctx context.Context, postID string) error
}

// Driver pulls pending work items from storage and runs the fixed
// open → expand → extract → close sequence for each through one session.
type Driver struct {
	registry Registry
	exec     Executor
	store    Storage
	log      *slog.Logger

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

func NewDriver(registry Registry, exec Executor, storage Storage) *Driver {
	return &Driver{
		registry: registry,
		exec:     exec,
		store:    storage,
		log:      slog.With("component", "queue"),
		sleep:    sleepCtx,
	}
}

// RunBatch processes up to req.Limit pending items through the session.
// Individual item failures never abort the run; they are recorded and the
// loop moves on. Errors are reserved for conditions the caller must handle
// (unknown session, storage unavailable).
func (d *Driver) RunBatch(ctx context.Context, req models.BatchProcessRequest) (models.BatchReport, error) {
	start := time.Now()

	sess, err := d.registry.Get(req.SessionID)
	if err != nil {
		return models.BatchReport{}, fmt.Errorf("batch requires an existing session: %w", err)
	}

	items, err := d.store.QueryPending(ctx, req.Condition, req.Limit)
	if err != nil {
		return models.BatchReport{}, fmt.Errorf("failed to query work items: %w", err)
	}
	if len(items) == 0 {
		return models.BatchReport{
			Success:       false,
			Message:       "no pending items matched the condition",
			ExecutionTime: time.Since(start).Seconds(),
			ViewerURL:     sess.ViewerURL,
		}, nil
	}

	d.log.Info("starting batch", "session_id", sess.ID, "items", len(items))

	// One scroll pass up front so the listing holds as many of the target
	// items as possible. A failed scroll is logged, not fatal.
	scrollResult := d.exec.Execute(ctx, sess, []models.Operation{{
		Action:      "xhs_auto_scroll",
		Params:      map[string]any{"max_scrolls": 20, "delay_between_scrolls": 1.5},
		Description: "scroll the listing to surface pending items",
	}})
	if !scrollResult.Success {
		d.log.Warn("listing scroll failed, continuing", "message", scrollResult.Message)
	}

	var processed, failed []string
	for i, item := range items {
		d.log.Info("processing item", "item_id", item.ID, "title", item.Title, "progress", fmt.Sprintf("%d/%d", i+1, len(items)))

		if d.processItem(ctx, sess, item) {
			processed = append(processed, item.ID)
		} else {
			failed = append(failed, item.ID)
			if err := d.store.RecordFailure(ctx, item.ID); err != nil {
				d.log.Warn("failed to record item failure", "item_id", item.ID, "error", err)
			}
		}

		// Recovery navigation runs after every item regardless of outcome:
		// a wedged listing state would silently fail every item after it.
		d.recoverListing(ctx, sess, req.ReturnURL)

		if req.DelaySeconds > 0 && i < len(items)-1 {
			d.sleep(ctx, time.Duration(req.DelaySeconds*float64(time.Second)))
		}
	}

	d.registry.Touch(sess.ID)

	rate := 0.0
	if len(items) > 0 {
		rate = float64(len(processed)) / float64(len(items))
	}

	report := models.BatchReport{
		Success:       len(processed) > 0,
		Message:       fmt.Sprintf("batch complete: %d/%d items processed", len(processed), len(items)),
		Total:         len(items),
		Processed:     len(processed),
		Failed:        len(failed),
		SuccessRate:   rate,
		ProcessedIDs:  processed,
		FailedIDs:     failed,
		ExecutionTime: time.Since(start).Seconds(),
		ViewerURL:     sess.ViewerURL,
	}

	d.log.Info("batch finished", "processed", report.Processed, "failed", report.Failed, "seconds", report.ExecutionTime)
	return report, nil
}

// RunDiscovery scrolls the listing, extracts the visible posts, and
// enqueues them as pending work items for later detail runs.
func (d *Driver) RunDiscovery(ctx context.Context, req models.DiscoverRequest) (models.DiscoverReport, error) {
	start := time.Now()

	sess, err := d.registry.Get(req.SessionID)
	if err != nil {
		return models.DiscoverReport{}, fmt.Errorf("discovery requires an existing session: %w", err)
	}

	maxScrolls := req.MaxScrolls
	if maxScrolls <= 0 {
		maxScrolls = 10
	}

	result := d.exec.Execute(ctx, sess, []models.Operation{
		{
			Action:      "xhs_auto_scroll",
			Params:      map[string]any{"max_scrolls": maxScrolls, "delay_between_scrolls": 1.5},
			Description: "scroll the listing to load posts",
			Required:    true,
		},
		{
			Action:      "xhs_extract_posts",
			Params:      map[string]any{"limit": req.Limit},
			Description: "extract visible posts from the listing",
			Required:    true,
		},
	})
	if !result.Success {
		return models.DiscoverReport{
			Message:       fmt.Sprintf("discovery failed: %s", result.Message),
			ExecutionTime: time.Since(start).Seconds(),
			ViewerURL:     sess.ViewerURL,
		}, nil
	}

	posts := postsFromResults(result.Results)
	if err := d.store.SavePosts(ctx, posts); err != nil {
		return models.DiscoverReport{}, fmt.Errorf("failed to store discovered posts: %w", err)
	}

	d.registry.Touch(sess.ID)
	d.log.Info("discovery finished", "session_id", sess.ID, "posts", len(posts))

	return models.DiscoverReport{
		Success:       true,
		Message:       fmt.Sprintf("discovered %d posts", len(posts)),
		Discovered:    len(posts),
		ExecutionTime: time.Since(start).Seconds(),
		ViewerURL:     sess.ViewerURL,
	}, nil
}

// processItem runs the fixed four-step sequence for one item and persists
// the extraction. True only when both the extraction and the storage write
// succeeded.
func (d *Driver) processItem(ctx context.Context, sess *models.Session, item models.WorkItem) bool {
	result := d.exec.Execute(ctx, sess, []models.Operation{
		{
			Action:      "xhs_click_post",
			Params:      map[string]any{"title": item.Title},
			Description: "open the post detail view",
			Required:    true,
		},
		{
			Action:      "xhs_expand_comments",
			Params:      map[string]any{"max_attempts": 10},
			Description: "expand the full comment thread",
		},
		{
			Action:      "xhs_extract_comments",
			Params:      map[string]any{"include_replies": true},
			Description: "extract post content and comments",
			Required:    true,
		},
		{
			Action:      "xhs_close_post",
			Description: "close the detail view",
		},
	})

	if !result.Success {
		d.log.Warn("item operations failed", "item_id", item.ID, "message", result.Message)
		return false
	}

	detail, ok := detailFromResults(item.ID, result.Results)
	if !ok {
		d.log.Warn("extraction returned no usable data", "item_id", item.ID)
		return false
	}

	if err := d.store.SaveDetail(ctx, detail); err != nil {
		d.log.Warn("failed to store extracted detail", "item_id", item.ID, "error", err)
		return false
	}
	if err := d.store.MarkProcessed(ctx, item.ID); err != nil {
		d.log.Warn("failed to mark item processed", "item_id", item.ID, "error", err)
		return false
	}

	return true
}

// recoverListing restores the listing context between items, preferring an
// explicit return-URL navigation over a history step.
func (d *Driver) recoverListing(ctx context.Context, sess *models.Session, returnURL string) {
	var op models.Operation
	if returnURL != "" {
		op = models.Operation{
			Action:      "navigate",
			Params:      map[string]any{"url": returnURL},
			Description: "return to the listing page",
		}
	} else {
		op = models.Operation{
			Action:      "execute_script",
			Params:      map[string]any{"script": "window.history.back()"},
			Description: "navigate back to the listing page",
		}
	}

	result := d.exec.Execute(ctx, sess, []models.Operation{op})
	if !result.Success {
		d.log.Warn("recovery navigation failed", "message", result.Message)
	}
}

// detailFromResults pulls the extraction payload out of the batch results.
func detailFromResults(itemID string, results []models.OperationResult) (store.PostDetail, bool) {
	for _, r := range results {
		if r.Action != "xhs_extract_comments" || !r.Success {
			continue
		}

		detail := store.PostDetail{
			PostID:  itemID,
			Payload: r.Data,
		}
		if content, ok := r.Data["content"].(string); ok {
			detail.Content = content
		}
		if raw, ok := r.Data["comments"]; ok {
			detail.Comments = decodeComments(raw)
		}
		return detail, true
	}
	return store.PostDetail{}, false
}

// postsFromResults pulls the listing entries out of the extraction result.
func postsFromResults(results []models.OperationResult) []store.PostSummary {
	for _, r := range results {
		if r.Action != "xhs_extract_posts" || !r.Success {
			continue
		}
		raw, ok := r.Data["posts"]
		if !ok {
			return nil
		}

		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil
		}
		var posts []store.PostSummary
		if err := json.Unmarshal(encoded, &posts); err != nil {
			return nil
		}
		return posts
	}
	return nil
}

// decodeComments tolerates the agent's loosely-typed comment list; entries
// that don't decode are dropped rather than failing the item.
func decodeComments(raw any) []store.Comment {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var comments []store.Comment
	if err := json.Unmarshal(encoded, &comments); err != nil {
		return nil
	}
	return comments
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
