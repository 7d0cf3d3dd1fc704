package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/driftware/harvester/internal/tabs"
)

// Site-specific operations. Each resolves its required tab context through
// the switcher and validates page state before touching the page.

// maxScrollIterations caps a scroll pass no matter what the caller asks
// for.
const maxScrollIterations = 50

// stableScrollThreshold is how many consecutive unchanged counts mean the
// listing has stopped loading.
const stableScrollThreshold = 3

// AutoScroll scrolls the listing until the post count stops growing or the
// scroll budget runs out, and reports which of the two happened.
func (a *Agent) AutoScroll(ctx context.Context, maxScrolls int, delay time.Duration) (map[string]any, error) {
	page, err := a.sitePage(ctx, "xhs_auto_scroll", tabs.Hints{})
	if err != nil {
		return nil, err
	}

	if maxScrolls <= 0 || maxScrolls > maxScrollIterations {
		maxScrolls = maxScrollIterations
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}

	outcome, err := converge(maxScrolls, stableScrollThreshold, func(iteration int) (int, error) {
		if _, err := page.page.Evaluate(scrollListingScript); err != nil {
			return 0, fmt.Errorf("scroll failed: %w", err)
		}
		pause(delay)

		count, err := page.page.Evaluate(countPostsScript)
		if err != nil {
			return 0, fmt.Errorf("post count failed: %w", err)
		}
		return toInt(count), nil
	})
	if err != nil {
		return nil, err
	}

	a.log.Info("listing scroll finished", "converged", outcome.Converged, "scrolls", outcome.Iterations, "total_posts", outcome.FinalCount)
	return map[string]any{
		"converged":     outcome.Converged,
		"total_scrolls": outcome.Iterations,
		"total_posts":   outcome.FinalCount,
	}, nil
}

// ExtractPosts pulls every visible listing entry, optionally limited.
func (a *Agent) ExtractPosts(ctx context.Context, limit int) (map[string]any, error) {
	page, err := a.sitePage(ctx, "xhs_extract_posts", tabs.Hints{})
	if err != nil {
		return nil, err
	}

	result, err := page.page.Evaluate(extractPostsScript, limit)
	if err != nil {
		return nil, fmt.Errorf("post extraction failed: %w", err)
	}

	posts, _ := result.([]any)
	a.log.Info("extracted posts", "count", len(posts))
	return map[string]any{
		"posts": result,
		"count": len(posts),
	}, nil
}

// ClickPost opens a post's detail view by locating it in the listing by
// title.
func (a *Agent) ClickPost(ctx context.Context, title string) error {
	if title == "" {
		return fmt.Errorf("title is required")
	}

	page, err := a.sitePage(ctx, "xhs_click_post", tabs.Hints{})
	if err != nil {
		return err
	}

	clicked, err := page.page.Evaluate(clickPostByTitleScript, title)
	if err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	if ok, _ := clicked.(bool); !ok {
		return fmt.Errorf("post %q not found in listing", title)
	}

	// Give the detail view a moment to mount before the next operation
	// validates against it.
	pause(1500 * time.Millisecond)
	return nil
}

// ExpandComments clicks through "show more" until the comment count is
// stable or the attempt budget runs out.
func (a *Agent) ExpandComments(ctx context.Context, maxAttempts int) (map[string]any, error) {
	page, err := a.sitePage(ctx, "xhs_expand_comments", tabs.Hints{})
	if err != nil {
		return nil, err
	}

	outcome, err := converge(maxAttempts, 2, func(iteration int) (int, error) {
		if _, err := page.page.Evaluate(expandCommentsScript); err != nil {
			return 0, fmt.Errorf("expand step failed: %w", err)
		}
		pause(time.Second)

		count, err := page.page.Evaluate(countCommentsScript)
		if err != nil {
			return 0, fmt.Errorf("comment count failed: %w", err)
		}
		return toInt(count), nil
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"converged":      outcome.Converged,
		"total_attempts": outcome.Iterations,
		"total_comments": outcome.FinalCount,
	}, nil
}

// ExtractComments returns the open post's content and comment thread.
func (a *Agent) ExtractComments(ctx context.Context, includeReplies bool) (map[string]any, error) {
	page, err := a.sitePage(ctx, "xhs_extract_comments", tabs.Hints{})
	if err != nil {
		return nil, err
	}

	result, err := page.page.Evaluate(extractCommentsScript, includeReplies)
	if err != nil {
		return nil, fmt.Errorf("comment extraction failed: %w", err)
	}

	data, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("extraction returned unexpected shape %T", result)
	}
	return data, nil
}

// ClosePost dismisses the detail view, falling back to Escape when the
// close control is missing.
func (a *Agent) ClosePost(ctx context.Context) error {
	page, err := a.sitePage(ctx, "xhs_close_post", tabs.Hints{})
	if err != nil {
		return err
	}

	if found, _ := page.HasElement(ctx, ".close-circle, .close-box"); found {
		if err := page.page.Click(".close-circle, .close-box"); err == nil {
			return nil
		}
	}

	if err := page.page.Keyboard().Press("Escape"); err != nil {
		return fmt.Errorf("failed to close post: %w", err)
	}
	return nil
}

// ClickAuthorAvatar opens the post author's profile. userID and username
// narrow which author link is clicked when the page shows several. The
// profile opens in a new tab, which is reported back as a tab_opened event
// so the caller can target it deterministically.
func (a *Agent) ClickAuthorAvatar(ctx context.Context, userID, username string) (map[string]any, error) {
	if err := a.started(); err != nil {
		return nil, err
	}

	page, err := a.activePage(ctx)
	if err != nil {
		return nil, err
	}

	clicked, err := page.page.Evaluate(clickAuthorAvatarScript, map[string]any{
		"userid":   userID,
		"username": username,
	})
	if err != nil {
		return nil, fmt.Errorf("avatar click failed: %w", err)
	}
	if ok, _ := clicked.(bool); !ok {
		return nil, fmt.Errorf("author avatar not found on page")
	}

	pause(1500 * time.Millisecond)

	data := map[string]any{"tab_opened": false}
	if opened := a.tabs.Discover(ctx); len(opened) > 0 {
		tabID := opened[len(opened)-1]
		data["tab_opened"] = true
		data["tab_id"] = tabID
		if err := a.tabs.SwitchTo(ctx, tabID); err != nil {
			return nil, fmt.Errorf("failed to activate profile tab: %w", err)
		}
		if active, ok := a.tabs.ActiveTab(); ok {
			data["url"] = active.URL
		}
	}
	return data, nil
}

// ExtractUserProfile extracts the open profile page. The hints pick the
// right tab when several profiles are open; a tab id reported by an
// earlier avatar click wins outright.
func (a *Agent) ExtractUserProfile(ctx context.Context, userID, username, openedTabID string) (map[string]any, error) {
	page, err := a.sitePage(ctx, "xhs_extract_user_profile", tabs.Hints{
		UserID:      userID,
		Username:    username,
		OpenedTabID: openedTabID,
	})
	if err != nil {
		return nil, err
	}

	result, err := page.page.Evaluate(extractUserProfileScript)
	if err != nil {
		return nil, fmt.Errorf("profile extraction failed: %w", err)
	}

	data, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("extraction returned unexpected shape %T", result)
	}
	return data, nil
}

// ClosePage closes the active tab; the tab manager reassigns the active
// slot by its fallback policy.
func (a *Agent) ClosePage(ctx context.Context) error {
	if err := a.started(); err != nil {
		return err
	}

	active, ok := a.tabs.ActiveTab()
	if !ok {
		return fmt.Errorf("no active tab to close")
	}
	return a.tabs.CloseTab(ctx, active.ID)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
