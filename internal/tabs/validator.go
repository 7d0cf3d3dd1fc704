package tabs

import (
	"context"
	"fmt"
	"strings"
)

// Validator runs operation-specific assertions against the current page
// before a state-sensitive operation executes. Failures return a
// human-readable reason so the caller can surface it as the operation's
// result message without guessing.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

const commentContainerSelector = ".note-scroller, .comments-container"

// Validate checks that the page is in a state the operation can run in.
func (v *Validator) Validate(ctx context.Context, operation string, page Page) (bool, string) {
	if page == nil {
		return false, "no page available"
	}

	// Basic reachability first: a page that cannot report its title is
	// gone regardless of what the operation needs.
	if _, err := page.Title(ctx); err != nil {
		return false, fmt.Sprintf("page unreachable: %v", err)
	}

	url := page.URL()

	switch operation {
	case "xhs_expand_comments", "xhs_extract_comments":
		if !isDetailURL(url) {
			return false, "not on a post detail page"
		}
		if operation == "xhs_expand_comments" {
			if querier, ok := page.(ElementQuerier); ok {
				found, err := querier.HasElement(ctx, commentContainerSelector)
				if err != nil {
					return false, fmt.Sprintf("unable to check comment area: %v", err)
				}
				if !found {
					return false, "comment area not found on page"
				}
			}
		}

	case "xhs_extract_user_profile":
		if !isProfileURL(url) {
			return false, "not on a user profile page"
		}

	case "xhs_auto_scroll", "xhs_extract_posts":
		if isDetailURL(url) || isProfileURL(url) {
			return false, "not on the main listing page"
		}
	}

	return true, "ok"
}

func isDetailURL(url string) bool {
	return strings.Contains(url, "/discovery/item/") || strings.Contains(url, "/explore/")
}

func isProfileURL(url string) bool {
	return strings.Contains(url, "/user/profile/") || strings.Contains(url, "/@")
}
