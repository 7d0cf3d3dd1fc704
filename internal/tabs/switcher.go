package tabs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoSuitableTab is returned when an operation requires a tab role that
// no open tab satisfies. Operations fail fast on this instead of running
// against the wrong page.
var ErrNoSuitableTab = errors.New("no suitable tab for operation")

// Hints narrow the tab search for an operation beyond its required role.
type Hints struct {
	// UserID, when set, must appear in the target tab's URL.
	UserID string
	// Username, when set, must appear in the target tab's title.
	Username string
	// OpenedTabID names a tab reported by a TabOpened event from a prior
	// operation; it is preferred over any search.
	OpenedTabID string
}

// DefaultOperationRoles maps operation names to the tab role they must run
// in. Context-agnostic operations (and operations that themselves open new
// tabs, like clicking an author avatar) are absent from the table.
func DefaultOperationRoles() map[string]Role {
	return map[string]Role{
		"xhs_auto_scroll":          RoleMainListing,
		"xhs_extract_posts":        RoleMainListing,
		"xhs_click_post":           RoleMainListing,
		"xhs_expand_comments":      RoleItemDetail,
		"xhs_extract_comments":     RoleItemDetail,
		"xhs_close_post":           RoleItemDetail,
		"xhs_extract_user_profile": RoleUserProfile,
	}
}

// Switcher locates and activates the tab an operation needs before it runs.
type Switcher struct {
	mgr   *Manager
	roles map[string]Role
}

func NewSwitcher(mgr *Manager, roles map[string]Role) *Switcher {
	if roles == nil {
		roles = DefaultOperationRoles()
	}
	return &Switcher{mgr: mgr, roles: roles}
}

// EnsureContext makes the right tab active for the named operation and
// returns its page. Context-agnostic operations get the current active tab
// unchanged. A required role with no matching tab is ErrNoSuitableTab.
func (s *Switcher) EnsureContext(ctx context.Context, operation string, hints Hints) (Page, error) {
	// Pick up tabs opened as a side effect of earlier operations before
	// deciding anything.
	s.mgr.Discover(ctx)

	required, ok := s.roles[operation]
	if !ok {
		return s.mgr.ActivePage(ctx)
	}

	tabID, found := s.findTarget(required, hints)
	if !found {
		return nil, fmt.Errorf("%w: %s needs a %s tab", ErrNoSuitableTab, operation, required)
	}

	if err := s.mgr.SwitchTo(ctx, tabID); err != nil {
		return nil, err
	}

	page, err := s.mgr.ActivePage(ctx)
	if err != nil {
		return nil, err
	}

	if !roleMatchesURL(s.mgr.rules, required, page.URL()) {
		return nil, fmt.Errorf("page state validation failed: %s is not a %s page", page.URL(), required)
	}

	return page, nil
}

func (s *Switcher) findTarget(required Role, hints Hints) (string, bool) {
	if hints.OpenedTabID != "" && s.mgr.Has(hints.OpenedTabID) {
		return hints.OpenedTabID, true
	}

	// Hint filters run first so a targeted profile tab wins over merely
	// the most recent one.
	if hints.UserID != "" || hints.Username != "" {
		id, ok := s.mgr.Find(func(t Tab) bool {
			if t.Role != required {
				return false
			}
			if hints.UserID != "" && strings.Contains(t.URL, hints.UserID) {
				return true
			}
			if hints.Username != "" && strings.Contains(t.Title, hints.Username) {
				return true
			}
			return false
		})
		if ok {
			return id, true
		}
	}

	return s.mgr.FindByRole(required)
}

func roleMatchesURL(rules []Rule, required Role, url string) bool {
	return Classify(rules, url) == required
}
