package tabs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureContextSwitchesToRequiredRole(t *testing.T) {
	ctx := context.Background()

	listing := &fakePage{url: "https://www.xiaohongshu.com/explore", title: "listing"}
	detail := &fakePage{url: "https://www.xiaohongshu.com/explore/abc123", title: "post"}
	lister := &fakeLister{pages: []Page{listing, detail}}

	mgr := NewManager(lister, nil, nil)
	sw := NewSwitcher(mgr, nil)

	page, err := sw.EnsureContext(ctx, "xhs_extract_comments", Hints{})
	require.NoError(t, err)
	require.Equal(t, detail.url, page.URL())

	tab, ok := mgr.ActiveTab()
	require.True(t, ok)
	require.Equal(t, RoleItemDetail, tab.Role)
}

func TestEnsureContextNoSuitableTab(t *testing.T) {
	ctx := context.Background()

	listing := &fakePage{url: "https://www.xiaohongshu.com/explore", title: "listing"}
	lister := &fakeLister{pages: []Page{listing}}

	mgr := NewManager(lister, nil, nil)
	sw := NewSwitcher(mgr, nil)

	_, err := sw.EnsureContext(ctx, "xhs_extract_user_profile", Hints{})
	require.ErrorIs(t, err, ErrNoSuitableTab)
}

func TestEnsureContextRejectsDeadTab(t *testing.T) {
	ctx := context.Background()

	listing := &fakePage{url: "https://www.xiaohongshu.com/explore", title: "listing"}
	detail := &fakePage{url: "https://www.xiaohongshu.com/explore/abc123", title: "post"}
	lister := &fakeLister{pages: []Page{listing, detail}}

	mgr := NewManager(lister, nil, nil)
	sw := NewSwitcher(mgr, nil)

	require.Len(t, mgr.Discover(ctx), 2)

	// The only detail tab dies; an operation needing it must fail fast
	// instead of running against the listing.
	detail.dead = true
	lister.pages = []Page{listing}

	_, err := sw.EnsureContext(ctx, "xhs_extract_comments", Hints{})
	require.ErrorIs(t, err, ErrNoSuitableTab)
}

func TestEnsureContextAgnosticOperationKeepsActiveTab(t *testing.T) {
	ctx := context.Background()

	detail := &fakePage{url: "https://www.xiaohongshu.com/explore/abc123", title: "post"}
	lister := &fakeLister{pages: []Page{detail}}

	mgr := NewManager(lister, nil, nil)
	sw := NewSwitcher(mgr, nil)

	page, err := sw.EnsureContext(ctx, "navigate", Hints{})
	require.NoError(t, err)
	require.Equal(t, detail.url, page.URL())
}

func TestEnsureContextPrefersUserHint(t *testing.T) {
	ctx := context.Background()

	alice := &fakePage{url: "https://www.xiaohongshu.com/user/profile/alice9", title: "alice"}
	bob := &fakePage{url: "https://www.xiaohongshu.com/user/profile/bob42", title: "bob"}
	lister := &fakeLister{pages: []Page{alice, bob}}

	mgr := NewManager(lister, nil, nil)
	sw := NewSwitcher(mgr, nil)

	// Without a hint the most recent profile tab (bob) wins; the user id
	// hint pulls the search back to alice.
	page, err := sw.EnsureContext(ctx, "xhs_extract_user_profile", Hints{UserID: "alice9"})
	require.NoError(t, err)
	require.Equal(t, alice.url, page.URL())
}

func TestEnsureContextPrefersUsernameHint(t *testing.T) {
	ctx := context.Background()

	alice := &fakePage{url: "https://www.xiaohongshu.com/user/profile/u1", title: "alice's notes"}
	bob := &fakePage{url: "https://www.xiaohongshu.com/user/profile/u2", title: "bob's notes"}
	lister := &fakeLister{pages: []Page{alice, bob}}

	mgr := NewManager(lister, nil, nil)
	sw := NewSwitcher(mgr, nil)

	page, err := sw.EnsureContext(ctx, "xhs_extract_user_profile", Hints{Username: "alice"})
	require.NoError(t, err)
	require.Equal(t, alice.url, page.URL())
}

func TestEnsureContextPrefersOpenedTabID(t *testing.T) {
	ctx := context.Background()

	first := &fakePage{url: "https://www.xiaohongshu.com/user/profile/u1", title: "alice"}
	second := &fakePage{url: "https://www.xiaohongshu.com/user/profile/u2", title: "bob"}
	lister := &fakeLister{pages: []Page{first, second}}

	mgr := NewManager(lister, nil, nil)
	sw := NewSwitcher(mgr, nil)

	ids := mgr.Discover(ctx)
	require.Len(t, ids, 2)

	page, err := sw.EnsureContext(ctx, "xhs_extract_user_profile", Hints{OpenedTabID: ids[0]})
	require.NoError(t, err)
	require.Equal(t, first.url, page.URL())
}

func TestEnsureContextStaleOpenedTabIDFallsBack(t *testing.T) {
	ctx := context.Background()

	profile := &fakePage{url: "https://www.xiaohongshu.com/user/profile/u1", title: "alice"}
	lister := &fakeLister{pages: []Page{profile}}

	mgr := NewManager(lister, nil, nil)
	sw := NewSwitcher(mgr, nil)

	page, err := sw.EnsureContext(ctx, "xhs_extract_user_profile", Hints{OpenedTabID: "tab_999"})
	require.NoError(t, err)
	require.Equal(t, profile.url, page.URL())
}

func TestEnsureContextValidatesPostSwitchURL(t *testing.T) {
	ctx := context.Background()

	detail := &fakePage{url: "https://www.xiaohongshu.com/explore/abc123", title: "post"}
	lister := &fakeLister{pages: []Page{detail}}

	mgr := NewManager(lister, nil, nil)
	sw := NewSwitcher(mgr, nil)

	// The page navigates away between registration and the switch.
	require.Len(t, mgr.Discover(ctx), 1)
	detail.url = "https://example.com/elsewhere"

	_, err := sw.EnsureContext(ctx, "xhs_extract_comments", Hints{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "validation failed")
}

func TestValidator(t *testing.T) {
	ctx := context.Background()
	v := NewValidator()

	cases := []struct {
		name      string
		operation string
		page      Page
		wantOK    bool
		reason    string
	}{
		{
			name:      "nil page",
			operation: "xhs_extract_comments",
			page:      nil,
			wantOK:    false,
			reason:    "no page available",
		},
		{
			name:      "dead page",
			operation: "xhs_extract_posts",
			page:      &fakePage{url: "https://www.xiaohongshu.com/explore", dead: true},
			wantOK:    false,
			reason:    "page unreachable",
		},
		{
			name:      "extract comments off detail page",
			operation: "xhs_extract_comments",
			page:      &fakePage{url: "https://www.xiaohongshu.com/explore", title: "listing"},
			wantOK:    false,
			reason:    "not on a post detail page",
		},
		{
			name:      "expand comments without comment area",
			operation: "xhs_expand_comments",
			page:      &fakePage{url: "https://www.xiaohongshu.com/explore/abc123", title: "post"},
			wantOK:    false,
			reason:    "comment area not found",
		},
		{
			name:      "expand comments ready",
			operation: "xhs_expand_comments",
			page:      &fakePage{url: "https://www.xiaohongshu.com/explore/abc123", title: "post", hasElement: true},
			wantOK:    true,
		},
		{
			name:      "profile extraction off profile page",
			operation: "xhs_extract_user_profile",
			page:      &fakePage{url: "https://www.xiaohongshu.com/explore", title: "listing"},
			wantOK:    false,
			reason:    "not on a user profile page",
		},
		{
			name:      "scroll on detail page",
			operation: "xhs_auto_scroll",
			page:      &fakePage{url: "https://www.xiaohongshu.com/explore/abc123", title: "post"},
			wantOK:    false,
			reason:    "not on the main listing page",
		},
		{
			name:      "scroll on listing",
			operation: "xhs_auto_scroll",
			page:      &fakePage{url: "https://www.xiaohongshu.com/explore", title: "listing"},
			wantOK:    true,
		},
		{
			name:      "agnostic operation passes",
			operation: "navigate",
			page:      &fakePage{url: "about:blank", title: "blank"},
			wantOK:    true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := v.Validate(ctx, tc.operation, tc.page)
			require.Equal(t, tc.wantOK, ok)
			if tc.reason != "" {
				require.Contains(t, reason, tc.reason)
			}
		})
	}
}
