package tabs

import "regexp"

// Role classifies an open tab so operations can be routed to the right
// context.
type Role string

const (
	RoleMainListing Role = "main_listing"
	RoleItemDetail  Role = "item_detail"
	RoleUserProfile Role = "user_profile"
	RoleOther       Role = "other"
)

// Rule maps a URL pattern to a role. Rules are evaluated in order, so the
// rule set must list specific patterns (item detail, user profile) before
// the generic listing patterns.
type Rule struct {
	Role    Role
	Pattern *regexp.Regexp
}

// DefaultRules returns the classification rules for xiaohongshu.com.
func DefaultRules() []Rule {
	return []Rule{
		{RoleItemDetail, regexp.MustCompile(`xiaohongshu\.com/discovery/item/`)},
		{RoleItemDetail, regexp.MustCompile(`xiaohongshu\.com/explore/\w+`)},
		{RoleUserProfile, regexp.MustCompile(`xiaohongshu\.com/user/profile/`)},
		{RoleUserProfile, regexp.MustCompile(`xiaohongshu\.com/@\w+`)},
		{RoleMainListing, regexp.MustCompile(`xiaohongshu\.com/?$`)},
		{RoleMainListing, regexp.MustCompile(`xiaohongshu\.com/explore/?$`)},
		{RoleMainListing, regexp.MustCompile(`xiaohongshu\.com/search`)},
	}
}

// Classify resolves a URL to a role. It is a pure function of the URL: the
// same URL always yields the same role.
func Classify(rules []Rule, url string) Role {
	for _, rule := range rules {
		if rule.Pattern.MatchString(url) {
			return rule.Role
		}
	}
	return RoleOther
}

// FallbackPolicy decides, per closed-tab role, which roles to prefer when
// reassigning the active tab. Roles missing from the policy fall back to
// the catch-all entry under RoleOther.
type FallbackPolicy map[Role][]Role

// DefaultFallbackPolicy prefers returning to the listing after closing a
// detail or profile tab; a closed detail tab never falls back to a profile
// tab.
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		RoleUserProfile: {RoleMainListing, RoleItemDetail, RoleOther},
		RoleItemDetail:  {RoleMainListing, RoleOther},
		RoleOther:       {RoleMainListing, RoleItemDetail, RoleUserProfile, RoleOther},
	}
}

func (p FallbackPolicy) forRole(closed Role) []Role {
	if order, ok := p[closed]; ok {
		return order
	}
	return p[RoleOther]
}
