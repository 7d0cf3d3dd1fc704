package dispatch

// Endpoint binds a logical action name to a concrete agent capability and
// the shape of its request body. Actions missing from the table resolve to
// ok=false; the dispatcher records a local failure for those instead of
// guessing an endpoint.
type Endpoint struct {
	Path        string
	Description string
	// Prepare builds the request body from the operation params. Nil means
	// the endpoint takes no body.
	Prepare func(params map[string]any) map[string]any
}

var actionTable = map[string]Endpoint{
	// Generic browser capabilities.
	"start_browser": {
		Path:        "/browser/start",
		Description: "initialize the browser inside the sandbox",
	},
	"navigate": {
		Path:        "/browser/navigate",
		Description: "navigate the active tab",
		Prepare:     pick("url"),
	},
	"execute_script": {
		Path:        "/browser/execute_script",
		Description: "run a script in the active tab",
		Prepare:     pick("script"),
	},
	"click_selector": {
		Path:        "/browser/click_selector",
		Description: "click an element by CSS selector",
		Prepare:     pick("selector"),
	},
	"type_text": {
		Path:        "/browser/type_text",
		Description: "fill a field by CSS selector",
		Prepare:     pick("selector", "text"),
	},

	// Site-specific capabilities.
	"xhs_auto_scroll": {
		Path:        "/xhs/auto_scroll",
		Description: "scroll the listing until no new posts load",
		Prepare: func(params map[string]any) map[string]any {
			return map[string]any{
				"max_scrolls":           numberOr(params, "max_scrolls", 10),
				"delay_between_scrolls": numberOr(params, "delay_between_scrolls", 2.0),
			}
		},
	},
	"xhs_extract_posts": {
		Path:        "/xhs/extract_posts",
		Description: "extract every visible post from the listing",
		Prepare: func(params map[string]any) map[string]any {
			body := map[string]any{}
			if limit, ok := params["limit"]; ok {
				body["limit"] = limit
			}
			return body
		},
	},
	"xhs_click_post": {
		Path:        "/xhs/click_post_by_title",
		Description: "open a post's detail view by its title",
		Prepare:     pick("title"),
	},
	"xhs_expand_comments": {
		Path:        "/xhs/expand_comments",
		Description: "expand the full comment thread of the open post",
		Prepare: func(params map[string]any) map[string]any {
			return map[string]any{
				"max_attempts": numberOr(params, "max_attempts", 10),
			}
		},
	},
	"xhs_extract_comments": {
		Path:        "/xhs/extract_comments",
		Description: "extract post content and comments",
		Prepare: func(params map[string]any) map[string]any {
			return map[string]any{
				"include_replies": boolOr(params, "include_replies", true),
			}
		},
	},
	"xhs_close_post": {
		Path:        "/xhs/close_post",
		Description: "close the post detail view",
	},
	"xhs_close_page": {
		Path:        "/xhs/close_page",
		Description: "close the active page",
	},
	"xhs_click_author_avatar": {
		Path:        "/xhs/click_author_avatar",
		Description: "open the author's profile in a new tab",
		Prepare:     pick("userid", "username"),
	},
	"xhs_extract_user_profile": {
		Path:        "/xhs/extract_user_profile",
		Description: "extract the open user profile",
		Prepare: func(params map[string]any) map[string]any {
			body := map[string]any{}
			for _, key := range []string{"userid", "username", "opened_tab_id"} {
				if v, ok := params[key]; ok {
					body[key] = v
				}
			}
			return body
		},
	},
}

// Resolve maps an action name to its agent endpoint. The second return is
// false for unsupported actions.
func Resolve(action string) (Endpoint, bool) {
	ep, ok := actionTable[action]
	return ep, ok
}

// SupportedActions lists every action the dispatcher can route.
func SupportedActions() []string {
	actions := make([]string, 0, len(actionTable))
	for action := range actionTable {
		actions = append(actions, action)
	}
	return actions
}

// pick copies the named keys from the params into the request body,
// defaulting missing strings to "".
func pick(keys ...string) func(map[string]any) map[string]any {
	return func(params map[string]any) map[string]any {
		body := make(map[string]any, len(keys))
		for _, key := range keys {
			if v, ok := params[key]; ok {
				body[key] = v
			} else {
				body[key] = ""
			}
		}
		return body
	}
}

func numberOr(params map[string]any, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func boolOr(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return fallback
}
