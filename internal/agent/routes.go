package agent

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/driftware/harvester/pkg/models"
)

// Router builds the agent's HTTP surface. Every operation endpoint accepts
// a JSON body of named parameters and answers with a models.AgentResponse.
func (a *Agent) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", a.handleHealth).Methods("GET")

	r.HandleFunc("/browser/start", a.handleStartBrowser).Methods("POST")
	r.HandleFunc("/browser/navigate", a.handleNavigate).Methods("POST")
	r.HandleFunc("/browser/execute_script", a.handleExecuteScript).Methods("POST")
	r.HandleFunc("/browser/click_selector", a.handleClickSelector).Methods("POST")
	r.HandleFunc("/browser/type_text", a.handleTypeText).Methods("POST")

	r.HandleFunc("/xhs/auto_scroll", a.handleAutoScroll).Methods("POST")
	r.HandleFunc("/xhs/extract_posts", a.handleExtractPosts).Methods("POST")
	r.HandleFunc("/xhs/click_post_by_title", a.handleClickPost).Methods("POST")
	r.HandleFunc("/xhs/expand_comments", a.handleExpandComments).Methods("POST")
	r.HandleFunc("/xhs/extract_comments", a.handleExtractComments).Methods("POST")
	r.HandleFunc("/xhs/close_post", a.handleClosePost).Methods("POST")
	r.HandleFunc("/xhs/close_page", a.handleClosePage).Methods("POST")
	r.HandleFunc("/xhs/click_author_avatar", a.handleClickAuthorAvatar).Methods("POST")
	r.HandleFunc("/xhs/extract_user_profile", a.handleExtractUserProfile).Methods("POST")

	r.HandleFunc("/tabs", a.handleListTabs).Methods("GET")

	return r
}

type params map[string]any

func (p params) str(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

func (p params) num(key string, fallback float64) float64 {
	if v, ok := p[key].(float64); ok {
		return v
	}
	return fallback
}

func (p params) boolean(key string, fallback bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return fallback
}

func readParams(r *http.Request) params {
	p := params{}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&p)
	}
	return p
}

func writeAgentResponse(w http.ResponseWriter, status int, resp models.AgentResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func ok(w http.ResponseWriter, message string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	writeAgentResponse(w, http.StatusOK, models.AgentResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func fail(w http.ResponseWriter, status int, err error) {
	writeAgentResponse(w, status, models.AgentResponse{
		Success: false,
		Message: err.Error(),
		Data:    map[string]any{},
	})
}

func (a *Agent) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok(w, "agent ready", nil)
}

func (a *Agent) handleStartBrowser(w http.ResponseWriter, r *http.Request) {
	if err := a.StartBrowser(r.Context()); err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "browser running", map[string]any{"start_url": a.opts.StartURL})
}

func (a *Agent) handleNavigate(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	if err := a.Navigate(r.Context(), p.str("url")); err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "navigation complete", map[string]any{"url": p.str("url")})
}

func (a *Agent) handleExecuteScript(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	result, err := a.ExecuteScript(r.Context(), p.str("script"))
	if err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "script executed", map[string]any{"result": result})
}

func (a *Agent) handleClickSelector(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	if err := a.ClickSelector(r.Context(), p.str("selector")); err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "clicked", map[string]any{"selector": p.str("selector")})
}

func (a *Agent) handleTypeText(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	if err := a.TypeText(r.Context(), p.str("selector"), p.str("text")); err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "text entered", map[string]any{"selector": p.str("selector")})
}

func (a *Agent) handleAutoScroll(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	maxScrolls := int(p.num("max_scrolls", 10))
	delay := time.Duration(p.num("delay_between_scrolls", 2.0) * float64(time.Second))

	data, err := a.AutoScroll(r.Context(), maxScrolls, delay)
	if err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "scroll finished", data)
}

func (a *Agent) handleExtractPosts(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	data, err := a.ExtractPosts(r.Context(), int(p.num("limit", 0)))
	if err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "posts extracted", data)
}

func (a *Agent) handleClickPost(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	title := p.str("title")
	if err := a.ClickPost(r.Context(), title); err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "post opened", map[string]any{"title": title})
}

func (a *Agent) handleExpandComments(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	data, err := a.ExpandComments(r.Context(), int(p.num("max_attempts", 10)))
	if err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "comments expanded", data)
}

func (a *Agent) handleExtractComments(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	data, err := a.ExtractComments(r.Context(), p.boolean("include_replies", true))
	if err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "comments extracted", data)
}

func (a *Agent) handleClosePost(w http.ResponseWriter, r *http.Request) {
	if err := a.ClosePost(r.Context()); err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "post closed", nil)
}

func (a *Agent) handleClosePage(w http.ResponseWriter, r *http.Request) {
	if err := a.ClosePage(r.Context()); err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "page closed", nil)
}

func (a *Agent) handleClickAuthorAvatar(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	data, err := a.ClickAuthorAvatar(r.Context(), p.str("userid"), p.str("username"))
	if err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "avatar clicked", data)
}

func (a *Agent) handleExtractUserProfile(w http.ResponseWriter, r *http.Request) {
	p := readParams(r)
	data, err := a.ExtractUserProfile(r.Context(), p.str("userid"), p.str("username"), p.str("opened_tab_id"))
	if err != nil {
		fail(w, http.StatusInternalServerError, err)
		return
	}
	ok(w, "profile extracted", data)
}

func (a *Agent) handleListTabs(w http.ResponseWriter, r *http.Request) {
	if err := a.started(); err != nil {
		fail(w, http.StatusConflict, err)
		return
	}

	snapshot := a.tabs.Snapshot()
	out := make([]map[string]any, 0, len(snapshot))
	for _, tab := range snapshot {
		out = append(out, map[string]any{
			"tab_id":         tab.ID,
			"role":           string(tab.Role),
			"url":            tab.URL,
			"title":          tab.Title,
			"active":         tab.Active,
			"created_at":     tab.CreatedAt,
			"last_active_at": tab.LastActiveAt,
		})
	}
	ok(w, "tabs listed", map[string]any{"tabs": out, "count": len(out)})
}
