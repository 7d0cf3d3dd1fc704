package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftware/harvester/pkg/models"
)

// fakeAgent records the requests an operation batch produces and answers
// with scripted responses per path.
type fakeAgent struct {
	*httptest.Server
	calls     []string
	responses map[string]models.AgentResponse
	status    map[string]int
}

func newFakeAgent(t *testing.T) *fakeAgent {
	f := &fakeAgent{
		responses: make(map[string]models.AgentResponse),
		status:    make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls = append(f.calls, r.URL.Path)

		if status, ok := f.status[r.URL.Path]; ok {
			w.WriteHeader(status)
			w.Write([]byte("agent error"))
			return
		}

		resp, ok := f.responses[r.URL.Path]
		if !ok {
			resp = models.AgentResponse{Success: true, Message: "ok", Data: map[string]any{}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAgent) session() *models.Session {
	return &models.Session{ID: "browser_test", AgentURL: f.URL}
}

func TestExecuteOrderAndCounts(t *testing.T) {
	agent := newFakeAgent(t)
	d := NewDispatcher(5 * time.Second)

	ops := []models.Operation{
		{Action: "start_browser"},
		{Action: "navigate", Params: map[string]any{"url": "https://www.xiaohongshu.com/explore"}},
		{Action: "xhs_auto_scroll"},
	}

	result := d.Execute(context.Background(), agent.session(), ops)

	require.True(t, result.Success)
	require.Equal(t, 3, result.Total)
	require.Equal(t, 3, result.Successful)
	require.Len(t, result.Results, 3)

	// One network call per operation, in submission order.
	require.Equal(t, []string{"/browser/start", "/browser/navigate", "/xhs/auto_scroll"}, agent.calls)
	for i, op := range ops {
		require.Equal(t, op.Action, result.Results[i].Action)
	}
}

func TestExecuteUnsupportedOperationIsLocalFailure(t *testing.T) {
	agent := newFakeAgent(t)
	d := NewDispatcher(5 * time.Second)

	result := d.Execute(context.Background(), agent.session(), []models.Operation{
		{Action: "navigate", Params: map[string]any{"url": "https://example.com"}},
		{Action: "teleport"},
		{Action: "xhs_extract_posts"},
	})

	require.False(t, result.Success)
	require.Equal(t, 2, result.Successful)
	require.Len(t, result.Results, 3)

	require.False(t, result.Results[1].Success)
	require.Contains(t, result.Results[1].Message, "unsupported operation")
	require.Zero(t, result.Results[1].StatusCode)

	// The unsupported step never reached the agent; the batch continued.
	require.Equal(t, []string{"/browser/navigate", "/xhs/extract_posts"}, agent.calls)
}

func TestExecuteUnsupportedRequiredDoesNotAbort(t *testing.T) {
	agent := newFakeAgent(t)
	d := NewDispatcher(5 * time.Second)

	result := d.Execute(context.Background(), agent.session(), []models.Operation{
		{Action: "teleport", Required: true},
		{Action: "xhs_extract_posts"},
	})

	require.Len(t, result.Results, 2)
	require.True(t, result.Results[1].Success)
	require.Equal(t, []string{"/xhs/extract_posts"}, agent.calls)
}

func TestExecuteRequiredFailureSkipsRest(t *testing.T) {
	agent := newFakeAgent(t)
	agent.responses["/xhs/click_post_by_title"] = models.AgentResponse{
		Success: false,
		Message: "post not found in listing",
	}
	d := NewDispatcher(5 * time.Second)

	result := d.Execute(context.Background(), agent.session(), []models.Operation{
		{Action: "xhs_click_post", Params: map[string]any{"title": "gone"}, Required: true},
		{Action: "xhs_expand_comments"},
		{Action: "xhs_extract_comments", Required: true},
	})

	require.False(t, result.Success)
	require.Equal(t, 0, result.Successful)
	require.Len(t, result.Results, 3)

	require.Contains(t, result.Results[1].Message, "skipped")
	require.Contains(t, result.Results[2].Message, "skipped")

	// Nothing after the failed required step hit the agent.
	require.Equal(t, []string{"/xhs/click_post_by_title"}, agent.calls)
}

func TestExecuteAgentHTTPError(t *testing.T) {
	agent := newFakeAgent(t)
	agent.status["/browser/navigate"] = http.StatusInternalServerError
	d := NewDispatcher(5 * time.Second)

	result := d.Execute(context.Background(), agent.session(), []models.Operation{
		{Action: "navigate", Params: map[string]any{"url": "https://example.com"}},
	})

	require.False(t, result.Success)
	require.Equal(t, http.StatusInternalServerError, result.Results[0].StatusCode)
	require.Contains(t, result.Results[0].Message, "HTTP 500")
}

func TestExecuteTransportFailure(t *testing.T) {
	d := NewDispatcher(2 * time.Second)
	sess := &models.Session{ID: "browser_test", AgentURL: "http://127.0.0.1:1"}

	result := d.Execute(context.Background(), sess, []models.Operation{
		{Action: "navigate", Params: map[string]any{"url": "https://example.com"}},
	})

	require.False(t, result.Success)
	require.Contains(t, result.Results[0].Message, "request failed")
}

func TestExecuteStrictSuccess(t *testing.T) {
	agent := newFakeAgent(t)
	agent.responses["/xhs/expand_comments"] = models.AgentResponse{
		Success: false,
		Message: "comment area not found on page",
	}
	d := NewDispatcher(5 * time.Second)

	result := d.Execute(context.Background(), agent.session(), []models.Operation{
		{Action: "xhs_click_post", Params: map[string]any{"title": "dinner"}},
		{Action: "xhs_expand_comments"},
		{Action: "xhs_extract_comments"},
	})

	// One optional failure is enough to fail the batch, but every step ran.
	require.False(t, result.Success)
	require.Equal(t, 2, result.Successful)
	require.Len(t, agent.calls, 3)
}

func TestResolveKnownActions(t *testing.T) {
	for _, action := range SupportedActions() {
		_, ok := Resolve(action)
		require.True(t, ok, "action %s", action)
	}

	_, ok := Resolve("does_not_exist")
	require.False(t, ok)
}

func TestPrepareNavigateBody(t *testing.T) {
	endpoint, ok := Resolve("navigate")
	require.True(t, ok)
	require.Equal(t, "/browser/navigate", endpoint.Path)

	body := endpoint.Prepare(map[string]any{"url": "https://example.com", "junk": true})
	require.Equal(t, map[string]any{"url": "https://example.com"}, body)
}

func TestPrepareAvatarClickForwardsTarget(t *testing.T) {
	endpoint, ok := Resolve("xhs_click_author_avatar")
	require.True(t, ok)
	require.Equal(t, "/xhs/click_author_avatar", endpoint.Path)

	// The author identity travels to the agent so the click can target the
	// right link, not just the first avatar.
	body := endpoint.Prepare(map[string]any{"userid": "u123", "username": "alice"})
	require.Equal(t, map[string]any{"userid": "u123", "username": "alice"}, body)

	body = endpoint.Prepare(nil)
	require.Equal(t, map[string]any{"userid": "", "username": ""}, body)
}

func TestPrepareScrollDefaults(t *testing.T) {
	endpoint, ok := Resolve("xhs_auto_scroll")
	require.True(t, ok)

	body := endpoint.Prepare(nil)
	require.Equal(t, float64(10), body["max_scrolls"])
	require.Equal(t, 2.0, body["delay_between_scrolls"])

	body = endpoint.Prepare(map[string]any{"max_scrolls": float64(25)})
	require.Equal(t, float64(25), body["max_scrolls"])
}
