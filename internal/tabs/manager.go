package tabs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Page is the slice of a browser page the tab layer needs. The Title call
// doubles as the liveness probe: a page that cannot report its title is
// treated as closed.
type Page interface {
	URL() string
	Title(ctx context.Context) (string, error)
	BringToFront(ctx context.Context) error
	Close(ctx context.Context) error
}

// ElementQuerier is implemented by pages that can answer selector presence
// checks, used by the environment validator.
type ElementQuerier interface {
	HasElement(ctx context.Context, selector string) (bool, error)
}

// PageLister exposes the set of currently open pages in a browser context,
// used to discover tabs opened as a side effect of earlier operations.
type PageLister interface {
	Pages() []Page
}

// Tab is one tracked page plus its classification and activity state.
type Tab struct {
	ID           string
	Role         Role
	URL          string
	Title        string
	CreatedAt    time.Time
	LastActiveAt time.Time
	Active       bool

	page Page
}

// Manager tracks every open tab in one browser context, classifies each by
// role, and keeps the single-active-tab invariant: at most one tab is
// active at any time.
type Manager struct {
	mu       sync.Mutex
	tabs     map[string]*Tab
	activeID string
	rules    []Rule
	fallback FallbackPolicy
	lister   PageLister
	seq      int
	log      *slog.Logger
}

func NewManager(lister PageLister, rules []Rule, fallback FallbackPolicy) *Manager {
	if rules == nil {
		rules = DefaultRules()
	}
	if fallback == nil {
		fallback = DefaultFallbackPolicy()
	}
	return &Manager{
		tabs:     make(map[string]*Tab),
		rules:    rules,
		fallback: fallback,
		lister:   lister,
		log:      slog.With("component", "tabs"),
	}
}

// Register tracks a newly observed page and classifies it by URL.
func (m *Manager) Register(ctx context.Context, page Page) string {
	url := page.URL()
	title, err := page.Title(ctx)
	if err != nil {
		title = "unknown"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.register(page, url, title)
}

func (m *Manager) register(page Page, url, title string) string {
	m.seq++
	id := fmt.Sprintf("tab_%d", m.seq)

	now := time.Now()
	m.tabs[id] = &Tab{
		ID:           id,
		Role:         Classify(m.rules, url),
		URL:          url,
		Title:        title,
		CreatedAt:    now,
		LastActiveAt: now,
		page:         page,
	}

	m.log.Info("registered tab", "tab_id", id, "role", m.tabs[id].Role, "url", url)
	return id
}

// Discover reconciles tracked tabs with the browser: dead tabs are pruned,
// and pages opened since the last look (for example a profile tab opened by
// clicking an avatar) are registered. Returns the ids of new tabs.
func (m *Manager) Discover(ctx context.Context) []string {
	m.Prune(ctx)

	if m.lister == nil {
		return nil
	}

	current := m.lister.Pages()

	m.mu.Lock()
	known := make(map[Page]bool, len(m.tabs))
	for _, tab := range m.tabs {
		known[tab.page] = true
	}
	m.mu.Unlock()

	var discovered []string
	for _, page := range current {
		if known[page] {
			continue
		}
		// A lister can still report a page that is mid-teardown.
		if _, err := page.Title(ctx); err != nil {
			continue
		}
		discovered = append(discovered, m.Register(ctx, page))
	}

	if len(discovered) > 0 {
		m.log.Info("discovered new tabs", "count", len(discovered))
	}
	return discovered
}

// SwitchTo brings a tab to the foreground and deactivates all siblings.
func (m *Manager) SwitchTo(ctx context.Context, tabID string) error {
	m.mu.Lock()
	tab, ok := m.tabs[tabID]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("tab %s not found", tabID)
	}

	if err := tab.page.BringToFront(ctx); err != nil {
		return fmt.Errorf("failed to focus tab %s: %w", tabID, err)
	}

	m.mu.Lock()
	for id, t := range m.tabs {
		t.Active = id == tabID
	}
	tab.LastActiveAt = time.Now()
	tab.URL = tab.page.URL()
	tab.Role = Classify(m.rules, tab.URL)
	m.activeID = tabID
	m.mu.Unlock()

	m.log.Info("switched tab", "tab_id", tabID, "role", tab.Role)
	return nil
}

// ActivePage returns the page of the active tab, discovering and adopting
// the most recently created tab when no tab is active yet.
func (m *Manager) ActivePage(ctx context.Context) (Page, error) {
	m.mu.Lock()
	_, haveActive := m.tabs[m.activeID]
	m.mu.Unlock()

	if !haveActive {
		m.Discover(ctx)

		if latest, ok := m.latestBy(func(t *Tab) time.Time { return t.CreatedAt }, nil); ok {
			if err := m.SwitchTo(ctx, latest.ID); err != nil {
				return nil, err
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tab, ok := m.tabs[m.activeID]
	if !ok {
		return nil, fmt.Errorf("no open tabs")
	}
	return tab.page, nil
}

// ActiveTab returns a copy of the active tab's metadata.
func (m *Manager) ActiveTab() (Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab, ok := m.tabs[m.activeID]
	if !ok {
		return Tab{}, false
	}
	return *tab, true
}

// Has reports whether a tab id is currently tracked.
func (m *Manager) Has(tabID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.tabs[tabID]
	return ok
}

// FindByRole returns the most recently active tab with the given role.
func (m *Manager) FindByRole(role Role) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab, ok := m.latestLocked(func(t *Tab) time.Time { return t.LastActiveAt }, func(t *Tab) bool { return t.Role == role })
	if !ok {
		return "", false
	}
	return tab.ID, true
}

// Find returns the most recently active tab satisfying the predicate.
func (m *Manager) Find(match func(Tab) bool) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab, ok := m.latestLocked(func(t *Tab) time.Time { return t.LastActiveAt }, func(t *Tab) bool { return match(*t) })
	if !ok {
		return "", false
	}
	return tab.ID, true
}

// CloseTab closes a tab's page and removes it. Closing the active tab
// reassigns the active slot by the fallback policy for the closed role.
func (m *Manager) CloseTab(ctx context.Context, tabID string) error {
	m.mu.Lock()
	tab, ok := m.tabs[tabID]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("tab %s not found", tabID)
	}

	if err := tab.page.Close(ctx); err != nil {
		m.log.Warn("error closing page", "tab_id", tabID, "error", err)
	}

	m.remove(ctx, tabID, tab.Role)
	m.log.Info("closed tab", "tab_id", tabID)
	return nil
}

// Prune removes tabs whose pages no longer answer a liveness probe and
// returns how many were removed. The probe, not close events, is the
// source of truth for tab death.
func (m *Manager) Prune(ctx context.Context) int {
	m.mu.Lock()
	candidates := make(map[string]*Tab, len(m.tabs))
	for id, tab := range m.tabs {
		candidates[id] = tab
	}
	m.mu.Unlock()

	removed := 0
	for id, tab := range candidates {
		if _, err := tab.page.Title(ctx); err != nil {
			m.remove(ctx, id, tab.Role)
			removed++
		}
	}

	if removed > 0 {
		m.log.Info("pruned dead tabs", "count", removed)
	}
	return removed
}

// Snapshot returns a copy of all tracked tabs for observability.
func (m *Manager) Snapshot() []Tab {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Tab, 0, len(m.tabs))
	for _, tab := range m.tabs {
		out = append(out, *tab)
	}
	return out
}

// remove deletes a tab and, if it was active, promotes a successor chosen
// by the fallback policy, preferring the most recently active tab within
// each preferred role.
func (m *Manager) remove(ctx context.Context, tabID string, closedRole Role) {
	m.mu.Lock()
	delete(m.tabs, tabID)
	wasActive := m.activeID == tabID
	if wasActive {
		m.activeID = ""
	}
	empty := len(m.tabs) == 0
	m.mu.Unlock()

	if !wasActive || empty {
		return
	}

	for _, role := range m.fallback.forRole(closedRole) {
		if id, ok := m.FindByRole(role); ok {
			if err := m.SwitchTo(ctx, id); err == nil {
				return
			}
		}
	}

	// Nothing matched the policy: fall back to the most recently used tab.
	if latest, ok := m.latestBy(func(t *Tab) time.Time { return t.LastActiveAt }, nil); ok {
		if err := m.SwitchTo(ctx, latest.ID); err != nil {
			m.log.Warn("failed to reassign active tab", "error", err)
		}
	}
}

func (m *Manager) latestBy(key func(*Tab) time.Time, match func(*Tab) bool) (Tab, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tab, ok := m.latestLocked(key, match)
	if !ok {
		return Tab{}, false
	}
	return *tab, true
}

func (m *Manager) latestLocked(key func(*Tab) time.Time, match func(*Tab) bool) (*Tab, bool) {
	var best *Tab
	for _, tab := range m.tabs {
		if match != nil && !match(tab) {
			continue
		}
		if best == nil || key(tab).After(key(best)) {
			best = tab
		}
	}
	return best, best != nil
}
