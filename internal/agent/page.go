package agent

import (
	"context"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/driftware/harvester/internal/tabs"
)

// pwPage adapts a playwright page to the tabs.Page interface. The context
// arguments are accepted for interface compatibility; playwright carries
// its own per-call timeouts.
type pwPage struct {
	page playwright.Page
}

var _ tabs.Page = (*pwPage)(nil)
var _ tabs.ElementQuerier = (*pwPage)(nil)

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) Title(ctx context.Context) (string, error) {
	return p.page.Title()
}

func (p *pwPage) BringToFront(ctx context.Context) error {
	return p.page.BringToFront()
}

func (p *pwPage) Close(ctx context.Context) error {
	return p.page.Close()
}

func (p *pwPage) HasElement(ctx context.Context, selector string) (bool, error) {
	element, err := p.page.QuerySelector(selector)
	if err != nil {
		return false, err
	}
	return element != nil, nil
}

// pwLister exposes a browser context's open pages for tab discovery.
type pwLister struct {
	context playwright.BrowserContext

	// mu guards adapters, which keeps one wrapper per underlying page so
	// the tab manager's identity checks see stable values.
	mu       sync.Mutex
	adapters map[playwright.Page]*pwPage
}

var _ tabs.PageLister = (*pwLister)(nil)

func newLister(context playwright.BrowserContext) *pwLister {
	return &pwLister{
		context:  context,
		adapters: make(map[playwright.Page]*pwPage),
	}
}

func (l *pwLister) adapt(page playwright.Page) *pwPage {
	l.mu.Lock()
	defer l.mu.Unlock()

	if adapted, ok := l.adapters[page]; ok {
		return adapted
	}
	adapted := &pwPage{page: page}
	l.adapters[page] = adapted
	return adapted
}

func (l *pwLister) Pages() []tabs.Page {
	pages := l.context.Pages()
	out := make([]tabs.Page, 0, len(pages))
	for _, page := range pages {
		out = append(out, l.adapt(page))
	}
	return out
}
