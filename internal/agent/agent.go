package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/driftware/harvester/internal/tabs"
)

// Options configures the in-sandbox agent.
type Options struct {
	// Headless should stay false inside the sandbox so the VNC viewer
	// shows the run; true is useful for local development.
	Headless bool
	// StartURL is where a freshly started browser lands.
	StartURL string
}

// Agent owns the browser inside one sandbox and executes the operations
// the orchestrator dispatches over HTTP. One agent, one browser, one
// browser context; multi-tab state lives in the tab manager.
type Agent struct {
	mu sync.Mutex

	opts       Options
	pw         *playwright.Playwright
	browser    playwright.Browser
	browserCtx playwright.BrowserContext
	lister     *pwLister

	tabs      *tabs.Manager
	switcher  *tabs.Switcher
	validator *tabs.Validator

	log *slog.Logger
}

func New(opts Options) *Agent {
	if opts.StartURL == "" {
		opts.StartURL = "https://www.xiaohongshu.com/explore"
	}
	return &Agent{
		opts:      opts,
		validator: tabs.NewValidator(),
		log:       slog.With("component", "agent"),
	}
}

// StartBrowser launches the browser and positions it on the start page.
// Calling it on an already-running browser is a no-op success.
func (a *Agent) StartBrowser(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.browser != nil {
		a.log.Info("browser already running")
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(a.opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 800},
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return fmt.Errorf("failed to open page: %w", err)
	}

	a.pw = pw
	a.browser = browser
	a.browserCtx = browserCtx
	a.lister = newLister(browserCtx)
	a.tabs = tabs.NewManager(a.lister, nil, nil)
	a.switcher = tabs.NewSwitcher(a.tabs, nil)

	adapted := a.lister.adapt(page)
	if _, err := page.Goto(a.opts.StartURL); err != nil {
		a.log.Warn("initial navigation failed", "url", a.opts.StartURL, "error", err)
	}

	tabID := a.tabs.Register(ctx, adapted)
	if err := a.tabs.SwitchTo(ctx, tabID); err != nil {
		return fmt.Errorf("failed to activate initial tab: %w", err)
	}

	a.log.Info("browser started", "start_url", a.opts.StartURL)
	return nil
}

// Shutdown closes the browser and stops playwright.
func (a *Agent) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.browser != nil {
		a.browser.Close()
		a.browser = nil
	}
	if a.pw != nil {
		a.pw.Stop()
		a.pw = nil
	}
}

// started guards operations that need a running browser.
func (a *Agent) started() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.browser == nil {
		return fmt.Errorf("browser not started, call /browser/start first")
	}
	return nil
}

// Navigate drives the active tab to a URL.
func (a *Agent) Navigate(ctx context.Context, url string) error {
	if err := a.started(); err != nil {
		return err
	}
	if url == "" {
		return fmt.Errorf("url is required")
	}

	page, err := a.activePage(ctx)
	if err != nil {
		return err
	}

	if _, err := page.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	a.log.Info("navigated", "url", url)
	return nil
}

// ExecuteScript runs an opaque script in the active tab and returns its
// structured result.
func (a *Agent) ExecuteScript(ctx context.Context, script string) (any, error) {
	if err := a.started(); err != nil {
		return nil, err
	}
	if script == "" {
		return nil, fmt.Errorf("script is required")
	}

	page, err := a.activePage(ctx)
	if err != nil {
		return nil, err
	}

	result, err := page.page.Evaluate(script)
	if err != nil {
		return nil, fmt.Errorf("script failed: %w", err)
	}
	return result, nil
}

// ClickSelector clicks the first element matching a CSS selector.
func (a *Agent) ClickSelector(ctx context.Context, selector string) error {
	if err := a.started(); err != nil {
		return err
	}
	if selector == "" {
		return fmt.Errorf("selector is required")
	}

	page, err := a.activePage(ctx)
	if err != nil {
		return err
	}

	if err := page.page.Click(selector, playwright.PageClickOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// TypeText fills a field identified by a CSS selector.
func (a *Agent) TypeText(ctx context.Context, selector, text string) error {
	if err := a.started(); err != nil {
		return err
	}
	if selector == "" {
		return fmt.Errorf("selector is required")
	}

	page, err := a.activePage(ctx)
	if err != nil {
		return err
	}

	if err := page.page.Fill(selector, text, playwright.PageFillOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// activePage returns the active tab's page as the playwright adapter.
func (a *Agent) activePage(ctx context.Context) (*pwPage, error) {
	page, err := a.tabs.ActivePage(ctx)
	if err != nil {
		return nil, err
	}
	return asPwPage(page)
}

// sitePage resolves and validates the tab a site operation must run in.
func (a *Agent) sitePage(ctx context.Context, operation string, hints tabs.Hints) (*pwPage, error) {
	if err := a.started(); err != nil {
		return nil, err
	}

	page, err := a.switcher.EnsureContext(ctx, operation, hints)
	if err != nil {
		return nil, err
	}

	if ok, reason := a.validator.Validate(ctx, operation, page); !ok {
		return nil, fmt.Errorf("environment validation failed: %s", reason)
	}

	return asPwPage(page)
}

func asPwPage(page tabs.Page) (*pwPage, error) {
	adapted, ok := page.(*pwPage)
	if !ok {
		return nil, fmt.Errorf("page is not backed by a browser page")
	}
	return adapted, nil
}

func pause(d time.Duration) {
	time.Sleep(d)
}
