package crawler

import (
	"fmt"
	"review-talk-go/internal/config"
	"review-talk-go/pkg/log"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	clickTimeout  = 5 * time.Second
	lookupTimeout = 2 * time.Second
)

// Browser 持有一个共享的 Chromium 进程，每个会话使用独立的 BrowserContext。
// 进程在第一次创建页面时才启动。
type Browser struct {
	cfg     config.CrawlerConfig
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewBrowser 创建一个尚未启动的浏览器。
func NewBrowser(cfg config.CrawlerConfig) *Browser {
	return &Browser{cfg: cfg}
}

func (b *Browser) ensureStarted() (playwright.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil && b.browser.IsConnected() {
		return b.browser, nil
	}
	if b.pw == nil {
		pw, err := playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("could not start playwright: %w", err)
		}
		b.pw = pw
	}
	browser, err := b.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.cfg.Headless),
		Args:     []string{"--no-sandbox", "--disable-dev-shm-usage", "--disable-gpu"},
	})
	if err != nil {
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}
	log.Infof("[Browser] Chromium 已启动, headless: %v", b.cfg.Headless)
	b.browser = browser
	return browser, nil
}

// NewPage 创建一个新的浏览器上下文和页面。
func (b *Browser) NewPage() (Page, error) {
	browser, err := b.ensureStarted()
	if err != nil {
		return nil, err
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(b.cfg.UserAgent),
		Locale:    playwright.String(b.cfg.Locale),
		Viewport: &playwright.Size{
			Width:  b.cfg.ViewportWidth,
			Height: b.cfg.ViewportHeight,
		},
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": "ko-KR,ko;q=0.9,en;q=0.8",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("could not create page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.cfg.NavigationTimeout.Milliseconds()))
	return &playwrightPage{context: bctx, page: page}, nil
}

// Close 关闭浏览器进程。
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			log.Warnf("[Browser] 关闭浏览器失败: %v", err)
		}
		b.browser = nil
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			return fmt.Errorf("could not stop playwright: %w", err)
		}
		b.pw = nil
	}
	return nil
}

type playwrightPage struct {
	context playwright.BrowserContext
	page    playwright.Page
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *playwrightPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   ms(timeout),
	})
	return err
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) Count(selector string) (int, error) {
	return p.page.Locator(selector).Count()
}

func (p *playwrightPage) IsVisible(selector string) (bool, error) {
	return p.page.Locator(selector).First().IsVisible()
}

func (p *playwrightPage) Click(selector string) error {
	return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: ms(clickTimeout)})
}

func (p *playwrightPage) Text(selector string) (string, bool, error) {
	loc := p.page.Locator(selector)
	n, err := loc.Count()
	if err != nil || n == 0 {
		return "", false, err
	}
	text, err := loc.First().InnerText(playwright.LocatorInnerTextOptions{Timeout: ms(lookupTimeout)})
	if err != nil {
		return "", true, err
	}
	return text, true, nil
}

func (p *playwrightPage) Attribute(selector, name string) (string, bool, error) {
	loc := p.page.Locator(selector)
	n, err := loc.Count()
	if err != nil || n == 0 {
		return "", false, err
	}
	v, err := loc.First().GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: ms(lookupTimeout)})
	if err != nil {
		return "", true, err
	}
	return v, true, nil
}

func (p *playwrightPage) IDs(selector string) ([]string, error) {
	raw, err := p.page.Evaluate(`sel => Array.from(document.querySelectorAll(sel)).map(e => e.id)`, selector)
	if err != nil {
		return nil, err
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected evaluate result %T", raw)
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

func (p *playwrightPage) ScrollToBottom() error {
	_, err := p.page.Evaluate(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (p *playwrightPage) Close() error {
	return p.context.Close()
}
