package crawler

import (
	"errors"
	"fmt"
	"review-talk-go/internal/config"
	"sync"
	"time"
)

func testConfig() config.CrawlerConfig {
	cfg := config.Default().Crawler
	cfg.InitialWait = 0
	cfg.ScrollPause = 0
	cfg.Reveal.SettleDelay = 0
	return cfg
}

// fakePage 模拟一个点击 “加载更多” 后每次追加 perClick 条评论的页面。
type fakePage struct {
	mu  sync.Mutex
	sel config.SelectorsConfig

	url        string
	gotoErr    error
	items      []string
	texts      map[string]string
	attrs      map[string]map[string]string
	textErrs   map[string]error
	reviewTab  bool
	moreClicks int // 按钮在第几次点击后消失，<0 表示一直存在
	moreHidden bool
	clickErr   error
	perClick   int

	clicks      int
	closed      int
	gotoCalls   int
	countCalls  int
	scrollCalls int
}

func newFakePage(sel config.SelectorsConfig, initial int) *fakePage {
	p := &fakePage{
		sel:        sel,
		url:        "https://prod.danawa.com/info/?pcode=42",
		texts:      make(map[string]string),
		attrs:      make(map[string]map[string]string),
		textErrs:   make(map[string]error),
		reviewTab:  true,
		moreClicks: -1,
		perClick:   30,
	}
	p.addItems(initial)
	return p
}

func (p *fakePage) addItems(n int) {
	for i := 0; i < n; i++ {
		id := 1000 + len(p.items)
		p.items = append(p.items, fmt.Sprintf("%s%d", p.sel.ItemPrefix, id))
	}
}

func (p *fakePage) moreAvailable() bool {
	return p.moreClicks < 0 || p.clicks < p.moreClicks
}

func (p *fakePage) Goto(url string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotoCalls++
	if p.gotoErr != nil {
		return p.gotoErr
	}
	return nil
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Count(selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.countCalls++
	switch selector {
	case ItemSelector(p.sel):
		return len(p.items), nil
	case p.sel.LoadMore:
		if p.moreAvailable() {
			return 1, nil
		}
		return 0, nil
	case p.sel.ReviewTab:
		if p.reviewTab {
			return 1, nil
		}
		return 0, nil
	}
	if _, ok := p.texts[selector]; ok {
		return 1, nil
	}
	return 0, nil
}

func (p *fakePage) IsVisible(selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector == p.sel.LoadMore {
		return !p.moreHidden, nil
	}
	return true, nil
}

func (p *fakePage) Click(selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector != p.sel.LoadMore {
		return nil
	}
	if p.clickErr != nil {
		return p.clickErr
	}
	if !p.moreAvailable() {
		return errors.New("element detached")
	}
	p.clicks++
	p.addItems(p.perClick)
	return nil
}

func (p *fakePage) Text(selector string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.textErrs[selector]; ok {
		return "", true, err
	}
	t, ok := p.texts[selector]
	return t, ok, nil
}

func (p *fakePage) Attribute(selector, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.attrs[selector]
	if !ok {
		return "", false, nil
	}
	return a[name], true, nil
}

func (p *fakePage) IDs(selector string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector != ItemSelector(p.sel) {
		return nil, nil
	}
	return append([]string(nil), p.items...), nil
}

func (p *fakePage) ScrollToBottom() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrollCalls++
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// setReview 给编号为 suffix 的评论设置正文和评分文本。
func (p *fakePage) setReview(suffix, text, rating string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts["#"+p.sel.ContentPrefix+suffix] = text
	if rating != "" {
		p.texts["#"+p.sel.ItemPrefix+suffix+p.sel.RatingSuffix] = rating
	}
}

type fakeLauncher struct {
	page *fakePage
	err  error
	n    int
}

func (l *fakeLauncher) NewPage() (Page, error) {
	l.n++
	if l.err != nil {
		return nil, l.err
	}
	return l.page, nil
}
