package crawler

import (
	"context"
	"errors"
	"fmt"
	"review-talk-go/internal/config"
	"review-talk-go/pkg/log"
	"sync"
	"time"
)

// State 是会话的生命周期状态。
type State int

const (
	StateCreated State = iota
	StateOpened
	StateRevealed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpened:
		return "opened"
	case StateRevealed:
		return "revealed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrInvalidState 表示在错误的生命周期状态下调用了会话方法。
	ErrInvalidState = errors.New("crawl session: invalid state")
	// ErrSessionClosed 表示会话已经关闭。
	ErrSessionClosed = errors.New("crawl session: closed")
)

// NavigationError 表示页面打开失败（超时或网络错误），对本次会话是致命的。
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// StopReason 说明 “加载更多” 循环为何结束。
type StopReason string

const (
	StopTargetReached  StopReason = "target_reached"
	StopControlMissing StopReason = "control_missing"
	StopControlHidden  StopReason = "control_hidden"
	StopControlError   StopReason = "control_error"
	StopIterationCap   StopReason = "iteration_cap"
)

// RevealResult 记录一次展开的结果，少于目标数量也算成功。
type RevealResult struct {
	Iterations    int        `json:"iterations"`
	MaxIterations int        `json:"max_iterations"`
	Loaded        int        `json:"loaded"`
	Stop          StopReason `json:"stop"`
}

// Session 独占一个浏览器上下文，状态流转为 Created → Opened → Revealed → Closed。
type Session struct {
	launcher Launcher
	cfg      config.CrawlerConfig

	mu    sync.Mutex
	state State
	page  Page
}

// NewSession 创建一个处于 Created 状态的会话。
func NewSession(launcher Launcher, cfg config.CrawlerConfig) *Session {
	return &Session{launcher: launcher, cfg: cfg, state: StateCreated}
}

// State 返回当前状态。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Page 返回会话持有的页面，仅在 Opened/Revealed 状态下有效。
func (s *Session) Page() Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Session) expect(states ...State) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}
	for _, st := range states {
		if s.state == st {
			return s.page, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidState, s.state)
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	s.state = to
	return nil
}

// Open 获取浏览器上下文，打开目标页面并等待初次渲染。
// 失败时返回 *NavigationError，会话直接进入 Closed。
func (s *Session) Open(ctx context.Context, url string) error {
	if _, err := s.expect(StateCreated); err != nil {
		return err
	}

	page, err := s.launcher.NewPage()
	if err != nil {
		s.Close()
		return &NavigationError{URL: url, Err: err}
	}
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		_ = page.Close()
		return ErrSessionClosed
	}
	s.page = page
	s.mu.Unlock()

	log.Infof("[CrawlSession] 打开页面: %s", url)
	if err := page.Goto(url, s.cfg.NavigationTimeout); err != nil {
		s.Close()
		return &NavigationError{URL: url, Err: err}
	}
	if err := sleep(ctx, s.cfg.InitialWait); err != nil {
		s.Close()
		return &NavigationError{URL: url, Err: err}
	}
	return s.transition(StateOpened)
}

// ShowReviews 滚动页面触发懒加载，然后点击评论标签；返回是否找到评论入口。
func (s *Session) ShowReviews(ctx context.Context) (bool, error) {
	page, err := s.expect(StateOpened)
	if err != nil {
		return false, err
	}
	for i := 0; i < s.cfg.ScrollTimes; i++ {
		if err := page.ScrollToBottom(); err != nil {
			log.Warnf("[CrawlSession] 滚动页面失败: %v", err)
			break
		}
		if err := sleep(ctx, s.cfg.ScrollPause); err != nil {
			return false, err
		}
	}

	sel := s.cfg.Selectors.ReviewTab
	n, err := page.Count(sel)
	if err != nil || n == 0 {
		log.Warnf("[CrawlSession] 未找到评论入口, selector: %s, err: %v", sel, err)
		return false, nil
	}
	if err := page.Click(sel); err != nil {
		log.Warnf("[CrawlSession] 点击评论入口失败: %v", err)
		return false, nil
	}
	if err := sleep(ctx, s.cfg.Reveal.SettleDelay); err != nil {
		return false, err
	}
	return true, nil
}

// MaxIterations 根据目标数量估算 “加载更多” 的最大次数：
// min(ceil((target-baseline)/increment)+slack, hardCap)，至少为 1。
func MaxIterations(target int, rc config.RevealConfig) int {
	est := 0
	if remaining := target - rc.Baseline; remaining > 0 && rc.Increment > 0 {
		est = (remaining + rc.Increment - 1) / rc.Increment
	}
	n := est + rc.Slack
	if rc.HardCap > 0 && n > rc.HardCap {
		n = rc.HardCap
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ItemSelector 返回匹配所有评论容器的选择器。
func ItemSelector(sel config.SelectorsConfig) string {
	return fmt.Sprintf(`[id^="%s"]`, sel.ItemPrefix)
}

// Reveal 反复点击 “加载更多”，直到数量达到目标、按钮消失或不可用、或达到次数上限。
// 单次迭代的失败视为按钮不可用，只结束循环；只有 ctx 取消才返回错误。
func (s *Session) Reveal(ctx context.Context, target int) (RevealResult, error) {
	page, err := s.expect(StateOpened)
	if err != nil {
		return RevealResult{}, err
	}

	itemSel := ItemSelector(s.cfg.Selectors)
	moreSel := s.cfg.Selectors.LoadMore
	res := RevealResult{MaxIterations: MaxIterations(target, s.cfg.Reveal)}
	res.Loaded, _ = page.Count(itemSel)
	log.Infof("[CrawlSession] 开始展开评论, target: %d, loaded: %d, max_iterations: %d", target, res.Loaded, res.MaxIterations)

	for {
		if res.Loaded >= target {
			res.Stop = StopTargetReached
			break
		}
		if res.Iterations >= res.MaxIterations {
			res.Stop = StopIterationCap
			break
		}
		if stop := s.loadMore(page, moreSel); stop != "" {
			res.Stop = stop
			break
		}
		res.Iterations++
		if err := sleep(ctx, s.cfg.Reveal.SettleDelay); err != nil {
			return res, err
		}
		n, err := page.Count(itemSel)
		if err != nil {
			log.Warnf("[CrawlSession] 重新统计评论数量失败: %v", err)
			res.Stop = StopControlError
			break
		}
		res.Loaded = n
		log.Debugf("[CrawlSession] 第 %d 次加载更多, 当前评论数: %d", res.Iterations, n)
	}

	log.Infof("[CrawlSession] 展开结束, iterations: %d, loaded: %d, stop: %s", res.Iterations, res.Loaded, res.Stop)
	if err := s.transition(StateRevealed); err != nil {
		return res, err
	}
	return res, nil
}

// loadMore 定位、检查并点击按钮，返回非空的 StopReason 表示应结束循环。
func (s *Session) loadMore(page Page, sel string) StopReason {
	n, err := page.Count(sel)
	if err != nil {
		log.Warnf("[CrawlSession] 定位加载更多按钮失败: %v", err)
		return StopControlError
	}
	if n == 0 {
		return StopControlMissing
	}
	visible, err := page.IsVisible(sel)
	if err != nil {
		log.Warnf("[CrawlSession] 检查加载更多按钮可见性失败: %v", err)
		return StopControlError
	}
	if !visible {
		return StopControlHidden
	}
	if err := page.Click(sel); err != nil {
		log.Warnf("[CrawlSession] 点击加载更多按钮失败: %v", err)
		return StopControlError
	}
	return ""
}

// Close 释放浏览器上下文，可重复调用。
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	page := s.page
	s.page = nil
	s.mu.Unlock()

	if page != nil {
		if err := page.Close(); err != nil {
			log.Warnf("[CrawlSession] 关闭浏览器上下文失败: %v", err)
		}
	}
}

// sleep 等待 d，ctx 取消时提前返回。
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
