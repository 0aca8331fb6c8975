// Package crawler 负责用无头浏览器打开商品页面、展开评论并抽取评论记录。
package crawler

import "time"

// Page 是爬取所需的最小页面能力，生产环境由 playwright 实现。
type Page interface {
	Goto(url string, timeout time.Duration) error
	URL() string
	Count(selector string) (int, error)
	IsVisible(selector string) (bool, error)
	Click(selector string) error
	// Text 返回第一个匹配元素的文本，found 为 false 表示没有匹配元素。
	Text(selector string) (text string, found bool, err error)
	Attribute(selector, name string) (value string, found bool, err error)
	// IDs 按 DOM 顺序返回所有匹配元素的 id 属性。
	IDs(selector string) ([]string, error)
	ScrollToBottom() error
	Close() error
}

// Launcher 为每个会话创建一个隔离的页面（独立的浏览器上下文）。
type Launcher interface {
	NewPage() (Page, error)
}
