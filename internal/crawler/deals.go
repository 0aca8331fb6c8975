package crawler

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"review-talk-go/internal/config"
	"review-talk-go/internal/model"
	"review-talk-go/pkg/log"
	"strings"
)

// DealCategory 是特价页面商品统一使用的分类名。
const DealCategory = "특가상품"

var (
	wonAmount   = regexp.MustCompile(`[\d,]+원`)
	discountPct = regexp.MustCompile(`(\d+)%`)
)

// DealsCrawler 抓取达那瓦移动端 “오늘의 특가” 页面上的商品列表。
type DealsCrawler struct {
	launcher Launcher
	cfg      config.CrawlerConfig
	deals    config.DealsConfig
}

// NewDealsCrawler 创建特价商品爬虫，页面来自共享的 Launcher。
func NewDealsCrawler(launcher Launcher, cfg config.CrawlerConfig, deals config.DealsConfig) *DealsCrawler {
	return &DealsCrawler{launcher: launcher, cfg: cfg, deals: deals}
}

// Discover 打开特价页面，滚动加载后按页面顺序返回最多 max 个商品。
// 拿不到商品编号的条目会被跳过。
func (c *DealsCrawler) Discover(ctx context.Context, max int) ([]model.Product, error) {
	page, err := c.launcher.NewPage()
	if err != nil {
		return nil, &NavigationError{URL: c.deals.PageURL, Err: err}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			log.Warnf("[DealsCrawler] 关闭页面失败: %v", cerr)
		}
	}()

	log.Infof("[DealsCrawler] 步骤1: 打开特价页面 %s", c.deals.PageURL)
	if err := page.Goto(c.deals.PageURL, c.cfg.NavigationTimeout); err != nil {
		return nil, &NavigationError{URL: c.deals.PageURL, Err: err}
	}
	if err := sleep(ctx, c.cfg.InitialWait); err != nil {
		return nil, err
	}

	for i := 0; i < c.deals.ScrollTimes; i++ {
		if err := page.ScrollToBottom(); err != nil {
			log.Warnf("[DealsCrawler] 第 %d 次滚动失败: %v", i+1, err)
			break
		}
		if err := sleep(ctx, c.cfg.ScrollPause); err != nil {
			return nil, err
		}
	}

	ids, err := page.IDs(c.deals.ItemSelector)
	if err != nil {
		return nil, fmt.Errorf("list deal items: %w", err)
	}
	log.Infof("[DealsCrawler] 步骤2: 页面上共有 %d 个特价条目", len(ids))

	products := make([]model.Product, 0, len(ids))
	for i, id := range ids {
		if max > 0 && len(products) >= max {
			break
		}
		if err := ctx.Err(); err != nil {
			return products, err
		}
		p, ok := c.extractItem(page, id, i+1)
		if !ok {
			continue
		}
		products = append(products, p)
	}
	log.Infof("[DealsCrawler] 步骤3: 抽取到 %d 个特价商品", len(products))
	return products, nil
}

func (c *DealsCrawler) extractItem(page Page, id string, index int) (model.Product, bool) {
	root := "#" + id
	href := firstAttr(page, root+c.deals.LinkSuffix, "href")
	if href == "" {
		return model.Product{}, false
	}
	link := c.resolve(href)
	u, err := url.Parse(link)
	if err != nil {
		return model.Product{}, false
	}
	productID := productIDFromURL(u)
	if productID == "" {
		log.Debugf("[DealsCrawler] 条目 %s 的链接中没有商品编号: %s", id, link)
		return model.Product{}, false
	}

	p := model.Product{
		ProductID: productID,
		URL:       link,
		Category:  DealCategory,
	}
	if src := firstAttr(page, root+c.deals.ImageSuffix, "src", "data-src"); src != "" {
		p.ImageURL = absoluteImageURL(src)
	}
	p.Name = firstText(page, []string{root + c.deals.TitleSuffix}, nil)
	if p.Name == "" {
		p.Name = fmt.Sprintf("%s %d", DealCategory, index)
	}
	p.Price, p.OriginalPrice, p.DiscountRate = ParseDealPrice(firstText(page, []string{root + c.deals.PriceSuffix}, nil))
	return p, true
}

func (c *DealsCrawler) resolve(href string) string {
	base, err := url.Parse(c.deals.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// ParseDealPrice 从价格区域的文本中取出售价、原价和折扣率。
// 只有一个金额时它就是售价。
func ParseDealPrice(text string) (price, original, discount string) {
	amounts := wonAmount.FindAllString(text, -1)
	switch {
	case len(amounts) >= 2:
		price, original = amounts[0], amounts[1]
	case len(amounts) == 1:
		price = amounts[0]
	}
	if m := discountPct.FindStringSubmatch(text); m != nil {
		discount = m[1] + "%"
	}
	return price, original, discount
}
