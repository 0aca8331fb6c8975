package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"review-talk-go/internal/config"
	"review-talk-go/internal/model"
	"strings"
)

// ErrUnsupportedURL 表示链接不是受支持的商品页面。
var ErrUnsupportedURL = errors.New("unsupported product url")

var trailingDigits = regexp.MustCompile(`(\d+)/?$`)

const imageHost = "https://img.danawa.com"

// ParseProductURL 校验链接并提取商品编号。
// 短链接等无法直接得到编号时返回空字符串，由打开页面后的最终地址再解析。
func ParseProductURL(raw string, hosts []string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupportedURL, u.Scheme)
	}
	if !hostAllowed(u.Hostname(), hosts) {
		return "", fmt.Errorf("%w: host %q", ErrUnsupportedURL, u.Hostname())
	}
	return productIDFromURL(u), nil
}

func hostAllowed(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, h := range hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func productIDFromURL(u *url.URL) string {
	q := u.Query()
	for _, key := range []string{"code", "pcode"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v
		}
	}
	if m := trailingDigits.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	return ""
}

// ExtractProductSummary 依次尝试各组选择器，尽力抽取商品信息。
func ExtractProductSummary(page Page, productID string, sel config.SelectorsConfig) model.ProductSummary {
	summary := model.ProductSummary{ProductID: productID}
	summary.Name = firstText(page, sel.ProductName, nil)
	summary.Price = firstText(page, sel.ProductPrice, func(s string) bool { return strings.Contains(s, "원") })
	summary.Brand = firstText(page, sel.ProductBrand, nil)
	for _, s := range sel.ProductImage {
		if src := firstAttr(page, s, "src", "data-src"); src != "" {
			summary.ImageURL = absoluteImageURL(src)
			break
		}
	}
	return summary
}

func firstText(page Page, selectors []string, accept func(string) bool) string {
	for _, s := range selectors {
		text, found, err := page.Text(s)
		if err != nil || !found {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" || (accept != nil && !accept(text)) {
			continue
		}
		return text
	}
	return ""
}

func firstAttr(page Page, selector string, names ...string) string {
	for _, name := range names {
		v, found, err := page.Attribute(selector, name)
		if err == nil && found && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func absoluteImageURL(src string) string {
	switch {
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	case strings.HasPrefix(src, "/"):
		return imageHost + src
	}
	return src
}
