package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hosts = []string{"danawa.com", "danawa.page.link"}

func TestParseProductURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://prod.danawa.com/info/?pcode=13412345", "13412345"},
		{"https://m.danawa.com/product/product.html?code=987&cate=1", "987"},
		{"http://danawa.com/product/555/", "555"},
		{"https://danawa.page.link/AbCd", ""},
	}
	for _, c := range cases {
		got, err := ParseProductURL(c.url, hosts)
		require.NoError(t, err, c.url)
		assert.Equal(t, c.want, got, c.url)
	}
}

func TestParseProductURLRejects(t *testing.T) {
	for _, u := range []string{
		"ftp://prod.danawa.com/info/?pcode=1",
		"https://example.com/?pcode=1",
		"https://notdanawa.com/?pcode=1",
		"javascript:alert(1)",
	} {
		_, err := ParseProductURL(u, hosts)
		assert.ErrorIs(t, err, ErrUnsupportedURL, u)
	}
}

func TestAbsoluteImageURL(t *testing.T) {
	assert.Equal(t, "https://img.danawa.com/a.jpg", absoluteImageURL("//img.danawa.com/a.jpg"))
	assert.Equal(t, "https://img.danawa.com/prod/a.jpg", absoluteImageURL("/prod/a.jpg"))
	assert.Equal(t, "https://cdn/a.jpg", absoluteImageURL("https://cdn/a.jpg"))
}

func TestExtractProductSummaryFallbacks(t *testing.T) {
	cfg := testConfig()
	page := newFakePage(cfg.Selectors, 0)
	page.texts[".prod_tit"] = "  두 번째 선택자 이름  "
	page.texts[".lowest_price .prc"] = "가격 문의"
	page.texts[".price_sect .prc"] = "35,000원"
	page.attrs[".prod_img img"] = map[string]string{"data-src": "/img/p.png"}

	s := ExtractProductSummary(page, "7", cfg.Selectors)
	assert.Equal(t, "7", s.ProductID)
	assert.Equal(t, "두 번째 선택자 이름", s.Name)
	assert.Equal(t, "35,000원", s.Price)
	assert.Equal(t, "https://img.danawa.com/img/p.png", s.ImageURL)
	assert.Empty(t, s.Brand)
}
