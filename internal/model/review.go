// Package model 包含了应用的数据模型定义。
package model

// ReviewRecord 代表从商品页面抽取出的一条评论。
// Rating 为 nil 表示评分缺失，而不是 0 分。
type ReviewRecord struct {
	ReviewID string `json:"review_id"`
	Content  string `json:"content"`
	Rating   *int   `json:"rating,omitempty"`
	Author   string `json:"author,omitempty"`
	Date     string `json:"date,omitempty"`
}

// ProductSummary 是从商品页面尽力抽取的描述信息，任何字段都可能为空。
type ProductSummary struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Price     string `json:"price,omitempty"`
	Brand     string `json:"brand,omitempty"`
}

// ProductScope 是检索分区使用的商品标识，空值表示全局范围。
type ProductScope string

// GlobalScope 表示不按商品过滤。
const GlobalScope ProductScope = ""

// IsGlobal 判断是否为全局范围。
func (s ProductScope) IsGlobal() bool {
	return s == GlobalScope
}
