package model

import "time"

// Product 对应于数据库中的 products 表，记录商品信息与爬取状态。
type Product struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ProductID     string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"product_id"`
	Name          string     `gorm:"type:varchar(255)" json:"name"`
	URL           string     `gorm:"type:varchar(1024)" json:"url"`
	ImageURL      string     `gorm:"type:varchar(1024)" json:"image_url"`
	Price         string     `gorm:"type:varchar(64)" json:"price"`
	Brand         string     `gorm:"type:varchar(128)" json:"brand"`
	OriginalPrice string     `gorm:"type:varchar(64)" json:"original_price,omitempty"`
	DiscountRate  string     `gorm:"type:varchar(16)" json:"discount_rate,omitempty"`
	Category      string     `gorm:"type:varchar(64)" json:"category,omitempty"`
	ReviewCount   int        `gorm:"not null;default:0" json:"review_count"`
	IsCrawled     bool       `gorm:"not null;default:false;index" json:"is_crawled"`
	LastCrawledAt *time.Time `json:"last_crawled_at"`
	// IsSpecial 标记来自特价页面的商品，DealSeenAt 是最近一次在特价页面上出现的时间。
	IsSpecial     bool       `gorm:"not null;default:false;index" json:"is_special"`
	DealSeenAt    *time.Time `gorm:"index" json:"deal_seen_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// Summary 返回商品的描述信息。
func (p Product) Summary() ProductSummary {
	return ProductSummary{
		ProductID: p.ProductID,
		Name:      p.Name,
		ImageURL:  p.ImageURL,
		Price:     p.Price,
		Brand:     p.Brand,
	}
}
