package model

// ReviewDocument 定义了存储在向量索引中的评论文档结构。
type ReviewDocument struct {
	ID           string    `json:"id"` // review_{review_id}
	ProductID    string    `json:"product_id"`
	Text         string    `json:"text"`
	ReviewID     string    `json:"review_id"`
	Rating       int       `json:"rating"`
	Date         string    `json:"date"`
	Author       string    `json:"author"`
	Vector       []float32 `json:"vector,omitempty"`
	ModelVersion string    `json:"model_version,omitempty"`
}

// PassageMetadata 是检索结果附带的元数据，缺失字段在入库时已填充默认值。
type PassageMetadata struct {
	ProductID string `json:"product_id"`
	ReviewID  string `json:"review_id"`
	Rating    int    `json:"rating"`
	Date      string `json:"date"`
	Author    string `json:"author"`
}

// RetrievedPassage 是一次向量检索返回的单条结果，Distance 越小越相似。
type RetrievedPassage struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Metadata PassageMetadata `json:"metadata"`
	Distance float64         `json:"distance"`
}

// Metadata 从文档中提取检索元数据。
func (d ReviewDocument) Metadata() PassageMetadata {
	return PassageMetadata{
		ProductID: d.ProductID,
		ReviewID:  d.ReviewID,
		Rating:    d.Rating,
		Date:      d.Date,
		Author:    d.Author,
	}
}
