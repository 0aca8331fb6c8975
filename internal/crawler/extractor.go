package crawler

import (
	"fmt"
	"regexp"
	"review-talk-go/internal/config"
	"review-talk-go/internal/model"
	"review-talk-go/pkg/log"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SkipReason 说明某条评论为何没有被采纳。
type SkipReason string

const (
	SkipNoSuffix     SkipReason = "no_suffix"
	SkipDuplicate    SkipReason = "duplicate_id"
	SkipTextMissing  SkipReason = "text_missing"
	SkipTextTooShort SkipReason = "text_too_short"
	SkipLookupFailed SkipReason = "lookup_failed"
)

// ItemOutcome 是单条评论的抽取结果：要么 Record 非空，要么给出 Skip 原因。
type ItemOutcome struct {
	ContainerID string
	Suffix      string
	Record      *model.ReviewRecord
	Skip        SkipReason
	Err         error
}

// Extraction 汇总一次抽取，Records 保持 DOM 顺序。
type Extraction struct {
	Records  []model.ReviewRecord
	Outcomes []ItemOutcome
}

// Skipped 按原因统计被跳过的条目。
func (e *Extraction) Skipped() map[SkipReason]int {
	counts := make(map[SkipReason]int)
	for _, o := range e.Outcomes {
		if o.Record == nil {
			counts[o.Skip]++
		}
	}
	return counts
}

// Truncate 返回前 max 条记录，max <= 0 表示不截断。
func (e *Extraction) Truncate(max int) []model.ReviewRecord {
	if max <= 0 || len(e.Records) <= max {
		return e.Records
	}
	return e.Records[:max]
}

var (
	suffixPattern = regexp.MustCompile(`(\d+)$`)
	ratingPattern = regexp.MustCompile(`\d+`)
)

// Extractor 通过共享的数字后缀关联容器、正文和评分三个片段。
type Extractor struct {
	sel    config.SelectorsConfig
	minLen int
}

// NewExtractor 创建一个新的 Extractor 实例。
func NewExtractor(cfg config.CrawlerConfig) *Extractor {
	minLen := cfg.MinTextLength
	if minLen <= 0 {
		minLen = 11
	}
	return &Extractor{sel: cfg.Selectors, minLen: minLen}
}

// Extract 枚举评论容器并逐条抽取，单条失败不会中断整批。
func (x *Extractor) Extract(page Page) (*Extraction, error) {
	ids, err := page.IDs(ItemSelector(x.sel))
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate review containers: %w", err)
	}

	out := &Extraction{Records: make([]model.ReviewRecord, 0, len(ids))}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		o := x.extractItem(page, id, seen)
		if o.Record != nil {
			out.Records = append(out.Records, *o.Record)
		} else if o.Err != nil {
			log.Warnf("[ReviewExtractor] 抽取评论失败, container: %s, reason: %s, err: %v", id, o.Skip, o.Err)
		}
		out.Outcomes = append(out.Outcomes, o)
	}
	log.Infof("[ReviewExtractor] 抽取完成, containers: %d, records: %d, skipped: %v", len(ids), len(out.Records), out.Skipped())
	return out, nil
}

func (x *Extractor) extractItem(page Page, containerID string, seen map[string]struct{}) ItemOutcome {
	o := ItemOutcome{ContainerID: containerID}
	m := suffixPattern.FindStringSubmatch(strings.TrimPrefix(containerID, x.sel.ItemPrefix))
	if m == nil {
		o.Skip = SkipNoSuffix
		return o
	}
	o.Suffix = m[1]
	if _, dup := seen[o.Suffix]; dup {
		o.Skip = SkipDuplicate
		return o
	}
	seen[o.Suffix] = struct{}{}

	text, found, err := page.Text("#" + x.sel.ContentPrefix + o.Suffix)
	if err != nil {
		o.Skip, o.Err = SkipLookupFailed, err
		return o
	}
	text = strings.TrimSpace(text)
	if !found || text == "" {
		o.Skip = SkipTextMissing
		return o
	}
	if utf8.RuneCountInString(text) < x.minLen {
		o.Skip = SkipTextTooShort
		return o
	}

	record := &model.ReviewRecord{ReviewID: o.Suffix, Content: text}
	ratingText, found, err := page.Text("#" + x.sel.ItemPrefix + o.Suffix + x.sel.RatingSuffix)
	if err != nil {
		log.Debugf("[ReviewExtractor] 评分读取失败, id: %s, err: %v", o.Suffix, err)
	} else if found {
		record.Rating = ParseRating(ratingText)
	}
	o.Record = record
	return o
}

// ParseRating 取文本中的第一个数字作为评分，不在 1 到 5 之间时返回 nil。
func ParseRating(text string) *int {
	tok := ratingPattern.FindString(text)
	if tok == "" {
		return nil
	}
	v, err := strconv.Atoi(tok)
	if err != nil || v < 1 || v > 5 {
		return nil
	}
	return &v
}
