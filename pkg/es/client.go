// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"review-talk-go/internal/config"
	"review-talk-go/internal/model"
	"review-talk-go/pkg/log"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// ErrIndexNotFound 表示目标索引尚不存在。
var ErrIndexNotFound = errors.New("index not found")

// InitES 初始化 Elasticsearch 客户端并确保评论索引存在
func InitES(esCfg config.ElasticsearchConfig) error {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return err
	}
	ESClient = client
	return CreateIndexIfNotExists(client, esCfg.IndexName, esCfg.Dims)
}

// reviewMapping 使用 cosine 相似度的 dense_vector，product_id 为 keyword 以便做精确过滤。
const reviewMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"product_id": { "type": "keyword" },
			"review_id": { "type": "keyword" },
			"text": { "type": "text" },
			"rating": { "type": "integer" },
			"date": { "type": "keyword" },
			"author": { "type": "keyword" },
			"model_version": { "type": "keyword" },
			"vector": {
				"type": "dense_vector",
				"dims": %d,
				"index": true,
				"similarity": "cosine"
			}
		}
	}
}`

// CreateIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func CreateIndexIfNotExists(client *elasticsearch.Client, indexName string, dims int) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(fmt.Sprintf(reviewMapping, dims))),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功, dims=%d", indexName, dims)
	return nil
}

// IndexDocument 以文档 ID 写入评论文档，ID 相同则覆盖。
func IndexDocument(ctx context.Context, client *elasticsearch.Client, indexName string, doc model.ReviewDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("failed to index document %s: %s", doc.ID, res.Status())
	}
	return nil
}

// Count 返回索引中的文档数量，索引不存在时返回 0。
func Count(ctx context.Context, client *elasticsearch.Client, indexName string) (int64, error) {
	res, err := client.Count(
		client.Count.WithContext(ctx),
		client.Count.WithIndex(indexName),
	)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("elasticsearch count failed: %s, body: %s", res.Status(), string(body))
	}

	var out struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return out.Count, nil
}

// SearchHit 是一条搜索命中。
type SearchHit struct {
	Source model.ReviewDocument `json:"_source"`
	Score  float64              `json:"_score"`
}

// Search 执行查询并返回命中结果，索引不存在时返回 ErrIndexNotFound。
func Search(ctx context.Context, client *elasticsearch.Client, indexName string, query map[string]interface{}) ([]SearchHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(indexName),
		client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, ErrIndexNotFound
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s, body: %s", res.Status(), string(body))
	}

	var esResponse struct {
		Hits struct {
			Hits []SearchHit `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	return esResponse.Hits.Hits, nil
}
