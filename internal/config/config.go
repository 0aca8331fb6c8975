// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Vector        VectorConfig        `mapstructure:"vector"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Crawler       CrawlerConfig       `mapstructure:"crawler"`
	Chat          ChatConfig          `mapstructure:"chat"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Deals         DealsConfig         `mapstructure:"deals"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Driver string       `mapstructure:"driver"` // mysql 或 sqlite
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Redis  RedisConfig  `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SQLiteConfig 存储本地 SQLite 数据库文件的配置。
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
	Dims      int    `mapstructure:"dims"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey        string `mapstructure:"api_key"`
	BaseURL       string `mapstructure:"base_url"`
	Model         string `mapstructure:"model"`
	Dimensions    int    `mapstructure:"dimensions"`
	QueryPrefix   string `mapstructure:"query_prefix"`
	PassagePrefix string `mapstructure:"passage_prefix"`
	BatchSize     int    `mapstructure:"batch_size"`
	Workers       int    `mapstructure:"workers"`
}

// VectorConfig 选择向量索引的实现。
type VectorConfig struct {
	Backend string `mapstructure:"backend"` // elasticsearch 或 memory
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"` // openai / compatible / yandex
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Timeout    time.Duration       `mapstructure:"timeout"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Yandex     YandexConfig        `mapstructure:"yandex"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// YandexConfig 存储 YandexGPT 的访问凭据。
type YandexConfig struct {
	OAuthToken string `mapstructure:"oauth_token"`
	FolderID   string `mapstructure:"folder_id"`
}

// CrawlerConfig 存储浏览器爬取相关的配置。
type CrawlerConfig struct {
	Headless          bool            `mapstructure:"headless"`
	UserAgent         string          `mapstructure:"user_agent"`
	Locale            string          `mapstructure:"locale"`
	ViewportWidth     int             `mapstructure:"viewport_width"`
	ViewportHeight    int             `mapstructure:"viewport_height"`
	NavigationTimeout time.Duration   `mapstructure:"navigation_timeout"`
	InitialWait       time.Duration   `mapstructure:"initial_wait"`
	ScrollTimes       int             `mapstructure:"scroll_times"`
	ScrollPause       time.Duration   `mapstructure:"scroll_pause"`
	CrawlTimeout      time.Duration   `mapstructure:"crawl_timeout"`
	RatePerSecond     float64         `mapstructure:"rate_per_second"`
	MaxReviewsLimit   int             `mapstructure:"max_reviews_limit"`
	MinTextLength     int             `mapstructure:"min_text_length"`
	Reveal            RevealConfig    `mapstructure:"reveal"`
	Selectors         SelectorsConfig `mapstructure:"selectors"`
	ProductHosts      []string        `mapstructure:"product_hosts"`
}

// RevealConfig 存储 “加载更多” 循环的启发式常量。
type RevealConfig struct {
	Baseline    int           `mapstructure:"baseline"`
	Increment   int           `mapstructure:"increment"`
	Slack       int           `mapstructure:"slack"`
	HardCap     int           `mapstructure:"hard_cap"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// SelectorsConfig 存储页面元素选择器，站点改版时可以只改配置。
type SelectorsConfig struct {
	ReviewTab     string   `mapstructure:"review_tab"`
	LoadMore      string   `mapstructure:"load_more"`
	ItemPrefix    string   `mapstructure:"item_prefix"`
	ContentPrefix string   `mapstructure:"content_prefix"`
	RatingSuffix  string   `mapstructure:"rating_suffix"`
	ProductName   []string `mapstructure:"product_name"`
	ProductImage  []string `mapstructure:"product_image"`
	ProductPrice  []string `mapstructure:"product_price"`
	ProductBrand  []string `mapstructure:"product_brand"`
}

// ChatConfig 存储对话编排相关的配置。
type ChatConfig struct {
	CacheSize          int    `mapstructure:"cache_size"`
	SearchK            int    `mapstructure:"search_k"`
	AssistantSpeakerID string `mapstructure:"assistant_speaker_id"`
	PersistQueue       int    `mapstructure:"persist_queue"`
}

// SchedulerConfig 存储定时重新爬取的配置。
type SchedulerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RefreshCron string        `mapstructure:"refresh_cron"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
	BatchSize   int           `mapstructure:"batch_size"`
}

// DealsConfig 存储 “오늘의 특가” 特价商品发现的配置。
type DealsConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	PageURL           string        `mapstructure:"page_url"`
	BaseURL           string        `mapstructure:"base_url"`
	Cron              string        `mapstructure:"cron"`
	MaxProducts       int           `mapstructure:"max_products"`
	ReviewsPerProduct int           `mapstructure:"reviews_per_product"`
	UncrawledBatch    int           `mapstructure:"uncrawled_batch"`
	Retention         time.Duration `mapstructure:"retention"`
	ScrollTimes       int           `mapstructure:"scroll_times"`
	ProductPause      time.Duration `mapstructure:"product_pause"`
	ItemSelector      string        `mapstructure:"item_selector"`
	LinkSuffix        string        `mapstructure:"link_suffix"`
	ImageSuffix       string        `mapstructure:"image_suffix"`
	TitleSuffix       string        `mapstructure:"title_suffix"`
	PriceSuffix       string        `mapstructure:"price_suffix"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 工作目录下存在 .env 时先加载它，环境变量可以覆盖 YAML 中的同名键（如 LLM_API_KEY）。
func Init(configPath string) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := v.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

// Default 返回只包含默认值的配置，主要用于测试。
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		panic(fmt.Errorf("无法解析默认配置: %w", err))
	}
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.sqlite.path", "reviewtalk.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "crawl-tasks")
	v.SetDefault("kafka.group_id", "review-talk-go-consumer")
	v.SetDefault("elasticsearch.index_name", "product_reviews")
	v.SetDefault("elasticsearch.dims", 384)
	v.SetDefault("minio.bucket_name", "review-crawls")
	v.SetDefault("embedding.model", "intfloat/multilingual-e5-small")
	v.SetDefault("embedding.query_prefix", "query: ")
	v.SetDefault("embedding.passage_prefix", "passage: ")
	v.SetDefault("embedding.batch_size", 16)
	v.SetDefault("embedding.workers", 4)
	v.SetDefault("vector.backend", "elasticsearch")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.generation.temperature", 0.3)
	v.SetDefault("llm.generation.max_tokens", 1000)
	v.SetDefault("crawler.headless", true)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	v.SetDefault("crawler.locale", "ko-KR")
	v.SetDefault("crawler.viewport_width", 375)
	v.SetDefault("crawler.viewport_height", 667)
	v.SetDefault("crawler.navigation_timeout", 60*time.Second)
	v.SetDefault("crawler.initial_wait", 3*time.Second)
	v.SetDefault("crawler.scroll_times", 3)
	v.SetDefault("crawler.scroll_pause", 2*time.Second)
	v.SetDefault("crawler.crawl_timeout", 600*time.Second)
	v.SetDefault("crawler.rate_per_second", 0.5)
	v.SetDefault("crawler.max_reviews_limit", 1000)
	v.SetDefault("crawler.min_text_length", 11)
	v.SetDefault("crawler.product_hosts", []string{"danawa.com", "danawa.page.link"})
	v.SetDefault("crawler.reveal.baseline", 30)
	v.SetDefault("crawler.reveal.increment", 30)
	v.SetDefault("crawler.reveal.slack", 2)
	v.SetDefault("crawler.reveal.hard_cap", 20)
	v.SetDefault("crawler.reveal.settle_delay", 3*time.Second)
	v.SetDefault("crawler.selectors.review_tab", "#productBlog-starsButton > div.text__review > span.text__number")
	v.SetDefault("crawler.selectors.load_more", "#productBlog-opinion-mall-button-viewMore > span")
	v.SetDefault("crawler.selectors.item_prefix", "productBlog-opinion-mall-list-listItem-")
	v.SetDefault("crawler.selectors.content_prefix", "productBlog-opinion-mall-list-content-")
	v.SetDefault("crawler.selectors.rating_suffix", " > div > div > div:nth-child(1) > div > span > span")
	v.SetDefault("crawler.selectors.product_name", []string{"#productBlog-productName", ".prod_tit", ".product_title", "h1", ".goods_name"})
	v.SetDefault("crawler.selectors.product_image", []string{"#productBlog-image-item-0 > span > img", ".prod_img img", ".product_image img", ".thumb_image img"})
	v.SetDefault("crawler.selectors.product_price", []string{".lowest_price .prc", ".price_sect .prc", ".sell_price", ".prc_c"})
	v.SetDefault("crawler.selectors.product_brand", []string{".prod_brand", ".brand_name", ".maker"})
	v.SetDefault("chat.cache_size", 30)
	v.SetDefault("chat.search_k", 5)
	v.SetDefault("chat.assistant_speaker_id", "reviewtalk_ai")
	v.SetDefault("chat.persist_queue", 256)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.refresh_cron", "0 3 * * *")
	v.SetDefault("scheduler.stale_after", 7*24*time.Hour)
	v.SetDefault("scheduler.batch_size", 50)
	v.SetDefault("deals.enabled", false)
	v.SetDefault("deals.page_url", "https://m.danawa.com/leftPanel/cmPick.html")
	v.SetDefault("deals.base_url", "https://m.danawa.com")
	v.SetDefault("deals.cron", "0 9 * * *")
	v.SetDefault("deals.max_products", 50)
	v.SetDefault("deals.reviews_per_product", 100)
	v.SetDefault("deals.uncrawled_batch", 10)
	v.SetDefault("deals.retention", 7*24*time.Hour)
	v.SetDefault("deals.scroll_times", 5)
	v.SetDefault("deals.product_pause", 2*time.Second)
	v.SetDefault("deals.item_selector", `#cmPick-category-container [id^="cmPick-category-item-"]`)
	v.SetDefault("deals.link_suffix", " > div > a")
	v.SetDefault("deals.image_suffix", " > div > a div.box__thumbnail > img")
	v.SetDefault("deals.title_suffix", " > div > a div.box__info > div.box__title")
	v.SetDefault("deals.price_suffix", " > div > a div.box__info > div.box__price")
}
