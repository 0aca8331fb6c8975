// Package main 是应用程序的入口点。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"review-talk-go/internal/cache"
	"review-talk-go/internal/config"
	"review-talk-go/internal/crawler"
	"review-talk-go/internal/handler"
	"review-talk-go/internal/index"
	"review-talk-go/internal/middleware"
	"review-talk-go/internal/pipeline"
	"review-talk-go/internal/repository"
	"review-talk-go/internal/scheduler"
	"review-talk-go/internal/service"
	"review-talk-go/pkg/database"
	"review-talk-go/pkg/embedding"
	"review-talk-go/pkg/es"
	"review-talk-go/pkg/kafka"
	"review-talk-go/pkg/llm"
	"review-talk-go/pkg/log"
	"review-talk-go/pkg/storage"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、MinIO 和 Kafka（后三者未配置时跳过）
	database.InitDB(cfg.Database)
	if cfg.Database.Redis.Addr != "" {
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	}
	var archiver service.Archiver
	if cfg.MinIO.Endpoint != "" {
		storage.InitMinIO(cfg.MinIO)
		archiver = storage.NewReviewArchive(storage.MinioClient, cfg.MinIO.BucketName)
	}
	var produce service.TaskProducer
	if cfg.Kafka.Brokers != "" {
		kafka.InitProducer(cfg.Kafka)
		produce = kafka.ProduceCrawlTask
	}

	// 4. 初始化向量索引
	encoder := embedding.NewEncoder(embedding.NewClient(cfg.Embedding), cfg.Embedding)
	var store index.Store
	switch cfg.Vector.Backend {
	case "memory":
		store = index.NewMemoryStore(cfg.Elasticsearch.IndexName)
		log.Warnf("使用内存向量索引，重启后数据会丢失")
	default:
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Errorf("es 初始化失败 %s", err)
			return
		}
		store = index.NewElasticsearchStore(es.ESClient, cfg.Elasticsearch.IndexName)
	}
	vectorIndex := index.New(encoder, store, cfg.Embedding)

	// 5. 初始化 Repository
	roomRepo := repository.NewChatRoomRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	productRepo := repository.NewProductRepository(database.DB)
	var lockRepo repository.CrawlLockRepository
	if database.RDB != nil {
		lockRepo = repository.NewCrawlLockRepository(database.RDB)
	}

	// 6. 初始化 Service (依赖注入)
	backend, err := llm.NewBackend(cfg.LLM)
	if err != nil {
		log.Fatal("初始化 LLM 失败", err)
	}
	log.Infof("LLM provider: %s, model: %s", backend.Name(), cfg.LLM.Model)
	generator := service.NewResponseGenerator(backend, cfg.LLM.Timeout)
	conversationCache := cache.NewConversationCache(cfg.Chat.CacheSize)
	writer := service.NewConversationWriter(conversationRepo, cfg.Chat.PersistQueue)
	chatService := service.NewChatService(vectorIndex, generator, conversationCache, writer, roomRepo, conversationRepo, productRepo, cfg.Chat)

	browser := crawler.NewBrowser(cfg.Crawler)
	crawlService := service.NewCrawlService(crawler.New(browser, cfg.Crawler), vectorIndex, productRepo, lockRepo, archiver, produce, cfg.Crawler)
	dealsService := service.NewDealsService(crawler.NewDealsCrawler(browser, cfg.Crawler, cfg.Deals), crawlService, productRepo, cfg.Deals)

	// 7. 启动后台 Kafka 消费者和定时刷新
	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()
	consumerDone := make(chan struct{})
	if cfg.Kafka.Brokers != "" {
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(bgCtx, cfg.Kafka, pipeline.NewProcessor(crawlService))
		}()
	} else {
		close(consumerDone)
	}

	var refresher *scheduler.Scheduler
	if cfg.Scheduler.Enabled || cfg.Deals.Enabled {
		refresher = scheduler.New(productRepo, crawlService, dealsService, cfg.Scheduler, cfg.Deals)
		if err := refresher.Start(); err != nil {
			log.Fatal("启动定时任务失败", err)
		}
	}

	// 7.1 导入 seed 目录中的归档文件，已爬取过的商品跳过
	go importSeedArchives(bgCtx, "seed", service.NewArchiveImporter(vectorIndex, productRepo), productRepo)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.UserIdentity(), middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	chatHandler := handler.NewChatHandler(chatService)
	crawlHandler := handler.NewCrawlHandler(crawlService)
	conversationHandler := handler.NewConversationHandler(chatService)
	dealsHandler := handler.NewDealsHandler(dealsService)
	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/crawl-reviews", crawlHandler.CrawlReviews)
		apiV1.POST("/crawl-reviews/async", crawlHandler.CrawlReviewsAsync)
		apiV1.GET("/stats", crawlHandler.Stats)

		chatGroup := apiV1.Group("/chat")
		{
			chatGroup.POST("", chatHandler.Chat)
			chatGroup.GET("/ws", chatHandler.Handle)
			chatGroup.GET("/history", conversationHandler.GetHistory)
		}
		apiV1.GET("/chat-rooms", conversationHandler.ListRooms)

		apiV1.GET("/products/:productId/overview", chatHandler.Overview)

		dealsGroup := apiV1.Group("/special-deals")
		{
			dealsGroup.POST("/crawl", dealsHandler.Crawl)
			dealsGroup.GET("", dealsHandler.List)
			dealsGroup.GET("/stats/summary", dealsHandler.Stats)
			dealsGroup.GET("/:productId", dealsHandler.Get)
			dealsGroup.POST("/process-uncrawled", dealsHandler.ProcessUncrawled)
			dealsGroup.DELETE("/cleanup", dealsHandler.Cleanup)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止后台任务，再把未落库的对话写完
	if refresher != nil {
		refresher.Stop()
	}
	cancelBg()
	<-consumerDone
	if err := kafka.CloseProducer(); err != nil {
		log.Warnf("关闭 Kafka 生产者失败: %v", err)
	}
	if err := writer.Flush(ctx); err != nil {
		log.Warnf("等待对话落库超时: %v", err)
	}
	writer.Close()
	if err := browser.Close(); err != nil {
		log.Warnf("关闭浏览器失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// importSeedArchives 扫描目录下的 JSON 归档并导入索引（幂等）。
func importSeedArchives(ctx context.Context, dir string, importer *service.ArchiveImporter, productRepo repository.ProductRepository) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("importSeedArchives: 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return
	}

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("importSeedArchives: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		var payload service.ArchivePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Warnf("importSeedArchives: 解析文件失败: %s, err=%v", path, err)
			return nil
		}

		// 幂等检查：已爬取过的商品跳过
		if existing, ferr := productRepo.FindByProductID(ctx, payload.Product.ProductID); ferr == nil && existing != nil && existing.IsCrawled {
			log.Infof("importSeedArchives: 已存在，跳过: %s (product=%s)", info.Name(), payload.Product.ProductID)
			return nil
		}

		stored, err := importer.Import(ctx, payload)
		if err != nil {
			log.Warnf("importSeedArchives: 导入失败: %s, err=%v", path, err)
			return nil
		}
		log.Infof("importSeedArchives: 导入完成: %s, 评论 %d 条", info.Name(), stored)
		return nil
	})
	if walkErr != nil {
		log.Warnf("importSeedArchives: 遍历目录发生错误: %v", walkErr)
	}
}
