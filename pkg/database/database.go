package database

import (
	"fmt"
	"review-talk-go/internal/config"
	"review-talk-go/internal/model"
	"review-talk-go/pkg/log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB 根据配置初始化 MySQL 或 SQLite 连接，并迁移本服务拥有的表。
func InitDB(cfg config.DatabaseConfig) {
	var err error
	DB, err = Open(cfg)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	if err := Migrate(DB); err != nil {
		log.Fatal("failed to migrate database", err)
	}
	log.Infof("%s database connected successfully", cfg.Driver)
}

// Open 打开数据库连接并配置连接池。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "mysql":
		dialector = mysql.Open(cfg.MySQL.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// SQLite 只允许单个写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}

// Migrate 创建或更新聊天室、对话和商品表。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.ChatRoom{}, &model.ConversationMessage{}, &model.Product{})
}
