package database

import (
	"fmt"
	"log"
	"time"

	"livechat-backend/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenPostgres connects with gorm and migrates the chat schema. The messages table keeps
// a cascading foreign key to sessions so deleting a session removes its log.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(&model.ChatSessionItem{}, &model.ChatMessageItem{}, &model.AdminItem{}); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	log.Println("[database] postgres schema migrated")
	return db, nil
}
