// Package app wires the chat and auth services to the storage and realtime drivers picked
// by configuration. Every cmd binary builds one App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"livechat-backend/internal/database"
	"livechat-backend/internal/env"
	internaljwt "livechat-backend/internal/jwt"
	"livechat-backend/internal/queue"
	"livechat-backend/internal/realtime"
	"livechat-backend/internal/service/auth"
	"livechat-backend/internal/service/chat"

	"gorm.io/gorm"
)

type Config struct {
	StoreDriver    string
	RealtimeDriver string
	PostgresDSN    string

	ChatRedisURL  string
	ChatRedisPass string
	AuthRedisURL  string
	AuthRedisPass string

	KafkaBrokers []string
	KafkaTopic   string

	AdminSecret    string
	AccessTokenTTL time.Duration
	AdminEmail     string
	AdminPassword  string
	AdminName      string

	AllowedOrigins []string
	QueueSize      int
	QueueWorkers   int
}

func ConfigFromEnv() Config {
	return Config{
		StoreDriver:    env.GetOrDefault(env.StoreDriver, env.DriverDynamoDB),
		RealtimeDriver: env.GetOrDefault(env.RealtimeDriver, env.DriverRedis),
		PostgresDSN:    env.Get(env.PostgresDSN),
		ChatRedisURL:   env.GetOrDefault(env.ChatRedisURL, "localhost:6379"),
		ChatRedisPass:  env.Get(env.ChatRedisPass),
		AuthRedisURL:   env.Get(env.AuthRedisURL),
		AuthRedisPass:  env.Get(env.AuthRedisPass),
		KafkaBrokers:   env.GetList(env.KafkaBrokers),
		KafkaTopic:     env.GetOrDefault(env.KafkaTopic, "livechat.events"),
		AdminSecret:    env.Get(env.AdminSecretKey),
		AccessTokenTTL: env.GetDuration(env.AccessTokenTTL, internaljwt.DefaultAccessTokenTTL),
		AdminEmail:     env.Get(env.AdminEmail),
		AdminPassword:  env.Get(env.AdminPassword),
		AdminName:      env.GetOrDefault(env.AdminName, "Support"),
		AllowedOrigins: env.GetList(env.AllowedOrigins),
		QueueSize:      env.GetInt(env.QueueSize, 100),
		QueueWorkers:   env.GetInt(env.QueueWorkers, 10),
	}
}

type App struct {
	Config Config
	Chat   *chat.Service
	Auth   *auth.Service
	Broker realtime.Broker

	closers []func() error
}

func New(ctx context.Context, cfg Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	var (
		gormDB    *gorm.DB
		dynamo    *database.Database
		chatRepo  chat.Repository
		adminRepo auth.Repository
	)

	openPostgres := func() (*gorm.DB, error) {
		if gormDB != nil {
			return gormDB, nil
		}
		db, err := database.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		gormDB = db
		return db, nil
	}

	switch cfg.StoreDriver {
	case env.DriverDynamoDB:
		db, err := database.NewDatabase(ctx, database.DynamoConfigFromEnv())
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		dynamo = db
		chatRepo = chat.NewDynamoRepository(dynamo)
		adminRepo = auth.NewDynamoRepository(dynamo)
	case env.DriverPostgres:
		db, err := openPostgres()
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		chatRepo = chat.NewGormRepository(db)
		adminRepo = auth.NewGormRepository(db)
	case env.DriverMemory:
		chatRepo = chat.NewMemoryRepository()
		adminRepo = auth.NewMemoryRepository()
	default:
		return fmt.Errorf("app: unknown %s %q", env.StoreDriver, cfg.StoreDriver)
	}

	var broker realtime.Broker
	switch cfg.RealtimeDriver {
	case env.DriverRedis:
		rb := realtime.NewRedisBroker(cfg.ChatRedisURL, cfg.ChatRedisPass)
		if err := rb.Ping(ctx); err != nil {
			rb.Close()
			return fmt.Errorf("app: redis broker: %w", err)
		}
		broker = rb
	case env.DriverPostgres:
		db, err := openPostgres()
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		pb, err := realtime.NewPostgresBroker(db, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		broker = pb
	case env.DriverMemory:
		broker = realtime.NewMemoryBroker()
	default:
		return fmt.Errorf("app: unknown %s %q", env.RealtimeDriver, cfg.RealtimeDriver)
	}

	if len(cfg.KafkaBrokers) > 0 {
		mirror, err := realtime.NewKafkaMirror(broker, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			broker.Close()
			return fmt.Errorf("app: %w", err)
		}
		log.Printf("[app] mirroring session events to kafka topic %s", cfg.KafkaTopic)
		broker = mirror
	}
	// Closed before the database so the postgres listener shuts down first.
	a.closers = append([]func() error{broker.Close}, a.closers...)
	a.Broker = broker

	var refreshStore internaljwt.RefreshStore
	if cfg.AuthRedisURL != "" {
		store := internaljwt.NewRedisRefreshStore(cfg.AuthRedisURL, cfg.AuthRedisPass)
		a.closers = append(a.closers, store.Close)
		refreshStore = store
	} else {
		refreshStore = internaljwt.NewMemoryRefreshStore()
	}

	secret := cfg.AdminSecret
	if secret == "" {
		if cfg.StoreDriver != env.DriverMemory {
			return fmt.Errorf("app: %s is required", env.AdminSecretKey)
		}
		secret = "dev-secret"
		log.Printf("[app] %s not set, using an insecure development secret", env.AdminSecretKey)
	}
	tokens, err := internaljwt.NewManager(secret, cfg.AccessTokenTTL, refreshStore)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	a.Chat = chat.NewService(chatRepo, broker, nil)
	a.Auth = auth.NewService(adminRepo, tokens, nil)

	return a.seedAdmin(ctx)
}

func (a *App) seedAdmin(ctx context.Context) error {
	cfg := a.Config
	if strings.TrimSpace(cfg.AdminEmail) == "" || cfg.AdminPassword == "" {
		return nil
	}
	created, err := a.Auth.SeedAdmin(ctx, auth.SeedParams{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Name:     cfg.AdminName,
	})
	if err != nil {
		return fmt.Errorf("app: seed admin: %w", err)
	}
	if created {
		log.Printf("[app] seeded admin %s", cfg.AdminEmail)
	}
	return nil
}

func (a *App) NewQueue() *queue.RequestQueueManager {
	return queue.NewRequestQueueManager(a.Config.QueueSize, a.Config.QueueWorkers)
}

// Close releases drivers in reverse dependency order and reports every failure.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil && !errors.Is(err, realtime.ErrClosed) {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
