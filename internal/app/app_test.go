package app

import (
	"context"
	"testing"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/env"
	"livechat-backend/internal/realtime"
	"livechat-backend/internal/service/auth"
	"livechat-backend/internal/service/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() Config {
	return Config{
		StoreDriver:    env.DriverMemory,
		RealtimeDriver: env.DriverMemory,
		AdminEmail:     "owner@example.com",
		AdminPassword:  "hunter2",
		AdminName:      "Owner",
		QueueSize:      4,
		QueueWorkers:   1,
	}
}

func TestNewWithMemoryDriversSeedsAdmin(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &realtime.MemoryBroker{}, a.Broker)

	res, err := a.Auth.Login(ctx, auth.LoginParams{Email: "owner@example.com", Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, "Owner", res.Admin.Name)

	// The chat service publishes through the same broker the app exposes.
	got := make(chan string, 1)
	sub, err := a.Broker.Subscribe(ctx, realtime.SessionsChannel, func(ev dto.Event) { got <- ev.SessionID })
	require.NoError(t, err)
	defer sub.Close()

	created, err := a.Chat.GetOrCreateSession(ctx, "", chat.VisitorInfo{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, created.Session.ID, <-got)

	q := a.NewQueue()
	q.Shutdown()
}

func TestNewRejectsUnknownDrivers(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "sqlite"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "sqlite")

	cfg = memoryConfig()
	cfg.RealtimeDriver = "nats"
	_, err = New(context.Background(), cfg)
	assert.ErrorContains(t, err, "nats")
}

func TestPostgresStoreRequiresDSN(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = env.DriverPostgres
	cfg.PostgresDSN = ""
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(env.StoreDriver, "postgres")
	t.Setenv(env.KafkaBrokers, "k1:9092, k2:9092")
	t.Setenv(env.QueueWorkers, "3")

	cfg := ConfigFromEnv()
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, env.DriverRedis, cfg.RealtimeDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.QueueWorkers)
}
