package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/router"
	"livechat-backend/internal/app"
	"livechat-backend/internal/env"
)

func main() {
	env.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, app.ConfigFromEnv())
	if err != nil {
		log.Fatalf("app init failed: %v", err)
	}
	defer application.Close()

	queueManager := application.NewQueue()
	defer queueManager.Shutdown()

	server := api.NewAPIServer(
		env.GetOrDefault(env.AdminAddr, ":81"),
		queueManager,
		api.Dependencies{
			Chat:           application.Chat,
			Auth:           application.Auth,
			AllowedOrigins: application.Config.AllowedOrigins,
		},
		router.UtilsRoutes("/api/admin/v1"),
		router.AuthRoutes("/api/admin/v1"),
		router.SessionAdminRoutes("/api/admin/v1"),
	)

	if err := server.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
