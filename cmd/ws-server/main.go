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
	"livechat-backend/internal/websocket"
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

	hub := websocket.NewHub(application.Broker)
	go hub.Run()
	defer hub.Stop()

	server := api.NewAPIServer(
		env.GetOrDefault(env.WSAddr, ":83"),
		queueManager,
		api.Dependencies{
			Chat:           application.Chat,
			Auth:           application.Auth,
			Websocket:      websocket.NewHandler(hub, application.Config.AllowedOrigins),
			AllowedOrigins: application.Config.AllowedOrigins,
		},
		router.UtilsRoutes("/api/ws/v1"),
		router.SessionWebsocketRoutes("/api/ws/v1"),
	)

	if err := server.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
