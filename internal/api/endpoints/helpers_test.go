package endpoints_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"livechat-backend/internal/api"
	"livechat-backend/internal/api/router"
	internaljwt "livechat-backend/internal/jwt"
	"livechat-backend/internal/queue"
	"livechat-backend/internal/realtime"
	authsvc "livechat-backend/internal/service/auth"
	"livechat-backend/internal/service/chat"
	"livechat-backend/internal/websocket"
)

const (
	publicPrefix = "/api/public/v1"
	adminPrefix  = "/api/admin/v1"
	wsPrefix     = "/api/ws/v1"

	adminEmail    = "support@example.com"
	adminPassword = "correct horse"
)

type testEnv struct {
	handler http.Handler
	chat    *chat.Service
	auth    *authsvc.Service
	broker  *realtime.MemoryBroker
	hub     *websocket.Hub
}

func fixedTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// setupServer mounts every route group on one mux: public, admin, auth and websocket.
func setupServer(t *testing.T) *testEnv {
	t.Helper()

	broker := realtime.NewMemoryBroker()
	chatService := chat.NewService(chat.NewMemoryRepository(), broker, nil)

	tokens, err := internaljwt.NewManager("test-secret", time.Minute, internaljwt.NewMemoryRefreshStore())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	authService := authsvc.NewService(authsvc.NewMemoryRepository(), tokens, fixedTime)
	if _, err := authService.SeedAdmin(context.Background(), authsvc.SeedParams{
		Email:    adminEmail,
		Password: adminPassword,
		Name:     "Support",
	}); err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}

	hub := websocket.NewHub(broker)
	go hub.Run()

	queueManager := queue.NewRequestQueueManager(10, 4)
	server := api.NewAPIServer(":0", queueManager, api.Dependencies{
		Chat:      chatService,
		Auth:      authService,
		Websocket: websocket.NewHandler(hub, nil),
	},
		router.UtilsRoutes(publicPrefix),
		router.SessionPublicRoutes(publicPrefix),
		router.SessionAdminRoutes(adminPrefix),
		router.AuthRoutes(adminPrefix),
		router.SessionWebsocketRoutes(wsPrefix),
	)

	t.Cleanup(func() {
		hub.Stop()
		queueManager.Shutdown()
		broker.Close()
	})

	return &testEnv{
		handler: server.HTTPHandler(),
		chat:    chatService,
		auth:    authService,
		broker:  broker,
		hub:     hub,
	}
}

func doJSONRequest[T any](t *testing.T, handler http.Handler, method, target string, body interface{}, headers map[string]string, expectedStatus int) T {
	t.Helper()

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		payload = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, rec.Code, rec.Body.String())
	}

	var result T
	if expectedStatus != http.StatusNoContent {
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}

	return result
}

type errorBody struct {
	Message string `json:"message"`
}

func tokenHeader(token string) map[string]string {
	return map[string]string{"X-Session-Token": token}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
