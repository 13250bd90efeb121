package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/realtime"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, broker *realtime.MemoryBroker, channel string) (*Hub, string) {
	t.Helper()
	hub := NewHub(broker)
	go hub.Run()
	t.Cleanup(hub.Stop)

	handler := NewHandler(hub, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.JoinRoom(w, r, channel)
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRoomSubscribesOnFirstJoinAndReleasesOnLastLeave(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	defer broker.Close()
	channel := realtime.SessionChannel("s1")
	hub, url := newTestServer(t, broker, channel)

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	waitUntil(t, "both clients registered", func() bool {
		rooms := hub.Snapshot()
		return len(rooms) == 1 && rooms[0].Clients == 2
	})
	if n := broker.Subscribers(channel); n != 1 {
		t.Fatalf("expected one broker subscription for the room, got %d", n)
	}

	first.Close()
	waitUntil(t, "first client to leave", func() bool {
		rooms := hub.Snapshot()
		return len(rooms) == 1 && rooms[0].Clients == 1
	})

	second.Close()
	waitUntil(t, "room to close", func() bool { return len(hub.Snapshot()) == 0 })
	if n := broker.Subscribers(channel); n != 0 {
		t.Fatalf("expected broker subscription released, got %d", n)
	}
}

func TestPublishedEventsReachClientsInOrder(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	defer broker.Close()
	channel := realtime.SessionChannel("s1")
	hub, url := newTestServer(t, broker, channel)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitUntil(t, "client registered", func() bool { return len(hub.Snapshot()) == 1 })

	for _, id := range []string{"m1", "m2", "m3"} {
		event := dto.Event{Type: dto.EventMessageInserted, SessionID: "s1", Message: &dto.Message{ID: id}}
		if err := broker.Publish(context.Background(), channel, event); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := broker.Publish(context.Background(), realtime.SessionChannel("other"), dto.Event{Type: dto.EventSessionDeleted}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{"m1", "m2", "m3"} {
		var got dto.Event
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read: %v", err)
		}
		if got.Message == nil || got.Message.ID != want {
			t.Fatalf("expected %s, got %+v", want, got)
		}
	}
}

func TestStopClosesClients(t *testing.T) {
	broker := realtime.NewMemoryBroker()
	defer broker.Close()
	channel := realtime.SessionsChannel
	hub, url := newTestServer(t, broker, channel)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitUntil(t, "client registered", func() bool { return len(hub.Snapshot()) == 1 })

	hub.Stop()
	hub.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected the connection to close after Stop")
	}
	waitUntil(t, "broker subscription released", func() bool { return broker.Subscribers(channel) == 0 })
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://shop.example"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	if !check(req) {
		t.Fatal("requests without Origin are allowed")
	}
	req.Header.Set("Origin", "https://shop.example")
	if !check(req) {
		t.Fatal("listed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatal("unlisted origin accepted")
	}
	if !originChecker([]string{"*"})(req) {
		t.Fatal("wildcard rejected")
	}
}
