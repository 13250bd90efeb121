package websocket

import (
	"encoding/json"
	"net/http"

	"livechat-backend/internal/dto"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler accepts upgrades from the listed origins; an empty list or "*" accepts any.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// JoinRoom upgrades the request and attaches the connection to roomID, a broker channel.
// Callers authorise the request first.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request, roomID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		return nil
	}

	cl := &WSClient{
		Conn:    conn,
		Message: make(chan *dto.Event, sendBuffer),
		ID:      uuid.NewString(),
		RoomID:  roomID,
		done:    make(chan struct{}),
	}

	if !h.hub.register(cl) {
		conn.Close()
		return nil
	}

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readMessage(h.hub)
	return nil
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(h.hub.Snapshot())
}
