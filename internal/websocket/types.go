package websocket

import "livechat-backend/internal/realtime"

// Room is one broker channel with the websocket clients currently listening on it.
type Room struct {
	ID      string
	Clients map[string]*WSClient
	sub     *realtime.Subscription
}

type RoomRes struct {
	ID      string `json:"id"`
	Clients int    `json:"clients"`
}
