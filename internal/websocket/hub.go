package websocket

import (
	"context"
	"log"
	"sync"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/realtime"
)

type roomEvent struct {
	room  *Room
	event dto.Event
}

// Hub owns every room. Rooms is only touched by the Run goroutine; everything else talks
// to it over the channels.
type Hub struct {
	broker     realtime.Broker
	Rooms      map[string]*Room
	Register   chan *WSClient
	Unregister chan *WSClient
	Broadcast  chan *roomEvent
	snapshot   chan chan []RoomRes
	quit       chan struct{}
	stopOnce   sync.Once
}

func NewHub(broker realtime.Broker) *Hub {
	return &Hub{
		broker:     broker,
		Rooms:      make(map[string]*Room),
		Register:   make(chan *WSClient),
		Unregister: make(chan *WSClient),
		Broadcast:  make(chan *roomEvent),
		snapshot:   make(chan chan []RoomRes),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.shutdown()
			return

		case client := <-h.Register:
			room, ok := h.Rooms[client.RoomID]
			if !ok {
				var err error
				room, err = h.openRoom(client.RoomID)
				if err != nil {
					log.Printf("[websocket] opening room %s: %v", client.RoomID, err)
					close(client.Message)
					continue
				}
			}
			room.Clients[client.ID] = client
			incConnections()

		case client := <-h.Unregister:
			room, ok := h.Rooms[client.RoomID]
			if !ok {
				continue
			}
			if _, ok := room.Clients[client.ID]; ok {
				delete(room.Clients, client.ID)
				close(client.Message)
				decConnections()
			}
			if len(room.Clients) == 0 {
				h.closeRoom(room)
			}

		case message := <-h.Broadcast:
			room, ok := h.Rooms[message.room.ID]
			if !ok || room != message.room {
				continue
			}
			delivered := 0
			for _, client := range room.Clients {
				select {
				case client.Message <- &message.event:
					delivered++
				default:
					log.Printf("[websocket] client %s too slow, dropping it from %s", client.ID, room.ID)
					close(client.Message)
					delete(room.Clients, client.ID)
					decConnections()
					incEvicted()
				}
			}
			if delivered > 0 {
				addDelivered(delivered)
			}
			if len(room.Clients) == 0 {
				h.closeRoom(room)
			}

		case reply := <-h.snapshot:
			rooms := make([]RoomRes, 0, len(h.Rooms))
			for _, room := range h.Rooms {
				rooms = append(rooms, RoomRes{ID: room.ID, Clients: len(room.Clients)})
			}
			reply <- rooms
		}
	}
}

// openRoom subscribes the room to its broker channel. Events are handed to Run so client
// maps are never shared between goroutines.
func (h *Hub) openRoom(channel string) (*Room, error) {
	room := &Room{ID: channel, Clients: make(map[string]*WSClient)}
	sub, err := h.broker.Subscribe(context.Background(), channel, func(event dto.Event) {
		select {
		case h.Broadcast <- &roomEvent{room: room, event: event}:
		case <-h.quit:
		}
	})
	if err != nil {
		return nil, err
	}
	room.sub = sub
	h.Rooms[channel] = room
	setRooms(len(h.Rooms))
	return room, nil
}

func (h *Hub) closeRoom(room *Room) {
	room.sub.Close()
	delete(h.Rooms, room.ID)
	setRooms(len(h.Rooms))
}

func (h *Hub) shutdown() {
	for _, room := range h.Rooms {
		for id, client := range room.Clients {
			close(client.Message)
			delete(room.Clients, id)
			decConnections()
		}
		h.closeRoom(room)
	}
}

// Stop closes every room and its clients. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

func (h *Hub) register(client *WSClient) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) unregister(client *WSClient) {
	select {
	case h.Unregister <- client:
	case <-h.quit:
	}
}

// Snapshot lists open rooms with their client counts.
func (h *Hub) Snapshot() []RoomRes {
	reply := make(chan []RoomRes, 1)
	select {
	case h.snapshot <- reply:
		return <-reply
	case <-h.quit:
		return nil
	}
}
