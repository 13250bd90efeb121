package client

import (
	"context"
	"log"
	"sync"
	"time"

	"livechat-backend/internal/dto"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

type wsSubscription struct {
	conn    *websocket.Conn
	once    sync.Once
	closing chan struct{}
	done    chan struct{}
}

// dialSubscription opens a websocket and hands every JSON event frame to handler on a
// single reader goroutine, so events keep their server order.
func dialSubscription(ctx context.Context, url string, handler Handler) (Subscription, error) {
	conn, res, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if res != nil {
			return nil, &Error{Code: codeForStatus(res.StatusCode), Message: "websocket handshake rejected", Err: err}
		}
		return nil, &Error{Code: CodeInternal, Message: "websocket unreachable", Err: err}
	}

	s := &wsSubscription{
		conn:    conn,
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.read(handler)
	return s, nil
}

func (s *wsSubscription) read(handler Handler) {
	defer close(s.done)
	for {
		var event dto.Event
		if err := s.conn.ReadJSON(&event); err != nil {
			select {
			case <-s.closing:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("[client] websocket read: %v", err)
				}
			}
			return
		}

		select {
		case <-s.closing:
			return
		default:
		}
		handler(event)
	}
}

// Done is closed when the reader stops, whether by Close or by the server going away.
func (s *wsSubscription) Done() <-chan struct{} {
	return s.done
}

func (s *wsSubscription) Close() {
	s.once.Do(func() {
		close(s.closing)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		s.conn.Close()
	})
}
