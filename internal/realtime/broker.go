// Package realtime fans chat events out to subscribers of a channel. Channels are scoped
// per session, plus one feed carrying events of every session for the admin list.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"livechat-backend/internal/dto"
)

const (
	SessionsChannel      = "chat:sessions"
	sessionChannelPrefix = "chat:session:"
)

var ErrClosed = errors.New("realtime: broker closed")

func SessionChannel(sessionID string) string {
	return sessionChannelPrefix + sessionID
}

// Handler receives events in publish order on the subscription's own goroutine.
type Handler func(dto.Event)

// Broker delivers each event published on a channel exactly once to every subscriber that
// subscribed before the publish. Nothing published earlier is replayed.
type Broker interface {
	Publish(ctx context.Context, channel string, event dto.Event) error
	Subscribe(ctx context.Context, channel string, handler Handler) (*Subscription, error)
	Close() error
}

// Subscription is an active registration. Close is idempotent and safe to defer on every
// exit path.
type Subscription struct {
	channel string
	once    sync.Once
	stop    func()
	done    chan struct{}
}

func newSubscription(channel string, stop func()) *Subscription {
	activeSubscriptions.WithLabelValues(channelKind(channel)).Inc()
	return &Subscription{
		channel: channel,
		stop:    stop,
		done:    make(chan struct{}),
	}
}

func (s *Subscription) Channel() string {
	return s.channel
}

// Done is closed once the subscription stops delivering.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		close(s.done)
		activeSubscriptions.WithLabelValues(channelKind(s.channel)).Dec()
	})
}

func encodeEvent(event dto.Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("realtime: marshal event: %w", err)
	}
	return payload, nil
}

func decodeEvent(payload []byte) (dto.Event, error) {
	var event dto.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return dto.Event{}, fmt.Errorf("realtime: unmarshal event: %w", err)
	}
	return event, nil
}

// deliver runs the handler and keeps a panicking handler from killing the delivery loop.
func deliver(channel string, handler Handler, event dto.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[realtime] handler panic on %s: %v", channel, r)
		}
	}()
	handler(event)
	eventsDelivered.WithLabelValues(channelKind(channel)).Inc()
}

func channelKind(channel string) string {
	if channel == SessionsChannel {
		return "sessions"
	}
	return "session"
}
