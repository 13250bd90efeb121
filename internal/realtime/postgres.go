package realtime

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"livechat-backend/internal/dto"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	// NOTIFY payloads must stay under 8000 bytes.
	maxNotifyPayload  = 7900
	compressedPrefix  = "z:"
	listenerPingEvery = 90 * time.Second
)

var ErrPayloadTooLarge = errors.New("realtime: event too large for NOTIFY")

// notifyListener is the part of *pq.Listener the broker drives.
type notifyListener interface {
	Listen(channel string) error
	Unlisten(channel string) error
	Ping() error
	Close() error
	NotificationChannel() <-chan *pq.Notification
}

// PostgresBroker uses LISTEN/NOTIFY on the chat database. One pq.Listener connection
// carries every channel this process listens on.
//
// listenMu serialises LISTEN and UNLISTEN round trips and guards listening. mu guards
// subs and is never held across a network call: pq only reads the LISTEN reply while
// dispatch keeps draining notifications, and dispatch needs mu to deliver them.
type PostgresBroker struct {
	db       *gorm.DB
	listener notifyListener

	listenMu  sync.Mutex
	listening map[string]bool

	mu     sync.Mutex
	subs   map[string]map[*mailbox]struct{}
	closed bool
	quit   chan struct{}
}

// NewPostgresBroker connects the listener in the background; Listen blocks until the
// connection is up.
func NewPostgresBroker(db *gorm.DB, dsn string) (*PostgresBroker, error) {
	if db == nil || dsn == "" {
		return nil, fmt.Errorf("realtime: postgres broker needs a db and a dsn")
	}
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("[realtime] postgres listener event %d: %v", ev, err)
		}
	})
	return newPostgresBroker(db, listener), nil
}

func newPostgresBroker(db *gorm.DB, listener notifyListener) *PostgresBroker {
	b := &PostgresBroker{
		db:        db,
		listener:  listener,
		listening: make(map[string]bool),
		subs:      make(map[string]map[*mailbox]struct{}),
		quit:      make(chan struct{}),
	}
	go b.dispatch()
	return b
}

func (b *PostgresBroker) Publish(ctx context.Context, channel string, event dto.Event) error {
	payload, err := encodeNotifyPayload(event)
	if err != nil {
		return err
	}
	if err := b.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", channel, payload).Error; err != nil {
		return fmt.Errorf("realtime: pg_notify %s: %w", channel, err)
	}
	eventsPublished.WithLabelValues("postgres", string(event.Type)).Inc()
	return nil
}

// Subscribe returns after the server has acknowledged LISTEN for the first subscriber of a
// channel.
func (b *PostgresBroker) Subscribe(ctx context.Context, channel string, handler Handler) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.listenMu.Lock()
	defer b.listenMu.Unlock()

	if b.isClosed() {
		return nil, ErrClosed
	}
	if !b.listening[channel] {
		if err := b.listener.Listen(channel); err != nil && !errors.Is(err, pq.ErrChannelAlreadyOpen) {
			return nil, fmt.Errorf("realtime: listen %s: %w", channel, err)
		}
		b.listening[channel] = true
	}

	box := newMailbox()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*mailbox]struct{})
	}
	b.subs[channel][box] = struct{}{}
	b.mu.Unlock()

	go box.run(channel, handler)

	return newSubscription(channel, func() { b.unsubscribe(channel, box) }), nil
}

func (b *PostgresBroker) unsubscribe(channel string, box *mailbox) {
	box.close()

	b.mu.Lock()
	set := b.subs[channel]
	delete(set, box)
	last := set != nil && len(set) == 0
	if last {
		delete(b.subs, channel)
	}
	closed := b.closed
	b.mu.Unlock()
	if !last || closed {
		return
	}

	b.listenMu.Lock()
	defer b.listenMu.Unlock()
	// A subscriber may have arrived while we waited for listenMu.
	b.mu.Lock()
	rejoined := len(b.subs[channel]) > 0
	b.mu.Unlock()
	if rejoined || !b.listening[channel] {
		return
	}
	delete(b.listening, channel)
	if err := b.listener.Unlisten(channel); err != nil && !errors.Is(err, pq.ErrChannelNotOpen) {
		log.Printf("[realtime] unlisten %s: %v", channel, err)
	}
}

func (b *PostgresBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *PostgresBroker) dispatch() {
	ping := time.NewTicker(listenerPingEvery)
	defer ping.Stop()
	notifications := b.listener.NotificationChannel()

	for {
		select {
		case <-b.quit:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			// nil after a reconnect; anything sent while disconnected is gone.
			if n == nil {
				log.Printf("[realtime] postgres listener reconnected")
				continue
			}
			event, err := decodeNotifyPayload(n.Extra)
			if err != nil {
				log.Printf("[realtime] dropping malformed payload on %s: %v", n.Channel, err)
				continue
			}
			b.mu.Lock()
			for box := range b.subs[n.Channel] {
				box.push(event)
			}
			b.mu.Unlock()
		case <-ping.C:
			go func() {
				if err := b.listener.Ping(); err != nil {
					log.Printf("[realtime] postgres listener ping: %v", err)
				}
			}()
		}
	}
}

func (b *PostgresBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for box := range set {
			box.close()
		}
	}
	b.subs = make(map[string]map[*mailbox]struct{})
	close(b.quit)
	b.mu.Unlock()

	return b.listener.Close()
}

// encodeNotifyPayload gzips events that would not fit in a NOTIFY payload.
func encodeNotifyPayload(event dto.Event) (string, error) {
	raw, err := encodeEvent(event)
	if err != nil {
		return "", err
	}
	if len(raw) <= maxNotifyPayload {
		return string(raw), nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	encoded := compressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
	if len(encoded) > maxNotifyPayload {
		return "", ErrPayloadTooLarge
	}
	return encoded, nil
}

func decodeNotifyPayload(payload string) (dto.Event, error) {
	if len(payload) < len(compressedPrefix) || payload[:len(compressedPrefix)] != compressedPrefix {
		return decodeEvent([]byte(payload))
	}

	compressed, err := base64.StdEncoding.DecodeString(payload[len(compressedPrefix):])
	if err != nil {
		return dto.Event{}, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return dto.Event{}, err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return dto.Event{}, err
	}
	return decodeEvent(raw)
}
