package realtime

import (
	"context"
	"sync"

	"livechat-backend/internal/dto"
)

// MemoryBroker fans out inside one process.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*mailbox]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*mailbox]struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, event dto.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for box := range b.subs[channel] {
		box.push(event)
	}
	eventsPublished.WithLabelValues("memory", string(event.Type)).Inc()
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
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

	return newSubscription(channel, func() {
		b.mu.Lock()
		if set := b.subs[channel]; set != nil {
			delete(set, box)
			if len(set) == 0 {
				delete(b.subs, channel)
			}
		}
		b.mu.Unlock()
		box.close()
	}), nil
}

// Subscribers reports how many subscriptions are registered on channel.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.subs {
		for box := range set {
			box.close()
		}
	}
	b.subs = make(map[string]map[*mailbox]struct{})
	return nil
}
