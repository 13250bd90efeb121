package realtime

import (
	"sync"

	"livechat-backend/internal/dto"
)

// mailbox is an unbounded FIFO drained by a single goroutine, so a slow handler never
// blocks publishers and events keep their publish order.
type mailbox struct {
	mu     sync.Mutex
	queue  []dto.Event
	notify chan struct{}
	quit   chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{
		notify: make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
}

func (m *mailbox) push(event dto.Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, event)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		m.queue = nil
		close(m.quit)
	}
	m.mu.Unlock()
}

func (m *mailbox) run(channel string, handler Handler) {
	for {
		select {
		case <-m.quit:
			return
		case <-m.notify:
		}

		for {
			m.mu.Lock()
			if m.closed || len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			event := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			deliver(channel, handler, event)
		}
	}
}
