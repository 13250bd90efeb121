// Package chatlog is the visible message list of a conversation view. Entries are either
// pending (sent optimistically under a temporary id), confirmed (carrying the server id) or
// the static greeting, which is never persisted and never counted as unread.
package chatlog

import (
	"time"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
)

type Kind int

const (
	Greeting Kind = iota
	Pending
	Confirmed
)

func (k Kind) String() string {
	switch k {
	case Greeting:
		return "greeting"
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	}
	return "unknown"
}

const GreetingID = "greeting"

type Entry struct {
	Kind    Kind
	Message dto.Message
}

func (e Entry) ID() string {
	return e.Message.ID
}

// Log is not safe for concurrent use; the cores guard it with their own mutex.
type Log struct {
	greeting *Entry
	entries  []Entry
}

// New returns an empty log. An empty greeting text means no greeting entry.
func New(greeting string, at time.Time) *Log {
	l := &Log{}
	if greeting != "" {
		l.greeting = &Entry{
			Kind: Greeting,
			Message: dto.Message{
				ID:         GreetingID,
				SenderType: model.SenderAdmin,
				Message:    greeting,
				IsRead:     true,
				CreatedAt:  at,
			},
		}
	}
	return l
}

func (l *Log) indexOf(id string) int {
	for i := range l.entries {
		if l.entries[i].Message.ID == id {
			return i
		}
	}
	return -1
}

func (l *Log) Has(id string) bool {
	return l.indexOf(id) >= 0
}

// Load puts history first and keeps anything already received that history does not
// contain, so events delivered while history was loading are not lost.
func (l *Log) Load(history []dto.Message) {
	merged := make([]Entry, 0, len(history)+len(l.entries))
	seen := make(map[string]struct{}, len(history))
	for _, msg := range history {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		merged = append(merged, Entry{Kind: Confirmed, Message: msg})
	}
	for _, entry := range l.entries {
		if _, dup := seen[entry.Message.ID]; dup {
			continue
		}
		merged = append(merged, entry)
	}
	l.entries = merged
}

func (l *Log) AddPending(msg dto.Message) {
	l.entries = append(l.entries, Entry{Kind: Pending, Message: msg})
}

// Confirm swaps the pending entry for the server's copy in place. If the realtime echo
// already added that server id, the pending entry is dropped instead.
func (l *Log) Confirm(tempID string, confirmed dto.Message) bool {
	idx := l.indexOf(tempID)
	if idx < 0 || l.entries[idx].Kind != Pending {
		return false
	}
	if l.Has(confirmed.ID) {
		l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
		return true
	}
	l.entries[idx] = Entry{Kind: Confirmed, Message: confirmed}
	return true
}

// Fail removes a pending entry.
func (l *Log) Fail(tempID string) bool {
	idx := l.indexOf(tempID)
	if idx < 0 || l.entries[idx].Kind != Pending {
		return false
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)
	return true
}

// Receive appends a realtime message unless an entry with the same id is already shown.
func (l *Log) Receive(msg dto.Message) bool {
	if msg.ID == "" || l.Has(msg.ID) {
		return false
	}
	l.entries = append(l.entries, Entry{Kind: Confirmed, Message: msg})
	return true
}

// MarkReadBy applies a read receipt: messages not authored by readerRole become read.
func (l *Log) MarkReadBy(readerRole model.SenderType) int {
	changed := 0
	for i := range l.entries {
		e := &l.entries[i]
		if e.Kind != Confirmed || e.Message.IsRead || e.Message.SenderType == readerRole {
			continue
		}
		e.Message.IsRead = true
		changed++
	}
	return changed
}

// Unread counts confirmed messages from author that are still unread.
func (l *Log) Unread(author model.SenderType) int {
	count := 0
	for _, e := range l.entries {
		if e.Kind == Confirmed && e.Message.SenderType == author && !e.Message.IsRead {
			count++
		}
	}
	return count
}

func (l *Log) Clear() {
	l.entries = nil
}

func (l *Log) Len() int {
	return len(l.entries)
}

// Entries returns a copy, greeting first.
func (l *Log) Entries() []Entry {
	out := make([]Entry, 0, len(l.entries)+1)
	if l.greeting != nil {
		out = append(out, *l.greeting)
	}
	return append(out, l.entries...)
}
