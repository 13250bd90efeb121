package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"livechat-backend/internal/chatlog"
	"livechat-backend/internal/dashboard"
	"livechat-backend/internal/widget"
)

// renderer prints views as they change. Views arrive from the command loop and from
// realtime goroutines, so writes are serialised.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]string
	lastErr string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, printed: make(map[string]string)}
}

func (r *renderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *renderer) visitor(v widget.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries(v.Entries)
	if v.Closed {
		r.errorLine(widget.ClosedNotice)
	} else {
		r.errorLine(v.Error)
	}
}

func (r *renderer) dashboard(v dashboard.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.Open == nil {
		fmt.Fprintf(r.out, "-- %s conversations --\n", v.Filter)
		for _, s := range v.Sessions {
			busy := ""
			if v.Busy[s.ID] {
				busy = " (working)"
			}
			fmt.Fprintf(r.out, "%s  %-8s %-20s unread=%d%s\n", s.ID, s.Status, s.VisitorName, s.UnreadCount, busy)
		}
		r.printed = make(map[string]string)
	} else {
		r.entries(v.Entries)
	}
	if v.ListError != "" {
		r.errorLine(v.ListError)
	} else {
		r.errorLine(v.Error)
	}
}

// entries prints new entries and entries whose state moved, e.g. pending to confirmed.
func (r *renderer) entries(entries []chatlog.Entry) {
	for _, e := range entries {
		state := e.Kind.String()
		if e.Message.IsRead {
			state += ",read"
		}
		if r.printed[e.ID()] == state {
			continue
		}
		first := r.printed[e.ID()] == ""
		r.printed[e.ID()] = state
		if !first && e.Kind == chatlog.Confirmed {
			continue
		}
		fmt.Fprintf(r.out, "[%s] %s (%s): %s\n",
			e.Message.CreatedAt.Local().Format(time.Kitchen), senderLabel(e), state, e.Message.Message)
	}
}

func senderLabel(e chatlog.Entry) string {
	if e.Message.SenderName != "" {
		return e.Message.SenderName
	}
	return string(e.Message.SenderType)
}

func (r *renderer) errorLine(msg string) {
	if msg == r.lastErr {
		return
	}
	r.lastErr = msg
	if msg != "" {
		fmt.Fprintf(r.out, "! %s\n", msg)
	}
}
