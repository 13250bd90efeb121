// Package dashboard is the admin side: a filtered session list kept fresh from the global
// feed, and one open conversation at a time.
package dashboard

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"livechat-backend/internal/chatlog"
	"livechat-backend/internal/client"
	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	"livechat-backend/internal/validation"
	"livechat-backend/utils"
)

type Filter string

const (
	FilterActive Filter = "active"
	FilterClosed Filter = "closed"
	FilterAll    Filter = "all"
)

func (f Filter) status() model.SessionStatus {
	switch f {
	case FilterActive:
		return model.SessionStatusActive
	case FilterClosed:
		return model.SessionStatusClosed
	}
	return ""
}

func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(raw))); f {
	case FilterActive, FilterClosed, FilterAll:
		return f, nil
	case "":
		return FilterAll, nil
	}
	return "", &client.Error{Code: client.CodeValidation, Message: "filter must be one of: active closed all"}
}

var ErrNoConversation = errors.New("dashboard: no conversation open")

type Config struct {
	AdminName string
	// Confirm is asked before a delete; nil declines every delete.
	Confirm   func(ctx context.Context, session dto.SessionSummary) bool
	OnChange  func(View)
	ListLimit int
	Now       func() time.Time
}

type View struct {
	Filter    Filter
	Sessions  []dto.SessionSummary
	ListError string
	Open      *dto.SessionSummary
	Entries   []chatlog.Entry
	Sending   bool
	Error     string
	// Busy holds sessions with a close or delete in flight.
	Busy map[string]bool
}

type Dashboard struct {
	backend client.AdminBackend
	cfg     Config

	mu       sync.Mutex
	filter   Filter
	sessions []dto.SessionSummary
	listErr  string
	feedSub  client.Subscription
	feedGen  uint64
	listSeq  uint64

	openID  string
	open    *dto.SessionSummary
	log     *chatlog.Log
	convSub client.Subscription
	convGen uint64
	sending bool
	errMsg  string
	busy    map[string]bool
}

func New(backend client.AdminBackend, cfg Config) *Dashboard {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dashboard{
		backend: backend,
		cfg:     cfg,
		filter:  FilterActive,
		log:     chatlog.New("", cfg.Now()),
		busy:    make(map[string]bool),
	}
}

func (d *Dashboard) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := View{
		Filter:    d.filter,
		Sessions:  append([]dto.SessionSummary(nil), d.sessions...),
		ListError: d.listErr,
		Sending:   d.sending,
		Error:     d.errMsg,
		Busy:      make(map[string]bool, len(d.busy)),
	}
	for id := range d.busy {
		v.Busy[id] = true
	}
	if d.open != nil {
		s := *d.open
		v.Open = &s
		v.Entries = d.log.Entries()
	}
	return v
}

func (d *Dashboard) changed() {
	if d.cfg.OnChange != nil {
		d.cfg.OnChange(d.View())
	}
}

func closeSub(sub client.Subscription) {
	if sub != nil {
		sub.Close()
	}
}

// Start subscribes to the feed of every session and loads the first page of the list.
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	d.feedGen++
	gen := d.feedGen
	old := d.feedSub
	d.feedSub = nil
	d.mu.Unlock()
	closeSub(old)

	sub, err := d.backend.SubscribeAll(ctx, d.feedHandler(gen))
	if err != nil {
		log.Printf("[dashboard] subscribing to session feed: %v", err)
	} else {
		d.mu.Lock()
		if gen == d.feedGen {
			d.feedSub = sub
			sub = nil
		}
		d.mu.Unlock()
		closeSub(sub)
	}

	if refreshErr := d.Refresh(ctx); refreshErr != nil {
		return refreshErr
	}
	return err
}

// Stop releases the feed and the open conversation.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	d.feedGen++
	d.convGen++
	feed, conv := d.feedSub, d.convSub
	d.feedSub, d.convSub = nil, nil
	d.mu.Unlock()
	closeSub(feed)
	closeSub(conv)
}

// Refresh re-lists sessions for the current filter. Unread counts always come from the
// backend. A response overtaken by a newer refresh is discarded.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.mu.Lock()
	d.listSeq++
	seq := d.listSeq
	status := d.filter.status()
	d.mu.Unlock()

	sessions, err := d.backend.ListSessions(ctx, status, d.cfg.ListLimit)

	d.mu.Lock()
	if seq != d.listSeq {
		d.mu.Unlock()
		return err
	}
	if err != nil {
		d.listErr = "Could not load conversations."
	} else {
		d.listErr = ""
		d.sessions = sessions
		if d.open != nil {
			for _, s := range sessions {
				if s.ID == d.open.ID {
					summary := s
					d.open = &summary
					break
				}
			}
		}
	}
	d.mu.Unlock()
	d.changed()
	return err
}

func (d *Dashboard) SetFilter(ctx context.Context, filter Filter) error {
	f, err := ParseFilter(string(filter))
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.filter = f
	d.mu.Unlock()
	return d.Refresh(ctx)
}

func (d *Dashboard) feedHandler(gen uint64) client.Handler {
	return func(event dto.Event) {
		d.mu.Lock()
		live := gen == d.feedGen
		d.mu.Unlock()
		if !live {
			return
		}

		switch event.Type {
		case dto.EventSessionCreated, dto.EventSessionUpdated, dto.EventSessionDeleted,
			dto.EventMessageInserted, dto.EventMessagesRead:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := d.Refresh(ctx); err != nil {
				log.Printf("[dashboard] refreshing after %s: %v", event.Type, err)
			}
		}
	}
}

// Open shows one conversation, replacing whichever was open, and marks the visitor's
// messages as read.
func (d *Dashboard) Open(ctx context.Context, sessionID string) error {
	d.mu.Lock()
	d.convGen++
	gen := d.convGen
	old := d.convSub
	d.convSub = nil
	d.openID = sessionID
	d.open = nil
	d.log = chatlog.New("", d.cfg.Now())
	d.sending = false
	d.errMsg = ""
	d.mu.Unlock()
	closeSub(old)

	summary, err := d.backend.GetSession(ctx, sessionID)
	if err != nil {
		d.failOpen(gen, "Could not open this conversation.")
		return err
	}

	sub, err := d.backend.Subscribe(ctx, sessionID, d.conversationHandler(gen, sessionID))
	if err != nil {
		log.Printf("[dashboard] subscribing to session %s: %v", sessionID, err)
		sub = nil
	}

	history, err := d.backend.ListSessionMessages(ctx, sessionID)
	if err != nil {
		closeSub(sub)
		d.failOpen(gen, "Could not load messages.")
		return err
	}

	d.mu.Lock()
	if gen != d.convGen {
		d.mu.Unlock()
		closeSub(sub)
		return nil
	}
	d.open = &summary
	d.convSub = sub
	d.log.Load(history)
	d.mu.Unlock()
	d.changed()

	if _, err := d.backend.MarkRead(ctx, sessionID); err != nil {
		log.Printf("[dashboard] marking session %s read: %v", sessionID, err)
	}
	return d.Refresh(ctx)
}

func (d *Dashboard) failOpen(gen uint64, msg string) {
	d.mu.Lock()
	if gen == d.convGen {
		d.openID = ""
		d.errMsg = msg
	}
	d.mu.Unlock()
	d.changed()
}

// CloseConversation stops showing the open conversation.
func (d *Dashboard) CloseConversation() {
	d.mu.Lock()
	sub := d.teardownLocked()
	d.mu.Unlock()
	closeSub(sub)
	d.changed()
}

func (d *Dashboard) teardownLocked() client.Subscription {
	d.convGen++
	sub := d.convSub
	d.convSub = nil
	d.openID = ""
	d.open = nil
	d.sending = false
	d.log = chatlog.New("", d.cfg.Now())
	return sub
}

func (d *Dashboard) conversationHandler(gen uint64, sessionID string) client.Handler {
	return func(event dto.Event) {
		d.mu.Lock()
		if gen != d.convGen || (event.SessionID != "" && event.SessionID != sessionID) {
			d.mu.Unlock()
			return
		}

		var (
			changed  bool
			markRead bool
			stale    client.Subscription
		)
		switch event.Type {
		case dto.EventMessageInserted:
			if event.Message != nil && d.log.Receive(*event.Message) {
				changed = true
				markRead = event.Message.SenderType == model.SenderVisitor
			}
		case dto.EventMessagesRead:
			if event.ReaderRole != "" {
				changed = d.log.MarkReadBy(event.ReaderRole) > 0
			}
		case dto.EventSessionUpdated:
			if event.Session != nil && d.open != nil {
				summary := dto.SessionSummary{Session: *event.Session, UnreadCount: d.open.UnreadCount}
				d.open = &summary
				changed = true
			}
		case dto.EventSessionDeleted:
			stale = d.teardownLocked()
			changed = true
		}
		d.mu.Unlock()

		closeSub(stale)
		if changed {
			d.changed()
		}
		if markRead {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := d.backend.MarkRead(ctx, sessionID); err != nil {
				log.Printf("[dashboard] marking session %s read: %v", sessionID, err)
			}
		}
	}
}

// Reply sends text into the open conversation with the same optimistic discipline as the
// visitor widget.
func (d *Dashboard) Reply(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)

	d.mu.Lock()
	if d.open == nil {
		d.mu.Unlock()
		return ErrNoConversation
	}
	if d.sending || trimmed == "" {
		d.mu.Unlock()
		return nil
	}
	if err := validation.ValidateMessage(trimmed); err != nil {
		d.errMsg = validation.Describe(err)
		d.mu.Unlock()
		d.changed()
		return &client.Error{Code: client.CodeValidation, Message: validation.Describe(err), Err: err}
	}

	sessionID := d.open.ID
	tempID := utils.NewTempID()
	d.log.AddPending(dto.Message{
		ID:         tempID,
		SessionID:  sessionID,
		SenderType: model.SenderAdmin,
		SenderName: d.cfg.AdminName,
		Message:    trimmed,
		CreatedAt:  d.cfg.Now(),
	})
	d.sending = true
	d.errMsg = ""
	gen := d.convGen
	d.mu.Unlock()
	d.changed()

	msg, err := d.backend.AppendAdminMessage(ctx, sessionID, trimmed)

	d.mu.Lock()
	if gen != d.convGen {
		d.mu.Unlock()
		return err
	}
	d.sending = false
	if err != nil {
		d.log.Fail(tempID)
		d.errMsg = "Your reply could not be sent."
	} else {
		d.log.Confirm(tempID, msg)
	}
	d.mu.Unlock()
	d.changed()
	return err
}

func (d *Dashboard) beginAction(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.busy[sessionID] {
		return false
	}
	d.busy[sessionID] = true
	return true
}

func (d *Dashboard) endAction(sessionID, errMsg string) {
	d.mu.Lock()
	delete(d.busy, sessionID)
	if errMsg != "" {
		d.errMsg = errMsg
	}
	d.mu.Unlock()
	d.changed()
}

// CloseSession marks a session closed. The list only changes once the backend agrees.
func (d *Dashboard) CloseSession(ctx context.Context, sessionID string) error {
	if !d.beginAction(sessionID) {
		return nil
	}

	session, err := d.backend.UpdateSessionStatus(ctx, sessionID, model.SessionStatusClosed)
	if err != nil {
		d.endAction(sessionID, "Could not close this conversation.")
		return err
	}

	d.mu.Lock()
	if d.open != nil && d.open.ID == sessionID {
		summary := dto.SessionSummary{Session: session, UnreadCount: d.open.UnreadCount}
		d.open = &summary
	}
	d.mu.Unlock()
	d.endAction(sessionID, "")
	return d.Refresh(ctx)
}

// DeleteSession asks Confirm first and reports whether the session was deleted. A declined
// confirmation changes nothing.
func (d *Dashboard) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	d.mu.Lock()
	var summary dto.SessionSummary
	found := false
	for _, s := range d.sessions {
		if s.ID == sessionID {
			summary, found = s, true
			break
		}
	}
	if !found && d.open != nil && d.open.ID == sessionID {
		summary, found = *d.open, true
	}
	d.mu.Unlock()
	if !found {
		summary.ID = sessionID
	}

	if d.cfg.Confirm == nil || !d.cfg.Confirm(ctx, summary) {
		return false, nil
	}
	if !d.beginAction(sessionID) {
		return false, nil
	}

	if err := d.backend.DeleteSession(ctx, sessionID); err != nil {
		d.endAction(sessionID, "Could not delete this conversation.")
		return false, err
	}

	d.mu.Lock()
	kept := d.sessions[:0:0]
	for _, s := range d.sessions {
		if s.ID != sessionID {
			kept = append(kept, s)
		}
	}
	d.sessions = kept
	var stale client.Subscription
	if d.openID == sessionID {
		stale = d.teardownLocked()
	}
	d.mu.Unlock()
	closeSub(stale)
	d.endAction(sessionID, "")

	return true, d.Refresh(ctx)
}
