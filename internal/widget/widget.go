// Package widget is the visitor side of a conversation: identification, history, optimistic
// sends and live updates for the one session the visitor's stored token points at.
package widget

import (
	"context"
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

type State string

const (
	StateLoading             State = "loading"
	StateNoSession           State = "no_session"
	StateNeedsIdentification State = "needs_identification"
	StateActive              State = "active"
)

const (
	ClosedNotice = "This conversation has been closed."

	msgLoadFailed     = "We could not load your conversation."
	msgIdentifyFailed = "We could not start the conversation. Please try again."
	msgSendFailed     = "Your message could not be sent. Please try again."
	msgLiveFailed     = "Live updates are unavailable right now."
)

type Config struct {
	// Locale picks the greeting; unsupported values fall back to English.
	Locale    string
	Greeting  string
	OriginURL string
	// OnChange receives a fresh View after every state change. It runs on the goroutine that
	// made the change, which may be a realtime delivery goroutine.
	OnChange func(View)
	Now      func() time.Time
}

// View is a snapshot; mutating it has no effect on the widget.
type View struct {
	State       State
	Locale      string
	Session     *dto.Session
	Entries     []chatlog.Entry
	Identifying bool
	Sending     bool
	Closed      bool
	Error       string
}

type Widget struct {
	backend  client.VisitorBackend
	tokens   TokenStore
	cfg      Config
	greeting string

	mu          sync.Mutex
	state       State
	token       string
	session     *dto.Session
	log         *chatlog.Log
	sub         client.Subscription
	gen         uint64
	identifying bool
	sending     bool
	pendingID   string
	closed      bool
	errMsg      string
}

func New(backend client.VisitorBackend, tokens TokenStore, cfg Config) *Widget {
	if _, ok := greetings[cfg.Locale]; !ok {
		cfg.Locale = DefaultLocale
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if tokens == nil {
		tokens = NewMemoryTokenStore("")
	}

	w := &Widget{
		backend:  backend,
		tokens:   tokens,
		cfg:      cfg,
		greeting: Greeting(cfg.Locale, cfg.Greeting),
		state:    StateLoading,
	}
	w.log = chatlog.New(w.greeting, cfg.Now())
	return w
}

func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

func (w *Widget) viewLocked() View {
	v := View{
		State:       w.state,
		Locale:      w.cfg.Locale,
		Identifying: w.identifying,
		Sending:     w.sending,
		Closed:      w.closed,
		Error:       w.errMsg,
	}
	if w.session != nil {
		s := *w.session
		v.Session = &s
	}
	if w.state != StateLoading {
		v.Entries = w.log.Entries()
	}
	return v
}

func (w *Widget) changed() {
	if w.cfg.OnChange != nil {
		w.cfg.OnChange(w.View())
	}
}

func closeSub(sub client.Subscription) {
	if sub != nil {
		sub.Close()
	}
}

// resetLocked invalidates every handler of the previous generation and hands back the
// subscription for the caller to close once the lock is released.
func (w *Widget) resetLocked(state State) client.Subscription {
	w.gen++
	sub := w.sub
	w.sub = nil
	w.state = state
	w.token = ""
	w.session = nil
	w.closed = false
	w.sending = false
	w.pendingID = ""
	w.log = chatlog.New(w.greeting, w.cfg.Now())
	return sub
}

// Mount resolves the stored token and brings the widget to NoSession,
// NeedsIdentification or Active.
func (w *Widget) Mount(ctx context.Context) error {
	w.mu.Lock()
	old := w.resetLocked(StateLoading)
	w.errMsg = ""
	gen := w.gen
	w.mu.Unlock()
	closeSub(old)
	w.changed()

	token, err := w.tokens.Load()
	if err != nil {
		log.Printf("[widget] loading session token: %v", err)
		token = ""
	}
	if token == "" {
		w.toNoSession(gen, "")
		return nil
	}

	session, err := w.backend.GetSessionByToken(ctx, token)
	if err != nil {
		w.toNoSession(gen, msgLoadFailed)
		return err
	}
	if session == nil {
		if err := w.tokens.Clear(); err != nil {
			log.Printf("[widget] clearing stale token: %v", err)
		}
		w.toNoSession(gen, "")
		return nil
	}

	if session.VisitorEmail == "" {
		w.mu.Lock()
		if gen == w.gen {
			w.state = StateNeedsIdentification
			w.token = token
			w.session = session
		}
		w.mu.Unlock()
		w.changed()
		return nil
	}

	return w.activate(ctx, gen, token, *session)
}

func (w *Widget) toNoSession(gen uint64, errMsg string) {
	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.state = StateNoSession
	w.token = ""
	w.session = nil
	w.errMsg = errMsg
	w.mu.Unlock()
	w.changed()
}

// activate subscribes before loading history so nothing published in between is missed;
// Load merges whatever arrived meanwhile.
func (w *Widget) activate(ctx context.Context, gen uint64, token string, session dto.Session) error {
	liveErr := ""
	sub, err := w.backend.Subscribe(ctx, token, session.ID, w.handler(gen))
	if err != nil {
		log.Printf("[widget] subscribing to session %s: %v", session.ID, err)
		liveErr = msgLiveFailed
		sub = nil
	}

	history, err := w.backend.ListMessages(ctx, token)
	if err != nil {
		closeSub(sub)
		w.toNoSession(gen, msgLoadFailed)
		return err
	}

	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		closeSub(sub)
		return nil
	}
	w.state = StateActive
	w.token = token
	w.session = &session
	w.sub = sub
	w.closed = session.Status == model.SessionStatusClosed
	w.errMsg = liveErr
	w.log.Load(history)
	w.mu.Unlock()
	w.changed()
	return nil
}

// Identify submits the identification form. Validation runs before any backend call; a
// failure leaves the state unchanged with an inline error.
func (w *Widget) Identify(ctx context.Context, name, email string) error {
	visitor := validation.NormalizeVisitor(validation.Visitor{Name: name, Email: email, Locale: w.cfg.Locale})

	w.mu.Lock()
	if w.identifying || (w.state != StateNoSession && w.state != StateNeedsIdentification) {
		w.mu.Unlock()
		return nil
	}
	if err := validation.ValidateVisitor(visitor); err != nil {
		w.errMsg = validation.Describe(err)
		w.mu.Unlock()
		w.changed()
		return &client.Error{Code: client.CodeValidation, Message: validation.Describe(err), Err: err}
	}
	w.identifying = true
	w.errMsg = ""
	token := w.token
	gen := w.gen
	w.mu.Unlock()
	w.changed()

	res, err := w.backend.GetOrCreateSession(ctx, token, dto.CreateSessionRequest{
		Name:      visitor.Name,
		Email:     visitor.Email,
		Locale:    visitor.Locale,
		OriginURL: w.cfg.OriginURL,
	})

	w.mu.Lock()
	w.identifying = false
	if err != nil {
		if gen == w.gen {
			w.errMsg = identifyError(err)
		}
		w.mu.Unlock()
		w.changed()
		return err
	}
	w.mu.Unlock()

	if err := w.tokens.Save(res.SessionToken); err != nil {
		log.Printf("[widget] storing session token: %v", err)
	}
	return w.activate(ctx, gen, res.SessionToken, res.Session)
}

func identifyError(err error) string {
	if client.CodeOf(err) == client.CodeValidation {
		return err.Error()
	}
	return msgIdentifyFailed
}

// Send appends text optimistically and reconciles it with the backend's answer. Blank text
// and sends while another is in flight are ignored.
func (w *Widget) Send(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)

	w.mu.Lock()
	if w.state != StateActive || w.sending || trimmed == "" {
		w.mu.Unlock()
		return nil
	}
	if err := validation.ValidateMessage(trimmed); err != nil {
		w.errMsg = validation.Describe(err)
		w.mu.Unlock()
		w.changed()
		return &client.Error{Code: client.CodeValidation, Message: validation.Describe(err), Err: err}
	}

	tempID := utils.NewTempID()
	w.log.AddPending(dto.Message{
		ID:         tempID,
		SessionID:  w.session.ID,
		SenderType: model.SenderVisitor,
		SenderName: w.session.VisitorName,
		Message:    trimmed,
		CreatedAt:  w.cfg.Now(),
	})
	w.sending = true
	w.pendingID = tempID
	w.errMsg = ""
	token := w.token
	gen := w.gen
	w.mu.Unlock()
	w.changed()

	msg, err := w.backend.AppendMessage(ctx, token, trimmed)

	w.mu.Lock()
	if gen != w.gen {
		w.mu.Unlock()
		return err
	}
	w.sending = false
	w.pendingID = ""
	if err != nil {
		w.log.Fail(tempID)
		if client.IsClosed(err) {
			w.closed = true
		} else {
			w.errMsg = msgSendFailed
		}
	} else {
		w.log.Confirm(tempID, msg)
	}
	w.mu.Unlock()
	w.changed()
	return err
}

// MarkRead marks the admin's messages as read by the visitor.
func (w *Widget) MarkRead(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateActive {
		w.mu.Unlock()
		return nil
	}
	token := w.token
	w.mu.Unlock()

	_, err := w.backend.MarkRead(ctx, token)
	return err
}

// Close releases the realtime subscription. Deliveries already in flight are dropped, and
// so is the pending entry of a send that has not come back yet.
func (w *Widget) Close() {
	w.mu.Lock()
	w.gen++
	sub := w.sub
	w.sub = nil
	abandoned := w.sending
	if abandoned {
		w.log.Fail(w.pendingID)
		w.sending = false
		w.pendingID = ""
	}
	w.mu.Unlock()
	closeSub(sub)
	if abandoned {
		w.changed()
	}
}

func (w *Widget) handler(gen uint64) client.Handler {
	return func(event dto.Event) {
		w.mu.Lock()
		if gen != w.gen {
			w.mu.Unlock()
			return
		}
		if w.session != nil && event.SessionID != "" && event.SessionID != w.session.ID {
			w.mu.Unlock()
			return
		}

		var (
			changed bool
			stale   client.Subscription
			deleted bool
		)
		switch event.Type {
		case dto.EventMessageInserted:
			if event.Message != nil {
				changed = w.log.Receive(*event.Message)
			}
		case dto.EventMessagesRead:
			if event.ReaderRole != "" {
				changed = w.log.MarkReadBy(event.ReaderRole) > 0
			}
		case dto.EventSessionUpdated:
			if event.Session != nil {
				s := *event.Session
				w.session = &s
				w.closed = s.Status == model.SessionStatusClosed
				changed = true
			}
		case dto.EventSessionDeleted:
			stale = w.resetLocked(StateNoSession)
			w.errMsg = ""
			deleted = true
			changed = true
		}
		w.mu.Unlock()

		closeSub(stale)
		if deleted {
			if err := w.tokens.Clear(); err != nil {
				log.Printf("[widget] clearing token of deleted session: %v", err)
			}
		}
		if changed {
			w.changed()
		}
	}
}
