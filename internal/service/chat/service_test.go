package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	"livechat-backend/internal/realtime"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]dto.Event
	err    error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[string][]dto.Event)}
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, event dto.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events[channel] = append(p.events[channel], event)
	return nil
}

func (p *recordingPublisher) on(channel string) []dto.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dto.Event(nil), p.events[channel]...)
}

// frozenClock never advances, so ordering has to come from the sequencer.
func frozenClock() func() time.Time {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newTestService(t *testing.T) (*Service, *MemoryRepository, *recordingPublisher) {
	t.Helper()
	repo := NewMemoryRepository()
	pub := newRecordingPublisher()
	return NewService(repo, pub, frozenClock()), repo, pub
}

func ada() VisitorInfo {
	return VisitorInfo{Name: "Ada", Email: "ada@example.com", Locale: "en"}
}

func mustSession(t *testing.T, svc *Service, token string, info VisitorInfo) SessionResult {
	t.Helper()
	res, err := svc.GetOrCreateSession(context.Background(), token, info)
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	return res
}

func assertCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	var svcErr *Error
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected service error %s, got %v", code, err)
	}
	if svcErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, svcErr.Code, svcErr.Message)
	}
}

func TestNewVisitorGetsActiveEmptySession(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()

	res := mustSession(t, svc, "", VisitorInfo{Name: " Ada ", Email: "ADA@Example.com"})
	if !res.Created {
		t.Fatal("expected a new session")
	}
	if res.Session.Status != model.SessionStatusActive {
		t.Fatalf("expected active status, got %s", res.Session.Status)
	}
	if res.Session.VisitorName != "Ada" || res.Session.VisitorEmail != "ada@example.com" {
		t.Fatalf("expected normalised identity, got %q %q", res.Session.VisitorName, res.Session.VisitorEmail)
	}
	if res.Token == "" || res.Token != res.Session.SessionToken {
		t.Fatal("expected the session token to be returned")
	}

	messages, err := svc.ListMessages(ctx, res.Token)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected zero messages, got %d", len(messages))
	}

	if got := pub.on("chat:sessions"); len(got) != 1 || got[0].Type != dto.EventSessionCreated {
		t.Fatalf("expected one session.created event on the feed, got %+v", got)
	}
}

func TestGetOrCreateSessionIdempotentWithToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	first := mustSession(t, svc, "", ada())
	again := mustSession(t, svc, first.Token, VisitorInfo{Name: "Someone Else", Email: "else@example.com"})
	if again.Created {
		t.Fatal("expected the existing session")
	}
	if again.Session.ID != first.Session.ID {
		t.Fatalf("expected same session id, got %s and %s", first.Session.ID, again.Session.ID)
	}
	if again.Session.VisitorEmail != "ada@example.com" {
		t.Fatal("identity must not change after capture")
	}

	other := mustSession(t, svc, "", ada())
	if other.Session.ID == first.Session.ID || other.Token == first.Token {
		t.Fatal("expected a distinct session without a token")
	}

	unknown := mustSession(t, svc, "stale-token", ada())
	if !unknown.Created || unknown.Token == "stale-token" {
		t.Fatal("expected an unknown token to start a fresh session with a new token")
	}
}

func TestGetOrCreateSessionFillsMissingEmail(t *testing.T) {
	svc, repo, pub := newTestService(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	if err := repo.CreateSession(ctx, model.ChatSessionItem{
		ID: "s-anon", SessionToken: "anon-token", VisitorName: "Guest",
		Status: model.SessionStatusActive, CreatedAt: at, UpdatedAt: at, LastMessageAt: at,
	}); err != nil {
		t.Fatal(err)
	}

	res := mustSession(t, svc, "anon-token", ada())
	if res.Created || res.Session.ID != "s-anon" || res.Token != "anon-token" {
		t.Fatalf("expected the existing session to be reused, got %+v", res)
	}
	if res.Session.VisitorEmail != "ada@example.com" || res.Session.VisitorName != "Ada" {
		t.Fatalf("expected the submitted identity to be stored, got %q <%q>", res.Session.VisitorName, res.Session.VisitorEmail)
	}
	if got := pub.on(realtime.SessionsChannel); len(got) != 1 || got[0].Type != dto.EventSessionUpdated {
		t.Fatalf("expected one session_updated event, got %+v", got)
	}

	again := mustSession(t, svc, "anon-token", VisitorInfo{Name: "Bob", Email: "bob@example.com"})
	if again.Session.VisitorEmail != "ada@example.com" {
		t.Fatal("identity must not change once an email is on file")
	}
}

func TestGetOrCreateSessionValidation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreateSession(ctx, "", VisitorInfo{Name: "", Email: "ada@example.com"})
	assertCode(t, err, ErrorCodeValidation)

	_, err = svc.GetOrCreateSession(ctx, "", VisitorInfo{Name: "Ada", Email: "ada-at-example"})
	assertCode(t, err, ErrorCodeValidation)
	if err.Error() != "a valid email is required" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	sessions, _ := repo.ListSessions(ctx, "", 0)
	if len(sessions) != 0 {
		t.Fatal("invalid input must not create sessions")
	}
}

func TestGetSessionByTokenUnknownIsNil(t *testing.T) {
	svc, _, _ := newTestService(t)

	for _, token := range []string{"", "   ", "nope"} {
		session, err := svc.GetSessionByToken(context.Background(), token)
		if err != nil || session != nil {
			t.Fatalf("token %q: expected nil, nil; got %v, %v", token, session, err)
		}
	}
}

func TestMessagesListedInCreationOrder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	res := mustSession(t, svc, "", ada())
	admin := AdminIdentity{AdminID: "a1", Name: "Support"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.AppendVisitorMessage(ctx, res.Token, fmt.Sprintf("visitor %d", i)); err != nil {
				t.Errorf("visitor append: %v", err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.AppendAdminMessage(ctx, admin, res.Session.ID, fmt.Sprintf("admin %d", i)); err != nil {
				t.Errorf("admin append: %v", err)
			}
		}(i)
	}
	wg.Wait()

	messages, err := svc.ListMessages(ctx, res.Token)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 40 {
		t.Fatalf("expected 40 messages, got %d", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if !messages[i].CreatedAt.After(messages[i-1].CreatedAt) {
			t.Fatalf("message %d not after message %d: %s <= %s", i, i-1, messages[i].CreatedAt, messages[i-1].CreatedAt)
		}
	}

	session, _ := svc.GetSession(ctx, res.Session.ID)
	if !session.Session.LastMessageAt.Equal(messages[len(messages)-1].CreatedAt) {
		t.Fatal("expected lastMessageAt to follow the newest message")
	}
}

func TestAppendRejectsBlankText(t *testing.T) {
	svc, _, _ := newTestService(t)
	res := mustSession(t, svc, "", ada())

	_, err := svc.AppendVisitorMessage(context.Background(), res.Token, "  \n ")
	assertCode(t, err, ErrorCodeValidation)

	_, err = svc.AppendAdminMessage(context.Background(), AdminIdentity{AdminID: "a1"}, res.Session.ID, "")
	assertCode(t, err, ErrorCodeValidation)

	_, err = svc.AppendVisitorMessage(context.Background(), res.Token, strings.Repeat("x", 4001))
	assertCode(t, err, ErrorCodeValidation)
}

func TestAppendVisitorMessagePublishes(t *testing.T) {
	svc, _, pub := newTestService(t)
	res := mustSession(t, svc, "", ada())

	msg, err := svc.AppendVisitorMessage(context.Background(), res.Token, "  Hello  ")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.Message != "Hello" || msg.SenderType != model.SenderVisitor || msg.IsRead {
		t.Fatalf("unexpected message %+v", msg)
	}

	events := pub.on("chat:session:" + res.Session.ID)
	if len(events) != 1 || events[0].Type != dto.EventMessageInserted || events[0].Message.ID != msg.ID {
		t.Fatalf("expected message.inserted on the session channel, got %+v", events)
	}
}

func TestPublishFailureDoesNotFailAppend(t *testing.T) {
	svc, _, pub := newTestService(t)
	res := mustSession(t, svc, "", ada())
	pub.err = errors.New("redis down")

	if _, err := svc.AppendVisitorMessage(context.Background(), res.Token, "still stored"); err != nil {
		t.Fatalf("expected append to succeed, got %v", err)
	}
	messages, _ := svc.ListMessages(context.Background(), res.Token)
	if len(messages) != 1 {
		t.Fatalf("expected the message to be stored, got %d", len(messages))
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()
	res := mustSession(t, svc, "", ada())

	if _, err := svc.AppendVisitorMessage(ctx, res.Token, "Hello"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AppendAdminMessage(ctx, AdminIdentity{AdminID: "a1", Name: "Support"}, res.Session.ID, "Hi Ada"); err != nil {
		t.Fatal(err)
	}

	updated, err := svc.MarkRead(ctx, res.Session.ID, model.SenderAdmin)
	if err != nil || updated != 1 {
		t.Fatalf("expected one flag flipped, got %d, %v", updated, err)
	}
	once, _ := svc.ListSessionMessages(ctx, res.Session.ID)

	updated, err = svc.MarkRead(ctx, res.Session.ID, model.SenderAdmin)
	if err != nil || updated != 0 {
		t.Fatalf("expected no change on second call, got %d, %v", updated, err)
	}
	twice, _ := svc.ListSessionMessages(ctx, res.Session.ID)

	for i := range once {
		if once[i].IsRead != twice[i].IsRead {
			t.Fatalf("read flags differ after second markRead at %d", i)
		}
	}
	if !once[0].IsRead || once[1].IsRead {
		t.Fatal("admin markRead must only flag visitor-authored messages")
	}

	readEvents := 0
	for _, event := range pub.on("chat:session:" + res.Session.ID) {
		if event.Type == dto.EventMessagesRead {
			readEvents++
		}
	}
	if readEvents != 1 {
		t.Fatalf("expected one messages.read event, got %d", readEvents)
	}

	updated, err = svc.MarkReadByToken(ctx, res.Token)
	if err != nil || updated != 1 {
		t.Fatalf("expected visitor markRead to flag the admin reply, got %d, %v", updated, err)
	}
}

func TestListMessagesIsTokenScoped(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a := mustSession(t, svc, "", ada())
	b := mustSession(t, svc, "", VisitorInfo{Name: "Bob", Email: "bob@example.com"})

	if _, err := svc.AppendVisitorMessage(ctx, a.Token, "from A"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AppendVisitorMessage(ctx, b.Token, "from B"); err != nil {
		t.Fatal(err)
	}

	messages, err := svc.ListMessages(ctx, a.Token)
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range messages {
		if msg.SessionID != a.Session.ID {
			t.Fatalf("token A leaked message from session %s", msg.SessionID)
		}
	}
	if len(messages) != 1 || messages[0].Message != "from A" {
		t.Fatalf("unexpected messages %+v", messages)
	}

	_, err = svc.ListMessages(ctx, b.Session.ID)
	assertCode(t, err, ErrorCodeUnauthorized)
}

func TestClosedSessionRejectsVisitorSends(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()
	res := mustSession(t, svc, "", ada())

	closed, err := svc.UpdateSessionStatus(ctx, res.Session.ID, model.SessionStatusClosed)
	if err != nil || closed.Status != model.SessionStatusClosed {
		t.Fatalf("close: %v", err)
	}

	_, err = svc.AppendVisitorMessage(ctx, res.Token, "anyone there?")
	assertCode(t, err, ErrorCodeConflict)
	if !IsClosed(err) {
		t.Fatal("expected a closed-conversation error")
	}

	messages, _ := svc.ListMessages(ctx, res.Token)
	if len(messages) != 0 {
		t.Fatal("rejected send must not be stored")
	}

	if _, err := svc.AppendAdminMessage(ctx, AdminIdentity{AdminID: "a1"}, res.Session.ID, "closing note"); err != nil {
		t.Fatalf("admin reply on closed session: %v", err)
	}

	again, err := svc.UpdateSessionStatus(ctx, res.Session.ID, model.SessionStatusClosed)
	if err != nil || again.Status != model.SessionStatusClosed {
		t.Fatalf("closing twice should be a no-op, got %v", err)
	}
	_, err = svc.UpdateSessionStatus(ctx, res.Session.ID, model.SessionStatusActive)
	assertCode(t, err, ErrorCodeConflict)

	updates := 0
	for _, event := range pub.on("chat:sessions") {
		if event.Type == dto.EventSessionUpdated {
			updates++
		}
	}
	if updates != 1 {
		t.Fatalf("expected one session.updated event, got %d", updates)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	res := mustSession(t, svc, "", ada())
	if _, err := svc.AppendVisitorMessage(ctx, res.Token, "Hello"); err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteSession(ctx, res.Session.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	sessions, err := svc.ListSessions(ctx, SessionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sessions {
		if s.Session.ID == res.Session.ID {
			t.Fatal("deleted session still listed")
		}
	}
	if _, err := svc.ListMessages(ctx, res.Token); err == nil {
		t.Fatal("expected deleted session's messages to be unreachable by token")
	}
	if left, _ := repo.ListMessages(ctx, res.Session.ID); len(left) != 0 {
		t.Fatal("expected messages to be deleted with the session")
	}

	err = svc.DeleteSession(ctx, res.Session.ID)
	assertCode(t, err, ErrorCodeNotFound)
}

func TestListSessionsOrderFilterAndUnread(t *testing.T) {
	repo := NewMemoryRepository()
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(repo, nil, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	ctx := context.Background()

	older := mustSession(t, svc, "", ada())
	newer := mustSession(t, svc, "", VisitorInfo{Name: "Bob", Email: "bob@example.com"})
	if _, err := svc.AppendVisitorMessage(ctx, older.Token, "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AppendVisitorMessage(ctx, older.Token, "two"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateSessionStatus(ctx, newer.Session.ID, model.SessionStatusClosed); err != nil {
		t.Fatal(err)
	}

	all, err := svc.ListSessions(ctx, SessionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Session.ID != older.Session.ID {
		t.Fatalf("expected most recently active session first, got %+v", all)
	}
	if all[0].UnreadCount != 2 || all[1].UnreadCount != 0 {
		t.Fatalf("unexpected unread counts %d, %d", all[0].UnreadCount, all[1].UnreadCount)
	}

	closed, _ := svc.ListSessions(ctx, SessionFilter{Status: model.SessionStatusClosed})
	if len(closed) != 1 || closed[0].Session.ID != newer.Session.ID {
		t.Fatalf("expected only the closed session, got %+v", closed)
	}

	limited, _ := svc.ListSessions(ctx, SessionFilter{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	_, err = svc.ListSessions(ctx, SessionFilter{Status: "archived"})
	assertCode(t, err, ErrorCodeValidation)

	if _, err := svc.MarkRead(ctx, older.Session.ID, model.SenderAdmin); err != nil {
		t.Fatal(err)
	}
	after, _ := svc.GetSession(ctx, older.Session.ID)
	if after.UnreadCount != 0 {
		t.Fatalf("expected unread to be recomputed to 0, got %d", after.UnreadCount)
	}
}

func TestSequencerStampsStrictlyIncrease(t *testing.T) {
	seq := newSequencer()
	base := time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC)

	slot := seq.acquire("s1")
	first := slot.next(base, time.Time{})
	second := slot.next(base.Add(-time.Hour), time.Time{})
	seq.release("s1", slot)

	if !second.After(first) {
		t.Fatalf("expected %s after %s", second, first)
	}
	if first.Nanosecond()%1000 != 0 {
		t.Fatal("expected microsecond precision")
	}

	slot = seq.acquire("s1")
	third := slot.next(base, second)
	seq.release("s1", slot)
	if !third.After(second) {
		t.Fatal("expected the stored floor to be honoured after the slot was recycled")
	}
	if len(seq.slots) != 0 {
		t.Fatal("expected idle slots to be released")
	}
}

// loadBarrier holds the first n GetSession callers until all of them have read, so
// concurrent appends start from the same session snapshot.
type loadBarrier struct {
	Repository
	mu      sync.Mutex
	waiting int
	release chan struct{}
}

func newLoadBarrier(repo Repository, n int) *loadBarrier {
	return &loadBarrier{Repository: repo, waiting: n, release: make(chan struct{})}
}

func (b *loadBarrier) GetSession(ctx context.Context, sessionID string) (model.ChatSessionItem, error) {
	session, err := b.Repository.GetSession(ctx, sessionID)
	b.mu.Lock()
	if b.waiting == 0 {
		b.mu.Unlock()
		return session, err
	}
	b.waiting--
	if b.waiting == 0 {
		close(b.release)
	}
	b.mu.Unlock()
	<-b.release
	return session, err
}

func TestAppendsFromSeparateServicesGetDistinctStamps(t *testing.T) {
	ctx := context.Background()
	shared := newLoadBarrier(NewMemoryRepository(), 2)
	public := NewService(shared, nil, frozenClock())
	admin := NewService(shared, nil, frozenClock())

	res := mustSession(t, public, "", ada())

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := public.AppendVisitorMessage(ctx, res.Token, "hello")
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := admin.AppendAdminMessage(ctx, AdminIdentity{AdminID: "adm-1", Name: "Grace"}, res.Session.ID, "hi")
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	messages, err := public.ListSessionMessages(ctx, res.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if !messages[1].CreatedAt.After(messages[0].CreatedAt) {
		t.Fatalf("expected strictly increasing stamps, got %s and %s", messages[0].CreatedAt, messages[1].CreatedAt)
	}

	session, err := shared.Repository.GetSession(ctx, res.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !session.LastMessageAt.Equal(messages[1].CreatedAt) {
		t.Fatalf("expected lastMessageAt %s, got %s", messages[1].CreatedAt, session.LastMessageAt)
	}
}

func TestMemoryAppendMessageChecksSessionAndStamp(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	session := model.ChatSessionItem{ID: "s1", SessionToken: "tok", Status: model.SessionStatusActive, CreatedAt: at, LastMessageAt: at}
	if err := repo.CreateSession(ctx, session); err != nil {
		t.Fatal(err)
	}

	msg := model.ChatMessageItem{ID: "m1", SessionID: "s1", SenderType: model.SenderVisitor, Message: "a", CreatedAt: at}
	if err := repo.AppendMessage(ctx, msg); !errors.Is(err, ErrStaleStamp) {
		t.Fatalf("expected ErrStaleStamp for a stamp equal to lastMessageAt, got %v", err)
	}

	msg.CreatedAt = at.Add(time.Microsecond)
	if err := repo.AppendMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	msg.ID, msg.CreatedAt = "m0", at.Add(-time.Second)
	if err := repo.AppendMessage(ctx, msg); !errors.Is(err, ErrStaleStamp) {
		t.Fatalf("expected lastMessageAt never to move backwards, got %v", err)
	}

	if err := repo.DeleteSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	msg.ID, msg.CreatedAt = "m2", at.Add(time.Hour)
	if err := repo.AppendMessage(ctx, msg); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if left, _ := repo.ListMessages(ctx, "s1"); len(left) != 0 {
		t.Fatalf("expected no orphaned messages, got %d", len(left))
	}
}
