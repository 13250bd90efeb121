package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"livechat-backend/internal/chatlog"
	"livechat-backend/internal/client"
	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"
	"livechat-backend/internal/realtime"
	"livechat-backend/internal/service/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type stack struct {
	svc    *chat.Service
	broker *realtime.MemoryBroker
	admin  *client.LocalAdmin
}

func newStack(t *testing.T) *stack {
	t.Helper()
	broker := realtime.NewMemoryBroker()
	t.Cleanup(func() { broker.Close() })
	svc := chat.NewService(chat.NewMemoryRepository(), broker, nil)
	return &stack{
		svc:    svc,
		broker: broker,
		admin:  client.NewLocalAdmin(svc, broker, chat.AdminIdentity{AdminID: "adm-1", Name: "Grace"}),
	}
}

func (s *stack) visitor(t *testing.T, name string) chat.SessionResult {
	t.Helper()
	res, err := s.svc.GetOrCreateSession(context.Background(), "", chat.VisitorInfo{Name: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return res
}

func (s *stack) say(t *testing.T, token, text string) {
	t.Helper()
	_, err := s.svc.AppendVisitorMessage(context.Background(), token, text)
	require.NoError(t, err)
}

func start(t *testing.T, backend client.AdminBackend, cfg Config) *Dashboard {
	t.Helper()
	if cfg.AdminName == "" {
		cfg.AdminName = "Grace"
	}
	d := New(backend, cfg)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)
	return d
}

func sessionIDs(v View) []string {
	out := make([]string, 0, len(v.Sessions))
	for _, s := range v.Sessions {
		out = append(out, s.ID)
	}
	return out
}

func unreadOf(v View, id string) int {
	for _, s := range v.Sessions {
		if s.ID == id {
			return s.UnreadCount
		}
	}
	return -1
}

func TestListFollowsFilter(t *testing.T) {
	st := newStack(t)
	open := st.visitor(t, "ada")
	closed := st.visitor(t, "bob")
	_, err := st.svc.UpdateSessionStatus(context.Background(), closed.Session.ID, model.SessionStatusClosed)
	require.NoError(t, err)

	d := start(t, st.admin, Config{})
	assert.Equal(t, []string{open.Session.ID}, sessionIDs(d.View()))

	require.NoError(t, d.SetFilter(context.Background(), FilterClosed))
	assert.Equal(t, []string{closed.Session.ID}, sessionIDs(d.View()))

	require.NoError(t, d.SetFilter(context.Background(), FilterAll))
	assert.ElementsMatch(t, []string{open.Session.ID, closed.Session.ID}, sessionIDs(d.View()))

	assert.Error(t, d.SetFilter(context.Background(), Filter("archived")))
	assert.Equal(t, FilterAll, d.View().Filter)
}

func TestSetFilterNormalizesCase(t *testing.T) {
	st := newStack(t)
	st.visitor(t, "ada")
	closed := st.visitor(t, "bob")
	_, err := st.svc.UpdateSessionStatus(context.Background(), closed.Session.ID, model.SessionStatusClosed)
	require.NoError(t, err)

	d := start(t, st.admin, Config{})
	require.NoError(t, d.SetFilter(context.Background(), Filter("Closed")))
	assert.Equal(t, FilterClosed, d.View().Filter)
	assert.Equal(t, []string{closed.Session.ID}, sessionIDs(d.View()))
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(" Closed ")
	require.NoError(t, err)
	assert.Equal(t, FilterClosed, f)

	f, err = ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterAll, f)

	_, err = ParseFilter("spam")
	assert.Equal(t, client.CodeValidation, client.CodeOf(err))
}

func TestListRefreshesFromGlobalFeed(t *testing.T) {
	st := newStack(t)
	d := start(t, st.admin, Config{})
	require.Empty(t, d.View().Sessions)

	res := st.visitor(t, "ada")
	require.Eventually(t, func() bool { return len(d.View().Sessions) == 1 }, waitFor, 10*time.Millisecond)

	st.say(t, res.Token, "hello")
	st.say(t, res.Token, "anyone?")
	require.Eventually(t, func() bool { return unreadOf(d.View(), res.Session.ID) == 2 }, waitFor, 10*time.Millisecond)
}

func TestOpeningMarksVisitorMessagesRead(t *testing.T) {
	st := newStack(t)
	res := st.visitor(t, "ada")
	st.say(t, res.Token, "Hello")

	d := start(t, st.admin, Config{})
	require.Equal(t, 1, unreadOf(d.View(), res.Session.ID))

	require.NoError(t, d.Open(context.Background(), res.Session.ID))

	view := d.View()
	require.NotNil(t, view.Open)
	assert.Equal(t, 0, unreadOf(view, res.Session.ID))

	history, err := st.svc.ListMessages(context.Background(), res.Token)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].IsRead)
}

func TestReplyIsReconciledToOneEntry(t *testing.T) {
	st := newStack(t)
	res := st.visitor(t, "ada")
	d := start(t, st.admin, Config{})
	require.NoError(t, d.Open(context.Background(), res.Session.ID))

	require.NoError(t, d.Reply(context.Background(), "  How can I help?  "))

	entries := d.View().Entries
	require.Len(t, entries, 1)
	assert.Equal(t, chatlog.Confirmed, entries[0].Kind)
	assert.Equal(t, model.SenderAdmin, entries[0].Message.SenderType)
	assert.Equal(t, "Grace", entries[0].Message.SenderName)
	assert.Equal(t, "How can I help?", entries[0].Message.Message)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, d.View().Entries, 1)
}

func TestReplyWithoutConversation(t *testing.T) {
	st := newStack(t)
	d := start(t, st.admin, Config{})
	assert.ErrorIs(t, d.Reply(context.Background(), "hi"), ErrNoConversation)
}

func TestLiveVisitorMessagesAppearInOpenConversation(t *testing.T) {
	st := newStack(t)
	res := st.visitor(t, "ada")
	d := start(t, st.admin, Config{})
	require.NoError(t, d.Open(context.Background(), res.Session.ID))

	st.say(t, res.Token, "are you there?")

	require.Eventually(t, func() bool { return len(d.View().Entries) == 1 }, waitFor, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		history, err := st.svc.ListMessages(context.Background(), res.Token)
		return err == nil && len(history) == 1 && history[0].IsRead
	}, waitFor, 10*time.Millisecond, "messages arriving in the open conversation are marked read")
}

func TestOpeningAnotherConversationReleasesThePrevious(t *testing.T) {
	st := newStack(t)
	first := st.visitor(t, "ada")
	second := st.visitor(t, "bob")
	d := start(t, st.admin, Config{})

	require.NoError(t, d.Open(context.Background(), first.Session.ID))
	require.NoError(t, d.Open(context.Background(), second.Session.ID))

	assert.Equal(t, 0, st.broker.Subscribers(realtime.SessionChannel(first.Session.ID)))
	assert.Equal(t, 1, st.broker.Subscribers(realtime.SessionChannel(second.Session.ID)))

	st.say(t, first.Token, "only for ada's chat")
	time.Sleep(50 * time.Millisecond)
	view := d.View()
	assert.Equal(t, second.Session.ID, view.Open.ID)
	assert.Empty(t, view.Entries)
}

func TestCloseSessionUpdatesListAfterSuccess(t *testing.T) {
	st := newStack(t)
	res := st.visitor(t, "ada")
	d := start(t, st.admin, Config{})
	require.NoError(t, d.Open(context.Background(), res.Session.ID))

	require.NoError(t, d.CloseSession(context.Background(), res.Session.ID))

	view := d.View()
	assert.Empty(t, view.Sessions, "closed sessions leave the active filter")
	require.NotNil(t, view.Open)
	assert.Equal(t, model.SessionStatusClosed, view.Open.Status)
	assert.Empty(t, view.Busy)
}

type failingAdmin struct {
	client.AdminBackend
}

var errBackendDown = errors.New("backend down")

func (f failingAdmin) UpdateSessionStatus(ctx context.Context, id string, status model.SessionStatus) (dto.Session, error) {
	return dto.Session{}, errBackendDown
}

func (f failingAdmin) DeleteSession(ctx context.Context, id string) error {
	return errBackendDown
}

func TestDestructiveFailuresLeaveListUntouched(t *testing.T) {
	st := newStack(t)
	res := st.visitor(t, "ada")
	d := start(t, failingAdmin{st.admin}, Config{
		Confirm: func(context.Context, dto.SessionSummary) bool { return true },
	})

	assert.ErrorIs(t, d.CloseSession(context.Background(), res.Session.ID), errBackendDown)
	assert.Equal(t, []string{res.Session.ID}, sessionIDs(d.View()))
	assert.NotEmpty(t, d.View().Error)

	deleted, err := d.DeleteSession(context.Background(), res.Session.ID)
	assert.ErrorIs(t, err, errBackendDown)
	assert.False(t, deleted)
	assert.Equal(t, []string{res.Session.ID}, sessionIDs(d.View()))
}

func TestDeleteRemovesSessionEverywhere(t *testing.T) {
	st := newStack(t)
	res := st.visitor(t, "ada")
	st.say(t, res.Token, "Hello")

	var asked atomic.Int32
	d := start(t, st.admin, Config{
		Confirm: func(_ context.Context, s dto.SessionSummary) bool {
			asked.Add(1)
			return s.VisitorName == "ada"
		},
	})
	require.NoError(t, d.Open(context.Background(), res.Session.ID))

	deleted, err := d.DeleteSession(context.Background(), res.Session.ID)
	require.NoError(t, err)
	require.True(t, deleted)
	assert.Equal(t, int32(1), asked.Load())

	view := d.View()
	assert.Empty(t, view.Sessions)
	assert.Nil(t, view.Open, "the open conversation is torn down")
	assert.Equal(t, 0, st.broker.Subscribers(realtime.SessionChannel(res.Session.ID)))

	all, err := st.admin.ListSessions(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = st.svc.ListMessages(context.Background(), res.Token)
	assert.Equal(t, chat.ErrorCodeUnauthorized, chat.CodeOf(err))
}

func TestDeleteDeclinedDoesNothing(t *testing.T) {
	st := newStack(t)
	res := st.visitor(t, "ada")

	declining := start(t, st.admin, Config{
		Confirm: func(context.Context, dto.SessionSummary) bool { return false },
	})
	deleted, err := declining.DeleteSession(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	unconfigured := start(t, st.admin, Config{})
	deleted, err = unconfigured.DeleteSession(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = st.svc.GetSession(context.Background(), res.Session.ID)
	assert.NoError(t, err)
}

func TestStopReleasesEverySubscription(t *testing.T) {
	st := newStack(t)
	res := st.visitor(t, "ada")
	d := New(st.admin, Config{})
	require.NoError(t, d.Start(context.Background()))
	require.NoError(t, d.Open(context.Background(), res.Session.ID))
	require.Equal(t, 1, st.broker.Subscribers(realtime.SessionsChannel))

	d.Stop()
	d.Stop()

	assert.Equal(t, 0, st.broker.Subscribers(realtime.SessionsChannel))
	assert.Equal(t, 0, st.broker.Subscribers(realtime.SessionChannel(res.Session.ID)))
}
