package chatlog

import (
	"testing"
	"time"

	"livechat-backend/internal/dto"
	"livechat-backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, sender model.SenderType, text string) dto.Message {
	return dto.Message{ID: id, SessionID: "s1", SenderType: sender, Message: text, CreatedAt: t0}
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID())
	}
	return out
}

func TestGreetingAlwaysFirstAndNeverUnread(t *testing.T) {
	l := New("Hi there", t0)
	l.Load([]dto.Message{msg("m1", model.SenderAdmin, "reply")})

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, Greeting, entries[0].Kind)
	assert.Equal(t, GreetingID, entries[0].ID())
	assert.Equal(t, 1, l.Unread(model.SenderAdmin), "the greeting is not an unread admin message")
}

func TestConfirmReplacesPendingInPlace(t *testing.T) {
	l := New("", t0)
	l.Load([]dto.Message{msg("m1", model.SenderAdmin, "hi")})
	l.AddPending(msg("tmp-1", model.SenderVisitor, "Hello"))
	l.Receive(msg("m2", model.SenderAdmin, "typing fast"))

	require.True(t, l.Confirm("tmp-1", msg("srv-1", model.SenderVisitor, "Hello")))

	entries := l.Entries()
	assert.Equal(t, []string{"m1", "srv-1", "m2"}, ids(entries))
	assert.Equal(t, Confirmed, entries[1].Kind)
	assert.Equal(t, "Hello", entries[1].Message.Message)
}

func TestEchoBeforeConfirmationLeavesOneEntry(t *testing.T) {
	l := New("", t0)
	l.AddPending(msg("tmp-1", model.SenderVisitor, "Hello"))

	assert.True(t, l.Receive(msg("srv-1", model.SenderVisitor, "Hello")))
	assert.True(t, l.Confirm("tmp-1", msg("srv-1", model.SenderVisitor, "Hello")))

	assert.Equal(t, []string{"srv-1"}, ids(l.Entries()))
}

func TestEchoAfterConfirmationIsIgnored(t *testing.T) {
	l := New("", t0)
	l.AddPending(msg("tmp-1", model.SenderVisitor, "Hello"))
	l.Confirm("tmp-1", msg("srv-1", model.SenderVisitor, "Hello"))

	assert.False(t, l.Receive(msg("srv-1", model.SenderVisitor, "Hello")))
	assert.Equal(t, 1, l.Len())
}

func TestDedupeIsByIDNotContent(t *testing.T) {
	l := New("", t0)
	assert.True(t, l.Receive(msg("a", model.SenderVisitor, "same")))
	assert.True(t, l.Receive(msg("b", model.SenderVisitor, "same")))
	assert.Equal(t, 2, l.Len())
}

func TestFailRemovesOnlyPending(t *testing.T) {
	l := New("", t0)
	l.Receive(msg("m1", model.SenderVisitor, "kept"))
	l.AddPending(msg("tmp-1", model.SenderVisitor, "lost"))

	assert.False(t, l.Fail("m1"))
	assert.True(t, l.Fail("tmp-1"))
	assert.False(t, l.Fail("tmp-1"))
	assert.Equal(t, []string{"m1"}, ids(l.Entries()))
}

func TestLoadKeepsEventsReceivedDuringLoad(t *testing.T) {
	l := New("", t0)
	l.Receive(msg("m3", model.SenderAdmin, "live"))
	l.Receive(msg("m2", model.SenderAdmin, "also in history"))

	l.Load([]dto.Message{
		msg("m1", model.SenderVisitor, "old"),
		msg("m2", model.SenderAdmin, "also in history"),
	})

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(l.Entries()))
}

func TestMarkReadByFlipsOtherAuthorsOnly(t *testing.T) {
	l := New("Hi", t0)
	l.Load([]dto.Message{
		msg("v1", model.SenderVisitor, "q"),
		msg("a1", model.SenderAdmin, "a"),
	})
	l.AddPending(msg("tmp-1", model.SenderVisitor, "pending"))

	assert.Equal(t, 1, l.MarkReadBy(model.SenderAdmin))
	assert.Equal(t, 0, l.MarkReadBy(model.SenderAdmin))

	entries := l.Entries()
	assert.True(t, entries[1].Message.IsRead)
	assert.False(t, entries[2].Message.IsRead)
	assert.False(t, entries[3].Message.IsRead)
}
