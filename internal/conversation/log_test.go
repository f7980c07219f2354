// ABOUTME: Tests for the dedup reconciler log
// ABOUTME: Covers token matching, echo races, ordering, and duplicate drops

package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fernwood-social/dmgate/internal/bus"
	"github.com/fernwood-social/dmgate/internal/store"
)

const (
	aliceID int64 = 1
	bobID   int64 = 2
)

func echoFor(entry *store.Message, id string, at time.Time) bus.Event {
	return bus.Event{
		ID:          id,
		Sender:      entry.Sender,
		Receiver:    entry.Receiver,
		Body:        entry.Body,
		ClientToken: entry.ClientToken,
		CreatedAt:   at,
	}
}

func TestLog_AppendLocalIsPending(t *testing.T) {
	l := NewLog(aliceID)

	entry := l.AppendLocal(bobID, "hi")

	assert.Equal(t, store.StatePendingLocal, entry.State)
	assert.Empty(t, entry.ID)
	assert.NotEmpty(t, entry.ClientToken)
	assert.Equal(t, 1, l.Len())
}

func TestLog_ConfirmPromotesInPlace(t *testing.T) {
	l := NewLog(aliceID)
	entry := l.AppendLocal(bobID, "hi")

	at := time.Now().UTC()
	require.True(t, l.Confirm(entry.ClientToken, "msg-42", at))

	msgs := l.Messages()
	require.Len(t, msgs, 1, "confirming must never append")
	assert.Equal(t, "msg-42", msgs[0].ID)
	assert.Equal(t, store.StateConfirmed, msgs[0].State)
	assert.True(t, msgs[0].CreatedAt.Equal(at))
}

func TestLog_ConfirmUnknownToken(t *testing.T) {
	l := NewLog(aliceID)
	assert.False(t, l.Confirm("no-such-token", "msg-1", time.Now()))
}

func TestLog_EchoAfterConfirmIsDuplicate(t *testing.T) {
	l := NewLog(aliceID)
	entry := l.AppendLocal(bobID, "hi")
	at := time.Now().UTC()

	require.True(t, l.Confirm(entry.ClientToken, "msg-42", at))

	outcome := l.ApplyRemote(echoFor(entry, "msg-42", at))
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 1, l.Len())
}

func TestLog_EchoBeforeConfirmPromotes(t *testing.T) {
	// The bus can deliver the echo of a just-sent message before the
	// originating insert call returns. The token match absorbs either order.
	l := NewLog(aliceID)
	entry := l.AppendLocal(bobID, "hi")
	at := time.Now().UTC()

	outcome := l.ApplyRemote(echoFor(entry, "msg-42", at))
	assert.Equal(t, OutcomePromoted, outcome)

	msgs := l.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, store.StateConfirmed, msgs[0].State)
	assert.Equal(t, "msg-42", msgs[0].ID)

	// The late receipt from the store changes nothing further
	require.True(t, l.Confirm(entry.ClientToken, "msg-42", at))
	assert.Equal(t, 1, l.Len())
}

func TestLog_RemoteMessageAppendsAsReceived(t *testing.T) {
	l := NewLog(aliceID)

	outcome := l.ApplyRemote(bus.Event{
		ID:          "msg-43",
		Sender:      bobID,
		Receiver:    aliceID,
		Body:        "yo",
		ClientToken: "bobs-token",
		CreatedAt:   time.Now().UTC(),
	})

	assert.Equal(t, OutcomeAppended, outcome)
	msgs := l.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, store.StateReceived, msgs[0].State)
	assert.Equal(t, bobID, msgs[0].Sender)
}

func TestLog_DuplicateEventIDDropped(t *testing.T) {
	l := NewLog(aliceID)
	ev := bus.Event{ID: "msg-43", Sender: bobID, Receiver: aliceID, Body: "yo", CreatedAt: time.Now().UTC()}

	assert.Equal(t, OutcomeAppended, l.ApplyRemote(ev))
	assert.Equal(t, OutcomeDuplicate, l.ApplyRemote(ev))
	assert.Equal(t, OutcomeDuplicate, l.ApplyRemote(ev))
	assert.Equal(t, 1, l.Len(), "a message is counted once no matter how many events reference it")
}

func TestLog_IdenticalBodiesInQuickSuccessionStayDistinct(t *testing.T) {
	// Two sends with the same sender and body within the same instant used
	// to be ambiguous under content matching; token equality keeps them
	// apart.
	l := NewLog(aliceID)
	first := l.AppendLocal(bobID, "ok")
	second := l.AppendLocal(bobID, "ok")
	require.NotEqual(t, first.ClientToken, second.ClientToken)

	at := time.Now().UTC()
	assert.Equal(t, OutcomePromoted, l.ApplyRemote(echoFor(second, "msg-2", at)))
	assert.Equal(t, OutcomePromoted, l.ApplyRemote(echoFor(first, "msg-1", at)))

	msgs := l.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, store.StateConfirmed, m.State)
	}
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestLog_MessagesSortedByCreatedAtThenID(t *testing.T) {
	l := NewLog(aliceID)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Deliberately out of arrival order
	l.ApplyRemote(bus.Event{ID: "c", Sender: bobID, Receiver: aliceID, Body: "3", CreatedAt: base.Add(2 * time.Second)})
	l.ApplyRemote(bus.Event{ID: "a", Sender: bobID, Receiver: aliceID, Body: "1", CreatedAt: base})
	l.ApplyRemote(bus.Event{ID: "b", Sender: bobID, Receiver: aliceID, Body: "2", CreatedAt: base.Add(time.Second)})

	msgs := l.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestLog_EqualTimestampsTieBreakOnID(t *testing.T) {
	l := NewLog(aliceID)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	l.ApplyRemote(bus.Event{ID: "zz", Sender: bobID, Receiver: aliceID, Body: "late id", CreatedAt: at})
	l.ApplyRemote(bus.Event{ID: "aa", Sender: bobID, Receiver: aliceID, Body: "early id", CreatedAt: at})

	msgs := l.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "aa", msgs[0].ID)
	assert.Equal(t, "zz", msgs[1].ID)
}

func TestLog_LoadHistoryAssignsStates(t *testing.T) {
	l := NewLog(aliceID)
	at := time.Now().UTC()

	added := l.LoadHistory([]store.Message{
		{ID: "m1", Sender: aliceID, Receiver: bobID, Body: "mine", ClientToken: "t1", CreatedAt: at},
		{ID: "m2", Sender: bobID, Receiver: aliceID, Body: "theirs", ClientToken: "t2", CreatedAt: at.Add(time.Second)},
	})

	assert.Equal(t, 2, added)
	msgs := l.Messages()
	assert.Equal(t, store.StateConfirmed, msgs[0].State)
	assert.Equal(t, store.StateReceived, msgs[1].State)
}

func TestLog_LoadHistorySkipsAlreadyAppliedEvents(t *testing.T) {
	// An insert event can land while the history query is in flight; the
	// history row for the same id must not duplicate it.
	l := NewLog(aliceID)
	at := time.Now().UTC()

	l.ApplyRemote(bus.Event{ID: "m1", Sender: bobID, Receiver: aliceID, Body: "yo", CreatedAt: at})

	added := l.LoadHistory([]store.Message{
		{ID: "m1", Sender: bobID, Receiver: aliceID, Body: "yo", CreatedAt: at},
	})

	assert.Equal(t, 0, added)
	assert.Equal(t, 1, l.Len())
}

func TestLog_MarkFailed(t *testing.T) {
	l := NewLog(aliceID)
	entry := l.AppendLocal(bobID, "hi")

	require.True(t, l.MarkFailed(entry.ClientToken))
	assert.Equal(t, store.StateFailed, l.Messages()[0].State)

	// Confirmed entries cannot fail retroactively
	other := l.AppendLocal(bobID, "again")
	require.True(t, l.Confirm(other.ClientToken, "m9", time.Now().UTC()))
	assert.False(t, l.MarkFailed(other.ClientToken))
}

func TestLog_ClearDiscardsEverything(t *testing.T) {
	l := NewLog(aliceID)
	l.AppendLocal(bobID, "hi")
	l.ApplyRemote(bus.Event{ID: "m1", Sender: bobID, Receiver: aliceID, Body: "yo", CreatedAt: time.Now().UTC()})

	l.Clear()

	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Messages())
}
