package progress

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchly-ai/attest/internal/testutil"
)

func drain(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestHubLifecycle(t *testing.T) {
	h := NewHub(testutil.DiscardLogger())
	id := uuid.New()

	h.Start(id)
	ch, cancel := h.Subscribe(id)
	defer cancel()

	h.Progress(id, 30, "reading source")
	h.Progress(id, 70, "calling provider")
	h.Complete(id, "done")

	events := drain(ch)
	require.Len(t, events, 4) // started replayed + two progress + completed
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventProgress, events[1].Type)
	assert.Equal(t, 30, events[1].Percent)
	assert.Equal(t, "reading source", events[1].Stage)
	assert.Equal(t, EventProgress, events[2].Type)
	assert.Equal(t, 70, events[2].Percent)
	assert.Equal(t, EventCompleted, events[3].Type)
	assert.Equal(t, 100, events[3].Percent)
}

func TestHubMonotonePercent(t *testing.T) {
	h := NewHub(testutil.DiscardLogger())
	id := uuid.New()

	h.Start(id)
	ch, cancel := h.Subscribe(id)
	defer cancel()

	h.Progress(id, 60, "a")
	h.Progress(id, 40, "b") // must not go backwards
	h.Progress(id, 150, "c")
	h.Fail(id, "provider unavailable")

	events := drain(ch)
	require.Len(t, events, 5)
	assert.Equal(t, 60, events[1].Percent)
	assert.Equal(t, 60, events[2].Percent)
	assert.Equal(t, 100, events[3].Percent)
	assert.Equal(t, EventFailed, events[4].Type)
}

func TestHubTerminalLatch(t *testing.T) {
	h := NewHub(testutil.DiscardLogger())
	id := uuid.New()

	h.Start(id)
	ch, cancel := h.Subscribe(id)
	defer cancel()

	h.Complete(id, "done")
	h.Fail(id, "too late")
	h.Progress(id, 99, "too late")
	h.Complete(id, "again")

	events := drain(ch)
	require.Len(t, events, 2)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventCompleted, events[1].Type)
}

func TestHubReplayAfterTerminal(t *testing.T) {
	h := NewHub(testutil.DiscardLogger())
	id := uuid.New()

	h.Start(id)
	h.Progress(id, 50, "halfway")
	h.Complete(id, "done")

	// Late subscriber gets the full history and an already-closed channel.
	ch, cancel := h.Subscribe(id)
	defer cancel()

	events := drain(ch)
	require.Len(t, events, 3)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventProgress, events[1].Type)
	assert.Equal(t, EventCompleted, events[2].Type)
}

func TestHubUnknownSession(t *testing.T) {
	h := NewHub(testutil.DiscardLogger())

	ch, cancel := h.Subscribe(uuid.New())
	defer cancel()

	assert.Empty(t, drain(ch))
}

func TestHubStartIsIdempotent(t *testing.T) {
	h := NewHub(testutil.DiscardLogger())
	id := uuid.New()

	h.Start(id)
	h.Progress(id, 50, "halfway")
	h.Start(id) // retried request must not reset the sequence

	ch, cancel := h.Subscribe(id)
	defer cancel()
	h.Complete(id, "done")

	events := drain(ch)
	require.Len(t, events, 3)
	assert.Equal(t, 50, events[1].Percent)
}

func TestHubCancelDetaches(t *testing.T) {
	h := NewHub(testutil.DiscardLogger())
	id := uuid.New()

	h.Start(id)
	ch, cancel := h.Subscribe(id)
	cancel()
	cancel() // safe to call twice

	h.Complete(id, "done") // must not panic on the closed channel

	events := drain(ch)
	require.Len(t, events, 1)
	assert.Equal(t, EventStarted, events[0].Type)
}

func TestHubEventsAreJSONShaped(t *testing.T) {
	h := NewHub(testutil.DiscardLogger())
	id := uuid.New()

	h.Start(id)
	ch, cancel := h.Subscribe(id)
	defer cancel()
	h.Complete(id, "done")

	for _, ev := range drain(ch) {
		assert.Equal(t, id, ev.CorrelationID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}
