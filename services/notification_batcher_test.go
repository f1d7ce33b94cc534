package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/learnbridge/model"
)

func newBatcherFixture() (*MessageNotificationBatcher, *fakeScheduler, *fakeNotifier) {
	scheduler := &fakeScheduler{}
	notifier := &fakeNotifier{}
	return NewMessageNotificationBatcher(notifier, scheduler), scheduler, notifier
}

func TestBatcherSingleMessage(t *testing.T) {
	batcher, scheduler, notifier := newBatcherFixture()

	batcher.Enqueue(1, 2, 30, "Alice", "hey, quick question about lesson 3")
	assert.Equal(t, 1, scheduler.scheduledCount())

	scheduler.fire()

	calls := notifier.callsFor(model.NotificationEventNewMessage)
	require.Len(t, calls, 1)
	assert.Equal(t, []uint{1}, calls[0].userIDs)
	assert.Equal(t, "Alice: hey, quick question about lesson 3", calls[0].input.Message)
	assert.Equal(t, model.NotificationEntityChat, calls[0].input.EntityType)
	assert.Equal(t, uint(30), calls[0].input.EntityID)
	assert.Equal(t, "/chat/30", calls[0].input.Link)
}

func TestBatcherAggregatesBurst(t *testing.T) {
	batcher, scheduler, notifier := newBatcherFixture()

	batcher.Enqueue(1, 2, 30, "Alice", "first")
	batcher.Enqueue(1, 2, 30, "Alice", "second")
	batcher.Enqueue(1, 2, 30, "Alice", "third")

	// Only the first message starts a window
	assert.Equal(t, 1, scheduler.scheduledCount())

	scheduler.fire()

	calls := notifier.callsFor(model.NotificationEventNewMessage)
	require.Len(t, calls, 1, "a burst collapses into one notification")
	assert.Equal(t, "Alice sent 3 messages: third", calls[0].input.Message,
		"the preview must track the latest message in the burst")
}

func TestBatcherSnippetFollowsLatestMessage(t *testing.T) {
	batcher, scheduler, notifier := newBatcherFixture()

	batcher.Enqueue(1, 2, 30, "Alice", "first message")
	batcher.Enqueue(1, 2, 30, "Alice", "second message")

	scheduler.fire()

	calls := notifier.callsFor(model.NotificationEventNewMessage)
	require.Len(t, calls, 1)
	assert.Equal(t, "Alice sent 2 messages: second message", calls[0].input.Message)
}

func TestBatcherKeysAreIndependent(t *testing.T) {
	batcher, scheduler, notifier := newBatcherFixture()

	batcher.Enqueue(1, 2, 30, "Alice", "to user 1")
	batcher.Enqueue(5, 2, 31, "Alice", "to user 5")
	assert.Equal(t, 2, scheduler.scheduledCount())

	scheduler.fire()
	assert.Len(t, notifier.callsFor(model.NotificationEventNewMessage), 2)
}

func TestBatcherClearCancelsPending(t *testing.T) {
	batcher, scheduler, notifier := newBatcherFixture()

	batcher.Enqueue(1, 2, 30, "Alice", "unread")
	batcher.Clear(1, 2, 30)

	scheduler.fire()
	assert.Empty(t, notifier.callsFor(model.NotificationEventNewMessage),
		"reading the conversation must suppress the pending notification")

	// A new message after the clear starts a fresh window
	batcher.Enqueue(1, 2, 30, "Alice", "new message")
	scheduler.fire()
	calls := notifier.callsFor(model.NotificationEventNewMessage)
	require.Len(t, calls, 1)
	assert.Equal(t, "Alice: new message", calls[0].input.Message)
}

func TestBatcherFlushAll(t *testing.T) {
	batcher, _, notifier := newBatcherFixture()

	batcher.Enqueue(1, 2, 30, "Alice", "one")
	batcher.Enqueue(5, 2, 31, "Alice", "two")

	batcher.FlushAll()
	assert.Len(t, notifier.callsFor(model.NotificationEventNewMessage), 2)

	// Nothing left pending afterwards
	batcher.FlushAll()
	assert.Len(t, notifier.callsFor(model.NotificationEventNewMessage), 2)
}

func TestSnippetTruncation(t *testing.T) {
	short := "short message"
	assert.Equal(t, short, snippet(short))

	long := strings.Repeat("a", 80)
	got := snippet(long)
	assert.Equal(t, strings.Repeat("a", 50)+"...", got)

	// Rune-safe: multibyte content never splits mid-character
	accented := strings.Repeat(" té", 40)
	truncated := snippet(accented)
	assert.Equal(t, 53, len([]rune(truncated)))
}
