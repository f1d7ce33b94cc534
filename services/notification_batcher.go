package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sahilchouksey/learnbridge/model"
)

const (
	// messageBatchWindow is how long after the first unseen message the
	// batched notification is emitted
	messageBatchWindow = 5 * time.Minute

	// snippetMaxLen bounds the message preview inside a notification
	snippetMaxLen = 50
)

// Scheduler abstracts timer creation so the batching window can be
// driven manually in tests
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) CancelFunc
}

// CancelFunc stops a scheduled callback. Returns false if it already fired.
type CancelFunc func() bool

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// NewRealScheduler returns a Scheduler backed by time.AfterFunc
func NewRealScheduler() Scheduler {
	return realScheduler{}
}

type batchKey struct {
	receiverID     uint
	senderID       uint
	conversationID uint
}

type pendingBatch struct {
	cancel      CancelFunc
	lastSnippet string
	senderName  string
	count       int
}

// MessageNotificationBatcher coalesces chat message notifications so a
// burst of messages from one sender produces a single notification per
// window instead of one per message. The first message in a window
// schedules the flush; later messages bump the count and replace the
// snippet, so the notification always previews the latest message.
// Reading the conversation clears the pending batch before it fires.
type MessageNotificationBatcher struct {
	notifier  Notifier
	scheduler Scheduler
	window    time.Duration

	mu      sync.Mutex
	pending map[batchKey]*pendingBatch
}

// NewMessageNotificationBatcher creates a batcher. A nil scheduler
// defaults to real timers.
func NewMessageNotificationBatcher(notifier Notifier, scheduler Scheduler) *MessageNotificationBatcher {
	if scheduler == nil {
		scheduler = NewRealScheduler()
	}
	return &MessageNotificationBatcher{
		notifier:  notifier,
		scheduler: scheduler,
		window:    messageBatchWindow,
		pending:   make(map[batchKey]*pendingBatch),
	}
}

// Enqueue records one unseen message. Only the first message for a
// (receiver, sender, conversation) key starts the window timer.
func (b *MessageNotificationBatcher) Enqueue(receiverID, senderID, conversationID uint, senderName, content string) {
	key := batchKey{receiverID: receiverID, senderID: senderID, conversationID: conversationID}

	b.mu.Lock()
	defer b.mu.Unlock()

	if batch, ok := b.pending[key]; ok {
		batch.count++
		batch.lastSnippet = snippet(content)
		return
	}

	batch := &pendingBatch{
		lastSnippet: snippet(content),
		senderName:  senderName,
		count:       1,
	}
	batch.cancel = b.scheduler.AfterFunc(b.window, func() {
		b.flush(key)
	})
	b.pending[key] = batch
}

// Clear drops the pending batch for a conversation the receiver just
// read. No notification fires for messages already seen.
func (b *MessageNotificationBatcher) Clear(receiverID, senderID, conversationID uint) {
	key := batchKey{receiverID: receiverID, senderID: senderID, conversationID: conversationID}

	b.mu.Lock()
	defer b.mu.Unlock()

	if batch, ok := b.pending[key]; ok {
		batch.cancel()
		delete(b.pending, key)
	}
}

// FlushAll emits every pending batch immediately. Used on shutdown.
func (b *MessageNotificationBatcher) FlushAll() {
	b.mu.Lock()
	keys := make([]batchKey, 0, len(b.pending))
	for key, batch := range b.pending {
		batch.cancel()
		keys = append(keys, key)
	}
	b.mu.Unlock()

	for _, key := range keys {
		b.flush(key)
	}
}

func (b *MessageNotificationBatcher) flush(key batchKey) {
	b.mu.Lock()
	batch, ok := b.pending[key]
	if ok {
		delete(b.pending, key)
	}
	b.mu.Unlock()

	if !ok {
		return
	}

	message := fmt.Sprintf("%s: %s", batch.senderName, batch.lastSnippet)
	if batch.count > 1 {
		message = fmt.Sprintf("%s sent %d messages: %s", batch.senderName, batch.count, batch.lastSnippet)
	}

	err := b.notifier.CreateNotificationsForUsers(context.Background(), []uint{key.receiverID}, NotificationInput{
		EventType:  model.NotificationEventNewMessage,
		EntityType: model.NotificationEntityChat,
		EntityID:   key.conversationID,
		Message:    message,
		Link:       fmt.Sprintf("/chat/%d", key.conversationID),
	})
	if err != nil {
		log.Printf("Failed to flush message notification batch for user %d: %v", key.receiverID, err)
	}
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) <= snippetMaxLen {
		return content
	}
	return string(runes[:snippetMaxLen]) + "..."
}
