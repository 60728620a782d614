package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iago/report-relay/internal/cache"
	"github.com/iago/report-relay/internal/command"
	"github.com/iago/report-relay/internal/domain"
	"github.com/iago/report-relay/internal/messaging/messagingtest"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu       sync.Mutex
	commands []command.Command
	fail     map[string]error
	panicOn  string
	delay    time.Duration
}

func (h *recordingHandler) Handle(_ context.Context, cmd command.Command) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	if cmd.Text == h.panicOn && h.panicOn != "" {
		panic("boom")
	}
	h.mu.Lock()
	h.commands = append(h.commands, cmd)
	h.mu.Unlock()
	return h.fail[cmd.Text]
}

func (h *recordingHandler) texts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	texts := make([]string, 0, len(h.commands))
	for _, cmd := range h.commands {
		texts = append(texts, cmd.Text)
	}
	return texts
}

type brokenDeduper struct{}

func (brokenDeduper) MarkSeen(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func textEvent(id, sender, token, text string) domain.Event {
	return domain.Event{
		Type:           domain.EventTypeMessage,
		ReplyToken:     token,
		WebhookEventID: id,
		Source:         domain.EventSource{Type: "user", UserID: sender},
		Message:        &domain.EventMessage{ID: "m-" + id, Type: domain.MessageTypeText, Text: text},
	}
}

func newTestRouter(handler CommandHandler, deduper cache.Deduper) (*Router, *messagingtest.Recorder, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	recorder := messagingtest.NewRecorder()
	return NewRouter(Config{Concurrency: 4}, handler, recorder, deduper, logger), recorder, hook
}

func TestRouterRoutesFollowAndText(t *testing.T) {
	handler := &recordingHandler{}
	router, recorder, _ := newTestRouter(handler, nil)

	router.HandleBatch(context.Background(), []domain.Event{
		{Type: domain.EventTypeFollow, ReplyToken: "follow-token", Source: domain.EventSource{UserID: "U9"}},
		textEvent("e1", "UADMIN", "tok-1", "รายงาน"),
	})

	greeting, ok := recorder.ReplyFor("follow-token")
	require.True(t, ok)
	assert.Equal(t, command.GreetingText, greeting.Text)
	require.Len(t, handler.commands, 1)
	assert.Equal(t, command.Command{SenderID: "UADMIN", ReplyToken: "tok-1", Text: "รายงาน"}, handler.commands[0])
}

func TestRouterIgnoresNonTextEvents(t *testing.T) {
	handler := &recordingHandler{}
	router, recorder, _ := newTestRouter(handler, nil)

	router.HandleBatch(context.Background(), []domain.Event{
		{Type: domain.EventTypeMessage, ReplyToken: "sticker", Message: &domain.EventMessage{Type: "sticker"}},
		{Type: "unfollow", Source: domain.EventSource{UserID: "U1"}},
		{Type: "postback", ReplyToken: "pb"},
	})

	assert.Empty(t, handler.texts())
	assert.Empty(t, recorder.Replies())
}

func TestRouterFailureDoesNotStopSiblings(t *testing.T) {
	handler := &recordingHandler{
		fail:    map[string]error{"first": errors.New("store offline")},
		panicOn: "second",
	}
	router, _, hook := newTestRouter(handler, nil)

	router.HandleBatch(context.Background(), []domain.Event{
		textEvent("e1", "UADMIN", "t1", "first"),
		textEvent("e2", "UADMIN", "t2", "second"),
		textEvent("e3", "UADMIN", "t3", "third"),
	})

	assert.ElementsMatch(t, []string{"first", "third"}, handler.texts())

	var messages []string
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			messages = append(messages, entry.Message)
		}
	}
	assert.Contains(t, messages, "event handling failed")
	assert.Contains(t, messages, "event handler panicked: boom")
}

func TestRouterWaitsForAllEvents(t *testing.T) {
	handler := &recordingHandler{delay: 20 * time.Millisecond}
	router, _, _ := newTestRouter(handler, nil)

	events := make([]domain.Event, 0, 10)
	for i := range 10 {
		events = append(events, textEvent("", "UADMIN", "tok", string(rune('a'+i))))
	}
	router.HandleBatch(context.Background(), events)

	assert.Len(t, handler.texts(), 10)
}

func TestRouterSkipsRedeliveredEvents(t *testing.T) {
	handler := &recordingHandler{}
	deduper := cache.NewMemoryDeduper(cache.Config{TTL: time.Minute, MaxEntries: 16})
	router, _, hook := newTestRouter(handler, deduper)

	event := textEvent("evt-1", "UADMIN", "t1", "เรียบร้อย")
	router.HandleBatch(context.Background(), []domain.Event{event})
	event.DeliveryContext.IsRedelivery = true
	router.HandleBatch(context.Background(), []domain.Event{event})

	assert.Equal(t, []string{"เรียบร้อย"}, handler.texts())
	assert.Equal(t, "skipping redelivered event", hook.LastEntry().Message)
}

func TestRouterDedupeFailsOpen(t *testing.T) {
	handler := &recordingHandler{}
	router, _, hook := newTestRouter(handler, brokenDeduper{})

	router.HandleBatch(context.Background(), []domain.Event{textEvent("evt-1", "UADMIN", "t1", "รายงาน")})

	assert.Equal(t, []string{"รายงาน"}, handler.texts())
	assert.Equal(t, logrus.WarnLevel, hook.Entries[0].Level)
}
