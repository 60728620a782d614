package events

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/iago/report-relay/internal/cache"
	"github.com/iago/report-relay/internal/command"
	"github.com/iago/report-relay/internal/domain"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 8

// CommandHandler interprets one admin text message.
type CommandHandler interface {
	Handle(ctx context.Context, command command.Command) error
}

type Config struct {
	Concurrency int
}

// Router dispatches the events of one webhook batch. Events are independent:
// a failure in one is logged and never stops its siblings.
type Router struct {
	commands    CommandHandler
	replier     command.Replier
	deduper     cache.Deduper
	concurrency int
	logger      *logrus.Logger
}

// NewRouter builds a router. deduper may be nil to disable redelivery checks.
func NewRouter(
	config Config,
	commands CommandHandler,
	replier command.Replier,
	deduper cache.Deduper,
	logger *logrus.Logger,
) *Router {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Router{
		commands:    commands,
		replier:     replier,
		deduper:     deduper,
		concurrency: config.Concurrency,
		logger:      logger,
	}
}

// HandleBatch returns once every event has settled.
func (r *Router) HandleBatch(ctx context.Context, events []domain.Event) {
	var group errgroup.Group
	group.SetLimit(r.concurrency)

	for _, event := range events {
		group.Go(func() error {
			r.settle(ctx, event)
			return nil
		})
	}
	_ = group.Wait()
}

func (r *Router) settle(ctx context.Context, event domain.Event) {
	log := r.logger.WithFields(logrus.Fields{
		"event_type": event.Type,
		"event_id":   event.WebhookEventID,
	})
	defer func() {
		if recovered := recover(); recovered != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("event handler panicked: %v", recovered)
		}
	}()

	if r.alreadySeen(ctx, event, log) {
		log.Info("skipping redelivered event")
		return
	}

	if err := r.route(ctx, event); err != nil {
		log.WithError(err).Error("event handling failed")
	}
}

func (r *Router) route(ctx context.Context, event domain.Event) error {
	switch {
	case event.Type == domain.EventTypeFollow:
		if err := r.replier.Reply(ctx, event.ReplyToken, command.GreetingText); err != nil {
			return fmt.Errorf("greet follower: %w", err)
		}
		return nil
	case event.IsText():
		return r.commands.Handle(ctx, command.Command{
			SenderID:   event.Source.UserID,
			ReplyToken: event.ReplyToken,
			Text:       event.Message.Text,
		})
	default:
		return nil
	}
}

// alreadySeen fails open: a dedupe backend error lets the event through.
func (r *Router) alreadySeen(ctx context.Context, event domain.Event, log *logrus.Entry) bool {
	if r.deduper == nil || event.WebhookEventID == "" {
		return false
	}
	first, err := r.deduper.MarkSeen(ctx, event.WebhookEventID)
	if err != nil {
		log.WithError(err).Warn("event dedupe unavailable")
		return false
	}
	return !first
}
