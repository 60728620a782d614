package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iago/report-relay/internal/domain"
	"github.com/iago/report-relay/internal/queue"
	"github.com/sirupsen/logrus"
)

// BatchHandler settles every event of a decoded webhook batch.
type BatchHandler interface {
	HandleBatch(ctx context.Context, events []domain.Event)
}

// Processor consumes queued webhook batches and hands their events to the router.
type Processor struct {
	consumer     queue.Consumer
	handler      BatchHandler
	logger       *logrus.Logger
	restartDelay time.Duration
	done         chan struct{}
}

func NewProcessor(consumer queue.Consumer, handler BatchHandler, logger *logrus.Logger) *Processor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Processor{
		consumer:     consumer,
		handler:      handler,
		logger:       logger,
		restartDelay: 2 * time.Second,
		done:         make(chan struct{}),
	}
}

// Start consumes until ctx is done. It must be called once; Wait reports
// when it has returned.
func (p *Processor) Start(ctx context.Context) {
	defer close(p.done)
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processBatch)
		if err == nil || ctx.Err() != nil {
			return
		}
		p.logger.WithError(err).Error("worker consume loop error")

		timer := time.NewTimer(p.restartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Wait blocks until Start has returned, which includes the batch in flight.
func (p *Processor) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// processBatch only fails when the payload cannot be decoded. Event-level
// failures are settled and logged by the handler.
func (p *Processor) processBatch(ctx context.Context, batch domain.InboundBatch) error {
	var payload domain.WebhookPayload
	if err := json.Unmarshal(batch.Payload, &payload); err != nil {
		return fmt.Errorf("decode webhook batch %s: %w", batch.ID, err)
	}

	// A batch taken off the queue is finished even when shutdown starts mid-way.
	started := time.Now()
	p.handler.HandleBatch(context.WithoutCancel(ctx), payload.Events)

	p.logger.WithFields(logrus.Fields{
		"batch_id":    batch.ID,
		"events":      len(payload.Events),
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("webhook batch processed")
	return nil
}
