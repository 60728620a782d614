package queue

import (
	"context"
	"sync"
	"time"

	"github.com/iago/report-relay/internal/domain"
	"github.com/sirupsen/logrus"
)

// LocalQueue is the in-process fallback used when Redis is not configured.
type LocalQueue struct {
	ch          chan domain.InboundBatch
	maxAttempts int
	retryDelay  time.Duration
	logger      *logrus.Logger

	dlqMu sync.Mutex
	dlq   []domain.InboundBatch
}

func NewLocalQueue(bufferSize, maxAttempts int, logger *logrus.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &LocalQueue{
		ch:          make(chan domain.InboundBatch, bufferSize),
		maxAttempts: maxAttempts,
		retryDelay:  500 * time.Millisecond,
		logger:      logger,
		dlq:         make([]domain.InboundBatch, 0),
	}
}

func (q *LocalQueue) Enqueue(ctx context.Context, batch domain.InboundBatch) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- batch:
		return nil
	}
}

func (q *LocalQueue) Consume(ctx context.Context, handler func(context.Context, domain.InboundBatch) error) error {
	for {
		if ctx.Err() != nil {
			q.drain(ctx, handler)
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			q.drain(ctx, handler)
			return ctx.Err()
		case batch := <-q.ch:
			err := handler(ctx, batch)
			if err == nil {
				continue
			}

			batch.Attempt++
			// A delayed requeue would be lost once the consumer stops.
			if batch.Attempt >= q.maxAttempts || ctx.Err() != nil {
				q.deadLetter(batch, err)
				continue
			}

			delay := time.Duration(batch.Attempt) * q.retryDelay
			go func(retry domain.InboundBatch) {
				timer := time.NewTimer(delay)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					q.deadLetter(retry, ctx.Err())
				case <-timer.C:
					select {
					case q.ch <- retry:
					case <-ctx.Done():
						q.deadLetter(retry, ctx.Err())
					}
				}
			}(batch)
		}
	}
}

// drain hands over the batches still buffered at shutdown. They get one
// attempt each, since retries would outlive the consumer.
func (q *LocalQueue) drain(ctx context.Context, handler func(context.Context, domain.InboundBatch) error) {
	for {
		select {
		case batch := <-q.ch:
			if err := handler(ctx, batch); err != nil {
				batch.Attempt++
				q.deadLetter(batch, err)
			}
		default:
			return
		}
	}
}

func (q *LocalQueue) deadLetter(batch domain.InboundBatch, err error) {
	if q.logger != nil {
		q.logger.WithError(err).WithField("batch_id", batch.ID).Error("local queue moved batch to DLQ")
	}
	q.dlqMu.Lock()
	q.dlq = append(q.dlq, batch)
	q.dlqMu.Unlock()
}

func (q *LocalQueue) DLQSize() int {
	q.dlqMu.Lock()
	defer q.dlqMu.Unlock()
	return len(q.dlq)
}
