package queue

import (
	"context"

	"github.com/iago/report-relay/internal/domain"
)

// Producer hands webhook batches to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, batch domain.InboundBatch) error
}

// Consumer receives webhook batches and runs handler on each. A handler error
// schedules a retry until the backend's attempt budget moves the batch to its DLQ.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, domain.InboundBatch) error) error
}
