package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/iago/report-relay/internal/domain"
	"github.com/iago/report-relay/internal/queue"
)

// WebhookService hands raw webhook bodies to the queue for the worker.
type WebhookService struct {
	producer queue.Producer
	now      func() time.Time
}

func NewWebhookService(producer queue.Producer) *WebhookService {
	return &WebhookService{
		producer: producer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *WebhookService) Accept(ctx context.Context, body []byte) (domain.InboundBatch, error) {
	batch := domain.InboundBatch{
		ID:         uuid.NewString(),
		Payload:    append([]byte(nil), body...),
		Attempt:    0,
		ReceivedAt: s.now(),
	}
	if err := s.producer.Enqueue(ctx, batch); err != nil {
		return batch, fmt.Errorf("enqueue webhook batch %s: %w", batch.ID, err)
	}
	return batch, nil
}
