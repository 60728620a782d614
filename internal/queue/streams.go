package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iago/report-relay/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type StreamsConfig struct {
	Addr        string
	Password    string
	DB          int
	Stream      string
	DLQStream   string
	Group       string
	Consumer    string
	MaxAttempts int
	Logger      *logrus.Logger
}

// StreamsQueue implements Producer+Consumer backed by Redis Streams.
type StreamsQueue struct {
	client      *redis.Client
	stream      string
	dlqStream   string
	group       string
	consumer    string
	maxAttempts int
	logger      *logrus.Logger
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	queue, err := NewStreamsQueueFromClient(ctx, client, cfg)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return queue, nil
}

// NewStreamsQueueFromClient wraps an existing client and creates the consumer group.
func NewStreamsQueueFromClient(ctx context.Context, client *redis.Client, cfg StreamsConfig) (*StreamsQueue, error) {
	if cfg.Stream == "" {
		cfg.Stream = "line_events"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = "line_events_dlq"
	}
	if cfg.Group == "" {
		cfg.Group = "relay_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "relay-1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	queue := &StreamsQueue{
		client:      client,
		stream:      cfg.Stream,
		dlqStream:   cfg.DLQStream,
		group:       cfg.Group,
		consumer:    cfg.Consumer,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
	}
	if err := queue.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return queue, nil
}

// Client exposes the underlying connection so other Redis-backed components can share it.
func (q *StreamsQueue) Client() *redis.Client {
	return q.client
}

func (q *StreamsQueue) Close() error {
	return q.client.Close()
}

func (q *StreamsQueue) Enqueue(ctx context.Context, batch domain.InboundBatch) error {
	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: batchValues(batch),
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue to stream: %w", err)
	}
	return nil
}

func (q *StreamsQueue) Consume(ctx context.Context, handler func(context.Context, domain.InboundBatch) error) error {
	if err := q.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{q.stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}

		for _, stream := range streams {
			for _, item := range stream.Messages {
				q.handleItem(ctx, item, handler)
			}
		}
	}
}

func (q *StreamsQueue) handleItem(
	ctx context.Context,
	item redis.XMessage,
	handler func(context.Context, domain.InboundBatch) error,
) {
	// Settle the entry even if shutdown began; an unacked entry read with ">"
	// would sit in the pending list.
	ctx = context.WithoutCancel(ctx)
	batch, parseErr := parseStreamMessage(item)
	if parseErr != nil {
		q.deadLetter(ctx, domain.InboundBatch{}, item, parseErr.Error())
		q.ack(ctx, item.ID)
		return
	}

	handleErr := handler(ctx, batch)
	if handleErr == nil {
		q.ack(ctx, item.ID)
		return
	}

	batch.Attempt++
	if batch.Attempt >= q.maxAttempts {
		q.deadLetter(ctx, batch, item, handleErr.Error())
		q.ack(ctx, item.ID)
		return
	}

	if requeueErr := q.Enqueue(ctx, batch); requeueErr != nil {
		q.deadLetter(ctx, batch, item, fmt.Sprintf("requeue failed: %v", requeueErr))
	}
	q.ack(ctx, item.ID)
}

func (q *StreamsQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ack(ctx context.Context, streamID string) {
	if err := q.ackAndDelete(ctx, streamID); err != nil && q.logger != nil {
		q.logger.WithError(err).WithField("stream_id", streamID).Warn("stream ack failed")
	}
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, streamID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, streamID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.XDel(ctx, q.stream, streamID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func (q *StreamsQueue) deadLetter(ctx context.Context, batch domain.InboundBatch, item redis.XMessage, reason string) {
	err := q.sendToDLQ(ctx, batch, item, reason)
	if q.logger == nil {
		return
	}
	entry := q.logger.WithFields(logrus.Fields{"stream_id": item.ID, "batch_id": batch.ID, "reason": reason})
	if err != nil {
		entry.WithError(err).Error("dead-letter write failed")
		return
	}
	entry.Error("stream batch moved to DLQ")
}

func (q *StreamsQueue) sendToDLQ(
	ctx context.Context,
	batch domain.InboundBatch,
	item redis.XMessage,
	errorMessage string,
) error {
	values := batchValues(batch)
	values["stream_id"] = item.ID
	values["error"] = errorMessage
	values["moved_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.dlqStream, Values: values}).Result(); err != nil {
		return fmt.Errorf("send to dlq: %w", err)
	}
	return nil
}

func batchValues(batch domain.InboundBatch) map[string]any {
	return map[string]any{
		"batch_id":    batch.ID,
		"payload":     string(batch.Payload),
		"attempt":     batch.Attempt,
		"received_at": batch.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseStreamMessage(item redis.XMessage) (domain.InboundBatch, error) {
	getString := func(key string) (string, error) {
		value, ok := item.Values[key]
		if !ok {
			return "", fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}

	batchID, err := getString("batch_id")
	if err != nil {
		return domain.InboundBatch{}, err
	}

	payloadString, err := getString("payload")
	if err != nil {
		return domain.InboundBatch{}, err
	}

	attemptString, err := getString("attempt")
	if err != nil {
		return domain.InboundBatch{}, err
	}
	attempt, err := strconv.Atoi(attemptString)
	if err != nil {
		return domain.InboundBatch{}, fmt.Errorf("invalid attempt: %w", err)
	}

	receivedAtString, err := getString("received_at")
	if err != nil {
		return domain.InboundBatch{}, err
	}
	receivedAt, err := time.Parse(time.RFC3339Nano, receivedAtString)
	if err != nil {
		return domain.InboundBatch{}, fmt.Errorf("invalid received_at: %w", err)
	}

	return domain.InboundBatch{
		ID:         batchID,
		Payload:    []byte(payloadString),
		Attempt:    attempt,
		ReceivedAt: receivedAt,
	}, nil
}
