package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/iago/report-relay/internal/domain"
	"github.com/iago/report-relay/internal/messaging"
	"github.com/iago/report-relay/internal/policy"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxRetries = 1
	DefaultBackoff    = 2 * time.Second
)

// Pusher is the slice of the messaging gateway the dispatcher needs.
type Pusher interface {
	GetProfile(ctx context.Context, userID string) (messaging.Profile, error)
	Push(ctx context.Context, to, text, retryKey string) error
}

// Config tunes the retry policy. The zero value means no retries; the env
// layer supplies DefaultMaxRetries.
type Config struct {
	MaxRetries int
	Backoff    time.Duration

	// DisableProbe skips the profile lookup before each attempt.
	DisableProbe bool
}

// Dispatcher delivers pushes with a bounded retry. It never touches the report ledger.
type Dispatcher struct {
	gateway    Pusher
	maxRetries int
	backoff    time.Duration
	probe      bool
	logger     *logrus.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(gateway Pusher, config Config, logger *logrus.Logger) *Dispatcher {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.Backoff <= 0 {
		config.Backoff = DefaultBackoff
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		gateway:    gateway,
		maxRetries: config.MaxRetries,
		backoff:    config.Backoff,
		probe:      !config.DisableProbe,
		logger:     logger,
		wait:       sleepContext,
	}
}

// Send pushes text to recipient using the configured retry budget.
func (d *Dispatcher) Send(ctx context.Context, recipient, text string) error {
	return d.SendWithRetry(ctx, recipient, text, d.maxRetries)
}

// SendWithRetry makes up to maxRetries+1 attempts and returns on the first
// success. The reachability probe is advisory: its failure is logged and the
// push is attempted anyway. When every attempt fails the returned
// *domain.DeliveryError carries the last failure.
func (d *Dispatcher) SendWithRetry(ctx context.Context, recipient, text string, maxRetries int) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryKey := uuid.NewString()
	log := d.logger.WithField("recipient", policy.MaskUserID(recipient))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptLog := log.WithField("attempt", attempt+1)
		if d.probe {
			if _, err := d.gateway.GetProfile(ctx, recipient); err != nil {
				attemptLog.WithError(err).Warn("profile probe failed, recipient may have blocked or not added the bot")
			}
		}

		err := d.gateway.Push(ctx, recipient, text, retryKey)
		if err == nil {
			attemptLog.Info("push delivered")
			return nil
		}
		lastErr = err
		attemptLog.WithError(err).Error("push attempt failed")

		if attempt == maxRetries {
			break
		}
		attemptLog.WithField("backoff_ms", d.backoff.Milliseconds()).Info("waiting before push retry")
		if err := d.wait(ctx, d.backoff); err != nil {
			return &domain.DeliveryError{Recipient: recipient, Attempts: attempt + 1, Err: errors.Join(lastErr, err)}
		}
	}

	log.WithField("attempts", maxRetries+1).Error("all push attempts failed")
	return &domain.DeliveryError{Recipient: recipient, Attempts: maxRetries + 1, Err: lastErr}
}

// PushOnce is the single-attempt path for secondary admin alerts. No probe, no retry.
func (d *Dispatcher) PushOnce(ctx context.Context, recipient, text string) error {
	if err := d.gateway.Push(ctx, recipient, text, uuid.NewString()); err != nil {
		return &domain.DeliveryError{Recipient: recipient, Attempts: 1, Err: err}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
