package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TaskResult is what a background task reports once it settles.
type TaskResult struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Tasks runs fire-and-forget work. Tasks outlive the request that spawned
// them, so they get a context that keeps its values but drops cancellation.
type Tasks struct {
	logger *logrus.Logger
	wg     sync.WaitGroup

	mu        sync.RWMutex
	observers []func(TaskResult)
}

func NewTasks(logger *logrus.Logger) *Tasks {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tasks{logger: logger}
}

// Observe registers fn to receive every result after it is logged.
func (t *Tasks) Observe(fn func(TaskResult)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

func (t *Tasks) Go(ctx context.Context, name string, fn func(context.Context) error) {
	detached := context.WithoutCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		started := time.Now()
		err := t.run(detached, fn)
		t.settle(TaskResult{Name: name, Err: err, Duration: time.Since(started)})
	}()
}

// Wait blocks until every spawned task has settled.
func (t *Tasks) Wait() {
	t.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (t *Tasks) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tasks) run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("task panicked: %v\n%s", recovered, debug.Stack())
		}
	}()
	return fn(ctx)
}

func (t *Tasks) settle(result TaskResult) {
	entry := t.logger.WithFields(logrus.Fields{
		"task":        result.Name,
		"duration_ms": result.Duration.Milliseconds(),
	})
	if result.Err != nil {
		entry.WithError(result.Err).Error("background task failed")
	} else {
		entry.Debug("background task finished")
	}

	t.mu.RLock()
	observers := append([]func(TaskResult){}, t.observers...)
	t.mu.RUnlock()
	for _, observe := range observers {
		observe(result)
	}
}
