// Package messagingtest provides an in-memory LINE gateway for tests.
package messagingtest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/iago/report-relay/internal/messaging"
)

var ErrScripted = errors.New("scripted gateway failure")

type PushCall struct {
	To       string
	Text     string
	RetryKey string
}

type ReplyCall struct {
	Token string
	Text  string
}

// Recorder records every gateway call. Failures are scripted per recipient
// and consumed in order; once a script runs out calls succeed.
type Recorder struct {
	mu sync.Mutex

	pushes   []PushCall
	replies  []ReplyCall
	profiles []string

	pushFailures    map[string][]error
	profileFailures map[string]error
	replyFailure    error

	changed chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{
		pushFailures:    make(map[string][]error),
		profileFailures: make(map[string]error),
		changed:         make(chan struct{}, 1),
	}
}

// FailPush makes the next len(errs) pushes to recipient fail with errs.
func (r *Recorder) FailPush(recipient string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushFailures[recipient] = append(r.pushFailures[recipient], errs...)
}

// FailProfile makes every profile lookup for recipient fail.
func (r *Recorder) FailProfile(recipient string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profileFailures[recipient] = err
}

func (r *Recorder) FailReplies(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replyFailure = err
}

func (r *Recorder) GetProfile(_ context.Context, userID string) (messaging.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles = append(r.profiles, userID)
	if err := r.profileFailures[userID]; err != nil {
		return messaging.Profile{}, err
	}
	return messaging.Profile{UserID: userID, DisplayName: userID}, nil
}

func (r *Recorder) Push(_ context.Context, to, text, retryKey string) error {
	r.mu.Lock()
	defer r.notify()
	defer r.mu.Unlock()

	r.pushes = append(r.pushes, PushCall{To: to, Text: text, RetryKey: retryKey})
	if queued := r.pushFailures[to]; len(queued) > 0 {
		r.pushFailures[to] = queued[1:]
		return queued[0]
	}
	return nil
}

func (r *Recorder) Reply(_ context.Context, replyToken, text string) error {
	r.mu.Lock()
	defer r.notify()
	defer r.mu.Unlock()

	r.replies = append(r.replies, ReplyCall{Token: replyToken, Text: text})
	return r.replyFailure
}

func (r *Recorder) Pushes() []PushCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PushCall(nil), r.pushes...)
}

// PushesTo returns pushes addressed to recipient.
func (r *Recorder) PushesTo(recipient string) []PushCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]PushCall, 0)
	for _, call := range r.pushes {
		if call.To == recipient {
			result = append(result, call)
		}
	}
	return result
}

func (r *Recorder) Replies() []ReplyCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReplyCall(nil), r.replies...)
}

// ReplyFor returns the first reply sent with token.
func (r *Recorder) ReplyFor(token string) (ReplyCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, call := range r.replies {
		if call.Token == token {
			return call, true
		}
	}
	return ReplyCall{}, false
}

func (r *Recorder) ProfileLookups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.profiles...)
}

// WaitFor polls until condition holds or timeout elapses.
func (r *Recorder) WaitFor(timeout time.Duration, condition func(*Recorder) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if condition(r) {
			return true
		}
		select {
		case <-r.changed:
		case <-time.After(10 * time.Millisecond):
		case <-deadline.C:
			return condition(r)
		}
	}
}

// HasPushContaining reports whether recipient received a push containing fragment.
func (r *Recorder) HasPushContaining(recipient, fragment string) bool {
	for _, call := range r.PushesTo(recipient) {
		if strings.Contains(call.Text, fragment) {
			return true
		}
	}
	return false
}

func (r *Recorder) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}
