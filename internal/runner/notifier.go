package runner

import (
	"time"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/google/uuid"
)

// Notification reports the terminal outcome of one accepted job.
type Notification struct {
	JobID      uuid.UUID
	Request    core.GenerationRequest
	Outcome    core.Outcome
	StartedAt  time.Time
	FinishedAt time.Time
}

// Elapsed is the wall time the job ran for.
func (n Notification) Elapsed() time.Duration {
	return n.FinishedAt.Sub(n.StartedAt)
}

// Notifier receives job notifications on the job's goroutine. The runner is
// already idle when Notify is called, so a Notifier may submit again.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// ChanNotifier delivers notifications on a channel. Use a buffered channel
// if nobody is guaranteed to be receiving.
type ChanNotifier chan Notification

// Notify sends n on the channel.
func (c ChanNotifier) Notify(n Notification) {
	c <- n
}

// Fanout delivers each notification to every notifier in order.
type Fanout []Notifier

// Notify forwards n to each notifier.
func (f Fanout) Notify(n Notification) {
	for _, notifier := range f {
		notifier.Notify(n)
	}
}
