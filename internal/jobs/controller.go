package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Kind names one remote job type.
type Kind string

const (
	KindSpeechSynthesis Kind = "speech-synthesis"
	KindVideoRender     Kind = "video-render"
)

// State is the controller's position in the job lifecycle. Transitions are
// monotonic: idle → submitting → polling → completed|failed, with reset as
// the only way out of a terminal state.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// RemoteStatus is the normalized status reported by the remote service.
type RemoteStatus string

const (
	StatusPending   RemoteStatus = "pending"
	StatusCompleted RemoteStatus = "completed"
	StatusFailed    RemoteStatus = "failed"
)

var (
	ErrJobInFlight = errors.New("a job is already in flight on this controller")
	ErrJobFinished = errors.New("job already finished; reset before submitting again")
	ErrNoJob       = errors.New("no job submitted")
	ErrPollTimeout = errors.New("job polling exceeded the timeout ceiling")
	ErrReset       = errors.New("job was reset")
)

// PollResult is one remote status report. Reason is set only when the
// remote reports failure.
type PollResult[O any] struct {
	Status RemoteStatus
	Output O
	Reason string
}

// Remote is the pair of contracts the controller drives a job through.
type Remote[P, O any] interface {
	Submit(ctx context.Context, payload P) (string, error)
	Poll(ctx context.Context, jobID string) (PollResult[O], error)
}

// ObserverFunc receives the terminal outcome of each job.
type ObserverFunc func(kind Kind, outcome string, attempts int)

type Option[P, O any] func(*Controller[P, O])

func WithObserver[P, O any](observer ObserverFunc) Option[P, O] {
	return func(c *Controller[P, O]) {
		c.observer = observer
	}
}

// WithClock overrides the time source; tests use it.
func WithClock[P, O any](now func() time.Time) Option[P, O] {
	return func(c *Controller[P, O]) {
		c.now = now
	}
}

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// Controller drives one remote asynchronous job from submission to a
// terminal state. At most one job is outstanding at a time; polls are
// strictly sequential.
type Controller[P, O any] struct {
	kind     Kind
	remote   Remote[P, O]
	interval time.Duration
	timeout  time.Duration
	observer ObserverFunc
	now      func() time.Time

	mu         sync.Mutex
	state      State
	jobID      string
	output     O
	failure    error
	attempts   int
	deadline   time.Time
	generation uint64
	cancel     context.CancelFunc
}

func New[P, O any](kind Kind, remote Remote[P, O], interval, timeout time.Duration, opts ...Option[P, O]) *Controller[P, O] {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	c := &Controller[P, O]{
		kind:     kind,
		remote:   remote,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Submit sends the payload to the remote submission endpoint. On success
// the controller records the remote job id and starts polling eligibility;
// on error it lands in failed with no automatic retry.
func (c *Controller[P, O]) Submit(ctx context.Context, payload P) (string, error) {
	c.mu.Lock()
	switch c.state {
	case StateSubmitting, StatePolling:
		c.mu.Unlock()
		return "", ErrJobInFlight
	case StateCompleted, StateFailed:
		c.mu.Unlock()
		return "", ErrJobFinished
	}
	c.state = StateSubmitting
	generation := c.generation
	c.mu.Unlock()

	jobID, err := c.remote.Submit(ctx, payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return "", ErrReset
	}
	if err != nil {
		c.state = StateFailed
		c.failure = err
		c.observeLocked("submit_failed")
		return "", err
	}
	c.state = StatePolling
	c.jobID = jobID
	c.deadline = c.now().Add(c.timeout)
	return jobID, nil
}

// PollOnce advances the controller by a single status check. It is a no-op
// in terminal states, so callers may poll a completed job's snapshot freely.
func (c *Controller[P, O]) PollOnce(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateSubmitting:
		c.mu.Unlock()
		return c.Snapshot(), ErrNoJob
	case StateCompleted, StateFailed:
		c.mu.Unlock()
		return c.Snapshot(), nil
	}
	if c.now().After(c.deadline) {
		c.state = StateFailed
		c.failure = ErrPollTimeout
		c.observeLocked("timeout")
		c.mu.Unlock()
		return c.Snapshot(), nil
	}
	generation := c.generation
	jobID := c.jobID
	c.mu.Unlock()

	result, err := c.remote.Poll(ctx, jobID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return c.snapshotLocked(), ErrReset
	}
	c.attempts++
	if err != nil {
		if ctx.Err() != nil {
			return c.snapshotLocked(), ctx.Err()
		}
		// Transient or ambiguous poll errors are indistinguishable from
		// "not ready yet"; stay polling.
		return c.snapshotLocked(), nil
	}
	switch result.Status {
	case StatusCompleted:
		c.state = StateCompleted
		c.output = result.Output
		c.observeLocked("completed")
	case StatusFailed:
		c.state = StateFailed
		c.failure = fmt.Errorf("remote job failed: %s", result.Reason)
		c.observeLocked("remote_failed")
	}
	return c.snapshotLocked(), nil
}

// Await polls to a terminal state, waiting the configured interval between
// strictly sequential polls and honoring the timeout ceiling. It returns
// the job output on completion and the stored failure otherwise.
func (c *Controller[P, O]) Await(ctx context.Context) (O, error) {
	var zero O

	c.mu.Lock()
	if c.state != StatePolling {
		state := c.state
		c.mu.Unlock()
		switch state {
		case StateCompleted:
			return c.Output()
		case StateFailed:
			_, err := c.Output()
			return zero, err
		default:
			return zero, ErrNoJob
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	for {
		snap, err := c.PollOnce(ctx)
		if err != nil {
			return zero, err
		}
		switch snap.State {
		case StateCompleted:
			return c.Output()
		case StateFailed:
			_, err := c.Output()
			return zero, err
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(c.interval):
		}
	}
}

// Reset stops any in-flight await and returns the controller to idle. The
// remote job is not told to cancel; abandonment is fire-and-forget.
func (c *Controller[P, O]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	var zero O
	c.state = StateIdle
	c.jobID = ""
	c.output = zero
	c.failure = nil
	c.attempts = 0
	c.deadline = time.Time{}
}

// Output returns the stored job output when completed, or the stored
// failure when failed.
func (c *Controller[P, O]) Output() (O, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero O
	switch c.state {
	case StateCompleted:
		return c.output, nil
	case StateFailed:
		return zero, c.failure
	default:
		return zero, ErrNoJob
	}
}

func (c *Controller[P, O]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot describes the controller without its typed output, for status
// reporting.
type Snapshot struct {
	Kind     Kind
	State    State
	JobID    string
	Attempts int
	Error    string
}

func (c *Controller[P, O]) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller[P, O]) snapshotLocked() Snapshot {
	snap := Snapshot{
		Kind:     c.kind,
		State:    c.state,
		JobID:    c.jobID,
		Attempts: c.attempts,
	}
	if c.failure != nil {
		snap.Error = c.failure.Error()
	}
	return snap
}

func (c *Controller[P, O]) observeLocked(outcome string) {
	if c.observer != nil {
		c.observer(c.kind, outcome, c.attempts)
	}
}
