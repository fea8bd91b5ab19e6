/*
Package watchdog implements a restartable, cancellable deadline timer.

A Timer runs its callback once if it is not restarted or cancelled before the
timeout elapses. It is used to bound the gap between two progress events of a
supervised process: the owner calls Restart before every blocking read and Cancel
when it is done.

	t := watchdog.New(60*time.Second, func() { proc.Kill() }, watchdog.WithName("first-holder"))
	t.Start()
	defer t.Cancel()

	for {
		t.Restart()
		line, err := proc.ReadLine(1024)
		...
	}

A single mutex guards the deadline and the cancelled/fired flags, and a single
waiter goroutine sleeps until the current deadline. The waiter claims the fire
under the mutex, so the callback runs at most once and never after a Cancel that
reported success.
*/
package watchdog

import (
	"sync"
	"time"
)

// Timer is a restartable single-shot countdown.
type Timer struct {
	name     string
	timeout  time.Duration
	callback func()

	mu        sync.Mutex
	deadline  time.Time
	started   bool
	cancelled bool
	fired     bool

	wake chan struct{}
	done chan struct{}
}

// Option configures a Timer.
type Option func(*Timer)

// WithName labels the timer for logs.
func WithName(name string) Option {
	return func(t *Timer) {
		t.name = name
	}
}

// New creates an armed timer. The countdown does not begin until Start is called.
func New(timeout time.Duration, callback func(), opts ...Option) *Timer {
	t := &Timer{
		name:     "watchdog",
		timeout:  timeout,
		callback: callback,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the label given with WithName.
func (t *Timer) Name() string {
	return t.name
}

// Timeout returns the configured countdown length.
func (t *Timer) Timeout() time.Duration {
	return t.timeout
}

// Start begins counting down from now. Calling Start more than once has no effect.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return
	}
	t.started = true
	if t.cancelled {
		close(t.done)
		return
	}
	t.deadline = time.Now().Add(t.timeout)
	go t.run()
}

// Restart pushes the deadline to now plus the timeout.
// It has no effect once the timer was cancelled or has fired.
func (t *Timer) Restart() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelled || t.fired {
		return
	}
	t.deadline = time.Now().Add(t.timeout)
}

// Cancel makes the timer permanently inert.
// It returns true if the callback has not run and never will, false if the
// callback was already claimed by the waiter.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	if t.cancelled {
		prevented := !t.fired
		t.mu.Unlock()
		return prevented
	}
	t.cancelled = true
	prevented := !t.fired
	if !t.started {
		t.started = true
		close(t.done)
	}
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return prevented
}

// Fired reports whether the callback was invoked.
func (t *Timer) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// Deadline returns the current deadline. It is the zero time before Start.
func (t *Timer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// Done is closed once the waiter has exited, either after firing or after Cancel.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

func (t *Timer) run() {
	defer close(t.done)

	for {
		t.mu.Lock()
		if t.cancelled {
			t.mu.Unlock()
			return
		}
		remaining := time.Until(t.deadline)
		if remaining <= 0 {
			t.fired = true
			t.mu.Unlock()
			if t.callback != nil {
				t.callback()
			}
			return
		}
		t.mu.Unlock()

		sleep := time.NewTimer(remaining)
		select {
		case <-sleep.C:
		case <-t.wake:
			sleep.Stop()
		}
	}
}
