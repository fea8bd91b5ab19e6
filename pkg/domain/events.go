package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventToken     EventType = "token"
	EventMilestone EventType = "milestone"
	EventFailure   EventType = "failure"
	EventWatchdog  EventType = "watchdog"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Role      Role      `json:"role"`
}

// TokenEvent is emitted for every line read from a lock-test process.
type TokenEvent struct {
	EventBase
	Token Token `json:"token"`
	PID   int   `json:"pid"`
}

// MilestoneEvent is emitted when a driver publishes a milestone.
type MilestoneEvent struct {
	EventBase
	Milestone Milestone `json:"milestone"`
}

// FailureEvent is emitted when a driver stops because of an error.
type FailureEvent struct {
	EventBase
	Code FailureCode `json:"code"`
	Err  error       `json:"-"`
}

// LifecycleHooks defines callbacks for harness observability.
// Hooks are invoked from driver goroutines and must be safe for concurrent use.
type LifecycleHooks struct {
	OnToken     func(context.Context, *TokenEvent)
	OnMilestone func(context.Context, *MilestoneEvent)
	OnFailure   func(context.Context, *FailureEvent)
	OnWatchdog  func(context.Context, *EventBase)
}

// ChainHooks combines several hook sets; each callback runs in argument order.
func ChainHooks(sets ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnToken: func(ctx context.Context, e *TokenEvent) {
			for _, s := range sets {
				if s.OnToken != nil {
					s.OnToken(ctx, e)
				}
			}
		},
		OnMilestone: func(ctx context.Context, e *MilestoneEvent) {
			for _, s := range sets {
				if s.OnMilestone != nil {
					s.OnMilestone(ctx, e)
				}
			}
		},
		OnFailure: func(ctx context.Context, e *FailureEvent) {
			for _, s := range sets {
				if s.OnFailure != nil {
					s.OnFailure(ctx, e)
				}
			}
		},
		OnWatchdog: func(ctx context.Context, e *EventBase) {
			for _, s := range sets {
				if s.OnWatchdog != nil {
					s.OnWatchdog(ctx, e)
				}
			}
		},
	}
}
