package observability

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/lockstep/pkg/domain"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	At     time.Time
	Role   domain.Role
	Kind   domain.EventType
	Detail string
}

// Transcript records the interleaving of both drivers' events in arrival order.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) add(e domain.EventBase, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{At: e.Timestamp, Role: e.Role, Kind: e.Type, Detail: detail})
}

// Hooks returns lifecycle hooks that append every event to the transcript.
func (t *Transcript) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnToken: func(_ context.Context, e *domain.TokenEvent) {
			t.add(e.EventBase, string(e.Token))
		},
		OnMilestone: func(_ context.Context, e *domain.MilestoneEvent) {
			t.add(e.EventBase, string(e.Milestone))
		},
		OnFailure: func(_ context.Context, e *domain.FailureEvent) {
			t.add(e.EventBase, string(e.Code))
		},
		OnWatchdog: func(_ context.Context, e *domain.EventBase) {
			t.add(*e, "watchdog fired")
		},
	}
}

// Entries returns a copy of the recorded events.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
