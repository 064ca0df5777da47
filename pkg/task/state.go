package task

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Indeterminate is the progress value of a state whose total is unknown.
const Indeterminate = -1

// MaxDepth bounds the sub-task chain of a State.
const MaxDepth = 8

// State is an immutable progress snapshot: a percentage (or Indeterminate),
// a short message and at most one nested sub-task state.
//
// A State may be linked as the sub-task of exactly one parent. Linking it a
// second time, linking it to itself or building a chain deeper than MaxDepth
// is a programming error and panics.
type State struct {
	progress   int
	message    string
	percentage bool
	changed    bool
	sub        *State
	parent     atomic.Pointer[State]
}

// NewState creates a percentage state. sub may be nil.
func NewState(progress int, message string, sub *State) *State {
	return newState(clampProgress(progress), message, true, sub)
}

// NewIndeterminateState creates a state that shows activity rather than a bar.
func NewIndeterminateState(message string, sub *State) *State {
	return newState(Indeterminate, message, false, sub)
}

func newState(progress int, message string, percentage bool, sub *State) *State {
	s := &State{
		progress:   progress,
		message:    message,
		percentage: percentage,
		changed:    true,
	}
	if sub == nil {
		return s
	}
	if sub == s {
		panic("task: a state cannot be its own sub-task")
	}
	if depth := sub.depth(); depth+1 > MaxDepth {
		panic(fmt.Sprintf("task: sub-task chain too deep (%d > %d)", depth+1, MaxDepth))
	}
	if !sub.parent.CompareAndSwap(nil, s) {
		panic("task: sub-task state already has a parent")
	}
	s.sub = sub
	return s
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// depth counts s and every state below it.
func (s *State) depth() int {
	n := 0
	for c := s; c != nil; c = c.sub {
		n++
	}
	return n
}

// Progress returns the percentage in [0,100], or Indeterminate.
func (s *State) Progress() int { return s.progress }

// Message returns the human readable status line.
func (s *State) Message() string { return s.message }

// PercentageProgress is false when progress cannot be expressed as a bar.
func (s *State) PercentageProgress() bool { return s.percentage }

// Changed reports whether this state differs from the one it replaced.
func (s *State) Changed() bool { return s.changed }

// SubTask returns the nested state or nil.
func (s *State) SubTask() *State { return s.sub }

// ParentTaskState returns the state s was linked into, or nil.
func (s *State) ParentTaskState() *State { return s.parent.Load() }

// Clone returns a parentless deep copy of s and its sub-task chain. Use it to
// nest a state that is owned (and possibly re-published) by another producer.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return newState(s.progress, s.message, s.percentage, s.sub.Clone())
}

// Snapshot returns an owned value copy of the whole chain.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Progress:   s.progress,
		Message:    s.message,
		Percentage: s.percentage,
	}
	if s.sub != nil {
		sub := s.sub.Snapshot()
		snap.Sub = &sub
	}
	return snap
}

func (s *State) String() string {
	return s.Snapshot().String()
}

// Snapshot is a plain value copy of a State chain.
type Snapshot struct {
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	Percentage bool      `json:"percentage"`
	Sub        *Snapshot `json:"sub,omitempty"`
}

func (s Snapshot) String() string {
	var b strings.Builder
	for c := &s; c != nil; c = c.Sub {
		if b.Len() > 0 {
			b.WriteString(" > ")
		}
		b.WriteString(c.Message)
		if c.Percentage {
			fmt.Fprintf(&b, " %d%%", c.Progress)
		} else {
			b.WriteString(" ...")
		}
	}
	return b.String()
}

// Reporter publishes the current State of a producer. Progress and message
// are always replaced together so a reader never observes a torn pair.
// The zero value is ready to use.
type Reporter struct {
	mu    sync.Mutex
	state *State
}

// Publish builds and publishes a percentage state.
func (r *Reporter) Publish(progress int, message string, sub *State) *State {
	return r.publish(NewState(progress, message, sub))
}

// PublishIndeterminate builds and publishes an indeterminate state.
func (r *Reporter) PublishIndeterminate(message string, sub *State) *State {
	return r.publish(NewIndeterminateState(message, sub))
}

func (r *Reporter) publish(s *State) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev := r.state; prev != nil && s.sub == nil && prev.sub == nil {
		// s is not visible to anyone yet.
		s.changed = prev.progress != s.progress || prev.message != s.message ||
			prev.percentage != s.percentage
	}
	r.state = s
	return s
}

// Status returns the last published state. Never nil.
func (r *Reporter) Status() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		r.state = NewState(0, "", nil)
	}
	return r.state
}
