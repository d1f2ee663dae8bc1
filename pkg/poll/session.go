package poll

import (
	"context"
	"log"
	"sync"

	"github.com/igolaizola/musegen/pkg/prediction"
	"github.com/oklog/ulid/v2"
)

// Snapshot is the observable state of a session.
type Snapshot struct {
	Attempt  string
	State    State
	JobID    string
	Attempts int
	Progress bool
	Message  string
	Outcome  *Outcome
}

// Session owns the state of one user's generations. Only the attempt started
// last may change it: starting or dismissing cancels the previous attempt and
// its late events are dropped.
//
// Subscribers are called sequentially and must not call Start or Dismiss.
type Session struct {
	loop *Loop

	// deliver serializes state updates with subscriber notifications
	deliver sync.Mutex

	mu       sync.Mutex
	snapshot Snapshot
	cancel   context.CancelFunc
	done     chan struct{}
	subs     map[int]func(Snapshot)
	nextSub  int
}

func NewSession(loop *Loop) *Session {
	done := make(chan struct{})
	close(done)
	return &Session{
		loop:     loop,
		snapshot: Snapshot{State: Idle},
		done:     done,
		subs:     map[int]func(Snapshot){},
	}
}

// Start cancels any running attempt, clears the previous outcome and runs a
// new attempt in the background. It returns the attempt id.
func (s *Session) Start(ctx context.Context, req *prediction.Request) string {
	id := ulid.Make().String()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.reset(Snapshot{Attempt: id, State: Idle}, cancel, done)

	go func() {
		defer close(done)
		defer cancel()
		if _, err := s.loop.Run(ctx, req, func(e Event) {
			s.apply(id, e)
		}); err != nil {
			s.loop.log("poll: attempt %s stopped: %v", id, err)
		}
	}()
	return id
}

// Dismiss cancels any running attempt and returns to idle.
func (s *Session) Dismiss() {
	done := make(chan struct{})
	close(done)
	s.reset(Snapshot{State: Idle}, nil, done)
}

// Close cancels any running attempt and waits for it to stop.
func (s *Session) Close() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	s.Dismiss()
	<-done
}

func (s *Session) reset(snap Snapshot, cancel context.CancelFunc, done chan struct{}) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.done = done
	s.snapshot = snap
	subs := s.subscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Session) apply(attempt string, e Event) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	if s.snapshot.Attempt != attempt {
		s.mu.Unlock()
		log.Printf("poll: dropped %s event from superseded attempt %s\n", e.State, attempt)
		return
	}
	snap := Snapshot{
		Attempt:  attempt,
		State:    e.State,
		JobID:    e.JobID,
		Attempts: e.Attempt,
		Progress: e.Progress,
		Message:  e.Message,
		Outcome:  e.Outcome,
	}
	if snap.JobID == "" {
		snap.JobID = s.snapshot.JobID
	}
	s.snapshot = snap
	subs := s.subscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Session) subscribers() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Subscribe registers fn for every state change. The returned func removes it.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Wait blocks until the current attempt stops and returns the final snapshot.
func (s *Session) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-done:
	}
	return s.Snapshot(), nil
}
