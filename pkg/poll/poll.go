// Package poll drives a generation attempt: one submission followed by status
// checks on a fixed interval until the job ends or the attempt budget runs out.
package poll

import (
	"context"
	"log"
	"time"

	"github.com/igolaizola/musegen/pkg/prediction"
)

type State string

const (
	Idle       State = "idle"
	Submitting State = "submitting"
	Polling    State = "polling"
	Succeeded  State = "succeeded"
	Failed     State = "failed"
	TimedOut   State = "timed_out"
)

// Terminal reports whether no further status checks follow this state.
func (s State) Terminal() bool {
	switch s {
	case Succeeded, Failed, TimedOut:
		return true
	default:
		return false
	}
}

const (
	DefaultInterval      = 2 * time.Second
	DefaultMaxAttempts   = 60
	DefaultProgressEvery = 5
)

const (
	FailedMessage   = "Generation failed"
	TimeoutMessage  = "Generation timed out"
	NoJobIDMessage  = "No prediction ID returned"
	progressMessage = "Still generating..."
)

type Submitter interface {
	Submit(ctx context.Context, req *prediction.Request) (*prediction.Handle, error)
}

type Checker interface {
	Status(ctx context.Context, id string) (*prediction.Status, error)
}

// Backend submits jobs and checks their status.
type Backend interface {
	Submitter
	Checker
}

// Outcome is the terminal result of an attempt.
type Outcome struct {
	State    State  `json:"state"`
	JobID    string `json:"job_id,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Error    string `json:"error,omitempty"`
}

// OK reports whether the attempt produced audio.
func (o *Outcome) OK() bool {
	return o != nil && o.State == Succeeded
}

// Event is emitted on every state transition and on progress notifications.
// Progress events don't change the state.
type Event struct {
	State    State
	JobID    string
	Attempt  int
	Progress bool
	Message  string
	Outcome  *Outcome
}

type Config struct {
	Debug         bool
	Interval      time.Duration
	MaxAttempts   int
	ProgressEvery int
}

type Loop struct {
	debug         bool
	backend       Backend
	interval      time.Duration
	maxAttempts   int
	progressEvery int
}

func New(cfg *Config, backend Backend) *Loop {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	progressEvery := cfg.ProgressEvery
	if progressEvery <= 0 {
		progressEvery = DefaultProgressEvery
	}
	return &Loop{
		debug:         cfg.Debug,
		backend:       backend,
		interval:      interval,
		maxAttempts:   maxAttempts,
		progressEvery: progressEvery,
	}
}

func (l *Loop) log(format string, args ...interface{}) {
	if l.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Run executes one attempt and returns its terminal outcome. Failures and
// timeouts are outcomes, not errors. The only error is the context one, in
// which case no terminal event is emitted.
func (l *Loop) Run(ctx context.Context, req *prediction.Request, notify func(Event)) (*Outcome, error) {
	if notify == nil {
		notify = func(Event) {}
	}
	prompt := ""
	if req != nil {
		prompt = req.Prompt
	}
	finish := func(o *Outcome, attempt int) (*Outcome, error) {
		notify(Event{State: o.State, JobID: o.JobID, Attempt: attempt, Message: o.Error, Outcome: o})
		return o, nil
	}

	notify(Event{State: Idle})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Submit
	notify(Event{State: Submitting})
	handle, err := l.backend.Submit(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.log("poll: submit failed: %v", err)
		return finish(&Outcome{State: Failed, Prompt: prompt, Error: err.Error()}, 0)
	}
	if handle == nil || handle.ID == "" {
		return finish(&Outcome{State: Failed, Prompt: prompt, Error: NoJobIDMessage}, 0)
	}
	id := handle.ID
	notify(Event{State: Polling, JobID: id})

	// Poll
	var attempts int
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.interval):
		}
		attempts++
		l.log("poll: check #%d for %s", attempts, id)
		status, err := l.backend.Status(ctx, id)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("poll: couldn't check status of %s: %v\n", id, err)
		case status == nil:
		case status.Succeeded():
			return finish(&Outcome{State: Succeeded, JobID: id, AudioURL: status.Output.URL(), Prompt: prompt}, attempts)
		case status.Failed():
			msg := status.Error
			if msg == "" {
				msg = FailedMessage
			}
			return finish(&Outcome{State: Failed, JobID: id, Prompt: prompt, Error: msg}, attempts)
		default:
			l.log("poll: %s is %s", id, status.Status)
		}
		if attempts >= l.maxAttempts {
			return finish(&Outcome{State: TimedOut, JobID: id, Prompt: prompt, Error: TimeoutMessage}, attempts)
		}
		if attempts%l.progressEvery == 0 {
			notify(Event{State: Polling, JobID: id, Attempt: attempts, Progress: true, Message: progressMessage})
		}
	}
}
