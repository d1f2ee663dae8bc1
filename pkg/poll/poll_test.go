package poll

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/igolaizola/musegen/pkg/prediction"
)

// fakeBackend answers status checks from a script; the last entry repeats.
type fakeBackend struct {
	mu        sync.Mutex
	handle    *prediction.Handle
	submitErr error
	script    []*prediction.Status
	checkErr  error
	submits   int
	checks    int
	block     chan struct{}
}

func (f *fakeBackend) Submit(ctx context.Context, req *prediction.Request) (*prediction.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.handle, nil
}

func (f *fakeBackend) Status(ctx context.Context, id string) (*prediction.Status, error) {
	if f.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.block:
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	i := f.checks - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.script[i], nil
}

func (f *fakeBackend) Checks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

func processing() *prediction.Status {
	return &prediction.Status{Status: "processing"}
}

func newLoop(b Backend) *Loop {
	return New(&Config{Interval: time.Millisecond}, b)
}

type recorder struct {
	mu       sync.Mutex
	states   []State
	progress []int
}

func (r *recorder) notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Progress {
		r.progress = append(r.progress, e.Attempt)
		return
	}
	r.states = append(r.states, e.State)
}

func TestRunSucceeded(t *testing.T) {
	script := []*prediction.Status{processing(), processing(), processing(), processing(), {
		Status: "succeeded",
		Output: &prediction.Output{URLs: []string{"https://x/a.mp3"}},
	}}
	b := &fakeBackend{handle: &prediction.Handle{ID: "job", Status: "starting"}, script: script}
	r := &recorder{}

	got, err := newLoop(b).Run(context.Background(), &prediction.Request{Prompt: "calm piano"}, r.notify)
	if err != nil {
		t.Fatalf("Run() err = %v; want nil", err)
	}
	want := []State{Idle, Submitting, Polling, Succeeded}
	if !reflect.DeepEqual(r.states, want) {
		t.Fatalf("states = %v; want %v", r.states, want)
	}
	if got.AudioURL != "https://x/a.mp3" {
		t.Fatalf("AudioURL = %s; want https://x/a.mp3", got.AudioURL)
	}
	if got.Prompt != "calm piano" || !got.OK() {
		t.Fatalf("Run() = %+v", got)
	}
	if b.Checks() != 5 {
		t.Fatalf("checks = %d; want 5", b.Checks())
	}
	if len(r.progress) != 0 {
		t.Fatalf("progress = %v; want none", r.progress)
	}
}

func TestRunTimeout(t *testing.T) {
	b := &fakeBackend{handle: &prediction.Handle{ID: "job"}, script: []*prediction.Status{processing()}}
	r := &recorder{}

	got, err := newLoop(b).Run(context.Background(), &prediction.Request{Prompt: "drone"}, r.notify)
	if err != nil {
		t.Fatalf("Run() err = %v; want nil", err)
	}
	if got.State != TimedOut || got.Error != TimeoutMessage {
		t.Fatalf("Run() = %+v; want timed out", got)
	}
	if b.Checks() != DefaultMaxAttempts {
		t.Fatalf("checks = %d; want %d", b.Checks(), DefaultMaxAttempts)
	}
	// No checks after the terminal state.
	time.Sleep(10 * time.Millisecond)
	if b.Checks() != DefaultMaxAttempts {
		t.Fatalf("checks after timeout = %d; want %d", b.Checks(), DefaultMaxAttempts)
	}
	want := []int{5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55}
	if !reflect.DeepEqual(r.progress, want) {
		t.Fatalf("progress = %v; want %v", r.progress, want)
	}
}

func TestRunProgress(t *testing.T) {
	b := &fakeBackend{handle: &prediction.Handle{ID: "job"}, script: []*prediction.Status{processing()}}
	r := &recorder{}

	// Stop after 13 pending attempts.
	l := New(&Config{Interval: time.Millisecond, MaxAttempts: 13}, b)
	got, err := l.Run(context.Background(), &prediction.Request{Prompt: "x"}, r.notify)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != TimedOut {
		t.Fatalf("state = %s; want %s", got.State, TimedOut)
	}
	if !reflect.DeepEqual(r.progress, []int{5, 10}) {
		t.Fatalf("progress = %v; want [5 10]", r.progress)
	}
}

func TestRunFailed(t *testing.T) {
	tests := []struct {
		name   string
		status *prediction.Status
		want   string
	}{
		{"with message", &prediction.Status{Status: "failed", Error: "NSFW content"}, "NSFW content"},
		{"without message", &prediction.Status{Status: "failed"}, FailedMessage},
		{"canceled", &prediction.Status{Status: "canceled"}, FailedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{handle: &prediction.Handle{ID: "job"}, script: []*prediction.Status{processing(), tt.status}}
			got, err := newLoop(b).Run(context.Background(), &prediction.Request{Prompt: "x"}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if got.State != Failed || got.Error != tt.want {
				t.Fatalf("Run() = %+v; want failed %q", got, tt.want)
			}
			if b.Checks() != 2 {
				t.Fatalf("checks = %d; want 2", b.Checks())
			}
		})
	}
}

func TestRunSucceededWithoutOutputKeepsPolling(t *testing.T) {
	b := &fakeBackend{handle: &prediction.Handle{ID: "job"}, script: []*prediction.Status{
		{Status: "succeeded"},
		{Status: "succeeded", Output: prediction.NewOutput("https://x/b.mp3")},
	}}
	got, err := newLoop(b).Run(context.Background(), &prediction.Request{Prompt: "x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.AudioURL != "https://x/b.mp3" || b.Checks() != 2 {
		t.Fatalf("Run() = %+v after %d checks", got, b.Checks())
	}
}

func TestRunSubmitFailure(t *testing.T) {
	tests := []struct {
		name string
		b    *fakeBackend
		want string
	}{
		{"error", &fakeBackend{submitErr: errors.New("upstream down")}, "upstream down"},
		{"no id", &fakeBackend{handle: &prediction.Handle{Status: "starting"}}, NoJobIDMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			got, err := newLoop(tt.b).Run(context.Background(), &prediction.Request{Prompt: "x"}, r.notify)
			if err != nil {
				t.Fatal(err)
			}
			if got.State != Failed || got.Error != tt.want {
				t.Fatalf("Run() = %+v; want failed %q", got, tt.want)
			}
			want := []State{Idle, Submitting, Failed}
			if !reflect.DeepEqual(r.states, want) {
				t.Fatalf("states = %v; want %v", r.states, want)
			}
			if tt.b.Checks() != 0 || tt.b.submits != 1 {
				t.Fatalf("submits = %d checks = %d; want 1 and 0", tt.b.submits, tt.b.Checks())
			}
		})
	}
}

func TestRunCheckErrorKeepsPolling(t *testing.T) {
	b := &fakeBackend{handle: &prediction.Handle{ID: "job"}, checkErr: errors.New("500")}
	l := New(&Config{Interval: time.Millisecond, MaxAttempts: 3}, b)
	got, err := l.Run(context.Background(), &prediction.Request{Prompt: "x"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != TimedOut || b.Checks() != 3 {
		t.Fatalf("Run() = %+v after %d checks; want timed out after 3", got, b.Checks())
	}
}

func TestRunCancel(t *testing.T) {
	// Status checks block until the context is cancelled.
	b := &fakeBackend{
		handle: &prediction.Handle{ID: "job"},
		script: []*prediction.Status{processing()},
		block:  make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &recorder{}
	l := New(&Config{Interval: time.Millisecond}, b)

	time.AfterFunc(20*time.Millisecond, cancel)
	got, err := l.Run(ctx, &prediction.Request{Prompt: "x"}, r.notify)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() err = %v; want context.Canceled", err)
	}
	if got != nil {
		t.Fatalf("Run() = %+v; want nil", got)
	}
	want := []State{Idle, Submitting, Polling}
	if !reflect.DeepEqual(r.states, want) {
		t.Fatalf("states = %v; want %v", r.states, want)
	}
}
