package generate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/igolaizola/musegen"
	"github.com/igolaizola/musegen/pkg/poll"
	"github.com/igolaizola/musegen/pkg/prediction"
)

type Config struct {
	Debug       bool
	Proxy       string
	Server      string
	KeyEnv      string
	UpstreamURL string
	Interval    time.Duration
	MaxAttempts int

	Prompt   string
	Duration int
	Input    string
	Output   string
	Limit    int

	// Stdin is read in interactive mode, os.Stdin if nil.
	Stdin io.Reader
}

// Run generates clips in one of three modes: a single prompt, a batch read
// from an input file, or interactively with one prompt per stdin line.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("generate: process started")
	defer log.Println("generate: process ended")

	mcfg := &musegen.Config{
		Debug:       cfg.Debug,
		Proxy:       cfg.Proxy,
		Server:      cfg.Server,
		KeyEnv:      cfg.KeyEnv,
		UpstreamURL: cfg.UpstreamURL,
		Interval:    cfg.Interval,
		MaxAttempts: cfg.MaxAttempts,
	}
	backend, client, err := musegen.NewBackend(mcfg)
	if err != nil {
		return fmt.Errorf("generate: couldn't create backend: %w", err)
	}
	loop := musegen.NewLoop(mcfg, backend)

	if cfg.Output != "" {
		if err := os.MkdirAll(cfg.Output, 0755); err != nil {
			return fmt.Errorf("generate: couldn't create output folder: %w", err)
		}
	}
	g := &generator{
		debug:  cfg.Debug,
		loop:   loop,
		client: client,
		output: cfg.Output,
	}

	switch {
	case cfg.Prompt != "":
		o, err := g.single(ctx, &prediction.Request{Prompt: cfg.Prompt, Duration: cfg.Duration})
		if err != nil {
			return err
		}
		if !o.OK() {
			return fmt.Errorf("generate: %s", o.Error)
		}
		return nil
	case cfg.Input != "":
		items, err := readInput(cfg.Input)
		if err != nil {
			return err
		}
		return g.batch(ctx, items, cfg.Duration, cfg.Limit)
	default:
		stdin := cfg.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return g.interactive(ctx, stdin, cfg.Duration)
	}
}

type generator struct {
	debug  bool
	loop   *poll.Loop
	client *http.Client
	output string
}

func (g *generator) notify(e poll.Event) {
	switch {
	case e.Progress:
		log.Printf("generate: %s (check %d)\n", e.Message, e.Attempt)
	case e.State == poll.Polling:
		log.Println("generate: job", e.JobID)
	case g.debug:
		log.Println("generate: state", e.State)
	}
}

func (g *generator) single(ctx context.Context, req *prediction.Request) (*poll.Outcome, error) {
	o, err := g.loop.Run(ctx, req, g.notify)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	g.finish(ctx, o)
	return o, nil
}

func (g *generator) batch(ctx context.Context, items []*item, duration, limit int) error {
	var ok, failed int
	for i, it := range items {
		if limit > 0 && i >= limit {
			break
		}
		d := it.Duration
		if d == 0 {
			d = duration
		}
		o, err := g.single(ctx, &prediction.Request{Prompt: it.Prompt, Duration: d})
		if err != nil {
			return err
		}
		if o.OK() {
			ok++
		} else {
			failed++
		}
	}
	log.Printf("generate: batch finished, %d succeeded, %d failed\n", ok, failed)
	return nil
}

// interactive starts a generation for every line read. A new line supersedes
// the running generation and an empty line dismisses it.
func (g *generator) interactive(ctx context.Context, r io.Reader, duration int) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	// Close runs before wg.Wait so no subscriber call can race with it.
	session := poll.NewSession(g.loop)
	defer session.Close()
	unsubscribe := session.Subscribe(func(s poll.Snapshot) {
		if s.Attempt == "" {
			return
		}
		g.notify(poll.Event{
			State:    s.State,
			JobID:    s.JobID,
			Attempt:  s.Attempts,
			Progress: s.Progress,
			Message:  s.Message,
		})
		if s.State.Terminal() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				g.finish(ctx, s.Outcome)
			}()
		}
	})
	defer unsubscribe()

	fmt.Println("Describe your music, one prompt per line (empty line cancels):")
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Println("generate: couldn't read input:", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("generate: %w", ctx.Err())
		case line, ok := <-lines:
			if !ok {
				if _, err := session.Wait(ctx); err != nil {
					return fmt.Errorf("generate: %w", err)
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				session.Dismiss()
				continue
			}
			id := session.Start(ctx, &prediction.Request{Prompt: line, Duration: duration})
			if g.debug {
				log.Println("generate: attempt", id)
			}
		}
	}
}

func (g *generator) finish(ctx context.Context, o *poll.Outcome) {
	if o == nil {
		return
	}
	if !o.OK() {
		log.Printf("generate: %s %q: %s\n", o.State, o.Prompt, o.Error)
		return
	}
	log.Println("id:", o.JobID)
	log.Println("prompt:", o.Prompt)
	log.Println("url:", o.AudioURL)
	if g.output == "" {
		return
	}
	output := filepath.Join(g.output, musegen.MP3(o.JobID))
	if err := musegen.Download(ctx, g.client, o.AudioURL, output); err != nil {
		log.Println("generate: couldn't download audio:", err)
	}
}
