package musegen

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/igolaizola/musegen/pkg/api"
	"github.com/igolaizola/musegen/pkg/httpclient"
	"github.com/igolaizola/musegen/pkg/poll"
	"github.com/igolaizola/musegen/pkg/prediction"
	"github.com/igolaizola/musegen/pkg/replicate"
)

type Config struct {
	Debug bool
	Proxy string

	// Server is the base URL of a musegen server. If empty the upstream
	// provider is called directly using the credential in KeyEnv.
	Server      string
	KeyEnv      string
	UpstreamURL string

	Interval      time.Duration
	MaxAttempts   int
	ProgressEvery int
}

// NewBackend returns the backend described by cfg and the HTTP client it uses.
func NewBackend(cfg *Config) (poll.Backend, *http.Client, error) {
	client, err := httpclient.New(2*time.Minute, cfg.Proxy)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Server != "" {
		return api.New(&api.Config{
			Debug:  cfg.Debug,
			Client: client,
			Server: cfg.Server,
		}), client, nil
	}
	return prediction.New(&prediction.Config{
		Debug:  cfg.Debug,
		KeyEnv: cfg.KeyEnv,
		Upstream: func(key string) prediction.Upstream {
			return replicate.New(&replicate.Config{
				Debug:   cfg.Debug,
				Client:  client,
				Key:     key,
				BaseURL: cfg.UpstreamURL,
			})
		},
	}), client, nil
}

// NewLoop returns a poll loop configured from cfg.
func NewLoop(cfg *Config, backend poll.Backend) *poll.Loop {
	return poll.New(&poll.Config{
		Debug:         cfg.Debug,
		Interval:      cfg.Interval,
		MaxAttempts:   cfg.MaxAttempts,
		ProgressEvery: cfg.ProgressEvery,
	}, backend)
}

// Generate generates a clip given a prompt and waits for its outcome.
func Generate(ctx context.Context, cfg *Config, req *prediction.Request, notify func(poll.Event)) (*poll.Outcome, error) {
	backend, _, err := NewBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("musegen: couldn't create backend: %w", err)
	}
	return NewLoop(cfg, backend).Run(ctx, req, notify)
}

// MP3 returns the file name for a job.
func MP3(id string) string {
	return id + ".mp3"
}

// Download writes the contents of url to output.
func Download(ctx context.Context, client *http.Client, url, output string) error {
	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("musegen: couldn't create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("musegen: couldn't download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("musegen: couldn't download audio: status %d", resp.StatusCode)
	}

	// Write audio to output
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("musegen: couldn't create file: %w", err)
	}
	defer f.Close()
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("musegen: couldn't write file: %w", err)
	}
	log.Printf("musegen: downloaded %s (%d bytes)\n", output, n)
	return nil
}
