package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/igolaizola/musegen"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Debug       bool
	Proxy       string
	Server      string
	KeyEnv      string
	UpstreamURL string

	ID     string
	Format string

	// Writer receives the result, os.Stdout if nil.
	Writer io.Writer
}

type result struct {
	ID     string `json:"id" yaml:"id"`
	Status string `json:"status" yaml:"status"`
	Output any    `json:"output,omitempty" yaml:"output,omitempty"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Run checks the status of a job once and prints it.
func Run(ctx context.Context, cfg *Config) error {
	backend, _, err := musegen.NewBackend(&musegen.Config{
		Debug:       cfg.Debug,
		Proxy:       cfg.Proxy,
		Server:      cfg.Server,
		KeyEnv:      cfg.KeyEnv,
		UpstreamURL: cfg.UpstreamURL,
	})
	if err != nil {
		return fmt.Errorf("status: couldn't create backend: %w", err)
	}
	s, err := backend.Status(ctx, cfg.ID)
	if err != nil {
		return fmt.Errorf("status: couldn't check %s: %w", cfg.ID, err)
	}
	r := &result{
		ID:     cfg.ID,
		Status: s.Status,
		Error:  s.Error,
	}
	if s.Output != nil {
		if s.Output.Single {
			r.Output = s.Output.URL()
		} else {
			r.Output = s.Output.URLs
		}
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	switch cfg.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("status: couldn't encode json: %w", err)
		}
	case "", "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("status: couldn't encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("status: couldn't encode yaml: %w", err)
		}
	default:
		return fmt.Errorf("status: unsupported format: %s", cfg.Format)
	}
	return nil
}
