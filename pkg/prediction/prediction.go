// Package prediction submits music generation jobs to the upstream provider
// and reports their status.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/igolaizola/musegen/pkg/replicate"
)

const (
	// ModelVersion is the MusicGen version hash used for every prediction.
	ModelVersion = "671ac645ce5e552cc63a54a2bbff63fcf798043055d2dac5fc9e36a837eedcfb"

	MinDuration     = 5
	MaxDuration     = 30
	DefaultDuration = 8

	DefaultKeyEnv = "REPLICATE_API_KEY"
)

// Request is a single generation request.
type Request struct {
	Prompt string `json:"prompt"`
	// Duration in seconds, 0 means DefaultDuration.
	Duration int `json:"duration,omitempty"`
}

// Handle identifies a submitted job.
type Handle struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Status is the normalized state of a job.
type Status struct {
	Status string  `json:"status"`
	Output *Output `json:"output,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Succeeded reports whether the job finished with an output.
func (s *Status) Succeeded() bool {
	return s.Status == replicate.StatusSucceeded && s.Output.URL() != ""
}

// Failed reports whether the job ended without output.
func (s *Status) Failed() bool {
	return s.Status == replicate.StatusFailed || s.Status == replicate.StatusCanceled
}

type musicInput struct {
	Prompt                string `json:"prompt"`
	ModelVersion          string `json:"model_version"`
	OutputFormat          string `json:"output_format"`
	NormalizationStrategy string `json:"normalization_strategy"`
	Duration              int    `json:"duration"`
}

// Upstream is the subset of the provider API the service needs.
type Upstream interface {
	CreatePrediction(ctx context.Context, in *replicate.CreatePredictionRequest) (*replicate.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

type Config struct {
	Debug bool
	// KeyEnv is the environment variable holding the provider credential.
	KeyEnv string
	// Key overrides the credential lookup, used by tests.
	Key func() string
	// Upstream builds a provider client for the given credential.
	Upstream func(key string) Upstream
}

type Service struct {
	debug    bool
	keyEnv   string
	key      func() string
	upstream func(key string) Upstream
}

// New returns a service. The credential is resolved on every call, so a
// missing key is reported per request instead of at startup.
func New(cfg *Config) *Service {
	keyEnv := cfg.KeyEnv
	if keyEnv == "" {
		keyEnv = DefaultKeyEnv
	}
	key := cfg.Key
	if key == nil {
		key = func() string {
			return os.Getenv(keyEnv)
		}
	}
	upstream := cfg.Upstream
	if upstream == nil {
		upstream = func(key string) Upstream {
			return replicate.New(&replicate.Config{Key: key, Debug: cfg.Debug})
		}
	}
	return &Service{
		debug:    cfg.Debug,
		keyEnv:   keyEnv,
		key:      key,
		upstream: upstream,
	}
}

func (s *Service) log(format string, args ...interface{}) {
	if s.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

func (s *Service) client() (Upstream, error) {
	key := s.key()
	if key == "" {
		return nil, NewError(ErrConfig, fmt.Sprintf("%s is not set", s.keyEnv), nil)
	}
	return s.upstream(key), nil
}

// Clamp constrains v to the closed range [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Submit validates the request and starts an upstream prediction.
func (s *Service) Submit(ctx context.Context, req *Request) (*Handle, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrInvalidPrompt
	}
	duration := req.Duration
	if duration == 0 {
		duration = DefaultDuration
	}
	duration = Clamp(duration, MinDuration, MaxDuration)

	log.Printf("prediction: generating music with prompt %q (%ds)\n", req.Prompt, duration)
	p, err := c.CreatePrediction(ctx, &replicate.CreatePredictionRequest{
		Version: ModelVersion,
		Input: &musicInput{
			Prompt:                req.Prompt,
			ModelVersion:          "stereo-large",
			OutputFormat:          "mp3",
			NormalizationStrategy: "peak",
			Duration:              duration,
		},
	})
	if err != nil {
		log.Println("prediction: couldn't create prediction:", err)
		return nil, upstreamError("couldn't create prediction", err)
	}
	log.Println("prediction: created", p.ID)
	return &Handle{ID: p.ID, Status: p.Status}, nil
}

// Status returns the current status of a prediction. It has no side effects.
func (s *Service) Status(ctx context.Context, id string) (*Status, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrMissingID
	}
	s.log("prediction: checking status for %s", id)
	p, err := c.GetPrediction(ctx, id)
	if err != nil {
		log.Println("prediction: couldn't check status:", err)
		return nil, upstreamError("couldn't check prediction status", err)
	}
	out, err := parseOutput(p.Output)
	if err != nil {
		return nil, upstreamError("couldn't parse prediction output", err)
	}
	s.log("prediction: %s status %s", id, p.Status)
	return &Status{
		Status: p.Status,
		Output: out,
		Error:  p.ErrorMessage(),
	}, nil
}

func upstreamError(msg string, err error) error {
	var statusErr *replicate.StatusError
	if errors.As(err, &statusErr) {
		msg = fmt.Sprintf("%s (status %d)", msg, statusErr.Code)
		return NewError(ErrUpstream, msg, nil)
	}
	return NewError(ErrUpstream, msg, err)
}
