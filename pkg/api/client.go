// Package api is a client for the musegen HTTP endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/igolaizola/musegen/pkg/prediction"
)

const (
	GeneratePath = "/api/generate-music"
	StatusPath   = "/api/check-music-status"
)

type Client struct {
	client *http.Client
	debug  bool
	server string
}

type Config struct {
	Debug  bool
	Client *http.Client
	// Server is the base URL of a musegen server, e.g. http://localhost:1337.
	Server string
}

func New(cfg *Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	return &Client{
		client: client,
		debug:  cfg.Debug,
		server: strings.TrimRight(cfg.Server, "/"),
	}
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Error is an error answer from the server. Its text is the server message.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// Is maps the answer to the prediction error kinds.
func (e *Error) Is(target error) bool {
	if e.StatusCode == http.StatusBadRequest {
		return target == prediction.ErrInvalid
	}
	return target == prediction.ErrUpstream
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusRequest struct {
	ID string `json:"id"`
}

// Submit asks the server to start a generation.
func (c *Client) Submit(ctx context.Context, req *prediction.Request) (*prediction.Handle, error) {
	if req == nil {
		req = &prediction.Request{}
	}
	var resp prediction.Handle
	if err := c.do(ctx, GeneratePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status asks the server for the status of a generation.
func (c *Client) Status(ctx context.Context, id string) (*prediction.Status, error) {
	var resp prediction.Status
	if err := c.do(ctx, StatusPath, &statusRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("api: couldn't marshal request body: %w", err)
	}
	c.log("api: do POST %s %s", path, string(body))

	u := c.server + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("api: couldn't create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("api: couldn't post %s: %w", u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: couldn't read response body: %w", err)
	}
	c.log("api: response %s %d %s", path, resp.StatusCode, string(respBody))

	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if err := json.Unmarshal(respBody, &e); err != nil || e.Error == "" {
			msg := string(respBody)
			if len(msg) > 100 {
				msg = msg[:100] + "..."
			}
			e.Error = fmt.Sprintf("api: status %d: %s", resp.StatusCode, msg)
		}
		return &Error{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("api: couldn't unmarshal response body (%T): %w", out, err)
	}
	return nil
}
