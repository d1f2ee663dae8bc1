package replicate

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
)

// DefaultBaseURL is the public prediction API endpoint.
const DefaultBaseURL = "https://api.replicate.com/v1"

type Client struct {
	client  *http.Client
	debug   bool
	key     string
	baseURL string
}

type Config struct {
	Debug   bool
	Client  *http.Client
	Key     string
	BaseURL string
}

func New(cfg *Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 60 * time.Second,
		}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		client:  client,
		debug:   cfg.Debug,
		key:     cfg.Key,
		baseURL: baseURL,
	}
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// StatusError is returned when the API answers with a non-2xx status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("replicate: status %d: %s", e.Code, e.Message)
}

// do sends a single request. Failures are never retried here, callers decide.
func (c *Client) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var body []byte
	var reqBody io.Reader
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("replicate: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	logBody := string(body)
	if len(logBody) > 1000 {
		logBody = fmt.Sprintf("[%d bytes]", len(body))
	}
	c.log("replicate: do %s %s %s", method, path, logBody)

	u := fmt.Sprintf("%s/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("replicate: couldn't create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Token %s", c.key))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate: couldn't %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate: couldn't read response body: %w", err)
	}
	c.log("replicate: response %s %s %d %s", method, path, resp.StatusCode, string(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMessage := string(respBody)
		if len(errMessage) > 100 {
			errMessage = errMessage[:100] + "..."
		}
		return nil, &StatusError{Code: resp.StatusCode, Message: errMessage}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("replicate: couldn't unmarshal response body (%T): %w", out, err)
		}
	}
	return respBody, nil
}
