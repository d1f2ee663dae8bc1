package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// Prediction statuses.
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

type CreatePredictionRequest struct {
	Version string `json:"version"`
	Input   any    `json:"input"`
}

type Prediction struct {
	ID          string          `json:"id"`
	Version     string          `json:"version"`
	Status      string          `json:"status"`
	Output      json.RawMessage `json:"output"`
	Error       any             `json:"error"`
	Logs        string          `json:"logs"`
	CreatedAt   string          `json:"created_at"`
	StartedAt   *string         `json:"started_at"`
	CompletedAt *string         `json:"completed_at"`
	URLs        struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

// ErrorMessage returns the prediction error as text. The API reports errors
// either as a plain string or as an object with a message field.
func (p *Prediction) ErrorMessage() string {
	switch v := p.Error.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		if msg, ok := v["message"]; ok {
			return fmt.Sprintf("%v", msg)
		}
		b, _ := json.Marshal(v)
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CreatePrediction starts a new prediction.
func (c *Client) CreatePrediction(ctx context.Context, in *CreatePredictionRequest) (*Prediction, error) {
	var resp Prediction
	if _, err := c.do(ctx, "POST", "predictions", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetPrediction retrieves a prediction by id.
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if id == "" {
		return nil, errors.New("replicate: empty prediction id")
	}
	var resp Prediction
	if _, err := c.do(ctx, "GET", "predictions/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
