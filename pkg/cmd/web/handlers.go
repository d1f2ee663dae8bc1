package web

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"

	"github.com/igolaizola/musegen/pkg/poll"
	"github.com/igolaizola/musegen/pkg/prediction"
)

type handlers struct {
	backend poll.Backend
}

type generateRequest struct {
	Prompt   any      `json:"prompt"`
	Duration *float64 `json:"duration"`
}

type statusRequest struct {
	ID any `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, prediction.NewError(prediction.ErrInvalid, "Invalid request body", err))
		return
	}
	// Non-string prompts are validated as empty ones
	prompt, _ := body.Prompt.(string)
	req := &prediction.Request{Prompt: prompt}
	if body.Duration != nil {
		d := math.Round(*body.Duration)
		d = math.Max(d, prediction.MinDuration)
		d = math.Min(d, prediction.MaxDuration)
		req.Duration = int(d)
	}

	handle, err := h.backend.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, handle)
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	var body statusRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, prediction.NewError(prediction.ErrInvalid, "Invalid request body", err))
		return
	}
	id, _ := body.ID.(string)

	status, err := h.backend.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, prediction.ErrInvalid) {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, &errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("web: couldn't encode response:", err)
	}
}
