package generate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
)

type item struct {
	Prompt   string `json:"prompt" csv:"prompt"`
	Duration int    `json:"duration,omitempty" csv:"duration"`
}

// readInput loads prompts from a .csv or .json file. Rows without a prompt
// are skipped.
func readInput(input string) ([]*item, error) {
	b, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("generate: couldn't read input file: %w", err)
	}

	ext := filepath.Ext(input)
	var unmarshal func([]byte) ([]*item, error)
	switch ext {
	case ".json":
		unmarshal = func(b []byte) ([]*item, error) {
			var is []*item
			if err := json.Unmarshal(b, &is); err != nil {
				return nil, fmt.Errorf("couldn't unmarshal items: %w", err)
			}
			return is, nil
		}
	case ".csv":
		unmarshal = func(b []byte) ([]*item, error) {
			var is []*item
			if err := gocsv.UnmarshalBytes(b, &is); err != nil {
				return nil, fmt.Errorf("couldn't unmarshal items: %w", err)
			}
			return is, nil
		}
	default:
		return nil, fmt.Errorf("generate: unsupported input format: %s", ext)
	}
	items, err := unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("generate: couldn't unmarshal input: %w", err)
	}
	var filtered []*item
	for _, i := range items {
		if i == nil || strings.TrimSpace(i.Prompt) == "" {
			continue
		}
		filtered = append(filtered, i)
	}
	return filtered, nil
}
