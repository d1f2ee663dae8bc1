package prediction

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Output is the upstream result: a single URI or a list of URIs.
// The wire shape is preserved while URL always gives one canonical URI.
type Output struct {
	URLs   []string
	Single bool
}

// NewOutput returns a single-URI output.
func NewOutput(u string) *Output {
	return &Output{URLs: []string{u}, Single: true}
}

// URL returns the first URI, or an empty string.
func (o *Output) URL() string {
	if o == nil || len(o.URLs) == 0 {
		return ""
	}
	return o.URLs[0]
}

func (o *Output) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = Output{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = Output{URLs: []string{s}, Single: true}
	case '[':
		var ss []string
		if err := json.Unmarshal(b, &ss); err != nil {
			return fmt.Errorf("prediction: unsupported output list: %w", err)
		}
		*o = Output{URLs: ss}
	default:
		return fmt.Errorf("prediction: unsupported output %s", string(b))
	}
	return nil
}

func (o Output) MarshalJSON() ([]byte, error) {
	if o.Single && len(o.URLs) == 1 {
		return json.Marshal(o.URLs[0])
	}
	if o.URLs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(o.URLs)
}

// parseOutput converts a raw upstream output. Null or absent gives nil.
func parseOutput(raw json.RawMessage) (*Output, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var o Output
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	return &o, nil
}
