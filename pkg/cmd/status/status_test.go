package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/igolaizola/musegen/pkg/prediction"
	"gopkg.in/yaml.v3"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predictions/one":
			_, _ = w.Write([]byte(`{"id":"one","status":"succeeded","output":"https://x/a.mp3"}`))
		case "/predictions/many":
			_, _ = w.Write([]byte(`{"id":"many","status":"succeeded","output":["https://x/a.mp3","https://x/b.mp3"]}`))
		case "/predictions/fail":
			_, _ = w.Write([]byte(`{"id":"fail","status":"failed","error":"boom"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	srv := newUpstream(t)
	t.Setenv("MUSEGEN_TEST_KEY", "secret")

	tests := []struct {
		id     string
		format string
		want   string
	}{
		{"one", "yaml", "id: one\nstatus: succeeded\noutput: https://x/a.mp3\n"},
		{"many", "", "id: many\nstatus: succeeded\noutput:\n  - https://x/a.mp3\n  - https://x/b.mp3\n"},
		{"fail", "json", `{"id":"fail","status":"failed","error":"boom"}`},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			var buf bytes.Buffer
			err := Run(context.Background(), &Config{
				KeyEnv:      "MUSEGEN_TEST_KEY",
				UpstreamURL: srv.URL,
				ID:          tt.id,
				Format:      tt.format,
				Writer:      &buf,
			})
			if err != nil {
				t.Fatal(err)
			}
			var got, want map[string]any
			if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
				t.Fatalf("couldn't parse %q: %v", buf.String(), err)
			}
			if err := yaml.Unmarshal([]byte(tt.want), &want); err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("Run() printed %v; want %v", got, want)
			}
			if tt.format == "json" && !json.Valid(buf.Bytes()) {
				t.Fatalf("Run() printed invalid json %q", buf.String())
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	srv := newUpstream(t)
	t.Setenv("MUSEGEN_TEST_KEY", "secret")
	cfg := func(id string) *Config {
		return &Config{KeyEnv: "MUSEGEN_TEST_KEY", UpstreamURL: srv.URL, ID: id, Writer: &bytes.Buffer{}}
	}

	if err := Run(context.Background(), cfg("")); !errors.Is(err, prediction.ErrInvalid) {
		t.Fatalf("Run() err = %v; want ErrInvalid", err)
	}
	if err := Run(context.Background(), cfg("nope")); !errors.Is(err, prediction.ErrUpstream) {
		t.Fatalf("Run() err = %v; want ErrUpstream", err)
	}
	c := cfg("one")
	c.Format = "xml"
	if err := Run(context.Background(), c); err == nil {
		t.Fatal("Run() err = nil; want unsupported format")
	}
}
