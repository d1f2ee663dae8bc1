package web

import (
	"context"
	"embed"
	"fmt"
	iofs "io/fs"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/igolaizola/musegen/pkg/api"
	"github.com/igolaizola/musegen/pkg/httpclient"
	"github.com/igolaizola/musegen/pkg/poll"
	"github.com/igolaizola/musegen/pkg/prediction"
	"github.com/igolaizola/musegen/pkg/replicate"
	"github.com/pkg/browser"
)

type Config struct {
	Debug bool
	Proxy string

	Addr        string
	KeyEnv      string
	UpstreamURL string
	Open        bool
	Credentials map[string]string
}

//go:embed static/*
var staticContent embed.FS

var allowedHeaders = []string{"authorization", "x-client-info", "apikey", "content-type"}

// Serve starts the music generation service.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("web: server started")
	defer log.Println("web: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client, err := httpclient.New(60*time.Second, cfg.Proxy)
	if err != nil {
		return fmt.Errorf("web: couldn't create http client: %w", err)
	}
	svc := prediction.New(&prediction.Config{
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
	})

	handler, err := Handler(cfg, svc)
	if err != nil {
		return err
	}

	// Create server
	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("web: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("web: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: handler,
	}
	errC := make(chan error, 1)
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%d", port)
		}
		log.Printf("Starting server on %s", note)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errC <- fmt.Errorf("web: failed to start server: %w", err)
		}
		close(errC)
	}()

	if cfg.Open {
		if host == "" {
			host = "localhost"
		}
		u := fmt.Sprintf("http://%s:%d", host, port)
		if err := browser.OpenURL(u); err != nil {
			log.Printf("web: couldn't open %s: %v\n", u, err)
		}
	}

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: couldn't shutdown server: %w", err)
	}
	return nil
}

// Handler returns the router serving the API endpoints and the browser UI.
func Handler(cfg *Config, backend poll.Backend) (http.Handler, error) {
	// Create static content
	staticFS, err := iofs.Sub(staticContent, "static")
	if err != nil {
		return nil, fmt.Errorf("web: couldn't load static content: %w", err)
	}

	// Create router
	mux := chi.NewRouter()

	// Add middleware
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(60 * time.Second))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     allowedHeaders,
		OptionsPassthrough: true,
		Debug:              cfg.Debug,
	}))
	if cfg.Debug {
		mux.Use(middleware.Logger)
	}

	// Preflight requests are answered without credentials
	mux.Options(api.GeneratePath, ok)
	mux.Options(api.StatusPath, ok)

	h := &handlers{backend: backend}
	mux.Group(func(r chi.Router) {
		// Add BasicAuth middleware
		if len(cfg.Credentials) > 0 {
			r.Use(middleware.BasicAuth("private", cfg.Credentials))
		}

		// Handler to serve the static files
		r.Get("/*", http.StripPrefix("/", http.FileServer(http.FS(staticFS))).ServeHTTP)

		r.Post(api.GeneratePath, h.generate)
		r.Post(api.StatusPath, h.status)
	})
	return mux, nil
}
