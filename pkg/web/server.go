package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liut/kaiwa/pkg/models/convo"
	"github.com/liut/kaiwa/pkg/services/llm"
	"github.com/liut/kaiwa/pkg/services/stores"
	"github.com/liut/kaiwa/pkg/services/tutor"
	"github.com/liut/kaiwa/pkg/settings"
)

type Service interface {
	Serve(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Config struct {
	Addr      string
	Debug     bool
	RateLimit string // like 30-M, empty for unlimited

	DocHandler http.Handler

	// optional, built from settings when nil
	Tutor  *tutor.Tutor
	Preset *convo.Preset
	Redis  stores.RedisClient
}

type server struct {
	Addr string
	cfg  Config

	ar *chi.Mux     // app router
	hs *http.Server // http server

	tutor  *tutor.Tutor
	tutErr error // why tutor is missing
	preset *convo.Preset
	rc     stores.RedisClient // nil: no server side history
}

// New return new web server
func New(cfg Config) Service {
	s := newServer(cfg)

	if cfg.Debug {
		logger().Infow("routes:")
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			route = strings.Replace(route, "/*/", "/", -1)
			fmt.Fprintf(os.Stderr, "DEBUG: %-6s %-24s --> %s (%d mw)\n", method, route, nameOfFunction(handler), len(middlewares))
			return nil
		}

		if err := chi.Walk(s.ar, walkFunc); err != nil {
			logger().Infow("router walk fail", "err", err)
		}
	}
	return s
}

func newServer(cfg Config) *server {
	ar := chi.NewMux()
	if cfg.Debug {
		ar.Use(middleware.Logger)
	}
	ar.Use(middleware.Recoverer, middleware.RealIP)

	s := &server{
		Addr: cfg.Addr, ar: ar,
		cfg:    cfg,
		preset: cfg.Preset,
		rc:     cfg.Redis,
		tutor:  cfg.Tutor,
	}
	if s.preset == nil {
		preset, err := stores.LoadPreset(settings.Current.PresetFile)
		if err == nil {
			logger().Infow("loaded preset", "file", settings.Current.PresetFile)
		}
		s.preset = &preset
	}
	if s.rc == nil && stores.HasRedis() {
		s.rc = stores.SgtRC()
	}
	if s.tutor == nil {
		s.tutor, s.tutErr = newTutor(s.preset)
	}
	s.strapRouter()

	s.hs = &http.Server{
		Addr:              s.Addr,
		Handler:           s.ar,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func newTutor(preset *convo.Preset) (*tutor.Tutor, error) {
	cfg := llm.Config{
		Provider: settings.Current.Provider,
		APIKey:   settings.Current.APIKey,
		Model:    settings.ModelName(),
		BaseURL:  settings.Current.OpenAIBaseURL,
	}
	if cfg.Provider == llm.ProviderOpenAI {
		cfg.APIKey = settings.Current.OpenAIAPIKey
	}
	if len(preset.Model) > 0 && len(settings.Current.Model) == 0 {
		cfg.Model = preset.Model
	}
	gen, err := llm.New(cfg)
	if err != nil {
		logger().Infow("model client unavailable", "provider", cfg.Provider, "err", err)
		return nil, err
	}
	logger().Infow("model client ready", "provider", cfg.Provider, "model", cfg.Model)
	return tutor.New(gen, tutor.Options{
		HistoryLimit: settings.Current.HistoryLimit,
		Timeout:      settings.Current.ChatTimeout,
		PromptMode:   settings.Current.PromptMode,
		Preset:       preset,
	}), nil
}

func (s *server) Serve(ctx context.Context) error {
	// Run HTTP server
	runErrChan := make(chan error)
	t := time.AfterFunc(time.Millisecond*200, func() {
		runErrChan <- s.hs.ListenAndServe()
	})

	defer t.Stop()
	logger().Infow("Listen on", "addr", s.hs.Addr)

	// Wait
	for {
		select {
		case runErr := <-runErrChan:
			if errors.Is(runErr, http.ErrServerClosed) {
				return nil
			}
			if runErr != nil {
				logger().Infow("run http server failed",
					"err", runErr,
				)
				return runErr
			}
		case <-ctx.Done():
			logger().Info("http server has been stopped")
			return ctx.Err()
		}
	}
}

func (s *server) Stop(ctx context.Context) error {
	if err := s.hs.Shutdown(ctx); err != nil {
		logger().Infow("Server Shutdown", "err", err)
		return err
	}
	return nil
}
