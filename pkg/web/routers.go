package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/liut/kaiwa/pkg/settings"
)

type M = render.M

func (s *server) corsMw() func(next http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Conversation-ID"},
		MaxAge:         300,
	}
	if settings.AllowAllOrigins() {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = settings.Current.AllowOrigins
	}
	return cors.Handler(opts)
}

func (s *server) rateMw() func(next http.Handler) http.Handler {
	if len(s.cfg.RateLimit) == 0 {
		return nil
	}
	rate, err := limiter.NewRateFromFormatted(s.cfg.RateLimit)
	if err != nil {
		logger().Infow("invalid rate limit", "rate", s.cfg.RateLimit, "err", err)
		return nil
	}
	store := memory.NewStore()
	if s.rc != nil {
		rs, err := sredis.NewStoreWithOptions(s.rc, limiter.StoreOptions{Prefix: "kaiwa-limiter"})
		if err == nil {
			store = rs
		} else {
			logger().Infow("limiter redis store fail, use memory", "err", err)
		}
	}
	mw := stdlib.NewMiddleware(limiter.New(store, rate), stdlib.WithLimitReachedHandler(handleLimitReached))
	return mw.Handler
}

func (s *server) strapRouter() {
	s.ar.MethodNotAllowed(handleMethodNotAllowed)

	s.ar.Get("/ping", handlerPing)

	s.ar.Route("/api", func(r chi.Router) {
		r.Use(s.corsMw())
		if mw := s.rateMw(); mw != nil {
			r.Use(mw)
		}
		r.MethodNotAllowed(handleMethodNotAllowed)
		r.NotFound(handleNotFound)

		r.Get("/levels", s.getLevels)
		r.Get("/welcome", s.getWelcome)
		r.Post("/chat", s.postChat)
		r.Post("/chat-sse", s.postChatSSE)
		r.Get("/history/{cid}", s.getHistory)
		r.Delete("/history/{cid}", s.clearHistory)
	})

	if s.cfg.DocHandler != nil {
		s.ar.Get("/", s.cfg.DocHandler.ServeHTTP)
		s.ar.NotFound(s.cfg.DocHandler.ServeHTTP)
	}
}

func handlerPing(w http.ResponseWriter, r *http.Request) {
	render.Data(w, r, []byte("Pong\n"))
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	apiFail(w, r, http.StatusMethodNotAllowed, "Method Not Allowed")
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	apiFail(w, r, http.StatusNotFound, "Not Found")
}

func handleLimitReached(w http.ResponseWriter, r *http.Request) {
	apiFail(w, r, http.StatusTooManyRequests, "Too many requests, slow down a little.")
}

func apiFail(w http.ResponseWriter, r *http.Request, status int, err interface{}) {
	res := render.M{
		"status": status,
	}
	switch ret := err.(type) {
	case error:
		res["error"] = ret.Error()
	case fmt.Stringer:
		res["error"] = ret.String()
	case string:
		res["error"] = ret
	default:
		res["error"] = fmt.Sprint(ret)
	}
	render.Status(r, status)
	render.JSON(w, r, res)
}

type RespDone struct {
	Status int `json:"status"`
	Data   any `json:"data,omitempty"`
	Count  int `json:"count,omitempty"`
}

func apiOk(w http.ResponseWriter, r *http.Request, args ...any) {
	res := &RespDone{}
	if len(args) > 0 && args[0] != nil {
		res.Data = args[0]
		if len(args) > 1 {
			if c, ok := args[1].(int); ok {
				res.Count = c
			}
		}
	}

	render.JSON(w, r, res)
}
