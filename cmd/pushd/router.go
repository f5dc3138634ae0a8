package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/pushkit/pkg/httpserver"
	"github.com/dmitrymomot/pushkit/pkg/ratelimiter"
)

func newRouter(log *slog.Logger, ws http.Handler, connects ratelimiter.RateLimiter, health *httpserver.Health) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.RequestID)
	r.Use(httpserver.AccessLog(log, "/healthz", "/livez"))

	r.Get("/livez", health.Live)
	r.Get("/healthz", health.Ready)
	r.With(ratelimiter.Middleware(connects, ratelimiter.ByRemoteIP)).Get("/ws", ws.ServeHTTP)
	return r
}
