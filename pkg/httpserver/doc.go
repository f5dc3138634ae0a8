// Package httpserver runs the pushd HTTP surface: the websocket endpoint and
// the health probes.
//
// Server wraps http.Server. Run serves until the context is cancelled and then
// shuts down gracefully within the configured deadline, which makes it a good
// fit for an errgroup next to queue workers:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Signal handling belongs to the caller (signal.NotifyContext in main).
//
// Health exposes named dependency checks. Live answers without touching any
// dependency; Ready runs every check with a per-check timeout and reports the
// result of each one as JSON.
//
// RequestID and AccessLog are middlewares for the router. RequestIDExtractor
// plugs the request id into logger.WithContextExtractors so every log line
// written while serving a request carries it.
package httpserver
