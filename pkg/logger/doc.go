// Package logger builds *slog.Logger instances for pushkit services and keeps
// attribute keys uniform across packages.
//
// New creates a JSON or text logger configured by functional options. The
// handler is wrapped with a decorator that runs registered ContextExtractor
// callbacks on every record, so request or job scoped values (tenant id, task
// id) end up in the output without threading a logger through every call.
//
// # Usage
//
//	log := logger.New(logger.WithEnvironment(cfg.Env, "pushd"))
//	log.InfoContext(ctx, "push dispatched",
//		logger.TenantID(tenantID),
//		logger.LogID(entry.ID),
//		logger.Provider(string(kind)),
//	)
//
// Attribute helpers return an empty slog.Attr for nil input, which slog drops.
// Never pass credentials or full device tokens to a logger; use Token to log a
// shortened, non-reversible form.
package logger
