// Package pg bootstraps PostgreSQL access on pgx/v5: pooled connections with
// retry, goose migrations from an embedded filesystem, a health check, and
// helpers that classify pgx errors.
//
// # Usage
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
//	    return err
//	}
//
// Stores depend on the DB interface rather than *pgxpool.Pool so the same code
// runs against a pool or inside a transaction.
//
// [IsNotFoundError] lets stores map pgx.ErrNoRows to their own not found
// sentinel.
package pg
