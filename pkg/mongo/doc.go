// Package mongo connects to MongoDB with the official v2 driver, using
// environment-driven configuration, connect retries and a ping health check.
//
// # Usage
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.NewWithDatabase(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Client().Disconnect(context.Background())
//
//	health := mongo.Healthcheck(db.Client())
//
// Connection failures wrap ErrFailedToConnectToMongo and failed health checks
// wrap ErrHealthcheckFailed, so callers match them with errors.Is.
package mongo
