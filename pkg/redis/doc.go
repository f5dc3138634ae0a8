// Package redis connects to Redis with go-redis/v9. The client backs the job
// queue broker and the per-tenant rate limiter.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	storage := queue.NewRedisStorage(client)
//	limiter := ratelimiter.NewRedisStore(client)
package redis
