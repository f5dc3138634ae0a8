package queue

import "time"

// Config holds runtime settings shared by workers and storages.
type Config struct {
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
	DLQLimit           int           `env:"QUEUE_DLQ_LIMIT" envDefault:"1000"`
	RedisPrefix        string        `env:"QUEUE_REDIS_PREFIX" envDefault:"queue"`
}
