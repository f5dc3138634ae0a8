package push

import "time"

// Config holds push service settings.
type Config struct {
	EncryptionKey         string        `env:"PUSH_ENCRYPTION_KEY"`
	ScheduleSweepInterval time.Duration `env:"PUSH_SCHEDULE_SWEEP_INTERVAL" envDefault:"1m"`
	DefaultAttempts       int           `env:"PUSH_DEFAULT_ATTEMPTS" envDefault:"3"`
	ProviderTimeout       time.Duration `env:"PUSH_PROVIDER_TIMEOUT" envDefault:"10s"`
	ScheduleBatch         int           `env:"PUSH_SCHEDULE_BATCH" envDefault:"100"`
}
