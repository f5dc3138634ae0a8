package realtime

import "time"

// Config controls websocket timing and buffering.
type Config struct {
	PingInterval   time.Duration `env:"REALTIME_PING_INTERVAL" envDefault:"30s"`
	PongWait       time.Duration `env:"REALTIME_PONG_WAIT" envDefault:"60s"`
	WriteTimeout   time.Duration `env:"REALTIME_WRITE_TIMEOUT" envDefault:"10s"`
	BufferSize     int           `env:"REALTIME_BUFFER_SIZE" envDefault:"32"`
	AllowedOrigins []string      `env:"REALTIME_ALLOWED_ORIGINS" envSeparator:","`
}

// DefaultConfig returns the values used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   32,
	}
}
