// Package config loads environment driven configuration structs.
//
// Structs describe their variables with github.com/caarlos0/env tags:
//
//	type Config struct {
//		EncryptionKey string        `env:"PUSH_ENCRYPTION_KEY"`
//		SweepInterval time.Duration `env:"PUSH_SCHEDULE_SWEEP_INTERVAL" envDefault:"1m"`
//	}
//
// Load reads a .env file from the working directory once per process (missing
// files are fine), parses the struct and caches the result per type, so every
// later Load of the same type returns the same values. Parse skips the cache
// and accepts a prefix, which is useful when one struct type is reused for
// several named instances.
package config
