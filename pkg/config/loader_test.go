package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pushkit/pkg/config"
)

type sweepConfig struct {
	Interval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	Batch    int           `env:"SWEEP_BATCH" envDefault:"100"`
}

type cachedConfig struct {
	Value string `env:"CACHED_VALUE" envDefault:"first"`
}

type requiredConfig struct {
	Key string `env:"REQUIRED_KEY,required"`
}

func TestLoad(t *testing.T) {
	t.Setenv("SWEEP_BATCH", "25")

	var cfg sweepConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 25, cfg.Batch)
}

func TestLoad_CachesPerType(t *testing.T) {
	t.Setenv("CACHED_VALUE", "first")

	var a cachedConfig
	require.NoError(t, config.Load(&a))

	t.Setenv("CACHED_VALUE", "second")

	var b cachedConfig
	require.NoError(t, config.Load(&b))
	assert.Equal(t, "first", b.Value)
}

func TestLoad_Errors(t *testing.T) {
	var missing requiredConfig
	assert.ErrorIs(t, config.Load(&missing), config.ErrParsingConfig)
	assert.ErrorIs(t, config.Load[sweepConfig](nil), config.ErrNilPointer)
	assert.Panics(t, func() { config.MustLoad(&missing) })
}

func TestParse_Prefix(t *testing.T) {
	t.Setenv("EMAIL_SWEEP_BATCH", "7")

	var cfg sweepConfig
	require.NoError(t, config.Parse(&cfg, "EMAIL_"))
	assert.Equal(t, 7, cfg.Batch)
}
