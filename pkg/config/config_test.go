package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.Overrides.CacheTTL)
	assert.False(t, cfg.Overrides.CacheEnabled)
	assert.Equal(t, 24*time.Hour, cfg.Privacy.SignedURLTTL)
	assert.Equal(t, 1, cfg.Privacy.WorkerConcurrency)
	assert.Equal(t, "./filedir", cfg.Files.StorageDir)
}

func TestOverridesFromValues(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("OVERRIDE_CACHE_ENABLED", true)
	v.Set("OVERRIDE_CACHE_TTL", "90s")
	v.Set("PRIVACY_RESULT_TTL", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	cfg := fromViper(v)

	assert.True(t, cfg.Overrides.CacheEnabled)
	assert.Equal(t, 90*time.Second, cfg.Overrides.CacheTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Privacy.ResultTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
