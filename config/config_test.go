package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/nebula-blue/aead"
	"github.com/user/nebula-blue/transfer"
)

const testKey = "000102030405060708090a0b0c0d0e0f"

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func newFlagSet() *pflag.FlagSet {
	return pflag.NewFlagSet("test", pflag.ContinueOnError)
}

func TestDefaults(t *testing.T) {
	cfg, err := load(newFlagSet(), nil, env(nil))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "NEBULA", cfg.DeviceName)
	assert.Equal(t, 2048, cfg.MaxPlaintext)
	assert.Equal(t, transfer.DefaultConfig(), cfg.Transfer())
	assert.False(t, cfg.Encrypt)
}

func TestEnvOverridesDefaults(t *testing.T) {
	cfg, err := load(newFlagSet(), nil, env(map[string]string{
		"NEBULA_DEVICE_NAME":      "N2",
		"NEBULA_LOG_LEVEL":        "debug",
		"NEBULA_ENCRYPT":          "true",
		"NEBULA_KEY":              testKey,
		"NEBULA_ALGORITHM":        "chacha20-poly1305",
		"NEBULA_CHUNK_SIZE":       "64",
		"NEBULA_PACING_DELAY":     "10ms",
		"NEBULA_BACKOFF_DELAY":    "1s",
		"NEBULA_MAX_BUSY_RETRIES": "5",
		"NEBULA_MAX_PLAINTEXT":    "100",
		"NEBULA_PAYLOAD_FILE":     "/tmp/x",
		"NEBULA_DATA_DIR":         "/tmp/out",
	}))
	require.NoError(t, err)
	assert.Equal(t, Config{
		DeviceName:     "N2",
		LogLevel:       "debug",
		Encrypt:        true,
		Key:            testKey,
		Algorithm:      "chacha20-poly1305",
		ChunkSize:      64,
		PacingDelay:    10 * time.Millisecond,
		BackoffDelay:   time.Second,
		MaxBusyRetries: 5,
		MaxPlaintext:   100,
		PayloadFile:    "/tmp/x",
		DataDir:        "/tmp/out",
	}, cfg)

	key, alg, err := cfg.AEAD()
	require.NoError(t, err)
	assert.Equal(t, aead.AlgChaCha20Poly1305, alg)
	assert.Equal(t, byte(0x0f), key[15])
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := load(newFlagSet(), []string{"--chunk-size", "32", "--pacing", "1ms", "--name", "FLAG"}, env(map[string]string{
		"NEBULA_CHUNK_SIZE":  "64",
		"NEBULA_DEVICE_NAME": "ENV",
		"NEBULA_LOG_LEVEL":   "warn",
	}))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.ChunkSize)
	assert.Equal(t, time.Millisecond, cfg.PacingDelay)
	assert.Equal(t, "FLAG", cfg.DeviceName)
	assert.Equal(t, "warn", cfg.LogLevel, "env value kept when no flag is given")
}

func TestBadEnvValues(t *testing.T) {
	for name, value := range map[string]string{
		"NEBULA_ENCRYPT":      "maybe",
		"NEBULA_CHUNK_SIZE":   "big",
		"NEBULA_PACING_DELAY": "soon",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := load(newFlagSet(), nil, env(map[string]string{name: value}))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty name", func(c *Config) { c.DeviceName = "" }, false},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }, false},
		{"negative backoff", func(c *Config) { c.BackoffDelay = -time.Second }, false},
		{"negative retries", func(c *Config) { c.MaxBusyRetries = -1 }, false},
		{"zero plaintext", func(c *Config) { c.MaxPlaintext = 0 }, false},
		{"unknown algorithm", func(c *Config) { c.Algorithm = "rot13" }, false},
		{"encrypt without key", func(c *Config) { c.Encrypt = true }, false},
		{"encrypt short key", func(c *Config) { c.Encrypt = true; c.Key = "abcd" }, false},
		{"encrypt with key", func(c *Config) { c.Encrypt = true; c.Key = testKey }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestOutputDir(t *testing.T) {
	t.Setenv("NEBULA_BLUE_DIR", "/data/nebula")
	cfg := Default()
	assert.Equal(t, "/data/nebula", cfg.OutputDir())
	cfg.DataDir = "/elsewhere"
	assert.Equal(t, "/elsewhere/out.bin", cfg.OutputPath("out.bin"))
}

func TestRunDir(t *testing.T) {
	t.Setenv("NEBULA_BLUE_DIR", "/data/nebula")
	cfg := Default()
	assert.Equal(t, "/data/nebula/runs/abc", cfg.RunDir("abc"))
	cfg.DataDir = "/elsewhere"
	assert.Equal(t, "/elsewhere/runs/abc", cfg.RunDir("abc"))
}
