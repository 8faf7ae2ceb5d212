// Package config resolves runtime settings: defaults, then NEBULA_* environment
// variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/user/nebula-blue/aead"
	"github.com/user/nebula-blue/transfer"
	"github.com/user/nebula-blue/util"
)

// DefaultMaxPlaintext is the largest plaintext the peripheral will frame.
const DefaultMaxPlaintext = 2048

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config holds the settings shared by the peripheral and the CLI.
type Config struct {
	DeviceName     string
	LogLevel       string
	Encrypt        bool
	Key            string // 32 hex characters
	Algorithm      string
	ChunkSize      int
	PacingDelay    time.Duration
	BackoffDelay   time.Duration
	MaxBusyRetries int
	MaxPlaintext   int
	PayloadFile    string
	DataDir        string
}

// Default returns the built-in settings.
func Default() Config {
	t := transfer.DefaultConfig()
	return Config{
		DeviceName:   "NEBULA",
		LogLevel:     "info",
		Algorithm:    aead.AlgAES128GCM.String(),
		ChunkSize:    t.ChunkSize,
		PacingDelay:  t.PacingDelay,
		BackoffDelay: t.BackoffDelay,
		MaxPlaintext: DefaultMaxPlaintext,
	}
}

// Load resolves the configuration from the process environment and args.
func Load(fs *pflag.FlagSet, args []string) (Config, error) {
	return load(fs, args, os.Getenv)
}

func load(fs *pflag.FlagSet, args []string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if err := cfg.ApplyEnv(getenv); err != nil {
		return cfg, err
	}
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from NEBULA_* variables. Unset or empty variables
// leave the field alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	str("NEBULA_DEVICE_NAME", &c.DeviceName)
	str("NEBULA_LOG_LEVEL", &c.LogLevel)
	str("NEBULA_KEY", &c.Key)
	str("NEBULA_ALGORITHM", &c.Algorithm)
	str("NEBULA_PAYLOAD_FILE", &c.PayloadFile)
	str("NEBULA_DATA_DIR", &c.DataDir)

	if v := getenv("NEBULA_ENCRYPT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: NEBULA_ENCRYPT: %v", ErrInvalid, err)
		}
		c.Encrypt = b
	}
	for name, dst := range map[string]*int{
		"NEBULA_CHUNK_SIZE":       &c.ChunkSize,
		"NEBULA_MAX_BUSY_RETRIES": &c.MaxBusyRetries,
		"NEBULA_MAX_PLAINTEXT":    &c.MaxPlaintext,
	} {
		if v := getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
			}
			*dst = n
		}
	}
	for name, dst := range map[string]*time.Duration{
		"NEBULA_PACING_DELAY":  &c.PacingDelay,
		"NEBULA_BACKOFF_DELAY": &c.BackoffDelay,
	} {
		if v := getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
			}
			*dst = d
		}
	}
	return nil
}

// BindFlags registers one flag per field, defaulting to the current values, so
// flags parsed afterwards win over the environment.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.DeviceName, "name", c.DeviceName, "advertised device name")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (trace, debug, info, warn, error)")
	fs.BoolVar(&c.Encrypt, "encrypt", c.Encrypt, "frame the payload as nonce|ciphertext|tag")
	fs.StringVar(&c.Key, "key", c.Key, "128-bit key as 32 hex characters")
	fs.StringVar(&c.Algorithm, "algorithm", c.Algorithm, "aes-128-gcm or chacha20-poly1305")
	fs.IntVar(&c.ChunkSize, "chunk-size", c.ChunkSize, "upper bound on bytes per notification")
	fs.DurationVar(&c.PacingDelay, "pacing", c.PacingDelay, "delay between successful chunks")
	fs.DurationVar(&c.BackoffDelay, "backoff", c.BackoffDelay, "delay before retrying a refused chunk")
	fs.IntVar(&c.MaxBusyRetries, "max-busy-retries", c.MaxBusyRetries, "abort after this many consecutive refusals (0 = never)")
	fs.IntVar(&c.MaxPlaintext, "max-plaintext", c.MaxPlaintext, "largest plaintext accepted from the source")
	fs.StringVar(&c.PayloadFile, "payload-file", c.PayloadFile, "send this file instead of the demo text")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "output directory (default $NEBULA_BLUE_DIR or ~/.nebula-blue-data)")
}

// Validate checks ranges and that a usable key is present when encrypting.
func (c Config) Validate() error {
	switch {
	case c.DeviceName == "":
		return fmt.Errorf("%w: device name is empty", ErrInvalid)
	case c.ChunkSize < 1:
		return fmt.Errorf("%w: chunk size %d", ErrInvalid, c.ChunkSize)
	case c.PacingDelay < 0 || c.BackoffDelay < 0:
		return fmt.Errorf("%w: negative delay", ErrInvalid)
	case c.MaxBusyRetries < 0:
		return fmt.Errorf("%w: max busy retries %d", ErrInvalid, c.MaxBusyRetries)
	case c.MaxPlaintext < 1:
		return fmt.Errorf("%w: max plaintext %d", ErrInvalid, c.MaxPlaintext)
	}
	if _, err := aead.ParseAlgorithm(c.Algorithm); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Encrypt {
		if c.Key == "" {
			return fmt.Errorf("%w: encryption enabled without a key", ErrInvalid)
		}
		if _, err := aead.ParseKey(c.Key); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// Transfer returns the scheduler settings.
func (c Config) Transfer() transfer.Config {
	return transfer.Config{
		ChunkSize:      c.ChunkSize,
		PacingDelay:    c.PacingDelay,
		BackoffDelay:   c.BackoffDelay,
		MaxBusyRetries: c.MaxBusyRetries,
	}
}

// AEAD returns the parsed key and algorithm.
func (c Config) AEAD() (aead.Key, aead.Algorithm, error) {
	alg, err := aead.ParseAlgorithm(c.Algorithm)
	if err != nil {
		return aead.Key{}, 0, err
	}
	key, err := aead.ParseKey(c.Key)
	if err != nil {
		return aead.Key{}, 0, err
	}
	return key, alg, nil
}

// OutputDir returns DataDir, falling back to the shared data directory.
func (c Config) OutputDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return util.GetDataDir()
}

// OutputPath joins name onto OutputDir.
func (c Config) OutputPath(name string) string {
	return filepath.Join(c.OutputDir(), name)
}

// RunDir is where one simulation run keeps its artifacts.
func (c Config) RunDir(runID string) string {
	if c.DataDir == "" {
		return util.GetRunDir(runID)
	}
	return c.OutputPath(filepath.Join("runs", runID))
}
