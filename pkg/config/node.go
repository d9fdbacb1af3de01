package config

import (
	"fmt"
	"os"
	"time"

	"github.com/naoina/toml"
)

// Oracle fallback policies.
const (
	FallbackReject = "reject"
	FallbackStale  = "stale"
)

// Store engines.
const (
	EngineBadger = "badger"
	EngineBolt   = "bolt"
)

// Duration is a time.Duration written as "5s" in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the node configuration file.
type Config struct {
	Network     string
	DataDir     string
	Checkpoints string // checkpoint file; accepted blocks must agree with it
	Store       StoreConfig
	Oracle      OracleConfig
	HTTP        HTTPConfig
}

type StoreConfig struct {
	Engine string
}

// OracleConfig controls how the live price feed is queried.
type OracleConfig struct {
	URL            string
	RequestTimeout Duration // per attempt
	MaxAttempts    uint64
	InitialBackoff Duration
	MaxBackoff     Duration
	RateLimit      float64 // requests per second, 0 disables limiting
	CacheBytes     int

	// Fallback decides what happens when the feed stays unreachable:
	// "reject" fails the query, "stale" serves the last good quote
	// flagged as stale if it is at most MaxStaleness old.
	Fallback     string
	MaxStaleness Duration
}

type HTTPConfig struct {
	Addr string
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Network: "mainnet",
		DataDir: "dmcd-data",
		Store:   StoreConfig{Engine: EngineBadger},
		Oracle: OracleConfig{
			URL:            "http://127.0.0.1:7334",
			RequestTimeout: Duration(5 * time.Second),
			MaxAttempts:    5,
			InitialBackoff: Duration(500 * time.Millisecond),
			MaxBackoff:     Duration(10 * time.Second),
			RateLimit:      10,
			CacheBytes:     4 << 20,
			Fallback:       FallbackReject,
			MaxStaleness:   Duration(10 * time.Minute),
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:7335"},
	}
}

// LoadConfig reads a TOML file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values that have a closed set of options.
func (c *Config) Validate() error {
	if _, err := ParamsForNetwork(c.Network); err != nil {
		return err
	}
	switch c.Store.Engine {
	case EngineBadger, EngineBolt:
	default:
		return fmt.Errorf("unknown store engine %q", c.Store.Engine)
	}
	switch c.Oracle.Fallback {
	case FallbackReject, FallbackStale:
	default:
		return fmt.Errorf("unknown oracle fallback %q", c.Oracle.Fallback)
	}
	if c.Oracle.MaxAttempts == 0 {
		return fmt.Errorf("oracle max attempts must be at least 1")
	}
	if c.Oracle.RequestTimeout <= 0 {
		return fmt.Errorf("oracle request timeout must be positive")
	}
	return nil
}
