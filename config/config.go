package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/service"
)

// EnvPrefix prefixes every environment override. Levels are separated by a
// double underscore, e.g. GATEKEEPER_AUTH__CHALLENGE_TTL=2m.
const EnvPrefix = "GATEKEEPER_"

const (
	StoreDriverMemory = "memory"
	StoreDriverRedis  = "redis"
)

var (
	ErrUnknownStoreDriver = errors.New("unknown store driver")
	ErrNonPositiveTTL     = errors.New("durations must be positive")
	ErrMissingRedisURL    = errors.New("redis url is required")
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Store    StoreConfig    `mapstructure:"store"`
	Identity IdentityConfig `mapstructure:"identity"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Events   EventsConfig   `mapstructure:"events"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	AppName      string        `mapstructure:"app_name"`
	ChallengeTTL time.Duration `mapstructure:"challenge_ttl"`
	// ChallengeRetention keeps expired challenges around to report them as
	// expired. Zero turns it off.
	ChallengeRetention time.Duration `mapstructure:"challenge_retention"`
	AccessTTL          time.Duration `mapstructure:"access_ttl"`
	RefreshTTL         time.Duration `mapstructure:"refresh_ttl"`
	UpstreamTimeout    time.Duration `mapstructure:"upstream_timeout"`
	// SigningKey is a PEM encoded P-256 key. A random key is generated when empty.
	SigningKey string `mapstructure:"signing_key"`
}

type StoreConfig struct {
	Driver        string        `mapstructure:"driver"`
	RedisURL      string        `mapstructure:"redis_url"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type IdentityConfig struct {
	URL          string        `mapstructure:"url"`
	APIKey       string        `mapstructure:"api_key"`
	RetryWaitMin time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration `mapstructure:"retry_wait_max"`
}

// ChainConfig enables EIP-1271 contract wallet checks when RPCURL is set
type ChainConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	RedisURL string `mapstructure:"redis_url"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.addr":              ":8080",
		"log.level":                "info",
		"auth.app_name":            core.DefaultAppName,
		"auth.challenge_ttl":       service.DefaultChallengeTTL.String(),
		"auth.challenge_retention": service.DefaultChallengeRetention.String(),
		"auth.access_ttl":          service.DefaultAccessTTL.String(),
		"auth.refresh_ttl":         service.DefaultRefreshTTL.String(),
		"auth.upstream_timeout":    service.DefaultUpstreamTimeout.String(),
		"store.driver":             StoreDriverMemory,
		"store.redis_url":          "redis://localhost:6379/0",
		"store.sweep_interval":     "1m",
		"identity.retry_wait_min":  "100ms",
		"identity.retry_wait_max":  "500ms",
		"events.enabled":           false,
	}
}

// Load reads defaults, then the optional YAML file at path, then the environment
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg := &Config{}
	err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			Result:           cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envKey maps GATEKEEPER_AUTH__CHALLENGE_TTL to auth.challenge_ttl
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory:
		if c.Store.SweepInterval <= 0 {
			return fmt.Errorf("%w: store.sweep_interval", ErrNonPositiveTTL)
		}
	case StoreDriverRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("%w: store.redis_url", ErrMissingRedisURL)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreDriver, c.Store.Driver)
	}

	durations := map[string]time.Duration{
		"auth.challenge_ttl":    c.Auth.ChallengeTTL,
		"auth.access_ttl":       c.Auth.AccessTTL,
		"auth.refresh_ttl":      c.Auth.RefreshTTL,
		"auth.upstream_timeout": c.Auth.UpstreamTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrNonPositiveTTL, key)
		}
	}
	if c.Auth.ChallengeRetention < 0 {
		return fmt.Errorf("%w: auth.challenge_retention", ErrNonPositiveTTL)
	}

	if c.Events.Enabled && c.EventsRedisURL() == "" {
		return fmt.Errorf("%w: events.redis_url", ErrMissingRedisURL)
	}

	return nil
}

// EventsRedisURL falls back to the store's Redis when events has none of its own
func (c *Config) EventsRedisURL() string {
	if c.Events.RedisURL != "" {
		return c.Events.RedisURL
	}
	return c.Store.RedisURL
}

// ServiceOptions converts the auth section into service options
func (c *Config) ServiceOptions() service.Options {
	retention := c.Auth.ChallengeRetention
	if retention == 0 {
		retention = service.NoChallengeRetention
	}

	return service.Options{
		AppName:            c.Auth.AppName,
		ChallengeTTL:       c.Auth.ChallengeTTL,
		ChallengeRetention: retention,
		AccessTTL:          c.Auth.AccessTTL,
		RefreshTTL:         c.Auth.RefreshTTL,
		UpstreamTimeout:    c.Auth.UpstreamTimeout,
	}
}
