package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	Secret          string        `mapstructure:"secret"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AllowedOrigins may upgrade /api/ws with the cookie session besides
	// the server's own origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Identity IdentityConfig `mapstructure:"identity"`
	Authz    AuthzConfig    `mapstructure:"authz"`
	Locks    LocksConfig    `mapstructure:"locks"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Internal InternalConfig `mapstructure:"internal"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console | json
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// IdentityConfig selects the profile source: an HTTP identity service when
// BaseURL is set, otherwise the static Profiles table keyed by user id.
type IdentityConfig struct {
	BaseURL  string            `mapstructure:"base_url"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Profiles map[string]string `mapstructure:"profiles"`
}

// AuthzConfig points at a casbin policy file; empty uses the embedded one.
type AuthzConfig struct {
	PolicyPath string `mapstructure:"policy_path"`
}

type LocksConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LimitsConfig struct {
	EditingRate  float64 `mapstructure:"editing_rate"`
	EditingBurst int     `mapstructure:"editing_burst"`
}

type RelayConfig struct {
	Driver  string `mapstructure:"driver"` // gochannel | nats
	Topic   string `mapstructure:"topic"`
	NatsURL string `mapstructure:"nats_url"`
}

type InternalConfig struct {
	Token string `mapstructure:"token"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("shutdown_timeout", "5s")
	v.SetDefault("allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("identity.base_url", "")
	v.SetDefault("identity.timeout", "2s")

	v.SetDefault("authz.policy_path", "")

	v.SetDefault("locks.timeout", "5m")
	v.SetDefault("locks.sweep_interval", "30s")

	v.SetDefault("limits.editing_rate", 5.0)
	v.SetDefault("limits.editing_burst", 10)

	v.SetDefault("relay.driver", "gochannel")
	v.SetDefault("relay.topic", "board.changes")
	v.SetDefault("relay.nats_url", "nats://127.0.0.1:4222")

	v.SetDefault("internal.token", "")
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("BOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("relay", cfg.Relay.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"ping_period", c.PingPeriod},
		{"pong_wait", c.PongWait},
		{"write_wait", c.WriteWait},
		{"shutdown_timeout", c.ShutdownTimeout},
		{"locks.timeout", c.Locks.Timeout},
		{"locks.sweep_interval", c.Locks.SweepInterval},
		{"identity.timeout", c.Identity.Timeout},
	}
	for _, f := range durations {
		if f.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", f.key))
		}
	}
	if c.PingPeriod >= c.PongWait && c.PongWait > 0 {
		errs = append(errs, errors.New("ping_period must be shorter than pong_wait"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	if c.Limits.EditingRate <= 0 || c.Limits.EditingBurst <= 0 {
		errs = append(errs, errors.New("limits.editing_rate and limits.editing_burst must be positive"))
	}
	switch c.Relay.Driver {
	case "gochannel":
	case "nats":
		if c.Relay.NatsURL == "" {
			errs = append(errs, errors.New("relay.nats_url is required for the nats driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown relay.driver %q", c.Relay.Driver))
	}
	if c.Mode == "release" {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("auth.jwt_secret is required in release mode"))
		}
		if c.Secret == "" {
			errs = append(errs, errors.New("secret is required in release mode"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
