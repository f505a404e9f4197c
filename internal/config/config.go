package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. DESKBRIDGE_SERVER_ADDR
const EnvPrefix = "DESKBRIDGE"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Hardware  HardwareConfig  `mapstructure:"hardware"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// AllowedOrigins lists the browser origins that may call the bridge.
	// Empty means loopback origins only while auth is optional.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedIPs     []string `mapstructure:"allowed_ips"`
	StaticDir      string   `mapstructure:"static_dir"`
}

type AuthConfig struct {
	// Required forces every caller to present a view token. When false the
	// view label is taken from the X-View-Label header or the view query param.
	Required    bool          `mapstructure:"required"`
	Secret      string        `mapstructure:"secret"`
	SecretFile  string        `mapstructure:"secret_file"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

type MonitorConfig struct {
	Iterations int           `mapstructure:"iterations"`
	Interval   time.Duration `mapstructure:"interval"`
}

type HardwareConfig struct {
	// StaticTTL bounds how long CPU model, core count, OS and hostname are
	// reused between queries. Zero reads them on every call.
	StaticTTL time.Duration `mapstructure:"static_ttl"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.allowed_ips", []string{})
	v.SetDefault("server.static_dir", "")

	v.SetDefault("auth.required", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.secret_file", "")
	v.SetDefault("auth.token_expiry", 30*24*time.Hour)

	v.SetDefault("monitor.iterations", 10)
	v.SetDefault("monitor.interval", time.Second)

	v.SetDefault("hardware.static_ttl", 30*time.Second)

	v.SetDefault("ratelimit.rps", 100)
	v.SetDefault("ratelimit.burst", 200)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", true)
}

// Load reads configuration from defaults, an optional YAML file, a .env file
// in the working directory and DESKBRIDGE_* environment variables, in
// increasing order of precedence. An explicit configFile must exist.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("deskbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "deskbridge"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return errors.New("server.addr must not be empty")
	case c.Monitor.Iterations < 1:
		return fmt.Errorf("monitor.iterations must be at least 1, got %d", c.Monitor.Iterations)
	case c.Monitor.Interval <= 0:
		return fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval)
	case c.Hardware.StaticTTL < 0:
		return fmt.Errorf("hardware.static_ttl must not be negative, got %s", c.Hardware.StaticTTL)
	case c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1:
		return fmt.Errorf("ratelimit needs rps > 0 and burst >= 1, got %v/%d", c.RateLimit.RPS, c.RateLimit.Burst)
	case c.Auth.TokenExpiry <= 0:
		return fmt.Errorf("auth.token_expiry must be positive, got %s", c.Auth.TokenExpiry)
	}
	return nil
}
