// Package config loads the settings of the realtime console from a YAML
// file and EMA_REALTIME_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	realtime "github.com/koscakluka/ema-realtime/core"
	"github.com/koscakluka/ema-realtime/core/endpoints"
	"github.com/koscakluka/ema-realtime/core/transport/websocket"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

const (
	envPrefix  = "EMA_REALTIME"
	configEnv  = envPrefix + "_CONFIG"
	configName = "ema-realtime"
)

type Config struct {
	// URL is the explicit endpoint override, tried first.
	URL        string `mapstructure:"url"`
	DefaultURL string `mapstructure:"default_url"`
	LocalURL   string `mapstructure:"local_url"`
	// AuthToken is sent as a bearer token with the websocket upgrade.
	AuthToken string `mapstructure:"auth_token"`

	AttemptTimeout       time.Duration `mapstructure:"attempt_timeout"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	BackoffBase          time.Duration `mapstructure:"backoff_base"`
	FallbackDelay        time.Duration `mapstructure:"fallback_delay"`
	ErrorFrameThreshold  int           `mapstructure:"error_frame_threshold"`
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	// SendRateLimit caps outbound commands per second, zero disables it.
	SendRateLimit float64 `mapstructure:"send_rate_limit"`
	SendBurst     int     `mapstructure:"send_burst"`

	Preferences map[string]any `mapstructure:"preferences"`
}

func Default() *Config {
	return &Config{
		LocalURL:             endpoints.LocalAddress,
		AttemptTimeout:       realtime.DefaultAttemptTimeout,
		MaxReconnectAttempts: realtime.DefaultMaxReconnectAttempts,
		BackoffBase:          time.Second,
		FallbackDelay:        realtime.DefaultFallbackDelay,
		PingInterval:         54 * time.Second,
		SendBurst:            10,
	}
}

// Load reads configuration from path when given. Otherwise the file named
// by EMA_REALTIME_CONFIG is used, or ema-realtime.yaml is searched in the
// working directory and ~/.ema-realtime. A missing file is not an error.
// Every key can be overridden from the environment, e.g.
// EMA_REALTIME_MAX_RECONNECT_ATTEMPTS=3.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("url", cfg.URL)
	v.SetDefault("default_url", cfg.DefaultURL)
	v.SetDefault("local_url", cfg.LocalURL)
	v.SetDefault("auth_token", cfg.AuthToken)
	v.SetDefault("attempt_timeout", cfg.AttemptTimeout)
	v.SetDefault("max_reconnect_attempts", cfg.MaxReconnectAttempts)
	v.SetDefault("backoff_base", cfg.BackoffBase)
	v.SetDefault("fallback_delay", cfg.FallbackDelay)
	v.SetDefault("error_frame_threshold", cfg.ErrorFrameThreshold)
	v.SetDefault("ping_interval", cfg.PingInterval)
	v.SetDefault("send_rate_limit", cfg.SendRateLimit)
	v.SetDefault("send_burst", cfg.SendBurst)

	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ema-realtime"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.URL = strings.TrimSpace(c.URL)
	c.DefaultURL = strings.TrimSpace(c.DefaultURL)
	c.LocalURL = strings.TrimSpace(c.LocalURL)

	switch {
	case c.AttemptTimeout <= 0:
		return fmt.Errorf("invalid attempt_timeout: %s", c.AttemptTimeout)
	case c.BackoffBase <= 0:
		return fmt.Errorf("invalid backoff_base: %s", c.BackoffBase)
	case c.FallbackDelay < 0:
		return fmt.Errorf("invalid fallback_delay: %s", c.FallbackDelay)
	case c.MaxReconnectAttempts < 0:
		return fmt.Errorf("invalid max_reconnect_attempts: %d", c.MaxReconnectAttempts)
	case c.ErrorFrameThreshold < 0:
		return fmt.Errorf("invalid error_frame_threshold: %d", c.ErrorFrameThreshold)
	case c.PingInterval < 0:
		return fmt.Errorf("invalid ping_interval: %s", c.PingInterval)
	case c.SendRateLimit < 0:
		return fmt.Errorf("invalid send_rate_limit: %v", c.SendRateLimit)
	case c.SendRateLimit > 0 && c.SendBurst <= 0:
		return fmt.Errorf("invalid send_burst: %d", c.SendBurst)
	}
	return nil
}

func (c *Config) Catalog() *endpoints.Catalog {
	return endpoints.Build(c.URL, c.DefaultURL, c.LocalURL)
}

func (c *Config) DialerOptions() []websocket.DialerOption {
	opts := []websocket.DialerOption{
		websocket.WithHandshakeTimeout(c.AttemptTimeout),
		websocket.WithKeepAlive(c.PingInterval, c.PingInterval+c.PingInterval/9),
	}
	if c.AuthToken != "" {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+c.AuthToken)
		opts = append(opts, websocket.WithHeader(header))
	}
	if c.SendRateLimit > 0 {
		opts = append(opts, websocket.WithSendRateLimit(rate.Limit(c.SendRateLimit), c.SendBurst))
	}
	return opts
}

func (c *Config) ManagerOptions() []realtime.ManagerOption {
	return []realtime.ManagerOption{
		realtime.WithCatalog(c.Catalog()),
		realtime.WithTransport(websocket.NewDialer(c.DialerOptions()...)),
		realtime.WithAttemptTimeout(c.AttemptTimeout),
		realtime.WithMaxReconnectAttempts(uint(c.MaxReconnectAttempts)),
		realtime.WithBackoffBase(c.BackoffBase),
		realtime.WithFallbackDelay(c.FallbackDelay),
		realtime.WithErrorFrameThreshold(c.ErrorFrameThreshold),
	}
}
