package config

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AuthConfig is the hot-reloadable part of the configuration.
type AuthConfig struct {
	APIKey string `mapstructure:"apiKey"`
}

// AuthConfigHolder serves the current shared secret. When API_KEY is set it
// is fixed for the process lifetime; otherwise it follows AUTH_CONFIG_FILE.
type AuthConfigHolder struct {
	current atomic.Value // holds AuthConfig
}

// NewStaticAuthConfig returns a holder that never reloads.
func NewStaticAuthConfig(apiKey string) *AuthConfigHolder {
	holder := &AuthConfigHolder{}
	holder.current.Store(AuthConfig{APIKey: strings.TrimSpace(apiKey)})
	return holder
}

func NewAuthConfigHolder(cfg Config, log *zap.Logger) (*AuthConfigHolder, error) {
	if cfg.APIKey != "" || cfg.AuthConfigFile == "" {
		return NewStaticAuthConfig(cfg.APIKey), nil
	}

	v := viper.New()
	v.SetConfigFile(cfg.AuthConfigFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read auth config %s: %w", cfg.AuthConfigFile, err)
	}

	var auth AuthConfig
	if err := v.UnmarshalKey("auth", &auth); err != nil {
		return nil, fmt.Errorf("decode auth config: %w", err)
	}

	holder := NewStaticAuthConfig(auth.APIKey)
	log = log.Named("config.auth")

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AuthConfig
		if err := v.UnmarshalKey("auth", &updated); err != nil {
			log.Warn("auth config reload failed", zap.Error(err))
			return
		}
		holder.current.Store(AuthConfig{APIKey: strings.TrimSpace(updated.APIKey)})
		log.Info("auth config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *AuthConfigHolder) Get() AuthConfig {
	return h.current.Load().(AuthConfig)
}

// APIKey returns the shared secret, or "" when authentication is disabled.
func (h *AuthConfigHolder) APIKey() string {
	if h == nil {
		return ""
	}
	return h.Get().APIKey
}
