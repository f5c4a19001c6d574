package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fcaptcha/clickguard/internal/scoring"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig           `mapstructure:"server"`
	Redis      RedisConfig            `mapstructure:"redis"`
	Log        LogConfig              `mapstructure:"log"`
	Pages      PagesConfig            `mapstructure:"pages"`
	Protection map[string]interface{} `mapstructure:"protection"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	SecureCookies  bool     `mapstructure:"secure_cookies"`
	Debug          bool     `mapstructure:"debug"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type PagesConfig struct {
	MaxPages int           `mapstructure:"max_pages"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.debug", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("pages.max_pages", 10000)
	v.SetDefault("pages.ttl", "30m")
}

// Load reads clickguard.yaml from configPath (or ./config, or .) and
// overlays CLICKGUARD_* environment variables. PORT and REDIS_URL are
// honored as well. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("clickguard")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("clickguard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("server.port", "CLICKGUARD_SERVER_PORT", "PORT")
	_ = v.BindEnv("redis.url", "CLICKGUARD_REDIS_URL", "REDIS_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Pages.MaxPages <= 0 {
		cfg.Pages.MaxPages = 10000
	}
	if cfg.Pages.TTL <= 0 {
		cfg.Pages.TTL = 30 * time.Minute
	}
	return &cfg, nil
}

// BaseOptions returns the site-wide engine options: built-in defaults
// overridden by the protection section.
func (c *Config) BaseOptions() scoring.Options {
	return DecodeAttributes(c.Protection).Options(scoring.DefaultOptions())
}
