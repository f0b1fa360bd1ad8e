package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const defaultPort = "6001"

// AppConfig is the canonical, validated configuration object used throughout
// the application. It is created by NewConfigFromYaml (stage 1) and finalized
// by UpdateConfigWithEnvOverrides (stage 2).
type AppConfig struct {
	RunMode  string
	Port     string
	AuthKey  string
	LogLevel string
	// AllowedOrigins restricts websocket handshakes by Origin header; empty
	// means any origin is accepted.
	AllowedOrigins []string
	Broker         YamlBrokerConfig
}

// UpdateConfigWithEnvOverrides takes the base configuration (created from YAML)
// and completes it by applying environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *AppConfig, logger zerolog.Logger) (*AppConfig, error) {
	logger.Debug().Msg("Applying environment variable overrides...")

	if key := firstEnv("ECHOIO_AUTH_KEY", "AUTH_KEY"); key != "" {
		logger.Debug().Str("key", "AUTH_KEY").Str("source", "env").Msg("Overriding config value")
		cfg.AuthKey = key
	}
	if port := firstEnv("ECHOIO_PORT", "PORT"); port != "" {
		logger.Debug().Str("key", "PORT").Str("source", "env").Msg("Overriding config value")
		cfg.Port = port
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		logger.Debug().Str("key", "REDIS_ADDR").Str("source", "env").Msg("Overriding config value")
		cfg.Broker.Redis.Addr = redisAddr
	}
	if pattern := os.Getenv("ECHOIO_BROKER_PATTERN"); pattern != "" {
		logger.Debug().Str("key", "ECHOIO_BROKER_PATTERN").Str("source", "env").Msg("Overriding config value")
		cfg.Broker.Pattern = pattern
	}
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug().Str("key", "CORS_ALLOWED_ORIGINS").Str("source", "env").Msg("Overriding config value")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.AllowedOrigins = cleanOrigins
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		logger.Debug().Str("key", "LOG_LEVEL").Str("source", "env").Msg("Overriding config value")
		cfg.LogLevel = level
	}

	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.Broker.Enabled && cfg.Broker.Pattern == "" {
		cfg.Broker.Pattern = "*"
	}

	if cfg.AuthKey == "" {
		logger.Error().Str("error", "AUTH_KEY is not set").Msg("Final config validation failed")
		return nil, fmt.Errorf("AUTH_KEY is not set in config or env var")
	}
	if cfg.Broker.Enabled && cfg.Broker.Redis.Addr == "" {
		logger.Error().Str("error", "REDIS_ADDR is not set").Msg("Final config validation failed")
		return nil, fmt.Errorf("broker is enabled but REDIS_ADDR is not set in config or env var")
	}

	logger.Debug().Msg("Configuration finalized and validated successfully")
	return cfg, nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
