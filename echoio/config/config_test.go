package config_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediumart/echo.io/echoio/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	t.Run("Success - maps all fields correctly from YAML struct", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			RunMode:  "yaml-mode",
			Port:     "7001",
			AuthKey:  "yaml-secret",
			LogLevel: "debug",
			Broker: config.YamlBrokerConfig{
				Enabled: true,
				Pattern: "orders.*",
				Redis: config.YamlRedisConfig{
					Addr: "yaml-redis:6379",
					DB:   2,
				},
			},
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg)

		require.NoError(t, err)
		require.NotNil(t, cfg)
		assert.Equal(t, "yaml-mode", cfg.RunMode)
		assert.Equal(t, "7001", cfg.Port)
		assert.Equal(t, "yaml-secret", cfg.AuthKey)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.True(t, cfg.Broker.Enabled)
		assert.Equal(t, "orders.*", cfg.Broker.Pattern)
		assert.Equal(t, "yaml-redis:6379", cfg.Broker.Redis.Addr)
		assert.Equal(t, 2, cfg.Broker.Redis.DB)
	})
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("Success - applies environment overrides", func(t *testing.T) {
		t.Setenv("ECHOIO_AUTH_KEY", "env-secret")
		t.Setenv("ECHOIO_PORT", "9100")
		t.Setenv("REDIS_ADDR", "env-redis:6379")
		t.Setenv("ECHOIO_BROKER_PATTERN", "chat.*")
		t.Setenv("LOG_LEVEL", "warn")

		cfg := &config.AppConfig{
			AuthKey: "yaml-secret",
			Port:    "7001",
			Broker:  config.YamlBrokerConfig{Enabled: true, Redis: config.YamlRedisConfig{Addr: "yaml-redis:6379"}},
		}

		final, err := config.UpdateConfigWithEnvOverrides(cfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "env-secret", final.AuthKey)
		assert.Equal(t, "9100", final.Port)
		assert.Equal(t, "env-redis:6379", final.Broker.Redis.Addr)
		assert.Equal(t, "chat.*", final.Broker.Pattern)
		assert.Equal(t, "warn", final.LogLevel)
	})

	t.Run("Success - splits and trims CORS_ALLOWED_ORIGINS", func(t *testing.T) {
		t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com, https://b.example.com ,")

		cfg := &config.AppConfig{AuthKey: "yaml-secret"}

		final, err := config.UpdateConfigWithEnvOverrides(cfg, logger)

		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, final.AllowedOrigins)
	})

	t.Run("Success - AUTH_KEY accepted as fallback", func(t *testing.T) {
		t.Setenv("AUTH_KEY", "fallback-secret")

		final, err := config.UpdateConfigWithEnvOverrides(&config.AppConfig{}, logger)

		require.NoError(t, err)
		assert.Equal(t, "fallback-secret", final.AuthKey)
	})

	t.Run("Success - applies defaults", func(t *testing.T) {
		cfg := &config.AppConfig{
			AuthKey: "yaml-secret",
			Broker:  config.YamlBrokerConfig{Enabled: true, Redis: config.YamlRedisConfig{Addr: "yaml-redis:6379"}},
		}

		final, err := config.UpdateConfigWithEnvOverrides(cfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "6001", final.Port)
		assert.Equal(t, "*", final.Broker.Pattern)
	})

	t.Run("Failure - missing auth key", func(t *testing.T) {
		_, err := config.UpdateConfigWithEnvOverrides(&config.AppConfig{}, logger)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "AUTH_KEY")
	})

	t.Run("Failure - broker enabled without redis address", func(t *testing.T) {
		cfg := &config.AppConfig{
			AuthKey: "yaml-secret",
			Broker:  config.YamlBrokerConfig{Enabled: true},
		}

		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_ADDR")
	})
}
