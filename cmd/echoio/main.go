// Main entrypoint for the echo.io server. Handles config loading, dependency
// injection, and starting the application.
package main

import (
	"context"
	_ "embed"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mediumart/echo.io/echoio"
	"github.com/mediumart/echo.io/echoio/config"
	"github.com/mediumart/echo.io/internal/app"
	"github.com/mediumart/echo.io/internal/broker"
)

//go:embed config.yaml
var configFile []byte

func main() {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "echoio").
		Logger()

	// Stage 0: unmarshal the embedded YAML.
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Fatal().Err(err).Msg("Failed to unmarshal embedded yaml config")
	}

	// Stage 1: YAML to base struct.
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build base configuration from YAML")
	}

	// Stage 2: env overrides and validation.
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to finalize configuration with environment overrides")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		logger = logger.Level(level)
	}

	ctx := context.Background()

	deps, err := newDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize dependencies")
	}

	service, err := echoio.New(cfg, deps, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create service")
	}

	app.Run(ctx, logger, service)
}

// newDependencies builds the broker collaborators. With the broker disabled
// the service runs standalone and both broker sides stay nil.
func newDependencies(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (*echoio.Dependencies, error) {
	instanceID := uuid.NewString()
	deps := &echoio.Dependencies{InstanceID: instanceID}

	if !cfg.Broker.Enabled {
		logger.Info().Msg("Broker disabled, running standalone")
		return deps, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Broker.Redis.Addr,
		Password: cfg.Broker.Redis.Password,
		DB:       cfg.Broker.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	logger.Info().Str("addr", cfg.Broker.Redis.Addr).Msg("Connected to redis broker")

	deps.Subscriber = broker.NewRedisSubscriber(rdb)
	deps.Publisher = broker.NewPublisher(rdb, instanceID, logger)
	return deps, nil
}
