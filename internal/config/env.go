// Package config defines environment configuration structs and loaders.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	GonkaEnvConfig
	ServerEnvConfig
	RedisEnvConfig
}

func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GonkaEnvConfig holds upstream chain node targets and request timeouts.
type GonkaEnvConfig struct {
	InferenceUrls []string      `env:"INFERENCE_URLS" envSeparator:"," envDefault:"http://node2.gonka.ai:8000"`
	HTTPTimeout   time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
}

// ServerEnvConfig configures the HTTP server.
type ServerEnvConfig struct {
	Port          int      `env:"PORT" envDefault:"8080"`
	BodySizeLimit int      `env:"SERVER_BODY_LIMIT" envDefault:"1048576"`
	CorsOrigins   []string `env:"CORS_ORIGIN" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:3001,https://tracker.gonka.top,http://tracker.gonka.top"`
}

// RedisEnvConfig configures the Redis snapshot cache connection.
type RedisEnvConfig struct {
	RedisHost     string `env:"REDIS_HOST" envDefault:"127.0.0.1"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}
