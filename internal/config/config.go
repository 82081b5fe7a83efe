package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/forgeflow/internal/provider/adk"
	"github.com/davidbz/forgeflow/internal/runner"
)

// Config represents the gateway configuration.
type Config struct {
	Server  ServerConfig
	CORS    CORSConfig
	Compose ComposeConfig
	Cache   CacheConfig
	ADK     adk.Config
	Runner  runner.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"300"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// ComposeConfig contains facade settings.
type ComposeConfig struct {
	DefaultProvider string `env:"DEFAULT_PROVIDER" envDefault:"adk"`
}

// CacheConfig contains plan cache settings.
type CacheConfig struct {
	Enabled       bool   `env:"CACHE_ENABLED"        envDefault:"false"`
	RedisAddr     string `env:"CACHE_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"CACHE_REDIS_PASSWORD"`
	RedisDB       int    `env:"CACHE_REDIS_DB"       envDefault:"0"`
	TTLMinutes    int    `env:"CACHE_TTL_MINUTES"    envDefault:"60"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out

	Server  *ServerConfig
	CORS    *CORSConfig
	Compose *ComposeConfig
	Cache   *CacheConfig
	ADK     *adk.Config
	Runner  *runner.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:  &cfg.Server,
		CORS:    &cfg.CORS,
		Compose: &cfg.Compose,
		Cache:   &cfg.Cache,
		ADK:     &cfg.ADK,
		Runner:  &cfg.Runner,
	}
}
