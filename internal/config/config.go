package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvDevelopment enables echoing internal error details to clients.
const EnvDevelopment = "development"

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Host string
		Port string
	}
	App struct {
		Env string
	}
	Auth struct {
		JWTSecret string
	}
	Database struct {
		Path string
	}
	Log struct {
		Level  string
		Format string
	}
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"server.host":    "HOST",
	"server.port":    "PORT",
	"app.env":        "NODE_ENV",
	"auth.jwtsecret": "JWT_SECRET",
	"database.path":  "DATABASE_PATH",
	"log.level":      "LOG_LEVEL",
	"log.format":     "LOG_FORMAT",
}

// Load reads configuration from environment variables, an optional .env
// file and an optional config file in the working directory.
func Load() (Config, error) {
	// variables already present in the environment win over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", "3000")
	v.SetDefault("app.env", "")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("database.path", "data/linkshorty.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Server.Port) == "" {
		return Config{}, errors.New("server port must not be empty")
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

// Debug reports whether internal error details may be shown to clients.
func (c Config) Debug() bool {
	return c.App.Env == EnvDevelopment
}
