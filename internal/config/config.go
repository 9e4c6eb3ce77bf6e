package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds runtime settings for the server.
type Config struct {
	ServerAddr     string  `toml:"server_addr"`
	ArtifactDir    string  `toml:"artifact_dir"`
	PusherAppID    string  `toml:"pusher_app_id"`
	PusherKey      string  `toml:"pusher_key"`
	PusherSecret   string  `toml:"pusher_secret"`
	PusherCluster  string  `toml:"pusher_cluster"`
	LogLevel       string  `toml:"log_level"`
	LogFormat      string  `toml:"log_format"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ServerAddr:     ":3000",
		ArtifactDir:    "./tmp",
		LogLevel:       "info",
		LogFormat:      "auto",
		RateLimitRPS:   5,
		RateLimitBurst: 20,
	}
}

// Load builds the runtime config. Later sources win: defaults, the optional TOML file
// at path, a .env file in the working directory, then the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		c.ServerAddr = ":" + strings.TrimPrefix(port, ":")
	}
	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.ArtifactDir = getEnv("ARTIFACT_DIR", c.ArtifactDir)
	c.PusherAppID = getEnv("PUSHER_APP_ID", c.PusherAppID)
	c.PusherKey = getEnv("PUSHER_KEY", c.PusherKey)
	c.PusherSecret = getEnv("PUSHER_SECRET", c.PusherSecret)
	c.PusherCluster = getEnv("PUSHER_CLUSTER", c.PusherCluster)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.RateLimitRPS = getEnvFloat("RATE_LIMIT_RPS", c.RateLimitRPS)
	c.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", c.RateLimitBurst)
}

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerAddr) == "" {
		return errors.New("server_addr must not be empty")
	}
	if strings.TrimSpace(c.ArtifactDir) == "" {
		return errors.New("artifact_dir must not be empty")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	return nil
}

// PusherEnabled reports whether real-time progress can be published.
func (c Config) PusherEnabled() bool {
	return c.PusherAppID != "" && c.PusherKey != "" && c.PusherSecret != "" && c.PusherCluster != ""
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out int
	_, err := fmt.Sscanf(value, "%d", &out)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out float64
	_, err := fmt.Sscanf(value, "%g", &out)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}
