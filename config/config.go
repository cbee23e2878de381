package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the relay configuration read from the environment.
type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
	Redis          RedisConfig
	ICE            ICEConfig
}

// RedisConfig locates the optional presence store.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Enabled reports whether the presence mirror should use Redis.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// ICEConfig is the raw STUN/TURN configuration handed out to clients.
type ICEConfig struct {
	STUNURLs       string
	TURNURLs       string
	TURNUsername   string
	TURNCredential string
}

// Load reads the configuration from the environment, falling back to defaults.
func Load() *Config {
	// Parse allowed origins (comma-separated)
	origins := splitCommaSeparated(getEnv("ALLOWED_ORIGINS", "*"))

	return &Config{
		Port:           getEnv("PORT", "9898"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "signaling"),
			TTL:      getEnvDuration("PRESENCE_TTL", 24*time.Hour),
		},
		ICE: ICEConfig{
			STUNURLs:       getEnv("STUN_URLS", DefaultSTUNURLs),
			TURNURLs:       getEnv("TURN_URLS", ""),
			TURNUsername:   getEnv("TURN_USERNAME", ""),
			TURNCredential: getEnv("TURN_CREDENTIAL", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return d
}

func splitCommaSeparated(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
