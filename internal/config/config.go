package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig holds settings for the chat server runtime.
type ServerConfig struct {
	ListenAddr    string
	HTTPAddr      string
	Database      DatabaseConfig
	JWT           JWTConfig
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxFrameBytes int
	HistoryLimit  int
	TypingTTL     time.Duration
	DefaultRooms  []string
}

// ClientConfig holds settings for the terminal client.
type ClientConfig struct {
	ServerAddr    string
	IdentityURL   string
	CommandPrefix rune
}

// DatabaseConfig captures storage configuration. An empty path selects the
// in-process store.
type DatabaseConfig struct {
	Path string
}

// JWTConfig defines identity token parameters.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

// LoadServerConfig builds the server configuration from environment variables with sensible defaults.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:    envOrDefault("STUDYCHAT_LISTEN_ADDR", ":9000"),
		HTTPAddr:      envOrDefault("STUDYCHAT_HTTP_ADDR", ":8080"),
		Database:      DatabaseConfig{Path: envOrDefault("STUDYCHAT_DB_PATH", "studychat.db")},
		JWT:           loadJWTConfig(),
		ReadTimeout:   envDuration("STUDYCHAT_READ_TIMEOUT", 15*time.Minute),
		WriteTimeout:  envDuration("STUDYCHAT_WRITE_TIMEOUT", 15*time.Second),
		MaxFrameBytes: envInt("STUDYCHAT_MAX_FRAME_BYTES", 1<<20),
		HistoryLimit:  envInt("STUDYCHAT_HISTORY_LIMIT", 200),
		TypingTTL:     envDuration("STUDYCHAT_TYPING_TTL", 10*time.Second),
		DefaultRooms:  envList("STUDYCHAT_DEFAULT_ROOMS", []string{"general", "study", "random"}),
	}
}

// LoadClientConfig builds the client configuration from environment variables.
func LoadClientConfig() ClientConfig {
	prefix := envOrDefault("STUDYCHAT_COMMAND_PREFIX", "/")
	runes := []rune(prefix)
	commandPrefix := '/'
	if len(runes) > 0 {
		commandPrefix = runes[0]
	}
	return ClientConfig{
		ServerAddr:    envOrDefault("STUDYCHAT_SERVER_ADDR", "localhost:9000"),
		IdentityURL:   envOrDefault("STUDYCHAT_IDENTITY_URL", "http://localhost:8080/identity"),
		CommandPrefix: commandPrefix,
	}
}

func loadJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:     envOrDefault("STUDYCHAT_JWT_SECRET", "replace-me"),
		Issuer:     envOrDefault("STUDYCHAT_JWT_ISSUER", "studychat"),
		Expiration: envDuration("STUDYCHAT_JWT_EXPIRATION", 72*time.Hour),
	}
}

func envOrDefault(key, value string) string {
	if env, ok := os.LookupEnv(key); ok {
		return env
	}
	return value
}

func envDuration(key string, def time.Duration) time.Duration {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(env); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(key string, def int) int {
	if env, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(env); err == nil {
			return parsed
		}
	}
	return def
}

func envList(key string, def []string) []string {
	env, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var values []string
	for _, part := range strings.Split(env, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return def
	}
	return values
}
