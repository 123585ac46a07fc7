// Package config provides configuration for the gateway and CLI.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config holds all runtime settings. It is built once in main and passed
// down; nothing reads the environment after Load returns.
type Config struct {
	// Remote platform backend
	BackendURL  string        `env:"PV_BACKEND_URL" envDefault:"https://patient-virtuel-platform-backend.onrender.com"`
	HTTPTimeout time.Duration `env:"PV_HTTP_TIMEOUT" envDefault:"30s"`
	ChatPath    string        `env:"PV_CHAT_PATH" envDefault:"/chat"`
	ChatEndPath string        `env:"PV_CHAT_END_PATH" envDefault:"/api/chat/end"`
	UploadPath  string        `env:"PV_UPLOAD_PATH" envDefault:"/upload-video"`

	// Local state
	StoreDriver string `env:"PV_STORE_DRIVER" envDefault:"file"`
	StatePath   string `env:"PV_STATE_PATH" envDefault:"data/pvstate.json"`
	DatabaseURL string `env:"PV_DATABASE_URL" envDefault:"file:data/pvstate.db?cache=shared&mode=rwc"`

	// Gateway server
	HTTPPort     int           `env:"PV_HTTP_PORT" envDefault:"8080"`
	PingInterval time.Duration `env:"PV_WS_PING_INTERVAL" envDefault:"30s"`
	ReadTimeout  time.Duration `env:"PV_WS_READ_TIMEOUT" envDefault:"60s"`
	MaxMessage   int64         `env:"PV_WS_MAX_MESSAGE" envDefault:"4096"`

	// Typing effect
	TypingChunk int           `env:"PV_TYPING_CHUNK" envDefault:"3"`
	TypingTick  time.Duration `env:"PV_TYPING_TICK" envDefault:"30ms"`

	// Transcript copy, overridable for non-French deployments
	GreetingText string `env:"PV_GREETING_TEXT" envDefault:"Bonjour. Je suis votre patient virtuel. Quelle est votre principale raison de consultation aujourd’hui ?"`
	ClearedText  string `env:"PV_CLEARED_TEXT" envDefault:"Conversation effacée. Recommencez quand vous voulez."`

	LogLevel string `env:"PV_LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.StoreDriver {
	case DriverFile, DriverSQLite, DriverMemory:
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	return cfg, nil
}
