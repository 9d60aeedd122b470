package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env       string `yaml:"env" env:"CHATSYNC_ENV" env-default:"local"`
	AccountID string `yaml:"account_id" env:"CHATSYNC_ACCOUNT_ID" env-description:"operator account the session runs as"`

	Backend struct {
		APIBaseURL  string        `yaml:"api_base_url" env:"CHATSYNC_API_BASE_URL" env-default:"http://localhost:5000"`
		SocketURL   string        `yaml:"socket_url" env:"CHATSYNC_SOCKET_URL" env-description:"push channel base URL; defaults to api_base_url"`
		HTTPTimeout time.Duration `yaml:"http_timeout" env:"CHATSYNC_HTTP_TIMEOUT" env-default:"15s"`
	} `yaml:"backend"`

	Listen struct {
		Host        string   `yaml:"host" env:"CHATSYNC_HOST" env-default:"127.0.0.1"`
		Port        int      `yaml:"port" env:"CHATSYNC_PORT" env-default:"8090"`
		CORSOrigins []string `yaml:"cors_origins" env:"CHATSYNC_CORS_ORIGINS" env-default:"http://localhost:3000,http://localhost:5173"`
	} `yaml:"listen"`

	Auth struct {
		TokenSecret string        `yaml:"token_secret" env:"CHATSYNC_TOKEN_SECRET"`
		TokenTTL    time.Duration `yaml:"token_ttl" env:"CHATSYNC_TOKEN_TTL" env-default:"24h"`
	} `yaml:"auth"`

	Store struct {
		Driver      string `yaml:"driver" env:"CHATSYNC_STORE_DRIVER" env-default:"sqlite"`
		DatabaseURL string `yaml:"database_url" env:"CHATSYNC_DATABASE_URL" env-default:"chatsync.db"`
	} `yaml:"store"`

	Engine struct {
		PageSize       int           `yaml:"page_size" env:"CHATSYNC_PAGE_SIZE" env-default:"20"`
		PendingTimeout time.Duration `yaml:"pending_timeout" env:"CHATSYNC_PENDING_TIMEOUT" env-default:"5s"`
		SearchDebounce time.Duration `yaml:"search_debounce" env:"CHATSYNC_SEARCH_DEBOUNCE" env-default:"300ms"`
	} `yaml:"engine"`

	LogFile string `yaml:"log_file" env:"CHATSYNC_LOG_FILE"`
}

// Load reads an optional .env file, then the YAML file at path (if any),
// then the environment. Later sources win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(cfg, nil)
		return nil, fmt.Errorf("%w; %s", err, desc)
	}

	if cfg.Backend.SocketURL == "" {
		cfg.Backend.SocketURL = cfg.Backend.APIBaseURL
	}
	for i := range cfg.Listen.CORSOrigins {
		cfg.Listen.CORSOrigins[i] = strings.TrimSpace(cfg.Listen.CORSOrigins[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if c.AccountID == "" {
		return fmt.Errorf("CHATSYNC_ACCOUNT_ID is required")
	}
	if c.Backend.APIBaseURL == "" {
		return fmt.Errorf("CHATSYNC_API_BASE_URL is required")
	}
	if c.Engine.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.Engine.PageSize)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen.Host, c.Listen.Port)
}

// Local reports whether the process runs on a developer machine.
func (c *Config) Local() bool {
	return c.Env == "local" || c.Env == "dev" || c.Env == "development"
}
