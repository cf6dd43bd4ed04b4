package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
}

type BasicConfig struct {
	ServerAddress  string `json:"server_address"`
	APIBaseURL     string `json:"api_base_url"`
	PollIntervalMS int    `json:"poll_interval_ms"`
	TokenTTLHours  int    `json:"token_ttl_hours"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// DefaultPollIntervalMS matches the refresh period the web clients used.
const DefaultPollIntervalMS = 3000

// Load reads configuration from the provided path (defaults to config.json).
// A .env file next to the process, if present, is loaded first so values
// like BERESIN_DB can come from the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("databases must be configured")
	}
	if cfg.BasicConfig.PollIntervalMS <= 0 {
		cfg.BasicConfig.PollIntervalMS = DefaultPollIntervalMS
	}

	for name, db := range cfg.Databases {
		if db.DSN != "" && !filepath.IsAbs(db.DSN) && !isMemoryDSN(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	return &cfg, nil
}

func isMemoryDSN(dsn string) bool {
	if dsn == ":memory:" {
		return true
	}
	return len(dsn) > 5 && dsn[:5] == "file:"
}
