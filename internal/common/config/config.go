// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	NLU       NLUConfig       `mapstructure:"nlu"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Trips     TripsConfig     `mapstructure:"trips"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Session   SessionConfig   `mapstructure:"session"`
	Report    ReportConfig    `mapstructure:"report"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

type TelegramConfig struct {
	Token          string  `mapstructure:"token"`
	AllowedChatIDs []int64 `mapstructure:"allowed_chat_ids"`
	UpdateTimeout  int     `mapstructure:"update_timeout"` // seconds, long-poll
}

// NLUConfig points at the OpenAI-compatible understanding service.
type NLUConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Timeout  int    `mapstructure:"timeout"`   // milliseconds
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds, extraction cache
}

type DatabaseConfig struct {
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type MongoConfig struct {
	URI             string `mapstructure:"uri"`
	Database        string `mapstructure:"database"`
	TripCollection  string `mapstructure:"trip_collection"`
	SelectTimeout   int    `mapstructure:"select_timeout"`   // milliseconds, server selection
	QueryTimeout    int    `mapstructure:"query_timeout"`    // milliseconds, per sub-query
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TripsConfig carries the closed vocabularies. Empty slices fall back to
// the canonical sets in internal/filter.
type TripsConfig struct {
	Categories []string `mapstructure:"categories"`
	Areas      []string `mapstructure:"areas"`
}

type RetrievalConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	RetryAttempts int `mapstructure:"retry_attempts"`
	RetryBackoff  int `mapstructure:"retry_backoff"` // milliseconds, base delay
}

type PoolConfig struct {
	IdleTimeout  int `mapstructure:"idle_timeout"`  // seconds
	ReapInterval int `mapstructure:"reap_interval"` // seconds
}

type SessionConfig struct {
	InactivityTimeout int `mapstructure:"inactivity_timeout"` // seconds
	SweepInterval     int `mapstructure:"sweep_interval"`     // seconds
}

type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}
