package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Replicator ReplicatorConfig `yaml:"replicator"`
	Cache      CacheConfig      `yaml:"cache"`
	Log        LogConfig        `yaml:"log"`
}

type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Brokers            []string `yaml:"brokers"`
	EventsTopic        string   `yaml:"events_topic"`
	ReplicatorGroupID  string   `yaml:"replicator_group_id"`
	NotificationsGroup string   `yaml:"notifications_group_id"`
}

const (
	JournalMemory   = "memory"
	JournalPostgres = "postgres"

	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type LedgerConfig struct {
	Journal        string        `yaml:"journal"`
	OutboxSize     int           `yaml:"outbox_size"`
	PublishRetries int           `yaml:"publish_retries"`
	PublishBackoff time.Duration `yaml:"publish_backoff"`
}

type ReplicatorConfig struct {
	CheckpointPath string        `yaml:"checkpoint_path"`
	BatchSize      int           `yaml:"batch_size"`
	RetryBase      time.Duration `yaml:"retry_base"`
	RetryMax       time.Duration `yaml:"retry_max"`
	MaxAttempts    int           `yaml:"max_attempts"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type CacheConfig struct {
	Backend     string        `yaml:"backend"`
	SeatTTL     time.Duration `yaml:"seat_ttl"`
	ListingTTL  time.Duration `yaml:"listing_ttl"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig reads a YAML file, expanding ${VAR} references from the
// environment. A .env file in the working directory is loaded first when
// present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate fills defaults and rejects values no component can run with.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 5 * time.Second
	}

	if c.Ledger.Journal == "" {
		c.Ledger.Journal = JournalMemory
	}
	if c.Ledger.Journal != JournalMemory && c.Ledger.Journal != JournalPostgres {
		return fmt.Errorf("unknown ledger journal %q", c.Ledger.Journal)
	}
	if c.Ledger.OutboxSize == 0 {
		c.Ledger.OutboxSize = 1024
	}
	if c.Ledger.PublishRetries == 0 {
		c.Ledger.PublishRetries = 3
	}
	if c.Ledger.PublishBackoff == 0 {
		c.Ledger.PublishBackoff = 500 * time.Millisecond
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka enabled without brokers")
		}
		if c.Kafka.EventsTopic == "" {
			c.Kafka.EventsTopic = "ledger-events"
		}
		if c.Kafka.ReplicatorGroupID == "" {
			c.Kafka.ReplicatorGroupID = "seatledger-replicator"
		}
		if c.Kafka.NotificationsGroup == "" {
			c.Kafka.NotificationsGroup = "seatledger-notifications"
		}
	}

	r := &c.Replicator
	if r.BatchSize == 0 {
		r.BatchSize = 500
	}
	if r.RetryBase == 0 {
		r.RetryBase = 500 * time.Millisecond
	}
	if r.RetryMax == 0 {
		r.RetryMax = 30 * time.Second
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.SweepInterval == 0 {
		r.SweepInterval = 10 * time.Second
	}
	if r.BatchSize < 0 || r.RetryBase < 0 || r.RetryMax < r.RetryBase || r.MaxAttempts < 0 || r.SweepInterval < 0 {
		return errors.New("replicator settings must be positive and retry_max >= retry_base")
	}
	// A memory journal restarts at seq 1, so a persisted offset would
	// point past its head.
	if r.CheckpointPath != "" && c.Ledger.Journal != JournalPostgres {
		return errors.New("replicator checkpoint requires the postgres journal")
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheMemory
	}
	if c.Cache.Backend != CacheMemory && c.Cache.Backend != CacheRedis {
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.SeatTTL == 0 {
		c.Cache.SeatTTL = 30 * time.Second
	}
	if c.Cache.ListingTTL == 0 {
		c.Cache.ListingTTL = 5 * time.Minute
	}
	if c.Cache.ReadTimeout == 0 {
		c.Cache.ReadTimeout = 2 * time.Second
	}
	if c.Cache.SeatTTL < 0 || c.Cache.ListingTTL < 0 || c.Cache.ReadTimeout < 0 {
		return errors.New("cache ttl and read timeout must be positive")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	return nil
}
