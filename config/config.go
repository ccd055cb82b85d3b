package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvAPIURL overrides api.base_url when set.
const EnvAPIURL = "SRTGW_API_URL"

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Poll      PollConfig      `yaml:"poll"`
	Web       WebConfig       `yaml:"web"`
	Messaging MessagingConfig `yaml:"messaging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig selects the local SQL store (audit log, and session values
// when session.driver is "sql").
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SessionConfig struct {
	Driver  string        `yaml:"driver"` // memory, file, sql, redis, keyring
	File    FileConfig    `yaml:"file"`
	Redis   RedisConfig   `yaml:"redis"`
	Keyring KeyringConfig `yaml:"keyring"`
}

type FileConfig struct {
	Path       string `yaml:"path"`
	Passphrase string `yaml:"passphrase"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type KeyringConfig struct {
	Service string `yaml:"service"`
}

// PollConfig holds the refresh intervals of the polled views.
type PollConfig struct {
	RouteStats       time.Duration `yaml:"route_stats"`
	DestinationStats time.Duration `yaml:"destination_stats"`
	Nodes            time.Duration `yaml:"nodes"`
	Pipelines        time.Duration `yaml:"pipelines"`
	Dashboard        time.Duration `yaml:"dashboard"`
	Policy           string        `yaml:"policy"` // latest_issued, last_resolved
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

type MessagingConfig struct {
	Backend     string      `yaml:"backend"` // "", kafka, mqtt
	Kafka       KafkaConfig `yaml:"kafka"`
	MQTT        MQTTConfig  `yaml:"mqtt"`
	EventsTopic string      `yaml:"events_topic"`
	StationID   string      `yaml:"station_id"`
	// OutboxDrainInterval is how often queued events are published.
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://127.0.0.1:4000",
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "srtconsole.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "srtconsole",
				User:     "srtconsole",
				SSLMode:  "disable",
			},
		},
		Session: SessionConfig{
			Driver: "file",
			File:   FileConfig{Path: "srtconsole-session.yaml"},
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "srtconsole:session:",
			},
			Keyring: KeyringConfig{Service: "srtconsole"},
		},
		Poll: PollConfig{
			RouteStats:       1500 * time.Millisecond,
			DestinationStats: 1500 * time.Millisecond,
			Nodes:            5 * time.Second,
			Pipelines:        5 * time.Second,
			Dashboard:        30 * time.Second,
			Policy:           "latest_issued",
		},
		Web: WebConfig{
			Host:          "127.0.0.1",
			Port:          8090,
			SessionSecret: "change-me-in-production",
		},
		Messaging: MessagingConfig{
			Kafka:               KafkaConfig{Brokers: []string{"localhost:9092"}},
			MQTT:                MQTTConfig{Broker: "localhost", Port: 1883, ClientID: "srtconsole"},
			EventsTopic:         "srtgw.console.events",
			StationID:           "console",
			OutboxDrainInterval: 2 * time.Second,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if u := os.Getenv(EnvAPIURL); u != "" {
		cfg.API.BaseURL = u
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }
