// Package config loads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig     `envPrefix:"APP_"`
	HTTP    HTTPConfig    `envPrefix:"HTTP_"`
	Book    BookConfig    `envPrefix:"BOOK_"`
	Journal JournalConfig `envPrefix:"JOURNAL_"`
	Kafka   KafkaConfig   `envPrefix:"KAFKA_"`
	Redis   RedisConfig   `envPrefix:"REDIS_"`
	Sim     SimConfig     `envPrefix:"SIM_"`
}

type AppConfig struct {
	Name        string `env:"NAME" envDefault:"lobd"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

func (c AppConfig) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}

type HTTPConfig struct {
	Addr        string        `env:"ADDR" envDefault:":8088"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envSeparator:","`
	RateLimit   int           `env:"RATE_LIMIT" envDefault:"0"` // requests per window per IP, 0 disables
	RateWindow  time.Duration `env:"RATE_WINDOW" envDefault:"1m"`
	APIKeyHash  string        `env:"API_KEY_HASH"` // bcrypt hash; empty disables auth
}

type BookConfig struct {
	Venue            string   `env:"VENUE"`
	Instruments      []string `env:"INSTRUMENTS" envSeparator:"," envDefault:"BTC-USD"`
	TickSize         string   `env:"TICK_SIZE"` // decimal, empty accepts any price
	Depth            int      `env:"DEPTH" envDefault:"10"`
	VerifyInvariants bool     `env:"VERIFY_INVARIANTS" envDefault:"false"`
}

type JournalConfig struct {
	Path   string `env:"PATH"` // empty disables the journal
	Replay bool   `env:"REPLAY" envDefault:"true"`
}

type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:","` // empty disables publishing
	Topic   string   `env:"TOPIC" envDefault:"lob.events"`
}

type RedisConfig struct {
	Addr     string        `env:"ADDR"` // empty disables snapshots
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	TTL      time.Duration `env:"TTL" envDefault:"1m"`
}

// SimConfig drives synthetic order flow into every open market.
type SimConfig struct {
	Enabled    bool          `env:"ENABLED" envDefault:"false"`
	Interval   time.Duration `env:"INTERVAL" envDefault:"500ms"`
	StartPrice float64       `env:"START_PRICE" envDefault:"100"`
	Volatility float64       `env:"VOLATILITY" envDefault:"0.05"`
	HalfSpread float64       `env:"HALF_SPREAD" envDefault:"0.05"`
	Size       float64       `env:"SIZE" envDefault:"10"`
	Levels     int           `env:"LEVELS" envDefault:"3"`
	Seed       uint64        `env:"SEED" envDefault:"0"` // 0 seeds from the clock
}

// Load reads dotenv files (missing files are ignored) and then parses the
// environment into a Config.
func Load(dotenv ...string) (*Config, error) {
	_ = godotenv.Load(dotenv...)

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Book.Instruments) == 0 {
		return fmt.Errorf("BOOK_INSTRUMENTS must name at least one instrument")
	}
	for _, name := range c.Book.Instruments {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("BOOK_INSTRUMENTS contains an empty name")
		}
	}
	if c.Book.Depth <= 0 {
		return fmt.Errorf("BOOK_DEPTH must be positive, got %d", c.Book.Depth)
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT must not be negative")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.Sim.Enabled {
		switch {
		case c.Sim.Interval <= 0:
			return fmt.Errorf("SIM_INTERVAL must be positive")
		case c.Sim.StartPrice <= 0:
			return fmt.Errorf("SIM_START_PRICE must be positive")
		case c.Sim.Size <= 0 || c.Sim.Levels <= 0:
			return fmt.Errorf("SIM_SIZE and SIM_LEVELS must be positive")
		}
	}
	return nil
}
