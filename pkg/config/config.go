package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Logging     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Tickers struct {
		File    string   `yaml:"file"`
		Symbols []string `yaml:"symbols"`
	} `yaml:"tickers"`
	Providers struct {
		Order          []string      `yaml:"order"`
		MaxRetries     int           `yaml:"max_retries"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		RateLimitDelay time.Duration `yaml:"rate_limit_delay"`
		MaxLimiterWait time.Duration `yaml:"max_limiter_wait"`
		DownAfter      int           `yaml:"down_after"`
		RetryBackoff   time.Duration `yaml:"retry_backoff"`
		RetryMax       time.Duration `yaml:"retry_backoff_max"`
		Polygon        struct {
			APIKey  string `yaml:"api_key"`
			BaseURL string `yaml:"base_url"`
		} `yaml:"polygon"`
		Yahoo struct {
			BaseURL        string `yaml:"base_url"`
			MaxExpirations int    `yaml:"max_expirations"`
		} `yaml:"yahoo"`
	} `yaml:"providers"`
	Collection struct {
		BatchSize int `yaml:"batch_size"`
		Workers   int `yaml:"workers"`
	} `yaml:"collection"`
	Detection struct {
		VolumeThreshold    float64 `yaml:"volume_threshold"`
		OIThreshold        float64 `yaml:"oi_threshold"`
		ShortTermDays      int     `yaml:"short_term_days"`
		OTMPercentage      float64 `yaml:"otm_percentage"`
		ShareFactor        float64 `yaml:"share_factor"`
		MinVolume          int64   `yaml:"min_volume"`
		MinHistory         int     `yaml:"min_history"`
		BaselineWindowDays int     `yaml:"baseline_window_days"`
		Forest             struct {
			Trees         int     `yaml:"trees"`
			SampleSize    int     `yaml:"sample_size"`
			Seed          int64   `yaml:"seed"`
			Contamination float64 `yaml:"contamination"`
		} `yaml:"forest"`
		Tiers struct {
			High   float64 `yaml:"high"`
			Medium float64 `yaml:"medium"`
			Low    float64 `yaml:"low"`
		} `yaml:"tiers"`
	} `yaml:"detection"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		Tables           struct {
			Snapshots string `yaml:"snapshots"`
			Anomalies string `yaml:"anomalies"`
			Runs      string `yaml:"runs"`
		} `yaml:"tables"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		AnomalyTopic string   `yaml:"anomaly_topic"`
		RunTopic     string   `yaml:"run_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTL      time.Duration `yaml:"ttl"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		c.Providers.Polygon.APIKey = v
	}
	if v := os.Getenv("TICKER_FILE"); v != "" {
		c.Tickers.File = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Tickers.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Tickers.File == "" && len(c.Tickers.Symbols) == 0 {
		return fmt.Errorf("tickers.file or tickers.symbols is required")
	}
	if len(c.Providers.Order) == 0 {
		return fmt.Errorf("providers.order cannot be empty")
	}
	for _, name := range c.Providers.Order {
		switch name {
		case "polygon":
			if c.Providers.Polygon.APIKey == "" {
				return fmt.Errorf("providers.polygon.api_key is required when polygon is in providers.order")
			}
		case "yahoo":
			// unauthenticated
		default:
			return fmt.Errorf("unknown provider '%s' in providers.order", name)
		}
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if t := c.Detection.Tiers; t.High != 0 || t.Medium != 0 || t.Low != 0 {
		if !(t.High > t.Medium && t.Medium > t.Low && t.Low > 0) {
			return fmt.Errorf("detection.tiers must satisfy high > medium > low > 0")
		}
	}
	return nil
}
