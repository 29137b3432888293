package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Logging     LoggingConfig    `yaml:"logging"`
	Provider    ProviderConfig   `yaml:"provider"`
	Stream      StreamConfig     `yaml:"stream"`
	Scanner     ScannerConfig    `yaml:"scanner"`
	Cache       CacheConfig      `yaml:"cache"`
	Reconciler  ReconcilerConfig `yaml:"reconciler"`
	Backend     BackendConfig    `yaml:"backend"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Forecast    ForecastConfig   `yaml:"forecast"`
	Schedule    ScheduleConfig   `yaml:"schedule"`
	RateLimit   RateLimitConfig  `yaml:"ratelimit"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"2m"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type MetricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path" default:"/metrics"`
}

type LoggingConfig struct {
	Level       string `yaml:"level" default:"info"`
	Format      string `yaml:"format" default:"json"`
	Output      string `yaml:"output" default:"stdout"`
	CollectWarn bool   `yaml:"collect_warn"`
	Collector   struct {
		Enabled        bool          `yaml:"enabled"`
		Topic          string        `yaml:"topic" default:"stockit.logs"`
		Interval       time.Duration `yaml:"interval" default:"30s"`
		CountThreshold int           `yaml:"count_threshold" default:"100"`
	} `yaml:"collector"`
}

// ProviderConfig covers the historical bars REST API.
type ProviderConfig struct {
	BaseURL      string        `yaml:"base_url" default:"https://api.polygon.io"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout" default:"10s"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	BaseDelay    time.Duration `yaml:"base_delay" default:"1s"`
	MaxDelay     time.Duration `yaml:"max_delay" default:"10s"`
	MaxJitter    time.Duration `yaml:"max_jitter" default:"1s"`
	TickerLimit  int           `yaml:"ticker_limit" default:"50"`
	BreakerTrips uint32        `yaml:"breaker_trips" default:"3"`
	BreakerOpen  time.Duration `yaml:"breaker_open" default:"1m"`
}

// StreamConfig covers the live push API and the subscription manager.
type StreamConfig struct {
	URLTemplate          string        `yaml:"url_template" default:"wss://ws.finnhub.io?token={token}"`
	APIKey               string        `yaml:"api_key"`
	// SkipSubscribe suppresses the {"type":"subscribe"} message for endpoints
	// that select the symbol through the URL alone.
	SkipSubscribe        bool          `yaml:"skip_subscribe"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout" default:"10s"`
	PingInterval         time.Duration `yaml:"ping_interval" default:"30s"`
	BatchSize            int           `yaml:"batch_size" default:"10"`
	BatchDelay           time.Duration `yaml:"batch_delay" default:"1s"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" default:"5"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay" default:"5s"`
}

type ScannerConfig struct {
	ChunkSize     int           `yaml:"chunk_size" default:"3"`
	ChunkDelay    time.Duration `yaml:"chunk_delay" default:"2s"`
	MinGain       float64       `yaml:"min_gain" default:"5"`
	Range         string        `yaml:"range" default:"3mo"`
	Interval      string        `yaml:"interval" default:"1d"`
	MarketSymbol  string        `yaml:"market_symbol" default:"SPY"`
	Symbols       []string      `yaml:"symbols"`
	ScanOnStartup bool          `yaml:"scan_on_startup"`
}

type CacheConfig struct {
	// Type is memory, redis or layered.
	Type            string        `yaml:"type" default:"memory"`
	HistoricalTTL   time.Duration `yaml:"historical_ttl" default:"1h"`
	BlueChipTTL     time.Duration `yaml:"bluechip_ttl" default:"24h"`
	MaxEntries      int           `yaml:"max_entries" default:"10000"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" default:"5m"`
	Redis           struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"stockit"`
	} `yaml:"redis"`
}

type ReconcilerConfig struct {
	// Mode is immediate or batched.
	Mode          string        `yaml:"mode" default:"batched"`
	FlushInterval time.Duration `yaml:"flush_interval" default:"1s"`
	MaxPublishRPS int           `yaml:"max_publish_rps" default:"20"`
}

type BackendConfig struct {
	// Type selects where scan snapshots and live updates go: kafka, clickhouse or none.
	Type         string        `yaml:"type" default:"none"`
	BatchSize    int           `yaml:"batch_size" default:"500"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	UpdatesTopic string   `yaml:"updates_topic" default:"stockit.updates"`
	ScansTopic   string   `yaml:"scans_topic" default:"stockit.scans"`
	RequiredAcks int      `yaml:"required_acks" default:"1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		Enabled    bool          `yaml:"enabled"`
		GroupID    string        `yaml:"group_id" default:"stockit-archiver"`
		Workers    int           `yaml:"workers" default:"2"`
		BufferSize int           `yaml:"buffer_size" default:"100"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"stockit.scans.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"stockit"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

// ForecastConfig points at the external ML forecasting service.
type ForecastConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout" default:"15s"`
	Days    int           `yaml:"days" default:"7"`
}

type ScheduleConfig struct {
	Enabled bool `yaml:"enabled"`
	// ScanCron uses the six-field (seconds) cron syntax.
	ScanCron string `yaml:"scan_cron" default:"0 */30 * * * *"`
	// Track loads each scheduled result into the live feed.
	Track bool `yaml:"track"`
	// Queue is inline or redis. Redis lets several instances share scan jobs.
	Queue      string        `yaml:"queue" default:"inline"`
	Workers    int           `yaml:"workers" default:"1"`
	RetryLimit int           `yaml:"retry_limit" default:"2"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
	JobTimeout time.Duration `yaml:"job_timeout" default:"10m"`
}

type RateLimitConfig struct {
	Capacity     int     `yaml:"capacity" default:"30"`
	RefillPerSec float64 `yaml:"refill_per_sec" default:"1"`
}

// Load reads a YAML file, fills unset fields with defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
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
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides secrets and deployment specific fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("POLYGON_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := getenv("SCAN_SYMBOLS"); v != "" {
		c.Scanner.Symbols = strings.Split(v, ",")
	}
	if v := getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := getenv("FORECAST_URL"); v != "" {
		c.Forecast.URL = v
	}
}

func (c *Config) Validate() error {
	switch c.Backend.Type {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when backend.type is kafka")
		}
	case "clickhouse", "none":
	default:
		return fmt.Errorf("backend.type must be 'kafka', 'clickhouse' or 'none', got '%s'", c.Backend.Type)
	}
	switch c.Cache.Type {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.type must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Type)
	}
	switch c.Reconciler.Mode {
	case "immediate", "batched":
	default:
		return fmt.Errorf("reconciler.mode must be 'immediate' or 'batched', got '%s'", c.Reconciler.Mode)
	}
	switch c.Schedule.Queue {
	case "inline", "redis":
	default:
		return fmt.Errorf("schedule.queue must be 'inline' or 'redis', got '%s'", c.Schedule.Queue)
	}
	if c.Provider.MaxAttempts < 1 {
		return fmt.Errorf("provider.max_attempts must be at least 1")
	}
	if c.Stream.BatchSize < 1 || c.Scanner.ChunkSize < 1 {
		return fmt.Errorf("stream.batch_size and scanner.chunk_size must be positive")
	}
	if c.Stream.MaxReconnectAttempts < 1 {
		return fmt.Errorf("stream.max_reconnect_attempts must be at least 1")
	}
	return nil
}
