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
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Sources struct {
		Reconnect struct {
			Delay       time.Duration `yaml:"delay"`
			MaxAttempts int           `yaml:"max_attempts"`
		} `yaml:"reconnect"`
		MaxRuntime time.Duration `yaml:"max_runtime"`
		Crypto     struct {
			Enabled      bool          `yaml:"enabled"`
			WebSocketURL string        `yaml:"websocket_url"`
			RestURL      string        `yaml:"rest_url"`
			Symbols      []string      `yaml:"symbols"`
			PingInterval time.Duration `yaml:"ping_interval"`
			CacheTTL     time.Duration `yaml:"cache_ttl"`
		} `yaml:"crypto"`
		Equity struct {
			Enabled  bool          `yaml:"enabled"`
			Symbols  []string      `yaml:"symbols"`
			Interval time.Duration `yaml:"interval"`
			Seed     int64         `yaml:"seed"`
			CacheTTL time.Duration `yaml:"cache_ttl"`
		} `yaml:"equity"`
		Carbon struct {
			Enabled      bool          `yaml:"enabled"`
			BaseURL      string        `yaml:"base_url"`
			Symbols      []string      `yaml:"symbols"`
			PollInterval time.Duration `yaml:"poll_interval"`
			CacheTTL     time.Duration `yaml:"cache_ttl"`
		} `yaml:"carbon"`
	} `yaml:"sources"`
	Forecast struct {
		ModelTimeout   time.Duration `yaml:"model_timeout"`
		ResultCacheTTL time.Duration `yaml:"result_cache_ttl"`
		MinHistoryDays int           `yaml:"min_history_days"`
		Models         struct {
			ProphetCommand []string `yaml:"prophet_command"`
			ArimaCommand   []string `yaml:"arima_command"`
		} `yaml:"models"`
	} `yaml:"forecast"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			BatchTimeout time.Duration `yaml:"batch_timeout"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		Table            string        `yaml:"table"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
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
	c.applyDefaults()

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

	if v := os.Getenv("CRYPTO_SYMBOLS"); v != "" {
		c.Sources.Crypto.Symbols = splitList(v)
	}
	if v := os.Getenv("EQUITY_SYMBOLS"); v != "" {
		c.Sources.Equity.Symbols = splitList(v)
	}
	if v := os.Getenv("CARBON_BASE_URL"); v != "" {
		c.Sources.Carbon.BaseURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Sources.Reconnect.Delay == 0 {
		c.Sources.Reconnect.Delay = 3 * time.Second
	}
	if c.Sources.Reconnect.MaxAttempts == 0 {
		c.Sources.Reconnect.MaxAttempts = 5
	}
	if c.Sources.MaxRuntime == 0 {
		c.Sources.MaxRuntime = 6 * time.Hour
	}
	if c.Sources.Crypto.WebSocketURL == "" {
		c.Sources.Crypto.WebSocketURL = "wss://stream.binance.com:9443/ws"
	}
	if c.Sources.Crypto.RestURL == "" {
		c.Sources.Crypto.RestURL = "https://api.binance.com"
	}
	if c.Sources.Crypto.PingInterval == 0 {
		c.Sources.Crypto.PingInterval = 30 * time.Second
	}
	if c.Sources.Crypto.CacheTTL == 0 {
		c.Sources.Crypto.CacheTTL = 30 * time.Second
	}
	if c.Sources.Equity.Interval == 0 {
		c.Sources.Equity.Interval = 2 * time.Second
	}
	if c.Sources.Equity.CacheTTL == 0 {
		c.Sources.Equity.CacheTTL = time.Minute
	}
	if c.Sources.Carbon.PollInterval == 0 {
		c.Sources.Carbon.PollInterval = 15 * time.Minute
	}
	if c.Sources.Carbon.CacheTTL == 0 {
		c.Sources.Carbon.CacheTTL = time.Hour
	}
	if c.Sources.Equity.Enabled && len(c.Sources.Equity.Symbols) == 0 {
		c.Sources.Equity.Symbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA"}
	}
	if c.Sources.Carbon.Enabled && len(c.Sources.Carbon.Symbols) == 0 {
		c.Sources.Carbon.Symbols = []string{"EUA", "CCA", "VCS"}
	}
	if c.Forecast.ModelTimeout == 0 {
		c.Forecast.ModelTimeout = 30 * time.Second
	}
	if c.Forecast.ResultCacheTTL == 0 {
		c.Forecast.ResultCacheTTL = 5 * time.Minute
	}
	if c.Forecast.MinHistoryDays == 0 {
		c.Forecast.MinHistoryDays = 365
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Sources.Crypto.Enabled && len(c.Sources.Crypto.Symbols) == 0 {
		return fmt.Errorf("sources.crypto.symbols cannot be empty when crypto is enabled")
	}
	if c.Sources.Carbon.Enabled && c.Sources.Carbon.BaseURL == "" {
		return fmt.Errorf("sources.carbon.base_url is required when carbon is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
