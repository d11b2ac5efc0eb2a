package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"PortfolioPulse/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`

	Log struct {
		Level        string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format       string        `yaml:"format" default:"console" validate:"oneof=json console"`
		Output       string        `yaml:"output" default:"stdout"`
		CollectTopic string        `yaml:"collect_topic"`
		CollectEvery time.Duration `yaml:"collect_every" default:"30s"`
	} `yaml:"log"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
		CORS            bool          `yaml:"cors" default:"true"`
	} `yaml:"server"`

	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`

	Engine struct {
		CacheTTLSeconds  int                `yaml:"cache_ttl_seconds" default:"300" validate:"min=0"`
		CacheCapacity    int                `yaml:"cache_capacity" default:"10000" validate:"min=1"`
		CacheShards      int                `yaml:"cache_shards" default:"16" validate:"min=1"`
		MaxBatchSize     int                `yaml:"max_batch_size" default:"50" validate:"min=1"`
		MaxRetries       int                `yaml:"max_retries" default:"3" validate:"min=0"`
		MaxConcurrency   int                `yaml:"max_concurrency" default:"8" validate:"min=1"`
		RequestTimeout   time.Duration      `yaml:"request_timeout" default:"10s"`
		BackoffBase      time.Duration      `yaml:"backoff_base" default:"500ms"`
		BackoffCap       time.Duration      `yaml:"backoff_cap" default:"8s"`
		RateLimitPerSec  float64            `yaml:"rate_limit_per_sec" default:"5" validate:"gte=0"`
		RateLimitBurst   int                `yaml:"rate_limit_burst" default:"10" validate:"gte=0"`
		RiskFreeRate     float64            `yaml:"risk_free_rate" default:"0.02" validate:"gte=0,lt=1"`
		Benchmark        string             `yaml:"benchmark" default:"^GSPC" validate:"required"`
		Interval         string             `yaml:"interval" default:"1d"`
		Range            string             `yaml:"range" default:"6mo"`
		RSIPeriod        int                `yaml:"rsi_period" default:"14" validate:"min=2"`
		VaRConfidence    float64            `yaml:"var_confidence" default:"0.95" validate:"gt=0.5,lt=1"`
		DisplayCurrency  string             `yaml:"display_currency" default:"USD" validate:"len=3"`
		TargetAllocation map[string]float64 `yaml:"target_allocation"`
	} `yaml:"engine"`

	Provider struct {
		BaseURL   string            `yaml:"base_url" default:"https://query1.finance.yahoo.com" validate:"required,url"`
		UserAgent string            `yaml:"user_agent" default:"Mozilla/5.0 (compatible; PortfolioPulse/1.0)"`
		Aliases   map[string]string `yaml:"aliases"`
	} `yaml:"provider"`

	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Host      string        `yaml:"host" default:"localhost"`
		Port      int           `yaml:"port" default:"6379"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		Prefix    string        `yaml:"prefix" default:"pulse"`
		Retention time.Duration `yaml:"retention" default:"168h"`
	} `yaml:"redis"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RunsTopic    string   `yaml:"runs_topic" default:"pulse.analysis.runs"`
		RefreshTopic string   `yaml:"refresh_topic" default:"pulse.refresh"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Consumer     struct {
			GroupID    string        `yaml:"group_id" default:"portfolio-pulse"`
			Workers    int           `yaml:"workers" default:"2" validate:"min=1"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		Table            string        `yaml:"table" default:"price_history"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5"`
		ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" default:"5m"`
	} `yaml:"clickhouse"`

	Finnhub struct {
		Enabled        bool          `yaml:"enabled"`
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxRPS         int           `yaml:"max_rps" default:"5"`
	} `yaml:"finnhub"`

	Schedule struct {
		Enabled   bool     `yaml:"enabled"`
		Watchlist []string `yaml:"watchlist"`
		QuoteCron string   `yaml:"quote_cron" default:"*/5 * * * *"`
		// HistoryCron refreshes benchmark and watchlist series.
		HistoryCron string `yaml:"history_cron" default:"0 22 * * 1-5"`
		Timezone    string `yaml:"timezone" default:"America/New_York"`
	} `yaml:"schedule"`

	Recorder struct {
		Path string `yaml:"path"`
	} `yaml:"recorder"`
}

var validate = validator.New()

// Default returns a config with every default applied.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("PULSE_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("PROVIDER_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port := v, c.Redis.Port
		if i := strings.LastIndexByte(v, ':'); i > 0 {
			host = v[:i]
			port = util.ParseIntDefault(v[i+1:], port)
		}
		c.Redis.Host, c.Redis.Port = host, port
		c.Redis.Enabled = true
	}
	if v := getenv("WATCHLIST"); v != "" {
		c.Schedule.Watchlist = util.SplitCSV(v)
	}
}

// Validate runs tag validation and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Engine.BackoffCap < c.Engine.BackoffBase {
		return fmt.Errorf("engine.backoff_cap must be >= engine.backoff_base")
	}
	if c.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Finnhub.Enabled {
		if c.Finnhub.APIKey == "" {
			return fmt.Errorf("finnhub.api_key is required when finnhub is enabled")
		}
		if len(c.Finnhub.Symbols) == 0 {
			return fmt.Errorf("finnhub.symbols cannot be empty when finnhub is enabled")
		}
	}
	if c.Schedule.Enabled && len(c.Schedule.Watchlist) == 0 {
		return fmt.Errorf("schedule.watchlist cannot be empty when schedule is enabled")
	}
	var total float64
	for asset, w := range c.Engine.TargetAllocation {
		if w < 0 {
			return fmt.Errorf("engine.target_allocation.%s must be >= 0", asset)
		}
		total += w
	}
	if len(c.Engine.TargetAllocation) > 0 && total <= 0 {
		return fmt.Errorf("engine.target_allocation must have a positive total")
	}
	return nil
}

// CacheTTL is Engine.CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Engine.CacheTTLSeconds) * time.Second
}
