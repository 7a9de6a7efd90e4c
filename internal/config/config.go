package config

import (
	"bytes"
	_ "embed"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Postgres  DatabaseConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type RelayConfig struct {
	Channel          string        `mapstructure:"channel"` // pg NOTIFY channel
	BatchSize        int           `mapstructure:"batch_size"`
	FallbackInterval time.Duration `mapstructure:"fallback_interval"`
}

type DeliveryConfig struct {
	Workers      int           `mapstructure:"workers"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	LeaseTimeout time.Duration `mapstructure:"lease_timeout"`
}

type WebhooksConfig struct {
	// TestMode allows http://localhost and http://127.0.0.1 subscription
	// URLs for local integration testing. Never enable in production.
	TestMode bool `mapstructure:"test_mode"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (LIVECHAT_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (LIVECHAT_*)
	v.SetEnvPrefix("LIVECHAT")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
