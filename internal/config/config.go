package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port         string        `mapstructure:"port"`
	Env          string        `mapstructure:"app_env"`
	AllowOrigins string        `mapstructure:"allow_origins"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTTTL       time.Duration `mapstructure:"jwt_ttl"`
	UploadDir    string        `mapstructure:"upload_dir"`

	DatabaseURL string `mapstructure:"database_url"`
	StoreDriver string `mapstructure:"store_driver"`
	MongoURI    string `mapstructure:"mongo_uri"`
	MongoDB     string `mapstructure:"mongo_db"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	KafkaBrokers     string `mapstructure:"kafka_brokers"`
	KafkaNotifyTopic string `mapstructure:"kafka_notify_topic"`

	WS         WSConfig        `mapstructure:",squash"`
	RateLimits RateLimitConfig `mapstructure:",squash"`
}

// WSConfig tunes the live gateway.
type WSConfig struct {
	PingInterval    time.Duration `mapstructure:"ws_ping_interval"`
	PongWait        time.Duration `mapstructure:"ws_pong_wait"`
	WriteWait       time.Duration `mapstructure:"ws_write_wait"`
	AuthTimeout     time.Duration `mapstructure:"ws_auth_timeout"`
	MaxMessageSize  int64         `mapstructure:"ws_max_message_size"`
	EventsPerSecond float64       `mapstructure:"ws_events_per_second"`
}

// RateLimitConfig sizes the HTTP rate limit tiers. Zero values fall back
// to the built-in tier sizes.
type RateLimitConfig struct {
	AuthMax      int           `mapstructure:"rate_auth_max"`
	AuthWindow   time.Duration `mapstructure:"rate_auth_window"`
	WriteMax     int           `mapstructure:"rate_write_max"`
	ReadMax      int           `mapstructure:"rate_read_max"`
	Window       time.Duration `mapstructure:"rate_window"`
	UploadMax    int           `mapstructure:"rate_upload_max"`
	UploadWindow time.Duration `mapstructure:"rate_upload_window"`
}

var defaults = map[string]interface{}{
	"port":                 "8080",
	"app_env":              "development",
	"allow_origins":        "http://localhost:3000",
	"jwt_secret":           "",
	"jwt_ttl":              "24h",
	"upload_dir":           "./uploads",
	"database_url":         "",
	"store_driver":         "mongo",
	"mongo_uri":            "mongodb://localhost:27017",
	"mongo_db":             "alumnichat",
	"redis_addr":           "",
	"redis_password":       "",
	"redis_db":             0,
	"kafka_brokers":        "",
	"kafka_notify_topic":   "chat.offline-messages",
	"ws_ping_interval":     "54s",
	"ws_pong_wait":         "60s",
	"ws_write_wait":        "10s",
	"ws_auth_timeout":      "10s",
	"ws_max_message_size":  8192,
	"ws_events_per_second": 10.0,
	"rate_auth_max":        5,
	"rate_auth_window":     "15m",
	"rate_write_max":       30,
	"rate_read_max":        100,
	"rate_window":          "1m",
	"rate_upload_max":      10,
	"rate_upload_window":   "5m",
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}
	switch c.StoreDriver {
	case "mongo":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL environment variable is not set")
		}
	case "memory":
	default:
		return errors.New("STORE_DRIVER must be mongo or memory")
	}
	if c.WS.PongWait <= c.WS.PingInterval {
		return errors.New("WS_PONG_WAIT must be longer than WS_PING_INTERVAL")
	}
	if c.WS.EventsPerSecond <= 0 {
		return errors.New("WS_EVENTS_PER_SECOND must be positive")
	}
	r := c.RateLimits
	if r.AuthMax < 0 || r.WriteMax < 0 || r.ReadMax < 0 || r.UploadMax < 0 {
		return errors.New("RATE_*_MAX must not be negative")
	}
	if r.AuthWindow < 0 || r.Window < 0 || r.UploadWindow < 0 {
		return errors.New("RATE_*_WINDOW must not be negative")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Brokers splits KAFKA_BROKERS; empty means no broker.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
