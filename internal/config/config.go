package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	Gateway     GatewayConfig
	Reservation ReservationConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type KafkaConfig struct {
	Brokers  []string
	GroupID  string
	MockMode bool
}

type RedisConfig struct {
	Addr string
}

// GatewayConfig drives the external P2C client. MaxAttempts and BackoffBase
// intentionally default differently for live and non-live environments.
type GatewayConfig struct {
	BaseURL     string
	Affiliation string
	Live        bool
	MaxAttempts int
	BackoffBase time.Duration
	Timeout     time.Duration
}

type ReservationConfig struct {
	GatewayWindow time.Duration
	ManualWindow  time.Duration
	SweepInterval time.Duration
	MaxItems      int
	UnitPrice     float64
}

func Load() *Config {
	live := envBool("GATEWAY_LIVE", false)

	defaultAttempts := 2
	defaultBackoff := 500 * time.Millisecond
	if live {
		defaultAttempts = 5
		defaultBackoff = 2 * time.Second
	}

	return &Config{
		Server: ServerConfig{
			Port:         env("SERVER_PORT", ":8085"),
			ReadTimeout:  envDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: envDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  envDuration("SERVER_IDLE_TIMEOUT", 90*time.Second),
		},
		Database: DatabaseConfig{
			Host:         env("DB_HOST", "localhost"),
			Port:         env("DB_PORT", "3306"),
			Username:     env("DB_USER", "root"),
			Password:     env("DB_PASSWORD", ""),
			Database:     env("DB_NAME", "registration"),
			MaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:  strings.Split(env("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID:  env("KAFKA_GROUP_ID", "registration-gateway"),
			MockMode: envBool("KAFKA_MOCK", true),
		},
		Redis: RedisConfig{
			Addr: env("REDIS_ADDR", "localhost:6379"),
		},
		Gateway: GatewayConfig{
			BaseURL:     env("GATEWAY_BASE_URL", "https://p2c.example.net.ve/ws"),
			Affiliation: env("GATEWAY_AFFILIATION", ""),
			Live:        live,
			MaxAttempts: envInt("GATEWAY_MAX_ATTEMPTS", defaultAttempts),
			BackoffBase: envDuration("GATEWAY_BACKOFF_BASE", defaultBackoff),
			Timeout:     envDuration("GATEWAY_TIMEOUT", 45*time.Second),
		},
		Reservation: ReservationConfig{
			GatewayWindow: envDuration("RESERVATION_GATEWAY_WINDOW", 30*time.Minute),
			ManualWindow:  envDuration("RESERVATION_MANUAL_WINDOW", 72*time.Hour),
			SweepInterval: envDuration("RESERVATION_SWEEP_INTERVAL", 5*time.Minute),
			MaxItems:      envInt("RESERVATION_MAX_ITEMS", 5),
			UnitPrice:     envFloat("REGISTRATION_UNIT_PRICE", 25.00),
		},
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
