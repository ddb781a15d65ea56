// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	ServiceName       string
	Env               string
	HTTPPort          string
	GRPCPort          string
	LowStockThreshold int
	// InventoryGRPCAddr points checkout stock reads at a remote inventory
	// service instead of the local database.
	InventoryGRPCAddr string

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Admin    AdminConfig
	Storage  StorageConfig
	Tracing  TracingConfig
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	CartTTL  time.Duration
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type KafkaConfig struct {
	Brokers     []string
	Topic       string
	NotifyGroup string
}

type AdminConfig struct {
	Password      string
	SessionSecret string
	SessionTTL    time.Duration
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	PublicURL string
	UseSSL    bool
}

// Enabled reports whether an object store was configured.
func (s StorageConfig) Enabled() bool {
	return s.Endpoint != ""
}

type TracingConfig struct {
	JaegerEndpoint string
}

var ErrMissingAdminPassword = errors.New("ADMIN_PASSWORD must be set")

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "storefront-service")
	v.SetDefault("APP_ENV", EnvProduction)
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("GRPC_PORT", "50052")
	v.SetDefault("LOW_STOCK_THRESHOLD", 5)
	v.SetDefault("INVENTORY_GRPC_ADDR", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "storefront")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", time.Minute)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CART_TTL", 30*24*time.Hour)

	v.SetDefault("KAFKA_BROKER", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "order_events")
	v.SetDefault("KAFKA_NOTIFY_GROUP", "storefront-notifier")

	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_TTL", 24*time.Hour)

	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "products")
	v.SetDefault("STORAGE_PUBLIC_URL", "")
	v.SetDefault("STORAGE_USE_SSL", true)

	v.SetDefault("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
}

// Load reads configuration from environment variables, falling back to
// defaults suitable for local development.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ServiceName:       v.GetString("SERVICE_NAME"),
		Env:               strings.ToLower(v.GetString("APP_ENV")),
		HTTPPort:          v.GetString("HTTP_PORT"),
		GRPCPort:          v.GetString("GRPC_PORT"),
		LowStockThreshold: v.GetInt("LOW_STOCK_THRESHOLD"),
		InventoryGRPCAddr: v.GetString("INVENTORY_GRPC_ADDR"),
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetString("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			SSLMode:         v.GetString("DB_SSLMODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			CartTTL:  v.GetDuration("CART_TTL"),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(v.GetString("KAFKA_BROKER")),
			Topic:       v.GetString("KAFKA_TOPIC"),
			NotifyGroup: v.GetString("KAFKA_NOTIFY_GROUP"),
		},
		Admin: AdminConfig{
			Password:      v.GetString("ADMIN_PASSWORD"),
			SessionSecret: v.GetString("SESSION_SECRET"),
			SessionTTL:    v.GetDuration("SESSION_TTL"),
		},
		Storage: StorageConfig{
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			PublicURL: v.GetString("STORAGE_PUBLIC_URL"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
		},
		Tracing: TracingConfig{
			JaegerEndpoint: v.GetString("JAEGER_ENDPOINT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Admin.Password == "" {
		return ErrMissingAdminPassword
	}
	if c.Admin.SessionSecret == "" {
		// Sessions still need a signing key; derive one so development
		// setups only have to provide the password.
		if !c.IsDevelopment() {
			return errors.New("SESSION_SECRET must be set outside development")
		}
		c.Admin.SessionSecret = "dev-session-" + c.Admin.Password
	}
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD must be >= 0, got %d", c.LowStockThreshold)
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKER must list at least one broker")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
