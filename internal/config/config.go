// Package config loads service settings from defaults, an optional config
// file, .env and INVOICEDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "INVOICEDESK"

type Config struct {
	HTTP     HTTPConfig
	Store    StoreConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Log      LogConfig
	Retry    RetryConfig
	Workflow WorkflowConfig
}

type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	AllowOrigins    []string
}

type StoreConfig struct {
	Kind string // memory | mongo
}

type MongoConfig struct {
	URI            string
	Database       string
	BackupDatabase string // пусто: без зеркалирования
}

type RedisConfig struct {
	Addr     string // пусто: без кэша
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string // пусто: события не публикуются
	Topic   string
}

type LogConfig struct {
	Level   string
	Format  string // text | json
	Persist bool   // писать warn+ в коллекцию logs
}

type RetryConfig struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

type WorkflowConfig struct {
	MaxResumes int
}

// SetDefaults registers every key so env overrides work without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":9091")
	v.SetDefault("http.shutdown_timeout", 5*time.Second)
	v.SetDefault("http.allow_origins", []string{"*"})
	v.SetDefault("store.kind", "memory")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "invoicedesk")
	v.SetDefault("mongo.backup_database", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "invoice-events")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.persist", false)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("workflow.max_resumes", 3)
}

// New returns a viper instance with defaults and env binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present) and the optional config file into v.
func Load(v *viper.Viper, path string) (*Config, error) {
	_ = godotenv.Load()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func FromViper(v *viper.Viper) *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            v.GetString("http.addr"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			AllowOrigins:    v.GetStringSlice("http.allow_origins"),
		},
		Store: StoreConfig{Kind: strings.ToLower(v.GetString("store.kind"))},
		Mongo: MongoConfig{
			URI:            v.GetString("mongo.uri"),
			Database:       v.GetString("mongo.database"),
			BackupDatabase: v.GetString("mongo.backup_database"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		Log: LogConfig{
			Level:   v.GetString("log.level"),
			Format:  v.GetString("log.format"),
			Persist: v.GetBool("log.persist"),
		},
		Retry: RetryConfig{
			BaseDelay:   v.GetDuration("retry.base_delay"),
			MaxAttempts: v.GetInt("retry.max_attempts"),
		},
		Workflow: WorkflowConfig{MaxResumes: v.GetInt("workflow.max_resumes")},
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Kind {
	case "memory":
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("mongo.uri and mongo.database are required for store.kind=mongo"))
		}
		if c.Mongo.BackupDatabase != "" && c.Mongo.BackupDatabase == c.Mongo.Database {
			errs = append(errs, errors.New("mongo.backup_database must differ from mongo.database"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.kind %q (memory|mongo)", c.Store.Kind))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.BaseDelay < 0 {
		errs = append(errs, errors.New("retry.base_delay must be non-negative"))
	}
	if c.Workflow.MaxResumes < 0 {
		errs = append(errs, errors.New("workflow.max_resumes must be non-negative"))
	}
	return errors.Join(errs...)
}
