// Package config loads booking-service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "github.com/md-rashed-zaman/slotbook/libs/config"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Business struct {
	Timezone             *time.Location
	DayStartHour         int
	DayEndHour           int
	SlotDuration         time.Duration
	CancellationLeadTime time.Duration
}

type Config struct {
	ServiceName     string
	HTTPPort        string
	GRPCPort        string
	LogLevel        string
	ShutdownTimeout time.Duration

	StoreDriver     string
	DatabaseURL     string
	DBMaxConns      int32
	DatabaseMigrate bool

	Business Business
	PageSize int

	JWTSecret string
	TokenTTL  time.Duration

	KafkaBrokers string
	KafkaGroupID string

	RedisAddr       string
	RateLimit       int
	RateLimitWindow time.Duration
	// TrustedProxies are the peers whose X-Forwarded-For header is believed for rate limiting.
	TrustedProxies []string

	CORSAllowedOrigins []string

	DirectoryCacheSize int
	DirectoryCacheTTL  time.Duration
}

func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SLOTBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("service.name", "booking-service")
	v.SetDefault("http.port", "8080")
	v.SetDefault("grpc.port", "9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("shutdown.timeout", "10s")
	v.SetDefault("store.driver", StorePostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.migrate", true)
	v.SetDefault("business.timezone", "UTC")
	v.SetDefault("business.day_start_hour", 8)
	v.SetDefault("business.day_end_hour", 18)
	v.SetDefault("business.slot_duration", "1h")
	v.SetDefault("business.cancellation_lead_time", "2h")
	v.SetDefault("page.size", 20)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.group_id", "booking-service")
	v.SetDefault("redis.addr", "")
	v.SetDefault("ratelimit.limit", 120)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("ratelimit.trusted_proxies", "")
	v.SetDefault("cors.allowed_origins", "")
	v.SetDefault("directory.cache_size", 1024)
	v.SetDefault("directory.cache_ttl", "1m")

	_ = v.BindEnv("service.name", "SLOTBOOK_SERVICE_NAME", "SERVICE_NAME")
	_ = v.BindEnv("http.port", "SLOTBOOK_HTTP_PORT", "PORT")
	_ = v.BindEnv("grpc.port", "SLOTBOOK_GRPC_PORT", "GRPC_PORT")
	_ = v.BindEnv("log.level", "SLOTBOOK_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("shutdown.timeout", "SLOTBOOK_SHUTDOWN_TIMEOUT", "SHUTDOWN_TIMEOUT")
	_ = v.BindEnv("store.driver", "SLOTBOOK_STORE_DRIVER")
	_ = v.BindEnv("database.url", "SLOTBOOK_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("database.max_conns", "SLOTBOOK_DATABASE_MAX_CONNS")
	_ = v.BindEnv("database.migrate", "SLOTBOOK_DATABASE_MIGRATE")
	_ = v.BindEnv("business.timezone", "SLOTBOOK_BUSINESS_TIMEZONE")
	_ = v.BindEnv("business.day_start_hour", "SLOTBOOK_BUSINESS_DAY_START_HOUR")
	_ = v.BindEnv("business.day_end_hour", "SLOTBOOK_BUSINESS_DAY_END_HOUR")
	_ = v.BindEnv("business.slot_duration", "SLOTBOOK_BUSINESS_SLOT_DURATION")
	_ = v.BindEnv("business.cancellation_lead_time", "SLOTBOOK_BUSINESS_CANCELLATION_LEAD_TIME")
	_ = v.BindEnv("page.size", "SLOTBOOK_PAGE_SIZE")
	_ = v.BindEnv("auth.jwt_secret", "SLOTBOOK_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("auth.token_ttl", "SLOTBOOK_AUTH_TOKEN_TTL")
	_ = v.BindEnv("kafka.brokers", "SLOTBOOK_KAFKA_BROKERS", "KAFKA_BROKERS")
	_ = v.BindEnv("kafka.group_id", "SLOTBOOK_KAFKA_GROUP_ID", "KAFKA_GROUP_ID")
	_ = v.BindEnv("redis.addr", "SLOTBOOK_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("ratelimit.limit", "SLOTBOOK_RATELIMIT_LIMIT")
	_ = v.BindEnv("ratelimit.window", "SLOTBOOK_RATELIMIT_WINDOW")
	_ = v.BindEnv("ratelimit.trusted_proxies", "SLOTBOOK_RATELIMIT_TRUSTED_PROXIES")
	_ = v.BindEnv("cors.allowed_origins", "SLOTBOOK_CORS_ALLOWED_ORIGINS", "CORS_ALLOWED_ORIGINS")
	_ = v.BindEnv("directory.cache_size", "SLOTBOOK_DIRECTORY_CACHE_SIZE")
	_ = v.BindEnv("directory.cache_ttl", "SLOTBOOK_DIRECTORY_CACHE_TTL")

	var cfg Config
	for key, dst := range map[string]*time.Duration{
		"shutdown.timeout":                &cfg.ShutdownTimeout,
		"business.slot_duration":          &cfg.Business.SlotDuration,
		"business.cancellation_lead_time": &cfg.Business.CancellationLeadTime,
		"auth.token_ttl":                  &cfg.TokenTTL,
		"ratelimit.window":                &cfg.RateLimitWindow,
		"directory.cache_ttl":             &cfg.DirectoryCacheTTL,
	} {
		d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	loc, err := time.LoadLocation(strings.TrimSpace(v.GetString("business.timezone")))
	if err != nil {
		return Config{}, fmt.Errorf("business.timezone: %w", err)
	}

	cfg.ServiceName = strings.TrimSpace(v.GetString("service.name"))
	cfg.HTTPPort = strings.TrimSpace(v.GetString("http.port"))
	cfg.GRPCPort = strings.TrimSpace(v.GetString("grpc.port"))
	cfg.LogLevel = strings.TrimSpace(v.GetString("log.level"))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(v.GetString("store.driver")))
	cfg.DatabaseURL = strings.TrimSpace(v.GetString("database.url"))
	cfg.DBMaxConns = v.GetInt32("database.max_conns")
	cfg.DatabaseMigrate = v.GetBool("database.migrate")
	cfg.Business.Timezone = loc
	cfg.Business.DayStartHour = v.GetInt("business.day_start_hour")
	cfg.Business.DayEndHour = v.GetInt("business.day_end_hour")
	cfg.PageSize = v.GetInt("page.size")
	cfg.JWTSecret = v.GetString("auth.jwt_secret")
	cfg.KafkaBrokers = strings.TrimSpace(v.GetString("kafka.brokers"))
	cfg.KafkaGroupID = strings.TrimSpace(v.GetString("kafka.group_id"))
	cfg.RedisAddr = strings.TrimSpace(v.GetString("redis.addr"))
	cfg.RateLimit = v.GetInt("ratelimit.limit")
	cfg.TrustedProxies = libconfig.List(v.GetString("ratelimit.trusted_proxies"))
	cfg.CORSAllowedOrigins = libconfig.List(v.GetString("cors.allowed_origins"))
	cfg.DirectoryCacheSize = v.GetInt("directory.cache_size")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if err := libconfig.ValidatePort(c.HTTPPort); err != nil {
		errs = append(errs, fmt.Errorf("http.port: %w", err))
	}
	if err := libconfig.ValidatePort(c.GRPCPort); err != nil {
		errs = append(errs, fmt.Errorf("grpc.port: %w", err))
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.StoreDriver))
	}

	b := c.Business
	if b.DayStartHour < 0 || b.DayEndHour > 24 || b.DayStartHour >= b.DayEndHour {
		errs = append(errs, fmt.Errorf("business hours %d-%d: start must be before end within 0-24", b.DayStartHour, b.DayEndHour))
	} else if b.SlotDuration <= 0 {
		errs = append(errs, errors.New("business.slot_duration must be positive"))
	} else if span := time.Duration(b.DayEndHour-b.DayStartHour) * time.Hour; span%b.SlotDuration != 0 {
		errs = append(errs, fmt.Errorf("business.slot_duration %s does not divide business hours evenly", b.SlotDuration))
	}
	if b.CancellationLeadTime < 0 {
		errs = append(errs, errors.New("business.cancellation_lead_time must not be negative"))
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("ratelimit.limit must not be negative"))
	}
	if _, err := httpx.ParseTrustedProxies(c.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("ratelimit.trusted_proxies: %w", err))
	}
	return errors.Join(errs...)
}
