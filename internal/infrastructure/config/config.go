package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/iplixera/nivostack-monorepo-sub006/internal/domain/billing"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Enforcement EnforcementConfig
	Policy      PolicyConfig
	Quota       QuotaConfig
	Scheduler   SchedulerConfig
	Telemetry   TelemetryConfig
	Profiling   ProfilingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, mysql, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file, ":memory:" allowed
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled             bool
	Host                string
	Port                int
	Password            string
	DB                  int
	InvalidationChannel string
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds settings for verifying dashboard tokens
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	AdminAPIKey      string // shared secret for /admin routes
	MaxBodyBytes     int64
	SDKRateLimit     int // requests per SDKRateWindow per API key, 0 disables
	SDKRateWindow    time.Duration
}

// EnforcementConfig holds evaluator thresholds and recompute intervals
type EnforcementConfig struct {
	WarnThreshold    float64
	GraceDuration    time.Duration
	ActiveInterval   time.Duration
	WarnInterval     time.Duration
	GraceInterval    time.Duration
	DegradedInterval time.Duration
}

// PolicyConfig holds effective policy constants
type PolicyConfig struct {
	RetentionDays        int
	MinRetentionDays     int
	GraceRetentionCut    int
	GraceSamplingRate    float64
	DegradedSamplingRate float64
}

// QuotaConfig holds Quota Gate settings
type QuotaConfig struct {
	CountCacheEnabled bool
	CountCacheTTL     time.Duration
}

// SchedulerConfig holds the enforcement sweep and renewal job settings
type SchedulerConfig struct {
	Enabled       bool
	SweepInterval time.Duration
	BatchSize     int
	Timeout       time.Duration
	RunOnStartup  bool

	// FailureBackoff delays the next sweep of a tenant whose evaluation failed
	FailureBackoff time.Duration

	RenewalEnabled   bool
	RenewalInterval  time.Duration
	RenewalBatchSize int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	ServiceName       string
	MeterName         string
	CollectorEndpoint string
	Insecure          bool
	SamplingRatio     float64
	ExportInterval    time.Duration
	LogsEnabled       bool // forward zap records over OTLP
	DBTracing         bool // otelgorm spans for every query
}

// ProfilingConfig holds Pyroscope continuous profiling settings
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	ProfileTypes      []string
	SpanProfiles      bool // link CPU samples to trace spans
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with QUOTA_ prefix (e.g., QUOTA_DATABASE_PASSWORD)
// 2. .env file in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("QUOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("scheduler.renewal_enabled", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:             v.GetBool("redis.enabled"),
			Host:                v.GetString("redis.host"),
			Port:                v.GetInt("redis.port"),
			Password:            v.GetString("redis.password"),
			DB:                  v.GetInt("redis.db"),
			InvalidationChannel: v.GetString("redis.invalidation_channel"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			AdminAPIKey:      v.GetString("http.admin_api_key"),
			MaxBodyBytes:     v.GetInt64("http.max_body_bytes"),
			SDKRateLimit:     v.GetInt("http.sdk_rate_limit"),
			SDKRateWindow:    v.GetDuration("http.sdk_rate_window"),
		},
		Enforcement: EnforcementConfig{
			WarnThreshold:    v.GetFloat64("enforcement.warn_threshold"),
			GraceDuration:    v.GetDuration("enforcement.grace_duration"),
			ActiveInterval:   v.GetDuration("enforcement.interval_active"),
			WarnInterval:     v.GetDuration("enforcement.interval_warn"),
			GraceInterval:    v.GetDuration("enforcement.interval_grace"),
			DegradedInterval: v.GetDuration("enforcement.interval_degraded"),
		},
		Policy: PolicyConfig{
			RetentionDays:        v.GetInt("policy.retention_days"),
			MinRetentionDays:     v.GetInt("policy.min_retention_days"),
			GraceRetentionCut:    v.GetInt("policy.grace_retention_cut"),
			GraceSamplingRate:    v.GetFloat64("policy.grace_sampling_rate"),
			DegradedSamplingRate: v.GetFloat64("policy.degraded_sampling_rate"),
		},
		Quota: QuotaConfig{
			CountCacheEnabled: v.GetBool("quota.count_cache_enabled"),
			CountCacheTTL:     v.GetDuration("quota.count_cache_ttl"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			SweepInterval: v.GetDuration("scheduler.sweep_interval"),
			BatchSize:     v.GetInt("scheduler.batch_size"),
			Timeout:       v.GetDuration("scheduler.timeout"),
			RunOnStartup:  v.GetBool("scheduler.run_on_startup"),

			FailureBackoff:   v.GetDuration("scheduler.failure_backoff"),
			RenewalEnabled:   v.GetBool("scheduler.renewal_enabled"),
			RenewalInterval:  v.GetDuration("scheduler.renewal_interval"),
			RenewalBatchSize: v.GetInt("scheduler.renewal_batch_size"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			ServiceName:       v.GetString("telemetry.service_name"),
			MeterName:         v.GetString("telemetry.meter_name"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			Insecure:          v.GetBool("telemetry.insecure"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTracing:         v.GetBool("telemetry.db_tracing"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			ProfileTypes:      v.GetStringSlice("profiling.profile_types"),
			SpanProfiles:      v.GetBool("profiling.span_profiles"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "quota-engine"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		switch cfg.Database.Driver {
		case DriverMySQL:
			cfg.Database.Port = 3306
		default:
			cfg.Database.Port = 5432
		}
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "quota"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "quota.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.InvalidationChannel == "" {
		cfg.Redis.InvalidationChannel = "enforcement:invalidate"
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "nivostack"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "X-API-Key"}
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 1 << 20
	}
	if cfg.HTTP.SDKRateWindow == 0 {
		cfg.HTTP.SDKRateWindow = time.Minute
	}

	ev := billing.DefaultEvaluatorConfig()
	if cfg.Enforcement.WarnThreshold == 0 {
		cfg.Enforcement.WarnThreshold = ev.WarnThreshold
	}
	if cfg.Enforcement.GraceDuration == 0 {
		cfg.Enforcement.GraceDuration = ev.GraceDuration
	}
	if cfg.Enforcement.ActiveInterval == 0 {
		cfg.Enforcement.ActiveInterval = ev.ActiveInterval
	}
	if cfg.Enforcement.WarnInterval == 0 {
		cfg.Enforcement.WarnInterval = ev.WarnInterval
	}
	if cfg.Enforcement.GraceInterval == 0 {
		cfg.Enforcement.GraceInterval = ev.GraceInterval
	}
	if cfg.Enforcement.DegradedInterval == 0 {
		cfg.Enforcement.DegradedInterval = ev.DegradedInterval
	}

	pc := billing.DefaultPolicyConfig()
	if cfg.Policy.RetentionDays == 0 {
		cfg.Policy.RetentionDays = pc.RetentionDays
	}
	if cfg.Policy.MinRetentionDays == 0 {
		cfg.Policy.MinRetentionDays = pc.MinRetentionDays
	}
	if cfg.Policy.GraceRetentionCut == 0 {
		cfg.Policy.GraceRetentionCut = pc.GraceRetentionCut
	}
	if cfg.Policy.GraceSamplingRate == 0 {
		cfg.Policy.GraceSamplingRate = pc.GraceSamplingRate
	}
	if cfg.Policy.DegradedSamplingRate == 0 {
		cfg.Policy.DegradedSamplingRate = pc.DegradedSamplingRate
	}

	if cfg.Quota.CountCacheTTL == 0 {
		cfg.Quota.CountCacheTTL = 10 * time.Second
	}
	if cfg.Scheduler.SweepInterval == 0 {
		cfg.Scheduler.SweepInterval = time.Minute
	}
	if cfg.Scheduler.BatchSize == 0 {
		cfg.Scheduler.BatchSize = 200
	}
	if cfg.Scheduler.Timeout == 0 {
		cfg.Scheduler.Timeout = 5 * time.Minute
	}
	if cfg.Scheduler.FailureBackoff == 0 {
		cfg.Scheduler.FailureBackoff = 5 * time.Minute
	}
	if cfg.Scheduler.RenewalInterval == 0 {
		cfg.Scheduler.RenewalInterval = time.Hour
	}
	if cfg.Scheduler.RenewalBatchSize == 0 {
		cfg.Scheduler.RenewalBatchSize = 100
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MeterName == "" {
		cfg.Telemetry.MeterName = "github.com/iplixera/nivostack-monorepo-sub006"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 60 * time.Second
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.App.Name
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be one of postgres, mysql, sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if err := c.EvaluatorConfig().Validate(); err != nil {
		return fmt.Errorf("enforcement: %w", err)
	}
	if err := c.PolicyConfig().Validate(); err != nil {
		return err
	}
	if c.Quota.CountCacheTTL < 0 {
		return fmt.Errorf("quota.count_cache_ttl cannot be negative")
	}
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("scheduler.batch_size must be positive")
	}
	if c.Scheduler.FailureBackoff < 0 {
		return fmt.Errorf("scheduler.failure_backoff cannot be negative")
	}
	if c.Scheduler.RenewalBatchSize <= 0 {
		return fmt.Errorf("scheduler.renewal_batch_size must be positive")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be in [0, 1], got %v", c.Telemetry.SamplingRatio)
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling is enabled")
	}

	if c.App.Env == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.HTTP.AdminAPIKey == "" {
			return fmt.Errorf("http.admin_api_key is required in production")
		}
		if c.Database.Driver == DriverSQLite {
			return fmt.Errorf("database.driver sqlite is not supported in production")
		}
		if c.Database.Driver == DriverPostgres && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	return nil
}

// EvaluatorConfig converts the enforcement section for the evaluator
func (c *Config) EvaluatorConfig() billing.EvaluatorConfig {
	return billing.EvaluatorConfig{
		WarnThreshold:    c.Enforcement.WarnThreshold,
		GraceDuration:    c.Enforcement.GraceDuration,
		ActiveInterval:   c.Enforcement.ActiveInterval,
		WarnInterval:     c.Enforcement.WarnInterval,
		GraceInterval:    c.Enforcement.GraceInterval,
		DegradedInterval: c.Enforcement.DegradedInterval,
	}
}

// PolicyConfig converts the policy section for the compiler
func (c *Config) PolicyConfig() billing.PolicyConfig {
	return billing.PolicyConfig{
		RetentionDays:        c.Policy.RetentionDays,
		MinRetentionDays:     c.Policy.MinRetentionDays,
		GraceRetentionCut:    c.Policy.GraceRetentionCut,
		GraceSamplingRate:    c.Policy.GraceSamplingRate,
		DegradedSamplingRate: c.Policy.DegradedSamplingRate,
	}
}

// DSN returns the driver-specific connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, d.Password, d.Host, d.Port, d.DBName)
	case DriverSQLite:
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
