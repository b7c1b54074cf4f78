package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Log          LogConfig
	Telemetry    TelemetryConfig
	ERP          ERPConfig
	Marketplaces MarketplacesConfig
	Sync         SyncConfig
	Linking      LinkingConfig
	Fees         FeesConfig
	Classifier   ClassifierConfig
	Settlement   SettlementConfig
	Scheduler    SchedulerConfig
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
	// Timezone is the zone calendar days in requests are read in
	Timezone string
}

// Location returns the configured timezone, UTC when it cannot be loaded
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. An empty host disables the
// distributed run lock and the in-process lock is used instead.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
	CORSOrigins    []string
	// RateLimit is the sustained requests per second allowed per client IP;
	// zero disables rate limiting
	RateLimit      float64
	RateLimitBurst int
	// DocsEnabled serves the OpenAPI document and UI under /swagger; on by
	// default outside production
	DocsEnabled    bool
	DocsAllowedIPs []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogExportEnabled  bool
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings
	// Continuous profiling
	ProfilingEnabled bool
	PyroscopeServer  string
}

// ERPConfig holds the ERP API endpoint and OAuth2 credentials
type ERPConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Timeout      time.Duration
}

// MarketplaceClientConfig configures one marketplace order lookup client
type MarketplaceClientConfig struct {
	Enabled     bool
	BaseURL     string
	AccessToken string
	PartnerID   string
	// PartnerKey signs Shopee partner API requests
	PartnerKey string
	ShopID     string
	Timeout    time.Duration
	// RequestsPerSecond paces lookups against the marketplace API
	RequestsPerSecond float64
	// BreakerFailures consecutive failures open the circuit
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// MarketplacesConfig holds the lookup client of each marketplace
type MarketplacesConfig struct {
	Shopee       MarketplaceClientConfig
	MercadoLivre MarketplaceClientConfig
	Magalu       MarketplaceClientConfig
}

// SyncConfig tunes the differential ERP sync
type SyncConfig struct {
	PageSize        int
	WindowDays      int
	RequestInterval time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	MaxRequests     int
	LockTTL         time.Duration
}

// LinkingConfig tunes batch order linking and the auto-linker that reacts
// to synced orders
type LinkingConfig struct {
	Concurrency    int
	BatchLimit     int
	RetryAfter     time.Duration
	Lookback       time.Duration
	AutoLink       bool
	EventWorkers   int
	EventQueueSize int
}

// FeesConfig holds the fee rule seed file and the rule cache TTL
type FeesConfig struct {
	RulesFile string
	CacheTTL  time.Duration
}

// ClassifierConfig holds custom payment classification rules and tolerances
type ClassifierConfig struct {
	RulesFile string
	Epsilon   string
	Tolerance string
}

// SettlementConfig locates the S3-compatible settlement export bucket
type SettlementConfig struct {
	Bucket            string
	Prefix            string
	Region            string
	Endpoint          string
	AccessKey         string
	SecretKey         string
	UsePathStyle      bool
	PullLookback      time.Duration
	ResolveLimit      int
	// ResolveRetryAfter keeps unmatched lines out of resolution passes for a while
	ResolveRetryAfter time.Duration
}

// Enabled reports whether a settlement feed is configured
func (s SettlementConfig) Enabled() bool {
	return s.Bucket != ""
}

// SchedulerConfig holds the periodic job configuration
type SchedulerConfig struct {
	Enabled          bool
	SyncInterval     time.Duration
	SyncLookbackDays int
	LinkInterval     time.Duration
	PaymentInterval  time.Duration
	JobTimeout       time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with RECON_ prefix (e.g., RECON_ERP_CLIENT_SECRET)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase reads the same sources as Load but only validates the
// database section, for tools that never talk to the ERP
func LoadDatabase() (*DatabaseConfig, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.validateDatabase(); err != nil {
		return nil, err
	}
	return &cfg.Database, nil
}

func load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:     v.GetString("app.name"),
			Env:      v.GetString("app.env"),
			Port:     v.GetString("app.port"),
			Timezone: v.GetString("app.timezone"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			CORSOrigins:    v.GetStringSlice("http.cors_origins"),
			RateLimit:      v.GetFloat64("http.rate_limit"),
			RateLimitBurst: v.GetInt("http.rate_limit_burst"),
			DocsEnabled:    v.GetBool("http.docs_enabled"),
			DocsAllowedIPs: v.GetStringSlice("http.docs_allowed_ips"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogExportEnabled:  v.GetBool("telemetry.log_export_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeServer:   v.GetString("telemetry.pyroscope_server"),
		},
		ERP: ERPConfig{
			BaseURL:      v.GetString("erp.base_url"),
			TokenURL:     v.GetString("erp.token_url"),
			ClientID:     v.GetString("erp.client_id"),
			ClientSecret: v.GetString("erp.client_secret"),
			RefreshToken: v.GetString("erp.refresh_token"),
			Timeout:      v.GetDuration("erp.timeout"),
		},
		Marketplaces: MarketplacesConfig{
			Shopee:       marketplaceClient(v, "marketplaces.shopee"),
			MercadoLivre: marketplaceClient(v, "marketplaces.mercado_livre"),
			Magalu:       marketplaceClient(v, "marketplaces.magalu"),
		},
		Sync: SyncConfig{
			PageSize:        v.GetInt("sync.page_size"),
			WindowDays:      v.GetInt("sync.window_days"),
			RequestInterval: v.GetDuration("sync.request_interval"),
			MaxRetries:      v.GetInt("sync.max_retries"),
			InitialBackoff:  v.GetDuration("sync.initial_backoff"),
			MaxBackoff:      v.GetDuration("sync.max_backoff"),
			MaxRequests:     v.GetInt("sync.max_requests"),
			LockTTL:         v.GetDuration("sync.lock_ttl"),
		},
		Linking: LinkingConfig{
			Concurrency:    v.GetInt("linking.concurrency"),
			BatchLimit:     v.GetInt("linking.batch_limit"),
			RetryAfter:     v.GetDuration("linking.retry_after"),
			Lookback:       v.GetDuration("linking.lookback"),
			AutoLink:       !v.IsSet("linking.auto_link") || v.GetBool("linking.auto_link"),
			EventWorkers:   v.GetInt("linking.event_workers"),
			EventQueueSize: v.GetInt("linking.event_queue_size"),
		},
		Fees: FeesConfig{
			RulesFile: v.GetString("fees.rules_file"),
			CacheTTL:  v.GetDuration("fees.cache_ttl"),
		},
		Classifier: ClassifierConfig{
			RulesFile: v.GetString("classifier.rules_file"),
			Epsilon:   v.GetString("classifier.epsilon"),
			Tolerance: v.GetString("classifier.tolerance"),
		},
		Settlement: SettlementConfig{
			Bucket:            v.GetString("settlement.bucket"),
			Prefix:            v.GetString("settlement.prefix"),
			Region:            v.GetString("settlement.region"),
			Endpoint:          v.GetString("settlement.endpoint"),
			AccessKey:         v.GetString("settlement.access_key"),
			SecretKey:         v.GetString("settlement.secret_key"),
			UsePathStyle:      v.GetBool("settlement.use_path_style"),
			PullLookback:      v.GetDuration("settlement.pull_lookback"),
			ResolveLimit:      v.GetInt("settlement.resolve_limit"),
			ResolveRetryAfter: v.GetDuration("settlement.resolve_retry_after"),
		},
		Scheduler: SchedulerConfig{
			Enabled:          v.GetBool("scheduler.enabled"),
			SyncInterval:     v.GetDuration("scheduler.sync_interval"),
			SyncLookbackDays: v.GetInt("scheduler.sync_lookback_days"),
			LinkInterval:     v.GetDuration("scheduler.link_interval"),
			PaymentInterval:  v.GetDuration("scheduler.payment_interval"),
			JobTimeout:       v.GetDuration("scheduler.job_timeout"),
		},
	}

	if !v.IsSet("http.docs_enabled") {
		cfg.HTTP.DocsEnabled = cfg.App.Env != "production"
	}
	applyDefaults(cfg)
	return cfg, nil
}

func marketplaceClient(v *viper.Viper, prefix string) MarketplaceClientConfig {
	return MarketplaceClientConfig{
		Enabled:           v.GetBool(prefix + ".enabled"),
		BaseURL:           v.GetString(prefix + ".base_url"),
		AccessToken:       v.GetString(prefix + ".access_token"),
		PartnerID:         v.GetString(prefix + ".partner_id"),
		PartnerKey:        v.GetString(prefix + ".partner_key"),
		ShopID:            v.GetString(prefix + ".shop_id"),
		Timeout:           v.GetDuration(prefix + ".timeout"),
		RequestsPerSecond: v.GetFloat64(prefix + ".requests_per_second"),
		BreakerFailures:   v.GetUint32(prefix + ".breaker_failures"),
		BreakerTimeout:    v.GetDuration(prefix + ".breaker_timeout"),
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "reconciler"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.Timezone == "" {
		cfg.App.Timezone = "UTC"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "reconciler"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
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
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
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
		// recompute and sync requests run synchronously
		cfg.HTTP.WriteTimeout = 5 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateLimitBurst <= 0 {
		cfg.HTTP.RateLimitBurst = int(cfg.HTTP.RateLimit) + 1
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "reconciler"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 5 * time.Minute
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Telemetry.PyroscopeServer == "" {
		cfg.Telemetry.PyroscopeServer = "http://localhost:4040"
	}

	if cfg.ERP.Timeout == 0 {
		cfg.ERP.Timeout = 30 * time.Second
	}
	marketplaceDefaults(&cfg.Marketplaces.Shopee, "https://partner.shopeemobile.com")
	marketplaceDefaults(&cfg.Marketplaces.MercadoLivre, "https://api.mercadolibre.com")
	marketplaceDefaults(&cfg.Marketplaces.Magalu, "https://api.magalu.com")

	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 100
	}
	if cfg.Sync.WindowDays == 0 {
		cfg.Sync.WindowDays = 3
	}
	if cfg.Sync.RequestInterval == 0 {
		cfg.Sync.RequestInterval = 500 * time.Millisecond
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 5
	}
	if cfg.Sync.InitialBackoff == 0 {
		cfg.Sync.InitialBackoff = 2 * time.Second
	}
	if cfg.Sync.MaxBackoff == 0 {
		cfg.Sync.MaxBackoff = time.Minute
	}
	if cfg.Sync.LockTTL == 0 {
		cfg.Sync.LockTTL = 2 * time.Hour
	}

	if cfg.Linking.Concurrency == 0 {
		cfg.Linking.Concurrency = 4
	}
	if cfg.Linking.BatchLimit == 0 {
		cfg.Linking.BatchLimit = 200
	}
	if cfg.Linking.RetryAfter == 0 {
		cfg.Linking.RetryAfter = time.Hour
	}
	if cfg.Linking.Lookback == 0 {
		cfg.Linking.Lookback = 30 * 24 * time.Hour
	}
	if cfg.Linking.EventWorkers == 0 {
		cfg.Linking.EventWorkers = 2
	}
	if cfg.Linking.EventQueueSize == 0 {
		cfg.Linking.EventQueueSize = 1000
	}

	if cfg.Fees.CacheTTL == 0 {
		cfg.Fees.CacheTTL = time.Minute
	}
	if cfg.Classifier.Epsilon == "" {
		cfg.Classifier.Epsilon = "0.01"
	}
	if cfg.Classifier.Tolerance == "" {
		cfg.Classifier.Tolerance = "0.05"
	}

	if cfg.Settlement.Region == "" {
		cfg.Settlement.Region = "us-east-1"
	}
	if cfg.Settlement.PullLookback == 0 {
		cfg.Settlement.PullLookback = 7 * 24 * time.Hour
	}
	if cfg.Settlement.ResolveRetryAfter == 0 {
		cfg.Settlement.ResolveRetryAfter = time.Hour
	}
	if cfg.Settlement.ResolveLimit == 0 {
		cfg.Settlement.ResolveLimit = 500
	}

	if cfg.Scheduler.SyncInterval == 0 {
		cfg.Scheduler.SyncInterval = time.Hour
	}
	if cfg.Scheduler.SyncLookbackDays == 0 {
		cfg.Scheduler.SyncLookbackDays = 7
	}
	if cfg.Scheduler.LinkInterval == 0 {
		cfg.Scheduler.LinkInterval = 15 * time.Minute
	}
	if cfg.Scheduler.PaymentInterval == 0 {
		cfg.Scheduler.PaymentInterval = 30 * time.Minute
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
}

func marketplaceDefaults(m *MarketplaceClientConfig, baseURL string) {
	if m.BaseURL == "" {
		m.BaseURL = baseURL
	}
	if m.Timeout == 0 {
		m.Timeout = 15 * time.Second
	}
	if m.RequestsPerSecond == 0 {
		m.RequestsPerSecond = 2
	}
	if m.BreakerFailures == 0 {
		m.BreakerFailures = 5
	}
	if m.BreakerTimeout == 0 {
		m.BreakerTimeout = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	// The ERP is the system of record; nothing works without its credentials
	if c.ERP.BaseURL == "" {
		return fmt.Errorf("erp.base_url is required")
	}
	if c.ERP.TokenURL == "" {
		return fmt.Errorf("erp.token_url is required")
	}
	if c.ERP.ClientID == "" || c.ERP.ClientSecret == "" {
		return fmt.Errorf("erp.client_id and erp.client_secret are required")
	}
	if c.ERP.RefreshToken == "" {
		return fmt.Errorf("erp.refresh_token is required")
	}

	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone %q is not a known zone: %w", c.App.Timezone, err)
	}

	if c.Sync.PageSize < 1 || c.Sync.PageSize > 100 {
		return fmt.Errorf("sync.page_size must be between 1 and 100, got %d", c.Sync.PageSize)
	}
	if c.Sync.WindowDays < 1 {
		return fmt.Errorf("sync.window_days must be positive")
	}
	for name, raw := range map[string]string{
		"classifier.epsilon":   c.Classifier.Epsilon,
		"classifier.tolerance": c.Classifier.Tolerance,
	} {
		if d, err := decimal.NewFromString(raw); err != nil || !d.IsPositive() {
			return fmt.Errorf("%s must be a positive decimal, got %q", name, raw)
		}
	}

	if c.Linking.Concurrency < 1 {
		return fmt.Errorf("linking.concurrency must be positive")
	}
	if c.Linking.EventWorkers < 0 || c.Linking.EventQueueSize < 0 {
		return fmt.Errorf("linking.event_workers and linking.event_queue_size must not be negative")
	}

	for name, m := range map[string]MarketplaceClientConfig{
		"shopee":        c.Marketplaces.Shopee,
		"mercado_livre": c.Marketplaces.MercadoLivre,
		"magalu":        c.Marketplaces.Magalu,
	} {
		if m.Enabled && m.AccessToken == "" {
			return fmt.Errorf("marketplaces.%s.access_token is required when the client is enabled", name)
		}
	}
	if s := c.Marketplaces.Shopee; s.Enabled && (s.PartnerID == "" || s.PartnerKey == "" || s.ShopID == "") {
		return fmt.Errorf("marketplaces.shopee.partner_id, partner_key and shop_id are required when the client is enabled")
	}

	if c.App.Env == "production" && c.Telemetry.DBLogFullSQL {
		return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

func (c *Config) validateDatabase() error {
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
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
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
