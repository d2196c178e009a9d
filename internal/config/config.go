package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	App      AppConfig      `json:"app"`
	Scanner  ScannerConfig  `json:"scanner"`
	Vinted   VintedConfig   `json:"vinted"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Telegram TelegramConfig `json:"telegram"`
	Security SecurityConfig `json:"security"`
}

// AppConfig covers process-level settings.
type AppConfig struct {
	Env      string `json:"env"`       // local / prod
	LogLevel string `json:"log_level"` // debug / info / warn / error
	HTTPAddr string `json:"http_addr"` // API listen address
}

// ScannerConfig drives the scheduler and the scan worker pool.
type ScannerConfig struct {
	TickInterval     time.Duration `json:"tick_interval"`      // scheduler cadence (e.g. "60s")
	MinCheckInterval time.Duration `json:"min_check_interval"` // floor for per-alert intervals
	MaxCheckInterval time.Duration `json:"max_check_interval"` // ceiling for per-alert intervals
	WorkerPoolSize   int           `json:"worker_pool_size"`   // concurrent scans
	QueueCapacity    int           `json:"queue_capacity"`
	DrainTimeout     time.Duration `json:"drain_timeout"` // max wait for in-flight scans on stop
	ScanLockTTL      time.Duration `json:"scan_lock_ttl"` // per-alert lock expiry
	RateLimit        float64       `json:"rate_limit"`    // outbound requests per second
	RateBurst        float64       `json:"rate_burst"`
}

// VintedConfig tunes the upstream marketplace client.
type VintedConfig struct {
	Timeout           time.Duration `json:"timeout"`      // per-request timeout
	MaxRetries        int           `json:"max_retries"`  // attempt budget per call
	PageSize          int           `json:"page_size"`    // items per search page, upstream max 96
	DefaultRetryAfter time.Duration `json:"retry_after"`  // fallback when a 429 omits Retry-After
	MaxDiagnosticBody int           `json:"max_diag_body"` // truncation limit for error bodies
}

// MySQLConfig holds the database connection settings.
type MySQLConfig struct {
	DSN string `json:"dsn"`
}

// RedisConfig holds the redis connection settings.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
}

// EmailConfig holds SMTP settings for the email notifier.
type EmailConfig struct {
	SMTPHost  string `json:"smtp_host"`
	SMTPPort  int    `json:"smtp_port"`
	SMTPUser  string `json:"smtp_user"`
	SMTPPass  string `json:"smtp_pass"`
	FromEmail string `json:"from_email"`
}

// TelegramConfig holds the bot credentials for the telegram notifier.
type TelegramConfig struct {
	BotToken string `json:"bot_token"`
	APIBase  string `json:"api_base"` // overridable for tests
}

// SecurityConfig holds auth settings for the CRUD API.
type SecurityConfig struct {
	JWTSecret   string        `json:"jwt_secret"`
	TokenExpiry time.Duration `json:"token_expiry"`
}

// Load reads configs/config.json (or the given path), applies defaults for
// unset fields and lets environment variables override everything.
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := defaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:      "local",
			LogLevel: "info",
			HTTPAddr: ":8080",
		},
		Scanner: ScannerConfig{
			TickInterval:     time.Minute,
			MinCheckInterval: 5 * time.Minute,
			MaxCheckInterval: 24 * time.Hour,
			WorkerPoolSize:   4,
			QueueCapacity:    256,
			DrainTimeout:     30 * time.Second,
			ScanLockTTL:      5 * time.Minute,
			RateLimit:        1,
			RateBurst:        3,
		},
		Vinted: VintedConfig{
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			PageSize:          96,
			DefaultRetryAfter: 60 * time.Second,
			MaxDiagnosticBody: 512,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/vintscout?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost: "",
			SMTPPort: 587,
		},
		Telegram: TelegramConfig{
			APIBase: "https://api.telegram.org",
		},
		Security: SecurityConfig{
			JWTSecret:   "dev_secret_change_me",
			TokenExpiry: 24 * time.Hour,
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := defaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.Scanner.TickInterval == 0 {
		cfg.Scanner.TickInterval = defaults.Scanner.TickInterval
	}
	if cfg.Scanner.MinCheckInterval == 0 {
		cfg.Scanner.MinCheckInterval = defaults.Scanner.MinCheckInterval
	}
	if cfg.Scanner.MaxCheckInterval == 0 {
		cfg.Scanner.MaxCheckInterval = defaults.Scanner.MaxCheckInterval
	}
	if cfg.Scanner.WorkerPoolSize == 0 {
		cfg.Scanner.WorkerPoolSize = defaults.Scanner.WorkerPoolSize
	}
	if cfg.Scanner.QueueCapacity == 0 {
		cfg.Scanner.QueueCapacity = defaults.Scanner.QueueCapacity
	}
	if cfg.Scanner.DrainTimeout == 0 {
		cfg.Scanner.DrainTimeout = defaults.Scanner.DrainTimeout
	}
	if cfg.Scanner.ScanLockTTL == 0 {
		cfg.Scanner.ScanLockTTL = defaults.Scanner.ScanLockTTL
	}
	if cfg.Scanner.RateLimit == 0 {
		cfg.Scanner.RateLimit = defaults.Scanner.RateLimit
	}
	if cfg.Scanner.RateBurst == 0 {
		cfg.Scanner.RateBurst = defaults.Scanner.RateBurst
	}
	if cfg.Vinted.Timeout == 0 {
		cfg.Vinted.Timeout = defaults.Vinted.Timeout
	}
	if cfg.Vinted.MaxRetries == 0 {
		cfg.Vinted.MaxRetries = defaults.Vinted.MaxRetries
	}
	if cfg.Vinted.PageSize == 0 {
		cfg.Vinted.PageSize = defaults.Vinted.PageSize
	}
	if cfg.Vinted.DefaultRetryAfter == 0 {
		cfg.Vinted.DefaultRetryAfter = defaults.Vinted.DefaultRetryAfter
	}
	if cfg.Vinted.MaxDiagnosticBody == 0 {
		cfg.Vinted.MaxDiagnosticBody = defaults.Vinted.MaxDiagnosticBody
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Telegram.APIBase == "" {
		cfg.Telegram.APIBase = defaults.Telegram.APIBase
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
	if cfg.Security.TokenExpiry == 0 {
		cfg.Security.TokenExpiry = defaults.Security.TokenExpiry
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_dsn", "DB_DSN")
	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("SCANNER_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scanner.TickInterval = d
		}
	}
	if v := os.Getenv("SCANNER_MIN_CHECK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scanner.MinCheckInterval = d
		}
	}
	if v := os.Getenv("SCANNER_WORKER_POOL_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Scanner.WorkerPoolSize = i
		}
	}
	if v := os.Getenv("SCANNER_QUEUE_CAPACITY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Scanner.QueueCapacity = i
		}
	}
	if v := os.Getenv("SCANNER_DRAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scanner.DrainTimeout = d
		}
	}
	if v := os.Getenv("SCANNER_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scanner.RateLimit = f
		}
	}
	if v := os.Getenv("SCANNER_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scanner.RateBurst = f
		}
	}
	if v := os.Getenv("VINTED_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Vinted.Timeout = d
		}
	}
	if v := os.Getenv("VINTED_MAX_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Vinted.MaxRetries = i
		}
	}
	if v := os.Getenv("VINTED_PAGE_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Vinted.PageSize = i
		}
	}

	if v := viper.GetString("db_dsn"); v != "" {
		cfg.MySQL.DSN = v
	} else if viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			port := "3306"
			if p := os.Getenv("DB_PORT"); p != "" {
				port = p
			}
			parsed.Addr = v + ":" + port
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}

	if v := viper.GetString("telegram_bot_token"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "vintscout",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON parses duration fields from strings like "60s".
func (s *ScannerConfig) UnmarshalJSON(data []byte) error {
	type Alias ScannerConfig
	aux := &struct {
		TickInterval     string `json:"tick_interval"`
		MinCheckInterval string `json:"min_check_interval"`
		MaxCheckInterval string `json:"max_check_interval"`
		DrainTimeout     string `json:"drain_timeout"`
		ScanLockTTL      string `json:"scan_lock_ttl"`
		*Alias
	}{Alias: (*Alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	for _, f := range []struct {
		raw string
		dst *time.Duration
	}{
		{aux.TickInterval, &s.TickInterval},
		{aux.MinCheckInterval, &s.MinCheckInterval},
		{aux.MaxCheckInterval, &s.MaxCheckInterval},
		{aux.DrainTimeout, &s.DrainTimeout},
		{aux.ScanLockTTL, &s.ScanLockTTL},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid scanner duration %q: %w", f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// UnmarshalJSON parses the token expiry from a string like "24h".
func (s *SecurityConfig) UnmarshalJSON(data []byte) error {
	type Alias SecurityConfig
	aux := &struct {
		TokenExpiry string `json:"token_expiry"`
		*Alias
	}{Alias: (*Alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.TokenExpiry != "" {
		d, err := time.ParseDuration(aux.TokenExpiry)
		if err != nil {
			return fmt.Errorf("invalid token_expiry: %w", err)
		}
		s.TokenExpiry = d
	}
	return nil
}

// UnmarshalJSON parses duration fields from strings like "30s".
func (v *VintedConfig) UnmarshalJSON(data []byte) error {
	type Alias VintedConfig
	aux := &struct {
		Timeout           string `json:"timeout"`
		DefaultRetryAfter string `json:"retry_after"`
		*Alias
	}{Alias: (*Alias)(v)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Timeout != "" {
		d, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("invalid vinted timeout: %w", err)
		}
		v.Timeout = d
	}
	if aux.DefaultRetryAfter != "" {
		d, err := time.ParseDuration(aux.DefaultRetryAfter)
		if err != nil {
			return fmt.Errorf("invalid vinted retry_after: %w", err)
		}
		v.DefaultRetryAfter = d
	}
	return nil
}
