package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	LogLevel string

	HTTP      HTTPConfig
	DB        DBConfig
	Redis     RedisConfig
	Session   SessionConfig
	Payments  PaymentsConfig
	ESIM      ESIMConfig
	Mail      MailConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
}

type HTTPConfig struct {
	Addr    string
	BaseURL string
}

type DBConfig struct {
	DSN         string
	AutoMigrate bool
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	CatalogTTL time.Duration
	CartTTL    time.Duration
}

type SessionConfig struct {
	CookieName     string
	CartCookieName string
	Secret         string
	Secure         bool
	TTL            time.Duration
}

type PaymentsConfig struct {
	Provider         string // hosted|mock
	APIURL           string
	APIKey           string
	WebhookSecret    string
	WebhookTolerance time.Duration
	SuccessURL       string
	CancelURL        string
}

type ESIMConfig struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration

	RetryAttempts uint64
	RetryBase     time.Duration
	RetryMax      time.Duration

	// StaleAfter is how long a processing order may sit before a
	// redelivered payment event resumes it.
	StaleAfter time.Duration
}

type MailConfig struct {
	Driver   string // smtp|http
	From     string
	FromName string
	SMTP     SMTPConfig
	APIURL   string
	APIToken string
}

type SMTPConfig struct {
	Host          string
	Port          string
	User          string
	Pass          string
	TLSMode       string // none|starttls|tls
	SkipVerifyTLS bool
}

type StorageConfig struct {
	Driver        string // local|s3
	LocalDir      string
	S3Region      string
	S3Bucket      string
	S3Prefix      string
	PublicBaseURL string
}

type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

// Load reads .env (when present), an optional config.yaml and the process
// environment. Environment variables win; nested keys map to upper snake
// case (payments.webhook_secret -> PAYMENTS_WEBHOOK_SECRET).
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/esim-store")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("config: read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	cfg := FromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.base_url", "http://localhost:8080")

	v.SetDefault("db.auto_migrate", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.catalog_ttl", "5m")
	v.SetDefault("redis.cart_ttl", "720h")

	v.SetDefault("session.cookie_name", "sid")
	v.SetDefault("session.cart_cookie_name", "cart")
	v.SetDefault("session.secure", false)
	v.SetDefault("session.ttl", "720h")

	v.SetDefault("payments.provider", "hosted")
	v.SetDefault("payments.webhook_tolerance", "5m")

	v.SetDefault("esim.timeout", "15s")
	v.SetDefault("esim.retry_attempts", 3)
	v.SetDefault("esim.retry_base", "500ms")
	v.SetDefault("esim.retry_max", "5s")
	v.SetDefault("esim.stale_after", "15m")

	v.SetDefault("mail.driver", "smtp")
	v.SetDefault("mail.from", "no-reply@localhost")
	v.SetDefault("mail.from_name", "eSIM Store")
	v.SetDefault("mail.smtp.host", "localhost")
	v.SetDefault("mail.smtp.port", "1025")
	v.SetDefault("mail.smtp.tls_mode", "none")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "./storage/diagnostics")
	v.SetDefault("storage.s3_prefix", "diagnostics")

	v.SetDefault("telemetry.service_name", "esim-store")
}

func FromViper(v *viper.Viper) Config {
	return Config{
		Env:      v.GetString("env"),
		LogLevel: v.GetString("log_level"),
		HTTP: HTTPConfig{
			Addr:    v.GetString("http.addr"),
			BaseURL: strings.TrimRight(v.GetString("http.base_url"), "/"),
		},
		DB: DBConfig{
			DSN:         v.GetString("db.dsn"),
			AutoMigrate: v.GetBool("db.auto_migrate"),
		},
		Redis: RedisConfig{
			Addr:       v.GetString("redis.addr"),
			Password:   v.GetString("redis.password"),
			DB:         v.GetInt("redis.db"),
			CatalogTTL: v.GetDuration("redis.catalog_ttl"),
			CartTTL:    v.GetDuration("redis.cart_ttl"),
		},
		Session: SessionConfig{
			CookieName:     v.GetString("session.cookie_name"),
			CartCookieName: v.GetString("session.cart_cookie_name"),
			Secret:         v.GetString("session.secret"),
			Secure:         v.GetBool("session.secure"),
			TTL:            v.GetDuration("session.ttl"),
		},
		Payments: PaymentsConfig{
			Provider:         strings.ToLower(v.GetString("payments.provider")),
			APIURL:           v.GetString("payments.api_url"),
			APIKey:           v.GetString("payments.api_key"),
			WebhookSecret:    v.GetString("payments.webhook_secret"),
			WebhookTolerance: v.GetDuration("payments.webhook_tolerance"),
			SuccessURL:       v.GetString("payments.success_url"),
			CancelURL:        v.GetString("payments.cancel_url"),
		},
		ESIM: ESIMConfig{
			APIURL:        v.GetString("esim.api_url"),
			APIKey:        v.GetString("esim.api_key"),
			Timeout:       v.GetDuration("esim.timeout"),
			RetryAttempts: v.GetUint64("esim.retry_attempts"),
			RetryBase:     v.GetDuration("esim.retry_base"),
			RetryMax:      v.GetDuration("esim.retry_max"),
			StaleAfter:    v.GetDuration("esim.stale_after"),
		},
		Mail: MailConfig{
			Driver:   strings.ToLower(v.GetString("mail.driver")),
			From:     v.GetString("mail.from"),
			FromName: v.GetString("mail.from_name"),
			SMTP: SMTPConfig{
				Host:          v.GetString("mail.smtp.host"),
				Port:          v.GetString("mail.smtp.port"),
				User:          v.GetString("mail.smtp.user"),
				Pass:          v.GetString("mail.smtp.pass"),
				TLSMode:       v.GetString("mail.smtp.tls_mode"),
				SkipVerifyTLS: v.GetBool("mail.smtp.skip_verify_tls"),
			},
			APIURL:   v.GetString("mail.api_url"),
			APIToken: v.GetString("mail.api_token"),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(v.GetString("storage.driver")),
			LocalDir:      v.GetString("storage.local_dir"),
			S3Region:      v.GetString("storage.s3_region"),
			S3Bucket:      v.GetString("storage.s3_bucket"),
			S3Prefix:      v.GetString("storage.s3_prefix"),
			PublicBaseURL: v.GetString("storage.public_base_url"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  v.GetString("telemetry.service_name"),
			OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
		},
	}
}

func (c Config) Validate() error {
	var missing []string
	if c.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if c.Session.Secret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if c.Payments.WebhookSecret == "" {
		missing = append(missing, "PAYMENTS_WEBHOOK_SECRET")
	}
	if c.Payments.Provider == "hosted" && (c.Payments.APIURL == "" || c.Payments.APIKey == "") {
		missing = append(missing, "PAYMENTS_API_URL/PAYMENTS_API_KEY")
	}
	if c.ESIM.APIURL == "" || c.ESIM.APIKey == "" {
		missing = append(missing, "ESIM_API_URL/ESIM_API_KEY")
	}
	if c.Mail.Driver == "http" && (c.Mail.APIURL == "" || c.Mail.APIToken == "") {
		missing = append(missing, "MAIL_API_URL/MAIL_API_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required values: %s", strings.Join(missing, ", "))
	}

	switch c.Payments.Provider {
	case "hosted", "mock":
	default:
		return fmt.Errorf("config: unknown PAYMENTS_PROVIDER %q", c.Payments.Provider)
	}
	if c.ESIM.RetryAttempts < 1 {
		return fmt.Errorf("config: ESIM_RETRY_ATTEMPTS must be >= 1")
	}
	return nil
}

func (c Config) IsProduction() bool { return c.Env == "production" }
