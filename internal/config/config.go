package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Log       LogConfig
	JWT       JWTConfig
	HTTP      HTTPConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Storage   StorageConfig
	SmartBill SmartBillConfig
	Billing   BillingConfig
	Mail      MailConfig
	Alerts    AlertsConfig
	PDF       PDFConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsProduction reports whether the app runs with production settings.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production" || a.Env == "release"
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // minutes
	AutoMigrate     bool
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type HTTPConfig struct {
	CORSAllowOrigins []string
	MaxUploadBytes   int64
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type StorageConfig struct {
	Driver       string // local or s3
	LocalDir     string
	Bucket       string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
}

// SmartBillConfig configures the external invoicing API.
type SmartBillConfig struct {
	BaseURL        string
	Username       string
	Token          string
	CompanyCIF     string
	Series         string
	DefaultVATRate decimal.Decimal
	Timeout        time.Duration
	RatePerSecond  float64
	Burst          int
}

// Configured reports whether credentials are present.
func (s SmartBillConfig) Configured() bool {
	return s.Username != "" && s.Token != "" && s.CompanyCIF != ""
}

type BillingConfig struct {
	IdempotencyTTL time.Duration
	SyncLookback   time.Duration
	SyncEnabled    bool
	SyncInterval   time.Duration
}

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      string // opportunistic, mandatory, ssl or none
	Timeout  time.Duration
}

// AlertsConfig drives the appointment reminder emails.
type AlertsConfig struct {
	Recipient string // used when a worker has no expert
	DaysAhead int
	Enabled   bool
	Interval  time.Duration
}

// Configured reports whether an SMTP server is set.
func (m MailConfig) Configured() bool {
	return m.Host != "" && m.From != ""
}

type PDFConfig struct {
	Enabled   bool
	RemoteURL string
	NoSandbox bool
	Timeout   time.Duration
}

// Load reads configuration with this priority (highest first):
// 1. Environment variables with ECOFIN_ prefix (e.g. ECOFIN_DATABASE_PASSWORD)
// 2. configs/.env (loaded into the environment)
// 3. config.toml (or the file passed in)
// 4. Built-in defaults
func Load(file string) (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || file != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("ECOFIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	vatRate, err := decimal.NewFromString(v.GetString("smartbill.default_vat_rate"))
	if err != nil {
		return nil, fmt.Errorf("invalid smartbill.default_vat_rate: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
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
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetDuration("jwt.expiration"),
			Issuer:     v.GetString("jwt.issuer"),
		},
		HTTP: HTTPConfig{
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			MaxUploadBytes:   v.GetInt64("http.max_upload_bytes"),
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("kafka.enabled"),
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		Storage: StorageConfig{
			Driver:       v.GetString("storage.driver"),
			LocalDir:     v.GetString("storage.local_dir"),
			Bucket:       v.GetString("storage.bucket"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
		},
		SmartBill: SmartBillConfig{
			BaseURL:        v.GetString("smartbill.base_url"),
			Username:       v.GetString("smartbill.username"),
			Token:          v.GetString("smartbill.token"),
			CompanyCIF:     v.GetString("smartbill.company_cif"),
			Series:         v.GetString("smartbill.series"),
			DefaultVATRate: vatRate,
			Timeout:        v.GetDuration("smartbill.timeout"),
			RatePerSecond:  v.GetFloat64("smartbill.rate_per_second"),
			Burst:          v.GetInt("smartbill.burst"),
		},
		Billing: BillingConfig{
			IdempotencyTTL: v.GetDuration("billing.idempotency_ttl"),
			SyncLookback:   v.GetDuration("billing.sync_lookback"),
			SyncEnabled:    v.GetBool("billing.sync_enabled"),
			SyncInterval:   v.GetDuration("billing.sync_interval"),
		},
		Mail: MailConfig{
			Host:     v.GetString("mail.host"),
			Port:     v.GetInt("mail.port"),
			Username: v.GetString("mail.username"),
			Password: v.GetString("mail.password"),
			From:     v.GetString("mail.from"),
			TLS:      v.GetString("mail.tls"),
			Timeout:  v.GetDuration("mail.timeout"),
		},
		Alerts: AlertsConfig{
			Recipient: v.GetString("alerts.recipient"),
			DaysAhead: v.GetInt("alerts.days_ahead"),
			Enabled:   v.GetBool("alerts.enabled"),
			Interval:  v.GetDuration("alerts.interval"),
		},
		PDF: PDFConfig{
			Enabled:   v.GetBool("pdf.enabled"),
			RemoteURL: v.GetString("pdf.remote_url"),
			NoSandbox: v.GetBool("pdf.no_sandbox"),
			Timeout:   v.GetDuration("pdf.timeout"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ecofin")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "ecofin")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("jwt.expiration", 24*time.Hour)
	v.SetDefault("jwt.issuer", "ecofin")

	v.SetDefault("http.cors_allow_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("http.max_upload_bytes", 10<<20)
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "ecofin.billing")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "media")
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("smartbill.base_url", "https://ws.smartbill.ro/SBORO/api")
	v.SetDefault("smartbill.series", "ECO")
	v.SetDefault("smartbill.default_vat_rate", "21")
	v.SetDefault("smartbill.timeout", 30*time.Second)
	v.SetDefault("smartbill.rate_per_second", 3)
	v.SetDefault("smartbill.burst", 3)

	v.SetDefault("billing.idempotency_ttl", 24*time.Hour)
	v.SetDefault("billing.sync_lookback", 90*24*time.Hour)
	v.SetDefault("billing.sync_interval", time.Hour)

	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.tls", "opportunistic")
	v.SetDefault("mail.timeout", 15*time.Second)

	v.SetDefault("alerts.days_ahead", 2)
	v.SetDefault("alerts.interval", 24*time.Hour)

	v.SetDefault("pdf.timeout", 30*time.Second)
}

func (c *Config) validate() error {
	if c.App.IsProduction() && c.JWT.Secret == "" {
		return errors.New("jwt.secret is required in production")
	}
	if c.JWT.Secret == "" {
		c.JWT.Secret = "default_super_secret_key"
	}
	if c.SmartBill.DefaultVATRate.IsNegative() {
		return errors.New("smartbill.default_vat_rate must not be negative")
	}
	switch c.Storage.Driver {
	case "local", "s3":
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "s3" && c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required for the s3 driver")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	if c.Billing.SyncEnabled && c.Billing.SyncInterval <= 0 {
		return errors.New("billing.sync_interval must be positive")
	}
	return nil
}
