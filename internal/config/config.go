package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Bridge   BridgeConfig
	Dispatch DispatchConfig
	Sweep    SweepConfig
	Mail     MailConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	// PostgresURL empty means credentials live in memory only.
	PostgresURL string
}

type RedisConfig struct {
	Address       string
	Password      string
	DB            int
	EventsChannel string
	ReportTTL     time.Duration
}

type BridgeConfig struct {
	URL string
}

type DispatchConfig struct {
	Concurrency   int
	CountryPrefix string
	AddressSuffix string
}

type SweepConfig struct {
	Enabled  bool
	Interval time.Duration
	QRMaxAge time.Duration
}

type MailConfig struct {
	Enabled       bool
	MJMLURL       string
	MJMLAppID     string
	MJMLSecretKey string
	SMTPHost      string
	SMTPPort      int
	Email         string
	AppKey        string
	Subject       string
}

func LoadAll() (*Config, error) {
	var errs []error

	redisAddr, err := requireEnv("REDIS_ADDR")
	if err != nil {
		errs = append(errs, err)
	}
	bridgeURL, err := requireEnv("BRIDGE_URL")
	if err != nil {
		errs = append(errs, err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	reportTTL, err := getEnvInt("REPORT_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}
	concurrency, err := getEnvInt("DISPATCH_CONCURRENCY", 8)
	if err != nil {
		errs = append(errs, err)
	}

	sweep, err := loadSweepConfig()
	if err != nil {
		errs = append(errs, err)
	}
	mail, err := loadMailConfig()
	if err != nil {
		errs = append(errs, err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Redis: RedisConfig{
			Address:       redisAddr,
			Password:      os.Getenv("REDIS_PASSWORD"),
			DB:            redisDB,
			EventsChannel: getEnv("EVENTS_CHANNEL", "wa:events"),
			ReportTTL:     time.Duration(reportTTL) * time.Second,
		},
		Bridge: BridgeConfig{
			URL: bridgeURL,
		},
		Dispatch: DispatchConfig{
			Concurrency:   concurrency,
			CountryPrefix: getEnv("COUNTRY_PREFIX", "57"),
			AddressSuffix: getEnv("ADDRESS_SUFFIX", "@c.us"),
		},
		Sweep: sweep,
		Mail:  mail,
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSweepConfig() (SweepConfig, error) {
	maxAge, err := getEnvInt("QR_MAX_AGE_SECONDS", 0)
	if err != nil {
		return SweepConfig{}, err
	}
	if maxAge <= 0 {
		return SweepConfig{Enabled: false}, nil
	}

	interval, err := getEnvInt("QR_SWEEP_INTERVAL_SECONDS", 60)
	if err != nil {
		return SweepConfig{}, err
	}

	return SweepConfig{
		Enabled:  true,
		Interval: time.Duration(interval) * time.Second,
		QRMaxAge: time.Duration(maxAge) * time.Second,
	}, nil
}

func loadMailConfig() (MailConfig, error) {
	email := os.Getenv("GOOGLE_EMAIL")
	if email == "" {
		return MailConfig{Enabled: false}, nil
	}

	var errs []error
	appID, err := requireEnv("MJML_APPLICATION_ID")
	if err != nil {
		errs = append(errs, err)
	}
	secretKey, err := requireEnv("MJML_SECRET_KEY")
	if err != nil {
		errs = append(errs, err)
	}
	appKey, err := requireEnv("GOOGLE_APP_KEY")
	if err != nil {
		errs = append(errs, err)
	}
	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		errs = append(errs, err)
	}
	if err := joinErrors(errs); err != nil {
		return MailConfig{}, err
	}

	return MailConfig{
		Enabled:       true,
		MJMLURL:       getEnv("MJML_API_URL", "https://api.mjml.io/v1/render"),
		MJMLAppID:     appID,
		MJMLSecretKey: secretKey,
		SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      smtpPort,
		Email:         email,
		AppKey:        appKey,
		Subject:       getEnv("MAIL_SUBJECT", "Notificación de mensaje"),
	}, nil
}

func validate(cfg *Config) []error {
	var errs []error
	if cfg.Dispatch.Concurrency <= 0 {
		errs = append(errs, errors.New("DISPATCH_CONCURRENCY must be > 0"))
	}
	if cfg.Dispatch.CountryPrefix == "" {
		errs = append(errs, errors.New("COUNTRY_PREFIX must not be empty"))
	}
	if cfg.Dispatch.AddressSuffix == "" {
		errs = append(errs, errors.New("ADDRESS_SUFFIX must not be empty"))
	}
	if cfg.Sweep.Enabled && cfg.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("QR_SWEEP_INTERVAL_SECONDS must be > 0"))
	}
	return errs
}

func joinErrors(errs []error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	return errors.Join(nonNil...)
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}
