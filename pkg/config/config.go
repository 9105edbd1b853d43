package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const DevelopmentEnv = "development"

type Config struct {
	Addr   string `envconfig:"ADDR"    default:":3000"`
	AppEnv string `envconfig:"APP_ENV" default:"production"`

	PostgresHost     string `envconfig:"POSTGRES_HOST"     required:"true"`
	PostgresPort     string `envconfig:"POSTGRES_PORT"     default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER"     required:"true"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	PostgresDB       string `envconfig:"POSTGRES_DB"       required:"true"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE"  default:"require"`

	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	ListingCacheTTL time.Duration `envconfig:"LISTING_CACHE_TTL" default:"30s"`

	ResendAPIKey string `envconfig:"RESEND_API_KEY"`
	ResendAPIURL string `envconfig:"RESEND_API_URL" default:"https://api.resend.com"`
	MailFrom     string `envconfig:"MAIL_FROM"`

	SiteURL     string `envconfig:"SITE_URL"     default:"http://localhost:3000"`
	LetterTitle string `envconfig:"LETTER_TITLE" default:"the open letter"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	if _, err := url.ParseRequestURI(cfg.SiteURL); err != nil {
		return nil, fmt.Errorf("invalid SITE_URL %q: %w", cfg.SiteURL, err)
	}

	return &cfg, nil
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == DevelopmentEnv
}

func (c *Config) PostgresDSN() string {
	pgConnUrl := url.URL{
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Scheme: "postgres",
		Host:   c.PostgresHost + ":" + c.PostgresPort,
		Path:   c.PostgresDB,
		RawQuery: url.Values{
			"sslmode":  {c.PostgresSSLMode},
			"TimeZone": {"UTC"},
		}.Encode(),
	}

	return pgConnUrl.String()
}

// MailConfigured reports whether outgoing mail has a key and a sender.
func (c *Config) MailConfigured() bool {
	return c.ResendAPIKey != "" && c.MailFrom != ""
}
