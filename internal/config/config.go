package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"imagecompressor/internal/mail"
)

const (
	DefaultPort    = 5137
	DefaultEnv     = "development"
	DefaultVersion = "1.0.0"
)

// Config holds the server settings read from the environment
type Config struct {
	Port        int
	Env         string
	Version     string
	CORSOrigins []string
	SMTP        mail.SMTPConfig
	ToEmail     string
	FromEmail   string
}

// Load reads the process environment
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads settings through getenv
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:    DefaultPort,
		Env:     DefaultEnv,
		Version: DefaultVersion,
		SMTP: mail.SMTPConfig{
			Host:     getenv("SMTP_HOST"),
			Username: getenv("SMTP_USER"),
			Password: getenv("SMTP_PASS"),
			TLS:      getenv("SMTP_TLS"),
		},
		ToEmail:   getenv("TO_EMAIL"),
		FromEmail: getenv("FROM_EMAIL"),
	}

	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return cfg, fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Port = port
	}
	if v := getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid SMTP_PORT: %q", v)
		}
		cfg.SMTP.Port = port
	}
	if v := getenv("APP_ENV"); v != "" {
		cfg.Env = v
	}
	if v := getenv("APP_VERSION"); v != "" {
		cfg.Version = v
	}
	for _, origin := range strings.Split(getenv("CORS_ORIGIN"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.SMTP.Username
	}
	if cfg.ToEmail == "" {
		cfg.ToEmail = cfg.FromEmail
	}

	return cfg, nil
}

// IsProduction reports whether APP_ENV is production
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// MailConfigured reports whether contact mail can go through SMTP
func (c Config) MailConfigured() bool {
	return c.SMTP.Host != "" && c.ToEmail != ""
}
