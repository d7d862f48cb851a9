// Package config loads server settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort string
	SiteURL    string

	DBURL             string
	DBLogLevel        string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	SecretKey  string
	SessionTTL time.Duration

	MediaRoot     string
	IndexCacheTTL time.Duration

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
}

var (
	ErrMissingDBURL     = errors.New("DB_URL is not set")
	ErrMissingSecretKey = errors.New("SECRET_KEY is not set")
)

func defaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SITE_URL", "http://localhost:8080")
	v.SetDefault("DB_LOG_LEVEL", "warn")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("SESSION_TTL", "336h")
	v.SetDefault("MEDIA_ROOT", "uploads")
	v.SetDefault("INDEX_CACHE_TTL", "20s")
	v.SetDefault("SMTP_PORT", 587)
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Error loading .env file: %v", err)
	}

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	for _, key := range []string{"DB_URL", "SECRET_KEY", "SMTP_HOST", "SMTP_USER", "SMTP_PASS", "SMTP_FROM"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	cfg := &Config{
		ServerPort:        v.GetString("SERVER_PORT"),
		SiteURL:           v.GetString("SITE_URL"),
		DBURL:             v.GetString("DB_URL"),
		DBLogLevel:        v.GetString("DB_LOG_LEVEL"),
		DBMaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		SecretKey:         v.GetString("SECRET_KEY"),
		SessionTTL:        v.GetDuration("SESSION_TTL"),
		MediaRoot:         v.GetString("MEDIA_ROOT"),
		IndexCacheTTL:     v.GetDuration("INDEX_CACHE_TTL"),
		SMTPHost:          v.GetString("SMTP_HOST"),
		SMTPPort:          v.GetInt("SMTP_PORT"),
		SMTPUser:          v.GetString("SMTP_USER"),
		SMTPPass:          v.GetString("SMTP_PASS"),
		SMTPFrom:          v.GetString("SMTP_FROM"),
	}
	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = cfg.SMTPUser
	}
	return cfg, nil
}

// ValidateDB checks the settings needed to open the database.
func (c *Config) ValidateDB() error {
	if c.DBURL == "" {
		return ErrMissingDBURL
	}
	return nil
}

// ValidateServer checks the settings needed to serve HTTP.
func (c *Config) ValidateServer() error {
	if err := c.ValidateDB(); err != nil {
		return err
	}
	if c.SecretKey == "" {
		return ErrMissingSecretKey
	}
	return nil
}

func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}
