package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath            = "config.toml"
	DefaultHTTPAddr              = ":8080"
	DefaultLineAPIEndpoint       = "https://api.line.me"
	DefaultLineDataEndpoint      = "https://api-data.line.me"
	DefaultErrorMessage          = "Error \U0001F972"
	DefaultDifyTimeoutSeconds    = 60
	DefaultSessionTimeoutSeconds = 3600
	DefaultJWTExpiresIn          = "24h"
	DefaultPGHost                = "127.0.0.1"
	DefaultPGPort                = 5432
	DefaultPGUser                = "postgres"
	DefaultPGDatabase            = "linedify"
	DefaultPGSSLMode             = "disable"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Line     LineConfig     `toml:"line"`
	Dify     DifyConfig     `toml:"dify"`
	Session  SessionConfig  `toml:"session"`
	Postgres PostgresConfig `toml:"postgres"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
	AdminSecret  string `toml:"admin_secret"`
}

// ExpiresIn parses the configured token lifetime.
func (c AuthConfig) ExpiresIn() (time.Duration, error) {
	return time.ParseDuration(c.JWTExpiresIn)
}

type LineConfig struct {
	ChannelSecret      string `toml:"channel_secret" validate:"required"`
	ChannelAccessToken string `toml:"channel_access_token" validate:"required"`
	APIEndpoint        string `toml:"api_endpoint" validate:"url"`
	DataEndpoint       string `toml:"data_endpoint" validate:"url"`
	// ErrorMessage is the reply text sent when event processing fails and no
	// custom error shaper is installed.
	ErrorMessage string `toml:"error_message"`
}

type DifyConfig struct {
	APIKey         string `toml:"api_key" validate:"required"`
	BaseURL        string `toml:"base_url" validate:"required,url"`
	User           string `toml:"user" validate:"required"`
	AppType        string `toml:"app_type" validate:"oneof=agent chatbot text-generator workflow"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"min=0"`
	Verbose        bool   `toml:"verbose"`
}

func (c DifyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type SessionConfig struct {
	Store string `toml:"store" validate:"oneof=postgres memory"`
	// TimeoutSeconds is the idle-conversation expiry; zero or negative
	// disables timeout-based expiry.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

func (c SessionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// Load reads the TOML config at path, falling back to defaults for every
// field the file does not set. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Line: LineConfig{
			APIEndpoint:  DefaultLineAPIEndpoint,
			DataEndpoint: DefaultLineDataEndpoint,
			ErrorMessage: DefaultErrorMessage,
		},
		Dify: DifyConfig{
			AppType:        "agent",
			TimeoutSeconds: DefaultDifyTimeoutSeconds,
		},
		Session: SessionConfig{
			Store:          "postgres",
			TimeoutSeconds: DefaultSessionTimeoutSeconds,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the loaded config for serving. Kept separate from Load so
// tooling can inspect a partial config without credentials.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Auth.ExpiresIn(); err != nil {
		return fmt.Errorf("invalid auth.jwt_expires_in: %w", err)
	}
	return nil
}
