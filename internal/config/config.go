package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath          = "config.toml"
	DefaultHTTPAddr            = ":8080"
	DefaultJWTExpiresIn        = "24h"
	DefaultPGHost              = "127.0.0.1"
	DefaultPGPort              = 5432
	DefaultPGUser              = "postgres"
	DefaultPGDatabase          = "zapdesk"
	DefaultPGSSLMode           = "disable"
	DefaultProviderTimeout     = 30
	DefaultMediaTimeout        = 20
	DefaultRevertWindowHours   = 24
	DefaultStatusSyncSpec      = "@every 5m"
	DefaultWebhookPath         = "/whatsapp/webhook"
	DefaultProviderIntegration = "WHATSAPP-BAILEYS"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Admin    AdminConfig    `toml:"admin"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Provider ProviderConfig `toml:"provider"`
	Contacts ContactsConfig `toml:"contacts"`
	Media    MediaConfig    `toml:"media"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// PublicBaseURL is the externally reachable base URL registered with
	// the provider as the webhook target (e.g. https://crm.example.com).
	PublicBaseURL string `toml:"public_base_url"`
}

type AdminConfig struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
	Email    string `toml:"email"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// ProviderConfig holds the Evolution API server settings. The global key
// authorizes instance provisioning; each instance carries its own key.
type ProviderConfig struct {
	BaseURL        string `toml:"base_url"`
	GlobalAPIKey   string `toml:"global_api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Integration    string `toml:"integration"`
	StatusSyncSpec string `toml:"status_sync_spec"`
}

type ContactsConfig struct {
	RevertWindowHours int `toml:"revert_window_hours"`
}

type MediaConfig struct {
	DownloadTimeoutSeconds int `toml:"download_timeout_seconds"`
}

// WebhookURL returns the full webhook endpoint URL to register with the
// provider, or empty string when no public base URL is configured.
func (c ServerConfig) WebhookURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + DefaultWebhookPath
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Admin: AdminConfig{
			Username: "admin",
			Password: "change-your-password-here",
			Email:    "you@example.com",
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Provider: ProviderConfig{
			TimeoutSeconds: DefaultProviderTimeout,
			Integration:    DefaultProviderIntegration,
			StatusSyncSpec: DefaultStatusSyncSpec,
		},
		Contacts: ContactsConfig{
			RevertWindowHours: DefaultRevertWindowHours,
		},
		Media: MediaConfig{
			DownloadTimeoutSeconds: DefaultMediaTimeout,
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
