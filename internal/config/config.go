package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv        string `mapstructure:"APP_ENV"`
	Port          string `mapstructure:"PORT"`
	BaseURL       string `mapstructure:"BASE_URL"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RedisURL      string `mapstructure:"REDIS_URL"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	SessionSecret string `mapstructure:"SESSION_SECRET"`

	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`

	// Object storage
	StorageDriver    string `mapstructure:"STORAGE_DRIVER"` // "filesystem" or "s3"
	StorageRoot      string `mapstructure:"STORAGE_ROOT"`
	StoragePublicURL string `mapstructure:"STORAGE_PUBLIC_URL"`
	ChunkDir         string `mapstructure:"CHUNK_DIR"`
	S3Endpoint       string `mapstructure:"S3_ENDPOINT"`
	S3AccessKeyID    string `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretKey      string `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3Bucket         string `mapstructure:"S3_BUCKET"`
	S3Region         string `mapstructure:"S3_REGION"`
	S3UseSSL         bool   `mapstructure:"S3_USE_SSL"`

	// Transactional email
	MailgunAPIURL    string `mapstructure:"MAILGUN_API_URL"`
	MailgunAPIKey    string `mapstructure:"MAILGUN_API_KEY"`
	MailgunDomain    string `mapstructure:"MAILGUN_DOMAIN"`
	MailgunFromEmail string `mapstructure:"MAILGUN_FROM_EMAIL"`
}

// IsProduction reports whether the service runs with production defaults.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MailConfigured reports whether all Mailgun settings are present.
func (c Config) MailConfigured() bool {
	return c.MailgunAPIKey != "" && c.MailgunDomain != "" && c.MailgunFromEmail != ""
}

func LoadConfig() (config Config, err error) {
	v := viper.New()

	v.SetDefault("APP_ENV", "local")
	v.SetDefault("PORT", "8080")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("DATABASE_URL", "sqlite://anonhost.db")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("SESSION_SECRET", "change-me-change-me-change-me-32b")
	v.SetDefault("MIGRATIONS_PATH", "file://migration")
	v.SetDefault("STORAGE_DRIVER", "filesystem")
	v.SetDefault("STORAGE_ROOT", "./uploads")
	v.SetDefault("STORAGE_PUBLIC_URL", "")
	v.SetDefault("CHUNK_DIR", filepath.Join(os.TempDir(), "anonhost-chunks"))
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "auto")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("MAILGUN_API_URL", "https://api.mailgun.net")
	v.SetDefault("MAILGUN_API_KEY", "")
	v.SetDefault("MAILGUN_DOMAIN", "")
	v.SetDefault("MAILGUN_FROM_EMAIL", "")

	v.AutomaticEnv()

	err = v.Unmarshal(&config)
	if err != nil {
		log.Printf("unable to decode into struct, %v", err)
		return
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.StoragePublicURL == "" {
		config.StoragePublicURL = config.BaseURL + "/uploads"
	}
	config.StoragePublicURL = strings.TrimRight(config.StoragePublicURL, "/")

	return
}
