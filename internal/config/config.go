package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DevFallbackSecret signs tokens when no secret is configured in development.
// Validate rejects it in production.
const DevFallbackSecret = "dev-only-insecure-secret"

// MinSigningKeyLength is the shortest signing key accepted in production.
const MinSigningKeyLength = 32

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env      string         `mapstructure:"env"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	S3       S3Config       `mapstructure:"s3"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	TLS             bool          `mapstructure:"tls"`
	TLSCert         string        `mapstructure:"tls_cert"`
	TLSKey          string        `mapstructure:"tls_key"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	// Driver is "sqlite3", "postgres" or "memory".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	SigningSecret string `mapstructure:"signing_secret"`
	// SigningSecretSource, when set, is an s3://bucket/key URI holding the secret.
	SigningSecretSource string `mapstructure:"signing_secret_source"`
	// Hasher is "bcrypt" or "argon2id".
	Hasher          string `mapstructure:"hasher"`
	BcryptCost      int    `mapstructure:"bcrypt_cost"`
	Argon2Time      uint32 `mapstructure:"argon2_time"`
	Argon2MemoryKiB uint32 `mapstructure:"argon2_memory_kib"`
	Argon2Threads   uint8  `mapstructure:"argon2_threads"`
	HashConcurrency int    `mapstructure:"hash_concurrency"`
	// CookieSecure forces the Secure cookie attribute when TLS terminates
	// in front of this process.
	CookieSecure bool `mapstructure:"cookie_secure"`
}

type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type LogConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

// IsProduction reports whether the deployment runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// CookieSecure reports whether session cookies carry the Secure attribute.
func (c *Config) CookieSecure() bool {
	return c.Server.TLS || c.Auth.CookieSecure
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Server.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDevelopment)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.tls", false)
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "data/auth.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("auth.signing_secret", "")
	v.SetDefault("auth.signing_secret_source", "")
	v.SetDefault("auth.hasher", "bcrypt")
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.argon2_time", 1)
	v.SetDefault("auth.argon2_memory_kib", 64*1024)
	v.SetDefault("auth.argon2_threads", 4)
	v.SetDefault("auth.hash_concurrency", runtime.NumCPU())
	v.SetDefault("auth.cookie_secure", false)

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")

	v.SetDefault("log.format", "json")
	v.SetDefault("log.level", "info")
}

// LoadConfig loads the configuration from defaults, an optional YAML file at
// path and AUTHD_-prefixed environment variables, in increasing precedence.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUTHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Auth.SigningSecret == "" && cfg.Auth.SigningSecretSource == "" && !cfg.IsProduction() {
		slog.Warn("auth.signing_secret not set, using development fallback; never do this outside local testing")
		cfg.Auth.SigningSecret = DevFallbackSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvDevelopment, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("env must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.TLS && (c.Server.TLSCert == "" || c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server.tls requires server.tls_cert and server.tls_key"))
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unsupported database.driver: %q", c.Database.Driver))
	}

	if c.Auth.SigningSecretSource == "" {
		if c.Auth.SigningSecret == "" {
			errs = append(errs, errors.New("auth.signing_secret is required"))
		} else if c.IsProduction() && c.Auth.SigningSecret == DevFallbackSecret {
			errs = append(errs, errors.New("auth.signing_secret must not be the development fallback in production"))
		} else if c.IsProduction() && len(c.Auth.SigningSecret) < MinSigningKeyLength {
			errs = append(errs, fmt.Errorf("auth.signing_secret must be at least %d bytes in production, got %d",
				MinSigningKeyLength, len(c.Auth.SigningSecret)))
		}
	} else if !strings.HasPrefix(c.Auth.SigningSecretSource, "s3://") {
		errs = append(errs, fmt.Errorf("auth.signing_secret_source must be an s3:// URI, got %q", c.Auth.SigningSecretSource))
	}

	switch c.Auth.Hasher {
	case "bcrypt":
		if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
			errs = append(errs, fmt.Errorf("auth.bcrypt_cost out of range: %d", c.Auth.BcryptCost))
		}
	case "argon2id":
		if c.Auth.Argon2Time == 0 || c.Auth.Argon2MemoryKiB == 0 || c.Auth.Argon2Threads == 0 {
			errs = append(errs, errors.New("auth.argon2_* parameters must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported auth.hasher: %q", c.Auth.Hasher))
	}
	if c.Auth.HashConcurrency < 1 {
		errs = append(errs, fmt.Errorf("auth.hash_concurrency must be at least 1, got %d", c.Auth.HashConcurrency))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unsupported log.format: %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
