package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"kpauth/cmd/internal/auth"
	authapi "kpauth/cmd/internal/auth/api"
	"kpauth/cmd/internal/db"
	"kpauth/cmd/security/password"
	"kpauth/cmd/security/token"

	"github.com/spf13/viper"
)

// EnvProduction enables the strict security checks.
const EnvProduction = "production"

// Config contains all runtime configuration. Values come from the
// environment, optionally seeded by a dotenv-style file.
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`

	HTTPAddr          string        `mapstructure:"HTTP_ADDR"`
	ReadHeaderTimeout time.Duration `mapstructure:"HTTP_READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `mapstructure:"HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `mapstructure:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `mapstructure:"HTTP_IDLE_TIMEOUT"`
	MaxHeaderBytes    int           `mapstructure:"HTTP_MAX_HEADER_BYTES"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// DatabaseURL empty selects the in-memory stores.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBSchema    string `mapstructure:"DB_SCHEMA"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	AutoMigrate bool   `mapstructure:"AUTO_MIGRATE"`

	// RedisURL empty disables the Redis audit stream.
	RedisURL       string `mapstructure:"REDIS_URL"`
	AuditStream    string `mapstructure:"AUDIT_STREAM"`
	AuditStreamMax int64  `mapstructure:"AUDIT_STREAM_MAX_LEN"`

	SessionSecret    string `mapstructure:"SESSION_SECRET"`
	SessionLookupKey bool   `mapstructure:"SESSION_LOOKUP_KEY"`

	AccessTokenTTLMinutes int  `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	DeviceTokenTTLDays    int  `mapstructure:"DEVICE_TOKEN_TTL_DAYS"`
	BcryptCost            int  `mapstructure:"BCRYPT_COST"`
	HashWorkers           int  `mapstructure:"HASH_WORKERS"`
	FoldEmailCase         bool `mapstructure:"FOLD_EMAIL_CASE"`

	CookieSecure bool   `mapstructure:"COOKIE_SECURE"`
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`
	TrustProxy   bool   `mapstructure:"TRUST_PROXY"`

	CORSAllowedOrigins   []string `mapstructure:"CORS_ORIGINS"`
	CORSAllowCredentials bool     `mapstructure:"CORS_ALLOW_CREDENTIALS"`
	CORSMaxAgeSeconds    int      `mapstructure:"CORS_MAX_AGE_SECONDS"`

	Argon2MemoryKiB   uint32 `mapstructure:"ARGON2_MEMORY_KIB"`
	Argon2Iterations  uint32 `mapstructure:"ARGON2_ITERATIONS"`
	Argon2Parallelism uint8  `mapstructure:"ARGON2_PARALLELISM"`
	PasswordMinLen    int    `mapstructure:"PASSWORD_MIN_LEN"`
}

// LoadConfig reads the optional config file named by KPAUTH_CONFIG (default
// ".env"), then the environment, which wins. A missing file is ignored.
func LoadConfig() (Config, error) {
	v := viper.New()

	file := strings.TrimSpace(os.Getenv("KPAUTH_CONFIG"))
	if file == "" {
		file = ".env"
	}
	v.SetConfigFile(file)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.CORSAllowedOrigins = splitList(cfg.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	pw := password.DefaultConfig()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("HTTP_READ_HEADER_TIMEOUT", 5*time.Second)
	v.SetDefault("HTTP_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("HTTP_MAX_HEADER_BYTES", 1<<20)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_SCHEMA", db.DefaultSchema)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 0)
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("AUDIT_STREAM", "")
	v.SetDefault("AUDIT_STREAM_MAX_LEN", 100000)
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_LOOKUP_KEY", false)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", int(auth.DefaultSessionTTL/time.Minute))
	v.SetDefault("DEVICE_TOKEN_TTL_DAYS", int(auth.DefaultDeviceTTL/(24*time.Hour)))
	v.SetDefault("BCRYPT_COST", token.DefaultCost)
	v.SetDefault("HASH_WORKERS", 0)
	v.SetDefault("FOLD_EMAIL_CASE", false)
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("CORS_ALLOW_CREDENTIALS", true)
	v.SetDefault("CORS_MAX_AGE_SECONDS", 600)
	v.SetDefault("ARGON2_MEMORY_KIB", pw.Params.MemoryKiB)
	v.SetDefault("ARGON2_ITERATIONS", pw.Params.Iterations)
	v.SetDefault("ARGON2_PARALLELISM", pw.Params.Parallelism)
	v.SetDefault("PASSWORD_MIN_LEN", pw.Policy.MinLength)
}

// Validate fails fast on values the server cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.AccessTokenTTLMinutes <= 0 {
		return errors.New("config: ACCESS_TOKEN_TTL_MINUTES must be positive")
	}
	if c.DeviceTokenTTLDays <= 0 {
		return errors.New("config: DEVICE_TOKEN_TTL_DAYS must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.HashWorkers < 0 {
		return errors.New("config: HASH_WORKERS must not be negative")
	}
	if err := db.CheckSchema(c.DBSchema); err != nil {
		return fmt.Errorf("config: DB_SCHEMA: %w", err)
	}
	if c.AutoMigrate && c.DatabaseURL == "" {
		return errors.New("config: AUTO_MIGRATE requires DATABASE_URL")
	}
	if err := c.PasswordConfig().Check(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return ValidateSecurityConfig(c)
}

// IsProduction reports whether ENVIRONMENT is production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvProduction)
}

// AuthConfig builds the auth service configuration.
func (c Config) AuthConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.SessionTTL = time.Duration(c.AccessTokenTTLMinutes) * time.Minute
	cfg.DeviceTTL = time.Duration(c.DeviceTokenTTLDays) * 24 * time.Hour
	cfg.FoldEmailCase = c.FoldEmailCase
	if c.SessionLookupKey {
		cfg.LookupKey = []byte(c.SessionSecret)
	}
	return cfg
}

// APIConfig builds the HTTP auth configuration.
func (c Config) APIConfig() authapi.Config {
	cfg := authapi.DefaultConfig()
	cfg.CookieSecure = c.CookieSecure
	cfg.CookieDomain = strings.TrimSpace(c.CookieDomain)
	cfg.TrustProxy = c.TrustProxy
	return cfg
}

// PasswordConfig builds the Argon2id configuration.
func (c Config) PasswordConfig() password.Config {
	cfg := password.DefaultConfig()
	if c.Argon2MemoryKiB > 0 {
		cfg.Params.MemoryKiB = c.Argon2MemoryKiB
	}
	if c.Argon2Iterations > 0 {
		cfg.Params.Iterations = c.Argon2Iterations
	}
	if c.Argon2Parallelism > 0 {
		cfg.Params.Parallelism = c.Argon2Parallelism
	}
	if c.PasswordMinLen > 0 {
		cfg.Policy.MinLength = c.PasswordMinLen
	}
	return cfg
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
