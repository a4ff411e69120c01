package bootstrap

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/couponauth"
)

// Refresh record backends.
const (
	RefreshBackendRedis    = "redis"
	RefreshBackendPostgres = "postgres"
)

// Config is the resolved runtime configuration of the server binary.
type Config struct {
	HTTPAddr          string
	LogLevel          string
	TrustProxyHeaders bool
	ShutdownTimeout   time.Duration
	CORSOrigins       []string
	AllowedHosts      []string
	HSTS              bool

	DatabaseURL          string
	RedisURL             string
	RefreshBackend       string
	RefreshSweepInterval time.Duration

	JWTSecret            string
	AllowEphemeralSecret bool
	AccessTTL            time.Duration
	RefreshTTL           time.Duration

	PasswordMemoryKB uint32
	PasswordTime     uint32
	PasswordWorkers  int

	OperationTimeout time.Duration
	MetricsEnabled   bool

	KafkaBrokers []string
	KafkaTopic   string

	// Dev runs on an embedded Redis and in-memory accounts.
	Dev bool
}

// configFile mirrors the YAML schema of configs/couponauth.yaml.
type configFile struct {
	Server struct {
		Addr              string   `yaml:"addr"`
		LogLevel          string   `yaml:"log_level"`
		TrustProxyHeaders *bool    `yaml:"trust_proxy_headers"`
		ShutdownTimeout   string   `yaml:"shutdown_timeout"`
		CORSOrigins       []string `yaml:"cors_origins"`
		AllowedHosts      []string `yaml:"allowed_hosts"`
		HSTS              *bool    `yaml:"hsts"`
	} `yaml:"server"`
	Dependencies struct {
		PostgresURL          string `yaml:"postgres_url"`
		RedisURL             string `yaml:"redis_url"`
		RefreshBackend       string `yaml:"refresh_backend"`
		RefreshSweepInterval string `yaml:"refresh_sweep_interval"`
	} `yaml:"dependencies"`
	Auth struct {
		JWTSecret            string `yaml:"jwt_secret"`
		AllowEphemeralSecret *bool  `yaml:"allow_ephemeral_secret"`
		AccessTTL            string `yaml:"access_ttl"`
		RefreshTTL           string `yaml:"refresh_ttl"`
		OperationTimeout     string `yaml:"operation_timeout"`
	} `yaml:"auth"`
	Password struct {
		MemoryKB uint32 `yaml:"memory_kb"`
		Time     uint32 `yaml:"time"`
		Workers  int    `yaml:"workers"`
	} `yaml:"password"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
}

// LoadConfig resolves configuration in priority order: defaults, then the
// YAML file at path (skipped when path is empty or missing), then the
// environment. dev relaxes the dependency and secret requirements and turns
// HSTS off by default.
func LoadConfig(path string, dev bool) (Config, error) {
	def := couponauth.DefaultConfig()
	cfg := Config{
		HTTPAddr:             ":8080",
		LogLevel:             "info",
		ShutdownTimeout:      10 * time.Second,
		CORSOrigins:          []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedHosts:         []string{"*"},
		HSTS:                 !dev,
		RefreshBackend:       RefreshBackendRedis,
		RefreshSweepInterval: time.Hour,
		AccessTTL:            def.JWT.AccessTTL,
		RefreshTTL:           def.Refresh.TTL,
		PasswordMemoryKB:     def.Password.Memory,
		PasswordTime:         def.Password.Time,
		OperationTimeout:     def.Store.OperationTimeout,
		MetricsEnabled:       true,
		KafkaTopic:           "couponauth.audit",
		Dev:                  dev,
	}

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	setString(&cfg.HTTPAddr, f.Server.Addr)
	setString(&cfg.LogLevel, f.Server.LogLevel)
	setBool(&cfg.TrustProxyHeaders, f.Server.TrustProxyHeaders)
	setBool(&cfg.HSTS, f.Server.HSTS)
	if f.Server.CORSOrigins != nil {
		cfg.CORSOrigins = f.Server.CORSOrigins
	}
	if len(f.Server.AllowedHosts) > 0 {
		cfg.AllowedHosts = f.Server.AllowedHosts
	}
	setString(&cfg.DatabaseURL, f.Dependencies.PostgresURL)
	setString(&cfg.RedisURL, f.Dependencies.RedisURL)
	setString(&cfg.RefreshBackend, f.Dependencies.RefreshBackend)
	setString(&cfg.JWTSecret, f.Auth.JWTSecret)
	setBool(&cfg.AllowEphemeralSecret, f.Auth.AllowEphemeralSecret)
	setBool(&cfg.MetricsEnabled, f.Metrics.Enabled)
	setString(&cfg.KafkaTopic, f.Kafka.Topic)
	if len(f.Kafka.Brokers) > 0 {
		cfg.KafkaBrokers = f.Kafka.Brokers
	}
	if f.Password.MemoryKB > 0 {
		cfg.PasswordMemoryKB = f.Password.MemoryKB
	}
	if f.Password.Time > 0 {
		cfg.PasswordTime = f.Password.Time
	}
	if f.Password.Workers > 0 {
		cfg.PasswordWorkers = f.Password.Workers
	}

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", f.Server.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"dependencies.refresh_sweep_interval", f.Dependencies.RefreshSweepInterval, &cfg.RefreshSweepInterval},
		{"auth.access_ttl", f.Auth.AccessTTL, &cfg.AccessTTL},
		{"auth.refresh_ttl", f.Auth.RefreshTTL, &cfg.RefreshTTL},
		{"auth.operation_timeout", f.Auth.OperationTimeout, &cfg.OperationTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.HTTPAddr = envOrDefault("COUPONAUTH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = envOrDefault("COUPONAUTH_LOG_LEVEL", cfg.LogLevel)
	cfg.TrustProxyHeaders = envBool("COUPONAUTH_TRUST_PROXY_HEADERS", cfg.TrustProxyHeaders)
	cfg.CORSOrigins = envCSV("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.AllowedHosts = envCSV("ALLOWED_HOSTS", cfg.AllowedHosts)
	cfg.HSTS = envBool("COUPONAUTH_HSTS", cfg.HSTS)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.RefreshBackend = strings.ToLower(strings.TrimSpace(envOrDefault("COUPONAUTH_REFRESH_BACKEND", cfg.RefreshBackend)))
	cfg.JWTSecret = envOrDefault("JWT_SECRET", cfg.JWTSecret)
	cfg.AllowEphemeralSecret = envBool("COUPONAUTH_ALLOW_EPHEMERAL_SECRET", cfg.AllowEphemeralSecret)
	cfg.MetricsEnabled = envBool("COUPONAUTH_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("COUPONAUTH_KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.PasswordWorkers = envInt("COUPONAUTH_PASSWORD_WORKERS", cfg.PasswordWorkers)

	for _, d := range []struct {
		name string
		dst  *time.Duration
	}{
		{"COUPONAUTH_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"COUPONAUTH_REFRESH_SWEEP_INTERVAL", &cfg.RefreshSweepInterval},
		{"COUPONAUTH_ACCESS_TTL", &cfg.AccessTTL},
		{"COUPONAUTH_REFRESH_TTL", &cfg.RefreshTTL},
		{"COUPONAUTH_OPERATION_TIMEOUT", &cfg.OperationTimeout},
	} {
		raw := os.Getenv(d.name)
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func (c Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("missing http address")
	}
	switch c.RefreshBackend {
	case RefreshBackendRedis, RefreshBackendPostgres:
	default:
		return fmt.Errorf("unknown refresh backend %q", c.RefreshBackend)
	}
	if c.RefreshBackend == RefreshBackendPostgres && c.DatabaseURL == "" {
		return errors.New("refresh backend postgres requires DATABASE_URL")
	}
	if c.RefreshSweepInterval <= 0 {
		return errors.New("refresh sweep interval must be > 0")
	}
	if len(c.AllowedHosts) == 0 {
		return errors.New("allowed hosts must not be empty")
	}
	if c.Dev {
		return nil
	}
	if c.RedisURL == "" {
		return errors.New("missing REDIS_URL")
	}
	if c.DatabaseURL == "" {
		return errors.New("missing DATABASE_URL")
	}
	if c.JWTSecret == "" && !c.AllowEphemeralSecret {
		return errors.New("missing JWT_SECRET")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 bytes")
	}
	return nil
}

// Engine builds the Engine configuration. A missing secret is replaced by a
// random one when ephemeral secrets are allowed; tokens then die with the
// process.
func (c Config) Engine() (couponauth.Config, bool, error) {
	out := couponauth.DefaultConfig()
	out.JWT.AccessTTL = c.AccessTTL
	out.Refresh.TTL = c.RefreshTTL
	out.Password.Memory = c.PasswordMemoryKB
	out.Password.Time = c.PasswordTime
	out.Password.Workers = c.PasswordWorkers
	out.Store.OperationTimeout = c.OperationTimeout
	out.Metrics.Enabled = c.MetricsEnabled
	out.Metrics.EnableLatencyHistograms = c.MetricsEnabled

	ephemeral := false
	switch {
	case c.JWTSecret != "":
		out.JWT.Secret = []byte(c.JWTSecret)
	case c.AllowEphemeralSecret || c.Dev:
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return couponauth.Config{}, false, fmt.Errorf("generate ephemeral secret: %w", err)
		}
		out.JWT.Secret = secret
		ephemeral = true
	default:
		return couponauth.Config{}, false, errors.New("missing JWT_SECRET")
	}

	if err := out.Validate(); err != nil {
		return couponauth.Config{}, false, fmt.Errorf("engine config: %w", err)
	}
	return out, ephemeral, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
