package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Blacklist source kinds.
const (
	SourcePostgres = "postgres"
	SourceBolt     = "bolt"
	SourceFile     = "file"
	SourceNone     = "none"
)

// AppConfig holds configuration values parsed from environment variables.
// Durations are whole seconds.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Listen is the proxy's host:port.
	Listen         string `koanf:"listen" validate:"required,host_port"`
	MaxConnections int64  `koanf:"max_connections" validate:"required,gte=1"`
	SocketTimeout  int    `koanf:"socket_timeout" validate:"required,gte=1"`
	BufferSize     int    `koanf:"buffer_size" validate:"required,gte=512,lte=1048576"`

	BlacklistSource  string  `koanf:"blacklist_source" validate:"required,oneof=postgres bolt file none"`
	BlacklistRefresh int     `koanf:"blacklist_refresh" validate:"required,gte=1"`
	BlacklistFile    string  `koanf:"blacklist_file" validate:"required_if=BlacklistSource file"`
	BlacklistDB      string  `koanf:"blacklist_db" validate:"required_if=BlacklistSource bolt"`
	BlacklistFPRate  float64 `koanf:"blacklist_fp_rate" validate:"gt=0,lt=1"`

	CacheTTL  int `koanf:"cache_ttl" validate:"required,gte=1"`
	CacheSize int `koanf:"cache_size" validate:"required,gte=1"`

	// DatabaseURL enables the postgres log sink and is required by the postgres source.
	DatabaseURL string `koanf:"database_url" validate:"required_if=BlacklistSource postgres"`

	ThreatIntelKey     string `koanf:"threatintel_key"`
	ThreatIntelURL     string `koanf:"threatintel_url" validate:"required,url"`
	ThreatIntelTimeout int    `koanf:"threatintel_timeout" validate:"required,gte=1"`

	ProbeTimeout int `koanf:"probe_timeout" validate:"required,gte=1"`

	AlertWebhook string  `koanf:"alert_webhook" validate:"omitempty,url"`
	AlertRate    float64 `koanf:"alert_rate" validate:"gt=0"`

	MetricsListen     string `koanf:"metrics_listen" validate:"omitempty,host_port"`
	ForbiddenTemplate string `koanf:"forbidden_template"`
}

// DEFAULT_APP_CONFIG defines the default application configuration settings for the proxy.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:                "prod",
	LogLevel:           "info",
	Listen:             "0.0.0.0:8080",
	MaxConnections:     1024,
	SocketTimeout:      10,
	BufferSize:         4096,
	BlacklistSource:    SourceNone,
	BlacklistRefresh:   10,
	BlacklistFPRate:    0.01,
	CacheTTL:           600,
	CacheSize:          10000,
	ThreatIntelURL:     "https://safebrowsing.googleapis.com/v4/threatMatches:find",
	ThreatIntelTimeout: 5,
	ProbeTimeout:       5,
	AlertRate:          1,
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *AppConfig) SocketTimeoutDuration() time.Duration    { return seconds(c.SocketTimeout) }
func (c *AppConfig) BlacklistRefreshInterval() time.Duration { return seconds(c.BlacklistRefresh) }
func (c *AppConfig) CacheTTLDuration() time.Duration         { return seconds(c.CacheTTL) }
func (c *AppConfig) ThreatIntelTimeoutDuration() time.Duration {
	return seconds(c.ThreatIntelTimeout)
}
func (c *AppConfig) ProbeTimeoutDuration() time.Duration { return seconds(c.ProbeTimeout) }

// validHostPort accepts "host:port" where host may be empty, an IP or a name,
// and port is 1-65535.
func validHostPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if strings.ContainsAny(host, " /") {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// envLoader loads environment variables with the prefix "PROXY_".
// It transforms the keys to lowercase and removes the prefix,
// and can be mocked in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "PROXY_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "PROXY_"))
			value = strings.TrimSpace(value)
			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the "host_port" tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("host_port", validHostPort)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	err = registerValidation(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
