package config

import (
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	StrategyRoundRobin = "round-robin"
	StrategyRandom     = "random"
	StrategyLeastConn  = "least-conn"
)

// Config is the full option surface of the proxy. Durations are kept as
// strings and parsed by the caller, so validation errors name the option.
type Config struct {
	ListenPort                  int      `mapstructure:"listen_port"`
	Backends                    []string `mapstructure:"backends"`
	WorkerConcurrencyHint       int      `mapstructure:"worker_concurrency_hint"`
	MaxConnectionsPerBackend    int      `mapstructure:"max_connections_per_backend"`
	RetryCount                  int      `mapstructure:"retry_count"`
	HealthCheckFailureThreshold int      `mapstructure:"health_check_failure_threshold"`
	FailureWindow               string   `mapstructure:"failure_window"`
	RequestTimeout              string   `mapstructure:"request_timeout"`
	ProbeInterval               string   `mapstructure:"probe_interval"`
	ProbePath                   string   `mapstructure:"probe_path"`
	Strategy                    string   `mapstructure:"strategy"`
	Environment                 string   `mapstructure:"environment"`
	LogLevel                    string   `mapstructure:"log_level"`
}

// recognizedKeys is the set of options the proxy understands. Anything else
// found in the config file is ignored with a warning, never an error.
var recognizedKeys = map[string]bool{
	"listen_port":                    true,
	"backends":                       true,
	"worker_concurrency_hint":        true,
	"max_connections_per_backend":    true,
	"retry_count":                    true,
	"health_check_failure_threshold": true,
	"failure_window":                 true,
	"request_timeout":                true,
	"probe_interval":                 true,
	"probe_path":                     true,
	"strategy":                       true,
	"environment":                    true,
	"log_level":                      true,
}

func Load() (*Config, error) {
	viper.SetDefault("listen_port", 8080)
	viper.SetDefault("worker_concurrency_hint", 0)
	viper.SetDefault("max_connections_per_backend", 0)
	viper.SetDefault("retry_count", 1)
	viper.SetDefault("health_check_failure_threshold", 3)
	viper.SetDefault("failure_window", "30s")
	viper.SetDefault("request_timeout", "30s")
	viper.SetDefault("probe_interval", "2s")
	viper.SetDefault("probe_path", "/health")
	viper.SetDefault("strategy", StrategyRoundRobin)
	viper.SetDefault("environment", EnvDev)
	viper.SetDefault("log_level", LogLevelInfo)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
		warnUnknownKeys()
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func warnUnknownKeys() {
	for _, key := range viper.AllKeys() {
		if !recognizedKeys[key] {
			slog.Warn("ignoring unknown config option", slog.String("key", key))
		}
	}
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ListenPort,
			validation.Required,
			validation.Min(1),
			validation.Max(65535),
		),
		validation.Field(&c.Backends,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateHostPort)),
		),
		validation.Field(&c.WorkerConcurrencyHint,
			validation.Min(0),
		),
		validation.Field(&c.MaxConnectionsPerBackend,
			validation.Min(0),
		),
		validation.Field(&c.RetryCount,
			validation.Min(0),
		),
		validation.Field(&c.HealthCheckFailureThreshold,
			validation.Required,
			validation.Min(1),
		),
		validation.Field(&c.FailureWindow,
			validation.Required,
			validation.By(validateDuration),
		),
		validation.Field(&c.RequestTimeout,
			validation.Required,
			validation.By(validateDuration),
		),
		validation.Field(&c.ProbeInterval,
			validation.Required,
			validation.By(validateDuration),
		),
		validation.Field(&c.ProbePath,
			validation.Required,
			validation.By(validatePath),
		),
		validation.Field(&c.Strategy,
			validation.Required,
			validation.In(StrategyRoundRobin, StrategyRandom, StrategyLeastConn),
		),
		validation.Field(&c.Environment,
			validation.Required,
			validation.In(EnvDev, EnvStaging, EnvProd),
		),
		validation.Field(&c.LogLevel,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validatePath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if !strings.HasPrefix(path, "/") {
		return validation.NewError("validation_invalid_path", "must start with /")
	}

	return nil
}
