package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/exocortex/exoql/pkg/errors"
	"github.com/exocortex/exoql/pkg/sparql/complexity"
)

// Config is the top-level exoql configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Query      QueryConfig      `mapstructure:"query"`
	Complexity ComplexityConfig `mapstructure:"complexity"`
	Server     ServerConfig     `mapstructure:"server"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig sizes the in-memory store.
type StoreConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// QueryConfig toggles optional stages of the query pipeline.
type QueryConfig struct {
	Optimize  bool `mapstructure:"optimize"`
	Admission bool `mapstructure:"admission"`
}

// ComplexityConfig holds the admission thresholds in config-friendly units.
type ComplexityConfig struct {
	MaxCost           int    `mapstructure:"max_cost"`
	MaxTriplePatterns int    `mapstructure:"max_triple_patterns"`
	MaxJoinComplexity int    `mapstructure:"max_join_complexity"`
	MaxSubqueryDepth  int    `mapstructure:"max_subquery_depth"`
	MaxMemoryBytes    uint64 `mapstructure:"max_memory_bytes"`
	MaxExecutionMs    int64  `mapstructure:"max_execution_ms"`
	MaxTimeClass      string `mapstructure:"max_time_class"`
}

// ServerConfig controls the HTTP endpoint.
type ServerConfig struct {
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix EXOQL_).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EXOQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.CodeConfigLoadReadFailure, "reading config",
				errors.Field("path", path))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigValidateInvalidValue, "unmarshalling config")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Wrap(errors.Join(errs...), errors.CodeConfigValidateInvalidValue, "validating config")
	}

	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no
// environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	th := complexity.DefaultThresholds()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.cache_size", 1000)
	v.SetDefault("query.optimize", true)
	v.SetDefault("query.admission", true)
	v.SetDefault("complexity.max_cost", th.MaxCost)
	v.SetDefault("complexity.max_triple_patterns", th.MaxTriplePatterns)
	v.SetDefault("complexity.max_join_complexity", th.MaxJoinComplexity)
	v.SetDefault("complexity.max_subquery_depth", th.MaxSubqueryDepth)
	v.SetDefault("complexity.max_memory_bytes", th.MaxMemoryBytes)
	v.SetDefault("complexity.max_execution_ms", th.MaxExecutionTime.Milliseconds())
	v.SetDefault("complexity.max_time_class", th.MaxTimeClass.String())
	v.SetDefault("server.listen", "localhost:27124")
	v.SetDefault("server.cors_origins", []string{"*"})
}

// Thresholds converts the complexity section for the analyzer. It assumes
// Validate has passed; an unknown class falls back to the default.
func (c *Config) Thresholds() complexity.Thresholds {
	th := complexity.DefaultThresholds()
	th.MaxCost = c.Complexity.MaxCost
	th.MaxTriplePatterns = c.Complexity.MaxTriplePatterns
	th.MaxJoinComplexity = c.Complexity.MaxJoinComplexity
	th.MaxSubqueryDepth = c.Complexity.MaxSubqueryDepth
	th.MaxMemoryBytes = c.Complexity.MaxMemoryBytes
	th.MaxExecutionTime = time.Duration(c.Complexity.MaxExecutionMs) * time.Millisecond
	if class, err := complexity.ParseTimeClass(c.Complexity.MaxTimeClass); err == nil {
		th.MaxTimeClass = class
	}
	return th
}

// Logger builds a logrus logger from the log section.
func (c *Config) Logger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateLog()...)
	errs = append(errs, c.validateStore()...)
	errs = append(errs, c.validateComplexity()...)
	errs = append(errs, c.validateServer()...)

	return errs
}

func invalid(format string, args ...any) error {
	return errors.Errorf(errors.CodeConfigValidateInvalidValue, format, args...)
}

func (c *Config) validateLog() []error {
	var errs []error

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, invalid("config: log.level must be a logrus level, got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, invalid("config: log.format must be one of [text, json], got %q", c.Log.Format))
	}

	return errs
}

func (c *Config) validateStore() []error {
	if c.Store.CacheSize <= 0 {
		return []error{invalid("config: store.cache_size must be positive, got %d", c.Store.CacheSize)}
	}
	return nil
}

func (c *Config) validateComplexity() []error {
	var errs []error

	positive := []struct {
		key   string
		value int64
	}{
		{"complexity.max_cost", int64(c.Complexity.MaxCost)},
		{"complexity.max_triple_patterns", int64(c.Complexity.MaxTriplePatterns)},
		{"complexity.max_join_complexity", int64(c.Complexity.MaxJoinComplexity)},
		{"complexity.max_subquery_depth", int64(c.Complexity.MaxSubqueryDepth)},
		{"complexity.max_execution_ms", c.Complexity.MaxExecutionMs},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, invalid("config: %s must be positive, got %d", p.key, p.value))
		}
	}
	if c.Complexity.MaxMemoryBytes == 0 {
		errs = append(errs, invalid("config: complexity.max_memory_bytes must be positive"))
	}
	if _, err := complexity.ParseTimeClass(c.Complexity.MaxTimeClass); err != nil {
		errs = append(errs, invalid("config: complexity.max_time_class is not a known class, got %q",
			c.Complexity.MaxTimeClass))
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if c.Server.Listen == "" {
		return append(errs, invalid("config: server.listen must not be empty"))
	}
	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return append(errs, invalid("config: server.listen must be a valid host:port address, got %q: %w",
			c.Server.Listen, err))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, invalid("config: server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("config: server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}
