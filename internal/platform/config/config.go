// Package config loads service configuration: built-in defaults, then an
// optional YAML file, then VERITAS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	strutil "veritas/pkg/platform/strings"
)

const EnvPrefix = "VERITAS"

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Addr          string `yaml:"addr"`
	MetricsAddr   string `yaml:"metricsAddr"   split_words:"true"`
	LogLevel      string `yaml:"logLevel"      split_words:"true"`
	LogFormat     string `yaml:"logFormat"     split_words:"true"`
	AdminAddress  string `yaml:"adminAddress"  split_words:"true"`
	JWTSigningKey string `yaml:"jwtSigningKey" envconfig:"JWT_SIGNING_KEY"`
	JWTIssuer     string `yaml:"jwtIssuer"     envconfig:"JWT_ISSUER"`
	JWTAudience   string `yaml:"jwtAudience"   envconfig:"JWT_AUDIENCE"`
	// ChainID scopes attestation signatures to one deployment.
	ChainID uint64 `yaml:"chainId" envconfig:"CHAIN_ID"`

	Storage         string        `yaml:"storage"`
	DatabaseURL     string        `yaml:"databaseURL"     envconfig:"DATABASE_URL"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" split_words:"true"`

	Redis     RedisConfig     `yaml:"redis"`
	Audit     AuditConfig     `yaml:"audit"`
	Consensus ConsensusConfig `yaml:"consensus"`
	Registry  RegistryConfig  `yaml:"registry"`
	Lists     ListsConfig     `yaml:"lists"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
}

// RedisConfig selects the Redis query store when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
	// KeyPrefix namespaces every key so several deployments can share one
	// Redis database.
	KeyPrefix    string        `yaml:"keyPrefix"    split_words:"true"`
	PoolSize     int           `yaml:"poolSize"     split_words:"true"`
	MinIdleConns int           `yaml:"minIdleConns" split_words:"true"`
	DialTimeout  time.Duration `yaml:"dialTimeout"  split_words:"true"`
	ReadTimeout  time.Duration `yaml:"readTimeout"  split_words:"true"`
	WriteTimeout time.Duration `yaml:"writeTimeout" split_words:"true"`
}

type AuditConfig struct {
	KafkaBrokers  []string      `yaml:"kafkaBrokers"  split_words:"true"`
	Topic         string        `yaml:"topic"`
	RelayInterval time.Duration `yaml:"relayInterval" split_words:"true"`
}

type ConsensusConfig struct {
	CountThreshold           int           `yaml:"countThreshold"           split_words:"true"`
	WeightedThresholdPercent int           `yaml:"weightedThresholdPercent" split_words:"true"`
	MinOracles               int           `yaml:"minOracles"               split_words:"true"`
	QueryExpiry              time.Duration `yaml:"queryExpiry"              split_words:"true"`
}

type RegistryConfig struct {
	MinReputation int    `yaml:"minReputation" split_words:"true"`
	MaxReputation int    `yaml:"maxReputation" split_words:"true"`
	DefaultWeight uint64 `yaml:"defaultWeight" split_words:"true"`
	MaxOracles    int    `yaml:"maxOracles"    split_words:"true"`
}

type ListsConfig struct {
	WhitelistDuration time.Duration `yaml:"whitelistDuration" split_words:"true"`
	LowDuration       time.Duration `yaml:"lowDuration"       split_words:"true"`
	MediumDuration    time.Duration `yaml:"mediumDuration"    split_words:"true"`
	HighDuration      time.Duration `yaml:"highDuration"      split_words:"true"`
	CriticalDuration  time.Duration `yaml:"criticalDuration"  split_words:"true"`
	EmergencyDuration time.Duration `yaml:"emergencyDuration" split_words:"true"`
}

type SweeperConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Batch    int           `yaml:"batch"`
}

const day = 24 * time.Hour

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Addr:            ":8080",
		MetricsAddr:     ":9090",
		LogLevel:        "info",
		LogFormat:       "json",
		JWTIssuer:       "veritas",
		JWTAudience:     "veritas-api",
		ChainID:         31337,
		Storage:         StorageMemory,
		ShutdownTimeout: 10 * time.Second,
		Redis: RedisConfig{
			KeyPrefix:    "veritas",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Audit: AuditConfig{
			Topic:         "veritas.audit",
			RelayInterval: time.Second,
		},
		Consensus: ConsensusConfig{
			CountThreshold:           2,
			WeightedThresholdPercent: 66,
			MinOracles:               2,
			QueryExpiry:              time.Hour,
		},
		Registry: RegistryConfig{
			MinReputation: 100,
			MaxReputation: 1000,
			DefaultWeight: 1,
			MaxOracles:    100,
		},
		Lists: ListsConfig{
			WhitelistDuration: 365 * day,
			LowDuration:       7 * day,
			MediumDuration:    30 * day,
			HighDuration:      90 * day,
			CriticalDuration:  365 * day,
			EmergencyDuration: 30 * day,
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: time.Minute,
			Batch:    100,
		},
	}
}

// Load layers path (if non-empty) and the environment over the defaults,
// then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	cfg.Audit.KafkaBrokers = strutil.DedupeAndTrim(cfg.Audit.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.AdminAddress) == "" {
		errs = append(errs, errors.New("adminAddress is required"))
	}
	if len(c.JWTSigningKey) < 32 {
		errs = append(errs, errors.New("jwtSigningKey must be at least 32 bytes"))
	}
	if c.ChainID == 0 {
		errs = append(errs, errors.New("chainId must be set"))
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("databaseURL is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown logFormat %q", c.LogFormat))
	}
	if c.Consensus.CountThreshold < 1 {
		errs = append(errs, errors.New("consensus.countThreshold must be at least 1"))
	}
	if p := c.Consensus.WeightedThresholdPercent; p <= 50 || p > 100 {
		errs = append(errs, errors.New("consensus.weightedThresholdPercent must be above 50 and at most 100"))
	}
	if c.Consensus.QueryExpiry <= 0 {
		errs = append(errs, errors.New("consensus.queryExpiry must be positive"))
	}
	if c.Consensus.MinOracles < 1 {
		errs = append(errs, errors.New("consensus.minOracles must be at least 1"))
	}
	l := c.Lists
	for name, d := range map[string]time.Duration{
		"whitelistDuration": l.WhitelistDuration,
		"lowDuration":       l.LowDuration,
		"mediumDuration":    l.MediumDuration,
		"highDuration":      l.HighDuration,
		"criticalDuration":  l.CriticalDuration,
		"emergencyDuration": l.EmergencyDuration,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("lists.%s must be positive", name))
		}
	}
	// Emergency listings are provisional: they must lapse before a
	// consensus-backed critical listing would.
	if l.EmergencyDuration > 0 && l.EmergencyDuration >= l.CriticalDuration {
		errs = append(errs, errors.New("lists.emergencyDuration must be shorter than lists.criticalDuration"))
	}
	if c.Registry.MinReputation < 0 || c.Registry.MinReputation > c.Registry.MaxReputation {
		errs = append(errs, errors.New("registry reputation bounds are inconsistent"))
	}
	if c.Registry.MaxOracles < 1 {
		errs = append(errs, errors.New("registry.maxOracles must be at least 1"))
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		errs = append(errs, errors.New("sweeper.interval must be positive"))
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.Topic == "" {
		errs = append(errs, errors.New("audit.topic is required with kafka brokers"))
	}
	return errors.Join(errs...)
}
