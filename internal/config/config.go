// Package config loads butler's settings from a YAML file with BUTLER_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultAPIAddress          = "http://localhost:45869"
	DefaultRulesFile           = "rules.yaml"
	DefaultDatabase            = "butler.db"
	DefaultLastViewedThreshold = 3600
	DefaultRequestTimeout      = 30
	DefaultActionBatchSize     = 64
	DefaultMetadataBatchSize   = 256
	DefaultListenAddress       = "127.0.0.1:8088"
)

// ErrInvalidSettings is wrapped by every Validate failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings holds all configuration.
type Settings struct {
	APIAddress string `yaml:"api_address"`
	APIKey     string `yaml:"api_key"`

	RulesFile string `yaml:"rules_file"`
	Database  string `yaml:"database"`

	// RuleIntervalSeconds schedules run-all; 0 disables the scheduler.
	RuleIntervalSeconds int `yaml:"rule_interval_seconds"`
	// LastViewedThresholdSeconds skips assets viewed this recently; 0
	// disables the recency filter.
	LastViewedThresholdSeconds int  `yaml:"last_viewed_threshold_seconds"`
	LogOverriddenActions       bool `yaml:"log_overridden_actions"`

	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
	ActionBatchSize       int `yaml:"action_batch_size"`
	MetadataBatchSize     int `yaml:"metadata_batch_size"`

	ListenAddress string `yaml:"listen_address"`
	RedisURL      string `yaml:"redis_url"`
}

// Default returns settings with every default applied.
func Default() Settings {
	return Settings{
		APIAddress:                 DefaultAPIAddress,
		RulesFile:                  DefaultRulesFile,
		Database:                   DefaultDatabase,
		LastViewedThresholdSeconds: DefaultLastViewedThreshold,
		RequestTimeoutSeconds:      DefaultRequestTimeout,
		ActionBatchSize:            DefaultActionBatchSize,
		MetadataBatchSize:          DefaultMetadataBatchSize,
		ListenAddress:              DefaultListenAddress,
	}
}

// Load reads path over the defaults, then applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read settings: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
		}
	}
	if err := s.applyEnv(); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) applyEnv() error {
	s.APIAddress = getEnv("BUTLER_API_ADDRESS", s.APIAddress)
	s.APIKey = getEnv("BUTLER_API_KEY", s.APIKey)
	s.RulesFile = getEnv("BUTLER_RULES_FILE", s.RulesFile)
	s.Database = getEnv("BUTLER_DATABASE", s.Database)
	s.ListenAddress = getEnv("BUTLER_LISTEN_ADDRESS", s.ListenAddress)
	s.RedisURL = getEnv("BUTLER_REDIS_URL", s.RedisURL)

	ints := []struct {
		key string
		dst *int
	}{
		{"BUTLER_RULE_INTERVAL_SECONDS", &s.RuleIntervalSeconds},
		{"BUTLER_LAST_VIEWED_THRESHOLD_SECONDS", &s.LastViewedThresholdSeconds},
		{"BUTLER_REQUEST_TIMEOUT_SECONDS", &s.RequestTimeoutSeconds},
		{"BUTLER_ACTION_BATCH_SIZE", &s.ActionBatchSize},
		{"BUTLER_METADATA_BATCH_SIZE", &s.MetadataBatchSize},
	}
	for _, e := range ints {
		n, err := getEnvInt(e.key, *e.dst)
		if err != nil {
			return err
		}
		*e.dst = n
	}

	if v := os.Getenv("BUTLER_LOG_OVERRIDDEN_ACTIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: BUTLER_LOG_OVERRIDDEN_ACTIONS=%q: %w", ErrInvalidSettings, v, err)
		}
		s.LogOverriddenActions = b
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.APIAddress) == "" {
		errs = append(errs, errors.New("api_address is required"))
	}
	if s.RuleIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("rule_interval_seconds must not be negative, got %d", s.RuleIntervalSeconds))
	}
	if s.LastViewedThresholdSeconds < 0 {
		errs = append(errs, fmt.Errorf("last_viewed_threshold_seconds must not be negative, got %d", s.LastViewedThresholdSeconds))
	}
	if s.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout_seconds must be positive, got %d", s.RequestTimeoutSeconds))
	}
	if s.ActionBatchSize <= 0 || s.MetadataBatchSize <= 0 {
		errs = append(errs, errors.New("batch sizes must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, errors.Join(errs...))
	}
	return nil
}

// RequestTimeout is the per-request timeout for remote calls.
func (s Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// RuleInterval is the scheduler period; zero means disabled.
func (s Settings) RuleInterval() time.Duration {
	return time.Duration(s.RuleIntervalSeconds) * time.Second
}

// LastViewedThreshold is the recency window; zero means disabled.
func (s Settings) LastViewedThreshold() time.Duration {
	return time.Duration(s.LastViewedThresholdSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidSettings, key, v, err)
	}
	return n, nil
}
