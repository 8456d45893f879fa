package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "phaseline.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PHASELINE_PORT")
	setString(&cfg.Server.CORSOrigin, "PHASELINE_CORS_ORIGIN")
	setFloat64(&cfg.Server.RateLimitRPS, "PHASELINE_RATE_LIMIT_RPS")
	setInt(&cfg.Server.RateLimitBurst, "PHASELINE_RATE_LIMIT_BURST")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "PHASELINE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "PHASELINE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PHASELINE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "PHASELINE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "PHASELINE_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "PHASELINE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "PHASELINE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "PHASELINE_LOG_ASYNC")
	setBool(&cfg.Telemetry.Enabled, "PHASELINE_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "PHASELINE_OTEL_ENDPOINT")
	setBool(&cfg.Telemetry.Insecure, "PHASELINE_OTEL_INSECURE")
	setFloat64(&cfg.Telemetry.SampleRate, "PHASELINE_OTEL_SAMPLE_RATE")
	setInt(&cfg.Breaker.MaxFailures, "PHASELINE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "PHASELINE_BREAKER_TIMEOUT")
	setDuration(&cfg.Dispatch.Timeout, "PHASELINE_DISPATCH_TIMEOUT")
	setInt(&cfg.Dispatch.MaxConcurrent, "PHASELINE_DISPATCH_MAX_CONCURRENT")
	setInt(&cfg.Validation.DefaultThreshold, "PHASELINE_CONFIDENCE_THRESHOLD")
	setDuration(&cfg.Escalation.Deadline, "PHASELINE_ESCALATION_DEADLINE")
	setInt(&cfg.Escalation.MaxReescalations, "PHASELINE_ESCALATION_MAX_REESCALATIONS")
	setDuration(&cfg.Session.TTL, "PHASELINE_SESSION_TTL")
	setInt(&cfg.Workflow.MaxReworks, "PHASELINE_WORKFLOW_MAX_REWORKS")
	setDuration(&cfg.Workflow.ReplayWindow, "PHASELINE_WORKFLOW_REPLAY_WINDOW")
	setInt64(&cfg.Cache.SessionHistoryMB, "PHASELINE_CACHE_SESSION_HISTORY_MB")
	setString(&cfg.Cache.SharedBucket, "PHASELINE_CACHE_SHARED_BUCKET")
	setString(&cfg.Notify.SlackWebhookURL, "PHASELINE_SLACK_WEBHOOK_URL")
	setString(&cfg.VCS.BaseURL, "PHASELINE_VCS_BASE_URL")
	setString(&cfg.VCS.Token, "PHASELINE_VCS_TOKEN")
	setString(&cfg.VCS.Repo, "PHASELINE_VCS_REPO")
	setString(&cfg.Workspace.Root, "PHASELINE_WORKSPACE_ROOT")
	setString(&cfg.Workspace.BaseRepo, "PHASELINE_WORKSPACE_BASE_REPO")
	setInt(&cfg.Workspace.MaxParallel, "PHASELINE_WORKSPACE_MAX_PARALLEL")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Validation.DefaultThreshold < 0 || cfg.Validation.DefaultThreshold > 100 {
		return errors.New("validation.default_threshold must be between 0 and 100")
	}
	if cfg.Dispatch.MaxConcurrent < 1 {
		return errors.New("dispatch.max_concurrent must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Server.RateLimitRPS < 0 {
		return errors.New("server.rate_limit_rps must be >= 0")
	}
	if cfg.Server.RateLimitRPS > 0 && cfg.Server.RateLimitBurst < 1 {
		return errors.New("server.rate_limit_burst must be >= 1 when limiting is enabled")
	}
	if cfg.VCS.BaseURL != "" && cfg.VCS.Repo == "" {
		return errors.New("vcs.repo is required when vcs.base_url is set")
	}
	if cfg.Workspace.Root != "" && cfg.Workspace.BaseRepo == "" {
		return errors.New("workspace.base_repo is required when workspace.root is set")
	}
	for _, r := range cfg.Routes {
		if r.Topic == "" || r.Endpoint == "" {
			return fmt.Errorf("route %q: topic and endpoint are required", r.Topic)
		}
		if r.Threshold < 0 || r.Threshold > 100 {
			return fmt.Errorf("route %q: threshold must be between 0 and 100", r.Topic)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
