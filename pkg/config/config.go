// Package config loads server configuration from an optional YAML file
// layered under environment variables, the way the teacher's config loader
// does it: defaults < YAML file < env vars, merged with dario.cat/mergo so a
// partially-specified file doesn't clobber defaults for the fields it omits.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the full set of server-level settings (§6).
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	DatabaseURL   string `yaml:"database_url"`
	DatabasePool  int    `yaml:"database_pool"`
	MigrationsDir string `yaml:"migrations_dir"`

	AuthSecret string `yaml:"auth_secret"`

	AgentSyncScope    string        `yaml:"agent_sync_scope"`
	AgentSyncInterval time.Duration `yaml:"agent_sync_interval"`

	CronInterval time.Duration `yaml:"cron_interval"`

	PromptServiceURL string        `yaml:"prompt_service_url"`
	PromptServiceKey string        `yaml:"prompt_service_key"`
	PromptTTL        time.Duration `yaml:"prompt_ttl"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	DefaultGraphID string `yaml:"default_graph_id"`
}

// Defaults returns the baseline configuration applied before the YAML file
// and environment overrides are layered on.
func Defaults() Config {
	return Config{
		HTTPAddr:          ":8080",
		DatabasePool:      10,
		MigrationsDir:     "pkg/store/migrations",
		AgentSyncScope:    "none",
		AgentSyncInterval: 5 * time.Minute,
		CronInterval:      15 * time.Second,
		PromptTTL:         5 * time.Minute,
		MetricsEnabled:    true,
		DefaultGraphID:    "default",
	}
}

// Load builds a Config from Defaults, a YAML file at path (if it exists;
// path may be empty), then environment variables, in that precedence order.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if fileCfg, err := loadYAML(path); err != nil {
			return Config{}, err
		} else if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func loadYAML(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	str(&cfg.HTTPAddr, "AGENTRT_HTTP_ADDR")
	str(&cfg.DatabaseURL, "DATABASE_URL")
	intVar(&cfg.DatabasePool, "DATABASE_POOL_SIZE")
	str(&cfg.MigrationsDir, "AGENTRT_MIGRATIONS_DIR")
	str(&cfg.AuthSecret, "AGENTRT_AUTH_SECRET")
	str(&cfg.AgentSyncScope, "AGENT_SYNC_SCOPE")
	duration(&cfg.AgentSyncInterval, "AGENT_SYNC_INTERVAL")
	duration(&cfg.CronInterval, "AGENTRT_CRON_INTERVAL")
	str(&cfg.PromptServiceURL, "PROMPT_SERVICE_URL")
	str(&cfg.PromptServiceKey, "PROMPT_SERVICE_KEY")
	duration(&cfg.PromptTTL, "PROMPT_SERVICE_TTL")
	boolVar(&cfg.MetricsEnabled, "AGENTRT_METRICS_ENABLED")
	str(&cfg.DefaultGraphID, "AGENTRT_DEFAULT_GRAPH_ID")
}

func str(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = os.ExpandEnv(v)
	}
}

func intVar(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func duration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func boolVar(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}
