package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"venuebook/internal/database"
	"venuebook/internal/notify"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Path   string                `yaml:"path"`
		Backup database.BackupConfig `yaml:"backup"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Calendar struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"calendar"`

	SMTP notify.SMTPConfig `yaml:"smtp"`

	Notify struct {
		RatePerSecond float64 `yaml:"rate_per_second"`
	} `yaml:"notify"`

	Payments struct {
		LinkBaseURL string `yaml:"link_base_url"`
	} `yaml:"payments"`

	Outbox struct {
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
		MaxRetries          int `yaml:"max_retries"`
	} `yaml:"outbox"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/venuebook.db"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) OutboxPollInterval() time.Duration {
	if c.Outbox.PollIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Outbox.PollIntervalSeconds) * time.Second
}
