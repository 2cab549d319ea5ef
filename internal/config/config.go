package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models ares.yml.
type Config struct {
	Server struct {
		Addr             string `yaml:"addr"`
		BasePath         string `yaml:"base_path"`
		JWTSecret        string `yaml:"jwt_secret"`
		AllowActorHeader bool   `yaml:"allow_actor_header"`
	} `yaml:"server"`
	Portal struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"portal"`
	Mail       MailConfig       `yaml:"mail"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Repository RepositoryConfig `yaml:"repository"`
	Customers  []string         `yaml:"customers"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	Remind     struct {
		Holidays []string `yaml:"holidays"`
	} `yaml:"remind"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type MailConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	From       string   `yaml:"from"`
	Domain     string   `yaml:"domain"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	AnnounceTo []string `yaml:"announce_to"`
	AnnounceCC []string `yaml:"announce_cc"`
}

type DirectoryConfig struct {
	TAManager string              `yaml:"ta_manager"`
	Roles     map[string][]string `yaml:"roles"`
	Managers  map[string][]string `yaml:"managers"`
}

type RepositoryConfig struct {
	URL   string `yaml:"url"`
	Group string `yaml:"group"`
	Token string `yaml:"token"`
	Ref   string `yaml:"ref"`
}

type OutboxConfig struct {
	Interval    string `yaml:"interval"`
	Batch       int    `yaml:"batch"`
	Workers     int    `yaml:"workers"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// IntervalDuration returns the parsed polling interval.
func (o OutboxConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(o.Interval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ares config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault falls back to Default when the workspace has no config file.
func LoadOrDefault(workspace string) (*Config, error) {
	path := Path(workspace)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(workspace)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Portal.Endpoint == "" {
		return fmt.Errorf("config.portal.endpoint is required")
	}
	if c.Mail.Host != "" {
		if c.Mail.Port <= 0 {
			return fmt.Errorf("config.mail.port must be positive when mail.host is set")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("config.mail.from is required when mail.host is set")
		}
	}
	if c.Repository.URL != "" && c.Repository.Group == "" {
		return fmt.Errorf("config.repository.group is required when repository.url is set")
	}
	for user, managers := range c.Directory.Managers {
		if user == "" {
			return fmt.Errorf("config.directory.managers has empty user")
		}
		for _, m := range managers {
			if strings.TrimSpace(m) == "" {
				return fmt.Errorf("manager list of %s has empty entry", user)
			}
		}
	}
	for role := range c.Directory.Roles {
		if role == "" {
			return fmt.Errorf("config.directory.roles has empty role")
		}
	}
	if c.Outbox.Interval != "" {
		if _, err := time.ParseDuration(c.Outbox.Interval); err != nil {
			return fmt.Errorf("config.outbox.interval: %w", err)
		}
	}
	if c.Outbox.Batch < 0 || c.Outbox.Workers < 0 || c.Outbox.MaxAttempts < 0 {
		return fmt.Errorf("config.outbox values must not be negative")
	}
	for _, h := range c.Remind.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("config.remind.holidays: %q is not YYYY-MM-DD", h)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json", "logfmt":
	default:
		return fmt.Errorf("config.log.format must be text, json or logfmt")
	}
	return nil
}

// IsHoliday reports whether day is listed in remind.holidays.
func (c *Config) IsHoliday(day time.Time) bool {
	d := day.Format("2006-01-02")
	for _, h := range c.Remind.Holidays {
		if h == d {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "ares.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api/v1
  jwt_secret: ""
  allow_actor_header: false

portal:
  endpoint: ares.local

mail:
  host: ""
  port: 25
  from: ares@example.com
  domain: example.com
  announce_to: []
  announce_cc: []

directory:
  ta_manager: ""
  roles:
    Director: []
  managers: {}

repository:
  url: ""
  group: script
  token: ""
  ref: master

customers: [SIT]

outbox:
  interval: 2s
  batch: 50
  workers: 4
  max_attempts: 3

remind:
  holidays: []

log:
  level: info
  format: text
`
