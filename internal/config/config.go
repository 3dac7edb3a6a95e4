package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models frontdesk.yml.
type Config struct {
	Office struct {
		Name string `yaml:"name"`
	} `yaml:"office"`
	Workers []WorkerConfig    `yaml:"workers"`
	Routing map[string]string `yaml:"routing"`
	AI      AIConfig          `yaml:"ai"`
	Settlement struct {
		MinSeconds int `yaml:"min_seconds"`
		MaxSeconds int `yaml:"max_seconds"`
	} `yaml:"settlement"`
	Assignment struct {
		RetrySeconds int `yaml:"retry_seconds"`
		MaxAttempts  int `yaml:"max_attempts"`
	} `yaml:"assignment"`
	Notify struct {
		RelayURL  string `yaml:"relay_url"`
		ReviewURL string `yaml:"review_url"`
	} `yaml:"notify"`
	Auth struct {
		JWTSecret              string   `yaml:"jwt_secret"`
		APIKeyHashes           []string `yaml:"api_key_hashes"`
		AllowLegacyActorHeader bool     `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WorkerConfig struct {
	ID             string  `yaml:"id"`
	Name           string  `yaml:"name"`
	Role           string  `yaml:"role"`
	TrustLevel     string  `yaml:"trust_level"`
	Avatar         string  `yaml:"avatar"`
	CompletedTasks int     `yaml:"completed_tasks"`
	ApprovalRate   float64 `yaml:"approval_rate"`
}

type AIConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with frontdesk config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the built-in defaults when no config file exists.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Workers) == 0 {
		return fmt.Errorf("config.workers must list at least one worker")
	}
	seen := map[string]bool{}
	roles := map[string]bool{}
	for _, w := range c.Workers {
		if w.ID == "" {
			return fmt.Errorf("config.workers contains a worker without an id")
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate worker id %s", w.ID)
		}
		seen[w.ID] = true
		if w.Role == "" {
			return fmt.Errorf("worker %s has no role", w.ID)
		}
		roles[w.Role] = true
	}
	if len(c.Routing) == 0 {
		return fmt.Errorf("config.routing is required")
	}
	for intent, role := range c.Routing {
		if role == "" {
			return fmt.Errorf("routing for intent %s is empty", intent)
		}
		if !roles[role] {
			return fmt.Errorf("routing for intent %s targets role %s with no worker", intent, role)
		}
	}
	if c.Settlement.MinSeconds < 0 || c.Settlement.MaxSeconds < c.Settlement.MinSeconds {
		return fmt.Errorf("settlement bounds invalid: min=%d max=%d", c.Settlement.MinSeconds, c.Settlement.MaxSeconds)
	}
	if c.Assignment.MaxAttempts < 0 {
		return fmt.Errorf("assignment.max_attempts must be >= 0")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "frontdesk.yml")
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `office:
  name: Virtual Office

workers:
  - id: orchestrator
    name: Alex
    role: orchestrator
    trust_level: expert
    avatar: "#9C27B0"
    completed_tasks: 0
    approval_rate: 1.0
  - id: developer-mark
    name: Mark
    role: developer
    trust_level: expert
    avatar: "#E91E63"
    completed_tasks: 127
    approval_rate: 0.98
  - id: copywriter-1
    name: Max
    role: copywriter
    trust_level: junior
    avatar: "#4CAF50"
    completed_tasks: 12
    approval_rate: 0.85
  - id: accountant-1
    name: Lisa
    role: accountant
    trust_level: senior
    avatar: "#2196F3"
    completed_tasks: 45
    approval_rate: 0.95
  - id: researcher-1
    name: Sam
    role: researcher
    trust_level: apprentice
    avatar: "#FF9800"
    completed_tasks: 3
    approval_rate: 0.67

routing:
  newsletter: copywriter
  research: researcher

ai:
  provider: offline
  model: gpt-4o-mini
  api_key: ""
  base_url: ""

settlement:
  min_seconds: 5
  max_seconds: 15

assignment:
  retry_seconds: 5
  max_attempts: 6

notify:
  relay_url: ""
  review_url: "http://localhost:5173/review"

auth:
  jwt_secret: ""
  api_key_hashes: []
  allow_legacy_actor_header: true

webhooks: []
`
