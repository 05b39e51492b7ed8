package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models kudosbot.yml.
type Config struct {
	Account struct {
		Username string `yaml:"username"`
	} `yaml:"account"`
	Community string `yaml:"community"`

	// Tokens are the award markers scanned for in comment bodies.
	Tokens []string `yaml:"tokens"`

	// MinimumCommentLength is the base minimum; the effective threshold is
	// this plus the longest configured token length.
	MinimumCommentLength int `yaml:"minimum_comment_length"`

	DaysToRescan int `yaml:"days_to_rescan"`
	SleepSeconds int `yaml:"sleep_seconds"`

	// TemplatesDir optionally overrides the embedded reply templates.
	TemplatesDir string `yaml:"templates_dir"`

	Messages struct {
		FirstTimeSubject string `yaml:"first_time_subject"`
		// FirstTime is a format string receiving community and awardee.
		FirstTime string `yaml:"first_time"`
	} `yaml:"messages"`

	Platform struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
	} `yaml:"platform"`
}

// MinimumLength returns the effective minimum comment length: the longest
// configured token plus the base minimum. Precomputed once by callers that
// classify in a loop.
func (c *Config) MinimumLength() int {
	longest := 0
	for _, t := range c.Tokens {
		if len(t) > longest {
			longest = len(t)
		}
	}
	return longest + c.MinimumCommentLength
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with kudosbot config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
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
	if c.Account.Username == "" {
		return fmt.Errorf("config.account.username is required")
	}
	if len(c.Tokens) == 0 {
		return fmt.Errorf("config.tokens must list at least one award token")
	}
	for _, t := range c.Tokens {
		if t == "" {
			return fmt.Errorf("config.tokens contains an empty token")
		}
	}
	if c.MinimumCommentLength < 0 {
		return fmt.Errorf("config.minimum_comment_length must not be negative")
	}
	if c.DaysToRescan <= 0 {
		return fmt.Errorf("config.days_to_rescan must be positive")
	}
	if c.SleepSeconds <= 0 {
		return fmt.Errorf("config.sleep_seconds must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "kudosbot.yml")
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

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

const defaultTemplate = `account:
  username: kudosbot

community: changemyview

tokens:
  - "!kudos"
  - "&#8710;"

minimum_comment_length: 50

days_to_rescan: 10
sleep_seconds: 60

messages:
  first_time_subject: "You received your first point!"
  first_time: "A user in %s just awarded you your first point, %s. Points are tracked on the community scoreboard."
`
