package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models backbeat.yml. One config row is stored per galaxy; the
// schedule pipeline reads all of its knobs from here so the contract
// defaults live in exactly one place.
type Config struct {
	Galaxy struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
	} `yaml:"galaxy"`
	Scheduling struct {
		WindowWeeks   int      `yaml:"window_weeks"`
		PostsPerWeek  int      `yaml:"posts_per_week"`
		PreferredDays []string `yaml:"preferred_days"`
		TeaserDays    int      `yaml:"teaser_days"`
		PromoDays     int      `yaml:"promo_days"`
	} `yaml:"scheduling"`
	Deadlines struct {
		ShootOffsetDays     int `yaml:"shoot_offset_days"`
		EditOffsetDays      int `yaml:"edit_offset_days"`
		ShotListOffsetDays  int `yaml:"shot_list_offset_days"`
		TreatmentOffsetDays int `yaml:"treatment_offset_days"`
	} `yaml:"deadlines"`
	Features struct {
		SparsePromos     bool `yaml:"sparse_promos"`
		StrictInvariants bool `yaml:"strict_invariants"`
	} `yaml:"features"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Kinds          []string `yaml:"kinds"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Galaxy.ID == "" {
		return fmt.Errorf("config.galaxy.id is required")
	}
	if c.Galaxy.Kind != "content-galaxy" {
		return fmt.Errorf("config.galaxy.kind must be 'content-galaxy'")
	}
	if c.Scheduling.WindowWeeks <= 0 {
		return fmt.Errorf("config.scheduling.window_weeks must be positive")
	}
	if c.Scheduling.PostsPerWeek <= 0 || c.Scheduling.PostsPerWeek > 7 {
		return fmt.Errorf("config.scheduling.posts_per_week must be between 1 and 7")
	}
	if c.Scheduling.TeaserDays <= 0 || c.Scheduling.PromoDays <= 0 {
		return fmt.Errorf("config.scheduling teaser/promo windows must be positive")
	}
	for _, d := range c.Scheduling.PreferredDays {
		if !validWeekday(d) {
			return fmt.Errorf("config.scheduling.preferred_days contains unknown day %q", d)
		}
	}
	if c.Deadlines.ShootOffsetDays <= 0 || c.Deadlines.EditOffsetDays <= 0 ||
		c.Deadlines.ShotListOffsetDays <= 0 || c.Deadlines.TreatmentOffsetDays <= 0 {
		return fmt.Errorf("config.deadlines offsets must be positive")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

func validWeekday(d string) bool {
	switch d {
	case "Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday":
		return true
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "backbeat.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with bb galaxy config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
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
func GenerateDefault(galaxyID string) string {
	return fmt.Sprintf(defaultTemplate, galaxyID)
}

// Default returns the default Config struct for a galaxy.
func Default(galaxyID string) *Config {
	var cfg Config
	cfg.Galaxy.ID = galaxyID
	cfg.Galaxy.Kind = "content-galaxy"
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, galaxyID))).Decode(&cfg)
	return &cfg
}

const defaultTemplate = `galaxy:
  id: %s
  kind: content-galaxy

scheduling:
  window_weeks: 4
  posts_per_week: 3
  preferred_days: [Saturday, Sunday]
  teaser_days: 14
  promo_days: 30

deadlines:
  shoot_offset_days: 7
  edit_offset_days: 2
  shot_list_offset_days: 3
  treatment_offset_days: 4

features:
  sparse_promos: true
  strict_invariants: true
`
