package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config models homeline.yml: the unit-type catalog, the eligibility
// rules applied by the allocation engine, and service-level settings.
type Config struct {
	Scheme struct {
		ID string `yaml:"id"`
	} `yaml:"scheme"`
	Units struct {
		Catalog map[string]UnitType `yaml:"catalog"`
	} `yaml:"units"`
	Eligibility struct {
		Married struct {
			MinAge int `yaml:"min_age"`
		} `yaml:"married"`
		Single struct {
			MinAge int   `yaml:"min_age"`
			Tiers  []int `yaml:"tiers"`
		} `yaml:"single"`
	} `yaml:"eligibility"`
	Officers struct {
		MaxSlots int `yaml:"max_slots"`
	} `yaml:"officers"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

type UnitType struct {
	Tier        int    `yaml:"tier"`
	Description string `yaml:"description"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with hl scheme import --file <path>", path)
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

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Scheme.ID == "" {
		return fmt.Errorf("config.scheme.id is required")
	}
	if len(c.Units.Catalog) == 0 {
		return fmt.Errorf("config.units.catalog is required")
	}
	for name, ut := range c.Units.Catalog {
		if name == "" {
			return fmt.Errorf("config.units.catalog contains empty unit type name")
		}
		if ut.Tier < 1 {
			return fmt.Errorf("unit type %s has invalid tier %d", name, ut.Tier)
		}
	}
	if c.Eligibility.Married.MinAge < 1 {
		return fmt.Errorf("config.eligibility.married.min_age is required")
	}
	if c.Eligibility.Single.MinAge < 1 {
		return fmt.Errorf("config.eligibility.single.min_age is required")
	}
	for _, tier := range c.Eligibility.Single.Tiers {
		if !c.tierExists(tier) {
			return fmt.Errorf("config.eligibility.single.tiers references unknown tier %d", tier)
		}
	}
	if c.Officers.MaxSlots < 1 {
		return fmt.Errorf("config.officers.max_slots must be at least 1")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhook %d has no url", i)
		}
	}
	return nil
}

func (c *Config) tierExists(tier int) bool {
	for _, ut := range c.Units.Catalog {
		if ut.Tier == tier {
			return true
		}
	}
	return false
}

// KnownUnitType reports whether the catalog defines the unit type.
func (c *Config) KnownUnitType(name string) bool {
	_, ok := c.Units.Catalog[name]
	return ok
}

// Tier returns the catalog tier for a unit type, 0 if unknown.
func (c *Config) Tier(name string) int {
	return c.Units.Catalog[name].Tier
}

// SmallestTier is the lowest tier present in the catalog.
func (c *Config) SmallestTier() int {
	smallest := 0
	for _, ut := range c.Units.Catalog {
		if smallest == 0 || ut.Tier < smallest {
			smallest = ut.Tier
		}
	}
	return smallest
}

// SingleTierAllowed reports whether a single applicant may take the tier.
// An empty tier list falls back to the smallest catalog tier.
func (c *Config) SingleTierAllowed(tier int) bool {
	if len(c.Eligibility.Single.Tiers) == 0 {
		return tier == c.SmallestTier()
	}
	for _, t := range c.Eligibility.Single.Tiers {
		if t == tier {
			return true
		}
	}
	return false
}

// UnitTypeNames returns catalog names ordered by tier then name.
func (c *Config) UnitTypeNames() []string {
	names := make([]string, 0, len(c.Units.Catalog))
	for name := range c.Units.Catalog {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ti, tj := c.Units.Catalog[names[i]].Tier, c.Units.Catalog[names[j]].Tier
		if ti != tj {
			return ti < tj
		}
		return names[i] < names[j]
	})
	return names
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "homeline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(schemeID string) string {
	return fmt.Sprintf(defaultTemplate, schemeID)
}

// Default returns the default Config struct for a scheme.
func Default(schemeID string) *Config {
	var cfg Config
	cfg.Scheme.ID = schemeID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, schemeID))).Decode(&cfg)
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

const defaultTemplate = `scheme:
  id: %s

units:
  catalog:
    two_room:
      tier: 1
      description: "2-room flat, smallest tier"
    three_room:
      tier: 2
      description: "3-room flat"
    four_room:
      tier: 3
      description: "4-room flat"
    five_room:
      tier: 4
      description: "5-room flat"

eligibility:
  married:
    min_age: 21
  single:
    min_age: 35
    tiers: [1]

officers:
  max_slots: 10
`
