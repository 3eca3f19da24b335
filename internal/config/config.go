package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

const FileName = "fixer.yml"

// Config models fixer.yml, the game balance policy.
type Config struct {
	Actors struct {
		StartingEddies int64 `yaml:"starting_eddies"`
	} `yaml:"actors"`
	Clock struct {
		TRPRatio int           `yaml:"trp_ratio"`
		MinTick  time.Duration `yaml:"min_tick"`
	} `yaml:"clock"`
	Contracts struct {
		AcceptanceTRP       int64         `yaml:"acceptance_trp"`
		CompletionBase      time.Duration `yaml:"completion_base"`
		CompletionPerThreat time.Duration `yaml:"completion_per_threat"`
		MaxThreat           int           `yaml:"max_threat"`
		PublicPerFaction    int           `yaml:"public_per_faction"`
	} `yaml:"contracts"`
	Rewards struct {
		BaseEddies        int64     `yaml:"base_eddies"`
		BaseReputation    int       `yaml:"base_reputation"`
		ThreatCurve       []float64 `yaml:"threat_curve"`
		StandingDivisor   float64   `yaml:"standing_divisor"`
		MinMultiplier     float64   `yaml:"min_multiplier"`
		MaxMultiplier     float64   `yaml:"max_multiplier"`
		FailurePenalty    float64   `yaml:"failure_penalty"`
		TargetRelationHit int       `yaml:"target_relation_hit"`
	} `yaml:"rewards"`
	Reputation struct {
		Tiers          []Tier `yaml:"tiers"`
		FactionTiers   []Tier `yaml:"faction_tiers"`
		DefaultFaction string `yaml:"default_faction"`
	} `yaml:"reputation"`
	Threat struct {
		DecayInterval time.Duration `yaml:"decay_interval"`
		HistoryCap    int           `yaml:"history_cap"`
	} `yaml:"threat"`
	Operatives struct {
		RecruitBaseCost  int64         `yaml:"recruit_base_cost"`
		RecruitPerPoint  int64         `yaml:"recruit_per_point"`
		MaxStartingSkill int           `yaml:"max_starting_skill"`
		BurnBase         time.Duration `yaml:"burn_base"`
		BurnPerThreat    time.Duration `yaml:"burn_per_threat"`
	} `yaml:"operatives"`
	Market struct {
		RotationHour  int                   `yaml:"rotation_hour"`
		Timezone      string                `yaml:"timezone"`
		StockCeilings map[domain.Rarity]int `yaml:"stock_ceilings"`
		Catalog       []ItemTemplate        `yaml:"catalog"`
	} `yaml:"market"`
	Factions []string `yaml:"factions"`
}

// Tier is a named band starting at Min. Unlock names an opportunity opened on
// first reaching the band.
type Tier struct {
	Name   string `yaml:"name"`
	Min    int    `yaml:"min"`
	Unlock string `yaml:"unlock,omitempty"`
}

type ItemTemplate struct {
	ID            string              `yaml:"id"`
	Name          string              `yaml:"name"`
	Category      domain.ItemCategory `yaml:"category"`
	Rarity        domain.Rarity       `yaml:"rarity"`
	Price         int64               `yaml:"price"`
	DailyLimit    int                 `yaml:"daily_limit"`
	MinReputation int                 `yaml:"min_reputation"`
	Effect        domain.Effect       `yaml:"effect"`
}

// Location resolves the market timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c.Market.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Actors.StartingEddies < 0 {
		return fmt.Errorf("config.actors.starting_eddies must not be negative")
	}
	if c.Clock.TRPRatio <= 0 {
		return fmt.Errorf("config.clock.trp_ratio must be positive")
	}
	if c.Clock.MinTick < 0 {
		return fmt.Errorf("config.clock.min_tick must not be negative")
	}
	if c.Contracts.AcceptanceTRP <= 0 {
		return fmt.Errorf("config.contracts.acceptance_trp must be positive")
	}
	if c.Contracts.MaxThreat < 1 {
		return fmt.Errorf("config.contracts.max_threat must be >= 1")
	}
	if c.Contracts.CompletionBase <= 0 {
		return fmt.Errorf("config.contracts.completion_base must be positive")
	}
	if len(c.Rewards.ThreatCurve) < c.Contracts.MaxThreat {
		return fmt.Errorf("config.rewards.threat_curve needs %d entries", c.Contracts.MaxThreat)
	}
	for i := 1; i < len(c.Rewards.ThreatCurve); i++ {
		if c.Rewards.ThreatCurve[i] <= c.Rewards.ThreatCurve[i-1] {
			return fmt.Errorf("config.rewards.threat_curve must be strictly increasing")
		}
	}
	if len(c.Rewards.ThreatCurve) > 0 && c.Rewards.ThreatCurve[0] <= 0 {
		return fmt.Errorf("config.rewards.threat_curve must be positive")
	}
	if c.Rewards.StandingDivisor <= 0 {
		return fmt.Errorf("config.rewards.standing_divisor must be positive")
	}
	if c.Rewards.MinMultiplier <= 0 || c.Rewards.MinMultiplier > 1 || c.Rewards.MaxMultiplier < 1 {
		return fmt.Errorf("config.rewards multiplier bounds must enclose 1.0")
	}
	if err := validateTiers("config.reputation.tiers", c.Reputation.Tiers); err != nil {
		return err
	}
	if err := validateTiers("config.reputation.faction_tiers", c.Reputation.FactionTiers); err != nil {
		return err
	}
	if c.Threat.DecayInterval <= 0 {
		return fmt.Errorf("config.threat.decay_interval must be positive")
	}
	if c.Threat.HistoryCap < 1 {
		return fmt.Errorf("config.threat.history_cap must be >= 1")
	}
	if c.Operatives.MaxStartingSkill < 1 || c.Operatives.MaxStartingSkill > domain.MaxSkill {
		return fmt.Errorf("config.operatives.max_starting_skill must be between 1 and %d", domain.MaxSkill)
	}
	if c.Market.RotationHour < 0 || c.Market.RotationHour > 23 {
		return fmt.Errorf("config.market.rotation_hour must be between 0 and 23")
	}
	if c.Market.Timezone != "" {
		if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
			return fmt.Errorf("config.market.timezone: %w", err)
		}
	}
	prev := -1
	for _, r := range domain.Rarities {
		ceiling, ok := c.Market.StockCeilings[r]
		if !ok || ceiling < 1 {
			return fmt.Errorf("config.market.stock_ceilings.%s must be >= 1", r)
		}
		if prev != -1 && ceiling > prev {
			return fmt.Errorf("config.market.stock_ceilings must not grow with rarity (%s)", r)
		}
		prev = ceiling
	}
	seen := map[string]bool{}
	for _, it := range c.Market.Catalog {
		if it.ID == "" {
			return fmt.Errorf("config.market.catalog contains empty item id")
		}
		if seen[it.ID] {
			return fmt.Errorf("config.market.catalog has duplicate item %s", it.ID)
		}
		seen[it.ID] = true
		if it.Rarity.Rank() < 0 {
			return fmt.Errorf("item %s has unknown rarity %q", it.ID, it.Rarity)
		}
		if it.Price <= 0 {
			return fmt.Errorf("item %s price must be positive", it.ID)
		}
		if err := it.Effect.Validate(); err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
		switch it.Category {
		case domain.CategoryImplant:
			if it.Effect.Kind != domain.EffectPermanentBoost {
				return fmt.Errorf("implant %s must carry a permanent_boost effect", it.ID)
			}
		case domain.CategoryConsumable, domain.CategoryInformation:
			if it.Effect.Kind == domain.EffectPermanentBoost {
				return fmt.Errorf("item %s: permanent_boost requires category implant", it.ID)
			}
		default:
			return fmt.Errorf("item %s has unknown category %q", it.ID, it.Category)
		}
	}
	if len(c.Factions) < 2 {
		return fmt.Errorf("config.factions needs at least two factions")
	}
	return nil
}

func validateTiers(field string, tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%s is required", field)
	}
	for i, t := range tiers {
		if t.Name == "" {
			return fmt.Errorf("%s[%d] has empty name", field, i)
		}
		if i > 0 && t.Min <= tiers[i-1].Min {
			return fmt.Errorf("%s must be ordered by ascending min", field)
		}
	}
	return nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// LoadOptional returns the default config if path is empty or missing.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := FromFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in balance policy.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// WriteYAML writes c in the same layout as the default template.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
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

const defaultTemplate = `actors:
  starting_eddies: 1000

clock:
  trp_ratio: 60
  min_tick: 10s

contracts:
  acceptance_trp: 259200
  completion_base: 2m
  completion_per_threat: 1m
  max_threat: 5
  public_per_faction: 2

rewards:
  base_eddies: 500
  base_reputation: 10
  threat_curve: [1.0, 1.6, 2.5, 4.0, 6.0]
  standing_divisor: 200
  min_multiplier: 0.75
  max_multiplier: 1.5
  failure_penalty: 0.5
  target_relation_hit: 5

reputation:
  default_faction: fixers
  tiers:
    - {name: Nobody, min: -1000000}
    - {name: Street Kid, min: 0}
    - {name: Merc, min: 50}
    - {name: Fixer, min: 150}
    - {name: Legend, min: 400}
  faction_tiers:
    - {name: Hostile, min: -1000000}
    - {name: Distrusted, min: -50}
    - {name: Neutral, min: -10}
    - {name: Friendly, min: 25}
    - {name: Allied, min: 75, unlock: inner_circle_jobs}
    - {name: Revered, min: 150, unlock: black_market_access}

threat:
  decay_interval: 12h
  history_cap: 50

operatives:
  recruit_base_cost: 200
  recruit_per_point: 40
  max_starting_skill: 6
  burn_base: 30m
  burn_per_threat: 15m

market:
  rotation_hour: 6
  timezone: UTC
  stock_ceilings:
    common: 12
    uncommon: 8
    rare: 4
    epic: 2
    legendary: 1
  catalog:
    - id: mouchard
      name: Mouchard
      category: information
      rarity: common
      price: 150
      daily_limit: 3
      effect: {kind: reveal_skill}
    - id: analyzer
      name: Contract Analyzer
      category: information
      rarity: rare
      price: 900
      daily_limit: 1
      min_reputation: 50
      effect: {kind: reveal_skill, all: true}
    - id: stim-pack
      name: Stim Pack
      category: consumable
      rarity: common
      price: 120
      daily_limit: 5
      effect: {kind: bonus_roll, amount: 1}
    - id: combat-drug
      name: Black Lace
      category: consumable
      rarity: uncommon
      price: 350
      daily_limit: 2
      effect: {kind: bonus_roll, amount: 3}
    - id: ghost-protocol
      name: Ghost Protocol
      category: consumable
      rarity: epic
      price: 2500
      daily_limit: 1
      min_reputation: 150
      effect: {kind: skip_check}
    - id: lead-low
      name: Street Rumor
      category: information
      rarity: uncommon
      price: 300
      daily_limit: 1
      effect: {kind: contract_lead, threat: 2}
    - id: lead-high
      name: Corpo Leak
      category: information
      rarity: legendary
      price: 4000
      daily_limit: 1
      min_reputation: 400
      effect: {kind: contract_lead, threat: 5}
    - id: cyberdeck-mk1
      name: Cyberdeck Mk.I
      category: implant
      rarity: uncommon
      price: 1200
      daily_limit: 1
      effect: {kind: permanent_boost, skill: hacking, amount: 1}
    - id: optical-camo
      name: Optical Camo
      category: implant
      rarity: rare
      price: 2200
      daily_limit: 1
      min_reputation: 50
      effect: {kind: permanent_boost, skill: stealth, amount: 2}
    - id: mantis-blades
      name: Mantis Blades
      category: implant
      rarity: legendary
      price: 6000
      daily_limit: 1
      min_reputation: 150
      effect: {kind: permanent_boost, skill: combat, amount: 3}

factions:
  - arasaka
  - militech
  - maelstrom
  - valentinos
  - netwatch
`
