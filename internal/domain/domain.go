package domain

import "time"

type Skill string

const (
	SkillHacking Skill = "hacking"
	SkillStealth Skill = "stealth"
	SkillCombat  Skill = "combat"
)

// Skills lists every skill in canonical order. Reveal tie-breaks follow it.
var Skills = []Skill{SkillHacking, SkillStealth, SkillCombat}

// MaxSkill caps any operative skill value.
const MaxSkill = 10

func (s Skill) Valid() bool {
	switch s {
	case SkillHacking, SkillStealth, SkillCombat:
		return true
	}
	return false
}

// SkillSet maps a skill to a threshold or value. Zero entries are not stored.
type SkillSet map[Skill]int

func (s SkillSet) Get(skill Skill) int {
	if s == nil {
		return 0
	}
	return s[skill]
}

// Keys returns the non-zero skills in canonical order.
func (s SkillSet) Keys() []Skill {
	var out []Skill
	for _, sk := range Skills {
		if s[sk] != 0 {
			out = append(out, sk)
		}
	}
	return out
}

type ActorProfile struct {
	ID         string         `json:"id"`
	Currency   int64          `json:"currency"`
	Reputation int            `json:"reputation"`
	Tier       string         `json:"tier"`
	LastSeen   time.Time      `json:"last_seen" format:"date-time"`
	Inventory  map[string]int `json:"inventory,omitempty"`
	CreatedAt  time.Time      `json:"created_at" format:"date-time"`
}

type ContractStatus string

const (
	ContractProposed  ContractStatus = "proposed"
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractFailed    ContractStatus = "failed"
	ContractExpired   ContractStatus = "expired"
	// ContractAssigned is a legacy label stored by older data; it reads as active.
	ContractAssigned ContractStatus = "assigned"
)

// Normalize folds legacy labels into the current lifecycle.
func (s ContractStatus) Normalize() ContractStatus {
	if s == ContractAssigned {
		return ContractActive
	}
	return s
}

func (s ContractStatus) Terminal() bool {
	switch s.Normalize() {
	case ContractCompleted, ContractFailed, ContractExpired:
		return true
	}
	return false
}

type Archetype string

const (
	ArchetypeNetrun       Archetype = "netrun"
	ArchetypeInfiltration Archetype = "infiltration"
	ArchetypeExtraction   Archetype = "extraction"
	ArchetypeHeist        Archetype = "heist"
)

var Archetypes = []Archetype{ArchetypeNetrun, ArchetypeInfiltration, ArchetypeExtraction, ArchetypeHeist}

func (a Archetype) Valid() bool {
	for _, v := range Archetypes {
		if v == a {
			return true
		}
	}
	return false
}

type Reward struct {
	Eddies     int64 `json:"eddies"`
	Reputation int   `json:"reputation"`
}

type Contract struct {
	ID                 string           `json:"id"`
	EmployerID         string           `json:"employer_id"`
	OwnerID            *string          `json:"owner_id,omitempty"`
	Status             ContractStatus   `json:"status" enum:"proposed,active,completed,failed,expired"`
	Archetype          Archetype        `json:"archetype"`
	Title              string           `json:"title"`
	Description        string           `json:"description,omitempty"`
	ThreatLevel        int              `json:"threat_level"`
	TargetFaction      string           `json:"target_faction"`
	EmployerFaction    string           `json:"employer_faction"`
	RequiredSkills     SkillSet         `json:"required_skills,omitempty"`
	Reward             Reward           `json:"reward"`
	AcceptanceTRP      int64            `json:"acceptance_trp"`
	CompletionDuration time.Duration    `json:"completion_duration"`
	StartedAt          *time.Time       `json:"started_at,omitempty" format:"date-time"`
	Assignments        map[Skill]string `json:"assignments,omitempty"`
	Analyzed           bool             `json:"analyzed"`
	CreatedAt          time.Time        `json:"created_at" format:"date-time"`
	UpdatedAt          time.Time        `json:"updated_at" format:"date-time"`
	ResolvedAt         *time.Time       `json:"resolved_at,omitempty" format:"date-time"`
}

// Public reports whether any actor may see and accept the contract.
func (c Contract) Public() bool {
	return c.Status.Normalize() == ContractProposed && c.OwnerID == nil
}

func (c Contract) OwnedBy(actorID string) bool {
	return c.OwnerID != nil && *c.OwnerID == actorID
}

// DueAt is the completion instant of an active contract.
func (c Contract) DueAt() (time.Time, bool) {
	if c.StartedAt == nil {
		return time.Time{}, false
	}
	return c.StartedAt.Add(c.CompletionDuration), true
}

// ContractView is a contract as seen by one actor: required thresholds stay
// hidden until revealed or analyzed.
type ContractView struct {
	Contract
	RevealedSkills SkillSet `json:"revealed_skills,omitempty"`
	HiddenSkills   int      `json:"hidden_skills"`
}

type OperativeStatus string

const (
	OperativeAvailable OperativeStatus = "available"
	OperativeOnMission OperativeStatus = "on_mission"
	OperativeBurned    OperativeStatus = "burned"
)

type Operative struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Name          string          `json:"name"`
	Lore          string          `json:"lore,omitempty"`
	Skills        SkillSet        `json:"skills"`
	Status        OperativeStatus `json:"status" enum:"available,on_mission,burned"`
	RecoveryUntil *time.Time      `json:"recovery_until,omitempty" format:"date-time"`
	ContractID    *string         `json:"contract_id,omitempty"`
	Upgrades      []string        `json:"upgrades,omitempty"`
	Effects       []Effect        `json:"effects,omitempty"`
	CreatedAt     time.Time       `json:"created_at" format:"date-time"`
}

func (o Operative) HasUpgrade(itemID string) bool {
	for _, u := range o.Upgrades {
		if u == itemID {
			return true
		}
	}
	return false
}

type FactionStanding struct {
	ActorID         string    `json:"actor_id"`
	Faction         string    `json:"faction"`
	Relation        int       `json:"relation"`
	Threat          int       `json:"threat"`
	ThreatUpdatedAt time.Time `json:"threat_updated_at" format:"date-time"`
	Status          string    `json:"status"`
}

type FactionEvent struct {
	ID      int64     `json:"id"`
	ActorID string    `json:"actor_id"`
	Faction string    `json:"faction"`
	Kind    string    `json:"kind"`
	Delta   int       `json:"delta"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at" format:"date-time"`
}

type ItemCategory string

const (
	CategoryConsumable  ItemCategory = "consumable"
	CategoryImplant     ItemCategory = "implant"
	CategoryInformation ItemCategory = "information"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

var Rarities = []Rarity{RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary}

// Rank orders rarities; unknown values rank below common.
func (r Rarity) Rank() int {
	for i, v := range Rarities {
		if v == r {
			return i
		}
	}
	return -1
}

type CatalogItem struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Category      ItemCategory `json:"category" enum:"consumable,implant,information"`
	Rarity        Rarity       `json:"rarity" enum:"common,uncommon,rare,epic,legendary"`
	Price         int64        `json:"price"`
	Stock         int          `json:"stock"`
	MaxStock      int          `json:"max_stock"`
	DailyLimit    int          `json:"daily_limit"`
	MinReputation int          `json:"min_reputation"`
	Active        bool         `json:"active"`
	Effect        Effect       `json:"effect"`
}

type MarketState struct {
	LastRotation time.Time `json:"last_rotation" format:"date-time"`
	NextRotation time.Time `json:"next_rotation" format:"date-time"`
	RotationHour int       `json:"rotation_hour"`
	Enabled      bool      `json:"enabled"`
}

type Notification struct {
	ID        int64     `json:"id"`
	ActorID   string    `json:"actor_id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	EntityID  string    `json:"entity_id,omitempty"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ActorID    string         `json:"actor_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   *string        `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}
