package server

import (
	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/engine"
)

// Request payloads

type AssignRequest struct {
	Assignments map[domain.Skill]string `json:"assignments" doc:"operative id per required skill"`
}

type ItemRequest struct {
	ItemID string `json:"item_id" minLength:"1"`
}

type GenerateContractRequest struct {
	EmployerFaction string          `json:"employer_faction,omitempty"`
	TargetFaction   string          `json:"target_faction,omitempty"`
	OwnerID         string          `json:"owner_id,omitempty"`
	Archetype       string          `json:"archetype,omitempty" enum:"netrun,infiltration,extraction,heist"`
	ThreatLevel     int             `json:"threat_level,omitempty" minimum:"0"`
	RequiredSkills  domain.SkillSet `json:"required_skills,omitempty"`
	Title           string          `json:"title,omitempty"`
}

type MarketEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type RelationRequest struct {
	Delta int    `json:"delta"`
	Note  string `json:"note,omitempty"`
}

type HostileRequest struct {
	Note string `json:"note,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id" minLength:"1"`
	Roles   []string `json:"roles,omitempty"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ContractList struct {
	Items []domain.ContractView `json:"items"`
}

type RevealResponse struct {
	Contract domain.ContractView `json:"contract"`
	Skill    domain.Skill        `json:"skill"`
}

type CatalogResponse struct {
	State domain.MarketState   `json:"state"`
	Items []domain.CatalogItem `json:"items"`
}

type OperativeList struct {
	Items []domain.Operative `json:"items"`
}

type FactionHistoryResponse struct {
	Items []domain.FactionEvent `json:"items"`
}

type paginatedNotifications struct {
	Items      []domain.Notification `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type SweepResponse struct {
	Sweep       string `json:"sweep"`
	Rotated     *bool  `json:"rotated,omitempty"`
	Resolved    *int   `json:"resolved,omitempty"`
	Spawned     *int   `json:"spawned,omitempty"`
	Checked     *int   `json:"checked,omitempty"`
	Decremented *int   `json:"decremented,omitempty"`
}

func decayResponse(res engine.DecayResult) SweepResponse {
	return SweepResponse{Sweep: "decay", Checked: &res.Checked, Decremented: &res.Decremented}
}

func nonNilContracts(items []domain.ContractView) []domain.ContractView {
	if items == nil {
		return []domain.ContractView{}
	}
	return items
}

func nonNilOperatives(items []domain.Operative) []domain.Operative {
	if items == nil {
		return []domain.Operative{}
	}
	return items
}
