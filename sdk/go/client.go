package fixersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal fixer HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no token is set. Servers only honour
	// it with the legacy header enabled.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BasePath:    "/v0",
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Actor is the player's wallet and reputation.
type Actor struct {
	ID         string         `json:"id"`
	Currency   int64          `json:"currency"`
	Reputation int            `json:"reputation"`
	Tier       string         `json:"tier"`
	Inventory  map[string]int `json:"inventory,omitempty"`
}

// Standing is the actor's relation and threat with one faction.
type Standing struct {
	Faction  string `json:"faction"`
	Relation int    `json:"relation"`
	Threat   int    `json:"threat"`
	Status   string `json:"status"`
}

type Profile struct {
	Actor     Actor      `json:"actor"`
	Standings []Standing `json:"standings"`
	Unlocks   []string   `json:"unlocks,omitempty"`
}

type TickResult struct {
	Applied  bool  `json:"applied"`
	TRP      int64 `json:"trp_elapsed"`
	Expired  int   `json:"expired"`
	Resolved int   `json:"resolved"`
}

type Reward struct {
	Eddies     int64 `json:"eddies"`
	Reputation int   `json:"reputation"`
}

// Contract represents the caller's view of a contract (partial). Required
// skills are only present once revealed.
type Contract struct {
	ID              string            `json:"id"`
	EmployerID      string            `json:"employer_id"`
	OwnerID         *string           `json:"owner_id,omitempty"`
	Status          string            `json:"status"`
	Archetype       string            `json:"archetype"`
	Title           string            `json:"title"`
	Description     string            `json:"description,omitempty"`
	ThreatLevel     int               `json:"threat_level"`
	TargetFaction   string            `json:"target_faction"`
	EmployerFaction string            `json:"employer_faction"`
	Reward          Reward            `json:"reward"`
	AcceptanceTRP   int64             `json:"acceptance_trp"`
	RequiredSkills  map[string]int    `json:"required_skills,omitempty"`
	RevealedSkills  map[string]int    `json:"revealed_skills,omitempty"`
	HiddenSkills    int               `json:"hidden_skills"`
	Assignments     map[string]string `json:"assignments,omitempty"`
}

type Item struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Category      string `json:"category"`
	Rarity        string `json:"rarity"`
	Price         int64  `json:"price"`
	Stock         int    `json:"stock"`
	DailyLimit    int    `json:"daily_limit"`
	MinReputation int    `json:"min_reputation"`
}

type Market struct {
	State struct {
		LastRotation time.Time `json:"last_rotation"`
		NextRotation time.Time `json:"next_rotation"`
		Enabled      bool      `json:"enabled"`
	} `json:"state"`
	Items []Item `json:"items"`
}

type Purchase struct {
	Item        Item  `json:"item"`
	Currency    int64 `json:"currency"`
	Quantity    int   `json:"quantity"`
	BoughtToday int   `json:"bought_today"`
}

type Operative struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Skills   map[string]int `json:"skills"`
	Status   string         `json:"status"`
	Upgrades []string       `json:"upgrades,omitempty"`
}

type Notification struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	EntityID  string    `json:"entity_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ActorID    string         `json:"actor_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   *string        `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Page wraps list responses with cursors.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor"`
}

func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// Tick advances the caller's TRP clock.
func (c *Client) Tick(ctx context.Context) (TickResult, error) {
	var resp TickResult
	err := c.do(ctx, http.MethodPost, "me/tick", nil, &resp)
	return resp, err
}

// Contracts lists open offers plus the caller's own contracts.
func (c *Client) Contracts(ctx context.Context) ([]Contract, error) {
	var resp struct {
		Items []Contract `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "contracts", nil, &resp)
	return resp.Items, err
}

func (c *Client) Contract(ctx context.Context, id string) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodGet, "contracts/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) AcceptContract(ctx context.Context, id string) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodPost, contractPath(id, "accept"), nil, &resp)
	return resp, err
}

// AssignOperatives staffs an accepted contract, one operative per required skill.
func (c *Client) AssignOperatives(ctx context.Context, id string, assignments map[string]string) (Contract, error) {
	body := map[string]any{"assignments": assignments}
	var resp Contract
	err := c.do(ctx, http.MethodPost, contractPath(id, "assign"), body, &resp)
	return resp, err
}

// RevealSkill spends a reveal on the contract and returns the skill it exposed.
func (c *Client) RevealSkill(ctx context.Context, id string) (Contract, string, error) {
	var resp struct {
		Contract Contract `json:"contract"`
		Skill    string   `json:"skill"`
	}
	err := c.do(ctx, http.MethodPost, contractPath(id, "reveal"), nil, &resp)
	return resp.Contract, resp.Skill, err
}

func (c *Client) AnalyzeContract(ctx context.Context, id string) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodPost, contractPath(id, "analyze"), nil, &resp)
	return resp, err
}

func (c *Client) Market(ctx context.Context) (Market, error) {
	var resp Market
	err := c.do(ctx, http.MethodGet, "market", nil, &resp)
	return resp, err
}

func (c *Client) Purchase(ctx context.Context, itemID string) (Purchase, error) {
	var resp Purchase
	err := c.do(ctx, http.MethodPost, "market/purchases", map[string]any{"item_id": itemID}, &resp)
	return resp, err
}

func (c *Client) Operatives(ctx context.Context) ([]Operative, error) {
	var resp struct {
		Items []Operative `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "operatives", nil, &resp)
	return resp.Items, err
}

func (c *Client) RecruitOperative(ctx context.Context) (Operative, error) {
	var resp Operative
	err := c.do(ctx, http.MethodPost, "operatives", nil, &resp)
	return resp, err
}

func (c *Client) InstallImplant(ctx context.Context, operativeID, itemID string) (Operative, error) {
	var resp Operative
	endpoint := fmt.Sprintf("operatives/%s/implants", url.PathEscape(operativeID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"item_id": itemID}, &resp)
	return resp, err
}

func (c *Client) UseConsumable(ctx context.Context, operativeID, itemID string) (Operative, error) {
	var resp Operative
	endpoint := fmt.Sprintf("operatives/%s/consumables", url.PathEscape(operativeID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"item_id": itemID}, &resp)
	return resp, err
}

// RedeemLead turns an information item into a private contract.
func (c *Client) RedeemLead(ctx context.Context, itemID string) (Contract, error) {
	var resp Contract
	err := c.do(ctx, http.MethodPost, "leads", map[string]any{"item_id": itemID}, &resp)
	return resp, err
}

func (c *Client) Faction(ctx context.Context, faction string) (Standing, error) {
	var resp Standing
	err := c.do(ctx, http.MethodGet, "factions/"+url.PathEscape(faction), nil, &resp)
	return resp, err
}

// Notifications returns a page of the caller's notifications after cursor.
func (c *Client) Notifications(ctx context.Context, limit int, cursor string) (Page[Notification], error) {
	var resp Page[Notification]
	err := c.do(ctx, http.MethodGet, withPage("notifications", limit, cursor), nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (Page[Event], error) {
	var resp Page[Event]
	err := c.do(ctx, http.MethodGet, withPage("events", limit, cursor), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

func contractPath(id, action string) string {
	return fmt.Sprintf("contracts/%s/%s", url.PathEscape(id), action)
}

func withPage(endpoint string, limit int, cursor string) string {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
