package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

const briefSchema = `{
  "type": "object",
  "required": ["title", "description"],
  "properties": {
    "title": {"type": "string", "minLength": 1, "maxLength": 120},
    "description": {"type": "string", "maxLength": 4000},
    "factions": {"type": "array", "maxItems": 2, "items": {"type": "string", "minLength": 1}}
  }
}`

const identitySchema = `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 60},
    "lore": {"type": "string", "maxLength": 4000}
  }
}`

var (
	briefValidator    = jsonschema.MustCompileString("brief.json", briefSchema)
	identityValidator = jsonschema.MustCompileString("identity.json", identitySchema)
)

// HTTPGenerator asks a remote text service for flavor text. Responses that do
// not match the expected shape are rejected.
type HTTPGenerator struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

func NewHTTPGenerator(endpoint, token string, timeout time.Duration) HTTPGenerator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return HTTPGenerator{Endpoint: endpoint, Token: token, Client: &http.Client{Timeout: timeout}}
}

type generateRequest struct {
	Kind     string           `json:"kind"`
	Contract *ContractRequest `json:"contract,omitempty"`
	Skills   domain.SkillSet  `json:"skills,omitempty"`
}

func (g HTTPGenerator) ContractBrief(ctx context.Context, req ContractRequest) (Brief, error) {
	var out Brief
	err := g.call(ctx, generateRequest{Kind: "contract_brief", Contract: &req}, briefValidator, &out)
	return out, err
}

func (g HTTPGenerator) OperativeIdentity(ctx context.Context, skills domain.SkillSet) (Identity, error) {
	var out Identity
	err := g.call(ctx, generateRequest{Kind: "operative_identity", Skills: skills}, identityValidator, &out)
	return out, err
}

func (g HTTPGenerator) call(ctx context.Context, body generateRequest, schema *jsonschema.Schema, dst any) error {
	if g.Endpoint == "" {
		return fmt.Errorf("narrative endpoint not configured")
	}
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("narrative generator returned %d", resp.StatusCode)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode narrative response: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("narrative response rejected: %w", err)
	}
	return json.Unmarshal(data, dst)
}
