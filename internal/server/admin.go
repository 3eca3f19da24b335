package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/engine"
)

// Admin operations drive the sweeps and world state that normally run from
// the scheduler. They need the admin role.
func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-contract",
		Method:      http.MethodPost,
		Path:        "/admin/contracts",
		Summary:     "Generate a contract; omitted fields are rolled",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body GenerateContractRequest `json:"body"`
	}) (*out[domain.Contract], error) {
		p, authErr := requireAdmin(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.GenerateContract(ctx, engine.ContractOptions{
			EmployerFaction: input.Body.EmployerFaction,
			TargetFaction:   input.Body.TargetFaction,
			OwnerID:         input.Body.OwnerID,
			Archetype:       domain.Archetype(input.Body.Archetype),
			ThreatLevel:     input.Body.ThreatLevel,
			RequiredSkills:  input.Body.RequiredSkills,
			Title:           input.Body.Title,
			ActorID:         p.ActorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return reply(c), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-sweep",
		Method:      http.MethodPost,
		Path:        "/admin/sweeps/{sweep}",
		Summary:     "Run a scheduled sweep now",
		Description: "rotate only rotates when due; force-rotate rotates unconditionally.",
		Errors:      []int{http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Sweep string `path:"sweep" enum:"rotate,force-rotate,decay,resolve,spawn"`
	}) (*out[SweepResponse], error) {
		if _, authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		resp := SweepResponse{Sweep: input.Sweep}
		switch input.Sweep {
		case "rotate":
			rotated, err := e.RotateMarketIfDue(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			resp.Rotated = &rotated
		case "force-rotate":
			if err := e.PerformRotation(ctx); err != nil {
				return nil, handleError(err)
			}
			rotated := true
			resp.Rotated = &rotated
		case "decay":
			res, err := e.DecayThreatSweep(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			resp = decayResponse(res)
		case "resolve":
			n, err := e.ResolveDueContracts(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			resp.Resolved = &n
		case "spawn":
			n, err := e.SpawnPublicContracts(ctx)
			if err != nil {
				return nil, handleError(err)
			}
			resp.Spawned = &n
		}
		return reply(resp), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-market-enabled",
		Method:      http.MethodPut,
		Path:        "/admin/market/enabled",
		Summary:     "Pause or resume market rotation",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body MarketEnabledRequest `json:"body"`
	}) (*out[domain.MarketState], error) {
		if _, authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.SetMarketEnabled(ctx, input.Body.Enabled); err != nil {
			return nil, handleError(err)
		}
		st, err := e.MarketState(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "adjust-relation",
		Method:      http.MethodPost,
		Path:        "/admin/actors/{actor_id}/factions/{faction}/relation",
		Summary:     "Adjust an actor's relation with a faction",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string          `path:"actor_id"`
		Faction string          `path:"faction"`
		Body    RelationRequest `json:"body"`
	}) (*out[domain.FactionStanding], error) {
		if _, authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		st, err := e.AdjustRelation(ctx, input.ActorID, input.Faction, input.Body.Delta, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(st), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-hostile-action",
		Method:      http.MethodPost,
		Path:        "/admin/actors/{actor_id}/factions/{faction}/hostile",
		Summary:     "Raise an actor's threat with a faction",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string         `path:"actor_id"`
		Faction string         `path:"faction"`
		Body    HostileRequest `json:"body" required:"false"`
	}) (*out[domain.FactionStanding], error) {
		if _, authErr := requireAdmin(ctx); authErr != nil {
			return nil, authErr
		}
		st, err := e.RecordHostileAction(ctx, input.ActorID, input.Faction, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(st), nil
	})
}
