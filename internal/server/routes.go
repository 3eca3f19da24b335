package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/engine"
	"github.com/Rancune/nightcity-hq/internal/repo"
)

type contractPath struct {
	ContractID string `path:"contract_id"`
}

func registerProfile(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current actor profile, tier and faction standings",
	}, func(ctx context.Context, _ *struct{}) (*out[engine.Profile], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProfile(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "tick",
		Method:      http.MethodPost,
		Path:        "/me/tick",
		Summary:     "Advance the actor's view of the world",
	}, func(ctx context.Context, _ *struct{}) (*out[engine.TickResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.Tick(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})
}

func registerContracts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-contracts",
		Method:      http.MethodGet,
		Path:        "/contracts",
		Summary:     "Public offers and the actor's own contracts",
	}, func(ctx context.Context, _ *struct{}) (*out[ContractList], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListContracts(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(ContractList{Items: nonNilContracts(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-contract",
		Method:      http.MethodGet,
		Path:        "/contracts/{contract_id}",
		Summary:     "Get a contract",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *contractPath) (*out[domain.ContractView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.GetContract(ctx, input.ContractID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-contract",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/accept",
		Summary:     "Accept a proposed contract",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *contractPath) (*out[domain.ContractView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.AcceptContract(ctx, input.ContractID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-operatives",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/assign",
		Summary:     "Assign one operative per required skill and start the run",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ContractID string        `path:"contract_id"`
		Body       AssignRequest `json:"body"`
	}) (*out[domain.ContractView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.AssignOperatives(ctx, input.ContractID, actorID, input.Body.Assignments)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reveal-skill",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/reveal",
		Summary:     "Spend a single-reveal item on the lowest hidden threshold",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *contractPath) (*out[RevealResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, skill, err := e.RevealSkill(ctx, input.ContractID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(RevealResponse{Contract: v, Skill: skill}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analyze-contract",
		Method:      http.MethodPost,
		Path:        "/contracts/{contract_id}/analyze",
		Summary:     "Spend a full-reveal item on every hidden threshold",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *contractPath) (*out[domain.ContractView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.AnalyzeContract(ctx, input.ContractID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})
}

func registerMarket(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-market",
		Method:      http.MethodGet,
		Path:        "/market",
		Summary:     "Rotation state and catalog",
	}, func(ctx context.Context, _ *struct{}) (*out[CatalogResponse], error) {
		state, err := e.MarketState(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListCatalog(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.CatalogItem{}
		}
		return reply(CatalogResponse{State: state, Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "purchase-item",
		Method:      http.MethodPost,
		Path:        "/market/purchases",
		Summary:     "Buy one unit of a catalog item",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ItemRequest `json:"body"`
	}) (*out[engine.PurchaseResult], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := e.PurchaseItem(ctx, actorID, input.Body.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(res), nil
	})
}

func registerOperatives(api huma.API, e engine.Engine) {
	type operativeItem struct {
		OperativeID string      `path:"operative_id"`
		Body        ItemRequest `json:"body"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-operatives",
		Method:      http.MethodGet,
		Path:        "/operatives",
		Summary:     "The actor's roster",
	}, func(ctx context.Context, _ *struct{}) (*out[OperativeList], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListOperatives(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(OperativeList{Items: nonNilOperatives(items)}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recruit-operative",
		Method:      http.MethodPost,
		Path:        "/operatives",
		Summary:     "Recruit a new operative",
		Errors:      []int{http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*out[domain.Operative], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		op, err := e.RecruitOperative(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(op), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "install-implant",
		Method:      http.MethodPost,
		Path:        "/operatives/{operative_id}/implants",
		Summary:     "Install an implant from inventory",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *operativeItem) (*out[domain.Operative], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		op, err := e.InstallImplant(ctx, actorID, input.OperativeID, input.Body.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(op), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "use-consumable",
		Method:      http.MethodPost,
		Path:        "/operatives/{operative_id}/consumables",
		Summary:     "Arm a consumable on an available operative",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *operativeItem) (*out[domain.Operative], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		op, err := e.UseConsumable(ctx, actorID, input.OperativeID, input.Body.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(op), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "redeem-lead",
		Method:      http.MethodPost,
		Path:        "/leads",
		Summary:     "Turn a contract lead into a private contract",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body ItemRequest `json:"body"`
	}) (*out[domain.ContractView], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.RedeemLead(ctx, actorID, input.Body.ItemID)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(v), nil
	})
}

func registerFactions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "faction-history",
		Method:      http.MethodGet,
		Path:        "/factions/history",
		Summary:     "Relation and threat changes for the actor",
	}, func(ctx context.Context, _ *struct{}) (*out[FactionHistoryResponse], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.FactionHistory(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.FactionEvent{}
		}
		return reply(FactionHistoryResponse{Items: items}), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "faction-status",
		Method:      http.MethodGet,
		Path:        "/factions/{faction}",
		Summary:     "Standing with one faction",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Faction string `path:"faction"`
	}) (*out[domain.FactionStanding], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := e.FactionStatus(ctx, actorID, input.Faction)
		if err != nil {
			return nil, handleError(err)
		}
		return reply(st), nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Notifications addressed to the actor",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*out[paginatedNotifications], error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		after, cerr := parseCursor(input.Cursor)
		if cerr != nil {
			return nil, cerr
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListNotifications(ctx, actorID, after, limit+1)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedNotifications{Items: []domain.Notification{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		resp.Items = append(resp.Items, items...)
		return reply(resp), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List audit events",
		Description: "Non-admin callers only see events they caused.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		ActorID    string `query:"actor_id"`
		EntityKind string `query:"entity_kind" enum:"actor,contract,operative,faction,item,market"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*out[paginatedEvents], error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		after, cerr := parseCursor(input.Cursor)
		if cerr != nil {
			return nil, cerr
		}
		limit := normalizeLimit(input.Limit)
		f := repo.EventFilter{
			ActorID:    strings.TrimSpace(input.ActorID),
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Type:       input.Type,
			AfterID:    after,
			Limit:      limit + 1,
		}
		if !p.Admin() {
			f.ActorID = p.ActorID
		}
		items, err := e.ListEvents(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		resp.Items = append(resp.Items, items...)
		return reply(resp), nil
	})
}
