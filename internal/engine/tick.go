package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/events"
	"github.com/Rancune/nightcity-hq/internal/gameerr"
	"github.com/Rancune/nightcity-hq/internal/repo"
)

// EnsureActor creates the actor's profile on first interaction.
func (e Engine) EnsureActor(ctx context.Context, actorID string) (domain.ActorProfile, error) {
	if actorID == "" {
		return domain.ActorProfile{}, gameerr.Unauthorized("actor identity required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ActorProfile{}, err
	}
	defer tx.Rollback()

	now := e.now()
	created, err := e.Repo.EnsureActor(ctx, tx, actorID, e.Config.Actors.StartingEddies, now)
	if err != nil {
		return domain.ActorProfile{}, fmt.Errorf("ensure actor: %w", err)
	}
	if created {
		if err := e.Events.Append(ctx, tx, "actor.created", actorID, "actor", actorID, events.EventPayload{
			"currency": e.Config.Actors.StartingEddies,
		}); err != nil {
			return domain.ActorProfile{}, err
		}
	}
	a, err := e.profile(ctx, tx, actorID)
	if err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

func (e Engine) profile(ctx context.Context, q repo.DBTX, actorID string) (domain.ActorProfile, error) {
	a, err := e.Repo.GetActor(ctx, q, actorID)
	if err != nil {
		return a, notFound(err, "actor", actorID)
	}
	a.Tier = e.tiers().Name(a.Reputation)
	a.Inventory, err = e.Repo.GetInventory(ctx, q, actorID)
	return a, err
}

// Profile is an actor with its faction ledger.
type Profile struct {
	Actor     domain.ActorProfile      `json:"actor"`
	Standings []domain.FactionStanding `json:"standings"`
	Unlocks   []string                 `json:"unlocks,omitempty"`
}

func (e Engine) GetProfile(ctx context.Context, actorID string) (Profile, error) {
	a, err := e.profile(ctx, e.DB, actorID)
	if err != nil {
		return Profile{}, err
	}
	standings, err := e.Repo.ListStandings(ctx, e.DB, actorID)
	if err != nil {
		return Profile{}, err
	}
	for i := range standings {
		standings[i].Status = e.factionTiers().Name(standings[i].Relation)
	}
	unlocks, err := e.Repo.ListUnlocks(ctx, e.DB, actorID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Actor: a, Standings: standings, Unlocks: unlocks}, nil
}

// TickResult reports what one observation changed.
type TickResult struct {
	Applied  bool  `json:"applied"`
	TRP      int64 `json:"trp_elapsed"`
	Expired  int   `json:"expired"`
	Resolved int   `json:"resolved"`
}

// Tick brings the actor's view of the world up to date: lapsed offers expire,
// elapsed real time is converted to TRP and charged against the acceptance
// window of every contract the actor can see, recovered operatives return and
// due contracts resolve. Unknown actors are ignored.
func (e Engine) Tick(ctx context.Context, actorID string) (TickResult, error) {
	var res TickResult
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActor(ctx, tx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return res, nil
	}
	if err != nil {
		return res, err
	}
	now := e.now()
	var out outbox

	// Expiry runs before the decrement so a countdown that reaches zero now is
	// only expired by the next observation.
	res.Expired, err = e.expireVisible(ctx, tx, actorID, now, &out)
	if err != nil {
		return res, err
	}
	if trp, ok := e.Clock.Elapsed(actor.LastSeen, now); ok {
		if err := e.Repo.TouchLastSeen(ctx, tx, actorID, actor.LastSeen, now); err != nil {
			if errors.Is(err, repo.ErrStale) {
				// A concurrent tick already consumed this window.
				return TickResult{}, nil
			}
			return res, err
		}
		if _, err := e.Repo.DecrementAcceptance(ctx, tx, actorID, trp, now); err != nil {
			return res, fmt.Errorf("decrement acceptance: %w", err)
		}
		res.Applied = true
		res.TRP = trp
	}
	if _, err := e.Repo.RecoverBurned(ctx, tx, actorID, now); err != nil {
		return res, fmt.Errorf("recover operatives: %w", err)
	}
	due, err := e.Repo.ListContracts(ctx, tx, repo.ContractFilter{OwnerID: actorID, Status: []domain.ContractStatus{domain.ContractActive, domain.ContractAssigned}})
	if err != nil {
		return res, err
	}
	for _, c := range due {
		if !isDue(c, now) {
			continue
		}
		ok, err := e.resolveContract(ctx, tx, c, now, &out)
		if err != nil {
			return res, err
		}
		if ok {
			res.Resolved++
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	e.publish(ctx, out)
	return res, nil
}

// expireVisible expires every proposed contract the actor can see whose
// acceptance window is spent.
func (e Engine) expireVisible(ctx context.Context, tx *sql.Tx, actorID string, now time.Time, out *outbox) (int, error) {
	visible, err := e.Repo.ListContracts(ctx, tx, repo.ContractFilter{VisibleTo: actorID, Status: []domain.ContractStatus{domain.ContractProposed}})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range visible {
		if c.AcceptanceTRP > 0 {
			continue
		}
		ok, err := e.expire(ctx, tx, c, actorID, now, out)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (e Engine) expire(ctx context.Context, tx *sql.Tx, c domain.Contract, observer string, now time.Time, out *outbox) (bool, error) {
	ok, err := e.Repo.ExpireContract(ctx, tx, c.ID, now)
	if err != nil || !ok {
		return false, err
	}
	if err := e.Events.Append(ctx, tx, "contract.expired", observer, "contract", c.ID, events.EventPayload{
		"acceptance_trp": c.AcceptanceTRP,
	}); err != nil {
		return false, err
	}
	if c.OwnerID != nil {
		if err := e.notify(ctx, tx, out, domain.Notification{
			ActorID:  *c.OwnerID,
			Kind:     "contract.expired",
			Message:  fmt.Sprintf("%q expired before it was staffed", c.Title),
			EntityID: c.ID,
		}); err != nil {
			return false, err
		}
	}
	return true, nil
}

func isDue(c domain.Contract, now time.Time) bool {
	due, ok := c.DueAt()
	return ok && !now.Before(due)
}
