package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/events"
	"github.com/Rancune/nightcity-hq/internal/repo"
	"github.com/Rancune/nightcity-hq/internal/rewards"
)

// resolveContract settles a due active contract: skill checks, payout or
// penalty, ledger updates and operative release. It reports false when another
// caller resolved the contract first.
func (e Engine) resolveContract(ctx context.Context, tx *sql.Tx, c domain.Contract, now time.Time, out *outbox) (bool, error) {
	if c.OwnerID == nil {
		return false, nil
	}
	owner := *c.OwnerID
	ops := map[string]domain.Operative{}
	for _, opID := range c.Assignments {
		op, err := e.Repo.GetOperative(ctx, tx, opID)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, err
		}
		ops[opID] = op
	}
	outcome := rewards.Evaluate(c, ops)
	status := domain.ContractFailed
	if outcome.Success {
		status = domain.ContractCompleted
	}
	if err := ensureContractTransition(c.Status, status); err != nil {
		return false, err
	}
	if err := e.Repo.FinishContract(ctx, tx, c.ID, status, now); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return false, nil
		}
		return false, fmt.Errorf("finish contract: %w", err)
	}

	payload := events.EventPayload{"status": status, "checks": outcome.Checks}
	var msg string
	if outcome.Success {
		standing, err := e.Repo.GetStanding(ctx, tx, owner, c.EmployerFaction)
		if err != nil {
			return false, err
		}
		paid := e.Rewards.Payout(c.Reward, standing.Relation)
		if err := e.Repo.CreditCurrency(ctx, tx, owner, paid.Eddies); err != nil {
			return false, fmt.Errorf("credit payout: %w", err)
		}
		if err := e.Repo.AdjustReputation(ctx, tx, owner, paid.Reputation); err != nil {
			return false, err
		}
		if err := e.adjustRelation(ctx, tx, owner, c.EmployerFaction, c.Reward.Reputation, "completed "+c.ID, now, out); err != nil {
			return false, err
		}
		if err := e.adjustRelation(ctx, tx, owner, c.TargetFaction, -e.Config.Rewards.TargetRelationHit, "hit by "+c.ID, now, out); err != nil {
			return false, err
		}
		payload["eddies"] = paid.Eddies
		payload["reputation"] = paid.Reputation
		msg = fmt.Sprintf("%q completed: +%d eddies, +%d rep", c.Title, paid.Eddies, paid.Reputation)
	} else {
		loss := e.Rewards.ReputationLoss(c.Reward)
		if err := e.Repo.AdjustReputation(ctx, tx, owner, -loss); err != nil {
			return false, err
		}
		if err := e.adjustRelation(ctx, tx, owner, c.EmployerFaction, -c.ThreatLevel, "failed "+c.ID, now, out); err != nil {
			return false, err
		}
		payload["reputation"] = -loss
		msg = fmt.Sprintf("%q failed: -%d rep", c.Title, loss)
	}
	if err := e.raiseThreat(ctx, tx, owner, c.TargetFaction, c.ID, now); err != nil {
		return false, err
	}

	for opID := range ops {
		var until *time.Time
		if outcome.Failed(opID) {
			t := now.Add(rewards.BurnDuration(c.ThreatLevel, e.Config.Operatives.BurnBase, e.Config.Operatives.BurnPerThreat))
			until = &t
		}
		if err := e.Repo.ReleaseOperative(ctx, tx, opID, until, outcome.Remaining[opID]); err != nil && !errors.Is(err, repo.ErrStale) {
			return false, fmt.Errorf("release operative %s: %w", opID, err)
		}
	}
	if err := e.notify(ctx, tx, out, domain.Notification{
		ActorID:  owner,
		Kind:     "contract.resolved",
		Message:  msg,
		EntityID: c.ID,
	}); err != nil {
		return false, err
	}
	if err := e.Events.Append(ctx, tx, "contract.resolved", owner, "contract", c.ID, payload); err != nil {
		return false, err
	}
	return true, nil
}

// ResolveDueContracts settles every active contract whose timer has run out,
// regardless of whether its owner is online. Each contract commits on its own.
func (e Engine) ResolveDueContracts(ctx context.Context) (int, error) {
	active, err := e.Repo.ListContracts(ctx, e.DB, repo.ContractFilter{Status: []domain.ContractStatus{domain.ContractActive, domain.ContractAssigned}})
	if err != nil {
		return 0, err
	}
	now := e.now()
	resolved := 0
	for _, c := range active {
		if !isDue(c, now) {
			continue
		}
		ok, err := e.resolveOne(ctx, c.ID, now)
		if err != nil {
			return resolved, err
		}
		if ok {
			resolved++
		}
	}
	return resolved, nil
}

func (e Engine) resolveOne(ctx context.Context, contractID string, now time.Time) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetContract(ctx, tx, contractID)
	if err != nil {
		return false, err
	}
	if c.Status.Normalize() != domain.ContractActive || !isDue(c, now) {
		return false, nil
	}
	var out outbox
	ok, err := e.resolveContract(ctx, tx, c, now, &out)
	if err != nil || !ok {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	e.publish(ctx, out)
	return true, nil
}
