package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/events"
	"github.com/Rancune/nightcity-hq/internal/gameerr"
	"github.com/Rancune/nightcity-hq/internal/reputation"
)

func (e Engine) knownFaction(faction string) bool {
	for _, f := range e.Config.Factions {
		if f == faction {
			return true
		}
	}
	return false
}

// adjustRelation moves a relation, records it in the ledger and opens any
// opportunity whose tier was crossed for the first time.
func (e Engine) adjustRelation(ctx context.Context, tx *sql.Tx, actorID, faction string, delta int, note string, now time.Time, out *outbox) error {
	if delta == 0 {
		return nil
	}
	before, err := e.Repo.GetStanding(ctx, tx, actorID, faction)
	if err != nil {
		return err
	}
	if err := e.Repo.AdjustRelation(ctx, tx, actorID, faction, delta, now); err != nil {
		return fmt.Errorf("adjust relation: %w", err)
	}
	if err := e.Repo.AppendHistory(ctx, tx, domain.FactionEvent{
		ActorID: actorID, Faction: faction, Kind: reputation.KindRelation, Delta: delta, Note: note, At: now,
	}, e.Config.Threat.HistoryCap); err != nil {
		return err
	}
	for _, t := range e.factionTiers().Reached(before.Relation, before.Relation+delta) {
		fresh, err := e.Repo.InsertUnlock(ctx, tx, actorID, t.Unlock, faction, now)
		if err != nil {
			return err
		}
		if !fresh {
			continue
		}
		if err := e.Repo.AppendHistory(ctx, tx, domain.FactionEvent{
			ActorID: actorID, Faction: faction, Kind: reputation.KindUnlock, Note: t.Unlock, At: now,
		}, e.Config.Threat.HistoryCap); err != nil {
			return err
		}
		if err := e.notify(ctx, tx, out, domain.Notification{
			ActorID:  actorID,
			Kind:     "faction.unlock",
			Message:  fmt.Sprintf("%s now treats you as %s: %s", faction, t.Name, t.Unlock),
			EntityID: faction,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) raiseThreat(ctx context.Context, tx *sql.Tx, actorID, faction, note string, now time.Time) error {
	if err := e.Repo.RaiseThreat(ctx, tx, actorID, faction, now); err != nil {
		return fmt.Errorf("raise threat: %w", err)
	}
	return e.Repo.AppendHistory(ctx, tx, domain.FactionEvent{
		ActorID: actorID, Faction: faction, Kind: reputation.KindHostile, Delta: 1, Note: note, At: now,
	}, e.Config.Threat.HistoryCap)
}

// AdjustRelation applies an out-of-band relation change, such as an admin grant.
func (e Engine) AdjustRelation(ctx context.Context, actorID, faction string, delta int, note string) (domain.FactionStanding, error) {
	if !e.knownFaction(faction) {
		return domain.FactionStanding{}, gameerr.InvalidInput("unknown faction %q", faction)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FactionStanding{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetActor(ctx, tx, actorID); err != nil {
		return domain.FactionStanding{}, notFound(err, "actor", actorID)
	}
	now := e.now()
	var out outbox
	if err := e.adjustRelation(ctx, tx, actorID, faction, delta, note, now, &out); err != nil {
		return domain.FactionStanding{}, err
	}
	if err := e.Events.Append(ctx, tx, "faction.relation_adjusted", actorID, "faction", faction, events.EventPayload{
		"delta": delta, "note": note,
	}); err != nil {
		return domain.FactionStanding{}, err
	}
	s, err := e.Repo.GetStanding(ctx, tx, actorID, faction)
	if err != nil {
		return s, err
	}
	s.Status = e.factionTiers().Name(s.Relation)
	if err := tx.Commit(); err != nil {
		return s, err
	}
	e.publish(ctx, out)
	return s, nil
}

// RecordHostileAction raises the faction's threat against the actor.
func (e Engine) RecordHostileAction(ctx context.Context, actorID, faction, note string) (domain.FactionStanding, error) {
	if !e.knownFaction(faction) {
		return domain.FactionStanding{}, gameerr.InvalidInput("unknown faction %q", faction)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.FactionStanding{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetActor(ctx, tx, actorID); err != nil {
		return domain.FactionStanding{}, notFound(err, "actor", actorID)
	}
	now := e.now()
	if err := e.raiseThreat(ctx, tx, actorID, faction, note, now); err != nil {
		return domain.FactionStanding{}, err
	}
	if err := e.Events.Append(ctx, tx, "faction.hostile_action", actorID, "faction", faction, events.EventPayload{
		"note": note,
	}); err != nil {
		return domain.FactionStanding{}, err
	}
	s, err := e.Repo.GetStanding(ctx, tx, actorID, faction)
	if err != nil {
		return s, err
	}
	s.Status = e.factionTiers().Name(s.Relation)
	return s, tx.Commit()
}

// FactionStatus returns one standing, zero valued if the actor never dealt
// with the faction.
func (e Engine) FactionStatus(ctx context.Context, actorID, faction string) (domain.FactionStanding, error) {
	if !e.knownFaction(faction) {
		return domain.FactionStanding{}, gameerr.InvalidInput("unknown faction %q", faction)
	}
	s, err := e.Repo.GetStanding(ctx, e.DB, actorID, faction)
	if err != nil {
		return s, err
	}
	s.Status = e.factionTiers().Name(s.Relation)
	return s, nil
}

func (e Engine) FactionHistory(ctx context.Context, actorID string) ([]domain.FactionEvent, error) {
	return e.Repo.ListHistory(ctx, e.DB, actorID)
}

type DecayResult struct {
	Checked     int `json:"checked"`
	Decremented int `json:"decremented"`
}

// DecayThreatSweep lowers by one every threat that has been quiet for a full
// decay interval. A standing observed again before another interval passes is
// left alone, so repeated sweeps never double count.
func (e Engine) DecayThreatSweep(ctx context.Context) (DecayResult, error) {
	var res DecayResult
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	list, err := e.Repo.ListThreatened(ctx, tx)
	if err != nil {
		return res, err
	}
	now := e.now()
	for _, s := range list {
		res.Checked++
		if !reputation.DecayDue(s, now, e.Config.Threat.DecayInterval) {
			continue
		}
		ok, err := e.Repo.DecayThreat(ctx, tx, s, now)
		if err != nil {
			return res, fmt.Errorf("decay threat: %w", err)
		}
		if !ok {
			continue
		}
		res.Decremented++
		if err := e.Repo.AppendHistory(ctx, tx, domain.FactionEvent{
			ActorID: s.ActorID, Faction: s.Faction, Kind: reputation.KindDecay, Delta: -1, At: now,
		}, e.Config.Threat.HistoryCap); err != nil {
			return res, err
		}
		if err := e.Events.Append(ctx, tx, "faction.threat_decayed", SystemActor, "faction", s.Faction, events.EventPayload{
			"actor_id": s.ActorID, "threat": s.Threat - 1,
		}); err != nil {
			return res, err
		}
	}
	if err := tx.Commit(); err != nil {
		return res, err
	}
	if res.Decremented > 0 {
		e.logger().Info("threat decayed", "standings", res.Decremented)
	}
	return res, nil
}
