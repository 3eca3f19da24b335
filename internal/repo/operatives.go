package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

const operativeColumns = `id,owner_id,name,lore,hacking,stealth,combat,status,recovery_until,contract_id,upgrades_json,effects_json,created_at`

func scanOperative(row scanner) (domain.Operative, error) {
	var (
		o                        domain.Operative
		lore, recovery, contract sql.NullString
		upgrades, effects        sql.NullString
		hacking, stealth, combat int
		created                  string
	)
	err := row.Scan(&o.ID, &o.OwnerID, &o.Name, &lore, &hacking, &stealth, &combat, &o.Status, &recovery, &contract,
		&upgrades, &effects, &created)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if lore.Valid {
		o.Lore = lore.String
	}
	o.Skills = domain.SkillSet{
		domain.SkillHacking: hacking,
		domain.SkillStealth: stealth,
		domain.SkillCombat:  combat,
	}
	o.RecoveryUntil = nullTS(recovery)
	o.ContractID = nullString(contract)
	if err := unmarshalJSON(upgrades, &o.Upgrades); err != nil {
		return o, fmt.Errorf("operative %s upgrades: %w", o.ID, err)
	}
	if err := unmarshalJSON(effects, &o.Effects); err != nil {
		return o, fmt.Errorf("operative %s effects: %w", o.ID, err)
	}
	o.CreatedAt = parseTS(created)
	return o, nil
}

func (r Repo) InsertOperative(ctx context.Context, q DBTX, o domain.Operative) error {
	_, err := r.exec(ctx, q, `INSERT INTO operatives(id,owner_id,name,lore,hacking,stealth,combat,status,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		o.ID, o.OwnerID, o.Name, nullable(o.Lore), o.Skills.Get(domain.SkillHacking), o.Skills.Get(domain.SkillStealth),
		o.Skills.Get(domain.SkillCombat), string(o.Status), ts(o.CreatedAt))
	return err
}

func (r Repo) GetOperative(ctx context.Context, q DBTX, id string) (domain.Operative, error) {
	return scanOperative(q.QueryRowContext(ctx, r.bind(`SELECT `+operativeColumns+` FROM operatives WHERE id=?`), id))
}

func (r Repo) ListOperatives(ctx context.Context, q DBTX, ownerID string) ([]domain.Operative, error) {
	rows, err := q.QueryContext(ctx, r.bind(`SELECT `+operativeColumns+` FROM operatives WHERE owner_id=? ORDER BY created_at, id`), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Operative
	for rows.Next() {
		o, err := scanOperative(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// ReserveOperative marks an available operative as on a mission for contractID.
func (r Repo) ReserveOperative(ctx context.Context, q DBTX, id, ownerID, contractID string) error {
	n, err := r.exec(ctx, q, `UPDATE operatives SET status='on_mission', contract_id=? WHERE id=? AND owner_id=? AND status='available'`,
		contractID, id, ownerID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// ReleaseOperative ends a mission. A non-nil recoveryUntil burns the operative.
// Armed effects are replaced with remaining.
func (r Repo) ReleaseOperative(ctx context.Context, q DBTX, id string, recoveryUntil *time.Time, remaining []domain.Effect) error {
	status := domain.OperativeAvailable
	if recoveryUntil != nil {
		status = domain.OperativeBurned
	}
	effects, err := marshalJSON(remaining)
	if err != nil {
		return err
	}
	n, err := r.exec(ctx, q, `UPDATE operatives SET status=?, recovery_until=?, contract_id=NULL, effects_json=? WHERE id=? AND status='on_mission'`,
		string(status), nullableTS(recoveryUntil), effects, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// RecoverBurned returns the owner's burned operatives whose recovery has elapsed.
func (r Repo) RecoverBurned(ctx context.Context, q DBTX, ownerID string, now time.Time) (int64, error) {
	return r.exec(ctx, q, `UPDATE operatives SET status='available', recovery_until=NULL
WHERE owner_id=? AND status='burned' AND recovery_until IS NOT NULL AND recovery_until<=?`, ownerID, ts(now))
}

// ApplyUpgrade writes a new skill value and records the implant. The previous
// upgrade list guards against installing the same implant twice.
func (r Repo) ApplyUpgrade(ctx context.Context, q DBTX, o domain.Operative, skill domain.Skill, value int, itemID string) error {
	if !skill.Valid() {
		return fmt.Errorf("unknown skill %q", skill)
	}
	prev, err := marshalJSON(o.Upgrades)
	if err != nil {
		return err
	}
	next, err := marshalJSON(append(append([]string{}, o.Upgrades...), itemID))
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE operatives SET %s=?, upgrades_json=? WHERE id=? AND COALESCE(upgrades_json,'null')=? AND status<>'on_mission'`, skill)
	n, err := r.exec(ctx, q, query, value, next, o.ID, prev)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// ArmEffect appends a one-shot effect to an available operative.
func (r Repo) ArmEffect(ctx context.Context, q DBTX, o domain.Operative, eff domain.Effect) error {
	data, err := marshalJSON(append(append([]domain.Effect{}, o.Effects...), eff))
	if err != nil {
		return err
	}
	n, err := r.exec(ctx, q, `UPDATE operatives SET effects_json=? WHERE id=? AND status='available'`, data, o.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}
