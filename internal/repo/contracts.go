package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

const contractColumns = `id,employer_id,owner_id,status,archetype,title,description,threat_level,target_faction,employer_faction,
required_skills_json,reward_eddies,reward_reputation,acceptance_trp,completion_seconds,started_at,assignments_json,analyzed,
created_at,updated_at,resolved_at`

func scanContract(row scanner) (domain.Contract, error) {
	var (
		c                              domain.Contract
		owner, desc, started, resolved sql.NullString
		skills, assignments            sql.NullString
		completion                     int64
		analyzed                       int
		created, updated               string
	)
	err := row.Scan(&c.ID, &c.EmployerID, &owner, &c.Status, &c.Archetype, &c.Title, &desc, &c.ThreatLevel,
		&c.TargetFaction, &c.EmployerFaction, &skills, &c.Reward.Eddies, &c.Reward.Reputation, &c.AcceptanceTRP,
		&completion, &started, &assignments, &analyzed, &created, &updated, &resolved)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.OwnerID = nullString(owner)
	c.Status = c.Status.Normalize()
	if desc.Valid {
		c.Description = desc.String
	}
	if err := unmarshalJSON(skills, &c.RequiredSkills); err != nil {
		return c, fmt.Errorf("contract %s required skills: %w", c.ID, err)
	}
	if err := unmarshalJSON(assignments, &c.Assignments); err != nil {
		return c, fmt.Errorf("contract %s assignments: %w", c.ID, err)
	}
	c.CompletionDuration = time.Duration(completion) * time.Second
	c.StartedAt = nullTS(started)
	c.ResolvedAt = nullTS(resolved)
	c.Analyzed = analyzed != 0
	c.CreatedAt = parseTS(created)
	c.UpdatedAt = parseTS(updated)
	return c, nil
}

func (r Repo) InsertContract(ctx context.Context, q DBTX, c domain.Contract) error {
	skills, err := marshalJSON(c.RequiredSkills)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, q, `INSERT INTO contracts(id,employer_id,owner_id,status,archetype,title,description,threat_level,target_faction,
employer_faction,required_skills_json,reward_eddies,reward_reputation,acceptance_trp,completion_seconds,analyzed,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.EmployerID, nullablePtr(c.OwnerID), string(c.Status), string(c.Archetype), c.Title, nullable(c.Description),
		c.ThreatLevel, c.TargetFaction, c.EmployerFaction, skills, c.Reward.Eddies, c.Reward.Reputation, c.AcceptanceTRP,
		int64(c.CompletionDuration/time.Second), boolInt(c.Analyzed), ts(c.CreatedAt), ts(c.UpdatedAt))
	return err
}

func (r Repo) GetContract(ctx context.Context, q DBTX, id string) (domain.Contract, error) {
	return scanContract(q.QueryRowContext(ctx, r.bind(`SELECT `+contractColumns+` FROM contracts WHERE id=?`), id))
}

type ContractFilter struct {
	// VisibleTo limits results to public contracts plus those owned by the actor.
	VisibleTo string
	// PublicOnly limits results to proposed, unowned contracts.
	PublicOnly bool
	OwnerID    string
	Status     []domain.ContractStatus
	Limit      int
}

func (r Repo) ListContracts(ctx context.Context, q DBTX, f ContractFilter) ([]domain.Contract, error) {
	var (
		clauses []string
		args    []any
	)
	if f.PublicOnly {
		clauses = append(clauses, "status='proposed' AND owner_id IS NULL")
	}
	if f.VisibleTo != "" {
		clauses = append(clauses, "((status='proposed' AND owner_id IS NULL) OR owner_id=?)")
		args = append(args, f.VisibleTo)
	}
	if f.OwnerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, f.OwnerID)
	}
	if len(f.Status) > 0 {
		marks := make([]string, len(f.Status))
		for i, s := range f.Status {
			marks[i] = "?"
			args = append(args, string(s))
		}
		clauses = append(clauses, "status IN ("+strings.Join(marks, ",")+")")
	}
	query := `SELECT ` + contractColumns + ` FROM contracts`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ClaimContract sets the owner of a live, unowned contract. Only one caller can
// win; the others get ErrStale.
func (r Repo) ClaimContract(ctx context.Context, q DBTX, id, actorID string, now time.Time) error {
	n, err := r.exec(ctx, q, `UPDATE contracts SET owner_id=?, updated_at=?
WHERE id=? AND status='proposed' AND owner_id IS NULL AND employer_id<>? AND acceptance_trp>0`,
		actorID, ts(now), id, actorID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// DecrementAcceptance subtracts trp from every proposed contract visible to the actor.
func (r Repo) DecrementAcceptance(ctx context.Context, q DBTX, actorID string, trp int64, now time.Time) (int64, error) {
	return r.exec(ctx, q, `UPDATE contracts SET acceptance_trp=acceptance_trp-?, updated_at=?
WHERE status='proposed' AND (owner_id IS NULL OR owner_id=?)`, trp, ts(now), actorID)
}

// ExpireContract moves a lapsed proposed contract to expired.
func (r Repo) ExpireContract(ctx context.Context, q DBTX, id string, now time.Time) (bool, error) {
	n, err := r.exec(ctx, q, `UPDATE contracts SET status='expired', updated_at=?, resolved_at=?
WHERE id=? AND status='proposed' AND acceptance_trp<=0`, ts(now), ts(now), id)
	return n > 0, err
}

// ActivateContract binds assignments and starts the completion timer.
func (r Repo) ActivateContract(ctx context.Context, q DBTX, id, ownerID string, assignments map[domain.Skill]string, duration time.Duration, now time.Time) error {
	data, err := marshalJSON(assignments)
	if err != nil {
		return err
	}
	n, err := r.exec(ctx, q, `UPDATE contracts SET status='active', assignments_json=?, completion_seconds=?, started_at=?, updated_at=?
WHERE id=? AND owner_id=? AND status='proposed' AND acceptance_trp>0`,
		data, int64(duration/time.Second), ts(now), ts(now), id, ownerID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// FinishContract moves an active contract to a terminal status exactly once.
func (r Repo) FinishContract(ctx context.Context, q DBTX, id string, status domain.ContractStatus, now time.Time) error {
	n, err := r.exec(ctx, q, `UPDATE contracts SET status=?, updated_at=?, resolved_at=? WHERE id=? AND status IN ('active','assigned')`,
		string(status), ts(now), ts(now), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

func (r Repo) SetAnalyzed(ctx context.Context, q DBTX, id string, now time.Time) error {
	n, err := r.exec(ctx, q, `UPDATE contracts SET analyzed=1, updated_at=? WHERE id=?`, ts(now), id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReveals returns the skills the actor has revealed, in reveal order.
func (r Repo) ListReveals(ctx context.Context, q DBTX, contractID, actorID string) ([]domain.Skill, error) {
	rows, err := q.QueryContext(ctx, r.bind(`SELECT skill FROM contract_reveals WHERE contract_id=? AND actor_id=? ORDER BY seq`), contractID, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Skill
	for rows.Next() {
		var s domain.Skill
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) InsertReveal(ctx context.Context, q DBTX, contractID, actorID string, skill domain.Skill, seq int, now time.Time) error {
	n, err := r.exec(ctx, q, `INSERT INTO contract_reveals(contract_id,actor_id,skill,seq,revealed_at) VALUES (?,?,?,?,?)
ON CONFLICT(contract_id,actor_id,skill) DO NOTHING`, contractID, actorID, string(skill), seq, ts(now))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}
