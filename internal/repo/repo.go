package repo

import (
	"context"
	"database/sql"
	"errors"

	"clowder/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const agentColumns = `id,name,experience_years,breed,salary,current_mission_id`

func scanAgent(scan func(dest ...any) error) (domain.Agent, error) {
	var a domain.Agent
	var missionID sql.NullInt64
	err := scan(&a.ID, &a.Name, &a.ExperienceYears, &a.Breed, &a.Salary, &missionID)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if missionID.Valid {
		a.CurrentMissionID = &missionID.Int64
	}
	return a, nil
}

func (r Repo) InsertAgent(ctx context.Context, a domain.Agent) (domain.Agent, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO agents(name,experience_years,breed,salary,current_mission_id) VALUES (?,?,?,?,NULL)`,
		a.Name, a.ExperienceYears, a.Breed, a.Salary)
	if err != nil {
		return domain.Agent{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Agent{}, err
	}
	a.ID = id
	a.CurrentMissionID = nil
	return a, nil
}

func (r Repo) GetAgent(ctx context.Context, id int64) (domain.Agent, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=?`, id)
	return scanAgent(row.Scan)
}

func (r Repo) GetAgentTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Agent, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id=?`, id)
	return scanAgent(row.Scan)
}

// ListAgents returns agents in creation order with skip/limit paging.
func (r Repo) ListAgents(ctx context.Context, skip, limit int) ([]domain.Agent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY id ASC LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpdateAgentProfile overwrites the updatable agent fields. The
// current mission reference is deliberately outside the whitelist.
func (r Repo) UpdateAgentProfile(ctx context.Context, a domain.Agent) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE agents SET name=?, experience_years=?, breed=?, salary=? WHERE id=?`,
		a.Name, a.ExperienceYears, a.Breed, a.Salary, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteAgent(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM agents WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignMissionTx sets the agent's current mission only if none is set.
// Returns false when the row was not updated, i.e. a concurrent
// assignment won the race after the caller's check.
func (r Repo) AssignMissionTx(ctx context.Context, tx *sql.Tx, agentID, missionID int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE agents SET current_mission_id=? WHERE id=? AND current_mission_id IS NULL`, missionID, agentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListAgentsByMission returns agents whose current mission is missionID.
// Always a fresh query; mission reads recompute this set on demand.
func (r Repo) ListAgentsByMission(ctx context.Context, missionID int64) ([]domain.Agent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE current_mission_id=? ORDER BY id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountAgentsByMissionTx(ctx context.Context, tx *sql.Tx, missionID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM agents WHERE current_mission_id=?`, missionID).Scan(&n)
	return n, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
