package repo

import (
	"context"
	"database/sql"

	"clowder/internal/domain"
)

func scanMission(scan func(dest ...any) error) (domain.Mission, error) {
	var m domain.Mission
	err := scan(&m.ID, &m.Description, &m.IsCompleted)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) InsertMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO missions(description,is_completed) VALUES (?,?)`, m.Description, m.IsCompleted)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) InsertTargetTx(ctx context.Context, tx *sql.Tx, t domain.Target) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO targets(mission_id,name,country,notes,is_completed) VALUES (?,?,?,?,?)`,
		t.MissionID, t.Name, t.Country, nullable(t.Notes), t.IsCompleted)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetMission(ctx context.Context, id int64) (domain.Mission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,description,is_completed FROM missions WHERE id=?`, id)
	return scanMission(row.Scan)
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Mission, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,description,is_completed FROM missions WHERE id=?`, id)
	return scanMission(row.Scan)
}

// ListMissions returns missions in creation order with skip/limit
// paging. Targets and assigned agents are attached by the caller.
func (r Repo) ListMissions(ctx context.Context, skip, limit int) ([]domain.Mission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,description,is_completed FROM missions ORDER BY id ASC LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// UpdateMissionTx overwrites the updatable mission fields.
func (r Repo) UpdateMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET description=?, is_completed=? WHERE id=?`, m.Description, m.IsCompleted, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMissionTx removes the mission; target rows go with it via the
// ON DELETE CASCADE foreign key.
func (r Repo) DeleteMissionTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM missions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTargets(rows *sql.Rows) ([]domain.Target, error) {
	defer rows.Close()
	var res []domain.Target
	for rows.Next() {
		var t domain.Target
		var notes sql.NullString
		if err := rows.Scan(&t.ID, &t.MissionID, &t.Name, &t.Country, &notes, &t.IsCompleted); err != nil {
			return nil, err
		}
		if notes.Valid {
			t.Notes = notes.String
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTargets(ctx context.Context, missionID int64) ([]domain.Target, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,mission_id,name,country,notes,is_completed FROM targets WHERE mission_id=? ORDER BY id ASC`, missionID)
	if err != nil {
		return nil, err
	}
	return scanTargets(rows)
}

// CountTargets reports how many targets a mission owns.
func (r Repo) CountTargets(ctx context.Context, missionID int64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM targets WHERE mission_id=?`, missionID).Scan(&n)
	return n, err
}
