package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ares/internal/domain"
)

// MissionFilter narrows ListMissions.
type MissionFilter struct {
	Location      domain.Location
	Keyword       string
	Status        domain.Status
	ExcludeStatus domain.Status
}

const missionColumns = `script_name,location,status,revision,data_json`

func scanMission(row interface{ Scan(...any) error }) (domain.Mission, error) {
	var (
		m        domain.Mission
		name     string
		location string
		status   string
		revision int
		data     string
	)
	err := row.Scan(&name, &location, &status, &revision, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return m, fmt.Errorf("decode mission %s: %w", name, err)
	}
	m.ScriptName = name
	m.Location = domain.Location(location)
	m.Status = domain.Status(status)
	m.Revision = revision
	return m, nil
}

// GetMission reads a mission from the store named by loc.
func (r Repo) GetMission(ctx context.Context, loc domain.Location, name string) (domain.Mission, error) {
	return getMission(ctx, r.DB, loc, name)
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, loc domain.Location, name string) (domain.Mission, error) {
	return getMission(ctx, tx, loc, name)
}

func getMission(ctx context.Context, q querier, loc domain.Location, name string) (domain.Mission, error) {
	if loc == "" {
		return scanMission(q.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE script_name=?`, name))
	}
	return scanMission(q.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE script_name=? AND location=?`, name, string(loc)))
}

// FindMission reads a mission from whichever store holds it.
func (r Repo) FindMission(ctx context.Context, name string) (domain.Mission, error) {
	return getMission(ctx, r.DB, "", name)
}

func (r Repo) ListMissions(ctx context.Context, f MissionFilter) ([]domain.Mission, error) {
	var where []string
	var args []any
	if f.Location != "" {
		where = append(where, "location=?")
		args = append(args, string(f.Location))
	}
	if f.Keyword != "" {
		where = append(where, "LOWER(script_name) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Keyword)+"%")
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(f.Status))
	}
	if f.ExcludeStatus != "" {
		where = append(where, "status<>?")
		args = append(args, string(f.ExcludeStatus))
	}
	q := `SELECT ` + missionColumns + ` FROM missions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY script_name"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertMissionTx stores a new mission. A name already present in either
// store is a conflict.
func (r Repo) InsertMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission, now time.Time) (domain.Mission, error) {
	if _, err := getMission(ctx, tx, "", m.ScriptName); err == nil {
		return domain.Mission{}, fmt.Errorf("mission %s already exists: %w", m.ScriptName, ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return domain.Mission{}, err
	}
	m.Revision = 1
	data, err := json.Marshal(m)
	if err != nil {
		return domain.Mission{}, err
	}
	ts := now.UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `INSERT INTO missions(script_name,location,status,revision,data_json,modified_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.ScriptName, string(m.Location), string(m.Status), m.Revision, string(data), nullable(m.ModifiedDate), ts, ts)
	if err != nil {
		return domain.Mission{}, fmt.Errorf("insert mission: %w", err)
	}
	return m, nil
}

// PutMissionTx overwrites a mission when its stored revision still equals
// expected, bumping the revision. The location column is left untouched;
// moving between stores goes through PromoteTx.
func (r Repo) PutMissionTx(ctx context.Context, tx *sql.Tx, m domain.Mission, expected int, now time.Time) (domain.Mission, error) {
	current, err := getMission(ctx, tx, "", m.ScriptName)
	if err != nil {
		return domain.Mission{}, err
	}
	if current.Revision != expected {
		return domain.Mission{}, fmt.Errorf("mission %s revision %d, expected %d: %w", m.ScriptName, current.Revision, expected, ErrConflict)
	}
	m.Location = current.Location
	m.Revision = expected + 1
	data, err := json.Marshal(m)
	if err != nil {
		return domain.Mission{}, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE missions SET status=?,revision=?,data_json=?,modified_date=?,updated_at=? WHERE script_name=? AND revision=?`,
		string(m.Status), m.Revision, string(data), nullable(m.ModifiedDate), now.UTC().Format(time.RFC3339), m.ScriptName, expected)
	if err != nil {
		return domain.Mission{}, fmt.Errorf("update mission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Mission{}, fmt.Errorf("mission %s changed concurrently: %w", m.ScriptName, ErrConflict)
	}
	return m, nil
}

// PromoteTx moves a mission from the create store to the update store.
func (r Repo) PromoteTx(ctx context.Context, tx *sql.Tx, name string, now time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET location=?,updated_at=? WHERE script_name=? AND location=?`,
		string(domain.LocationUpdate), now.UTC().Format(time.RFC3339), name, string(domain.LocationCreate))
	if err != nil {
		return fmt.Errorf("promote mission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mission %s in create store: %w", name, ErrNotFound)
	}
	return nil
}

// DeleteMissionTx removes a mission and every row derived from it.
func (r Repo) DeleteMissionTx(ctx context.Context, tx *sql.Tx, name string) error {
	for _, table := range []string{"missions", "mission_backups", "mission_snapshots", "mission_changelist"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE script_name=?`, name); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}
	return nil
}

// SaveBackupTx records the snapshot a later non-forced delete rolls back to.
func (r Repo) SaveBackupTx(ctx context.Context, tx *sql.Tx, m domain.Mission, now time.Time) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO mission_backups(script_name,data_json,created_at) VALUES (?,?,?)
ON CONFLICT(script_name) DO UPDATE SET data_json=excluded.data_json, created_at=excluded.created_at`,
		m.ScriptName, string(data), now.UTC().Format(time.RFC3339))
	return err
}

func (r Repo) GetBackup(ctx context.Context, name string) (domain.Mission, error) {
	return getBackup(ctx, r.DB, name)
}

func (r Repo) GetBackupTx(ctx context.Context, tx *sql.Tx, name string) (domain.Mission, error) {
	return getBackup(ctx, tx, name)
}

func getBackup(ctx context.Context, q querier, name string) (domain.Mission, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data_json FROM mission_backups WHERE script_name=?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Mission{}, ErrNotFound
	}
	if err != nil {
		return domain.Mission{}, err
	}
	var m domain.Mission
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return domain.Mission{}, fmt.Errorf("decode backup %s: %w", name, err)
	}
	return m, nil
}

func (r Repo) DeleteBackupTx(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM mission_backups WHERE script_name=?`, name)
	return err
}

// AppendSnapshotTx adds a dated copy to the full-history index. An existing
// key keeps its first value.
func (r Repo) AppendSnapshotTx(ctx context.Context, tx *sql.Tx, key string, m domain.Mission) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO mission_snapshots(script_name,snapshot_key,data_json) VALUES (?,?,?)
ON CONFLICT(script_name, snapshot_key) DO NOTHING`, m.ScriptName, key, string(data))
	return err
}

func (r Repo) ListSnapshots(ctx context.Context, name string) ([]domain.Snapshot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT snapshot_key,data_json FROM mission_snapshots WHERE script_name=? ORDER BY snapshot_key`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Snapshot
	for rows.Next() {
		var s domain.Snapshot
		var data string
		if err := rows.Scan(&s.Key, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &s.Mission); err != nil {
			return nil, fmt.Errorf("decode snapshot %s/%s: %w", name, s.Key, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AppendChangelistTx records the note behind a released version. An existing
// version keeps its first entry.
func (r Repo) AppendChangelistTx(ctx context.Context, tx *sql.Tx, name string, c domain.ChangelistEntry) error {
	data, err := json.Marshal(c.Entry)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO mission_changelist(script_name,version,entry_date,data_json) VALUES (?,?,?,?)
ON CONFLICT(script_name, version) DO NOTHING`, name, c.Version, c.Date, string(data))
	return err
}

func (r Repo) ListChangelist(ctx context.Context, name string) ([]domain.ChangelistEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT version,entry_date,data_json FROM mission_changelist WHERE script_name=? ORDER BY entry_date, version`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ChangelistEntry
	for rows.Next() {
		var c domain.ChangelistEntry
		var data string
		if err := rows.Scan(&c.Version, &c.Date, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &c.Entry); err != nil {
			return nil, fmt.Errorf("decode changelist %s/%s: %w", name, c.Version, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
