package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ares/internal/domain"
)

const effectColumns = `id,mission,kind,payload,status,attempts,COALESCE(last_error,''),created_at,updated_at`

func scanEffects(rows *sql.Rows) ([]domain.SideEffect, error) {
	defer rows.Close()
	var out []domain.SideEffect
	for rows.Next() {
		var e domain.SideEffect
		if err := rows.Scan(&e.ID, &e.Mission, &e.Kind, &e.Payload, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EnqueueEffectTx writes a pending side effect in the caller's transaction.
func (r Repo) EnqueueEffectTx(ctx context.Context, tx *sql.Tx, e domain.SideEffect) error {
	if e.Status == "" {
		e.Status = domain.EffectPending
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO side_effects(id,mission,kind,payload,status,attempts,last_error,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Mission, e.Kind, e.Payload, e.Status, e.Attempts, nullable(e.LastError), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("enqueue side effect: %w", err)
	}
	return nil
}

// PendingEffects returns the oldest pending side effects.
func (r Repo) PendingEffects(ctx context.Context, limit int) ([]domain.SideEffect, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+effectColumns+` FROM side_effects WHERE status=? ORDER BY created_at, id LIMIT ?`, domain.EffectPending, limit)
	if err != nil {
		return nil, err
	}
	return scanEffects(rows)
}

// ClaimEffect moves a pending side effect to running. It reports false when
// another dispatcher got there first.
func (r Repo) ClaimEffect(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE side_effects SET status=?,updated_at=? WHERE id=? AND status=?`,
		domain.EffectRunning, now.UTC().Format(time.RFC3339), id, domain.EffectPending)
	if err != nil {
		return false, fmt.Errorf("claim side effect %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListEffects lists side effects, newest first, optionally by status or mission.
func (r Repo) ListEffects(ctx context.Context, status, mission string, limit int) ([]domain.SideEffect, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + effectColumns + ` FROM side_effects WHERE (?='' OR status=?) AND (?='' OR mission=?) ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, q, status, status, mission, mission, limit)
	if err != nil {
		return nil, err
	}
	return scanEffects(rows)
}

// FinishEffect records the outcome of an execution.
func (r Repo) FinishEffect(ctx context.Context, id string, attempts int, execErr error, now time.Time) error {
	status, msg := domain.EffectDone, ""
	if execErr != nil {
		status, msg = domain.EffectFailed, execErr.Error()
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE side_effects SET status=?,attempts=attempts+?,last_error=?,updated_at=? WHERE id=?`,
		status, attempts, nullable(msg), now.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RetryEffect puts a failed side effect back in the queue. Rows left running
// by a dispatcher that died are requeued the same way.
func (r Repo) RetryEffect(ctx context.Context, id string, now time.Time) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE side_effects SET status=?,updated_at=? WHERE id=? AND status IN (?,?)`,
		domain.EffectPending, now.UTC().Format(time.RFC3339), id, domain.EffectFailed, domain.EffectRunning)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed side effect %s: %w", id, ErrNotFound)
	}
	return nil
}
