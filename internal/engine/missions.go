package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"ares/internal/domain"
	"ares/internal/events"
	"ares/internal/repo"
	"ares/internal/workflow"
)

// CreateMission stores a new mission in the create store.
func (e Engine) CreateMission(ctx context.Context, payload domain.Mission, actorID string) (domain.Mission, error) {
	name := strings.TrimSpace(payload.ScriptName)
	now := e.now()
	e.prepareNew(&payload, name)
	res, err := workflow.Initial(payload, now)
	if err != nil {
		return domain.Mission{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.InsertMissionTx(ctx, tx, res.Mission, now)
	if err != nil {
		return domain.Mission{}, err
	}
	if err := e.enqueue(ctx, tx, m, res.Effects, now); err != nil {
		return domain.Mission{}, err
	}
	if err := e.Events.Append(ctx, tx, events.MissionCreated, m.ScriptName, actorID, events.EventPayload{
		"status":  m.Status,
		"version": m.ScriptVersion,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	e.logger().Info("mission created", "mission", m.ScriptName, "actor", actorID)
	return m, nil
}

// ModifyMission resubmits a create-store mission, optionally under a new name.
func (e Engine) ModifyMission(ctx context.Context, originName string, payload domain.Mission, actorID string) (domain.Mission, error) {
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	origin, err := e.Repo.GetMissionTx(ctx, tx, domain.LocationCreate, originName)
	if err != nil {
		return domain.Mission{}, notFound(domain.LocationCreate, originName, err)
	}
	if payload.Revision != 0 && payload.Revision != origin.Revision {
		return domain.Mission{}, checkRevision(origin, domain.Mission{Revision: payload.Revision})
	}
	name := strings.TrimSpace(payload.ScriptName)
	if name == "" {
		name = origin.ScriptName
	}
	e.prepareNew(&payload, name)
	payload.Status = ""
	res, err := workflow.Recreate(origin, payload, now)
	if err != nil {
		return domain.Mission{}, err
	}

	var m domain.Mission
	if name != origin.ScriptName {
		if err := e.Repo.DeleteMissionTx(ctx, tx, origin.ScriptName); err != nil {
			return domain.Mission{}, err
		}
		m, err = e.Repo.InsertMissionTx(ctx, tx, res.Mission, now)
	} else {
		m, err = e.Repo.PutMissionTx(ctx, tx, res.Mission, origin.Revision, now)
	}
	if err != nil {
		return domain.Mission{}, err
	}
	if err := e.enqueue(ctx, tx, m, res.Effects, now); err != nil {
		return domain.Mission{}, err
	}
	if err := e.Events.Append(ctx, tx, events.MissionRecreated, m.ScriptName, actorID, events.EventPayload{
		"origin": origin.ScriptName,
		"status": m.Status,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// prepareNew fills the fields derived from the script name.
func (e Engine) prepareNew(m *domain.Mission, name string) {
	m.ScriptName = name
	m.Customers = e.CustomersFor(name)
	coverages := make(map[string]domain.Coverage, len(m.Customers))
	for _, c := range m.Customers {
		coverages[c] = m.Coverages[c]
	}
	m.Coverages = coverages
	m.Link = e.Link(domain.LocationCreate, name)
	if strings.TrimSpace(m.TAManager) == "" {
		m.TAManager = e.config().Directory.TAManager
	}
}

// UpdateMission moves a mission one step in the given direction.
func (e Engine) UpdateMission(ctx context.Context, payload domain.Mission, loc domain.Location, order domain.Order, actorID string) (domain.Mission, error) {
	name := strings.TrimSpace(payload.ScriptName)
	if name == "" {
		return domain.Mission{}, &workflow.ValidationError{Field: "script_name", Reason: "required"}
	}
	if !loc.Valid() {
		return domain.Mission{}, &workflow.ValidationError{Field: "type", Reason: "must be create or update"}
	}
	payload.ScriptName = name
	now := e.now()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	origin, err := e.Repo.GetMissionTx(ctx, tx, loc, name)
	if err != nil {
		return domain.Mission{}, notFound(loc, name, err)
	}
	if err := checkRevision(origin, payload); err != nil {
		return domain.Mission{}, err
	}
	res, err := workflow.Transition(origin, payload, workflow.TransitionInput{
		Location: loc,
		Order:    order,
		Now:      now,
		Link:     e.Link(loc, name),
	})
	if err != nil {
		return domain.Mission{}, err
	}
	if res.Promote {
		res.Mission.Link = e.Link(domain.LocationUpdate, name)
	}

	if res.Backup != nil {
		if err := e.Repo.SaveBackupTx(ctx, tx, *res.Backup, now); err != nil {
			return domain.Mission{}, err
		}
	}
	m, err := e.Repo.PutMissionTx(ctx, tx, res.Mission, origin.Revision, now)
	if err != nil {
		return domain.Mission{}, err
	}
	if res.Promote {
		if err := e.Repo.PromoteTx(ctx, tx, name, now); err != nil {
			return domain.Mission{}, err
		}
		m.Location = domain.LocationUpdate
	}
	if m.Status == domain.StatusRelease {
		if err := e.recordRelease(ctx, tx, m); err != nil {
			return domain.Mission{}, err
		}
	}
	if err := e.enqueue(ctx, tx, m, res.Effects, now); err != nil {
		return domain.Mission{}, err
	}
	if err := e.Events.Append(ctx, tx, events.MissionUpdated, name, actorID, events.EventPayload{
		"from":     origin.Status,
		"to":       m.Status,
		"phase":    m.Phase,
		"order":    order,
		"location": loc,
		"version":  m.ScriptVersion,
	}); err != nil {
		return domain.Mission{}, err
	}
	if res.Promote {
		if err := e.Events.Append(ctx, tx, events.MissionPromoted, name, actorID, events.EventPayload{"version": m.ScriptVersion}); err != nil {
			return domain.Mission{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	e.logger().Info("mission updated", "mission", name, "from", origin.Status, "to", m.Status, "phase", m.Phase, "actor", actorID)
	return m, nil
}

// recordRelease snapshots a released mission and notes its changelist entry:
// the latest history entry written in a create phase.
func (e Engine) recordRelease(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	key := m.ModifiedDate
	if key == "" {
		key = e.now().Format(domain.HistoryTimeFormat)
	}
	if err := e.Repo.AppendSnapshotTx(ctx, tx, key, m); err != nil {
		return err
	}
	keys := m.HistoryKeys()
	for i := len(keys) - 1; i >= 0; i-- {
		h := m.History[keys[i]]
		if !strings.Contains(h.Phase, "create") {
			continue
		}
		return e.Repo.AppendChangelistTx(ctx, tx, m.ScriptName, domain.ChangelistEntry{
			Version: m.ScriptVersion,
			Date:    keys[i],
			Entry:   h,
		})
	}
	return nil
}

// RescheduleMission replaces a mission's schedule dates.
func (e Engine) RescheduleMission(ctx context.Context, r domain.Reschedule, actorID string) (domain.Mission, error) {
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	if !r.Type.Valid() {
		return domain.Mission{}, &workflow.ValidationError{Field: "type", Reason: "must be create or update"}
	}
	origin, err := e.Repo.GetMissionTx(ctx, tx, r.Type, r.Name)
	if err != nil {
		return domain.Mission{}, notFound(r.Type, r.Name, err)
	}
	res, err := workflow.Reschedule(origin, r, now)
	if err != nil {
		return domain.Mission{}, err
	}
	m, err := e.Repo.PutMissionTx(ctx, tx, res.Mission, origin.Revision, now)
	if err != nil {
		return domain.Mission{}, err
	}
	if err := e.enqueue(ctx, tx, m, res.Effects, now); err != nil {
		return domain.Mission{}, err
	}
	if err := e.Events.Append(ctx, tx, events.MissionRescheduled, m.ScriptName, actorID, events.EventPayload{
		"previous":  origin.Schedules,
		"schedules": m.Schedules,
		"submitter": r.Submitter,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// RotateTesters replaces a mission's tester list.
func (e Engine) RotateTesters(ctx context.Context, r domain.Rotate, actorID string) (domain.Mission, error) {
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	if !r.Type.Valid() {
		return domain.Mission{}, &workflow.ValidationError{Field: "type", Reason: "must be create or update"}
	}
	origin, err := e.Repo.GetMissionTx(ctx, tx, r.Type, r.Name)
	if err != nil {
		return domain.Mission{}, notFound(r.Type, r.Name, err)
	}
	res, err := workflow.Rotate(origin, r, now)
	if err != nil {
		return domain.Mission{}, err
	}
	m, err := e.Repo.PutMissionTx(ctx, tx, res.Mission, origin.Revision, now)
	if err != nil {
		return domain.Mission{}, err
	}
	if err := e.enqueue(ctx, tx, m, res.Effects, now); err != nil {
		return domain.Mission{}, err
	}
	if err := e.Events.Append(ctx, tx, events.MissionRotated, m.ScriptName, actorID, events.EventPayload{
		"from":      origin.TEName,
		"to":        m.TEName,
		"submitter": r.Submitter,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// DeleteMission removes a create-store mission, or any mission when forced.
// Without force an update-store mission is rolled back to the backup taken
// when its last update cycle started; with no backup it is left unchanged.
func (e Engine) DeleteMission(ctx context.Context, name string, loc domain.Location, force bool, actorID string) (domain.Mission, error) {
	if !loc.Valid() {
		return domain.Mission{}, &workflow.ValidationError{Field: "type", Reason: "must be create or update"}
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMissionTx(ctx, tx, loc, name)
	if err != nil {
		return domain.Mission{}, notFound(loc, name, err)
	}

	if loc == domain.LocationCreate || force {
		if err := e.Repo.DeleteMissionTx(ctx, tx, name); err != nil {
			return domain.Mission{}, err
		}
		if err := e.enqueue(ctx, tx, m, []workflow.Effect{{Kind: workflow.EffectSourcePurge}}, now); err != nil {
			return domain.Mission{}, err
		}
		if err := e.Events.Append(ctx, tx, events.MissionDeleted, name, actorID, events.EventPayload{
			"location": loc,
			"force":    force,
		}); err != nil {
			return domain.Mission{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Mission{}, err
		}
		e.logger().Info("mission deleted", "mission", name, "force", force, "actor", actorID)
		return m, nil
	}

	backup, err := e.Repo.GetBackupTx(ctx, tx, name)
	if errors.Is(err, repo.ErrNotFound) {
		return m, nil
	}
	if err != nil {
		return domain.Mission{}, err
	}
	restored, err := e.Repo.PutMissionTx(ctx, tx, backup, m.Revision, now)
	if err != nil {
		return domain.Mission{}, err
	}
	if err := e.Repo.DeleteBackupTx(ctx, tx, name); err != nil {
		return domain.Mission{}, err
	}
	if err := e.Events.Append(ctx, tx, events.MissionRolledBack, name, actorID, events.EventPayload{
		"from": m.Status,
		"to":   restored.Status,
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	e.logger().Info("mission rolled back", "mission", name, "status", restored.Status, "actor", actorID)
	return restored, nil
}
