package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	MissionCreated     = "mission.created"
	MissionRecreated   = "mission.recreated"
	MissionUpdated     = "mission.updated"
	MissionPromoted    = "mission.promoted"
	MissionRescheduled = "mission.rescheduled"
	MissionRotated     = "mission.rotated"
	MissionDeleted     = "mission.deleted"
	MissionRolledBack  = "mission.rolled_back"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an audit event inside the mutation's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityID, actorID string, payload EventPayload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "system"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, "mission", nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
