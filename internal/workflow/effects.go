package workflow

import (
	"ares/internal/domain"
)

// EffectKind names a deferred action produced by a mission mutation.
type EffectKind string

const (
	EffectNotifyStatus     EffectKind = "notify.status"
	EffectNotifyReschedule EffectKind = "notify.reschedule"
	EffectNotifyRotate     EffectKind = "notify.rotate"
	EffectNotifyRemind     EffectKind = "notify.remind"
	EffectRelease          EffectKind = "release"
	EffectSourceClean      EffectKind = "source.clean"
	EffectSourcePurge      EffectKind = "source.purge"
)

// Effect is a side effect value object. Mission is the snapshot committed
// with the mutation that produced it.
type Effect struct {
	Kind    EffectKind     `json:"kind"`
	Mission domain.Mission `json:"mission"`
	Notice  Notice         `json:"notice"`
}

// Notice carries the extra details some effects need.
type Notice struct {
	Type      domain.Location   `json:"type,omitempty"`
	Submitter string            `json:"submitter,omitempty"`
	Comment   string            `json:"comment,omitempty"`
	Extra     []string          `json:"extra,omitempty"`
	Removed   []string          `json:"removed,omitempty"`
	Previous  *domain.Schedules `json:"previous,omitempty"`
	CC        []string          `json:"cc,omitempty"`
	Days      int               `json:"days,omitempty"`
	KeepUUID  string            `json:"keep_uuid,omitempty"`
}

func statusNotice(m domain.Mission, loc domain.Location) Effect {
	return Effect{Kind: EffectNotifyStatus, Mission: m, Notice: Notice{Type: loc}}
}
