package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ares/internal/domain"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newMission(t *testing.T) domain.Mission {
	t.Helper()
	res, err := Initial(domain.Mission{
		ScriptName:  "SIT-Demo",
		Author:      "rex",
		Owner:       "olive",
		Requester:   "rex",
		LTEName:     "lee",
		TEName:      "tia;tom",
		Developer:   "dev",
		TAManager:   "tam",
		Description: "collect logs",
	}, t0)
	require.NoError(t, err)
	return res.Mission
}

func TestInitialMission(t *testing.T) {
	m := newMission(t)
	assert.Equal(t, domain.StatusCreate, m.Status)
	assert.Equal(t, 0, m.Progress)
	assert.Equal(t, "0.0.1", m.ScriptVersion)
	assert.Equal(t, domain.LocationCreate, m.Location)
	require.Len(t, m.History, 1)
	assert.Equal(t, "collect logs", m.History["2026-03-02 09:00:00"].Comment)
	assert.Len(t, m.TEData, 2)
}

func TestInitialRequiresName(t *testing.T) {
	_, err := Initial(domain.Mission{}, t0)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestTransitionCreateToAssess(t *testing.T) {
	origin := newMission(t)
	res, err := Transition(origin, origin, TransitionInput{Location: domain.LocationCreate, Order: domain.OrderNext, Now: t0.Add(time.Hour)})
	require.NoError(t, err)
	m := res.Mission
	assert.Equal(t, domain.StatusAssess, m.Status)
	assert.Equal(t, "assess", m.Phase)
	assert.Equal(t, 20, m.Progress)
	assert.Equal(t, "olive", m.Current)
	assert.Equal(t, "0.0.1", m.ScriptVersion)
	assert.Len(t, m.History, 2)
	assert.False(t, res.Promote)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, EffectNotifyStatus, res.Effects[0].Kind)
}

func TestTransitionHistoryAppendOnly(t *testing.T) {
	origin := newMission(t)
	origin.Status = domain.StatusConfirm
	payload := origin.Clone()
	payload.History = nil
	payload.Comment = "looks good"
	res, err := Transition(origin, payload, TransitionInput{Location: domain.LocationCreate, Order: domain.OrderNext, Now: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Len(t, res.Mission.History, len(origin.History)+1)
	for k, v := range origin.History {
		assert.Equal(t, v, res.Mission.History[k])
	}
	entry := res.Mission.History["2026-03-02 10:00:00"]
	assert.Equal(t, "looks good", entry.Comment)
	assert.Equal(t, "confirm-agree", entry.Phase)
	assert.Equal(t, 40, entry.Progress)
}

func TestTransitionSameSecondDoesNotOverwrite(t *testing.T) {
	origin := newMission(t)
	res, err := Transition(origin, origin, TransitionInput{Location: domain.LocationCreate, Now: t0})
	require.NoError(t, err)
	assert.Len(t, res.Mission.History, 2)
	assert.Contains(t, res.Mission.History, "2026-03-02 09:00:01")
}

func TestTransitionPrevKeepsVersion(t *testing.T) {
	origin := newMission(t)
	origin.Status = domain.StatusDevelopment
	origin.ScriptVersion = "0.1.3"
	res, err := Transition(origin, origin, TransitionInput{Location: domain.LocationCreate, Order: domain.OrderPrev, Now: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "0.1.3", res.Mission.ScriptVersion)
	assert.Equal(t, domain.StatusConfirm, res.Mission.Status)
	assert.Equal(t, "lee", res.Mission.Current)
}

func TestTransitionDevelopmentBumpsMinor(t *testing.T) {
	origin := newMission(t)
	origin.Status = domain.StatusDevelopment
	origin.ScriptVersion = "0.1.3"
	res, err := Transition(origin, origin, TransitionInput{Location: domain.LocationCreate, Order: domain.OrderNext, Now: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "0.1.4", res.Mission.ScriptVersion)
	assert.Equal(t, domain.StatusValidation, res.Mission.Status)
	assert.Equal(t, "tia;tom", res.Mission.Current)
}

func TestTransitionCurrentResolvedFromPreTransitionRecord(t *testing.T) {
	origin := newMission(t)
	payload := origin.Clone()
	payload.Owner = "new-owner"
	res, err := Transition(origin, payload, TransitionInput{Location: domain.LocationCreate, Now: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "new-owner", res.Mission.Current)
	assert.Equal(t, "new-owner", res.Mission.Owner)
}

func TestTransitionReachingReleasePromotes(t *testing.T) {
	origin := newMission(t)
	origin.Status = domain.StatusPreRelease
	origin.ScriptVersion = "0.2.0"
	res, err := Transition(origin, origin, TransitionInput{Location: domain.LocationCreate, Now: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRelease, res.Mission.Status)
	assert.Equal(t, 100, res.Mission.Progress)
	assert.True(t, res.Promote)
	assert.Equal(t, domain.LocationUpdate, res.Mission.Location)
	var kinds []EffectKind
	for _, e := range res.Effects {
		kinds = append(kinds, e.Kind)
		if e.Kind == EffectRelease {
			assert.Equal(t, "0.2.0", e.Mission.ScriptVersion)
		}
	}
	assert.Equal(t, []EffectKind{EffectNotifyStatus, EffectRelease}, kinds)
}

func TestTransitionUpdateInitResetsHistory(t *testing.T) {
	origin := newMission(t)
	origin.Status = domain.StatusRelease
	origin.Location = domain.LocationUpdate
	origin.History["2026-03-01 08:00:00"] = domain.HistoryEntry{Phase: "release", Progress: 100}
	res, err := Transition(origin, origin, TransitionInput{Location: domain.LocationUpdate, Now: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.True(t, res.UpdateInit)
	require.NotNil(t, res.Backup)
	assert.Equal(t, origin, *res.Backup)
	assert.Len(t, res.Mission.History, 1)
	assert.Equal(t, domain.StatusAssess, res.Mission.Status)
	var kinds []EffectKind
	for _, e := range res.Effects {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []EffectKind{EffectNotifyStatus, EffectSourceClean}, kinds)
}

func TestTransitionRejectsBadPayload(t *testing.T) {
	origin := newMission(t)
	bad := origin.Clone()
	bad.Status = "shipping"
	_, err := Transition(origin, bad, TransitionInput{Location: domain.LocationCreate, Now: t0})
	assert.True(t, IsValidation(err))

	bad = origin.Clone()
	bad.Schedules.Release = "next week"
	_, err = Transition(origin, bad, TransitionInput{Location: domain.LocationCreate, Now: t0})
	assert.True(t, IsValidation(err))

	_, err = Transition(origin, origin, TransitionInput{Location: domain.LocationCreate, Order: domain.OrderWait, Now: t0})
	assert.True(t, IsValidation(err))

	_, err = Transition(origin, origin, TransitionInput{Location: "archive", Now: t0})
	assert.True(t, IsValidation(err))
}

func TestNormalizeSchedulesTrimsTime(t *testing.T) {
	s, err := NormalizeSchedules(domain.Schedules{Expected: "2026-04-01T10:00:00", Release: " "})
	require.NoError(t, err)
	assert.Equal(t, "2026-04-01", s.Expected)
	assert.Equal(t, "", s.Release)

	_, err = NormalizeSchedules(domain.Schedules{Development: "2026-13-40"})
	assert.Error(t, err)
}

func TestRecreateStartsFreshHistory(t *testing.T) {
	origin := newMission(t)
	origin.Phase = "assess-reject"
	origin.History["2026-03-02 09:30:00"] = domain.HistoryEntry{Phase: "assess-reject"}
	payload := domain.Mission{Comment: "fixed scope", Author: "rex"}
	res, err := Recreate(origin, payload, t0.Add(2*time.Hour))
	require.NoError(t, err)
	m := res.Mission
	assert.Equal(t, domain.StatusAssess, m.Status)
	assert.Equal(t, "create-again", m.Phase)
	assert.Equal(t, "olive", m.Current)
	require.Len(t, m.History, 1)
	assert.Equal(t, "fixed scope", m.History["2026-03-02 11:00:00"].Comment)
}

func TestMergePrecedence(t *testing.T) {
	origin := domain.Mission{ScriptName: "x", Owner: "a", Customers: []string{"ALI"}, Flags: domain.Flags{Kill: true}}
	payload := domain.Mission{Owner: "b"}
	m := Merge(origin, payload)
	assert.Equal(t, "x", m.ScriptName)
	assert.Equal(t, "b", m.Owner)
	assert.Equal(t, []string{"ALI"}, m.Customers)
	assert.True(t, m.Flags.Kill)
}
