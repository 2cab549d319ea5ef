package engine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ares/internal/config"
	"ares/internal/db"
	"ares/internal/domain"
	"ares/internal/engine"
	"ares/internal/events"
	"ares/internal/migrate"
	"ares/internal/repo"
	"ares/internal/workflow"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default()
	cfg.Customers = []string{"SIT", "ACME", "GLOBEX"}
	eng := engine.New(conn, cfg)
	clock := t0
	eng.Now = func() time.Time { return clock }
	return testEnv{Engine: eng, Ctx: context.Background(), clock: &clock}
}

// tick moves the clock forward by d.
func (env testEnv) tick(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func draft(name string) domain.Mission {
	return domain.Mission{
		ScriptName:  name,
		Priority:    "P2",
		Author:      "rex",
		Owner:       "olive",
		Requester:   "rex",
		LTEName:     "lee",
		TEName:      "tia;tom",
		Developer:   "dev",
		TAManager:   "tam",
		Description: "collect boot logs",
	}
}

func (env testEnv) advance(t *testing.T, m domain.Mission, loc domain.Location, order domain.Order) domain.Mission {
	t.Helper()
	env.tick(time.Minute)
	next, err := env.Engine.UpdateMission(env.Ctx, domain.Mission{
		ScriptName: m.ScriptName,
		Status:     m.Status,
		Revision:   m.Revision,
		Comment:    "step from " + string(m.Status),
		Author:     m.Author,
	}, loc, order, "tester")
	require.NoError(t, err)
	return next
}

func (env testEnv) effectKinds(t *testing.T, mission string) []string {
	t.Helper()
	rows, err := env.Engine.Effects(env.Ctx, "", mission, 100)
	require.NoError(t, err)
	kinds := make([]string, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		kinds = append(kinds, rows[i].Kind)
	}
	return kinds
}

func TestCreateMission(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateMission(env.Ctx, draft("SIT-Boot"), "rex")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCreate, m.Status)
	assert.Equal(t, domain.LocationCreate, m.Location)
	assert.Equal(t, 1, m.Revision)
	assert.Equal(t, "0.0.1", m.ScriptVersion)
	assert.Equal(t, "olive", m.Current)
	assert.Equal(t, []string{"ACME", "GLOBEX"}, m.Customers)
	assert.Contains(t, m.Coverages, "ACME")
	assert.Equal(t, "http://ares.local/mission/create/SIT-Boot/edit", m.Link)
	require.Len(t, m.History, 1)

	stored, err := env.Engine.GetMission(env.Ctx, domain.LocationCreate, "SIT-Boot")
	require.NoError(t, err)
	assert.Equal(t, m.History, stored.History)
	assert.Equal(t, []string{string(workflow.EffectNotifyStatus), string(workflow.EffectSourceClean)}, env.effectKinds(t, "SIT-Boot"))

	_, err = env.Engine.CreateMission(env.Ctx, draft("SIT-Boot"), "rex")
	assert.ErrorIs(t, err, repo.ErrConflict)

	acme, err := env.Engine.CreateMission(env.Ctx, draft("acme-Probe"), "rex")
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME"}, acme.Customers)
}

func TestCreateToAssess(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateMission(env.Ctx, draft("SIT-Boot"), "rex")
	require.NoError(t, err)

	m = env.advance(t, m, domain.LocationCreate, domain.OrderNext)
	assert.Equal(t, domain.StatusAssess, m.Status)
	assert.Equal(t, "assess", m.Phase)
	assert.Equal(t, "olive", m.Current)
	assert.Equal(t, 20, m.Progress)
	assert.Equal(t, 2, m.Revision)
	require.Len(t, m.History, 2)
	_, latest, _ := m.LatestHistory()
	assert.Equal(t, "step from create", latest.Comment)
	assert.Equal(t, "assess", latest.Phase)
}

func TestDevelopmentBumpsVersion(t *testing.T) {
	env := newTestEnv(t)
	d := draft("SIT-Boot")
	d.ScriptVersion = "0.1.3"
	m, err := env.Engine.CreateMission(env.Ctx, d, "rex")
	require.NoError(t, err)
	for m.Status != domain.StatusDevelopment {
		m = env.advance(t, m, domain.LocationCreate, domain.OrderNext)
	}
	assert.Equal(t, "0.1.3", m.ScriptVersion)
	assert.Equal(t, "dev", m.Current)

	m = env.advance(t, m, domain.LocationCreate, domain.OrderNext)
	assert.Equal(t, domain.StatusValidation, m.Status)
	assert.Equal(t, "0.1.4", m.ScriptVersion)
	assert.Equal(t, "tia;tom", m.Current)
	assert.Equal(t, 50, m.Progress)

	// testers decide inside validation; an unverified prev only waits
	idle := env.advance(t, m, domain.LocationCreate, domain.OrderPrev)
	assert.Equal(t, domain.StatusValidation, idle.Status)
	assert.Equal(t, "validation-wait", idle.Phase)
	assert.Equal(t, "0.1.4", idle.ScriptVersion)
}

func walkToValidation(t *testing.T, env testEnv, name string) domain.Mission {
	t.Helper()
	m, err := env.Engine.CreateMission(env.Ctx, draft(name), "rex")
	require.NoError(t, err)
	for m.Status != domain.StatusValidation {
		m = env.advance(t, m, domain.LocationCreate, domain.OrderNext)
	}
	return m
}

func signOff(m domain.Mission, results map[string]string) domain.Mission {
	p := domain.Mission{ScriptName: m.ScriptName, Status: m.Status, Revision: m.Revision, Author: m.Author, TEData: map[string]domain.TesterRecord{}}
	for name, rec := range m.TEData {
		if res, ok := results[name]; ok {
			rec.Validation = domain.ValidationTrue
			rec.Result = res
			rec.Datetime = "20260302090000"
		}
		p.TEData[name] = rec
	}
	return p
}

func TestValidationOutcomes(t *testing.T) {
	env := newTestEnv(t)
	m := walkToValidation(t, env, "SIT-Boot")

	env.tick(time.Minute)
	waiting, err := env.Engine.UpdateMission(env.Ctx, signOff(m, map[string]string{"tia": domain.ResultPass}), domain.LocationCreate, domain.OrderNext, "tia")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusValidation, waiting.Status)
	assert.Equal(t, "validation-pass", waiting.Phase)

	env.tick(time.Minute)
	failed, err := env.Engine.UpdateMission(env.Ctx, signOff(waiting, map[string]string{"tia": domain.ResultPass, "tom": domain.ResultFail}), domain.LocationCreate, domain.OrderNext, "tom")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDevelopment, failed.Status)
	assert.Equal(t, "validation-fail", failed.Phase)
	assert.Equal(t, 40, failed.Progress)

	again := env.advance(t, failed, domain.LocationCreate, domain.OrderNext)
	assert.Equal(t, domain.StatusValidation, again.Status)
	assert.Equal(t, domain.ValidationTrue, again.TEData["tia"].Validation, "passed testers keep their sign-off")
	assert.Equal(t, domain.ValidationFalse, again.TEData["tom"].Validation, "failed testers must re-validate")
}

func walkToRelease(t *testing.T, env testEnv, name string) domain.Mission {
	t.Helper()
	m := walkToValidation(t, env, name)
	env.tick(time.Minute)
	m, err := env.Engine.UpdateMission(env.Ctx, signOff(m, map[string]string{"tia": domain.ResultPass, "tom": domain.ResultPass}), domain.LocationCreate, domain.OrderNext, "tia")
	require.NoError(t, err)
	require.Equal(t, domain.StatusEditReadme, m.Status)
	for m.Status != domain.StatusRelease {
		m = env.advance(t, m, domain.LocationCreate, domain.OrderNext)
	}
	return m
}

func TestReleasePromotesMission(t *testing.T) {
	env := newTestEnv(t)
	m := walkToRelease(t, env, "SIT-Boot")

	assert.Equal(t, domain.LocationUpdate, m.Location)
	assert.Equal(t, 100, m.Progress)
	assert.Equal(t, "1.0.0", m.ScriptVersion)
	assert.Equal(t, "http://ares.local/mission/update/SIT-Boot/edit", m.Link)

	_, err := env.Engine.GetMission(env.Ctx, domain.LocationCreate, "SIT-Boot")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	stored, err := env.Engine.GetMission(env.Ctx, domain.LocationUpdate, "SIT-Boot")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRelease, stored.Status)

	snaps, err := env.Engine.Snapshots(env.Ctx, "SIT-Boot")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, m.ModifiedDate, snaps[0].Key)

	changes, err := env.Engine.Changelist(env.Ctx, "SIT-Boot")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "1.0.0", changes[0].Version)
	assert.Equal(t, "create", changes[0].Entry.Phase)
	assert.Equal(t, "collect boot logs", changes[0].Entry.Comment)

	kinds := env.effectKinds(t, "SIT-Boot")
	assert.Equal(t, string(workflow.EffectRelease), kinds[len(kinds)-1])

	page, err := env.Engine.ListMissions(env.Ctx, engine.ListQuery{Location: domain.LocationCreate})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	evts, err := env.Engine.AuditLog(env.Ctx, "SIT-Boot", 1)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, events.MissionPromoted, evts[0].Type)
}

func TestUpdateCycleAndRollback(t *testing.T) {
	env := newTestEnv(t)
	released := walkToRelease(t, env, "SIT-Boot")
	releasedHistory := len(released.History)

	m := env.advance(t, released, domain.LocationUpdate, domain.OrderNext)
	assert.Equal(t, domain.StatusAssess, m.Status)
	assert.Equal(t, domain.LocationUpdate, m.Location)
	assert.Len(t, m.History, 1, "a new update cycle restarts history")
	assert.Contains(t, env.effectKinds(t, "SIT-Boot"), string(workflow.EffectSourceClean))

	m = env.advance(t, m, domain.LocationUpdate, domain.OrderNext)
	assert.Equal(t, domain.StatusReview, m.Status)

	restored, err := env.Engine.DeleteMission(env.Ctx, "SIT-Boot", domain.LocationUpdate, false, "olive")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRelease, restored.Status)
	assert.Equal(t, "1.0.0", restored.ScriptVersion)
	assert.Len(t, restored.History, releasedHistory)

	again, err := env.Engine.DeleteMission(env.Ctx, "SIT-Boot", domain.LocationUpdate, false, "olive")
	require.NoError(t, err)
	assert.Equal(t, restored.Revision, again.Revision, "without a backup the record is left as is")

	_, err = env.Engine.DeleteMission(env.Ctx, "SIT-Boot", domain.LocationUpdate, true, "olive")
	require.NoError(t, err)
	_, err = env.Engine.GetMission(env.Ctx, "", "SIT-Boot")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.Snapshots(env.Ctx, "SIT-Boot")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDeleteCreateMission(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateMission(env.Ctx, draft("SIT-Boot"), "rex")
	require.NoError(t, err)
	_, err = env.Engine.DeleteMission(env.Ctx, "SIT-Boot", domain.LocationCreate, false, "rex")
	require.NoError(t, err)

	ok, err := env.Engine.ValidateName(env.Ctx, "SIT-Boot")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, env.effectKinds(t, "SIT-Boot"), string(workflow.EffectSourcePurge))
}

func TestRejectedUpdatesLeaveRecordUntouched(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateMission(env.Ctx, draft("SIT-Boot"), "rex")
	require.NoError(t, err)

	_, err = env.Engine.UpdateMission(env.Ctx, domain.Mission{ScriptName: "SIT-Boot", ScriptVersion: "v1"}, domain.LocationCreate, domain.OrderNext, "rex")
	assert.True(t, workflow.IsValidation(err))

	_, err = env.Engine.UpdateMission(env.Ctx, domain.Mission{ScriptName: "SIT-Boot", Status: domain.StatusReview}, domain.LocationCreate, domain.OrderNext, "rex")
	assert.ErrorIs(t, err, repo.ErrConflict)

	_, err = env.Engine.UpdateMission(env.Ctx, domain.Mission{ScriptName: "SIT-Boot", Revision: 7}, domain.LocationCreate, domain.OrderNext, "rex")
	assert.ErrorIs(t, err, repo.ErrConflict)

	_, err = env.Engine.UpdateMission(env.Ctx, domain.Mission{ScriptName: "SIT-Boot"}, domain.LocationCreate, domain.OrderWait, "rex")
	assert.True(t, workflow.IsValidation(err))

	_, err = env.Engine.UpdateMission(env.Ctx, domain.Mission{ScriptName: "SIT-Boot"}, domain.LocationUpdate, domain.OrderNext, "rex")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	stored, err := env.Engine.GetMission(env.Ctx, domain.LocationCreate, "SIT-Boot")
	require.NoError(t, err)
	assert.Equal(t, m.Revision, stored.Revision)
	assert.Equal(t, m.History, stored.History)
	assert.Len(t, env.effectKinds(t, "SIT-Boot"), 2)
}

func TestModifyMissionAfterReject(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateMission(env.Ctx, draft("SIT-Boot"), "rex")
	require.NoError(t, err)
	m = env.advance(t, m, domain.LocationCreate, domain.OrderNext)
	m = env.advance(t, m, domain.LocationCreate, domain.OrderPrev)
	require.Equal(t, domain.StatusCreate, m.Status)
	require.Equal(t, "assess-reject", m.Phase)

	env.tick(time.Hour)
	p := draft("SIT-Boot2")
	p.Comment = "clarified scope"
	re, err := env.Engine.ModifyMission(env.Ctx, "SIT-Boot", p, "rex")
	require.NoError(t, err)
	assert.Equal(t, "SIT-Boot2", re.ScriptName)
	assert.Equal(t, domain.StatusAssess, re.Status)
	assert.Equal(t, "create-again", re.Phase)
	assert.Equal(t, "olive", re.Current)
	require.Len(t, re.History, 1)
	_, h, _ := re.LatestHistory()
	assert.Equal(t, "clarified scope", h.Comment)

	_, err = env.Engine.GetMission(env.Ctx, "", "SIT-Boot")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.ModifyMission(env.Ctx, "SIT-Boot", p, "rex")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRescheduleAndRotate(t *testing.T) {
	env := newTestEnv(t)
	m, err := env.Engine.CreateMission(env.Ctx, draft("SIT-Boot"), "rex")
	require.NoError(t, err)

	env.tick(time.Minute)
	m, err = env.Engine.RescheduleMission(env.Ctx, domain.Reschedule{
		Name:      "SIT-Boot",
		Submitter: "olive",
		Comment:   "lab closed",
		Type:      domain.LocationCreate,
		Schedules: domain.Schedules{Development: "2026-04-01", Release: "2026-05-01T12:00:00"},
	}, "olive")
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01", m.Schedules.Release)
	assert.Equal(t, domain.StatusCreate, m.Status)

	env.tick(time.Minute)
	m, err = env.Engine.RotateTesters(env.Ctx, domain.Rotate{
		Name:      "SIT-Boot",
		Submitter: "olive",
		Type:      domain.LocationCreate,
		TEName:    "tia;uma",
	}, "olive")
	require.NoError(t, err)
	assert.Equal(t, "tia;uma", m.TEName)
	assert.Len(t, m.TEData, 2)

	hist, err := env.Engine.History(env.Ctx, domain.LocationCreate, "SIT-Boot")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "tester-rotate", hist[0].Phase)
	assert.Equal(t, "re-scheduled", hist[1].Phase)

	rows, err := env.Engine.Effects(env.Ctx, "", "SIT-Boot", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	var eff workflow.Effect
	require.NoError(t, json.Unmarshal([]byte(rows[0].Payload), &eff))
	assert.Equal(t, workflow.EffectNotifyRotate, eff.Kind)
	assert.Equal(t, []string{"tom"}, eff.Notice.Removed)

	_, err = env.Engine.RotateTesters(env.Ctx, domain.Rotate{Name: "ghost", Submitter: "olive", Type: domain.LocationCreate, TEName: "x"}, "olive")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestListMissionsPaginates(t *testing.T) {
	env := newTestEnv(t)
	for _, n := range []string{"SIT-A", "SIT-B", "ACME-C"} {
		env.tick(time.Minute)
		_, err := env.Engine.CreateMission(env.Ctx, draft(n), "rex")
		require.NoError(t, err)
	}
	page, err := env.Engine.ListMissions(env.Ctx, engine.ListQuery{Location: domain.LocationCreate, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "ACME-C", page.Items[0].ScriptName)

	page, err = env.Engine.ListMissions(env.Ctx, engine.ListQuery{Location: domain.LocationCreate, Keyword: "sit", Page: 2, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "SIT-A", page.Items[0].ScriptName)

	page, err = env.Engine.ListMissions(env.Ctx, engine.ListQuery{Location: domain.LocationCreate, Page: 9})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestRemind(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateMission(env.Ctx, draft("SIT-Boot"), "rex")
	require.NoError(t, err)

	*env.clock = time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)
	report, err := env.Engine.Remind(env.Ctx, false)
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	report, err = env.Engine.Remind(env.Ctx, true)
	require.NoError(t, err)
	require.Len(t, report.Sent, 1)
	assert.Equal(t, 5, report.Sent[0].Days)
	assert.Equal(t, []string{"tam", "olive", "rex"}, report.Sent[0].CC)
	assert.Contains(t, env.effectKinds(t, "SIT-Boot"), string(workflow.EffectNotifyRemind))

	env.Engine.Config.Remind.Holidays = []string{"2026-03-09"}
	*env.clock = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	report, err = env.Engine.Remind(env.Ctx, false)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
}

func TestRetryEffect(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateMission(env.Ctx, draft("SIT-Boot"), "rex")
	require.NoError(t, err)
	rows, err := env.Engine.Effects(env.Ctx, domain.EffectPending, "SIT-Boot", 10)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	require.NoError(t, env.Engine.Repo.FinishEffect(env.Ctx, rows[0].ID, 3, assert.AnError, t0))
	require.NoError(t, env.Engine.RetryEffect(env.Ctx, rows[0].ID))
	assert.ErrorIs(t, env.Engine.RetryEffect(env.Ctx, rows[0].ID), repo.ErrNotFound)
}

func TestCreateDefaultsTAManager(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Directory.TAManager = "boss"
	d := draft("ACME-Lead")
	d.TAManager = ""
	m, err := env.Engine.CreateMission(env.Ctx, d, "rex")
	require.NoError(t, err)
	assert.Equal(t, "boss", m.TAManager)
}
