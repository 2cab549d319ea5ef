package effects

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ares/internal/domain"
	"ares/internal/notify"
	"ares/internal/workflow"
)

type outbox struct {
	sent []notify.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg notify.Message) error {
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

type fakeRepo struct {
	calls []string
}

func (f *fakeRepo) DeleteTag(_ context.Context, project, tag string) error {
	f.calls = append(f.calls, "delete "+project+" "+tag)
	return nil
}

func (f *fakeRepo) CreateTag(_ context.Context, project, tag, message string) error {
	f.calls = append(f.calls, "create "+project+" "+tag+" "+message)
	return nil
}

func (f *fakeRepo) Readme(_ context.Context, project string) (string, error) {
	f.calls = append(f.calls, "readme "+project)
	return "# " + project, nil
}

type fakeSources struct {
	cleaned map[string]string
	purged  []string
}

func (f *fakeSources) Clean(_ context.Context, name, keep string) ([]string, error) {
	if f.cleaned == nil {
		f.cleaned = map[string]string{}
	}
	f.cleaned[name] = keep
	return []string{"old"}, nil
}

func (f *fakeSources) Purge(_ context.Context, name string) error {
	f.purged = append(f.purged, name)
	return nil
}

func sample() domain.Mission {
	return domain.Mission{
		ScriptName:    "ACME-Boot",
		Status:        domain.StatusDevelopment,
		Phase:         "development",
		Current:       "dev",
		Owner:         "olive",
		Author:        "ann",
		Developer:     "dev",
		TEName:        "tia",
		ScriptVersion: "0.1.4",
		Priority:      "P2",
	}
}

func newExecutor(o *outbox) Executor {
	return Executor{
		Composer: notify.Composer{From: "ares@example.com", Domain: "example.com"},
		Sender:   o,
	}
}

func TestStatusNotification(t *testing.T) {
	o := &outbox{}
	err := newExecutor(o).Execute(context.Background(), workflow.Effect{
		Kind:    workflow.EffectNotifyStatus,
		Mission: sample(),
		Notice:  workflow.Notice{Type: domain.LocationCreate},
	})
	require.NoError(t, err)
	require.Len(t, o.sent, 1)
	assert.Equal(t, "Script Mission Create - ACME-Boot [Development]", o.sent[0].Subject)
	assert.Equal(t, []string{"dev@example.com"}, o.sent[0].To)
	assert.Contains(t, o.sent[0].CC, "ann@example.com")
}

func TestRotateNotificationIncludesExtras(t *testing.T) {
	o := &outbox{}
	err := newExecutor(o).Execute(context.Background(), workflow.Effect{
		Kind:    workflow.EffectNotifyRotate,
		Mission: sample(),
		Notice:  workflow.Notice{Submitter: "sam", Extra: []string{"rex", "sam"}, Removed: []string{"rex"}},
	})
	require.NoError(t, err)
	require.Len(t, o.sent, 1)
	assert.Contains(t, o.sent[0].CC, "rex@example.com")
	assert.Contains(t, o.sent[0].CC, "sam@example.com")
	assert.Contains(t, o.sent[0].To, "tia@example.com")
}

func TestRemindGoesToCurrent(t *testing.T) {
	o := &outbox{}
	err := newExecutor(o).Execute(context.Background(), workflow.Effect{
		Kind:    workflow.EffectNotifyRemind,
		Mission: sample(),
		Notice:  workflow.Notice{CC: []string{"olive", "tam"}, Days: 3},
	})
	require.NoError(t, err)
	require.Len(t, o.sent, 1)
	assert.Equal(t, "Script Mission Remind - ACME-Boot [Due]", o.sent[0].Subject)
	assert.Equal(t, []string{"dev@example.com"}, o.sent[0].To)
	assert.Equal(t, []string{"olive@example.com", "tam@example.com"}, o.sent[0].CC)
	assert.Contains(t, o.sent[0].Body, "3 day(s)")
}

func TestReleaseRetagsAndAnnounces(t *testing.T) {
	o := &outbox{}
	repo := &fakeRepo{}
	x := newExecutor(o)
	x.Repository = repo
	x.Announce = notify.Envelope{To: []string{"all@corp.io"}}

	m := sample()
	m.Status = domain.StatusRelease
	require.NoError(t, x.Execute(context.Background(), workflow.Effect{Kind: workflow.EffectRelease, Mission: m}))

	assert.Equal(t, []string{
		"delete ACME-Boot 0.1.4",
		"create ACME-Boot 0.1.4 release version 0.1.4",
		"readme ACME-Boot",
	}, repo.calls)
	require.Len(t, o.sent, 1)
	assert.Equal(t, "ACME-Boot Released [v0.1.4]", o.sent[0].Subject)
	assert.Contains(t, o.sent[0].Body, "# ACME-Boot")
}

func TestReleaseWithoutAudienceSkipsMail(t *testing.T) {
	o := &outbox{}
	x := newExecutor(o)
	require.NoError(t, x.Execute(context.Background(), workflow.Effect{Kind: workflow.EffectRelease, Mission: sample()}))
	assert.Empty(t, o.sent)
}

func TestSourceEffects(t *testing.T) {
	src := &fakeSources{}
	x := newExecutor(&outbox{})
	x.Sources = src
	ctx := context.Background()

	require.NoError(t, x.Execute(ctx, workflow.Effect{Kind: workflow.EffectSourceClean, Mission: sample(), Notice: workflow.Notice{KeepUUID: "u2"}}))
	require.NoError(t, x.Execute(ctx, workflow.Effect{Kind: workflow.EffectSourcePurge, Mission: sample()}))
	assert.Equal(t, map[string]string{"ACME-Boot": "u2"}, src.cleaned)
	assert.Equal(t, []string{"ACME-Boot"}, src.purged)
}

func TestSendFailureSurfaces(t *testing.T) {
	o := &outbox{err: errors.New("relay down")}
	err := newExecutor(o).Execute(context.Background(), workflow.Effect{Kind: workflow.EffectNotifyStatus, Mission: sample()})
	require.EqualError(t, err, "relay down")
}

func TestUnknownKind(t *testing.T) {
	err := newExecutor(&outbox{}).Execute(context.Background(), workflow.Effect{Kind: "bogus"})
	require.Error(t, err)
}

func TestDecode(t *testing.T) {
	data, err := json.Marshal(workflow.Effect{Kind: workflow.EffectRelease, Mission: sample()})
	require.NoError(t, err)
	e, err := Decode(domain.SideEffect{ID: "1", Kind: "release", Payload: string(data)})
	require.NoError(t, err)
	assert.Equal(t, workflow.EffectRelease, e.Kind)
	assert.Equal(t, "ACME-Boot", e.Mission.ScriptName)

	_, err = Decode(domain.SideEffect{ID: "2", Payload: "{"})
	require.Error(t, err)
}
