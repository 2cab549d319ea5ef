// Package effects performs the side effects recorded by mission mutations.
package effects

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"

	"ares/internal/domain"
	"ares/internal/gitrepo"
	"ares/internal/logging"
	"ares/internal/notify"
	"ares/internal/workflow"
)

// Sources is the slice of the source cache the executor needs.
type Sources interface {
	Clean(ctx context.Context, name, keep string) ([]string, error)
	Purge(ctx context.Context, name string) error
}

// Executor dispatches an effect to mail, source control or the source cache.
type Executor struct {
	Resolver   workflow.Resolver
	Composer   notify.Composer
	Sender     notify.Sender
	Repository gitrepo.Repository
	Sources    Sources
	// Announce receives release announcements.
	Announce notify.Envelope
	Logger   *log.Logger
}

// Decode reads the effect stored in an outbox row.
func Decode(se domain.SideEffect) (workflow.Effect, error) {
	var e workflow.Effect
	if err := json.Unmarshal([]byte(se.Payload), &e); err != nil {
		return e, fmt.Errorf("decode side effect %s: %w", se.ID, err)
	}
	if e.Kind == "" {
		e.Kind = workflow.EffectKind(se.Kind)
	}
	return e, nil
}

// Execute performs one effect.
func (x Executor) Execute(ctx context.Context, e workflow.Effect) error {
	m := e.Mission
	switch e.Kind {
	case workflow.EffectNotifyStatus:
		rcv := x.Resolver.Recipients(ctx, m)
		return x.send(ctx, x.Composer.Status, notify.Envelope{To: rcv.To, CC: rcv.CC}, notify.Content{
			Mission: m,
			Type:    e.Notice.Type,
			Comment: m.Comment,
		})
	case workflow.EffectNotifyReschedule:
		rcv := x.Resolver.Associates(ctx, m, e.Notice.Extra...)
		return x.send(ctx, x.Composer.Reschedule, notify.Envelope{To: rcv.To, CC: rcv.CC}, notify.Content{
			Mission:   m,
			Type:      e.Notice.Type,
			Submitter: e.Notice.Submitter,
			Comment:   e.Notice.Comment,
			Previous:  e.Notice.Previous,
		})
	case workflow.EffectNotifyRotate:
		rcv := x.Resolver.Associates(ctx, m, e.Notice.Extra...)
		return x.send(ctx, x.Composer.Rotate, notify.Envelope{To: rcv.To, CC: rcv.CC}, notify.Content{
			Mission:   m,
			Type:      e.Notice.Type,
			Submitter: e.Notice.Submitter,
			Comment:   e.Notice.Comment,
			Removed:   e.Notice.Removed,
		})
	case workflow.EffectNotifyRemind:
		return x.send(ctx, x.Composer.Remind, notify.Envelope{To: domain.SplitNames(m.Current), CC: e.Notice.CC}, notify.Content{
			Mission: m,
			Comment: e.Notice.Comment,
			Days:    e.Notice.Days,
		})
	case workflow.EffectRelease:
		return x.release(ctx, m)
	case workflow.EffectSourceClean:
		if x.Sources == nil {
			return nil
		}
		removed, err := x.Sources.Clean(ctx, m.ScriptName, e.Notice.KeepUUID)
		if err != nil {
			return err
		}
		if len(removed) > 0 {
			logging.Or(x.Logger).Debug("source cache cleaned", "mission", m.ScriptName, "removed", len(removed))
		}
		return nil
	case workflow.EffectSourcePurge:
		if x.Sources == nil {
			return nil
		}
		return x.Sources.Purge(ctx, m.ScriptName)
	default:
		return fmt.Errorf("unknown side effect kind %q", e.Kind)
	}
}

// release re-tags the repository with the released version and announces it.
func (x Executor) release(ctx context.Context, m domain.Mission) error {
	repo := x.Repository
	if repo == nil {
		repo = gitrepo.Disabled{}
	}
	version := m.ScriptVersion
	if err := repo.DeleteTag(ctx, m.ScriptName, version); err != nil {
		return fmt.Errorf("delete tag %s: %w", version, err)
	}
	if err := repo.CreateTag(ctx, m.ScriptName, version, "release version "+version); err != nil {
		return fmt.Errorf("create tag %s: %w", version, err)
	}
	readme, err := repo.Readme(ctx, m.ScriptName)
	if err != nil {
		return fmt.Errorf("read README: %w", err)
	}
	if len(x.Announce.To)+len(x.Announce.CC) == 0 {
		return nil
	}
	return x.send(ctx, x.Composer.Release, x.Announce, notify.Content{Mission: m, Readme: readme})
}

func (x Executor) send(ctx context.Context, compose func(notify.Envelope, notify.Content) (notify.Message, error), env notify.Envelope, data notify.Content) error {
	msg, err := compose(env, data)
	if err != nil {
		return err
	}
	if x.Sender == nil {
		return nil
	}
	return x.Sender.Send(ctx, msg)
}
