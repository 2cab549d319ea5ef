package engine

import (
	"context"
	"time"

	"ares/internal/domain"
	"ares/internal/repo"
	"ares/internal/workflow"
)

// RemindReport describes one reminder round.
type RemindReport struct {
	Skipped bool              `json:"skipped"`
	Reason  string            `json:"reason,omitempty"`
	Sent    []RemindedMission `json:"sent"`
}

type RemindedMission struct {
	Mission string   `json:"mission"`
	Days    int      `json:"days"`
	CC      []string `json:"cc"`
}

// Remind queues due notices for missions that have been idle for two days or
// more. Weekends and configured holidays are skipped unless force is set.
func (e Engine) Remind(ctx context.Context, force bool) (RemindReport, error) {
	now := e.now()
	if !force {
		if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return RemindReport{Skipped: true, Reason: "weekend " + wd.String(), Sent: []RemindedMission{}}, nil
		}
		if e.config().IsHoliday(now) {
			return RemindReport{Skipped: true, Reason: "holiday " + now.Format("2006-01-02"), Sent: []RemindedMission{}}, nil
		}
	}
	missions, err := e.Repo.ListMissions(ctx, repo.MissionFilter{ExcludeStatus: domain.StatusRelease})
	if err != nil {
		return RemindReport{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return RemindReport{}, err
	}
	defer tx.Rollback()

	report := RemindReport{Sent: []RemindedMission{}}
	for _, m := range missions {
		r, due := workflow.Overdue(m, now)
		if !due {
			continue
		}
		if err := e.enqueue(ctx, tx, m, []workflow.Effect{workflow.RemindEffect(m, r)}, now); err != nil {
			return RemindReport{}, err
		}
		report.Sent = append(report.Sent, RemindedMission{Mission: m.ScriptName, Days: r.Days, CC: r.CC})
	}
	if err := tx.Commit(); err != nil {
		return RemindReport{}, err
	}
	e.logger().Info("reminders queued", "count", len(report.Sent))
	return report, nil
}
