package workflow

import (
	"time"

	"ares/internal/domain"
)

// Reminder is a due notice for a mission that has not moved.
type Reminder struct {
	Days    int
	Since   time.Time
	CC      []string
	Comment string
}

// Overdue reports whether m is due for a reminder at now. The clock starts
// at the latest history entry, or at the schedule date of the development
// and validation steps. Two idle days copy the owner; more also copy the
// TA manager.
func Overdue(m domain.Mission, now time.Time) (Reminder, bool) {
	if m.Status == domain.StatusRelease {
		return Reminder{}, false
	}
	key, last, ok := m.LatestHistory()
	if !ok {
		return Reminder{}, false
	}
	since, err := time.ParseInLocation(domain.HistoryTimeFormat, key, now.Location())
	if err != nil {
		return Reminder{}, false
	}
	switch m.Status {
	case domain.StatusDevelopment, domain.StatusValidation:
		if d := m.Schedules.For(m.Status); d != "" {
			if day, err := time.ParseInLocation("2006-01-02", d, now.Location()); err == nil {
				since = time.Date(day.Year(), day.Month(), day.Day(), since.Hour(), since.Minute(), since.Second(), 0, now.Location())
			}
		}
	}
	days := int(now.Sub(since) / (24 * time.Hour))
	var cc []string
	switch {
	case days == 2:
		cc = append(cc, m.Owner)
	case days > 2:
		cc = append(cc, m.TAManager, m.Owner)
	default:
		return Reminder{}, false
	}
	cc = append(cc, domain.SplitNames(m.Author)...)
	cc = append(cc, domain.SplitNames(m.Current)...)
	return Reminder{Days: days, Since: since, CC: dedupe(cc), Comment: last.Comment}, true
}

// RemindEffect wraps a reminder as an outbox effect.
func RemindEffect(m domain.Mission, r Reminder) Effect {
	return Effect{Kind: EffectNotifyRemind, Mission: m, Notice: Notice{CC: r.CC, Days: r.Days, Comment: r.Comment}}
}
