package workflow

import (
	"strings"
	"time"

	"ares/internal/domain"
)

const (
	phaseRescheduled  = "re-scheduled"
	phaseTesterRotate = "tester-rotate"
)

// Reschedule replaces the schedule dates of origin and records who moved them.
// Status, phase and progress are unchanged.
func Reschedule(origin domain.Mission, r domain.Reschedule, now time.Time) (Result, error) {
	if err := checkAmendment(r.Type, r.Submitter); err != nil {
		return Result{}, err
	}
	sched, err := NormalizeSchedules(r.Schedules)
	if err != nil {
		return Result{}, err
	}
	m := origin.Clone()
	m.Schedules = sched
	m.History = appendHistory(m.History, now, domain.HistoryEntry{
		Author:   r.Submitter,
		Comment:  r.Comment,
		Phase:    phaseRescheduled,
		Progress: m.Progress,
	})
	prev := origin.Schedules
	return Result{
		Mission: m,
		Effects: []Effect{{
			Kind:    EffectNotifyReschedule,
			Mission: m,
			Notice: Notice{
				Type:      r.Type,
				Submitter: r.Submitter,
				Comment:   r.Comment,
				Extra:     []string{r.Submitter},
				Previous:  &prev,
			},
		}},
	}, nil
}

// Rotate replaces the tester list of origin. Records of testers that stay
// are kept; the removed testers and the submitter are copied on the notice.
func Rotate(origin domain.Mission, r domain.Rotate, now time.Time) (Result, error) {
	if err := checkAmendment(r.Type, r.Submitter); err != nil {
		return Result{}, err
	}
	if len(domain.SplitNames(r.TEName)) == 0 {
		return Result{}, &ValidationError{Field: "te_name", Reason: "at least one tester is required"}
	}
	m := origin.Clone()
	m.TEName = r.TEName
	if strings.TrimSpace(r.Current) != "" {
		m.Current = r.Current
	}
	m.History = appendHistory(m.History, now, domain.HistoryEntry{
		Author:   r.Submitter,
		Comment:  r.Comment,
		Phase:    phaseTesterRotate,
		Progress: m.Progress,
	})
	m.TEData = AssignTesters(m, domain.OrderWait)

	kept := map[string]struct{}{}
	for _, n := range m.Testers() {
		kept[n] = struct{}{}
	}
	var removed []string
	for _, n := range origin.Testers() {
		if _, ok := kept[n]; !ok {
			removed = append(removed, n)
		}
	}
	extra := append(origin.Testers(), r.Submitter)
	return Result{
		Mission: m,
		Effects: []Effect{{
			Kind:    EffectNotifyRotate,
			Mission: m,
			Notice: Notice{
				Type:      r.Type,
				Submitter: r.Submitter,
				Comment:   r.Comment,
				Extra:     extra,
				Removed:   removed,
			},
		}},
	}, nil
}

func checkAmendment(loc domain.Location, submitter string) error {
	var errs ValidationErrors
	if !loc.Valid() {
		errs.Add("type", "must be create or update")
	}
	if strings.TrimSpace(submitter) == "" {
		errs.Add("submitter", "required")
	}
	return errs.Err()
}

func appendHistory(h map[string]domain.HistoryEntry, now time.Time, e domain.HistoryEntry) map[string]domain.HistoryEntry {
	if h == nil {
		h = map[string]domain.HistoryEntry{}
	}
	h[HistoryKey(now, h)] = e
	return h
}
