package workflow

import (
	"sort"

	"ares/internal/domain"
)

// AssignTesters rebuilds te_data for the testers listed in te_name.
// Testers no longer listed are dropped and new ones start blank. When a
// mission moves from development into validation, testers that have not
// passed are reset to unverified.
func AssignTesters(m domain.Mission, order domain.Order) map[string]domain.TesterRecord {
	target := Lookup(m.Status, order).Status
	reentry := m.Status == domain.StatusDevelopment && target == domain.StatusValidation

	out := make(map[string]domain.TesterRecord)
	for _, name := range m.Testers() {
		rec, ok := m.TEData[name]
		if !ok {
			rec = domain.TesterRecord{Validation: domain.ValidationFalse}
		}
		if reentry && rec.Result != domain.ResultPass {
			rec.Validation = domain.ValidationFalse
		}
		if rec.Validation == "" {
			rec.Validation = domain.ValidationFalse
		}
		rec.Name = name
		out[name] = rec
	}
	return out
}

// Advance decides the step a mission moves to. Outside validation it is a
// table lookup. In validation the tester records decide between next, prev
// and the wait step.
func Advance(m domain.Mission, order domain.Order) Step {
	if m.Status != domain.StatusValidation {
		step := Lookup(m.Status, order)
		if m.Phase == "assess-reject" {
			step.Phase = "create-again"
		}
		return step
	}

	names := m.Testers()
	var verified []domain.TesterRecord
	for _, name := range names {
		rec, ok := m.TEData[name]
		if ok && rec.Verified() {
			verified = append(verified, rec)
		}
	}

	if len(verified) == len(names) {
		for _, rec := range verified {
			if rec.Result == domain.ResultFail {
				return Lookup(domain.StatusValidation, domain.OrderPrev)
			}
		}
		return Lookup(domain.StatusValidation, domain.OrderNext)
	}

	step := Lookup(domain.StatusValidation, domain.OrderWait)
	if result := waitResult(m, names, verified); result != "" {
		step.Phase = "validation-" + result
	}
	return step
}

// waitResult picks the result shown while validation is incomplete: the
// author's own record first, then the newest verified result, then the
// newest result of any tester.
func waitResult(m domain.Mission, names []string, verified []domain.TesterRecord) string {
	for _, rec := range verified {
		if rec.Name == m.Author {
			return rec.Result
		}
	}
	if r := latestResult(verified); r != "" {
		return r
	}
	all := make([]domain.TesterRecord, 0, len(names))
	for _, name := range names {
		if rec, ok := m.TEData[name]; ok {
			all = append(all, rec)
		}
	}
	return latestResult(all)
}

func latestResult(recs []domain.TesterRecord) string {
	withResult := make([]domain.TesterRecord, 0, len(recs))
	for _, r := range recs {
		if r.Result != "" {
			withResult = append(withResult, r)
		}
	}
	sort.SliceStable(withResult, func(i, j int) bool {
		return withResult[i].Datetime > withResult[j].Datetime
	})
	if len(withResult) == 0 {
		return ""
	}
	return withResult[0].Result
}
