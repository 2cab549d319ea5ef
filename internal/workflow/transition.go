package workflow

import (
	"regexp"
	"strings"
	"time"

	"ares/internal/domain"
)

const defaultScriptVersion = "0.0.1"

var scheduleDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// TransitionInput parameterises an update transition.
type TransitionInput struct {
	Location domain.Location
	Order    domain.Order
	Now      time.Time
	Link     string
}

// Result is the outcome of a pure mission transition.
type Result struct {
	Mission domain.Mission
	// Backup is the stored record to archive before the write, if any.
	Backup     *domain.Mission
	UpdateInit bool
	Promote    bool
	Effects    []Effect
}

// Transition computes the record produced by an update of origin with payload.
// It performs no I/O: persisting the result and running its effects is up to the caller.
func Transition(origin, payload domain.Mission, in TransitionInput) (Result, error) {
	order := in.Order
	if order == "" {
		order = domain.OrderNext
	}
	if order != domain.OrderNext && order != domain.OrderPrev {
		return Result{}, &ValidationError{Field: "order", Reason: "must be next or prev"}
	}
	if !in.Location.Valid() {
		return Result{}, &ValidationError{Field: "type", Reason: "must be create or update"}
	}
	working := Merge(origin, payload)
	working.Comment = payload.Comment
	if err := ValidatePayload(&working); err != nil {
		return Result{}, err
	}
	backup := working.Clone()
	updateInit := in.Location == domain.LocationUpdate && origin.Status == domain.StatusRelease

	if order == domain.OrderNext {
		ver, err := Bump(working.Status, working.ScriptVersion)
		if err != nil {
			return Result{}, err
		}
		working.ScriptVersion = ver
	}
	working.TEData = AssignTesters(working, order)
	step := Advance(working, order)

	history := map[string]domain.HistoryEntry{}
	if !updateInit {
		for k, v := range origin.History {
			history[k] = v
		}
	}
	history[HistoryKey(in.Now, history)] = domain.HistoryEntry{
		Author:   working.Author,
		Comment:  working.Comment,
		Phase:    step.Phase,
		Progress: step.Progress,
	}

	final := working
	final.Status = step.Status
	final.Phase = step.Phase
	final.Progress = step.Progress
	final.Current = ResolveRole(step.Current, backup)
	final.History = history
	final.ModifiedDate = in.Now.Format(domain.HistoryTimeFormat)
	final.Location = in.Location
	if in.Link != "" {
		final.Link = in.Link
	}

	res := Result{Mission: final, UpdateInit: updateInit}
	if updateInit {
		snap := origin.Clone()
		res.Backup = &snap
	}
	if final.Status == domain.StatusRelease && final.Location == domain.LocationCreate {
		res.Promote = true
		res.Mission.Location = domain.LocationUpdate
	}

	res.Effects = append(res.Effects, statusNotice(res.Mission, in.Location))
	if updateInit {
		res.Effects = append(res.Effects, Effect{Kind: EffectSourceClean, Mission: res.Mission, Notice: Notice{KeepUUID: final.SourceUUID}})
	}
	if final.Status == domain.StatusRelease {
		res.Effects = append(res.Effects, Effect{Kind: EffectRelease, Mission: res.Mission, Notice: Notice{Type: in.Location}})
	}
	return res, nil
}

// Initial builds the first record of a new mission.
func Initial(payload domain.Mission, now time.Time) (Result, error) {
	m := payload.Clone()
	if strings.TrimSpace(m.ScriptName) == "" {
		return Result{}, &ValidationError{Field: "script_name", Reason: "required"}
	}
	m.ScriptName = strings.TrimSpace(m.ScriptName)
	m.Status = domain.StatusCreate
	if m.ScriptVersion == "" {
		m.ScriptVersion = defaultScriptVersion
	}
	if err := ValidatePayload(&m); err != nil {
		return Result{}, err
	}
	m.Phase = string(domain.StatusCreate)
	m.Progress = 0
	if m.Current == "" {
		m.Current = m.Owner
	}
	m.TEData = AssignTesters(m, domain.OrderNext)
	m.History = map[string]domain.HistoryEntry{
		now.Format(domain.HistoryTimeFormat): {
			Author:   m.Author,
			Comment:  m.Description,
			Phase:    m.Phase,
			Progress: m.Progress,
		},
	}
	m.ModifiedDate = now.Format(domain.HistoryTimeFormat)
	m.Location = domain.LocationCreate
	m.Revision = 0
	return Result{
		Mission: m,
		Effects: []Effect{
			statusNotice(m, domain.LocationCreate),
			{Kind: EffectSourceClean, Mission: m, Notice: Notice{KeepUUID: m.SourceUUID}},
		},
	}, nil
}

// Recreate resubmits a rejected create-store mission. The history restarts
// with a single create-again entry.
func Recreate(origin, payload domain.Mission, now time.Time) (Result, error) {
	working := Merge(origin, payload)
	working.Status = origin.Status
	if err := ValidatePayload(&working); err != nil {
		return Result{}, err
	}
	step := Lookup(domain.StatusCreate, domain.OrderNext)
	step.Phase = "create-again"

	m := working
	m.Status = step.Status
	m.Phase = step.Phase
	m.Progress = step.Progress
	m.Current = ResolveRole(step.Current, working)
	m.TEData = AssignTesters(working, domain.OrderNext)
	m.History = map[string]domain.HistoryEntry{
		now.Format(domain.HistoryTimeFormat): {
			Author:   m.Author,
			Comment:  m.Comment,
			Phase:    m.Phase,
			Progress: m.Progress,
		},
	}
	m.ModifiedDate = now.Format(domain.HistoryTimeFormat)
	m.Location = domain.LocationCreate
	return Result{
		Mission: m,
		Effects: []Effect{
			statusNotice(m, domain.LocationCreate),
			{Kind: EffectSourceClean, Mission: m, Notice: Notice{KeepUUID: m.SourceUUID}},
		},
	}, nil
}

// ValidatePayload checks the status and version and normalises schedule dates.
func ValidatePayload(m *domain.Mission) error {
	var errs ValidationErrors
	if !m.Status.Known() {
		errs.Add("status", "unknown status "+string(m.Status))
	}
	if m.ScriptVersion != "" {
		if _, err := Increment(m.ScriptVersion, false, true); err != nil {
			errs.Add("script_version", "malformed version "+m.ScriptVersion)
		}
	}
	s, err := NormalizeSchedules(m.Schedules)
	if err != nil {
		errs.Errors = append(errs.Errors, err)
	}
	m.Schedules = s
	return errs.Err()
}

// NormalizeSchedules trims every non-empty date to its YYYY-MM-DD prefix.
func NormalizeSchedules(s domain.Schedules) (domain.Schedules, error) {
	fields := []*string{&s.Expected, &s.Development, &s.Validation, &s.Release}
	names := []string{"expected", "development", "validation", "release"}
	for i, f := range fields {
		v := strings.TrimSpace(*f)
		if v == "" {
			*f = ""
			continue
		}
		date := scheduleDate.FindString(v)
		if date == "" {
			return s, &ValidationError{Field: "schedules." + names[i], Reason: "unparseable date " + v}
		}
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return s, &ValidationError{Field: "schedules." + names[i], Reason: "unparseable date " + v}
		}
		*f = date
	}
	return s, nil
}

// HistoryKey returns the history key for now, moving forward a second at a
// time until it does not collide with an existing entry.
func HistoryKey(now time.Time, existing map[string]domain.HistoryEntry) string {
	key := now.Format(domain.HistoryTimeFormat)
	for {
		if _, ok := existing[key]; !ok {
			return key
		}
		now = now.Add(time.Second)
		key = now.Format(domain.HistoryTimeFormat)
	}
}

// Merge overlays the fields set on payload onto origin. Empty strings, nil
// maps and nil slices in payload keep the origin value.
func Merge(origin, payload domain.Mission) domain.Mission {
	out := origin.Clone()
	p := payload.Clone()
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.ScriptName, p.ScriptName)
	pick(&out.Priority, p.Priority)
	pick(&out.Hard, p.Hard)
	pick(&out.Link, p.Link)
	pick(&out.Repository, p.Repository)
	pick(&out.Phase, p.Phase)
	pick(&out.Current, p.Current)
	pick(&out.Author, p.Author)
	pick(&out.Owner, p.Owner)
	pick(&out.Requester, p.Requester)
	pick(&out.LTEName, p.LTEName)
	pick(&out.TEName, p.TEName)
	pick(&out.Developer, p.Developer)
	pick(&out.TAManager, p.TAManager)
	pick(&out.Description, p.Description)
	pick(&out.WhenToUse, p.WhenToUse)
	pick(&out.Comment, p.Comment)
	pick(&out.ValidationComment, p.ValidationComment)
	pick(&out.ReadmeComment, p.ReadmeComment)
	pick(&out.ScriptVersion, p.ScriptVersion)
	pick(&out.SourceUUID, p.SourceUUID)
	pick(&out.Schedules.Expected, p.Schedules.Expected)
	pick(&out.Schedules.Development, p.Schedules.Development)
	pick(&out.Schedules.Validation, p.Schedules.Validation)
	pick(&out.Schedules.Release, p.Schedules.Release)
	if p.Status != "" {
		out.Status = p.Status
	}
	if p.Customers != nil {
		out.Customers = p.Customers
	}
	if p.Coverages != nil {
		out.Coverages = p.Coverages
	}
	if p.BKMs != nil {
		out.BKMs = p.BKMs
	}
	if p.TEData != nil {
		out.TEData = p.TEData
	}
	if p.LogTypes != nil {
		out.LogTypes = p.LogTypes
	}
	if p.Flags != (domain.Flags{}) {
		out.Flags = p.Flags
	}
	if p.TimeSaving != 0 {
		out.TimeSaving = p.TimeSaving
	}
	return out
}
