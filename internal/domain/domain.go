package domain

import (
	"sort"
	"strings"
)

type Status string

const (
	StatusCreate      Status = "create"
	StatusAssess      Status = "assess"
	StatusReview      Status = "review"
	StatusPlan        Status = "plan"
	StatusConfirm     Status = "confirm"
	StatusDevelopment Status = "development"
	StatusValidation  Status = "validation"
	StatusEditReadme  Status = "edit-readme"
	StatusReadme      Status = "readme"
	StatusPreRelease  Status = "pre-release"
	StatusRelease     Status = "release"
	StatusUnknown     Status = "unknown"
)

// Statuses lists the lifecycle in forward order.
var Statuses = []Status{
	StatusCreate, StatusAssess, StatusReview, StatusPlan, StatusConfirm, StatusDevelopment,
	StatusValidation, StatusEditReadme, StatusReadme, StatusPreRelease, StatusRelease,
}

// Known reports whether s is one of the lifecycle statuses.
func (s Status) Known() bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Location names the store a mission lives in.
type Location string

const (
	LocationCreate Location = "create"
	LocationUpdate Location = "update"
)

func (l Location) Valid() bool {
	return l == LocationCreate || l == LocationUpdate
}

// Order is the direction of a transition.
type Order string

const (
	OrderNext Order = "next"
	OrderPrev Order = "prev"
	OrderWait Order = "wait"
)

const (
	ValidationTrue  = "True"
	ValidationFalse = "False"

	ResultPass = "pass"
	ResultFail = "fail"
)

// HistoryTimeFormat is the layout of history and snapshot keys.
const HistoryTimeFormat = "2006-01-02 15:04:05"

type Schedules struct {
	Expected    string `json:"expected" required:"false"`
	Development string `json:"development" required:"false"`
	Validation  string `json:"validation" required:"false"`
	Release     string `json:"release" required:"false"`
}

// For returns the schedule date tied to a status, if any.
func (s Schedules) For(status Status) string {
	switch status {
	case StatusDevelopment:
		return s.Development
	case StatusValidation:
		return s.Validation
	case StatusRelease:
		return s.Release
	default:
		return ""
	}
}

type Coverage struct {
	Coverage string `json:"coverage,omitempty"`
	Note     string `json:"note,omitempty"`
}

type Flags struct {
	Kill     bool `json:"kill" required:"false"`
	Duration bool `json:"duration" required:"false"`
	Unique   bool `json:"unique" required:"false"`
}

type LogType struct {
	Name    string `json:"name" required:"false"`
	Pattern string `json:"pattern,omitempty"`
}

type TesterRecord struct {
	Name       string `json:"name" required:"false"`
	Customer   string `json:"customer,omitempty"`
	Project    string `json:"project,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Reports    string `json:"reports,omitempty"`
	Validation string `json:"validation" required:"false" enum:"True,False"`
	Result     string `json:"result,omitempty"`
	Datetime   string `json:"datetime,omitempty"`
}

// Verified reports whether the tester has signed off their validation.
func (t TesterRecord) Verified() bool {
	return t.Validation == ValidationTrue
}

type HistoryEntry struct {
	Author   string `json:"author" required:"false"`
	Comment  string `json:"comment" required:"false"`
	Phase    string `json:"phase" required:"false"`
	Progress int    `json:"progress" required:"false"`
}

// Mission is the workflow record of one test script.
type Mission struct {
	ScriptName        string                  `json:"script_name" required:"false"`
	Priority          string                  `json:"priority,omitempty" enum:"P1,P2,P3,"`
	Hard              string                  `json:"hard,omitempty"`
	Customers         []string                `json:"customers,omitempty"`
	Link              string                  `json:"link,omitempty"`
	Repository        string                  `json:"repository,omitempty"`
	Coverages         map[string]Coverage     `json:"coverages,omitempty"`
	Schedules         Schedules               `json:"schedules" required:"false"`
	Status            Status                  `json:"status" required:"false"`
	Phase             string                  `json:"phase" required:"false"`
	Current           string                  `json:"current" required:"false"`
	Progress          int                     `json:"progress" required:"false"`
	Author            string                  `json:"author" required:"false"`
	Owner             string                  `json:"owner" required:"false"`
	Requester         string                  `json:"requester" required:"false"`
	LTEName           string                  `json:"lte_name" required:"false"`
	TEName            string                  `json:"te_name" required:"false"`
	Developer         string                  `json:"developer" required:"false"`
	TAManager         string                  `json:"ta_manager" required:"false"`
	Description       string                  `json:"description,omitempty"`
	WhenToUse         string                  `json:"when_to_use,omitempty"`
	BKMs              map[string]any          `json:"bkms,omitempty"`
	Comment           string                  `json:"comment,omitempty"`
	ValidationComment string                  `json:"validation_comment,omitempty"`
	ReadmeComment     string                  `json:"readme_comment,omitempty"`
	History           map[string]HistoryEntry `json:"history,omitempty"`
	ModifiedDate      string                  `json:"modified_date,omitempty"`
	Flags             Flags                   `json:"flags" required:"false"`
	ScriptVersion     string                  `json:"script_version" required:"false"`
	TEData            map[string]TesterRecord `json:"te_data,omitempty"`
	TimeSaving        int                     `json:"time_saving,omitempty"`
	SourceUUID        string                  `json:"source_uuid,omitempty"`
	LogTypes          []LogType               `json:"log_types,omitempty"`
	Location          Location                `json:"location,omitempty" enum:"create,update,"`
	Revision          int                     `json:"revision,omitempty"`
}

// Testers splits te_name into its non-blank entries, keeping their order.
func (m Mission) Testers() []string {
	return SplitNames(m.TEName)
}

// HistoryKeys returns history keys in chronological order.
func (m Mission) HistoryKeys() []string {
	keys := make([]string, 0, len(m.History))
	for k := range m.History {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LatestHistory returns the newest history entry and its key.
func (m Mission) LatestHistory() (string, HistoryEntry, bool) {
	keys := m.HistoryKeys()
	if len(keys) == 0 {
		return "", HistoryEntry{}, false
	}
	k := keys[len(keys)-1]
	return k, m.History[k], true
}

// Clone returns a deep copy of the maps and slices held by m.
func (m Mission) Clone() Mission {
	out := m
	out.Customers = append([]string(nil), m.Customers...)
	out.LogTypes = append([]LogType(nil), m.LogTypes...)
	if m.Coverages != nil {
		out.Coverages = make(map[string]Coverage, len(m.Coverages))
		for k, v := range m.Coverages {
			out.Coverages[k] = v
		}
	}
	if m.BKMs != nil {
		out.BKMs = make(map[string]any, len(m.BKMs))
		for k, v := range m.BKMs {
			out.BKMs[k] = v
		}
	}
	if m.History != nil {
		out.History = make(map[string]HistoryEntry, len(m.History))
		for k, v := range m.History {
			out.History[k] = v
		}
	}
	if m.TEData != nil {
		out.TEData = make(map[string]TesterRecord, len(m.TEData))
		for k, v := range m.TEData {
			out.TEData[k] = v
		}
	}
	return out
}

// SplitNames splits a ;-joined name list, dropping blanks.
func SplitNames(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Reschedule moves a mission's schedule dates.
type Reschedule struct {
	Name      string    `json:"name" required:"false"`
	Comment   string    `json:"comment" required:"false"`
	Submitter string    `json:"submitter" required:"false"`
	Href      string    `json:"href,omitempty"`
	Type      Location  `json:"type" required:"false"`
	Schedules Schedules `json:"schedules" required:"false"`
}

// Rotate replaces the tester list of a mission.
type Rotate struct {
	Name      string   `json:"name" required:"false"`
	Comment   string   `json:"comment" required:"false"`
	Submitter string   `json:"submitter" required:"false"`
	Href      string   `json:"href,omitempty"`
	Type      Location `json:"type" required:"false"`
	TEName    string   `json:"te_name" required:"false"`
	Current   string   `json:"current,omitempty"`
}

// ChangelistEntry records the create-phase note behind a released version.
type ChangelistEntry struct {
	Version string       `json:"version"`
	Date    string       `json:"date"`
	Entry   HistoryEntry `json:"entry"`
}

// Snapshot is a full copy of a mission taken at release time.
type Snapshot struct {
	Key     string  `json:"key"`
	Mission Mission `json:"mission"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// SideEffect is a deferred action produced by a mission mutation.
type SideEffect struct {
	ID        string `json:"id"`
	Mission   string `json:"mission"`
	Kind      string `json:"kind"`
	Payload   string `json:"payload_json"`
	Status    string `json:"status" enum:"pending,running,done,failed"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

const (
	EffectPending = "pending"
	EffectRunning = "running"
	EffectDone    = "done"
	EffectFailed  = "failed"
)
