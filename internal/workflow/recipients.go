package workflow

import (
	"context"
	"strings"

	"ares/internal/domain"
)

// DirectorRole is the directory role whose members are never escalated to.
const DirectorRole = "Director"

// Directory answers organisational lookups used for escalation.
type Directory interface {
	ManagersOf(ctx context.Context, user string) ([]string, error)
	MembersOf(ctx context.Context, role string) ([]string, error)
}

// Receivers are the primary and carbon-copy names of a notification.
type Receivers struct {
	To []string `json:"to"`
	CC []string `json:"cc"`
}

// LookupFailure reports a directory lookup that was skipped.
type LookupFailure struct {
	Name string
	Err  error
}

// Resolver computes notification receivers for missions.
type Resolver struct {
	Directory Directory
	// OnLookupError is called for every failed directory lookup.
	OnLookupError func(LookupFailure)
}

// Recipients returns the receivers of a status-change notification.
func (r Resolver) Recipients(ctx context.Context, m domain.Mission) Receivers {
	cc := r.Escalation(ctx, m)
	for _, role := range MailRoles(m.Status) {
		cc = append(cc, domain.SplitNames(ResolveRole(role, m))...)
	}
	cc = append(cc, m.Author)
	return Receivers{
		To: dedupe(domain.SplitNames(m.Current)),
		CC: dedupe(cc),
	}
}

// Associates returns the receivers of a notice that is not a status change,
// such as a reschedule or a tester rotation.
func (r Resolver) Associates(ctx context.Context, m domain.Mission, extra ...string) Receivers {
	var to []string
	for _, role := range []Role{RoleOwner, RoleLTE, RoleTE, RoleDeveloper, RoleTAManager} {
		to = append(to, domain.SplitNames(ResolveRole(role, m))...)
	}
	cc := r.Escalation(ctx, m)
	cc = append(cc, m.Owner, m.TAManager, m.Author)
	for _, e := range extra {
		cc = append(cc, domain.SplitNames(e)...)
	}
	return Receivers{To: dedupe(to), CC: dedupe(cc)}
}

// Escalation returns the managers of the mission's testers, minus directors.
// Failed lookups drop the affected names; an unknown director list excludes
// nobody.
func (r Resolver) Escalation(ctx context.Context, m domain.Mission) []string {
	if r.Directory == nil {
		return nil
	}
	directors, err := r.Directory.MembersOf(ctx, DirectorRole)
	if err != nil {
		r.report(LookupFailure{Name: DirectorRole, Err: err})
		directors = nil
	}
	excluded := make(map[string]struct{}, len(directors))
	for _, d := range directors {
		excluded[strings.TrimSpace(d)] = struct{}{}
	}
	var out []string
	for _, tester := range m.Testers() {
		managers, err := r.Directory.ManagersOf(ctx, tester)
		if err != nil {
			r.report(LookupFailure{Name: tester, Err: err})
			continue
		}
		for _, mgr := range managers {
			if _, skip := excluded[strings.TrimSpace(mgr)]; skip {
				continue
			}
			out = append(out, mgr)
		}
	}
	return dedupe(out)
}

func (r Resolver) report(f LookupFailure) {
	if r.OnLookupError != nil {
		r.OnLookupError(f)
	}
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
