package workflow

import (
	"ares/internal/domain"
)

// Role names a mission participant field.
type Role string

const (
	RoleRequester Role = "requester"
	RoleOwner     Role = "owner"
	RoleTAManager Role = "ta_manager"
	RoleDeveloper Role = "developer"
	RoleLTE       Role = "lte_name"
	RoleTE        Role = "te_name"
	RoleAuthor    Role = "author"
)

// ResolveRole returns the literal assignee value the role points at on m.
func ResolveRole(role Role, m domain.Mission) string {
	switch role {
	case RoleRequester:
		return m.Requester
	case RoleOwner:
		return m.Owner
	case RoleTAManager:
		return m.TAManager
	case RoleDeveloper:
		return m.Developer
	case RoleLTE:
		return m.LTEName
	case RoleTE:
		return m.TEName
	case RoleAuthor:
		return m.Author
	default:
		return ""
	}
}

// Step is the status tuple reached by a transition.
type Step struct {
	Status   domain.Status
	Phase    string
	Current  Role
	Progress int
}

// Route describes the transitions and mail roles of one status.
type Route struct {
	Next Step
	Prev Step
	Wait *Step
	CC   []Role
}

var allRoles = []Role{RoleTAManager, RoleOwner, RoleLTE, RoleTE, RoleRequester}

var neutral = Step{Status: domain.StatusCreate, Phase: "create", Current: RoleRequester, Progress: 0}

var statusTable = map[domain.Status]Route{
	domain.StatusCreate: {
		Prev: neutral,
		Next: Step{domain.StatusAssess, "assess", RoleOwner, 20},
		CC:   []Role{RoleOwner},
	},
	domain.StatusAssess: {
		Prev: Step{domain.StatusCreate, "assess-reject", RoleRequester, 0},
		Next: Step{domain.StatusReview, "assess-agree", RoleTAManager, 20},
		CC:   []Role{RoleRequester},
	},
	domain.StatusReview: {
		Prev: Step{domain.StatusAssess, "review-reject", RoleOwner, 20},
		Next: Step{domain.StatusPlan, "review-agree", RoleDeveloper, 20},
		CC:   []Role{RoleOwner, RoleLTE, RoleTE, RoleRequester},
	},
	domain.StatusPlan: {
		Prev: Step{domain.StatusAssess, "assess-change", RoleRequester, 20},
		Next: Step{domain.StatusConfirm, "confirm", RoleLTE, 20},
		CC:   allRoles,
	},
	domain.StatusConfirm: {
		Prev: Step{domain.StatusPlan, "confirm-reject", RoleDeveloper, 20},
		Next: Step{domain.StatusDevelopment, "confirm-agree", RoleDeveloper, 40},
		CC:   []Role{RoleTAManager, RoleOwner, RoleDeveloper, RoleTE, RoleRequester},
	},
	domain.StatusDevelopment: {
		Prev: Step{domain.StatusConfirm, "confirm-agree", RoleLTE, 20},
		Next: Step{domain.StatusValidation, "development", RoleTE, 50},
		CC:   allRoles,
	},
	domain.StatusValidation: {
		Prev: Step{domain.StatusDevelopment, "validation-fail", RoleDeveloper, 40},
		Wait: &Step{domain.StatusValidation, "validation-wait", RoleTE, 50},
		Next: Step{domain.StatusEditReadme, "validation-pass", RoleDeveloper, 75},
		CC:   []Role{RoleTAManager, RoleOwner, RoleDeveloper, RoleLTE, RoleRequester},
	},
	domain.StatusEditReadme: {
		Prev: Step{domain.StatusValidation, "validation-fail", RoleTE, 50},
		Next: Step{domain.StatusReadme, "edit-readme", RoleOwner, 80},
		CC:   allRoles,
	},
	domain.StatusReadme: {
		Prev: Step{domain.StatusEditReadme, "readme-change", RoleDeveloper, 75},
		Next: Step{domain.StatusPreRelease, "pre-release", RoleTAManager, 90},
		CC:   []Role{RoleTAManager, RoleDeveloper, RoleLTE, RoleTE, RoleRequester},
	},
	domain.StatusPreRelease: {
		Prev: Step{domain.StatusReadme, "release-change", RoleOwner, 80},
		Next: Step{domain.StatusRelease, "release", RoleDeveloper, 100},
		CC:   []Role{RoleOwner, RoleDeveloper, RoleLTE, RoleTE, RoleRequester},
	},
	domain.StatusRelease: {
		Prev: Step{domain.StatusPreRelease, "pre-release", RoleTAManager, 90},
		Next: Step{domain.StatusAssess, "assess", RoleOwner, 20},
		CC:   allRoles,
	},
	domain.StatusUnknown: {
		Prev: neutral,
		Next: neutral,
	},
}

// RouteFor returns the table entry of status, falling back to unknown.
func RouteFor(status domain.Status) Route {
	if r, ok := statusTable[status]; ok {
		return r
	}
	return statusTable[domain.StatusUnknown]
}

// Lookup maps (status, order) to the step it leads to. A wait order on a
// status without an idle step stays on the status itself.
func Lookup(status domain.Status, order domain.Order) Step {
	r := RouteFor(status)
	switch order {
	case domain.OrderPrev:
		return r.Prev
	case domain.OrderWait:
		if r.Wait != nil {
			return *r.Wait
		}
		return Step{Status: status, Phase: string(status)}
	default:
		return r.Next
	}
}

// MailRoles returns the cc role list of a status.
func MailRoles(status domain.Status) []Role {
	return append([]Role(nil), RouteFor(status).CC...)
}
