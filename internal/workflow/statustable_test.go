package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ares/internal/domain"
)

func TestLookupProgressCheckpoints(t *testing.T) {
	cases := []struct {
		status   domain.Status
		order    domain.Order
		want     domain.Status
		progress int
	}{
		{domain.StatusCreate, domain.OrderNext, domain.StatusAssess, 20},
		{domain.StatusAssess, domain.OrderNext, domain.StatusReview, 20},
		{domain.StatusReview, domain.OrderNext, domain.StatusPlan, 20},
		{domain.StatusPlan, domain.OrderNext, domain.StatusConfirm, 20},
		{domain.StatusConfirm, domain.OrderNext, domain.StatusDevelopment, 40},
		{domain.StatusDevelopment, domain.OrderNext, domain.StatusValidation, 50},
		{domain.StatusDevelopment, domain.OrderPrev, domain.StatusConfirm, 20},
		{domain.StatusValidation, domain.OrderNext, domain.StatusEditReadme, 75},
		{domain.StatusValidation, domain.OrderPrev, domain.StatusDevelopment, 40},
		{domain.StatusValidation, domain.OrderWait, domain.StatusValidation, 50},
		{domain.StatusEditReadme, domain.OrderNext, domain.StatusReadme, 80},
		{domain.StatusReadme, domain.OrderNext, domain.StatusPreRelease, 90},
		{domain.StatusPreRelease, domain.OrderNext, domain.StatusRelease, 100},
		{domain.StatusAssess, domain.OrderPrev, domain.StatusCreate, 0},
	}
	for _, tc := range cases {
		step := Lookup(tc.status, tc.order)
		assert.Equal(t, tc.want, step.Status, "%s/%s", tc.status, tc.order)
		assert.Equal(t, tc.progress, step.Progress, "%s/%s", tc.status, tc.order)
	}
}

func TestLookupUnknownStatusIsNeutral(t *testing.T) {
	next := Lookup("bogus", domain.OrderNext)
	prev := Lookup("bogus", domain.OrderPrev)
	assert.Equal(t, domain.StatusCreate, next.Status)
	assert.Equal(t, 0, next.Progress)
	assert.Equal(t, next, prev)
	assert.Empty(t, MailRoles("bogus"))
}

func TestLookupWaitOutsideValidationStaysPut(t *testing.T) {
	step := Lookup(domain.StatusReadme, domain.OrderWait)
	assert.Equal(t, domain.StatusReadme, step.Status)
}

func TestEveryStatusHasRoute(t *testing.T) {
	for _, st := range domain.Statuses {
		_, ok := statusTable[st]
		require.True(t, ok, "missing route for %s", st)
		assert.NotEmpty(t, MailRoles(st), "missing mail roles for %s", st)
	}
}

func TestResolveRole(t *testing.T) {
	m := domain.Mission{Owner: "olive", TEName: "tia;tom", TAManager: "tam", Requester: "rex", Developer: "dev", LTEName: "lee", Author: "ann"}
	assert.Equal(t, "olive", ResolveRole(RoleOwner, m))
	assert.Equal(t, "tia;tom", ResolveRole(RoleTE, m))
	assert.Equal(t, "tam", ResolveRole(RoleTAManager, m))
	assert.Equal(t, "rex", ResolveRole(RoleRequester, m))
	assert.Equal(t, "dev", ResolveRole(RoleDeveloper, m))
	assert.Equal(t, "lee", ResolveRole(RoleLTE, m))
	assert.Equal(t, "ann", ResolveRole(RoleAuthor, m))
	assert.Equal(t, "", ResolveRole("nobody", m))
}
