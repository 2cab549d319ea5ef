package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ares/internal/config"
)

func TestStaticLookups(t *testing.T) {
	d := NewStatic(config.DirectoryConfig{
		TAManager: " tam ",
		Roles:     map[string][]string{"Director": {"dora"}},
		Managers:  map[string][]string{"Tia": {"mia", "dora"}},
	})
	ctx := context.Background()

	mgrs, err := d.ManagersOf(ctx, "tia")
	require.NoError(t, err)
	assert.Equal(t, []string{"mia", "dora"}, mgrs)

	members, err := d.MembersOf(ctx, "director")
	require.NoError(t, err)
	assert.Equal(t, []string{"dora"}, members)

	_, err = d.ManagersOf(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrUnknown))
}

func TestStaticUnconfiguredRoleIsEmpty(t *testing.T) {
	d := NewStatic(config.DirectoryConfig{Managers: map[string][]string{"tia": {"mia"}}})
	members, err := d.MembersOf(context.Background(), "Director")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestStaticHonoursCancelledContext(t *testing.T) {
	d := NewStatic(config.DirectoryConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.MembersOf(ctx, "Director")
	assert.ErrorIs(t, err, context.Canceled)
}
