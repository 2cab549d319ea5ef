// Package directory answers the organisational lookups used for
// notification escalation.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ares/internal/config"
)

var ErrUnknown = errors.New("directory: unknown entry")

// Static serves managers and role members from configuration.
type Static struct {
	managers map[string][]string
	roles    map[string][]string
}

func NewStatic(cfg config.DirectoryConfig) Static {
	s := Static{
		managers: make(map[string][]string, len(cfg.Managers)),
		roles:    make(map[string][]string, len(cfg.Roles)),
	}
	for user, mgrs := range cfg.Managers {
		s.managers[strings.ToLower(strings.TrimSpace(user))] = append([]string(nil), mgrs...)
	}
	for role, members := range cfg.Roles {
		s.roles[strings.ToLower(strings.TrimSpace(role))] = append([]string(nil), members...)
	}
	return s
}

func (s Static) ManagersOf(ctx context.Context, user string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mgrs, ok := s.managers[strings.ToLower(strings.TrimSpace(user))]
	if !ok {
		return nil, fmt.Errorf("managers of %s: %w", user, ErrUnknown)
	}
	return append([]string(nil), mgrs...), nil
}

func (s Static) MembersOf(ctx context.Context, role string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// a role nobody configured has no members
	return append([]string(nil), s.roles[strings.ToLower(strings.TrimSpace(role))]...), nil
}
