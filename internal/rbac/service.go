package rbac

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/notarium/notarium/internal/shared"
)

// ErrUnknownRole indicates the actor role has no grants.
var ErrUnknownRole = errors.New("rbac: unknown role")

// Service resolves permissions from a static role policy.
type Service struct {
	grants map[string][]string
}

// NewService constructs a Service from role grants. Role names are case-insensitive.
func NewService(grants map[string][]string) *Service {
	normalized := make(map[string][]string, len(grants))
	for role, perms := range grants {
		key := strings.ToUpper(strings.TrimSpace(role))
		normalized[key] = normalizePermissions(append(normalized[key], perms...))
	}
	return &Service{grants: normalized}
}

// NewDefaultService uses the standard office policy.
func NewDefaultService() *Service {
	return NewService(shared.DefaultRoleGrants())
}

// EffectivePermissions returns the permissions granted to the actor's role.
func (s *Service) EffectivePermissions(_ context.Context, actor shared.Actor) ([]string, error) {
	if s == nil {
		return nil, errors.New("rbac: service not initialised")
	}
	perms, ok := s.grants[strings.ToUpper(strings.TrimSpace(actor.Role))]
	if !ok {
		return nil, ErrUnknownRole
	}
	return append([]string(nil), perms...), nil
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(context.Context) ([]Role, error) {
	roles := make([]Role, 0, len(s.grants))
	for name, perms := range s.grants {
		sorted := append([]string(nil), perms...)
		sort.Strings(sorted)
		roles = append(roles, Role{Name: name, Permissions: sorted})
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}
