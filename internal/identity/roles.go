package identity

import (
	"context"
	"fmt"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
)

// CreateRole creates (or completes) a role and, when permission codes are
// given, sets its permission set.
func (s *Service) CreateRole(ctx context.Context, name, description string, permissionCodes []string) (*models.Role, error) {
	if !ValidRoleName(name) {
		return nil, fmt.Errorf("%w: invalid role name %q", ErrUnknownRole, name)
	}

	_, err := s.roles.Ensure(ctx, name, description)
	if err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}
	if len(permissionCodes) > 0 {
		if _, err := s.SetRolePermissions(ctx, name, permissionCodes); err != nil {
			return nil, err
		}
	}
	return s.findRoleWithPermissions(ctx, name)
}

// SetRolePermissions replaces a role's permission set by code. Per-node
// dynamic codes (node:read:<id>, node:write:<id>) are provisioned on first
// reference; any other unknown code is rejected.
func (s *Service) SetRolePermissions(ctx context.Context, roleName string, codes []string) (*models.Role, error) {
	role, err := s.roles.GetByName(ctx, roleName)
	if err != nil {
		return nil, err
	}

	permissionIDs, err := s.resolvePermissionCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	if err := s.roles.ReplaceRolePermissions(ctx, role.ID, permissionIDs); err != nil {
		return nil, fmt.Errorf("replace role permissions: %w", err)
	}

	// Any user holding this role may now carry different codes.
	s.snapshots.Purge()

	return s.findRoleWithPermissions(ctx, roleName)
}

// resolvePermissionCodes maps codes to permission IDs, creating dynamic
// per-node codes on demand.
func (s *Service) resolvePermissionCodes(ctx context.Context, codes []string) ([]string, error) {
	seen := make(map[string]bool, len(codes))
	unique := make([]string, 0, len(codes))
	for _, code := range codes {
		if !seen[code] {
			seen[code] = true
			unique = append(unique, code)
		}
	}

	existing, err := s.permissions.GetByCodes(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("resolve permission codes: %w", err)
	}
	idByCode := make(map[string]string, len(existing))
	for _, p := range existing {
		idByCode[p.Code] = p.ID
	}

	ids := make([]string, 0, len(unique))
	for _, code := range unique {
		id, ok := idByCode[code]
		if !ok {
			if !IsDynamicNodeCode(code) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, code)
			}
			perm, err := s.permissions.Ensure(ctx, code, "Per-node access")
			if err != nil {
				return nil, fmt.Errorf("provision %s: %w", code, err)
			}
			id = perm.ID
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Service) findRoleWithPermissions(ctx context.Context, name string) (*models.Role, error) {
	roles, err := s.roles.ListWithPermissions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		if roles[i].Name == name {
			return &roles[i], nil
		}
	}
	return nil, ErrUnknownRole
}

// ListRoles returns every role with permissions and user counts.
func (s *Service) ListRoles(ctx context.Context) ([]models.Role, error) {
	return s.roles.ListWithPermissions(ctx)
}

// ListPermissions returns every permission code, static and dynamic.
func (s *Service) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	return s.permissions.List(ctx)
}
