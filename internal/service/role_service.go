package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"backend/internal/catalog"
	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Permissions []string `json:"permissions" binding:"required"` // Permission keys
}

// UpdateRoleRequest is a partial update: empty Name/Description leave the
// field untouched; a nil Permissions slice leaves grants untouched, an empty
// one is rejected.
type UpdateRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	DisplayName string               `json:"display_name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	UserCount   int64                `json:"user_count"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, actorID string, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, actorID, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, actorID, id string) error
	UpdateRolePermission(ctx context.Context, actorID, roleID, permissionKey string, granted bool) (*RoleResponse, error)
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	GetPermissionKeysByRoleName(ctx context.Context, roleName string) ([]string, error)
	SeedDefaults(ctx context.Context) error
}

type roleService struct {
	roleRepo  repository.RoleRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
}

func NewRoleService(
	roleRepo repository.RoleRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) RoleService {
	return &roleService{
		roleRepo:  roleRepo,
		auditRepo: auditRepo,
		txManager: txManager,
	}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roleRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	counts, err := s.roleRepo.CountUsersByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users per role: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		r.UserCount = counts[r.Name]
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.roleRepo.FindByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("role not found: %w", err)
	}

	counts, err := s.roleRepo.CountUsersByRole(ctx)
	if err == nil {
		role.UserCount = counts[role.Name]
	}

	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, actorID string, req CreateRoleRequest) (*RoleResponse, error) {
	if result := ValidateRole(RoleInput(req)); !result.Valid {
		return nil, validationError(result)
	}

	slug := NormalizeRoleName(req.Name)
	if _, err := s.roleRepo.FindByName(ctx, slug); err == nil {
		return nil, fmt.Errorf("role '%s' already exists", strings.TrimSpace(req.Name))
	}

	role := model.Role{
		Name:        slug,
		DisplayName: strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		IsSystem:    false,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.Create(txCtx, &role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}

		perms, err := s.resolvePermissions(txCtx, req.Permissions)
		if err != nil {
			return err
		}
		if err := s.roleRepo.ReplacePermissions(txCtx, role.ID, perms); err != nil {
			return fmt.Errorf("failed to assign permissions: %w", err)
		}

		return s.audit(txCtx, actorID, model.ActionCreateRole, role.ID.String(), role.DisplayName, map[string]any{
			"permissions": req.Permissions,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, role.ID.String())
}

func (s *roleService) UpdateRole(ctx context.Context, actorID, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.roleRepo.FindByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("role not found: %w", err)
	}

	oldSlug := role.Name
	if name := strings.TrimSpace(req.Name); name != "" {
		if len(name) < roleNameMinLen || len(name) > roleNameMaxLen {
			return nil, fmt.Errorf("role name must be between %d and %d characters", roleNameMinLen, roleNameMaxLen)
		}
		slug := NormalizeRoleName(name)
		if existing, findErr := s.roleRepo.FindByName(ctx, slug); findErr == nil && existing.ID != role.ID {
			return nil, fmt.Errorf("role '%s' already exists", name)
		}
		if role.IsSystem && slug != role.Name {
			return nil, fmt.Errorf("cannot rename system role '%s'", role.DisplayName)
		}
		role.Name = slug
		role.DisplayName = name
	}

	if desc := strings.TrimSpace(req.Description); desc != "" {
		if len(desc) > roleDescriptionMaxLen {
			return nil, fmt.Errorf("description must be at most %d characters", roleDescriptionMaxLen)
		}
		role.Description = desc
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.Save(txCtx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}

		if oldSlug != role.Name {
			if err := s.roleRepo.ReassignUsers(txCtx, oldSlug, role.Name); err != nil {
				return fmt.Errorf("failed to reassign users to renamed role: %w", err)
			}
		}

		if req.Permissions != nil {
			if len(req.Permissions) == 0 {
				return fmt.Errorf("a role must have at least one permission")
			}
			perms, resolveErr := s.resolvePermissions(txCtx, req.Permissions)
			if resolveErr != nil {
				return resolveErr
			}
			if err := s.roleRepo.ReplacePermissions(txCtx, role.ID, perms); err != nil {
				return fmt.Errorf("failed to update permissions: %w", err)
			}
		}

		return s.audit(txCtx, actorID, model.ActionUpdateRole, role.ID.String(), role.DisplayName, map[string]any{
			"name":        req.Name,
			"description": req.Description,
			"permissions": req.Permissions,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, id)
}

func (s *roleService) DeleteRole(ctx context.Context, actorID, id string) error {
	roleID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.roleRepo.FindByID(ctx, roleID)
	if err != nil {
		return fmt.Errorf("role not found: %w", err)
	}

	if role.IsSystem {
		return fmt.Errorf("cannot delete system role '%s'", role.DisplayName)
	}

	counts, err := s.roleRepo.CountUsersByRole(ctx)
	if err != nil {
		return fmt.Errorf("failed to count assigned users: %w", err)
	}
	if n := counts[role.Name]; n > 0 {
		return fmt.Errorf("cannot delete role '%s': %d assigned users", role.DisplayName, n)
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roleRepo.Delete(txCtx, roleID); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return s.audit(txCtx, actorID, model.ActionDeleteRole, role.ID.String(), role.DisplayName, nil)
	})
}

// UpdateRolePermission grants or revokes a single permission key, rejecting a
// revoke that would leave the role with no permissions at all.
func (s *roleService) UpdateRolePermission(ctx context.Context, actorID, roleID, permissionKey string, granted bool) (*RoleResponse, error) {
	id, err := uuid.Parse(roleID)
	if err != nil {
		return nil, fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.roleRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("role not found: %w", err)
	}

	keys := make(map[string]bool, len(role.Permissions))
	for _, p := range role.Permissions {
		keys[p.Key] = true
	}
	if granted {
		keys[permissionKey] = true
	} else {
		delete(keys, permissionKey)
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("a role must have at least one permission")
	}

	next := make([]string, 0, len(keys))
	for k := range keys {
		next = append(next, k)
	}
	sort.Strings(next)

	resp, err := s.UpdateRole(ctx, actorID, roleID, UpdateRoleRequest{Permissions: next})
	if err != nil {
		return nil, err
	}

	_ = s.audit(ctx, actorID, model.ActionUpdateRolePermissions, roleID, role.DisplayName, map[string]any{
		"permission": permissionKey,
		"granted":    granted,
	})

	return resp, nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.roleRepo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) GetPermissionKeysByRoleName(ctx context.Context, roleName string) ([]string, error) {
	keys, err := s.roleRepo.GetPermissionKeysByRoleName(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("role '%s' not found: %w", roleName, err)
	}
	return keys, nil
}

// SeedDefaults creates the permission catalog and the built-in system roles
// if not already present.
func (s *roleService) SeedDefaults(ctx context.Context) error {
	permByKey := make(map[string]model.Permission, len(catalog.Permissions))
	for _, def := range catalog.Permissions {
		perm := model.Permission{
			Key:         def.Key,
			Name:        def.Name,
			Description: def.Description,
			Category:    def.Category,
		}
		if err := s.roleRepo.FindOrCreatePermission(ctx, &perm); err != nil {
			return fmt.Errorf("failed to seed permission '%s': %w", def.Key, err)
		}
		permByKey[def.Key] = perm
	}

	allKeys := make([]string, 0, len(catalog.Permissions))
	for _, def := range catalog.Permissions {
		allKeys = append(allKeys, def.Key)
	}

	roleDefinitions := []struct {
		Name        string
		DisplayName string
		Description string
		PermKeys    []string
	}{
		{
			Name:        model.RoleAdministrator,
			DisplayName: "Administrator",
			Description: "Full access to every part of the system",
			PermKeys:    allKeys,
		},
		{
			Name:        model.RoleManager,
			DisplayName: "Manager",
			Description: "Approves expenses, manages users and views reports",
			PermKeys: []string{
				"dashboard.read",
				"expenses.read", "expenses.write", "expenses.delete",
				"reports.read", "reports.export",
				"users.read", "users.write",
				"audit.read",
			},
		},
		{
			Name:        model.RoleTeacher,
			DisplayName: "Teacher",
			Description: "Records own expenses and views own spending",
			PermKeys: []string{
				"dashboard.read",
				"expenses.read", "expenses.write",
			},
		},
		{
			Name:        model.RoleAccountOfficer,
			DisplayName: "Account Officer",
			Description: "Reviews expenses and exports financial reports",
			PermKeys: []string{
				"dashboard.read",
				"expenses.read",
				"reports.read", "reports.export",
			},
		},
	}

	for _, def := range roleDefinitions {
		role, err := s.roleRepo.FindByName(ctx, def.Name)
		if err != nil {
			role = &model.Role{
				Name:        def.Name,
				DisplayName: def.DisplayName,
				Description: def.Description,
				IsSystem:    true,
			}
			if err := s.roleRepo.Create(ctx, role); err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", def.Name, err)
			}
		}

		perms := make([]model.Permission, 0, len(def.PermKeys))
		for _, key := range def.PermKeys {
			if p, ok := permByKey[key]; ok {
				perms = append(perms, p)
			}
		}
		if err := s.roleRepo.ReplacePermissions(ctx, role.ID, perms); err != nil {
			return fmt.Errorf("failed to assign permissions to role '%s': %w", def.Name, err)
		}
	}

	return nil
}

// --- Helpers ---

// resolvePermissions maps permission keys to stored rows, rejecting unknown keys.
func (s *roleService) resolvePermissions(ctx context.Context, keys []string) ([]model.Permission, error) {
	perms, err := s.roleRepo.FindPermissionsByKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	if len(perms) != len(keys) {
		found := make(map[string]bool, len(perms))
		for _, p := range perms {
			found[p.Key] = true
		}
		for _, k := range keys {
			if !found[k] {
				return nil, fmt.Errorf("unknown permission '%s'", k)
			}
		}
	}
	return perms, nil
}

func (s *roleService) audit(ctx context.Context, actorID, action, entityID, entityName string, details map[string]any) error {
	var userID *uuid.UUID
	if parsed, err := uuid.Parse(actorID); err == nil {
		userID = &parsed
	}

	payload := "{}"
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			payload = string(raw)
		}
	}

	return s.auditRepo.Log(ctx, &model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    payload,
	})
}

func validationError(result ValidationResult) error {
	fields := make([]string, 0, len(result.Errors))
	for field := range result.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, result.Errors[f])
	}
	return fmt.Errorf("invalid role: %s", strings.Join(msgs, "; "))
}

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		UserCount:   r.UserCount,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:          p.ID.String(),
		Key:         p.Key,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
	}
}
