package service

import (
	"context"
	"strings"

	"backend/internal/catalog"
	"backend/internal/model"
	"backend/internal/repository"
)

// resourceTarget maps a resource type onto the feature that guards it.
type resourceTarget struct {
	AppID     string
	FeatureID string
	HighRisk  bool // deletion additionally requires manager level or above
}

var resourceTargets = map[string]resourceTarget{
	"expense": {AppID: "expense-tracker", FeatureID: "expenses"},
	"budget":  {AppID: "expense-tracker", FeatureID: "budgets"},
	"report":  {AppID: "analytics", FeatureID: "reports"},
	"user":    {AppID: "admin", FeatureID: "users", HighRisk: true},
	"role":    {AppID: "admin", FeatureID: "roles", HighRisk: true},
}

// AccessService is the read-only query surface the rest of the application
// uses to decide what a user may see and do. It combines granted permissions
// (role store) with the active feature set (visibility matrix).
type AccessService struct {
	roleRepo   repository.RoleRepository
	visibility *VisibilityService
}

func NewAccessService(roleRepo repository.RoleRepository, visibility *VisibilityService) *AccessService {
	return &AccessService{roleRepo: roleRepo, visibility: visibility}
}

// HasPermission reports whether the role holds a permission matching the
// resource (or the "*" wildcard) and the action (or the "manage" superset).
func (s *AccessService) HasPermission(ctx context.Context, roleName, resource, action string) bool {
	keys, err := s.roleRepo.GetPermissionKeysByRoleName(ctx, roleName)
	if err != nil {
		return false
	}

	for _, key := range keys {
		res, act, found := strings.Cut(key, ".")
		if !found {
			continue
		}
		if res != resource && res != "*" {
			continue
		}
		if act == action || act == "manage" {
			return true
		}
	}
	return false
}

// CanAccessApp reports whether any feature of the app is active for the role.
func (s *AccessService) CanAccessApp(ctx context.Context, roleName, appID string) bool {
	active := s.activeForRole(ctx, roleName)
	for featureID := range active {
		if feature, ok := catalog.FeatureByID(featureID); ok && feature.AppID == appID {
			return true
		}
	}
	return false
}

// CanAccessFeature reports whether the given feature of the app is active for
// the role.
func (s *AccessService) CanAccessFeature(ctx context.Context, roleName, appID, featureID string) bool {
	feature, ok := catalog.FeatureByID(featureID)
	if !ok || feature.AppID != appID {
		return false
	}
	return s.activeForRole(ctx, roleName)[featureID]
}

// CanCreate reports whether the role may create resources of the given type.
func (s *AccessService) CanCreate(ctx context.Context, roleName, resourceType string) bool {
	return s.canUse(ctx, roleName, resourceType)
}

// CanEdit reports whether the role may edit resources of the given type.
func (s *AccessService) CanEdit(ctx context.Context, roleName, resourceType string) bool {
	return s.canUse(ctx, roleName, resourceType)
}

// CanView reports whether the role may view resources of the given type.
func (s *AccessService) CanView(ctx context.Context, roleName, resourceType string) bool {
	return s.canUse(ctx, roleName, resourceType)
}

// CanDelete reports whether the role may delete resources of the given type.
// High-risk resources additionally require at least manager level.
func (s *AccessService) CanDelete(ctx context.Context, roleName, resourceType string) bool {
	target, ok := resourceTargets[resourceType]
	if !ok {
		return false
	}
	if target.HighRisk && !HasMinimumRole(roleName, model.RoleManager) {
		return false
	}
	return s.canUse(ctx, roleName, resourceType)
}

func (s *AccessService) canUse(ctx context.Context, roleName, resourceType string) bool {
	target, ok := resourceTargets[resourceType]
	if !ok {
		return false
	}
	return s.CanAccessFeature(ctx, roleName, target.AppID, target.FeatureID)
}

func (s *AccessService) activeForRole(ctx context.Context, roleName string) map[string]bool {
	role, err := s.roleRepo.FindByName(ctx, roleName)
	if err != nil {
		return nil
	}
	return s.visibility.ActiveFeatures(role.ID.String())
}

// HasMinimumRole compares two roles in the hierarchy:
// administrator(4) > manager(3) > teacher(2) > account_officer(1).
func HasMinimumRole(roleName, minimum string) bool {
	return model.RoleLevel(roleName) >= model.RoleLevel(minimum)
}
