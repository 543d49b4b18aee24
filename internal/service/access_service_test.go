package service

import (
	"context"
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccessFixture(t *testing.T) (*AccessService, *visibilityFixture) {
	t.Helper()
	f := newVisibilityFixture(t)
	return NewAccessService(f.roleRepo, f.svc), f
}

func TestHasPermission(t *testing.T) {
	ctx := context.Background()
	svc, f := newAccessFixture(t)

	f.manager.Permissions = []model.Permission{
		{Key: "expenses.read"},
		{Key: "reports.manage"},
	}
	f.roleRepo.roles[f.manager.ID] = f.manager

	f.admin.Permissions = []model.Permission{{Key: "*.read"}}
	f.roleRepo.roles[f.admin.ID] = f.admin

	t.Run("exact match", func(t *testing.T) {
		assert.True(t, svc.HasPermission(ctx, model.RoleManager, "expenses", "read"))
	})

	t.Run("missing action", func(t *testing.T) {
		assert.False(t, svc.HasPermission(ctx, model.RoleManager, "expenses", "delete"))
	})

	t.Run("manage grants every action", func(t *testing.T) {
		assert.True(t, svc.HasPermission(ctx, model.RoleManager, "reports", "read"))
		assert.True(t, svc.HasPermission(ctx, model.RoleManager, "reports", "export"))
	})

	t.Run("wildcard resource", func(t *testing.T) {
		assert.True(t, svc.HasPermission(ctx, model.RoleAdministrator, "expenses", "read"))
		assert.True(t, svc.HasPermission(ctx, model.RoleAdministrator, "budgets", "read"))
		assert.False(t, svc.HasPermission(ctx, model.RoleAdministrator, "budgets", "write"))
	})

	t.Run("unknown role", func(t *testing.T) {
		assert.False(t, svc.HasPermission(ctx, "ghost", "expenses", "read"))
	})
}

func TestCanAccessApp(t *testing.T) {
	ctx := context.Background()
	svc, f := newAccessFixture(t)

	assert.True(t, svc.CanAccessApp(ctx, model.RoleManager, "analytics"))
	assert.False(t, svc.CanAccessApp(ctx, model.RoleTeacher, "analytics"))
	assert.False(t, svc.CanAccessApp(ctx, model.RoleTeacher, "admin"))
	assert.True(t, svc.CanAccessApp(ctx, model.RoleAdministrator, "admin"))

	// Disabling the whole analytics app for the manager removes access.
	_, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.manager.ID.String(), "analytics", false)
	require.NoError(t, err)
	assert.False(t, svc.CanAccessApp(ctx, model.RoleManager, "analytics"))
}

func TestCanAccessFeature(t *testing.T) {
	ctx := context.Background()
	svc, _ := newAccessFixture(t)

	assert.True(t, svc.CanAccessFeature(ctx, model.RoleManager, "analytics", "reports"))
	assert.False(t, svc.CanAccessFeature(ctx, model.RoleTeacher, "analytics", "reports"))

	// AppID must match the feature's actual app.
	assert.False(t, svc.CanAccessFeature(ctx, model.RoleManager, "admin", "reports"))
	assert.False(t, svc.CanAccessFeature(ctx, model.RoleManager, "analytics", "ghost"))
}

func TestResourceChecks(t *testing.T) {
	ctx := context.Background()
	svc, f := newAccessFixture(t)

	t.Run("create and view follow feature visibility", func(t *testing.T) {
		assert.True(t, svc.CanCreate(ctx, model.RoleTeacher, "expense"))
		assert.True(t, svc.CanView(ctx, model.RoleTeacher, "expense"))
		assert.False(t, svc.CanView(ctx, model.RoleTeacher, "report"))
		assert.False(t, svc.CanEdit(ctx, model.RoleTeacher, "user"))
	})

	t.Run("unknown resource type", func(t *testing.T) {
		assert.False(t, svc.CanCreate(ctx, model.RoleManager, "spaceship"))
		assert.False(t, svc.CanDelete(ctx, model.RoleManager, "spaceship"))
	})

	t.Run("delete on plain resources needs only the feature", func(t *testing.T) {
		assert.True(t, svc.CanDelete(ctx, model.RoleTeacher, "expense"))
	})

	t.Run("delete on high-risk resources needs manager level", func(t *testing.T) {
		assert.True(t, svc.CanDelete(ctx, model.RoleManager, "user"))
		assert.False(t, svc.CanDelete(ctx, model.RoleTeacher, "user"))

		// Level alone is not enough; the users feature must also be active.
		_, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.manager.ID.String(), "users", false)
		require.NoError(t, err)
		assert.False(t, svc.CanDelete(ctx, model.RoleManager, "user"))
	})
}

func TestHasMinimumRole(t *testing.T) {
	assert.True(t, HasMinimumRole(model.RoleAdministrator, model.RoleManager))
	assert.True(t, HasMinimumRole(model.RoleManager, model.RoleManager))
	assert.False(t, HasMinimumRole(model.RoleTeacher, model.RoleManager))
	assert.False(t, HasMinimumRole(model.RoleAccountOfficer, model.RoleTeacher))
	assert.False(t, HasMinimumRole("ghost", model.RoleAccountOfficer))
}
