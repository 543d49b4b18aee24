package service

import (
	"bytes"
	"context"
	"log"
	"os"
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type visibilityFixture struct {
	svc       *VisibilityService
	roleRepo  *fakeRoleRepo
	visRepo   *fakeVisibilityRepo
	auditRepo *fakeAuditRepo
	manager   *model.Role
	teacher   *model.Role
	admin     *model.Role
}

func newVisibilityFixture(t *testing.T) *visibilityFixture {
	t.Helper()

	roleRepo := newFakeRoleRepo()
	visRepo := newFakeVisibilityRepo()
	auditRepo := &fakeAuditRepo{}

	f := &visibilityFixture{
		roleRepo:  roleRepo,
		visRepo:   visRepo,
		auditRepo: auditRepo,
		admin:     roleRepo.addRole(model.RoleAdministrator, "Administrator", true),
		manager:   roleRepo.addRole(model.RoleManager, "Manager", true),
		teacher:   roleRepo.addRole(model.RoleTeacher, "Teacher", true),
	}

	f.svc = NewVisibilityService(visRepo, roleRepo, auditRepo, nil)
	require.NoError(t, f.svc.SeedDefaults(context.Background()))
	t.Cleanup(f.svc.Close)
	return f
}

func TestLoadForcesCoreFeaturesActive(t *testing.T) {
	f := newVisibilityFixture(t)

	for _, role := range []*model.Role{f.admin, f.manager, f.teacher} {
		active := f.svc.ActiveFeatures(role.ID.String())
		assert.True(t, active["dashboard"], "dashboard must be active for %s", role.Name)
	}
}

func TestCoreFeaturesActiveForNewlyCreatedRole(t *testing.T) {
	f := newVisibilityFixture(t)

	// A role added after the matrix was loaded has no visibility rows yet.
	auditor := f.roleRepo.addRole("auditor", "Auditor", false)

	active := f.svc.ActiveFeatures(auditor.ID.String())
	assert.True(t, active["dashboard"])
	assert.False(t, active["expenses"], "non-core features stay off until granted")

	preview := f.svc.PreviewRoleInterface(auditor.ID.String())
	assert.Contains(t, preview.ActiveFeatures, "dashboard")
}

func TestSeedDefaultsPerRole(t *testing.T) {
	f := newVisibilityFixture(t)

	managerActive := f.svc.ActiveFeatures(f.manager.ID.String())
	assert.True(t, managerActive["expenses"])
	assert.True(t, managerActive["analytics"])
	assert.True(t, managerActive["reports"])
	assert.False(t, managerActive["roles"])

	teacherActive := f.svc.ActiveFeatures(f.teacher.ID.String())
	assert.True(t, teacherActive["expenses"])
	assert.False(t, teacherActive["analytics"])

	adminActive := f.svc.ActiveFeatures(f.admin.ID.String())
	assert.True(t, adminActive["roles"])
	assert.True(t, adminActive["settings"])
}

func TestSeedDefaultsPreservesCustomizations(t *testing.T) {
	f := newVisibilityFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.teacher.ID.String(), "budgets", false)
	require.NoError(t, err)

	// A second seed run must not resurrect the disabled feature.
	require.NoError(t, f.svc.SeedDefaults(ctx))
	assert.False(t, f.svc.ActiveFeatures(f.teacher.ID.String())["budgets"])
}

func TestUpdateRoleFeatures(t *testing.T) {
	ctx := context.Background()

	t.Run("enable rejected when dependencies inactive", func(t *testing.T) {
		f := newVisibilityFixture(t)
		_, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.teacher.ID.String(), "reports", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PDF Reports requires: Analytics Dashboard")
	})

	t.Run("core feature cannot be disabled", func(t *testing.T) {
		f := newVisibilityFixture(t)
		_, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.manager.ID.String(), "dashboard", false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "core feature")
	})

	t.Run("admin-only feature rejected for manager", func(t *testing.T) {
		f := newVisibilityFixture(t)
		_, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.manager.ID.String(), "roles", true)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "administrator")
	})

	t.Run("disable cascades to transitive dependents", func(t *testing.T) {
		f := newVisibilityFixture(t)
		res, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.manager.ID.String(), "expenses", false)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"analytics", "reports", "budgets"}, res.CascadeDisabled)

		active := f.svc.ActiveFeatures(f.manager.ID.String())
		assert.False(t, active["expenses"])
		assert.False(t, active["analytics"])
		assert.False(t, active["reports"])
		assert.False(t, active["budgets"])
		assert.True(t, active["dashboard"])
	})

	t.Run("disable with dependents reports warning", func(t *testing.T) {
		f := newVisibilityFixture(t)
		res, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.manager.ID.String(), "analytics", false)
		require.NoError(t, err)
		assert.True(t, res.RequiresConfirmation)
		require.NotEmpty(t, res.Warnings)
		assert.Contains(t, res.Warnings[0], "will also disable: PDF Reports")
	})

	t.Run("affected users counted", func(t *testing.T) {
		f := newVisibilityFixture(t)
		f.roleRepo.userCounts[model.RoleManager] = 4
		res, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.manager.ID.String(), "notifications", false)
		require.NoError(t, err)
		assert.Equal(t, int64(4), res.AffectedUsers)
	})

	t.Run("writes audit entry", func(t *testing.T) {
		f := newVisibilityFixture(t)
		_, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.manager.ID.String(), "budgets", false)
		require.NoError(t, err)
		assert.Contains(t, f.auditRepo.actions(), model.ActionToggleFeature)
	})
}

func TestUpdateRoleFeaturesRevertsOnPersistFailure(t *testing.T) {
	f := newVisibilityFixture(t)
	ctx := context.Background()
	roleID := f.manager.ID.String()

	before := f.svc.ActiveFeatures(roleID)
	require.True(t, before["expenses"])

	f.visRepo.failWrites = true
	_, err := f.svc.UpdateRoleFeatures(ctx, "actor", roleID, "expenses", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist feature change")

	after := f.svc.ActiveFeatures(roleID)
	assert.Equal(t, before, after)
}

func TestToggleFeatureDebounce(t *testing.T) {
	f := newVisibilityFixture(t)
	ctx := context.Background()
	roleID := f.manager.ID.String()

	t.Run("double toggle returns to original state", func(t *testing.T) {
		f.svc.ToggleFeature("actor", roleID, "notifications")
		f.svc.ToggleFeature("actor", roleID, "notifications")
		failed := f.svc.Flush(ctx)
		assert.Empty(t, failed)
		assert.True(t, f.svc.ActiveFeatures(roleID)["notifications"])
	})

	t.Run("odd number of toggles flips the feature", func(t *testing.T) {
		f.svc.ToggleFeature("actor", roleID, "notifications")
		f.svc.ToggleFeature("actor", roleID, "notifications")
		f.svc.ToggleFeature("actor", roleID, "notifications")
		failed := f.svc.Flush(ctx)
		assert.Empty(t, failed)
		assert.False(t, f.svc.ActiveFeatures(roleID)["notifications"])
	})

	t.Run("flush on empty queue is a no-op", func(t *testing.T) {
		assert.Empty(t, f.svc.Flush(ctx))
	})

	t.Run("invalid queued toggle is reported", func(t *testing.T) {
		f.svc.ToggleFeature("actor", roleID, "dashboard") // core, disable will fail
		failed := f.svc.Flush(ctx)
		require.Len(t, failed, 1)
		assert.Equal(t, "dashboard", failed[0].FeatureID)
		assert.Contains(t, failed[0].Message, "core feature")
	})
}

func TestFlushAndLogReportsDroppedToggles(t *testing.T) {
	f := newVisibilityFixture(t)
	roleID := f.manager.ID.String()

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	f.svc.ToggleFeature("actor", roleID, "dashboard") // core, disable will fail
	f.svc.flushAndLog(context.Background())

	assert.Contains(t, buf.String(), "Debounced feature toggle dropped")
	assert.Contains(t, buf.String(), "feature=dashboard")
}

func TestBulkUpdateFeatures(t *testing.T) {
	ctx := context.Background()

	t.Run("disables a category across roles, skipping core", func(t *testing.T) {
		f := newVisibilityFixture(t)
		res, err := f.svc.BulkUpdateFeatures(ctx, "actor", BulkUpdateRequest{
			RoleIDs:    []string{f.manager.ID.String(), f.teacher.ID.String()},
			CategoryID: "insights",
			Action:     "disable",
		})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Updated)
		assert.Empty(t, res.Failed)

		assert.False(t, f.svc.ActiveFeatures(f.manager.ID.String())["analytics"])
		assert.False(t, f.svc.ActiveFeatures(f.manager.ID.String())["reports"])
	})

	t.Run("rejects stripping core from every role", func(t *testing.T) {
		f := newVisibilityFixture(t)
		_, err := f.svc.BulkUpdateFeatures(ctx, "actor", BulkUpdateRequest{
			RoleIDs:    []string{f.admin.ID.String(), f.manager.ID.String(), f.teacher.ID.String()},
			CategoryID: "core-apps",
			Action:     "disable",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "core feature")
	})

	t.Run("reports per-item failures without aborting", func(t *testing.T) {
		f := newVisibilityFixture(t)
		// Administration mixes plain and admin-only features; enabling it
		// for the manager succeeds for users/audit and fails for the rest.
		res, err := f.svc.BulkUpdateFeatures(ctx, "actor", BulkUpdateRequest{
			RoleIDs:    []string{f.manager.ID.String()},
			CategoryID: "administration",
			Action:     "enable",
		})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Updated)
		require.Len(t, res.Failed, 2)
		failedFeatures := []string{res.Failed[0].FeatureID, res.Failed[1].FeatureID}
		assert.ElementsMatch(t, []string{"roles", "settings"}, failedFeatures)
	})

	t.Run("writes bulk audit entry", func(t *testing.T) {
		f := newVisibilityFixture(t)
		_, err := f.svc.BulkUpdateFeatures(ctx, "actor", BulkUpdateRequest{
			RoleIDs:    []string{f.manager.ID.String()},
			CategoryID: "mobile",
			Action:     "enable",
		})
		require.NoError(t, err)
		assert.Contains(t, f.auditRepo.actions(), model.ActionBulkUpdateFeatures)
	})
}

func TestCalculateBulkOperationImpact(t *testing.T) {
	f := newVisibilityFixture(t)
	ctx := context.Background()
	f.roleRepo.userCounts[model.RoleManager] = 4
	f.roleRepo.userCounts[model.RoleTeacher] = 9

	res, err := f.svc.CalculateBulkOperationImpact(ctx, []string{f.manager.ID.String(), f.teacher.ID.String()}, "insights")
	require.NoError(t, err)
	assert.Equal(t, int64(13), res.AffectedUsers)
	assert.Equal(t, 2, res.FeatureCount)
	assert.Equal(t, 2, res.RoleCount)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "13 users across 2 roles")

	_, err = f.svc.CalculateBulkOperationImpact(ctx, nil, "ghost")
	require.Error(t, err)
}

func TestPreviewRoleInterface(t *testing.T) {
	t.Run("committed state only", func(t *testing.T) {
		f := newVisibilityFixture(t)
		preview := f.svc.PreviewRoleInterface(f.manager.ID.String())

		assert.Contains(t, preview.ActiveFeatures, "dashboard")
		assert.Contains(t, preview.ActiveFeatures, "analytics")
		assert.Equal(t, AccessFull, preview.AccessibilityLevel)
		assert.Empty(t, preview.Warnings)
	})

	t.Run("pending disable cascades in preview without committing", func(t *testing.T) {
		f := newVisibilityFixture(t)
		roleID := f.manager.ID.String()

		f.svc.AddPendingChange(roleID, "expenses", false)
		preview := f.svc.PreviewRoleInterface(roleID)

		assert.NotContains(t, preview.ActiveFeatures, "expenses")
		assert.NotContains(t, preview.ActiveFeatures, "analytics")
		assert.NotContains(t, preview.ActiveFeatures, "reports")
		assert.Equal(t, AccessStandard, preview.AccessibilityLevel)

		// Committed state is untouched.
		assert.True(t, f.svc.ActiveFeatures(roleID)["expenses"])

		f.svc.ClearPendingChanges(roleID)
		preview = f.svc.PreviewRoleInterface(roleID)
		assert.Contains(t, preview.ActiveFeatures, "expenses")
	})

	t.Run("pending core disable is ignored", func(t *testing.T) {
		f := newVisibilityFixture(t)
		roleID := f.teacher.ID.String()

		f.svc.AddPendingChange(roleID, "dashboard", false)
		preview := f.svc.PreviewRoleInterface(roleID)
		assert.Contains(t, preview.ActiveFeatures, "dashboard")
	})

	t.Run("sparse interface warns", func(t *testing.T) {
		f := newVisibilityFixture(t)
		roleID := f.teacher.ID.String()

		f.svc.AddPendingChange(roleID, "expenses", false)
		f.svc.AddPendingChange(roleID, "navigation", false)
		f.svc.AddPendingChange(roleID, "notifications", false)
		preview := f.svc.PreviewRoleInterface(roleID)

		assert.Contains(t, preview.Warnings, "Fewer than 3 features active; the interface may feel empty")
		assert.Contains(t, preview.Warnings, "Navigation feature is disabled; mobile users cannot switch sections")
	})
}

func TestSubscribe(t *testing.T) {
	f := newVisibilityFixture(t)
	ctx := context.Background()

	var events []FeatureChangeEvent
	dispose := f.svc.Subscribe(func(e FeatureChangeEvent) {
		events = append(events, e)
	})

	_, err := f.svc.UpdateRoleFeatures(ctx, "actor", f.manager.ID.String(), "notifications", false)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "feature_update", events[0].Type)
	assert.Equal(t, "notifications", events[0].FeatureID)
	assert.Equal(t, model.RoleManager, events[0].RoleName)
	assert.False(t, events[0].Enabled)

	dispose()
	_, err = f.svc.UpdateRoleFeatures(ctx, "actor", f.manager.ID.String(), "notifications", true)
	require.NoError(t, err)
	assert.Len(t, events, 1, "disposed subscriber must not fire")
}
