package service

import (
	"strings"
	"testing"

	"backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRoleName(t *testing.T) {
	assert.Equal(t, "regional_manager", NormalizeRoleName("Regional Manager"))
	assert.Equal(t, "regional_manager", NormalizeRoleName("  Regional   Manager  "))
	assert.Equal(t, "teacher", NormalizeRoleName("TEACHER"))
}

func TestValidateRole(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		result := ValidateRole(RoleInput{
			Name:        "Regional Manager",
			Description: "Manages a region",
			Permissions: []string{"expenses.read"},
		})
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})

	t.Run("name too short", func(t *testing.T) {
		result := ValidateRole(RoleInput{
			Name:        "ab",
			Description: "ok",
			Permissions: []string{"expenses.read"},
		})
		assert.False(t, result.Valid)
		assert.Equal(t, "Role name must be at least 3 characters", result.Errors["name"])
	})

	t.Run("name too long", func(t *testing.T) {
		result := ValidateRole(RoleInput{
			Name:        strings.Repeat("x", 51),
			Description: "ok",
			Permissions: []string{"expenses.read"},
		})
		assert.False(t, result.Valid)
		assert.Equal(t, "Role name must be at most 50 characters", result.Errors["name"])
	})

	t.Run("missing everything", func(t *testing.T) {
		result := ValidateRole(RoleInput{})
		assert.False(t, result.Valid)
		assert.Equal(t, "Role name is required", result.Errors["name"])
		assert.Equal(t, "Description is required", result.Errors["description"])
		assert.Equal(t, "A role must have at least one permission", result.Errors["permissions"])
	})

	t.Run("description too long", func(t *testing.T) {
		result := ValidateRole(RoleInput{
			Name:        "Auditor",
			Description: strings.Repeat("x", 256),
			Permissions: []string{"audit.read"},
		})
		assert.False(t, result.Valid)
		assert.Equal(t, "Description must be at most 255 characters", result.Errors["description"])
	})
}

func TestValidateFeatureChange(t *testing.T) {
	opts := FeatureChangeOptions{SkipAffectedUsers: true}

	t.Run("unknown feature", func(t *testing.T) {
		result := ValidateFeatureChange(model.RoleManager, nil, "ghost", true, opts)
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Feature not found: ghost", result.Errors[0])
	})

	t.Run("core feature cannot be disabled", func(t *testing.T) {
		active := map[string]bool{"dashboard": true}
		result := ValidateFeatureChange(model.RoleManager, active, "dashboard", false, opts)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors[0], "core feature")
	})

	t.Run("enabling requires active dependencies", func(t *testing.T) {
		active := map[string]bool{"dashboard": true}
		result := ValidateFeatureChange(model.RoleManager, active, "analytics", true, opts)
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, "Analytics Dashboard requires: Expense Manager", result.Errors[0])
	})

	t.Run("enabling with dependencies met", func(t *testing.T) {
		active := map[string]bool{"dashboard": true, "expenses": true}
		result := ValidateFeatureChange(model.RoleManager, active, "analytics", true, opts)
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})

	t.Run("disabling with active dependents warns and requires confirmation", func(t *testing.T) {
		active := map[string]bool{"dashboard": true, "expenses": true, "analytics": true}
		result := ValidateFeatureChange(model.RoleManager, active, "expenses", false, opts)
		assert.True(t, result.Valid)
		assert.True(t, result.RequiresConfirmation)
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, "Disabling Expense Manager will also disable: Analytics Dashboard", result.Warnings[0])
	})

	t.Run("admin-only feature blocked for other roles", func(t *testing.T) {
		result := ValidateFeatureChange(model.RoleManager, map[string]bool{}, "roles", true, opts)
		assert.False(t, result.Valid)
		assert.Contains(t, result.Errors[0], "administrator")
	})

	t.Run("admin-only feature allowed for administrator", func(t *testing.T) {
		result := ValidateFeatureChange(model.RoleAdministrator, map[string]bool{}, "roles", true, opts)
		assert.True(t, result.Valid)
	})

	t.Run("affected users warning", func(t *testing.T) {
		active := map[string]bool{"dashboard": true, "expenses": true}
		result := ValidateFeatureChange(model.RoleTeacher, active, "budgets", true, FeatureChangeOptions{AffectedUsers: 3})
		assert.True(t, result.Valid)
		assert.True(t, result.RequiresConfirmation)
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, "This change affects 3 users", result.Warnings[0])
	})

	t.Run("single affected user does not warn", func(t *testing.T) {
		active := map[string]bool{"dashboard": true, "expenses": true}
		result := ValidateFeatureChange(model.RoleTeacher, active, "budgets", true, FeatureChangeOptions{AffectedUsers: 1})
		assert.True(t, result.Valid)
		assert.False(t, result.RequiresConfirmation)
		assert.Empty(t, result.Warnings)
	})
}

func TestValidateBulkOperation(t *testing.T) {
	allRoles := []string{"a", "b", "c", "d"}

	t.Run("unknown category", func(t *testing.T) {
		result := ValidateBulkOperation([]string{"a"}, "ghost", "disable", allRoles)
		assert.False(t, result.Valid)
		assert.Equal(t, "Category not found: ghost", result.Errors[0])
	})

	t.Run("unknown action", func(t *testing.T) {
		result := ValidateBulkOperation([]string{"a"}, "insights", "toggle", allRoles)
		assert.False(t, result.Valid)
		assert.Equal(t, "Unknown bulk action: toggle", result.Errors[0])
	})

	t.Run("disabling core category for every role is rejected", func(t *testing.T) {
		result := ValidateBulkOperation([]string{"a", "b", "c", "d"}, "core-apps", "disable", allRoles)
		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "core feature")
	})

	t.Run("disabling core category for a subset is allowed", func(t *testing.T) {
		result := ValidateBulkOperation([]string{"a", "b"}, "core-apps", "disable", allRoles)
		assert.True(t, result.Valid)
	})

	t.Run("duplicated role ids do not count as every role", func(t *testing.T) {
		result := ValidateBulkOperation([]string{"a", "a", "b", "b"}, "core-apps", "disable", allRoles)
		assert.True(t, result.Valid)
	})

	t.Run("unknown role ids do not count towards every role", func(t *testing.T) {
		result := ValidateBulkOperation([]string{"a", "b", "ghost", "phantom"}, "core-apps", "disable", allRoles)
		assert.True(t, result.Valid)
	})

	t.Run("known subset padded with unknowns still rejected when it covers all roles", func(t *testing.T) {
		result := ValidateBulkOperation([]string{"a", "b", "c", "d", "ghost"}, "core-apps", "disable", allRoles)
		assert.False(t, result.Valid)
	})

	t.Run("enabling for every role is allowed", func(t *testing.T) {
		result := ValidateBulkOperation([]string{"a", "b", "c", "d"}, "core-apps", "enable", allRoles)
		assert.True(t, result.Valid)
	})

	t.Run("disabling non-core category for every role is allowed", func(t *testing.T) {
		result := ValidateBulkOperation([]string{"a", "b", "c", "d"}, "insights", "disable", allRoles)
		assert.True(t, result.Valid)
	})
}
