package service

import (
	"fmt"
	"strings"

	"backend/internal/catalog"
	"backend/internal/model"
)

// --- Validation result types ---

// ValidationResult carries field-keyed error messages for form input.
// Validation failures are returned, never raised as errors, so handlers can
// render them inline.
type ValidationResult struct {
	Valid  bool              `json:"is_valid"`
	Errors map[string]string `json:"errors"`
}

// FeatureChangeResult is the outcome of validating a single feature toggle.
// Errors block the change; warnings are advisory and the change proceeds,
// but RequiresConfirmation tells the caller to ask before committing.
type FeatureChangeResult struct {
	Valid                bool     `json:"is_valid"`
	Errors               []string `json:"errors"`
	Warnings             []string `json:"warnings"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
}

// BulkValidationResult is the outcome of validating a bulk category operation.
type BulkValidationResult struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// RoleInput is the validated shape for role create/update.
type RoleInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// FeatureChangeOptions tunes ValidateFeatureChange. The zero value checks
// affected users; set SkipAffectedUsers for pure validation.
type FeatureChangeOptions struct {
	SkipAffectedUsers bool
	AffectedUsers     int64
}

const (
	roleNameMinLen        = 3
	roleNameMaxLen        = 50
	roleDescriptionMaxLen = 255
)

// NormalizeRoleName converts a display name to its storage slug:
// lowercase with spaces collapsed to underscores.
func NormalizeRoleName(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(slug), "_")
}

// ValidateRole checks role create/update input. Pure; no side effects.
func ValidateRole(input RoleInput) ValidationResult {
	errs := make(map[string]string)

	name := strings.TrimSpace(input.Name)
	switch {
	case name == "":
		errs["name"] = "Role name is required"
	case len(name) < roleNameMinLen:
		errs["name"] = fmt.Sprintf("Role name must be at least %d characters", roleNameMinLen)
	case len(name) > roleNameMaxLen:
		errs["name"] = fmt.Sprintf("Role name must be at most %d characters", roleNameMaxLen)
	}

	desc := strings.TrimSpace(input.Description)
	switch {
	case desc == "":
		errs["description"] = "Description is required"
	case len(desc) > roleDescriptionMaxLen:
		errs["description"] = fmt.Sprintf("Description must be at most %d characters", roleDescriptionMaxLen)
	}

	if len(input.Permissions) == 0 {
		errs["permissions"] = "A role must have at least one permission"
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateFeatureChange checks a single feature toggle for a role against the
// catalog and the role's currently active feature set. Enabling requires all
// dependencies active; disabling a feature with active dependents produces a
// warning and requires confirmation (the cascade itself happens at apply time).
func ValidateFeatureChange(roleName string, active map[string]bool, featureID string, enabled bool, opts FeatureChangeOptions) FeatureChangeResult {
	res := FeatureChangeResult{Valid: true}

	feature, ok := catalog.FeatureByID(featureID)
	if !ok {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("Feature not found: %s", featureID))
		return res
	}

	if !enabled && feature.IsCore {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("%s is a core feature and cannot be disabled", feature.Name))
	}

	if enabled && feature.AdminOnly && roleName != model.RoleAdministrator {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("%s can only be enabled for the administrator role", feature.Name))
	}

	if enabled {
		var missing []string
		for _, dep := range feature.Dependencies {
			if !active[dep] {
				if depFeature, found := catalog.FeatureByID(dep); found {
					missing = append(missing, depFeature.Name)
				} else {
					missing = append(missing, dep)
				}
			}
		}
		if len(missing) > 0 {
			res.Valid = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s requires: %s", feature.Name, strings.Join(missing, ", ")))
		}
	} else {
		var activeDependents []string
		for _, dep := range feature.Dependents {
			if active[dep] {
				if depFeature, found := catalog.FeatureByID(dep); found {
					activeDependents = append(activeDependents, depFeature.Name)
				} else {
					activeDependents = append(activeDependents, dep)
				}
			}
		}
		if len(activeDependents) > 0 {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("Disabling %s will also disable: %s", feature.Name, strings.Join(activeDependents, ", ")))
			res.RequiresConfirmation = true
		}
	}

	if !opts.SkipAffectedUsers && opts.AffectedUsers > 1 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("This change affects %d users", opts.AffectedUsers))
		res.RequiresConfirmation = true
	}

	return res
}

// ValidateBulkOperation rejects a bulk disable that would strip a core
// feature from every role in the system at once. Only targeted ids that
// match existing roles count; duplicates and unknown ids are ignored.
func ValidateBulkOperation(roleIDs []string, categoryID, action string, allRoleIDs []string) BulkValidationResult {
	res := BulkValidationResult{Valid: true}

	category, ok := catalog.CategoryByID(categoryID)
	if !ok {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("Category not found: %s", categoryID))
		return res
	}

	if action != "enable" && action != "disable" {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf("Unknown bulk action: %s", action))
		return res
	}

	if action == "disable" && len(allRoleIDs) > 0 {
		known := make(map[string]bool, len(allRoleIDs))
		for _, id := range allRoleIDs {
			known[id] = true
		}
		targeted := make(map[string]bool, len(roleIDs))
		for _, id := range roleIDs {
			if known[id] {
				targeted[id] = true
			}
		}
		if len(targeted) == len(allRoleIDs) {
			for _, f := range category.Features {
				if f.IsCore {
					res.Valid = false
					res.Errors = append(res.Errors,
						fmt.Sprintf("Cannot disable %s for all roles: %s is a core feature", category.Name, f.Name))
					break
				}
			}
		}
	}

	return res
}
