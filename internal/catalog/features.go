package catalog

import (
	"fmt"
	"sort"
)

// Feature is a toggleable capability belonging to an application module.
// Dependencies must be active for a role before the feature can be enabled
// for that role; Dependents is the inverse relation and is deactivated in
// cascade when the feature is disabled.
type Feature struct {
	ID           string
	Name         string
	Description  string
	AppID        string
	Dependencies []string
	Dependents   []string
	IsCore       bool // Never deactivatable, for any role
	AdminOnly    bool // Enableable only for the administrator role
}

// Category groups features for bulk operations and navigation.
type Category struct {
	ID          string
	Name        string
	Description string
	Features    []Feature
}

// Categories is the static feature catalog. It is not mutable at runtime;
// ValidateDependencies checks its integrity at startup.
var Categories = []Category{
	{
		ID:          "core-apps",
		Name:        "Core Apps",
		Description: "Primary application modules",
		Features: []Feature{
			{
				ID:          "dashboard",
				Name:        "Dashboard",
				Description: "Home screen with spending summary cards",
				AppID:       "expense-tracker",
				IsCore:      true,
			},
			{
				ID:          "expenses",
				Name:        "Expense Manager",
				Description: "Record and browse expense entries",
				AppID:       "expense-tracker",
				Dependents:  []string{"analytics", "budgets"},
			},
		},
	},
	{
		ID:          "insights",
		Name:        "Insights",
		Description: "Analytics and reporting",
		Features: []Feature{
			{
				ID:           "analytics",
				Name:         "Analytics Dashboard",
				Description:  "Spending trends and category breakdowns",
				AppID:        "analytics",
				Dependencies: []string{"expenses"},
				Dependents:   []string{"reports"},
			},
			{
				ID:           "reports",
				Name:         "PDF Reports",
				Description:  "Exportable monthly expense reports",
				AppID:        "analytics",
				Dependencies: []string{"analytics"},
			},
		},
	},
	{
		ID:          "planning",
		Name:        "Planning",
		Description: "Budgeting tools",
		Features: []Feature{
			{
				ID:           "budgets",
				Name:         "Budget Planner",
				Description:  "Per-category monthly budgets and alerts",
				AppID:        "expense-tracker",
				Dependencies: []string{"expenses"},
			},
		},
	},
	{
		ID:          "administration",
		Name:        "Administration",
		Description: "User, role and system management",
		Features: []Feature{
			{
				ID:          "users",
				Name:        "User Management",
				Description: "Manage user accounts",
				AppID:       "admin",
			},
			{
				ID:          "roles",
				Name:        "Role Management",
				Description: "Manage roles, permissions and feature visibility",
				AppID:       "admin",
				AdminOnly:   true,
			},
			{
				ID:          "settings",
				Name:        "System Settings",
				Description: "Application-wide configuration",
				AppID:       "admin",
				AdminOnly:   true,
			},
			{
				ID:          "audit",
				Name:        "Audit Log",
				Description: "History of system changes",
				AppID:       "admin",
			},
		},
	},
	{
		ID:          "mobile",
		Name:        "Mobile Experience",
		Description: "Mobile navigation and engagement",
		Features: []Feature{
			{
				ID:          "navigation",
				Name:        "Bottom Navigation",
				Description: "Mobile tab bar between app sections",
				AppID:       "mobile",
			},
			{
				ID:          "notifications",
				Name:        "Push Notifications",
				Description: "Spending alerts and approval reminders",
				AppID:       "mobile",
			},
		},
	},
}

var featureIndex map[string]Feature

func init() {
	featureIndex = make(map[string]Feature)
	for _, cat := range Categories {
		for _, f := range cat.Features {
			featureIndex[f.ID] = f
		}
	}
}

// FeatureByID looks up a feature across all categories.
func FeatureByID(id string) (Feature, bool) {
	f, ok := featureIndex[id]
	return f, ok
}

// CategoryByID looks up a category.
func CategoryByID(id string) (Category, bool) {
	for _, cat := range Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// AllFeatures returns every feature in the catalog, sorted by id.
func AllFeatures() []Feature {
	out := make([]Feature, 0, len(featureIndex))
	for _, f := range featureIndex {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CoreFeatures returns every feature with IsCore set.
func CoreFeatures() []Feature {
	var out []Feature
	for _, f := range AllFeatures() {
		if f.IsCore {
			out = append(out, f)
		}
	}
	return out
}

// IntegrityReport is the result of a catalog-level dependency check.
type IntegrityReport struct {
	HasCircularDependencies bool
	Cycles                  []string // feature ids at which a cycle was detected
	Errors                  []string // non-cycle defects (unknown references, missing inverses)
}

// Valid reports whether the catalog passed every check.
func (r IntegrityReport) Valid() bool {
	return !r.HasCircularDependencies && len(r.Errors) == 0
}

// ValidateDependencies checks the full feature graph: every referenced id
// must exist, dependencies/dependents must be mutual inverses, and the
// dependency relation must be cycle-free. A defect here is a catalog
// authoring error, reported for the caller to log, not tied to any mutation.
func ValidateDependencies() IntegrityReport {
	var report IntegrityReport

	contains := func(list []string, id string) bool {
		for _, v := range list {
			if v == id {
				return true
			}
		}
		return false
	}

	for _, f := range AllFeatures() {
		for _, dep := range f.Dependencies {
			target, ok := featureIndex[dep]
			if !ok {
				report.Errors = append(report.Errors, fmt.Sprintf("feature %q depends on unknown feature %q", f.ID, dep))
				continue
			}
			if !contains(target.Dependents, f.ID) {
				report.Errors = append(report.Errors, fmt.Sprintf("feature %q lists dependency %q but is missing from its dependents", f.ID, dep))
			}
		}
		for _, dep := range f.Dependents {
			target, ok := featureIndex[dep]
			if !ok {
				report.Errors = append(report.Errors, fmt.Sprintf("feature %q lists unknown dependent %q", f.ID, dep))
				continue
			}
			if !contains(target.Dependencies, f.ID) {
				report.Errors = append(report.Errors, fmt.Sprintf("feature %q lists dependent %q but is missing from its dependencies", f.ID, dep))
			}
		}
	}

	// Cycle detection via DFS with a recursion stack.
	visited := make(map[string]bool, len(featureIndex))
	recStack := make(map[string]bool, len(featureIndex))

	var walk func(id string) bool
	walk = func(id string) bool {
		if recStack[id] {
			report.Cycles = append(report.Cycles, id)
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		recStack[id] = true
		f := featureIndex[id]
		for _, dep := range f.Dependencies {
			if _, ok := featureIndex[dep]; !ok {
				continue // already reported above
			}
			if walk(dep) {
				return true
			}
		}
		recStack[id] = false
		return false
	}

	for _, f := range AllFeatures() {
		if walk(f.ID) {
			report.HasCircularDependencies = true
		}
	}

	return report
}
