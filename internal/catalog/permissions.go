package catalog

// PermissionDef is a static catalog entry. The catalog is seeded into the
// permissions table at startup and is never mutated at runtime.
type PermissionDef struct {
	Key         string
	Name        string
	Description string
	Category    string
}

// Permissions is the full permission catalog, grouped by category.
var Permissions = []PermissionDef{
	// Dashboard
	{Key: "dashboard.read", Name: "View Dashboard", Description: "Access the dashboard and summary widgets", Category: "dashboard"},

	// Expenses
	{Key: "expenses.read", Name: "View Expenses", Description: "View expense entries", Category: "expenses"},
	{Key: "expenses.write", Name: "Manage Expenses", Description: "Create and edit expense entries", Category: "expenses"},
	{Key: "expenses.delete", Name: "Delete Expenses", Description: "Delete expense entries", Category: "expenses"},

	// Reports
	{Key: "reports.read", Name: "View Reports", Description: "View analytics and spending reports", Category: "reports"},
	{Key: "reports.export", Name: "Export Reports", Description: "Generate and download PDF reports", Category: "reports"},

	// Users
	{Key: "users.read", Name: "View Users", Description: "View user accounts", Category: "users"},
	{Key: "users.write", Name: "Manage Users", Description: "Create and edit user accounts", Category: "users"},
	{Key: "users.delete", Name: "Delete Users", Description: "Delete user accounts", Category: "users"},

	// Roles & permissions
	{Key: "roles.manage", Name: "Manage Roles", Description: "Create, edit and delete roles and their permissions", Category: "roles"},
	{Key: "features.manage", Name: "Manage Feature Visibility", Description: "Toggle feature visibility per role", Category: "roles"},

	// Audit
	{Key: "audit.read", Name: "View Audit Log", Description: "View the history of system changes", Category: "audit"},

	// Settings
	{Key: "settings.read", Name: "View Settings", Description: "View application settings", Category: "settings"},
	{Key: "settings.write", Name: "Manage Settings", Description: "Change application settings", Category: "settings"},
}
