package service

import (
	"context"
	"fmt"
	"sort"

	"backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// In-memory repository fakes. They mirror the postgres-backed implementations
// closely enough for service-level tests: lookups return
// gorm.ErrRecordNotFound on a miss, and the visibility fake can be told to
// fail writes so revert paths can be exercised.

type fakeRoleRepo struct {
	roles      map[uuid.UUID]*model.Role
	perms      map[string]model.Permission
	userCounts map[string]int64
}

func newFakeRoleRepo() *fakeRoleRepo {
	return &fakeRoleRepo{
		roles:      make(map[uuid.UUID]*model.Role),
		perms:      make(map[string]model.Permission),
		userCounts: make(map[string]int64),
	}
}

func (f *fakeRoleRepo) addRole(name, displayName string, isSystem bool, permKeys ...string) *model.Role {
	role := &model.Role{
		ID:          uuid.New(),
		Name:        name,
		DisplayName: displayName,
		Description: "test role",
		IsSystem:    isSystem,
	}
	for _, key := range permKeys {
		perm, ok := f.perms[key]
		if !ok {
			perm = model.Permission{ID: uuid.New(), Key: key, Name: key, Category: "test"}
			f.perms[key] = perm
		}
		role.Permissions = append(role.Permissions, perm)
	}
	f.roles[role.ID] = role
	return role
}

func (f *fakeRoleRepo) Create(ctx context.Context, role *model.Role) error {
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	stored := *role
	f.roles[role.ID] = &stored
	return nil
}

func (f *fakeRoleRepo) Save(ctx context.Context, role *model.Role) error {
	stored := *role
	f.roles[role.ID] = &stored
	return nil
}

func (f *fakeRoleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.roles[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.roles, id)
	return nil
}

func (f *fakeRoleRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	role, ok := f.roles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *role
	return &copied, nil
}

func (f *fakeRoleRepo) FindByName(ctx context.Context, name string) (*model.Role, error) {
	for _, role := range f.roles {
		if role.Name == name {
			copied := *role
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRoleRepo) ListAll(ctx context.Context) ([]model.Role, error) {
	out := make([]model.Role, 0, len(f.roles))
	for _, role := range f.roles {
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRoleRepo) ListPermissions(ctx context.Context) ([]model.Permission, error) {
	out := make([]model.Permission, 0, len(f.perms))
	for _, p := range f.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeRoleRepo) FindPermissionsByKeys(ctx context.Context, keys []string) ([]model.Permission, error) {
	var out []model.Permission
	for _, key := range keys {
		if p, ok := f.perms[key]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeRoleRepo) ReplacePermissions(ctx context.Context, roleID uuid.UUID, perms []model.Permission) error {
	role, ok := f.roles[roleID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	role.Permissions = append([]model.Permission(nil), perms...)
	return nil
}

func (f *fakeRoleRepo) GetPermissionKeysByRoleName(ctx context.Context, roleName string) ([]string, error) {
	role, err := f.FindByName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		keys = append(keys, p.Key)
	}
	return keys, nil
}

func (f *fakeRoleRepo) FindOrCreatePermission(ctx context.Context, perm *model.Permission) error {
	if existing, ok := f.perms[perm.Key]; ok {
		*perm = existing
		return nil
	}
	if perm.ID == uuid.Nil {
		perm.ID = uuid.New()
	}
	f.perms[perm.Key] = *perm
	return nil
}

func (f *fakeRoleRepo) ReassignUsers(ctx context.Context, oldSlug, newSlug string) error {
	if count, ok := f.userCounts[oldSlug]; ok {
		f.userCounts[newSlug] += count
		delete(f.userCounts, oldSlug)
	}
	return nil
}

func (f *fakeRoleRepo) CountUsersByRole(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(f.userCounts))
	for k, v := range f.userCounts {
		out[k] = v
	}
	return out, nil
}

type fakeVisibilityRepo struct {
	entries    map[string]model.RoleFeatureVisibility
	failWrites bool
}

func newFakeVisibilityRepo() *fakeVisibilityRepo {
	return &fakeVisibilityRepo{entries: make(map[string]model.RoleFeatureVisibility)}
}

func (f *fakeVisibilityRepo) key(e model.RoleFeatureVisibility) string {
	return e.RoleID.String() + "/" + e.FeatureID
}

func (f *fakeVisibilityRepo) ListAll(ctx context.Context) ([]model.RoleFeatureVisibility, error) {
	out := make([]model.RoleFeatureVisibility, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeVisibilityRepo) Upsert(ctx context.Context, entry *model.RoleFeatureVisibility) error {
	if f.failWrites {
		return fmt.Errorf("write failed")
	}
	f.entries[f.key(*entry)] = *entry
	return nil
}

func (f *fakeVisibilityRepo) BulkUpsert(ctx context.Context, entries []model.RoleFeatureVisibility) (int, error) {
	if f.failWrites {
		return 0, fmt.Errorf("write failed")
	}
	for _, e := range entries {
		f.entries[f.key(e)] = e
	}
	return len(entries), nil
}

type fakeAuditRepo struct {
	logs []model.AuditLog
}

func (f *fakeAuditRepo) Log(ctx context.Context, entry *model.AuditLog) error {
	f.logs = append(f.logs, *entry)
	return nil
}

func (f *fakeAuditRepo) List(ctx context.Context, page, limit int, action string) ([]model.AuditLog, int64, error) {
	var out []model.AuditLog
	for _, l := range f.logs {
		if action == "" || l.Action == action {
			out = append(out, l)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeAuditRepo) actions() []string {
	out := make([]string, 0, len(f.logs))
	for _, l := range f.logs {
		out = append(out, l.Action)
	}
	return out
}

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}
