package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"backend/internal/catalog"
	"backend/internal/model"
	"backend/internal/repository"
	ws "backend/internal/websocket"

	"github.com/google/uuid"
)

// --- DTOs ---

// FeatureChangeEvent is pushed to subscribers and websocket clients after
// every committed visibility change.
type FeatureChangeEvent struct {
	Type        string `json:"type"`
	RoleID      string `json:"role_id"`
	RoleName    string `json:"role_name"`
	FeatureID   string `json:"feature_id"`
	FeatureName string `json:"feature_name"`
	Enabled     bool   `json:"enabled"`
}

// UpdateResult reports the outcome of a committed feature change.
type UpdateResult struct {
	AffectedUsers        int64    `json:"affected_users"`
	CascadeDisabled      []string `json:"cascade_disabled,omitempty"`
	Warnings             []string `json:"warnings,omitempty"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
}

type BulkUpdateRequest struct {
	RoleIDs    []string `json:"role_ids" binding:"required"`
	CategoryID string   `json:"category_id" binding:"required"`
	Action     string   `json:"action" binding:"required,oneof=enable disable"`
}

// BulkItemError identifies a single (role, feature) pair that failed during a
// best-effort bulk update.
type BulkItemError struct {
	RoleID    string `json:"role_id"`
	FeatureID string `json:"feature_id"`
	Message   string `json:"message"`
}

// BulkResult reports per-item outcomes; bulk updates are best-effort, one
// failed pair does not stop the rest.
type BulkResult struct {
	Updated int             `json:"updated"`
	Failed  []BulkItemError `json:"failed,omitempty"`
}

// ImpactResult is a read-only projection of what a bulk operation would touch.
type ImpactResult struct {
	AffectedUsers int64    `json:"affected_users"`
	FeatureCount  int      `json:"feature_count"`
	RoleCount     int      `json:"role_count"`
	Warnings      []string `json:"warnings,omitempty"`
}

type NavItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	AppID string `json:"app_id"`
}

type NavSection struct {
	CategoryID   string    `json:"category_id"`
	CategoryName string    `json:"category_name"`
	Features     []NavItem `json:"features"`
}

// Accessibility levels reported by PreviewRoleInterface.
const (
	AccessFull     = "full"
	AccessStandard = "standard"
	AccessLimited  = "limited"
)

// RolePreview is a what-if projection of a role's interface, merging
// committed state with pending (uncommitted) changes.
type RolePreview struct {
	RoleID             string       `json:"role_id"`
	ActiveFeatures     []string     `json:"active_features"`
	Navigation         []NavSection `json:"navigation"`
	AccessibilityLevel string       `json:"accessibility_level"`
	Warnings           []string     `json:"warnings,omitempty"`
}

// pendingToggle is one debounce-queue entry; the queue keeps only the latest
// entry per (role, feature).
type pendingToggle struct {
	ActorID   string
	RoleID    string
	FeatureID string
	Enabled   bool
	QueuedAt  time.Time
}

const (
	debounceQuietPeriod = time.Second
	bulkImpactThreshold = 5
)

// VisibilityService owns the per-role feature activation matrix: the
// in-memory mirror of persisted visibility rows, the debounce queue that
// coalesces rapid toggling, preview state, and the change-event registry.
type VisibilityService struct {
	visibilityRepo repository.VisibilityRepository
	roleRepo       repository.RoleRepository
	auditRepo      repository.AuditRepository
	hub            *ws.Hub

	mu      sync.Mutex
	matrix  map[string]map[string]bool // roleID -> featureID -> active
	pending map[string]map[string]bool // speculative changes for preview only

	queue      map[string]pendingToggle // key roleID+"/"+featureID, last write wins
	queueTimer *time.Timer

	subscribers map[int]func(FeatureChangeEvent)
	nextSubID   int
}

func NewVisibilityService(
	visibilityRepo repository.VisibilityRepository,
	roleRepo repository.RoleRepository,
	auditRepo repository.AuditRepository,
	hub *ws.Hub,
) *VisibilityService {
	return &VisibilityService{
		visibilityRepo: visibilityRepo,
		roleRepo:       roleRepo,
		auditRepo:      auditRepo,
		hub:            hub,
		matrix:         make(map[string]map[string]bool),
		pending:        make(map[string]map[string]bool),
		queue:          make(map[string]pendingToggle),
		subscribers:    make(map[int]func(FeatureChangeEvent)),
	}
}

// Load builds the in-memory matrix from persisted visibility rows. A feature
// is active iff both isVisible and isEnabled; core features are forced active
// for every role regardless of rows, so they can never be observed inactive.
func (s *VisibilityService) Load(ctx context.Context) error {
	roles, err := s.roleRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load roles: %w", err)
	}

	entries, err := s.visibilityRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load feature visibility: %w", err)
	}

	matrix := make(map[string]map[string]bool, len(roles))
	for _, role := range roles {
		active := make(map[string]bool)
		for _, f := range catalog.CoreFeatures() {
			active[f.ID] = true
		}
		matrix[role.ID.String()] = active
	}

	for _, entry := range entries {
		roleID := entry.RoleID.String()
		if matrix[roleID] == nil {
			matrix[roleID] = make(map[string]bool)
		}
		if feature, ok := catalog.FeatureByID(entry.FeatureID); ok && feature.IsCore {
			continue // core stays active no matter what the row says
		}
		if entry.Active() {
			matrix[roleID][entry.FeatureID] = true
		}
	}

	s.mu.Lock()
	s.matrix = matrix
	s.mu.Unlock()
	return nil
}

// SeedDefaults writes the default visibility rows for the built-in roles on
// first boot. Roles that already have any row are left alone, so admin
// customizations survive restarts.
func (s *VisibilityService) SeedDefaults(ctx context.Context) error {
	defaults := map[string][]string{
		model.RoleAdministrator:  nil, // nil means every feature
		model.RoleManager:        {"expenses", "analytics", "reports", "budgets", "users", "audit", "navigation", "notifications"},
		model.RoleTeacher:        {"expenses", "budgets", "navigation", "notifications"},
		model.RoleAccountOfficer: {"expenses", "analytics", "reports", "navigation"},
	}

	roles, err := s.roleRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load roles: %w", err)
	}

	existing, err := s.visibilityRepo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load feature visibility: %w", err)
	}
	seeded := make(map[string]bool, len(existing))
	for _, e := range existing {
		seeded[e.RoleID.String()] = true
	}

	var entries []model.RoleFeatureVisibility
	for _, role := range roles {
		featureIDs, ok := defaults[role.Name]
		if !ok || seeded[role.ID.String()] {
			continue
		}
		if featureIDs == nil {
			for _, f := range catalog.AllFeatures() {
				featureIDs = append(featureIDs, f.ID)
			}
		}
		for _, id := range featureIDs {
			feature, found := catalog.FeatureByID(id)
			if !found {
				continue
			}
			entries = append(entries, model.RoleFeatureVisibility{
				RoleID:        role.ID,
				FeatureID:     feature.ID,
				AppID:         feature.AppID,
				IsVisible:     true,
				IsEnabled:     true,
				Configuration: "{}",
			})
		}
	}

	if len(entries) > 0 {
		if _, err := s.visibilityRepo.BulkUpsert(ctx, entries); err != nil {
			return fmt.Errorf("failed to seed feature visibility: %w", err)
		}
	}
	return s.Load(ctx)
}

// ActiveFeatures returns a copy of the committed active set for a role.
func (s *VisibilityService) ActiveFeatures(roleID string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSet(roleID)
}

// activeSet copies the role's committed set with core features forced active.
// Roles created after the matrix was loaded have no row yet; the union keeps
// core features active for them too. Callers must hold s.mu.
func (s *VisibilityService) activeSet(roleID string) map[string]bool {
	out := copySet(s.matrix[roleID])
	for _, f := range catalog.CoreFeatures() {
		out[f.ID] = true
	}
	return out
}

// UpdateRoleFeatures validates and commits a single feature change for a
// role. Disabling a feature cascades to its active dependents. The in-memory
// matrix is updated optimistically and reverted if the persisted write fails.
func (s *VisibilityService) UpdateRoleFeatures(ctx context.Context, actorID, roleID, featureID string, enabled bool) (UpdateResult, error) {
	rid, err := uuid.Parse(roleID)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("invalid role id: %w", err)
	}

	role, err := s.roleRepo.FindByID(ctx, rid)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("role not found: %w", err)
	}

	var affected int64
	if counts, countErr := s.roleRepo.CountUsersByRole(ctx); countErr == nil {
		affected = counts[role.Name]
	}

	s.mu.Lock()
	active := s.activeSet(roleID)
	s.mu.Unlock()

	result := ValidateFeatureChange(role.Name, active, featureID, enabled, FeatureChangeOptions{AffectedUsers: affected})
	if !result.Valid {
		return UpdateResult{}, fmt.Errorf("%s", result.Errors[0])
	}

	feature, _ := catalog.FeatureByID(featureID)

	// Optimistic apply with snapshot for revert.
	s.mu.Lock()
	snapshot := copySet(s.matrix[roleID])
	if s.matrix[roleID] == nil {
		s.matrix[roleID] = make(map[string]bool)
	}
	var cascaded []string
	if enabled {
		s.matrix[roleID][featureID] = true
	} else {
		delete(s.matrix[roleID], featureID)
		cascaded = cascadeDisable(s.matrix[roleID], featureID)
	}
	s.mu.Unlock()

	entries := make([]model.RoleFeatureVisibility, 0, 1+len(cascaded))
	entries = append(entries, model.RoleFeatureVisibility{
		RoleID:        rid,
		FeatureID:     featureID,
		AppID:         feature.AppID,
		IsVisible:     enabled,
		IsEnabled:     enabled,
		Configuration: "{}",
	})
	for _, dep := range cascaded {
		depFeature, _ := catalog.FeatureByID(dep)
		entries = append(entries, model.RoleFeatureVisibility{
			RoleID:        rid,
			FeatureID:     dep,
			AppID:         depFeature.AppID,
			IsVisible:     false,
			IsEnabled:     false,
			Configuration: "{}",
		})
	}

	if _, err := s.visibilityRepo.BulkUpsert(ctx, entries); err != nil {
		// Revert the optimistic change; the store remains the source of truth.
		s.mu.Lock()
		s.matrix[roleID] = snapshot
		s.mu.Unlock()
		return UpdateResult{}, fmt.Errorf("failed to persist feature change: %w", err)
	}

	s.auditFeatureChange(ctx, actorID, role, feature, enabled, cascaded)
	s.notify(FeatureChangeEvent{
		Type:        "feature_update",
		RoleID:      roleID,
		RoleName:    role.Name,
		FeatureID:   featureID,
		FeatureName: feature.Name,
		Enabled:     enabled,
	})

	return UpdateResult{
		AffectedUsers:        affected,
		CascadeDisabled:      cascaded,
		Warnings:             result.Warnings,
		RequiresConfirmation: result.RequiresConfirmation,
	}, nil
}

// ToggleFeature flips a feature relative to current state and enqueues the
// change on the debounce queue instead of committing immediately. Rapid
// repeated toggles within the quiet period collapse into one write.
func (s *VisibilityService) ToggleFeature(actorID, roleID, featureID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.activeSet(roleID)[featureID]
	key := roleID + "/" + featureID
	if queued, ok := s.queue[key]; ok {
		current = queued.Enabled
	}

	s.queue[key] = pendingToggle{
		ActorID:   actorID,
		RoleID:    roleID,
		FeatureID: featureID,
		Enabled:   !current,
		QueuedAt:  time.Now(),
	}

	if s.queueTimer != nil {
		s.queueTimer.Stop()
	}
	s.queueTimer = time.AfterFunc(debounceQuietPeriod, func() {
		s.flushAndLog(context.Background())
	})
}

// flushAndLog drains the queue and logs dropped toggles. The timer path has
// no caller to return failures to, so they go to the log instead of vanishing.
func (s *VisibilityService) flushAndLog(ctx context.Context) {
	for _, item := range s.Flush(ctx) {
		log.Printf("Debounced feature toggle dropped: role=%s feature=%s: %s", item.RoleID, item.FeatureID, item.Message)
	}
}

// Flush drains the debounce queue immediately, applying the surviving
// last-write-wins entry per (role, feature). Safe to call from tests or on
// shutdown; a no-op when the queue is empty.
func (s *VisibilityService) Flush(ctx context.Context) []BulkItemError {
	s.mu.Lock()
	if s.queueTimer != nil {
		s.queueTimer.Stop()
		s.queueTimer = nil
	}
	drained := s.queue
	s.queue = make(map[string]pendingToggle)
	s.mu.Unlock()

	if len(drained) == 0 {
		return nil
	}

	// Stable apply order: oldest enqueue first.
	toggles := make([]pendingToggle, 0, len(drained))
	for _, t := range drained {
		toggles = append(toggles, t)
	}
	sort.Slice(toggles, func(i, j int) bool { return toggles[i].QueuedAt.Before(toggles[j].QueuedAt) })

	var failed []BulkItemError
	for _, t := range toggles {
		if _, err := s.UpdateRoleFeatures(ctx, t.ActorID, t.RoleID, t.FeatureID, t.Enabled); err != nil {
			failed = append(failed, BulkItemError{RoleID: t.RoleID, FeatureID: t.FeatureID, Message: err.Error()})
		}
	}
	return failed
}

// Close stops the debounce timer without draining.
func (s *VisibilityService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueTimer != nil {
		s.queueTimer.Stop()
		s.queueTimer = nil
	}
}

// BulkUpdateFeatures applies a category-wide enable/disable across roles.
// Best-effort fan-out: each (role, feature) pair is validated and committed
// independently and failures are reported per item.
func (s *VisibilityService) BulkUpdateFeatures(ctx context.Context, actorID string, req BulkUpdateRequest) (BulkResult, error) {
	roles, err := s.roleRepo.ListAll(ctx)
	if err != nil {
		return BulkResult{}, fmt.Errorf("failed to load roles: %w", err)
	}

	allIDs := make([]string, 0, len(roles))
	for _, r := range roles {
		allIDs = append(allIDs, r.ID.String())
	}
	if result := ValidateBulkOperation(req.RoleIDs, req.CategoryID, req.Action, allIDs); !result.Valid {
		return BulkResult{}, fmt.Errorf("%s", result.Errors[0])
	}

	category, _ := catalog.CategoryByID(req.CategoryID)
	enabled := req.Action == "enable"

	var out BulkResult
	for _, roleID := range req.RoleIDs {
		for _, feature := range category.Features {
			if !enabled && feature.IsCore {
				continue // untouchable, skip rather than fail every role
			}
			if _, err := s.UpdateRoleFeatures(ctx, actorID, roleID, feature.ID, enabled); err != nil {
				out.Failed = append(out.Failed, BulkItemError{RoleID: roleID, FeatureID: feature.ID, Message: err.Error()})
				continue
			}
			out.Updated++
		}
	}

	s.auditBulk(ctx, actorID, req, out)
	return out, nil
}

// CalculateBulkOperationImpact projects what a bulk operation would touch
// without mutating anything.
func (s *VisibilityService) CalculateBulkOperationImpact(ctx context.Context, roleIDs []string, categoryID string) (ImpactResult, error) {
	category, ok := catalog.CategoryByID(categoryID)
	if !ok {
		return ImpactResult{}, fmt.Errorf("category not found: %s", categoryID)
	}

	roles, err := s.roleRepo.ListAll(ctx)
	if err != nil {
		return ImpactResult{}, fmt.Errorf("failed to load roles: %w", err)
	}
	counts, err := s.roleRepo.CountUsersByRole(ctx)
	if err != nil {
		return ImpactResult{}, fmt.Errorf("failed to count users: %w", err)
	}

	roleNames := make(map[string]string, len(roles))
	for _, r := range roles {
		roleNames[r.ID.String()] = r.Name
	}

	res := ImpactResult{
		FeatureCount: len(category.Features),
		RoleCount:    len(roleIDs),
	}
	for _, id := range roleIDs {
		if name, ok := roleNames[id]; ok {
			res.AffectedUsers += counts[name]
		}
	}

	if res.AffectedUsers > bulkImpactThreshold {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("This operation affects %d users across %d roles", res.AffectedUsers, res.RoleCount))
	}
	return res, nil
}

// AddPendingChange records a speculative change for preview only; nothing is
// validated or persisted until the caller commits through UpdateRoleFeatures.
func (s *VisibilityService) AddPendingChange(roleID, featureID string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[roleID] == nil {
		s.pending[roleID] = make(map[string]bool)
	}
	s.pending[roleID][featureID] = enabled
}

// ClearPendingChanges drops all speculative changes for a role.
func (s *VisibilityService) ClearPendingChanges(roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, roleID)
}

// PreviewRoleInterface merges committed and pending state into a projection
// of the role's interface: active features, navigation grouped by category,
// an accessibility classification and heuristic warnings.
func (s *VisibilityService) PreviewRoleInterface(roleID string) RolePreview {
	s.mu.Lock()
	active := s.activeSet(roleID)
	for featureID, enabled := range s.pending[roleID] {
		if feature, ok := catalog.FeatureByID(featureID); ok && feature.IsCore {
			continue
		}
		if enabled {
			active[featureID] = true
		} else {
			delete(active, featureID)
			cascadeDisable(active, featureID)
		}
	}
	s.mu.Unlock()

	preview := RolePreview{RoleID: roleID}
	for id := range active {
		preview.ActiveFeatures = append(preview.ActiveFeatures, id)
	}
	sort.Strings(preview.ActiveFeatures)

	coreAppActive := false
	for _, cat := range catalog.Categories {
		section := NavSection{CategoryID: cat.ID, CategoryName: cat.Name}
		for _, f := range cat.Features {
			if !active[f.ID] {
				continue
			}
			section.Features = append(section.Features, NavItem{ID: f.ID, Name: f.Name, AppID: f.AppID})
			if cat.ID == "core-apps" {
				coreAppActive = true
			}
		}
		if len(section.Features) > 0 {
			preview.Navigation = append(preview.Navigation, section)
		}
	}

	switch {
	case coreAppActive && active["analytics"]:
		preview.AccessibilityLevel = AccessFull
	case coreAppActive:
		preview.AccessibilityLevel = AccessStandard
	default:
		preview.AccessibilityLevel = AccessLimited
	}

	if len(preview.ActiveFeatures) < 3 {
		preview.Warnings = append(preview.Warnings, "Fewer than 3 features active; the interface may feel empty")
	}
	if !active["navigation"] {
		preview.Warnings = append(preview.Warnings, "Navigation feature is disabled; mobile users cannot switch sections")
	}

	return preview
}

// Subscribe registers a change listener and returns its disposer. Callbacks
// run synchronously on the mutating goroutine after a successful commit.
func (s *VisibilityService) Subscribe(fn func(FeatureChangeEvent)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// --- internals ---

func (s *VisibilityService) notify(event FeatureChangeEvent) {
	s.mu.Lock()
	subs := make([]func(FeatureChangeEvent), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}

	if s.hub != nil {
		if msg, err := json.Marshal(event); err == nil {
			select {
			case s.hub.Broadcast <- msg:
			default:
			}
		}
	}
}

func (s *VisibilityService) auditFeatureChange(ctx context.Context, actorID string, role *model.Role, feature catalog.Feature, enabled bool, cascaded []string) {
	var userID *uuid.UUID
	if parsed, err := uuid.Parse(actorID); err == nil {
		userID = &parsed
	}
	details, _ := json.Marshal(map[string]any{
		"role":     role.Name,
		"enabled":  enabled,
		"cascaded": cascaded,
	})
	_ = s.auditRepo.Log(ctx, &model.AuditLog{
		UserID:     userID,
		Action:     model.ActionToggleFeature,
		EntityID:   feature.ID,
		EntityName: feature.Name,
		Details:    string(details),
	})
}

func (s *VisibilityService) auditBulk(ctx context.Context, actorID string, req BulkUpdateRequest, res BulkResult) {
	var userID *uuid.UUID
	if parsed, err := uuid.Parse(actorID); err == nil {
		userID = &parsed
	}
	details, _ := json.Marshal(map[string]any{
		"role_ids": req.RoleIDs,
		"action":   req.Action,
		"updated":  res.Updated,
		"failed":   len(res.Failed),
	})
	_ = s.auditRepo.Log(ctx, &model.AuditLog{
		UserID:   userID,
		Action:   model.ActionBulkUpdateFeatures,
		EntityID: req.CategoryID,
		Details:  string(details),
	})
}

// cascadeDisable removes every transitively dependent feature that is still
// active, returning the ids that were deactivated.
func cascadeDisable(active map[string]bool, featureID string) []string {
	var disabled []string
	feature, ok := catalog.FeatureByID(featureID)
	if !ok {
		return nil
	}
	for _, dep := range feature.Dependents {
		if active[dep] {
			delete(active, dep)
			disabled = append(disabled, dep)
			disabled = append(disabled, cascadeDisable(active, dep)...)
		}
	}
	return disabled
}

func copySet(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
