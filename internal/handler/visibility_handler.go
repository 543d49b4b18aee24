package handler

import (
	"net/http"

	"backend/internal/catalog"
	"backend/internal/middleware"
	"backend/internal/service"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type VisibilityHandler struct {
	visibility  *service.VisibilityService
	roleService service.RoleService
}

func NewVisibilityHandler(visibility *service.VisibilityService, roleService service.RoleService) *VisibilityHandler {
	return &VisibilityHandler{visibility: visibility, roleService: roleService}
}

func (h *VisibilityHandler) RegisterRoutes(router *gin.RouterGroup) {
	features := router.Group("/api/features")
	features.Use(middleware.RequirePermission("features.manage"))
	{
		features.GET("", h.GetCatalog)
		features.GET("/matrix", h.GetMatrix)
		features.PUT("/roles/:roleId", h.UpdateRoleFeature)
		features.POST("/roles/:roleId/toggle", h.ToggleFeature)
		features.GET("/roles/:roleId/preview", h.PreviewRole)
		features.POST("/roles/:roleId/pending", h.AddPendingChange)
		features.DELETE("/roles/:roleId/pending", h.ClearPendingChanges)
		features.POST("/bulk", h.BulkUpdate)
		features.POST("/bulk/impact", h.BulkImpact)
	}
}

// GetCatalog returns the static feature catalog grouped by category
func (h *VisibilityHandler) GetCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, catalog.Categories))
}

// GetMatrix returns the active feature set for every role
func (h *VisibilityHandler) GetMatrix(c *gin.Context) {
	roles, err := h.roleService.ListRoles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	matrix := make(map[string][]string, len(roles))
	for _, role := range roles {
		active := h.visibility.ActiveFeatures(role.ID)
		ids := make([]string, 0, len(active))
		for id := range active {
			ids = append(ids, id)
		}
		matrix[role.ID] = ids
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, matrix))
}

type updateFeatureRequest struct {
	FeatureID string `json:"feature_id" binding:"required"`
	Enabled   *bool  `json:"enabled" binding:"required"`
}

// UpdateRoleFeature validates and commits a single feature change for a role
func (h *VisibilityHandler) UpdateRoleFeature(c *gin.Context) {
	var req updateFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.visibility.UpdateRoleFeatures(c.Request.Context(), c.GetString("userID"), c.Param("roleId"), req.FeatureID, *req.Enabled)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

type toggleFeatureRequest struct {
	FeatureID string `json:"feature_id" binding:"required"`
}

// ToggleFeature flips a feature relative to current state; the change is
// debounced and committed after the quiet period.
func (h *VisibilityHandler) ToggleFeature(c *gin.Context) {
	var req toggleFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	h.visibility.ToggleFeature(c.GetString("userID"), c.Param("roleId"), req.FeatureID)
	c.JSON(http.StatusAccepted, response.Success(http.StatusAccepted, gin.H{"message": "Toggle queued"}))
}

// PreviewRole projects the role's interface from committed plus pending state
func (h *VisibilityHandler) PreviewRole(c *gin.Context) {
	preview := h.visibility.PreviewRoleInterface(c.Param("roleId"))
	c.JSON(http.StatusOK, response.Success(http.StatusOK, preview))
}

// AddPendingChange records a speculative change for what-if preview
func (h *VisibilityHandler) AddPendingChange(c *gin.Context) {
	var req updateFeatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	h.visibility.AddPendingChange(c.Param("roleId"), req.FeatureID, *req.Enabled)
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Pending change recorded"}))
}

// ClearPendingChanges drops all speculative changes for a role
func (h *VisibilityHandler) ClearPendingChanges(c *gin.Context) {
	h.visibility.ClearPendingChanges(c.Param("roleId"))
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Pending changes cleared"}))
}

// BulkUpdate enables or disables a whole category of features across roles
func (h *VisibilityHandler) BulkUpdate(c *gin.Context) {
	var req service.BulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.visibility.BulkUpdateFeatures(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

type bulkImpactRequest struct {
	RoleIDs    []string `json:"role_ids" binding:"required"`
	CategoryID string   `json:"category_id" binding:"required"`
}

// BulkImpact projects the reach of a bulk operation without applying it
func (h *VisibilityHandler) BulkImpact(c *gin.Context) {
	var req bulkImpactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	impact, err := h.visibility.CalculateBulkOperationImpact(c.Request.Context(), req.RoleIDs, req.CategoryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, impact))
}
