package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ExpenseHandler struct {
	expenseService service.ExpenseService
	accessService  *service.AccessService
}

func NewExpenseHandler(expenseService service.ExpenseService, accessService *service.AccessService) *ExpenseHandler {
	return &ExpenseHandler{expenseService: expenseService, accessService: accessService}
}

func (h *ExpenseHandler) RegisterRoutes(router *gin.RouterGroup) {
	expenses := router.Group("/api/expenses")
	{
		expenses.GET("", middleware.RequirePermission("expenses.read"), h.GetExpenses)
		expenses.POST("", middleware.RequirePermission("expenses.write"), h.CreateExpense)
		expenses.DELETE("/:id", middleware.RequirePermission("expenses.delete"), h.DeleteExpense)
	}
}

// GetExpenses returns paginated expense entries. Users below manager level
// only see their own entries.
func (h *ExpenseHandler) GetExpenses(c *gin.Context) {
	role := c.GetString("userRole")
	if !h.accessService.CanView(c.Request.Context(), role, "expense") {
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Expense tracking is not enabled for your role"))
		return
	}

	params := pagination.Parse(c)
	ownOnly := !service.HasMinimumRole(role, model.RoleManager)

	expenses, total, err := h.expenseService.GetExpenses(c.Request.Context(), params.Page, params.Limit, ownOnly, c.GetString("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"expenses": expenses,
		"total":    total,
		"page":     params.Page,
		"limit":    params.Limit,
	}))
}

// CreateExpense records a new expense entry for the authenticated user
func (h *ExpenseHandler) CreateExpense(c *gin.Context) {
	if !h.accessService.CanCreate(c.Request.Context(), c.GetString("userRole"), "expense") {
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Expense tracking is not enabled for your role"))
		return
	}

	var req service.CreateExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	expense, err := h.expenseService.CreateExpense(c.Request.Context(), c.GetString("userID"), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, expense))
}

// DeleteExpense removes an expense entry
func (h *ExpenseHandler) DeleteExpense(c *gin.Context) {
	if !h.accessService.CanDelete(c.Request.Context(), c.GetString("userRole"), "expense") {
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, "You cannot delete expenses"))
		return
	}

	if err := h.expenseService.DeleteExpense(c.Request.Context(), c.GetString("userID"), c.Param("id")); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Expense deleted successfully"}))
}
