package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- DTOs ---

var expenseCategories = map[string]bool{
	"food":      true,
	"transport": true,
	"supplies":  true,
	"utilities": true,
	"other":     true,
}

type CreateExpenseRequest struct {
	Title       string `json:"title" binding:"required"`
	Category    string `json:"category" binding:"required,oneof=food transport supplies utilities other"`
	Amount      string `json:"amount" binding:"required"` // Decimal string
	Currency    string `json:"currency"`
	SpentAt     string `json:"spent_at"` // RFC3339; defaults to now
	ReceiptURL  string `json:"receipt_url"`
	Description string `json:"description"`
}

type ExpenseResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username,omitempty"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	SpentAt     string `json:"spent_at"`
	ReceiptURL  string `json:"receipt_url"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// --- Interface ---

type ExpenseService interface {
	CreateExpense(ctx context.Context, userID string, req CreateExpenseRequest) (ExpenseResponse, error)
	GetExpenses(ctx context.Context, page, limit int, ownOnly bool, userID string) ([]ExpenseResponse, int64, error)
	DeleteExpense(ctx context.Context, actorID, id string) error
}

type expenseService struct {
	expenseRepo repository.ExpenseRepository
	auditRepo   repository.AuditRepository
	txManager   repository.TransactionManager
}

func NewExpenseService(
	expenseRepo repository.ExpenseRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) ExpenseService {
	return &expenseService{
		expenseRepo: expenseRepo,
		auditRepo:   auditRepo,
		txManager:   txManager,
	}
}

// --- Implementation ---

func (s *expenseService) CreateExpense(ctx context.Context, userID string, req CreateExpenseRequest) (ExpenseResponse, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return ExpenseResponse{}, fmt.Errorf("invalid user id: %w", err)
	}

	if !expenseCategories[req.Category] {
		return ExpenseResponse{}, fmt.Errorf("unknown expense category '%s'", req.Category)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return ExpenseResponse{}, fmt.Errorf("invalid amount: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return ExpenseResponse{}, fmt.Errorf("amount must be positive")
	}

	spentAt := time.Now()
	if req.SpentAt != "" {
		parsed, parseErr := time.Parse(time.RFC3339, req.SpentAt)
		if parseErr != nil {
			return ExpenseResponse{}, fmt.Errorf("invalid spent_at: %w", parseErr)
		}
		spentAt = parsed
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	expense := model.Expense{
		UserID:      uid,
		Title:       req.Title,
		Category:    req.Category,
		Amount:      amount,
		Currency:    currency,
		Status:      model.ExpenseStatusPending,
		SpentAt:     spentAt,
		ReceiptURL:  req.ReceiptURL,
		Description: req.Description,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.expenseRepo.Create(txCtx, &expense); err != nil {
			return fmt.Errorf("failed to create expense: %w", err)
		}

		details, _ := json.Marshal(map[string]any{
			"category": expense.Category,
			"amount":   expense.Amount.String(),
			"currency": expense.Currency,
		})
		return s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     &uid,
			Action:     model.ActionCreateExpense,
			EntityID:   expense.ID.String(),
			EntityName: expense.Title,
			Details:    string(details),
		})
	})
	if err != nil {
		return ExpenseResponse{}, err
	}

	return toExpenseResponse(expense), nil
}

func (s *expenseService) GetExpenses(ctx context.Context, page, limit int, ownOnly bool, userID string) ([]ExpenseResponse, int64, error) {
	var filter *uuid.UUID
	if ownOnly {
		uid, err := uuid.Parse(userID)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid user id: %w", err)
		}
		filter = &uid
	}

	expenses, total, err := s.expenseRepo.List(ctx, page, limit, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch expenses: %w", err)
	}

	res := make([]ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		res = append(res, toExpenseResponse(e))
	}
	return res, total, nil
}

func (s *expenseService) DeleteExpense(ctx context.Context, actorID, id string) error {
	expenseID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid expense id: %w", err)
	}

	expense, err := s.expenseRepo.FindByID(ctx, expenseID)
	if err != nil {
		return fmt.Errorf("expense not found: %w", err)
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.expenseRepo.Delete(txCtx, expenseID); err != nil {
			return fmt.Errorf("failed to delete expense: %w", err)
		}

		var userID *uuid.UUID
		if parsed, parseErr := uuid.Parse(actorID); parseErr == nil {
			userID = &parsed
		}
		return s.auditRepo.Log(txCtx, &model.AuditLog{
			UserID:     userID,
			Action:     model.ActionDeleteExpense,
			EntityID:   expense.ID.String(),
			EntityName: expense.Title,
		})
	})
}

// --- Helpers ---

func toExpenseResponse(e model.Expense) ExpenseResponse {
	username := ""
	if e.User != nil {
		username = e.User.Username
	}
	return ExpenseResponse{
		ID:          e.ID.String(),
		UserID:      e.UserID.String(),
		Username:    username,
		Title:       e.Title,
		Category:    e.Category,
		Amount:      e.Amount.String(),
		Currency:    e.Currency,
		Status:      e.Status,
		SpentAt:     e.SpentAt.Format(time.RFC3339),
		ReceiptURL:  e.ReceiptURL,
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}
