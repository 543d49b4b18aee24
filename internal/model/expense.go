package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Expense status enum constants
const (
	ExpenseStatusPending  = "PENDING"
	ExpenseStatusApproved = "APPROVED"
	ExpenseStatusRejected = "REJECTED"
)

// Expense represents a single spending entry recorded by a user
type Expense struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User        *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Category    string          `gorm:"type:varchar(50);not null;index" json:"category"` // food, transport, supplies, utilities, other
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency    string          `gorm:"type:varchar(10);not null;default:'USD'" json:"currency"`
	Status      string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	SpentAt     time.Time       `gorm:"not null;index" json:"spent_at"`
	ReceiptURL  string          `gorm:"type:text" json:"receipt_url"`
	Description string          `gorm:"type:text" json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
