package models

import "time"

// Money-movement ledger entry types.
const (
	TrxPayout = "payout"
	TrxFee    = "fee"
	TrxRefund = "refund"
)

type Transaction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	TaskID          uint      `gorm:"not null;index" json:"task_id"`
	Amount          float64   `gorm:"type:decimal(15,2);not null" json:"amount"`
	OrderID         string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"order_id"`
	TransactionFlow string    `gorm:"type:varchar(8);not null" json:"transaction_flow"`
	TransactionType string    `gorm:"type:varchar(20);not null" json:"transaction_type"`
	Reference       *string   `gorm:"type:varchar(191)" json:"reference,omitempty"`
	Message         *string   `gorm:"type:text" json:"message,omitempty"`
	Status          string    `gorm:"type:varchar(16);not null;default:'Success'" json:"status"`
	CreatedAt       time.Time `json:"-"`
	UpdatedAt       time.Time `json:"-"`
}

func (Transaction) TableName() string {
	return "transactions"
}
