package models

import "time"

// Payment is the audit record for a card payment intent created against a task.
// The task itself carries the intent reference; this row keeps the client secret
// and the processor-side status for resuming an abandoned payment.
type Payment struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	TaskID       uint       `gorm:"not null;index" json:"task_id"`
	OrderID      string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"order_id"`
	IntentID     *string    `gorm:"type:varchar(191);index" json:"intent_id,omitempty"`
	ClientSecret *string    `gorm:"type:text" json:"client_secret,omitempty"`
	Amount       float64    `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency     string     `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status       string     `gorm:"type:varchar(16);not null;default:'Pending'" json:"status"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}
