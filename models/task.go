package models

import "time"

type TaskStatus string

const (
	TaskOpen                TaskStatus = "Open"
	TaskPendingPayment      TaskStatus = "Pending Payment"
	TaskAssigned            TaskStatus = "Assigned"
	TaskCompletedByProvider TaskStatus = "CompletedByProvider"
	TaskCompleted           TaskStatus = "Completed"
	TaskCancelled           TaskStatus = "Cancelled"
)

func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskOpen, TaskPendingPayment, TaskAssigned, TaskCompletedByProvider, TaskCompleted, TaskCancelled:
		return true
	default:
		return false
	}
}

type PaymentMethod string

const (
	PayStripe PaymentMethod = "Stripe"
	PayCash   PaymentMethod = "Cash"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	return m == PayStripe || m == PayCash
}

type Task struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	SeekerID        uint          `gorm:"not null;index" json:"seeker_id"`
	ProviderID      *uint         `gorm:"index" json:"provider_id,omitempty"`
	Title           string        `gorm:"type:varchar(150);not null" json:"title"`
	Description     string        `gorm:"type:text" json:"description"`
	Category        string        `gorm:"type:varchar(50);index" json:"category"`
	BudgetAmount    float64       `gorm:"type:decimal(15,2);not null" json:"budget_amount"`
	Currency        string        `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Lat             float64       `gorm:"type:decimal(10,7)" json:"lat"`
	Lng             float64       `gorm:"type:decimal(10,7)" json:"lng"`
	Status          TaskStatus    `gorm:"type:varchar(32);not null;default:'Open';index" json:"status"`
	PaymentMethod   PaymentMethod `gorm:"type:varchar(10)" json:"payment_method,omitempty"`
	PaymentIntentID *string       `gorm:"type:varchar(191);index" json:"payment_intent_id,omitempty"`
	Paid            bool          `gorm:"not null;default:false" json:"paid"`
	AcceptedAmount  float64       `gorm:"type:decimal(15,2);not null;default:0" json:"accepted_amount"`
	InstantBooking  bool          `gorm:"not null;default:false" json:"instant_booking"`
	ServiceID       *uint         `gorm:"index" json:"service_id,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`

	Seeker   *User    `gorm:"foreignKey:SeekerID" json:"seeker,omitempty"`
	Provider *User    `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
	Bids     []Bid    `gorm:"foreignKey:TaskID" json:"bids,omitempty"`
	Reviews  []Review `gorm:"foreignKey:TaskID" json:"reviews,omitempty"`
}

func (Task) TableName() string {
	return "tasks"
}
