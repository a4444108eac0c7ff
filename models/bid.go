package models

import "time"

type BidStatus string

const (
	BidPending  BidStatus = "Pending"
	BidAccepted BidStatus = "Accepted"
)

func ValidBidStatus(s BidStatus) bool {
	return s == BidPending || s == BidAccepted
}

// Bid is a provider's priced offer against one open task. The (task, provider)
// pair is unique; a second bid from the same provider is a conflict, not a crash.
type Bid struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TaskID     uint      `gorm:"not null;uniqueIndex:idx_bids_task_provider" json:"task_id"`
	ProviderID uint      `gorm:"not null;uniqueIndex:idx_bids_task_provider" json:"provider_id"`
	Amount     float64   `gorm:"type:decimal(15,2);not null" json:"amount"`
	Message    *string   `gorm:"type:text" json:"message,omitempty"`
	Status     BidStatus `gorm:"type:varchar(16);not null;default:'Pending'" json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Provider *User `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
}

func (Bid) TableName() string {
	return "bids"
}
