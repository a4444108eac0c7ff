package models

import "time"

// Service is a provider-owned fixed-price listing. Booking one creates a task
// directly against the provider, skipping the bidding phase (instant booking).
type Service struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ProviderID  uint      `gorm:"not null;index" json:"provider_id"`
	Title       string    `gorm:"type:varchar(150);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"type:varchar(50);index" json:"category"`
	Price       float64   `gorm:"type:decimal(15,2);not null" json:"price"`
	Currency    string    `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status      string    `gorm:"type:varchar(16);not null;default:'Active'" json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Provider *User `gorm:"foreignKey:ProviderID" json:"provider,omitempty"`
}

func (Service) TableName() string {
	return "services"
}
