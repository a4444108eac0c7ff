package models

import "time"

type User struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:100;not null" json:"name"`
	Email         string    `gorm:"size:191;uniqueIndex;not null" json:"email"`
	Password      string    `gorm:"size:255;not null" json:"-"`
	RatingAvg     float64   `gorm:"type:decimal(3,2);not null;default:0" json:"rating_avg"`
	RatingCount   uint      `gorm:"not null;default:0" json:"rating_count"`
	PayoutAccount *string   `gorm:"type:varchar(191)" json:"payout_account,omitempty"`
	Status        string    `gorm:"type:varchar(16);not null;default:'Active'" json:"status"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"-"`
}

func (User) TableName() string {
	return "users"
}
