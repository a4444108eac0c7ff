package models

import "time"

// Review is post-completion feedback, at most one per (task, reviewer).
// Creating one recalculates the reviewee's running average rating.
type Review struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TaskID     uint      `gorm:"not null;uniqueIndex:idx_reviews_task_reviewer" json:"task_id"`
	ReviewerID uint      `gorm:"not null;uniqueIndex:idx_reviews_task_reviewer" json:"reviewer_id"`
	RevieweeID uint      `gorm:"not null;index" json:"reviewee_id"`
	Rating     int       `gorm:"not null" json:"rating"`
	Comment    *string   `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	Reviewer *User `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
}

func (Review) TableName() string {
	return "reviews"
}
