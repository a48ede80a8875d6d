package model

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string     `gorm:"type:varchar(50);not null" json:"name"`
	Email            string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash     string     `gorm:"column:password_hash;not null" json:"-"`
	Role             Role       `gorm:"type:varchar(20);not null;default:'USER'" json:"role"`
	StripeCustomerID *string    `gorm:"type:varchar(255);uniqueIndex" json:"stripe_customer_id,omitempty"`
	IsActive         bool       `gorm:"not null" json:"is_active"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
