package auth

import "time"

// AdminUser is an account allowed to manage the menu.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
