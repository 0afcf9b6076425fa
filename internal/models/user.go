package models

import "time"

// User is the public view of a registered user. The password hash lives
// only in the users table and is never carried on this struct.
type User struct {
	ID            int       `json:"id" db:"id"`
	Username      string    `json:"username" db:"username"`
	Email         string    `json:"email" db:"email"`
	AccountID     string    `json:"account_id" db:"account_id"`
	InitialAmount int64     `json:"initial_amount" db:"initial_amount"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
