package models

import "time"

// User is a registered account. Accounts are deactivated, never removed.
type User struct {
	ID           int       `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	FirstName    *string   `db:"first_name" json:"first_name"`
	LastName     *string   `db:"last_name" json:"last_name"`
	ProfileImage *string   `db:"profile_image" json:"profile_image,omitempty"`
	PasswordHash string    `db:"hashed_password" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// NewUser carries the fields needed to create a user.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    *string
	LastName     *string
	ProfileImage *string
}

// UserUpdate is a partial update; nil fields are left untouched.
type UserUpdate struct {
	Email        *string
	FirstName    *string
	LastName     *string
	ProfileImage *string
	PasswordHash *string
	IsActive     *bool
}

// UserProfile is the public view of a chat peer.
type UserProfile struct {
	ID        int     `json:"id"`
	Username  string  `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

// Profile returns the public view of the user.
func (u User) Profile() UserProfile {
	return UserProfile{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}
