package domain

import "time"

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the public view of a user resolved for a single request.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Identity strips everything but id and username.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, Username: u.Username}
}
