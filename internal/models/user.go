package models

import "time"

// Principal is the authenticated identity consumed by the engine. Absence
// means "unauthenticated"; it is immutable for the lifetime of a session.
type Principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Role        Role   `json:"role"`
}

// User is the stored account backing a principal.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal derives the engine-facing identity from a stored user.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, DisplayName: u.Name, Role: u.Role}
}

// Contact is a customer known to have at least one message on record.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
