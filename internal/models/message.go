package models

import "time"

// Role identifies who authored a message or owns a session.

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
)

// Valid reports whether the role is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleOperator
}

// Message is one entry in the shared message log between a customer and the
// operator pool. Messages are append-only: never mutated or deleted.
type Message struct {
	ID            string    `json:"id"`
	ThreadOwnerID string    `json:"thread_owner_id"`
	SenderID      string    `json:"sender_id"`
	Content       string    `json:"content"`
	Role          Role      `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}
