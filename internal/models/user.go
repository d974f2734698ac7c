package models

import "time"

// User represents a portal owner account. User management itself is an
// external collaborator; the upload core only reads users and their linked
// OAuth accounts.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}
