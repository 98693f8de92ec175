package domain

import (
	"github.com/google/uuid"
)

// NewID generates a UUIDv7 string for data collections and join results.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
