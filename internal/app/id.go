package app

import "github.com/google/uuid"

// generateID produces a tenant identifier. It doubles as the payment order
// ID, so it must stay within the provider's 50 character limit.
func generateID() string {
	return uuid.NewString()
}
