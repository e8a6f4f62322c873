package api

import "github.com/google/uuid"

// GenerateAPIKey returns a fresh operator key in the same shape as the
// built-in default: a recognizable prefix plus a random UUID.
func GenerateAPIKey() string {
	return "cybergym-" + uuid.New().String()
}
