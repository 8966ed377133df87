package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixApp = "app_"
)

// NewApp generates a new protected-app entry ID with app_ prefix
func NewApp() string {
	return PrefixApp + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
