package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionToken returns an opaque visitor credential: two random UUIDs without dashes.
func NewSessionToken() string {
	return compactUUID() + compactUUID()
}

// NewRefreshToken returns an opaque admin refresh token.
func NewRefreshToken() string {
	return "rt_" + compactUUID() + compactUUID()
}

// NewTempID returns a client-local id for a message that has not been confirmed yet.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

const TempIDPrefix = "tmp-"

func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
