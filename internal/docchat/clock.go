package docchat

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies timestamps for documents, activities, messages and token
// expiry checks.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator mints document, activity and message IDs.
type IDGenerator interface {
	New() string
}

// UUIDGenerator mints random (v4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
