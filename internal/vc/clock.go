package vc

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so diff timestamps and record names are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs. Used for checkpoint IDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
