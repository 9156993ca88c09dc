package queue

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateTaskID returns a new id of the form task-<epoch-ms>, per
// spec §3 and §9's Open Question resolution: the format is kept exactly
// as specified, disambiguation is layered on top rather than replacing
// it.
//
// Grounded on internal/task/store.go's GenerateTaskID/
// GenerateTaskIDUnique pair, but avoids that function's busy
// millisecond-sleep loop: collisions are disambiguated with a random
// 3-digit suffix instead of blocking the clock.
func GenerateTaskID(now time.Time) string {
	return fmt.Sprintf("task-%d", now.UnixMilli())
}

// Disambiguate appends a random 3-digit suffix to id, for use when id
// already exists in the store (genuine concurrent creation within the
// same millisecond, per spec §9).
func Disambiguate(id string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	suffix := 0
	if err == nil {
		suffix = int(n.Int64())
	}
	return fmt.Sprintf("%s-%03d", id, suffix)
}

// UniqueTaskID returns an id of the form GenerateTaskID, disambiguated
// against existingIDs if necessary.
func UniqueTaskID(now time.Time, existingIDs map[string]bool) string {
	id := GenerateTaskID(now)
	for existingIDs[id] {
		id = Disambiguate(id)
	}
	return id
}
