package queue_test

import (
	"strings"
	"testing"
	"time"

	"github.com/flowlock/flowlock/internal/queue"
	"github.com/stretchr/testify/assert"
)

func TestGenerateTaskID(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id := queue.GenerateTaskID(now)
	assert.True(t, strings.HasPrefix(id, "task-"))
}

func TestDisambiguate(t *testing.T) {
	t.Parallel()

	id := "task-123"
	d := queue.Disambiguate(id)
	assert.True(t, strings.HasPrefix(d, "task-123-"))
	assert.NotEqual(t, id, d)
}

func TestUniqueTaskID_NoCollision(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id := queue.UniqueTaskID(now, map[string]bool{})
	assert.Equal(t, queue.GenerateTaskID(now), id)
}

func TestUniqueTaskID_ResolvesCollision(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	base := queue.GenerateTaskID(now)
	existing := map[string]bool{base: true}

	id := queue.UniqueTaskID(now, existing)
	assert.NotEqual(t, base, id)
	assert.True(t, strings.HasPrefix(id, base+"-"))
}
