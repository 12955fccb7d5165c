package youtube

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuota_ReservePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "quota.json")

	q := NewQuota(path, 3)
	require.NoError(t, q.Reserve(2))
	assert.ErrorIs(t, q.Reserve(2), ErrQuotaExceeded)

	reloaded := NewQuota(path, 3)
	status := reloaded.Status()
	assert.Equal(t, 2, status.Used)
	assert.Equal(t, 1, status.Remaining)
}

func TestQuota_ResetsAtPacificMidnight(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	q := NewQuota("", 10)
	q.now = func() time.Time { return now }
	q.state = quotaState{}
	require.NoError(t, q.Reserve(4))

	reset := q.Status().ResetAt
	assert.True(t, reset.After(now))
	assert.True(t, reset.Sub(now) <= 24*time.Hour)

	now = reset.Add(time.Second)
	assert.Equal(t, 0, q.Status().Used)
	assert.True(t, q.Status().ResetAt.After(reset))
}

func TestNextPacificMidnight(t *testing.T) {
	// 2024-01-15 07:30 UTC is 23:30 PST on the 14th
	now := time.Date(2024, 1, 15, 7, 30, 0, 0, time.UTC)
	next := nextPacificMidnight(now)
	assert.Equal(t, time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC), next.UTC())
}
