package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_FIFOAndDedupe(t *testing.T) {
	q := newTaskQueue()

	assert.True(t, q.push(&Task{VideoID: "a"}))
	assert.True(t, q.push(&Task{VideoID: "b"}))
	assert.False(t, q.push(&Task{VideoID: "a"}))
	assert.Equal(t, 2, q.len())
	assert.True(t, q.contains("b"))

	first, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "a", first.VideoID)
	assert.Equal(t, TaskClaimed, first.State)

	// popped ids may be queued again
	assert.True(t, q.push(&Task{VideoID: "a"}))

	second, _ := q.pop()
	third, _ := q.pop()
	assert.Equal(t, "b", second.VideoID)
	assert.Equal(t, "a", third.VideoID)

	_, ok = q.pop()
	assert.False(t, ok)
}
