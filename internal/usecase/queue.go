package usecase

import (
	"context"
	"time"

	"yt_archiver/internal/domain"
)

// TaskState is the in-memory lifecycle of a queued download
type TaskState string

const (
	TaskQueued      TaskState = "queued"
	TaskClaimed     TaskState = "claimed"
	TaskDownloading TaskState = "downloading"
)

// Task is one queued video download. Tasks are never persisted.
type Task struct {
	VideoID    string
	ChannelID  *int64
	PlaylistID *int64
	URL        string

	// PlaylistItem is the 1-based index inside URL when URL is a playlist
	PlaylistItem int

	Options *domain.Invocation
	State   TaskState
}

// taskQueue is a FIFO of tasks that rejects IDs it already holds.
// It is not safe for concurrent use; DownloadManager guards it with its mutex.
type taskQueue struct {
	tasks  []*Task
	queued map[string]struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{queued: make(map[string]struct{})}
}

func (q *taskQueue) push(t *Task) bool {
	if _, ok := q.queued[t.VideoID]; ok {
		return false
	}
	t.State = TaskQueued
	q.tasks = append(q.tasks, t)
	q.queued[t.VideoID] = struct{}{}
	return true
}

func (q *taskQueue) pop() (*Task, bool) {
	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	delete(q.queued, t.VideoID)
	t.State = TaskClaimed
	return t, true
}

func (q *taskQueue) contains(videoID string) bool {
	_, ok := q.queued[videoID]
	return ok
}

func (q *taskQueue) len() int {
	return len(q.tasks)
}

// activeDownload tracks a task between claim and its final status write
type activeDownload struct {
	task      *Task
	progress  float64
	startedAt time.Time
	outputDir string
	cancel    context.CancelFunc

	// finishing is set once the worker owns the final status write
	finishing bool
}

// ActiveDownloadStatus is the public view of one in-flight download
type ActiveDownloadStatus struct {
	VideoID        string  `json:"video_id"`
	Progress       float64 `json:"progress"`
	ElapsedSeconds int64   `json:"elapsed"`
	OutputDir      string  `json:"output_dir"`
}

// QueueStatus is a snapshot of the download pool
type QueueStatus struct {
	Queued    int                    `json:"queue"`
	Active    int                    `json:"active"`
	Running   bool                   `json:"running"`
	Downloads []ActiveDownloadStatus `json:"downloads"`
}
