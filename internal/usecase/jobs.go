package usecase

import (
	"time"
)

// JobState is the lifecycle of a background enumeration
type JobState string

const (
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// finished jobs are kept this long for polling
const jobRetention = time.Hour

// EnumerationResult summarizes one playlist enumeration of a channel
type EnumerationResult struct {
	ChannelID    int64  `json:"channel_id"`
	ExternalID   string `json:"external_id"`
	ChannelName  string `json:"channel_name"`
	Playlists    int    `json:"playlists"`
	NewPlaylists int    `json:"new_playlists"`
}

// Job is a snapshot of a background enumeration
type Job struct {
	ID         string             `json:"id"`
	ChannelID  int64              `json:"channel_id"`
	State      JobState           `json:"state"`
	Result     *EnumerationResult `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// Done reports whether the job reached a final state
func (j Job) Done() bool {
	return j.State != JobRunning
}

type job struct {
	Job
	cancel func()
	done   chan struct{}
}
