package youtube

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrQuotaExceeded is returned once the daily unit budget is spent
var ErrQuotaExceeded = errors.New("youtube api daily quota exceeded")

// QuotaStatus is a snapshot of the daily budget
type QuotaStatus struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type quotaState struct {
	Used    int       `json:"used"`
	ResetAt time.Time `json:"reset_at"`
}

// Quota tracks API units spent per Pacific day and persists them to a JSON file
type Quota struct {
	mu    sync.Mutex
	path  string
	limit int
	now   func() time.Time
	state quotaState
}

// NewQuota loads the quota file at path. A missing or unreadable file starts a fresh day.
func NewQuota(path string, limit int) *Quota {
	q := &Quota{
		path:  path,
		limit: limit,
		now:   time.Now,
	}
	q.load()
	return q
}

// Reserve spends units or returns ErrQuotaExceeded without spending anything
func (q *Quota) Reserve(units int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	if q.state.Used+units > q.limit {
		return errors.Wrapf(ErrQuotaExceeded, "used %d of %d units, resets at %s",
			q.state.Used, q.limit, q.state.ResetAt.Format(time.RFC3339))
	}

	q.state.Used += units
	return q.save()
}

// Status returns the current usage
func (q *Quota) Status() QuotaStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	return QuotaStatus{
		Used:      q.state.Used,
		Limit:     q.limit,
		Remaining: q.limit - q.state.Used,
		ResetAt:   q.state.ResetAt,
	}
}

func (q *Quota) load() {
	data, err := os.ReadFile(q.path)
	if err == nil {
		_ = json.Unmarshal(data, &q.state)
	}
	q.rollover()
}

// rollover starts a new day once the reset time has passed
func (q *Quota) rollover() {
	now := q.now()
	if q.state.ResetAt.IsZero() || !now.Before(q.state.ResetAt) {
		q.state = quotaState{ResetAt: nextPacificMidnight(now)}
	}
}

func (q *Quota) save() error {
	if q.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0755); err != nil {
		return errors.Wrap(err, "create quota directory")
	}
	data, err := json.MarshalIndent(q.state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode quota")
	}
	if err := os.WriteFile(q.path, data, 0644); err != nil {
		return errors.Wrap(err, "write quota file")
	}
	return nil
}

// YouTube resets quotas at midnight Pacific time
func nextPacificMidnight(now time.Time) time.Time {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		loc = time.FixedZone("PST", -8*60*60)
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
}
