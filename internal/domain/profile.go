package domain

import "time"

// Profile is a reusable bundle of output and format settings
type Profile struct {
	ID   int64
	Name string

	OutputTemplate string
	Format         string
	MergeFormat    string

	// ExtraArgs is a free-form yt-dlp argument string
	ExtraArgs string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfileRepository defines the interface for profile data operations
type ProfileRepository interface {
	Create(profile *Profile) error
	GetByID(id int64) (*Profile, error)
	GetAll() ([]*Profile, error)
	Update(profile *Profile) error

	// Delete removes a profile, channels referencing it fall back to no profile
	Delete(id int64) error
}
