package memory

import (
	"sort"

	"github.com/pkg/errors"

	"yt_archiver/internal/domain"
)

// ProfileRepository is an in-memory implementation of domain.ProfileRepository
type ProfileRepository struct {
	s *Store
}

func (r *ProfileRepository) nameTaken(name string, except int64) bool {
	for id, profile := range r.s.profiles {
		if id != except && profile.Name == name {
			return true
		}
	}
	return false
}

// Create stores a new profile
func (r *ProfileRepository) Create(profile *domain.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.nameTaken(profile.Name, 0) {
		return errors.Wrapf(domain.ErrAlreadyExists, "profile %s", profile.Name)
	}
	profile.ID = r.s.nextID()
	profile.CreatedAt = now()
	profile.UpdatedAt = profile.CreatedAt

	stored := *profile
	r.s.profiles[profile.ID] = &stored
	return nil
}

// GetByID returns a profile by ID
func (r *ProfileRepository) GetByID(id int64) (*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	profile, ok := r.s.profiles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *profile
	return &out, nil
}

// GetAll returns all profiles ordered by name
func (r *ProfileRepository) GetAll() ([]*domain.Profile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	profiles := make([]*domain.Profile, 0, len(r.s.profiles))
	for _, profile := range r.s.profiles {
		out := *profile
		profiles = append(profiles, &out)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// Update replaces a profile
func (r *ProfileRepository) Update(profile *domain.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.profiles[profile.ID]
	if !ok {
		return errors.Wrap(domain.ErrNotFound, "update profile")
	}
	if r.nameTaken(profile.Name, profile.ID) {
		return errors.Wrapf(domain.ErrAlreadyExists, "profile %s", profile.Name)
	}

	profile.CreatedAt = existing.CreatedAt
	profile.UpdatedAt = now()
	stored := *profile
	r.s.profiles[profile.ID] = &stored
	return nil
}

// Delete removes a profile and detaches the channels using it
func (r *ProfileRepository) Delete(id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.profiles[id]; !ok {
		return errors.Wrap(domain.ErrNotFound, "delete profile")
	}
	delete(r.s.profiles, id)

	for _, channel := range r.s.channels {
		if channel.ProfileID != nil && *channel.ProfileID == id {
			channel.ProfileID = nil
		}
	}
	return nil
}
