package sqlite

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"yt_archiver/internal/domain"
)

const profileColumns = `id, name, output_template, format, merge_format, extra_args, created_at, updated_at`

// ProfileRepository is a SQLite implementation of domain.ProfileRepository.
type ProfileRepository struct {
	db *sql.DB
}

// NewProfileRepository creates a new ProfileRepository backed by SQLite.
func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create inserts a profile and fills its ID.
func (r *ProfileRepository) Create(profile *domain.Profile) error {
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	res, err := r.db.Exec(`INSERT INTO profiles
		(name, output_template, format, merge_format, extra_args, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		profile.Name, nullableString(profile.OutputTemplate), nullableString(profile.Format),
		nullableString(profile.MergeFormat), nullableString(profile.ExtraArgs), now, now)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrAlreadyExists, "profile %s", profile.Name)
	}
	if err != nil {
		return errors.Wrap(err, "insert profile")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "read profile id")
	}
	profile.ID = id
	return nil
}

// GetByID returns a profile by ID.
func (r *ProfileRepository) GetByID(id int64) (*domain.Profile, error) {
	row := r.db.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return profile, errors.Wrapf(err, "get profile %d", id)
}

// GetAll returns every profile ordered by name.
func (r *ProfileRepository) GetAll() ([]*domain.Profile, error) {
	rows, err := r.db.Query(`SELECT ` + profileColumns + ` FROM profiles ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "query profiles")
	}
	defer rows.Close()

	var profiles []*domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan profile")
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

// Update persists a profile.
func (r *ProfileRepository) Update(profile *domain.Profile) error {
	profile.UpdatedAt = time.Now().UTC()

	res, err := r.db.Exec(`UPDATE profiles SET name = ?, output_template = ?, format = ?, merge_format = ?,
			extra_args = ?, updated_at = ?
		WHERE id = ?`,
		profile.Name, nullableString(profile.OutputTemplate), nullableString(profile.Format),
		nullableString(profile.MergeFormat), nullableString(profile.ExtraArgs), profile.UpdatedAt, profile.ID)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrAlreadyExists, "profile %s", profile.Name)
	}
	return requireAffected(res, err, "update profile")
}

// Delete removes a profile. Channels referencing it are detached by the foreign key.
func (r *ProfileRepository) Delete(id int64) error {
	res, err := r.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	return requireAffected(res, err, "delete profile")
}

func scanProfile(row scanner) (*domain.Profile, error) {
	var (
		profile     domain.Profile
		template    sql.NullString
		format      sql.NullString
		mergeFormat sql.NullString
		extraArgs   sql.NullString
	)

	if err := row.Scan(
		&profile.ID,
		&profile.Name,
		&template,
		&format,
		&mergeFormat,
		&extraArgs,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return nil, err
	}

	profile.OutputTemplate = template.String
	profile.Format = format.String
	profile.MergeFormat = mergeFormat.String
	profile.ExtraArgs = extraArgs.String
	return &profile, nil
}
