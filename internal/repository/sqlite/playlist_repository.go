package sqlite

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"yt_archiver/internal/domain"
)

const playlistColumns = `id, channel_id, playlist_id, title, url, video_count, enabled, last_scraped_at,
	created_at, updated_at`

// PlaylistRepository is a SQLite implementation of domain.PlaylistRepository.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository backed by SQLite.
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Upsert inserts a playlist or refreshes title, URL and video count of an existing one.
// The enabled flag of an existing playlist is never changed here.
func (r *PlaylistRepository) Upsert(playlist *domain.Playlist) (*domain.Playlist, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, false, errors.Wrap(err, "begin playlist upsert")
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var id int64
	err = tx.QueryRow(`SELECT id FROM playlists WHERE channel_id = ? AND playlist_id = ?`,
		playlist.ChannelID, playlist.ExternalID).Scan(&id)

	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.Exec(`INSERT INTO playlists
			(channel_id, playlist_id, title, url, video_count, enabled, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			playlist.ChannelID, playlist.ExternalID, nullableString(playlist.Title), nullableString(playlist.URL),
			playlist.VideoCount, boolToInt(playlist.Enabled), now, now)
		if err != nil {
			return nil, false, errors.Wrap(err, "insert playlist")
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, false, errors.Wrap(err, "read playlist id")
		}
		created = true
	case err != nil:
		return nil, false, errors.Wrap(err, "find playlist")
	default:
		_, err = tx.Exec(`UPDATE playlists SET title = ?, url = ?, video_count = ?, updated_at = ? WHERE id = ?`,
			nullableString(playlist.Title), nullableString(playlist.URL), playlist.VideoCount, now, id)
		if err != nil {
			return nil, false, errors.Wrap(err, "update playlist")
		}
	}

	stored, err := scanPlaylist(tx.QueryRow(`SELECT `+playlistColumns+` FROM playlists WHERE id = ?`, id))
	if err != nil {
		return nil, false, errors.Wrap(err, "read playlist")
	}
	if err := tx.Commit(); err != nil {
		return nil, false, errors.Wrap(err, "commit playlist upsert")
	}
	return stored, created, nil
}

// GetByID returns a playlist by ID.
func (r *PlaylistRepository) GetByID(id int64) (*domain.Playlist, error) {
	row := r.db.QueryRow(`SELECT `+playlistColumns+` FROM playlists WHERE id = ?`, id)
	playlist, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return playlist, errors.Wrapf(err, "get playlist %d", id)
}

// GetByChannel returns playlists of a channel ordered by title.
func (r *PlaylistRepository) GetByChannel(channelID int64) ([]*domain.Playlist, error) {
	rows, err := r.db.Query(`SELECT `+playlistColumns+` FROM playlists WHERE channel_id = ?
		ORDER BY title COLLATE NOCASE ASC, id ASC`, channelID)
	if err != nil {
		return nil, errors.Wrap(err, "query playlists")
	}
	defer rows.Close()

	var playlists []*domain.Playlist
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan playlist")
		}
		playlists = append(playlists, playlist)
	}
	return playlists, rows.Err()
}

// SetEnabled toggles a playlist.
func (r *PlaylistRepository) SetEnabled(id int64, enabled bool) error {
	res, err := r.db.Exec(`UPDATE playlists SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), time.Now().UTC(), id)
	return requireAffected(res, err, "set playlist enabled")
}

// TouchScraped stamps the last enumeration time.
func (r *PlaylistRepository) TouchScraped(id int64, at time.Time) error {
	res, err := r.db.Exec(`UPDATE playlists SET last_scraped_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
	return requireAffected(res, err, "touch playlist")
}

func scanPlaylist(row scanner) (*domain.Playlist, error) {
	var (
		playlist    domain.Playlist
		title       sql.NullString
		url         sql.NullString
		enabled     int
		lastScraped sql.NullTime
	)

	if err := row.Scan(
		&playlist.ID,
		&playlist.ChannelID,
		&playlist.ExternalID,
		&title,
		&url,
		&playlist.VideoCount,
		&enabled,
		&lastScraped,
		&playlist.CreatedAt,
		&playlist.UpdatedAt,
	); err != nil {
		return nil, err
	}

	playlist.Title = title.String
	playlist.URL = url.String
	playlist.Enabled = enabled == 1
	playlist.LastScrapedAt = timePtr(lastScraped)
	return &playlist, nil
}
