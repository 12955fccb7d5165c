package sqlite

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"yt_archiver/internal/domain"
)

const channelColumns = `id, url, channel_id, channel_name, flat_mode, auto_add_new_playlists, enabled,
	rescrape_interval_days, last_scraped_at, download_metadata, embed_metadata, download_thumbnail,
	embed_thumbnail, download_subtitles, embed_subtitles, auto_subtitles, subtitle_languages,
	sponsorblock_enabled, sponsorblock_mode, sponsorblock_categories, custom_args, profile_id,
	created_at, updated_at`

// ChannelRepository is a SQLite implementation of domain.ChannelRepository.
type ChannelRepository struct {
	db *sql.DB
}

// NewChannelRepository creates a new ChannelRepository backed by SQLite.
func NewChannelRepository(db *sql.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// Create inserts a new channel and fills its ID.
func (r *ChannelRepository) Create(channel *domain.Channel) error {
	now := time.Now().UTC()
	channel.CreatedAt = now
	channel.UpdatedAt = now
	if channel.RescrapeIntervalDays <= 0 {
		channel.RescrapeIntervalDays = domain.DefaultRescrapeIntervalDays
	}
	if channel.SponsorBlockMode == "" {
		channel.SponsorBlockMode = domain.SponsorBlockMark
	}

	res, err := r.db.Exec(`INSERT INTO channels
		(url, channel_id, channel_name, flat_mode, auto_add_new_playlists, enabled, rescrape_interval_days,
			last_scraped_at, download_metadata, embed_metadata, download_thumbnail, embed_thumbnail,
			download_subtitles, embed_subtitles, auto_subtitles, subtitle_languages, sponsorblock_enabled,
			sponsorblock_mode, sponsorblock_categories, custom_args, profile_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		channel.URL, nullableString(channel.ExternalID), nullableString(channel.Name),
		boolToInt(channel.FlatMode), boolToInt(channel.AutoAddNewPlaylists), boolToInt(channel.Enabled),
		channel.RescrapeIntervalDays, nullableTimePtr(channel.LastScrapedAt),
		boolToInt(channel.DownloadMetadata), boolToInt(channel.EmbedMetadata),
		boolToInt(channel.DownloadThumbnail), boolToInt(channel.EmbedThumbnail),
		boolToInt(channel.DownloadSubtitles), boolToInt(channel.EmbedSubtitles), boolToInt(channel.AutoSubtitles),
		nullableString(channel.SubtitleLanguages), boolToInt(channel.SponsorBlockEnabled),
		string(channel.SponsorBlockMode), nullableString(channel.SponsorBlockCategories),
		nullableString(channel.CustomArgs), nullableInt64Ptr(channel.ProfileID), now, now)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrAlreadyExists, "channel %s", channel.URL)
	}
	if err != nil {
		return errors.Wrap(err, "insert channel")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "read channel id")
	}
	channel.ID = id
	return nil
}

// GetByID returns a channel by ID.
func (r *ChannelRepository) GetByID(id int64) (*domain.Channel, error) {
	row := r.db.QueryRow(`SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	channel, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return channel, errors.Wrapf(err, "get channel %d", id)
}

// GetAll returns all channels, newest first.
func (r *ChannelRepository) GetAll() ([]*domain.Channel, error) {
	rows, err := r.db.Query(`SELECT ` + channelColumns + ` FROM channels ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query channels")
	}
	defer rows.Close()

	var channels []*domain.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan channel")
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}

// Update persists every mutable field of a channel.
func (r *ChannelRepository) Update(channel *domain.Channel) error {
	channel.UpdatedAt = time.Now().UTC()

	res, err := r.db.Exec(`UPDATE channels SET
			url = ?, flat_mode = ?, auto_add_new_playlists = ?, enabled = ?, rescrape_interval_days = ?,
			download_metadata = ?, embed_metadata = ?, download_thumbnail = ?, embed_thumbnail = ?,
			download_subtitles = ?, embed_subtitles = ?, auto_subtitles = ?, subtitle_languages = ?,
			sponsorblock_enabled = ?, sponsorblock_mode = ?, sponsorblock_categories = ?, custom_args = ?,
			profile_id = ?, updated_at = ?
		WHERE id = ?`,
		channel.URL, boolToInt(channel.FlatMode), boolToInt(channel.AutoAddNewPlaylists), boolToInt(channel.Enabled),
		channel.RescrapeIntervalDays, boolToInt(channel.DownloadMetadata), boolToInt(channel.EmbedMetadata),
		boolToInt(channel.DownloadThumbnail), boolToInt(channel.EmbedThumbnail),
		boolToInt(channel.DownloadSubtitles), boolToInt(channel.EmbedSubtitles), boolToInt(channel.AutoSubtitles),
		nullableString(channel.SubtitleLanguages), boolToInt(channel.SponsorBlockEnabled),
		string(channel.SponsorBlockMode), nullableString(channel.SponsorBlockCategories),
		nullableString(channel.CustomArgs), nullableInt64Ptr(channel.ProfileID), channel.UpdatedAt, channel.ID)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrAlreadyExists, "channel %s", channel.URL)
	}
	return requireAffected(res, err, "update channel")
}

// UpdateIdentity stores the resolved external channel ID and name.
func (r *ChannelRepository) UpdateIdentity(id int64, externalID, name string) error {
	res, err := r.db.Exec(`UPDATE channels SET channel_id = ?, channel_name = ?, updated_at = ? WHERE id = ?`,
		nullableString(externalID), nullableString(name), time.Now().UTC(), id)
	return requireAffected(res, err, "update channel identity")
}

// TouchScraped stamps the last scrape time.
func (r *ChannelRepository) TouchScraped(id int64, at time.Time) error {
	res, err := r.db.Exec(`UPDATE channels SET last_scraped_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id)
	return requireAffected(res, err, "touch channel")
}

// Delete removes a channel together with its playlists and videos.
func (r *ChannelRepository) Delete(id int64) error {
	res, err := r.db.Exec(`DELETE FROM channels WHERE id = ?`, id)
	return requireAffected(res, err, "delete channel")
}

func requireAffected(res sql.Result, err error, op string) error {
	if err != nil {
		return errors.Wrap(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op)
	}
	if n == 0 {
		return errors.Wrap(domain.ErrNotFound, op)
	}
	return nil
}

func scanChannel(row scanner) (*domain.Channel, error) {
	var (
		channel     domain.Channel
		externalID  sql.NullString
		name        sql.NullString
		flatMode    int
		autoAdd     int
		enabled     int
		lastScraped sql.NullTime
		toggles     [7]int
		subLangs    sql.NullString
		sbEnabled   int
		sbMode      string
		sbCats      sql.NullString
		customArgs  sql.NullString
		profileID   sql.NullInt64
	)

	if err := row.Scan(
		&channel.ID,
		&channel.URL,
		&externalID,
		&name,
		&flatMode,
		&autoAdd,
		&enabled,
		&channel.RescrapeIntervalDays,
		&lastScraped,
		&toggles[0],
		&toggles[1],
		&toggles[2],
		&toggles[3],
		&toggles[4],
		&toggles[5],
		&toggles[6],
		&subLangs,
		&sbEnabled,
		&sbMode,
		&sbCats,
		&customArgs,
		&profileID,
		&channel.CreatedAt,
		&channel.UpdatedAt,
	); err != nil {
		return nil, err
	}

	channel.ExternalID = externalID.String
	channel.Name = name.String
	channel.FlatMode = flatMode == 1
	channel.AutoAddNewPlaylists = autoAdd == 1
	channel.Enabled = enabled == 1
	channel.LastScrapedAt = timePtr(lastScraped)
	channel.DownloadMetadata = toggles[0] == 1
	channel.EmbedMetadata = toggles[1] == 1
	channel.DownloadThumbnail = toggles[2] == 1
	channel.EmbedThumbnail = toggles[3] == 1
	channel.DownloadSubtitles = toggles[4] == 1
	channel.EmbedSubtitles = toggles[5] == 1
	channel.AutoSubtitles = toggles[6] == 1
	channel.SubtitleLanguages = subLangs.String
	channel.SponsorBlockEnabled = sbEnabled == 1
	channel.SponsorBlockMode = domain.SponsorBlockMode(sbMode)
	channel.SponsorBlockCategories = sbCats.String
	channel.CustomArgs = customArgs.String
	channel.ProfileID = int64Ptr(profileID)

	return &channel, nil
}
