package sqlite

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"yt_archiver/internal/domain"
)

const videoColumns = `video_id, channel_id, playlist_id, title, url, uploader, upload_date, duration,
	playlist_index, download_status, downloaded_at, file_path, file_size, error_message,
	resolution, fps, vcodec, acodec, created_at, updated_at`

// VideoRepository is a SQLite implementation of domain.VideoRepository.
type VideoRepository struct {
	db *sql.DB
}

// NewVideoRepository creates a new VideoRepository backed by SQLite.
func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Upsert inserts a pending video. Existing rows only get their title refreshed.
func (r *VideoRepository) Upsert(video *domain.Video) error {
	now := time.Now().UTC()
	video.CreatedAt = now
	video.UpdatedAt = now
	if video.Status == "" {
		video.Status = domain.VideoStatusPending
	}

	_, err := r.db.Exec(`INSERT INTO videos
		(video_id, channel_id, playlist_id, title, url, uploader, upload_date, duration, playlist_index,
			download_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at`,
		video.ID, nullableInt64Ptr(video.ChannelID), nullableInt64Ptr(video.PlaylistID), video.Title, video.URL,
		nullableString(video.Uploader), nullableString(video.UploadDate), video.Duration, video.PlaylistIndex,
		string(video.Status), now, now)
	return errors.Wrapf(err, "upsert video %s", video.ID)
}

// GetByID returns a video by its external ID.
func (r *VideoRepository) GetByID(id string) (*domain.Video, error) {
	row := r.db.QueryRow(`SELECT `+videoColumns+` FROM videos WHERE video_id = ?`, id)
	video, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return video, errors.Wrapf(err, "get video %s", id)
}

// GetByPlaylist returns videos of a playlist in playlist order.
func (r *VideoRepository) GetByPlaylist(playlistID int64) ([]*domain.Video, error) {
	return r.query(`SELECT `+videoColumns+` FROM videos WHERE playlist_id = ?
		ORDER BY playlist_index ASC, created_at ASC`, playlistID)
}

// GetByChannel returns videos of a channel, newest first.
func (r *VideoRepository) GetByChannel(channelID int64) ([]*domain.Video, error) {
	return r.query(`SELECT `+videoColumns+` FROM videos WHERE channel_id = ?
		ORDER BY created_at DESC, playlist_index ASC`, channelID)
}

// GetPending returns pending videos ordered by oldest first.
func (r *VideoRepository) GetPending() ([]*domain.Video, error) {
	return r.query(`SELECT `+videoColumns+` FROM videos WHERE download_status = ?
		ORDER BY created_at ASC, playlist_id ASC, playlist_index ASC`, domain.VideoStatusPending)
}

// ListByStatus returns recently updated videos with the given status.
func (r *VideoRepository) ListByStatus(status domain.VideoStatus, limit, offset int) ([]*domain.Video, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return r.query(`SELECT `+videoColumns+` FROM videos WHERE download_status = ?
		ORDER BY updated_at DESC LIMIT ? OFFSET ?`, status, limit, offset)
}

// CountByStatus returns the number of videos per status.
func (r *VideoRepository) CountByStatus() (map[domain.VideoStatus]int, error) {
	rows, err := r.db.Query(`SELECT download_status, COUNT(*) FROM videos GROUP BY download_status`)
	if err != nil {
		return nil, errors.Wrap(err, "count videos")
	}
	defer rows.Close()

	counts := make(map[domain.VideoStatus]int, len(domain.AllVideoStatuses))
	for _, status := range domain.AllVideoStatuses {
		counts[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "scan video count")
		}
		counts[domain.VideoStatus(status)] = count
	}
	return counts, rows.Err()
}

// Claim moves a pending video to downloading in a single conditional update.
func (r *VideoRepository) Claim(id string) (bool, error) {
	res, err := r.db.Exec(`UPDATE videos SET download_status = ?, error_message = NULL, updated_at = ?
		WHERE video_id = ? AND download_status = ?`,
		domain.VideoStatusDownloading, time.Now().UTC(), id, domain.VideoStatusPending)
	if err != nil {
		return false, errors.Wrapf(err, "claim video %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "claim video %s", id)
	}
	return n == 1, nil
}

// MarkCompleted records a finished download.
func (r *VideoRepository) MarkCompleted(id string, completion domain.Completion) error {
	downloadedAt := completion.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = time.Now()
	}

	res, err := r.db.Exec(`UPDATE videos SET download_status = ?, downloaded_at = ?, file_path = ?, file_size = ?,
			error_message = NULL, resolution = ?, fps = ?, vcodec = ?, acodec = ?, updated_at = ?
		WHERE video_id = ? AND download_status = ?`,
		domain.VideoStatusCompleted, downloadedAt.UTC(), nullableString(completion.FilePath), completion.FileSize,
		nullableString(completion.Resolution), completion.FPS, nullableString(completion.VideoCodec),
		nullableString(completion.AudioCodec), time.Now().UTC(), id, domain.VideoStatusDownloading)
	return r.checkTransition(res, err, id, domain.VideoStatusCompleted)
}

// MarkFailed records a failed download with its error message.
func (r *VideoRepository) MarkFailed(id string, errorMsg string) error {
	res, err := r.db.Exec(`UPDATE videos SET download_status = ?, error_message = ?, updated_at = ?
		WHERE video_id = ? AND download_status = ?`,
		domain.VideoStatusFailed, errorMsg, time.Now().UTC(), id, domain.VideoStatusDownloading)
	return r.checkTransition(res, err, id, domain.VideoStatusFailed)
}

// Reset moves a completed or failed video back to pending.
func (r *VideoRepository) Reset(id string) error {
	res, err := r.db.Exec(`UPDATE videos SET download_status = ?, downloaded_at = NULL, file_path = NULL,
			file_size = 0, error_message = NULL, updated_at = ?
		WHERE video_id = ? AND download_status IN (?, ?)`,
		domain.VideoStatusPending, time.Now().UTC(), id, domain.VideoStatusCompleted, domain.VideoStatusFailed)
	return r.checkTransition(res, err, id, domain.VideoStatusPending)
}

// ResetFailed moves every failed video back to pending.
func (r *VideoRepository) ResetFailed() ([]string, error) {
	rows, err := r.db.Query(`UPDATE videos SET download_status = ?, error_message = NULL, updated_at = ?
		WHERE download_status = ? RETURNING video_id`,
		domain.VideoStatusPending, time.Now().UTC(), domain.VideoStatusFailed)
	if err != nil {
		return nil, errors.Wrap(err, "reset failed videos")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan reset video")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FailInterrupted marks videos left in downloading as failed.
func (r *VideoRepository) FailInterrupted(errorMsg string) (int, error) {
	res, err := r.db.Exec(`UPDATE videos SET download_status = ?, error_message = ?, updated_at = ?
		WHERE download_status = ?`,
		domain.VideoStatusFailed, errorMsg, time.Now().UTC(), domain.VideoStatusDownloading)
	if err != nil {
		return 0, errors.Wrap(err, "fail interrupted videos")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "fail interrupted videos")
}

func (r *VideoRepository) checkTransition(res sql.Result, err error, id string, to domain.VideoStatus) error {
	if err != nil {
		return errors.Wrapf(err, "set video %s to %s", id, to)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "set video %s to %s", id, to)
	}
	if n == 1 {
		return nil
	}

	current, err := r.GetByID(id)
	if err != nil {
		return err
	}
	if current.Status == to {
		return nil
	}
	return errors.Errorf("video %s cannot move from %s to %s", id, current.Status, to)
}

func (r *VideoRepository) query(query string, args ...any) ([]*domain.Video, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query videos")
	}
	defer rows.Close()

	var videos []*domain.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan video")
		}
		videos = append(videos, video)
	}

	return videos, rows.Err()
}

func scanVideo(row scanner) (*domain.Video, error) {
	var video domain.Video
	var (
		channelID    sql.NullInt64
		playlistID   sql.NullInt64
		title        sql.NullString
		url          sql.NullString
		uploader     sql.NullString
		uploadDate   sql.NullString
		status       string
		downloadedAt sql.NullTime
		filePath     sql.NullString
		errorMsg     sql.NullString
		resolution   sql.NullString
		vcodec       sql.NullString
		acodec       sql.NullString
	)

	if err := row.Scan(
		&video.ID,
		&channelID,
		&playlistID,
		&title,
		&url,
		&uploader,
		&uploadDate,
		&video.Duration,
		&video.PlaylistIndex,
		&status,
		&downloadedAt,
		&filePath,
		&video.FileSize,
		&errorMsg,
		&resolution,
		&video.FPS,
		&vcodec,
		&acodec,
		&video.CreatedAt,
		&video.UpdatedAt,
	); err != nil {
		return nil, err
	}

	video.ChannelID = int64Ptr(channelID)
	video.PlaylistID = int64Ptr(playlistID)
	video.Status = domain.VideoStatus(status)
	video.DownloadedAt = timePtr(downloadedAt)
	video.Title = title.String
	video.URL = url.String
	video.Uploader = uploader.String
	video.UploadDate = uploadDate.String
	video.FilePath = filePath.String
	video.ErrorMessage = errorMsg.String
	video.Resolution = resolution.String
	video.VideoCodec = vcodec.String
	video.AudioCodec = acodec.String

	return &video, nil
}
