package sqlite

import (
	"database/sql"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Open opens (or creates) a SQLite database using the configured URL.
// Supported formats:
//   - sqlite3:./data.db
//   - sqlite:./data.db
//   - file:./data.db
func Open(databaseURL string) (*sql.DB, error) {
	dsn := normalizeDSN(databaseURL)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite database")
	}

	// SQLite works best with a single writer connection for WAL
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(1)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func normalizeDSN(databaseURL string) string {
	dsn := strings.TrimSpace(databaseURL)
	if dsn == "" {
		dsn = "./data/archiver.db"
	}

	if idx := strings.Index(dsn, ":"); idx != -1 {
		prefix := dsn[:idx]
		if prefix == "sqlite3" || prefix == "sqlite" {
			dsn = dsn[idx+1:]
		}
	}

	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "./data/archiver.db"
	}

	if !strings.HasPrefix(dsn, "file:") {
		if !strings.Contains(dsn, ":/") && !strings.HasPrefix(dsn, "./") && !strings.HasPrefix(dsn, "/") {
			dsn = "./" + dsn
		}
		dsn = "file:" + filepath.Clean(dsn)
	}

	// per-connection pragmas must travel with the DSN
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	return dsn
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "configure sqlite pragma (%s)", pragma)
		}
	}
	return nil
}

func ensureSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			output_template TEXT,
			format TEXT,
			merge_format TEXT,
			extra_args TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS channels (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			url TEXT NOT NULL UNIQUE,
			channel_id TEXT,
			channel_name TEXT,
			flat_mode INTEGER NOT NULL DEFAULT 0,
			auto_add_new_playlists INTEGER NOT NULL DEFAULT 0,
			enabled INTEGER NOT NULL DEFAULT 1,
			rescrape_interval_days INTEGER NOT NULL DEFAULT 7,
			last_scraped_at TIMESTAMP NULL,
			download_metadata INTEGER NOT NULL DEFAULT 0,
			embed_metadata INTEGER NOT NULL DEFAULT 0,
			download_thumbnail INTEGER NOT NULL DEFAULT 0,
			embed_thumbnail INTEGER NOT NULL DEFAULT 0,
			download_subtitles INTEGER NOT NULL DEFAULT 0,
			embed_subtitles INTEGER NOT NULL DEFAULT 0,
			auto_subtitles INTEGER NOT NULL DEFAULT 0,
			subtitle_languages TEXT,
			custom_args TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS playlists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id INTEGER NOT NULL,
			playlist_id TEXT NOT NULL,
			title TEXT,
			url TEXT,
			video_count INTEGER NOT NULL DEFAULT 0,
			enabled INTEGER NOT NULL DEFAULT 0,
			last_scraped_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(channel_id, playlist_id),
			FOREIGN KEY(channel_id) REFERENCES channels(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS videos (
			video_id TEXT PRIMARY KEY,
			channel_id INTEGER NULL,
			playlist_id INTEGER NULL,
			title TEXT,
			url TEXT,
			uploader TEXT,
			upload_date TEXT,
			duration INTEGER NOT NULL DEFAULT 0,
			playlist_index INTEGER NOT NULL DEFAULT 0,
			download_status TEXT NOT NULL DEFAULT 'pending',
			downloaded_at TIMESTAMP NULL,
			file_path TEXT,
			file_size INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			FOREIGN KEY(channel_id) REFERENCES channels(id) ON DELETE CASCADE,
			FOREIGN KEY(playlist_id) REFERENCES playlists(id) ON DELETE SET NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_playlists_channel ON playlists(channel_id);`,
		`CREATE INDEX IF NOT EXISTS idx_videos_channel ON videos(channel_id);`,
		`CREATE INDEX IF NOT EXISTS idx_videos_playlist ON videos(playlist_id);`,
		`CREATE INDEX IF NOT EXISTS idx_videos_status_updated ON videos(download_status, updated_at);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrap(err, "ensure schema")
		}
	}

	// Columns added after the first release.
	// SQLite doesn't support IF NOT EXISTS for ALTER TABLE, so we need to check first
	migrationStatements := []struct {
		table    string
		column   string
		addQuery string
	}{
		{"channels", "sponsorblock_enabled", `ALTER TABLE channels ADD COLUMN sponsorblock_enabled INTEGER NOT NULL DEFAULT 0`},
		{"channels", "sponsorblock_mode", `ALTER TABLE channels ADD COLUMN sponsorblock_mode TEXT NOT NULL DEFAULT 'mark'`},
		{"channels", "sponsorblock_categories", `ALTER TABLE channels ADD COLUMN sponsorblock_categories TEXT`},
		{"channels", "profile_id", `ALTER TABLE channels ADD COLUMN profile_id INTEGER NULL REFERENCES profiles(id) ON DELETE SET NULL`},
		{"videos", "resolution", `ALTER TABLE videos ADD COLUMN resolution TEXT`},
		{"videos", "fps", `ALTER TABLE videos ADD COLUMN fps REAL NOT NULL DEFAULT 0`},
		{"videos", "vcodec", `ALTER TABLE videos ADD COLUMN vcodec TEXT`},
		{"videos", "acodec", `ALTER TABLE videos ADD COLUMN acodec TEXT`},
	}

	for _, migration := range migrationStatements {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
			migration.table, migration.column).Scan(&count)
		if err != nil {
			return errors.Wrapf(err, "inspect column %s.%s", migration.table, migration.column)
		}
		if count > 0 {
			continue
		}
		if _, err := db.Exec(migration.addQuery); err != nil {
			return errors.Wrapf(err, "add column %s.%s", migration.table, migration.column)
		}
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTimePtr(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullableInt64Ptr(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
