package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"yt_archiver/internal/domain"
)

// Service runs the yt-dlp binary. It implements domain.Extractor.
type Service struct {
	path        string
	cookiesPath string

	// command builds the process, replaced in tests
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewService resolves the yt-dlp binary and creates a new adapter.
// cookiesPath is used only when the file exists at invocation time.
func NewService(ytDlpPath, cookiesPath string) (*Service, error) {
	path, err := resolveYtDlpPath(ytDlpPath)
	if err != nil {
		return nil, err
	}
	return newService(path, cookiesPath), nil
}

func newService(path, cookiesPath string) *Service {
	return &Service{
		path:        path,
		cookiesPath: cookiesPath,
		command:     exec.CommandContext,
	}
}

// Version returns the yt-dlp version string.
func (s *Service) Version(ctx context.Context) (string, error) {
	stdout, err := s.run(ctx, "version", "--version")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// flatEntry is one item of a --flat-playlist listing
type flatEntry struct {
	Type          string  `json:"_type"`
	IEKey         string  `json:"ie_key"`
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	WebpageURL    string  `json:"webpage_url"`
	Uploader      string  `json:"uploader"`
	Channel       string  `json:"channel"`
	ChannelID     string  `json:"channel_id"`
	UploadDate    string  `json:"upload_date"`
	Duration      float64 `json:"duration"`
	PlaylistIndex int     `json:"playlist_index"`
	PlaylistCount int     `json:"playlist_count"`

	// present when a channel listing is grouped by playlist
	PlaylistID    string `json:"playlist_id"`
	PlaylistTitle string `json:"playlist_title"`
}

// flatListing is the single JSON document printed for a channel or playlist
type flatListing struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Channel   string      `json:"channel"`
	ChannelID string      `json:"channel_id"`
	Uploader  string      `json:"uploader"`
	Entries   []flatEntry `json:"entries"`
}

// EnumeratePlaylists lists the playlists of a channel from its playlists tab.
func (s *Service) EnumeratePlaylists(ctx context.Context, sourceURL string) (*domain.ChannelListing, error) {
	target := playlistsTabURL(sourceURL)

	listing, err := s.dumpListing(ctx, "enumerate playlists", target)
	if err != nil {
		return nil, err
	}

	result := &domain.ChannelListing{
		ChannelID:   listing.ChannelID,
		ChannelName: firstNonEmpty(listing.Channel, listing.Uploader, listing.Title),
	}

	// a playlist URL is a channel with that one playlist, its entries are videos
	if isPlaylistURL(target) && listing.ID != "" {
		for _, entry := range listing.Entries {
			if result.ChannelID == "" && entry.ChannelID != "" {
				result.ChannelID = entry.ChannelID
				result.ChannelName = firstNonEmpty(listing.Channel, listing.Uploader, entry.Channel, entry.Uploader, listing.Title)
			}
		}
		result.Playlists = []domain.PlaylistEntry{{
			ID:         listing.ID,
			Title:      listing.Title,
			URL:        PlaylistURL(listing.ID),
			VideoCount: len(listing.Entries),
		}}
		log.WithFields(log.Fields{
			"url":         sourceURL,
			"channel_id":  result.ChannelID,
			"playlist_id": listing.ID,
		}).Debug("enumerated single playlist")
		return result, nil
	}

	seen := make(map[string]int)
	for _, entry := range listing.Entries {
		if result.ChannelID == "" && entry.ChannelID != "" {
			result.ChannelID = entry.ChannelID
			result.ChannelName = firstNonEmpty(entry.Channel, entry.Uploader, result.ChannelName)
		}

		// a videos tab groups videos under playlist_id instead
		if entry.PlaylistID != "" && entry.PlaylistTitle != "" && entry.PlaylistID != listing.ID {
			if i, ok := seen[entry.PlaylistID]; ok {
				result.Playlists[i].VideoCount++
				continue
			}
			seen[entry.PlaylistID] = len(result.Playlists)
			result.Playlists = append(result.Playlists, domain.PlaylistEntry{
				ID:         entry.PlaylistID,
				Title:      entry.PlaylistTitle,
				URL:        PlaylistURL(entry.PlaylistID),
				VideoCount: 1,
			})
			continue
		}

		if !isPlaylistEntry(entry) {
			continue
		}
		if _, ok := seen[entry.ID]; ok {
			continue
		}
		seen[entry.ID] = len(result.Playlists)
		result.Playlists = append(result.Playlists, domain.PlaylistEntry{
			ID:         entry.ID,
			Title:      entry.Title,
			URL:        PlaylistURL(entry.ID),
			VideoCount: entry.PlaylistCount,
		})
	}

	log.WithFields(log.Fields{
		"url":        sourceURL,
		"channel_id": result.ChannelID,
		"playlists":  len(result.Playlists),
	}).Debug("enumerated channel playlists")

	return result, nil
}

// EnumeratePlaylistVideos lists the videos of a playlist in playlist order.
func (s *Service) EnumeratePlaylistVideos(ctx context.Context, playlistURL string) ([]domain.VideoEntry, error) {
	listing, err := s.dumpListing(ctx, "enumerate playlist videos", playlistURL)
	if err != nil {
		return nil, err
	}

	videos := make([]domain.VideoEntry, 0, len(listing.Entries))
	for i, entry := range listing.Entries {
		if entry.ID == "" {
			continue
		}
		index := entry.PlaylistIndex
		if index <= 0 {
			index = i + 1
		}
		videos = append(videos, domain.VideoEntry{
			ID:         entry.ID,
			Title:      entry.Title,
			URL:        VideoURL(entry.ID),
			Uploader:   firstNonEmpty(entry.Uploader, entry.Channel, listing.Uploader, listing.Channel),
			ChannelID:  firstNonEmpty(entry.ChannelID, listing.ChannelID),
			UploadDate: entry.UploadDate,
			Duration:   int(entry.Duration),
			Index:      index,
		})
	}
	return videos, nil
}

// GetVideoInfo resolves the metadata of a single video.
func (s *Service) GetVideoInfo(ctx context.Context, url string) (*domain.VideoEntry, error) {
	args := append(s.baseArgs(), "--dump-json", "--skip-download", "--no-playlist", "--", url)
	stdout, err := s.run(ctx, "get video info", args...)
	if err != nil {
		return nil, err
	}

	var info flatEntry
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &info); err != nil {
		return nil, &domain.AdapterError{Op: "get video info", Err: errors.Wrap(err, "failed to parse yt-dlp output")}
	}
	if info.ID == "" {
		return nil, &domain.AdapterError{Op: "get video info", Err: errors.Errorf("no video id in output for %s", url)}
	}

	return &domain.VideoEntry{
		ID:         info.ID,
		Title:      info.Title,
		URL:        firstNonEmpty(info.WebpageURL, VideoURL(info.ID)),
		Uploader:   firstNonEmpty(info.Uploader, info.Channel),
		ChannelID:  info.ChannelID,
		UploadDate: info.UploadDate,
		Duration:   int(info.Duration),
	}, nil
}

// Download runs a download and streams progress to onProgress.
// The returned path is empty when yt-dlp skipped the video.
func (s *Service) Download(ctx context.Context, req domain.DownloadRequest, onProgress domain.ProgressFunc) (string, error) {
	if req.Options == nil {
		return "", &domain.AdapterError{Op: "download", Err: errors.New("missing invocation options")}
	}

	args := s.baseArgs()
	args = append(args, "--newline", "--progress", "--no-simulate", "--print", "after_move:filepath")
	args = append(args, req.Options.Argv()...)
	if req.PlaylistItem > 0 {
		args = append(args,
			"--playlist-items", fmt.Sprint(req.PlaylistItem),
			"--match-filters", "id="+req.VideoID)
	} else {
		args = append(args, "--no-playlist")
	}
	args = append(args, "--", req.URL)

	if req.Options.OutputDir != "" {
		if err := os.MkdirAll(req.Options.OutputDir, 0755); err != nil {
			return "", &domain.AdapterError{Op: "download", Err: errors.Wrap(err, "failed to create download directory")}
		}
	}

	entry := log.WithField("video_id", req.VideoID)
	entry.Debugf("executing: %s %s", s.path, strings.Join(args, " "))

	cmd := s.command(ctx, s.path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &domain.AdapterError{Op: "download", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", &domain.AdapterError{Op: "download", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return "", &domain.AdapterError{Op: "download", Err: errors.Wrap(err, "failed to start yt-dlp")}
	}

	var (
		wg        sync.WaitGroup
		filePath  string
		errOutput tail
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, func(line string) {
			if percent, ok := ParseProgress(line); ok {
				report(onProgress, percent)
				return
			}
			if path := strings.TrimSpace(line); path != "" && !strings.HasPrefix(path, "[") {
				filePath = path
			}
		})
	}()
	go func() {
		defer wg.Done()
		scanLines(stderr, func(line string) {
			if percent, ok := ParseProgress(line); ok {
				report(onProgress, percent)
				return
			}
			errOutput.add(line)
		})
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &domain.AdapterError{Op: "download", Err: ctxErr}
		}
		return "", &domain.AdapterError{Op: "download", Output: errOutput.diagnostic(), Err: err}
	}

	return filePath, nil
}

func report(onProgress domain.ProgressFunc, percent float64) {
	if onProgress == nil {
		return
	}
	onProgress(domain.ProgressUpdate{Percent: percent, Timestamp: time.Now()})
}

func (s *Service) dumpListing(ctx context.Context, op, url string) (*flatListing, error) {
	args := append(s.baseArgs(), "--dump-single-json", "--flat-playlist", "--skip-download", "--", url)
	stdout, err := s.run(ctx, op, args...)
	if err != nil {
		return nil, err
	}

	var listing flatListing
	if err := json.Unmarshal(bytes.TrimSpace(stdout), &listing); err != nil {
		return nil, &domain.AdapterError{Op: op, Err: errors.Wrap(err, "failed to parse yt-dlp output")}
	}
	return &listing, nil
}

func (s *Service) baseArgs() []string {
	args := []string{"--ignore-config", "--no-warnings"}
	if s.cookiesPath != "" {
		if info, err := os.Stat(s.cookiesPath); err == nil && !info.IsDir() {
			args = append(args, "--cookies", s.cookiesPath)
		}
	}
	return args
}

// run executes yt-dlp and returns stdout. Failures carry stderr verbatim.
func (s *Service) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	cmd := s.command(ctx, s.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &domain.AdapterError{Op: op, Err: ctxErr}
		}
		return nil, &domain.AdapterError{Op: op, Output: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.Bytes(), nil
}

func scanLines(r io.Reader, fn func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	// drain so the process never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

// tail keeps the last lines of diagnostic output
type tail struct {
	lines []string
}

const maxDiagnosticLines = 20

func (t *tail) add(line string) {
	line = strings.TrimRight(line, "\r\n ")
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > maxDiagnosticLines {
		t.lines = t.lines[len(t.lines)-maxDiagnosticLines:]
	}
}

// diagnostic prefers yt-dlp's ERROR lines over the rest of the output.
func (t *tail) diagnostic() string {
	var errs []string
	for _, line := range t.lines {
		if strings.HasPrefix(line, "ERROR:") {
			errs = append(errs, line)
		}
	}
	if len(errs) > 0 {
		return strings.Join(errs, "\n")
	}
	return strings.Join(t.lines, "\n")
}

func isPlaylistEntry(entry flatEntry) bool {
	if entry.ID == "" {
		return false
	}
	if entry.IEKey == "YoutubeTab" || entry.Type == "playlist" {
		return true
	}
	return strings.Contains(entry.URL, "list=")
}

func isPlaylistURL(u string) bool {
	return strings.Contains(u, "list=")
}

// playlistsTabURL points a channel URL at its playlists tab.
func playlistsTabURL(sourceURL string) string {
	u := strings.TrimRight(strings.TrimSpace(sourceURL), "/")
	if isPlaylistURL(u) || strings.HasSuffix(u, "/playlists") {
		return u
	}
	for _, tab := range []string{"/videos", "/featured", "/streams", "/shorts"} {
		if strings.HasSuffix(u, tab) {
			u = strings.TrimSuffix(u, tab)
			break
		}
	}
	return u + "/playlists"
}

// PlaylistURL returns the canonical URL of a playlist
func PlaylistURL(id string) string {
	return "https://www.youtube.com/playlist?list=" + id
}

// VideoURL returns the canonical URL of a video
func VideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// resolveYtDlpPath determines the path to the yt-dlp executable.
func resolveYtDlpPath(configured string) (string, error) {
	checkCandidate := func(candidate string) (string, bool) {
		if candidate == "" {
			return "", false
		}

		// If candidate contains a path separator, treat it as a direct path.
		if strings.ContainsAny(candidate, `/\`) {
			full := filepath.Clean(candidate)
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				return full, true
			}
			return "", false
		}

		if resolved, err := exec.LookPath(candidate); err == nil {
			return resolved, true
		}
		return "", false
	}

	if configured != "" {
		if resolved, ok := checkCandidate(configured); ok {
			return resolved, nil
		}
		return "", errors.Errorf("configured download.yt_dlp_path %q does not point to a valid yt-dlp binary", configured)
	}

	binaryName := "yt-dlp"
	if runtime.GOOS == "windows" {
		binaryName = "yt-dlp.exe"
	}
	if resolved, ok := checkCandidate(binaryName); ok {
		return resolved, nil
	}

	wd, _ := os.Getwd()
	for _, dir := range []string{wd, filepath.Join(wd, "bin"), "bin"} {
		if dir == "" {
			continue
		}
		if resolved, ok := checkCandidate(filepath.Join(dir, binaryName)); ok {
			return resolved, nil
		}
	}

	return "", errors.New("yt-dlp executable not found. Install yt-dlp (https://github.com/yt-dlp/yt-dlp), add it to PATH, or set download.yt_dlp_path in config.yaml")
}
