package ytdlp

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Archive is the download-archive file yt-dlp uses to skip finished videos.
// Each line is "<extractor> <video id>".
type Archive struct {
	mu   sync.Mutex
	path string
}

// NewArchive creates an accessor for the archive file at path
func NewArchive(path string) *Archive {
	return &Archive{path: path}
}

// Path returns the archive file location
func (a *Archive) Path() string {
	return a.path
}

// Contains reports whether the archive lists the video id.
func (a *Archive) Contains(videoID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lines, err := a.read()
	if err != nil {
		return false, err
	}
	for _, line := range lines {
		if archiveID(line) == videoID {
			return true, nil
		}
	}
	return false, nil
}

// Remove drops the given ids from the archive and returns how many lines were removed.
func (a *Archive) Remove(videoIDs ...string) (int, error) {
	if len(videoIDs) == 0 {
		return 0, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	lines, err := a.read()
	if err != nil || len(lines) == 0 {
		return 0, err
	}

	drop := make(map[string]struct{}, len(videoIDs))
	for _, id := range videoIDs {
		drop[id] = struct{}{}
	}

	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := drop[archiveID(line)]; ok {
			continue
		}
		kept = append(kept, line)
	}

	removed := len(lines) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	content := strings.Join(kept, "\n")
	if content != "" {
		content += "\n"
	}

	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return 0, errors.Wrap(err, "failed to write download archive")
	}
	if err := os.Rename(tmp, a.path); err != nil {
		return 0, errors.Wrap(err, "failed to replace download archive")
	}
	return removed, nil
}

func (a *Archive) read() ([]string, error) {
	f, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open download archive %s", filepath.Base(a.path))
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, errors.Wrap(scanner.Err(), "failed to read download archive")
}

func archiveID(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}
