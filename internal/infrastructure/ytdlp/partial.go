package ytdlp

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// DefaultPartialExtensions are the suffixes yt-dlp uses for unfinished output
var DefaultPartialExtensions = []string{".part", ".ytdl", ".temp", ".part-Frag"}

// CleanupPartials removes unfinished output files of a video below dir.
// Files match when one of the partial suffixes follows the video id in their name.
func CleanupPartials(dir, videoID string, extensions []string) ([]string, error) {
	if dir == "" || videoID == "" {
		return nil, nil
	}
	if len(extensions) == 0 {
		extensions = DefaultPartialExtensions
	}

	var (
		removed []string
		result  *multierror.Error
	)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			result = multierror.Append(result, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if !isPartial(name, videoID, extensions) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, errors.Wrapf(err, "remove %s", path))
			return nil
		}
		removed = append(removed, path)
		return nil
	})
	if walkErr != nil {
		result = multierror.Append(result, walkErr)
	}

	return removed, result.ErrorOrNil()
}

// isPartial matches only the part of the name after the video id, so a title
// containing ".part." or ".temp." does not mark a finished file as partial.
func isPartial(name, videoID string, extensions []string) bool {
	i := strings.LastIndex(name, videoID)
	if i < 0 {
		return false
	}
	tail := name[i+len(videoID):]

	for _, ext := range extensions {
		if strings.HasSuffix(tail, ext) {
			return true
		}
		j := strings.LastIndex(tail, ext)
		if j < 0 {
			continue
		}
		// a fragment counter (.part-Frag3) or the final container (.temp.mp4) may follow
		rest := tail[j+len(ext):]
		if (strings.HasPrefix(rest, "-") || strings.HasPrefix(rest, ".")) && !strings.Contains(rest[1:], ".") {
			return true
		}
	}
	return false
}
