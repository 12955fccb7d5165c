package ytdlp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// MediaInfo is the technical metadata read from a .info.json sidecar
type MediaInfo struct {
	Resolution string
	FPS        float64
	VideoCodec string
	AudioCodec string
}

type infoJSON struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Resolution string  `json:"resolution"`
	FPS        float64 `json:"fps"`
	VCodec     string  `json:"vcodec"`
	ACodec     string  `json:"acodec"`
}

// InfoJSONPath returns the sidecar path yt-dlp writes next to a media file.
func InfoJSONPath(mediaPath string) string {
	return strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + ".info.json"
}

// ReadMediaInfo parses the sidecar of a downloaded file.
func ReadMediaInfo(mediaPath string) (*MediaInfo, error) {
	data, err := os.ReadFile(InfoJSONPath(mediaPath))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read info.json")
	}

	var raw infoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse info.json")
	}

	info := &MediaInfo{
		Resolution: raw.Resolution,
		FPS:        raw.FPS,
		VideoCodec: codec(raw.VCodec),
		AudioCodec: codec(raw.ACodec),
	}
	if raw.Width > 0 && raw.Height > 0 {
		info.Resolution = fmt.Sprintf("%dx%d", raw.Width, raw.Height)
	}
	return info, nil
}

func codec(name string) string {
	if name == "none" {
		return ""
	}
	return name
}
