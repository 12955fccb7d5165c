package ytdlp

import (
	"regexp"
	"strconv"
)

// [download]  45.2% of 123.45MiB at 5.67MiB/s ETA 00:12
var progressPattern = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

// ParseProgress extracts the completion percentage from a yt-dlp output line.
func ParseProgress(line string) (float64, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}
	percent, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	if percent > 100 {
		percent = 100
	}
	return percent, true
}
