// Package options turns a channel's download configuration into yt-dlp invocation options.
package options

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"yt_archiver/internal/domain"
)

const (
	// FlatTemplate collapses playlist structure into one folder per channel
	FlatTemplate = "%(uploader)s [%(channel_id)s]/%(title)s [%(id)s].%(ext)s"

	// PlaylistTemplate keeps one folder per playlist
	PlaylistTemplate = "%(uploader)s [%(channel_id)s]/%(playlist_title)s [%(playlist_id)s]/%(playlist_index)s - %(title)s [%(id)s].%(ext)s"

	DefaultFormat          = "bv*[height<=1080][ext=mp4]+ba[ext=m4a]/b[height<=1080] / best"
	DefaultMergeFormat     = "mp4"
	DefaultSubtitleLang    = "en"
	DefaultArchiveFileName = ".downloaded"
)

// ProfileSource resolves profiles referenced by channels
type ProfileSource interface {
	GetByID(id int64) (*domain.Profile, error)
}

// Defaults are the managed values applied when nothing earlier overrides them
type Defaults struct {
	OutputDir         string
	ArchiveFile       string
	Format            string
	MergeFormat       string
	RestrictFilenames bool
}

// Compiler builds invocation options. It only reads channel and profile records.
type Compiler struct {
	profiles ProfileSource
	defaults Defaults
}

// NewCompiler creates a new options compiler
func NewCompiler(profiles ProfileSource, defaults Defaults) *Compiler {
	if defaults.Format == "" {
		defaults.Format = DefaultFormat
	}
	if defaults.MergeFormat == "" {
		defaults.MergeFormat = DefaultMergeFormat
	}
	if defaults.ArchiveFile == "" && defaults.OutputDir != "" {
		defaults.ArchiveFile = filepath.Join(defaults.OutputDir, DefaultArchiveFileName)
	}
	return &Compiler{profiles: profiles, defaults: defaults}
}

// Defaults returns the managed defaults in use.
func (c *Compiler) Defaults() Defaults {
	return c.defaults
}

// Compile maps a channel (optional) and playlist (optional) to invocation options.
// The same configuration always compiles to the same options.
func (c *Compiler) Compile(channel *domain.Channel, playlist *domain.Playlist) (*domain.Invocation, error) {
	var (
		toggles  []domain.Arg
		sponsor  []domain.Arg
		profiled []domain.Arg
		custom   []domain.Arg
	)

	if channel != nil {
		toggles = toggleArgs(channel)
		sponsor = sponsorBlockArgs(channel)

		if channel.ProfileID != nil && c.profiles != nil {
			profile, err := c.profiles.GetByID(*channel.ProfileID)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to load profile %d for channel %d", *channel.ProfileID, channel.ID)
			}
			profiled = profileArgs(profile)
		}

		// toggles win over free-form text
		implied := keysOf(append(append([]domain.Arg(nil), toggles...), sponsor...))
		custom = without(parseArgs(channel.CustomArgs), implied)
	}

	all := make([]domain.Arg, 0, len(toggles)+len(sponsor)+len(profiled)+len(custom))
	all = append(all, toggles...)
	all = append(all, sponsor...)
	all = append(all, profiled...)
	all = append(all, custom...)

	inv := &domain.Invocation{
		OutputDir:         c.defaults.OutputDir,
		ArchiveFile:       c.defaults.ArchiveFile,
		RestrictFilenames: c.defaults.RestrictFilenames,
	}

	restrictSet := false
	for _, arg := range dedupe(all) {
		switch canonical(arg.Flag) {
		case "--paths", "--download-archive", "--no-download-archive":
			// enforced
			continue
		case "--format":
			if inv.Format == "" && len(arg.Values) > 0 {
				inv.Format = arg.Values[0]
			}
			continue
		case "--output":
			if inv.OutputTemplate == "" && len(arg.Values) > 0 {
				inv.OutputTemplate = arg.Values[len(arg.Values)-1]
			}
			continue
		case "--merge-output-format":
			if inv.MergeFormat == "" && len(arg.Values) > 0 {
				inv.MergeFormat = arg.Values[0]
			}
			continue
		case "--restrict-filenames", "--no-restrict-filenames":
			if !restrictSet {
				inv.RestrictFilenames = canonical(arg.Flag) == "--restrict-filenames"
				restrictSet = true
			}
			continue
		}
		inv.Args = append(inv.Args, arg)
	}

	if inv.Format == "" {
		inv.Format = c.defaults.Format
	}
	if inv.MergeFormat == "" {
		inv.MergeFormat = c.defaults.MergeFormat
	}
	if inv.OutputTemplate == "" {
		inv.OutputTemplate = outputTemplate(channel, playlist)
	}

	return inv, nil
}

func outputTemplate(channel *domain.Channel, playlist *domain.Playlist) string {
	if channel == nil || channel.FlatMode || playlist == nil {
		return FlatTemplate
	}
	return PlaylistTemplate
}

func toggleArgs(channel *domain.Channel) []domain.Arg {
	var args []domain.Arg
	flag := func(name string, values ...string) {
		args = append(args, domain.Arg{Flag: name, Values: values})
	}

	if channel.DownloadMetadata {
		flag("--write-info-json")
	}
	if channel.EmbedMetadata {
		flag("--embed-metadata")
	}
	if channel.DownloadThumbnail {
		flag("--write-thumbnail")
	}
	if channel.EmbedThumbnail {
		flag("--embed-thumbnail")
	}
	if channel.DownloadSubtitles {
		flag("--write-subs")
	}
	if channel.EmbedSubtitles {
		flag("--embed-subs")
	}
	if channel.DownloadSubtitles || channel.EmbedSubtitles {
		flag("--sub-langs", subtitleLanguages(channel.SubtitleLanguages))
	}
	if channel.AutoSubtitles {
		flag("--write-auto-subs")
	}

	return args
}

func subtitleLanguages(raw string) string {
	langs := splitList(raw)
	if len(langs) == 0 {
		return DefaultSubtitleLang
	}
	return strings.Join(langs, ",")
}

func sponsorBlockArgs(channel *domain.Channel) []domain.Arg {
	if !channel.SponsorBlockEnabled {
		return nil
	}
	categories := splitList(channel.SponsorBlockCategories)
	if len(categories) == 0 {
		return nil
	}

	flag := "--sponsorblock-mark"
	if channel.SponsorBlockMode == domain.SponsorBlockRemove {
		flag = "--sponsorblock-remove"
	}
	return []domain.Arg{{Flag: flag, Values: []string{strings.Join(categories, ",")}}}
}

func profileArgs(profile *domain.Profile) []domain.Arg {
	var args []domain.Arg
	if profile.Format != "" {
		args = append(args, domain.Arg{Flag: "--format", Values: []string{profile.Format}})
	}
	if profile.MergeFormat != "" {
		args = append(args, domain.Arg{Flag: "--merge-output-format", Values: []string{profile.MergeFormat}})
	}
	if profile.OutputTemplate != "" {
		args = append(args, domain.Arg{Flag: "--output", Values: []string{profile.OutputTemplate}})
	}
	return append(args, parseArgs(profile.ExtraArgs)...)
}

// splitList splits a comma separated list, trimming blanks.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ValidateSponsorBlockCategories returns the categories yt-dlp would reject.
func ValidateSponsorBlockCategories(raw string) []string {
	var invalid []string
	for _, category := range splitList(raw) {
		known := false
		for _, valid := range domain.SponsorBlockCategories {
			if category == valid {
				known = true
				break
			}
		}
		if !known {
			invalid = append(invalid, category)
		}
	}
	return invalid
}
