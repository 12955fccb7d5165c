package options

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yt_archiver/internal/domain"
)

type profileMap map[int64]*domain.Profile

func (m profileMap) GetByID(id int64) (*domain.Profile, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func testCompiler(profiles ProfileSource) *Compiler {
	return NewCompiler(profiles, Defaults{OutputDir: "/data/downloads"})
}

func count(argv []string, token string) int {
	n := 0
	for _, tok := range argv {
		if tok == token {
			n++
		}
	}
	return n
}

func indexOf(argv []string, token string) int {
	for i, tok := range argv {
		if tok == token {
			return i
		}
	}
	return -1
}

func TestCompile_SponsorBlockMark(t *testing.T) {
	channel := &domain.Channel{
		ID:                     1,
		SponsorBlockEnabled:    true,
		SponsorBlockMode:       domain.SponsorBlockMark,
		SponsorBlockCategories: "sponsor,intro",
	}

	inv, err := testCompiler(nil).Compile(channel, nil)
	require.NoError(t, err)

	argv := inv.Argv()
	assert.Equal(t, 1, count(argv, "--sponsorblock-mark"))
	assert.Equal(t, 0, count(argv, "--sponsorblock-remove"))

	i := indexOf(argv, "--sponsorblock-mark")
	require.True(t, i >= 0 && i+1 < len(argv))
	assert.Equal(t, "sponsor,intro", argv[i+1])
}

func TestCompile_SponsorBlockWithoutCategories(t *testing.T) {
	channel := &domain.Channel{
		SponsorBlockEnabled: true,
		SponsorBlockMode:    domain.SponsorBlockRemove,
	}

	inv, err := testCompiler(nil).Compile(channel, nil)
	require.NoError(t, err)
	assert.False(t, inv.Has("--sponsorblock-remove"))
	assert.False(t, inv.Has("--sponsorblock-mark"))
}

func TestCompile_SponsorBlockRemoveWinsOverCustomMark(t *testing.T) {
	channel := &domain.Channel{
		SponsorBlockEnabled:    true,
		SponsorBlockMode:       domain.SponsorBlockRemove,
		SponsorBlockCategories: " sponsor , selfpromo ",
		CustomArgs:             "--sponsorblock-mark all",
	}

	inv, err := testCompiler(nil).Compile(channel, nil)
	require.NoError(t, err)

	value, ok := inv.Value("--sponsorblock-remove")
	require.True(t, ok)
	assert.Equal(t, "sponsor,selfpromo", value)
	assert.False(t, inv.Has("--sponsorblock-mark"))
}

func TestCompile_SubtitleTogglesWinOverCustomArgs(t *testing.T) {
	channel := &domain.Channel{
		DownloadSubtitles: true,
		SubtitleLanguages: "en,de",
		CustomArgs:        "--write-subs --sub-langs fr",
	}

	inv, err := testCompiler(nil).Compile(channel, nil)
	require.NoError(t, err)

	argv := inv.Argv()
	assert.Equal(t, 1, count(argv, "--write-subs"))
	assert.Equal(t, 1, count(argv, "--sub-langs"))
	assert.Equal(t, 0, count(argv, "fr"))

	value, ok := inv.Value("--sub-langs")
	require.True(t, ok)
	assert.Equal(t, "en,de", value)
}

func TestCompile_SubtitleLanguageDefault(t *testing.T) {
	inv, err := testCompiler(nil).Compile(&domain.Channel{EmbedSubtitles: true}, nil)
	require.NoError(t, err)

	value, ok := inv.Value("--sub-langs")
	require.True(t, ok)
	assert.Equal(t, "en", value)
	assert.True(t, inv.Has("--embed-subs"))
	assert.False(t, inv.Has("--write-subs"))
}

func TestCompile_Toggles(t *testing.T) {
	tests := []struct {
		name    string
		channel domain.Channel
		want    []string
	}{
		{"metadata download", domain.Channel{DownloadMetadata: true}, []string{"--write-info-json"}},
		{"metadata embed", domain.Channel{EmbedMetadata: true}, []string{"--embed-metadata"}},
		{"thumbnail download", domain.Channel{DownloadThumbnail: true}, []string{"--write-thumbnail"}},
		{"thumbnail embed", domain.Channel{EmbedThumbnail: true}, []string{"--embed-thumbnail"}},
		{"auto subtitles", domain.Channel{AutoSubtitles: true}, []string{"--write-auto-subs"}},
		{"subtitles", domain.Channel{DownloadSubtitles: true, EmbedSubtitles: true}, []string{"--write-subs", "--embed-subs", "--sub-langs"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := testCompiler(nil).Compile(&tt.channel, nil)
			require.NoError(t, err)

			var flags []string
			for _, arg := range inv.Args {
				flags = append(flags, arg.Flag)
			}
			assert.Equal(t, tt.want, flags)
		})
	}
}

func TestCompile_ManagedDefaults(t *testing.T) {
	inv, err := testCompiler(nil).Compile(nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "/data/downloads", inv.OutputDir)
	assert.Equal(t, "/data/downloads/.downloaded", inv.ArchiveFile)
	assert.Equal(t, DefaultFormat, inv.Format)
	assert.Equal(t, DefaultMergeFormat, inv.MergeFormat)
	assert.Equal(t, FlatTemplate, inv.OutputTemplate)
	assert.False(t, inv.RestrictFilenames)
	assert.Empty(t, inv.Args)

	argv := inv.Argv()
	assert.Equal(t, []string{
		"--paths", "/data/downloads",
		"--output", FlatTemplate,
		"--format", DefaultFormat,
		"--merge-output-format", DefaultMergeFormat,
		"--no-restrict-filenames",
		"--download-archive", "/data/downloads/.downloaded",
	}, argv)
}

func TestCompile_OutputTemplate(t *testing.T) {
	playlist := &domain.Playlist{ID: 3, Title: "Talks"}

	inv, err := testCompiler(nil).Compile(&domain.Channel{}, playlist)
	require.NoError(t, err)
	assert.Equal(t, PlaylistTemplate, inv.OutputTemplate)

	inv, err = testCompiler(nil).Compile(&domain.Channel{FlatMode: true}, playlist)
	require.NoError(t, err)
	assert.Equal(t, FlatTemplate, inv.OutputTemplate)

	inv, err = testCompiler(nil).Compile(&domain.Channel{}, nil)
	require.NoError(t, err)
	assert.Equal(t, FlatTemplate, inv.OutputTemplate)
}

func TestCompile_EnforcedPaths(t *testing.T) {
	channel := &domain.Channel{CustomArgs: "--paths /tmp -P /var --download-archive other.txt --no-download-archive --limit-rate 1M"}

	inv, err := testCompiler(nil).Compile(channel, nil)
	require.NoError(t, err)

	argv := inv.Argv()
	assert.Equal(t, 1, count(argv, "--paths"))
	assert.Equal(t, 1, count(argv, "--download-archive"))
	assert.Equal(t, 0, count(argv, "/tmp"))
	assert.Equal(t, 0, count(argv, "other.txt"))
	assert.Equal(t, 0, count(argv, "--no-download-archive"))

	value, ok := inv.Value("--limit-rate")
	require.True(t, ok)
	assert.Equal(t, "1M", value)
}

func TestCompile_Profile(t *testing.T) {
	profileID := int64(9)
	profiles := profileMap{
		profileID: {
			ID:             profileID,
			Name:           "audio",
			Format:         "bestaudio",
			MergeFormat:    "mkv",
			OutputTemplate: "%(title)s.%(ext)s",
			ExtraArgs:      `--restrict-filenames --postprocessor-args "ffmpeg:-ac 2"`,
		},
	}
	channel := &domain.Channel{ID: 1, ProfileID: &profileID, CustomArgs: "-f worst --merge-output-format webm"}

	inv, err := testCompiler(profiles).Compile(channel, &domain.Playlist{ID: 2})
	require.NoError(t, err)

	assert.Equal(t, "bestaudio", inv.Format)
	assert.Equal(t, "mkv", inv.MergeFormat)
	assert.Equal(t, "%(title)s.%(ext)s", inv.OutputTemplate)
	assert.True(t, inv.RestrictFilenames)

	value, ok := inv.Value("--postprocessor-args")
	require.True(t, ok)
	assert.Equal(t, "ffmpeg:-ac 2", value)

	argv := inv.Argv()
	assert.Equal(t, 1, count(argv, "--format"))
	assert.Equal(t, 0, count(argv, "worst"))
	assert.Equal(t, 0, count(argv, "webm"))
}

func TestCompile_MissingProfile(t *testing.T) {
	profileID := int64(42)
	_, err := testCompiler(profileMap{}).Compile(&domain.Channel{ID: 1, ProfileID: &profileID}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCompile_CustomArgsDedupe(t *testing.T) {
	channel := &domain.Channel{CustomArgs: "--limit-rate 1M --limit-rate 2M --retries=3 --retries 5 --no-mtime"}

	inv, err := testCompiler(nil).Compile(channel, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"--limit-rate", "1M", "--retries=3", "--no-mtime"}, inv.Argv()[11:])
}

func randomChannel(r *rand.Rand) *domain.Channel {
	modes := []domain.SponsorBlockMode{domain.SponsorBlockMark, domain.SponsorBlockRemove}
	customs := []string{
		"",
		"--write-subs --sub-langs fr",
		"--embed-thumbnail --no-mtime",
		`--write-info-json --output "%(id)s.%(ext)s"`,
		"--sponsorblock-remove all --limit-rate=2M",
		"-f best --no-write-auto-subs",
	}
	return &domain.Channel{
		ID:                     r.Int63n(100) + 1,
		FlatMode:               r.Intn(2) == 0,
		DownloadMetadata:       r.Intn(2) == 0,
		EmbedMetadata:          r.Intn(2) == 0,
		DownloadThumbnail:      r.Intn(2) == 0,
		EmbedThumbnail:         r.Intn(2) == 0,
		DownloadSubtitles:      r.Intn(2) == 0,
		EmbedSubtitles:         r.Intn(2) == 0,
		AutoSubtitles:          r.Intn(2) == 0,
		SubtitleLanguages:      []string{"", "en", "en,de", "ja, ko"}[r.Intn(4)],
		SponsorBlockEnabled:    r.Intn(2) == 0,
		SponsorBlockMode:       modes[r.Intn(len(modes))],
		SponsorBlockCategories: []string{"", "sponsor", "sponsor,intro,outro"}[r.Intn(3)],
		CustomArgs:             customs[r.Intn(len(customs))],
	}
}

func TestCompile_Idempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	compiler := testCompiler(nil)
	playlist := &domain.Playlist{ID: 5}

	for i := 0; i < 500; i++ {
		channel := randomChannel(r)
		clone := *channel

		first, err := compiler.Compile(channel, playlist)
		require.NoError(t, err)
		second, err := compiler.Compile(&clone, playlist)
		require.NoError(t, err)

		assert.Equal(t, first.Argv(), second.Argv(), "channel %+v", channel)
	}
}

func TestCompile_TogglesAppearOnce(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	compiler := testCompiler(nil)

	for i := 0; i < 500; i++ {
		channel := randomChannel(r)

		inv, err := compiler.Compile(channel, nil)
		require.NoError(t, err)

		argv := inv.Argv()
		for _, arg := range toggleArgs(channel) {
			assert.Equal(t, 1, count(argv, arg.Flag), "flag %s, channel %+v", arg.Flag, channel)
			value, _ := inv.Value(arg.Flag)
			if len(arg.Values) > 0 {
				assert.Equal(t, arg.Values[0], value)
			}
			assert.Equal(t, 0, count(argv, "--no-"+arg.Flag[2:]))
		}
		for _, arg := range sponsorBlockArgs(channel) {
			assert.Equal(t, 1, count(argv, "--sponsorblock-mark")+count(argv, "--sponsorblock-remove"))
			assert.Equal(t, 1, count(argv, arg.Flag))
		}
	}
}

func TestValidateSponsorBlockCategories(t *testing.T) {
	assert.Empty(t, ValidateSponsorBlockCategories("sponsor, intro,outro"))
	assert.Equal(t, []string{"ads", "spam"}, ValidateSponsorBlockCategories("sponsor,ads,spam"))
}
