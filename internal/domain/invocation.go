package domain

// Arg is one command line flag together with the value tokens that follow it.
// A positional token not preceded by any flag has an empty Flag.
type Arg struct {
	Flag   string
	Values []string

	// Inline marks the --flag=value spelling
	Inline bool
}

// Tokens renders the argument as command line tokens.
func (a Arg) Tokens() []string {
	if a.Flag == "" {
		return append([]string(nil), a.Values...)
	}
	if a.Inline && len(a.Values) == 1 {
		return []string{a.Flag + "=" + a.Values[0]}
	}
	return append([]string{a.Flag}, a.Values...)
}

// Invocation is the compiled set of yt-dlp options for one channel/playlist.
// The managed fields are always rendered, Args holds every other deduplicated flag.
type Invocation struct {
	OutputDir         string
	OutputTemplate    string
	Format            string
	MergeFormat       string
	RestrictFilenames bool
	ArchiveFile       string

	Args []Arg
}

// Argv renders the invocation as a stable list of command line tokens.
func (inv *Invocation) Argv() []string {
	argv := []string{"--paths", inv.OutputDir, "--output", inv.OutputTemplate}
	if inv.Format != "" {
		argv = append(argv, "--format", inv.Format)
	}
	if inv.MergeFormat != "" {
		argv = append(argv, "--merge-output-format", inv.MergeFormat)
	}
	if inv.RestrictFilenames {
		argv = append(argv, "--restrict-filenames")
	} else {
		argv = append(argv, "--no-restrict-filenames")
	}
	if inv.ArchiveFile != "" {
		argv = append(argv, "--download-archive", inv.ArchiveFile)
	}
	for _, arg := range inv.Args {
		argv = append(argv, arg.Tokens()...)
	}
	return argv
}

// Has reports whether a flag is present in Args.
func (inv *Invocation) Has(flag string) bool {
	for _, arg := range inv.Args {
		if arg.Flag == flag {
			return true
		}
	}
	return false
}

// Count returns how many times a flag appears in Args.
func (inv *Invocation) Count(flag string) int {
	n := 0
	for _, arg := range inv.Args {
		if arg.Flag == flag {
			n++
		}
	}
	return n
}

// Value returns the first value of a flag in Args.
func (inv *Invocation) Value(flag string) (string, bool) {
	for _, arg := range inv.Args {
		if arg.Flag == flag && len(arg.Values) > 0 {
			return arg.Values[0], true
		}
	}
	return "", false
}
