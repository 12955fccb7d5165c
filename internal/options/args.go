package options

import (
	"strings"

	"github.com/mattn/go-shellwords"

	"yt_archiver/internal/domain"
)

// aliases maps alternative spellings to the canonical long flag.
var aliases = map[string]string{
	"-f":                     "--format",
	"-o":                     "--output",
	"-P":                     "--paths",
	"--write-sub":            "--write-subs",
	"--sub-lang":             "--sub-langs",
	"--srt-lang":             "--sub-langs",
	"--write-auto-sub":       "--write-auto-subs",
	"--write-automatic-sub":  "--write-auto-subs",
	"--write-automatic-subs": "--write-auto-subs",
	"--add-metadata":         "--embed-metadata",
	"--embed-sub":            "--embed-subs",
}

// families groups flags that control the same behavior.
var families = map[string]string{
	"--sponsorblock-mark":   "--sponsorblock",
	"--sponsorblock-remove": "--sponsorblock",
}

// canonical returns the canonical spelling of a flag.
func canonical(flag string) string {
	if alias, ok := aliases[flag]; ok {
		return alias
	}
	return flag
}

// conflictKey collapses negations and flag families onto one key,
// so --no-write-subs conflicts with --write-subs.
func conflictKey(flag string) string {
	key := canonical(flag)
	if strings.HasPrefix(key, "--no-") {
		key = canonical("--" + strings.TrimPrefix(key, "--no-"))
	}
	if family, ok := families[key]; ok {
		return family
	}
	return key
}

func isFlag(token string) bool {
	if len(token) < 2 || token[0] != '-' {
		return false
	}
	// negative numbers are values
	return token[1] < '0' || token[1] > '9'
}

// tokenize splits a free-form argument string on whitespace, honoring quotes.
func tokenize(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	tokens, err := shellwords.Parse(raw)
	if err != nil {
		// unbalanced quotes
		return strings.Fields(raw)
	}
	return tokens
}

// group turns tokens into flags with their trailing value tokens.
func group(tokens []string) []domain.Arg {
	var args []domain.Arg
	for _, tok := range tokens {
		if isFlag(tok) {
			if i := strings.IndexByte(tok, '='); i > 0 && strings.HasPrefix(tok, "--") {
				args = append(args, domain.Arg{Flag: tok[:i], Values: []string{tok[i+1:]}, Inline: true})
				continue
			}
			args = append(args, domain.Arg{Flag: tok})
			continue
		}

		if len(args) == 0 || args[len(args)-1].Inline {
			args = append(args, domain.Arg{Values: []string{tok}})
			continue
		}
		last := &args[len(args)-1]
		last.Values = append(last.Values, tok)
	}
	return args
}

// parseArgs tokenizes and groups a free-form argument string.
func parseArgs(raw string) []domain.Arg {
	return group(tokenize(raw))
}

// dedupe keeps the first occurrence of every flag; positional tokens are kept as is.
func dedupe(args []domain.Arg) []domain.Arg {
	seen := make(map[string]struct{}, len(args))
	out := make([]domain.Arg, 0, len(args))
	for _, arg := range args {
		if arg.Flag == "" {
			out = append(out, arg)
			continue
		}
		key := canonical(arg.Flag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, arg)
	}
	return out
}

// without drops every arg whose conflict key is in keys.
func without(args []domain.Arg, keys map[string]struct{}) []domain.Arg {
	out := make([]domain.Arg, 0, len(args))
	for _, arg := range args {
		if arg.Flag != "" {
			if _, ok := keys[conflictKey(arg.Flag)]; ok {
				continue
			}
		}
		out = append(out, arg)
	}
	return out
}

func keysOf(args []domain.Arg) map[string]struct{} {
	keys := make(map[string]struct{}, len(args))
	for _, arg := range args {
		if arg.Flag != "" {
			keys[conflictKey(arg.Flag)] = struct{}{}
		}
	}
	return keys
}
