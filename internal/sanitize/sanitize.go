// Package sanitize normalizes externally supplied names (repository URLs,
// user input) into identifiers that are safe as vector collection names and
// filesystem path segments.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// MaxIdentifierLength bounds collection names and path segments.
	MaxIdentifierLength = 64

	// hashSuffixLength is len("_") + 8 hex characters.
	hashSuffixLength = 9

	// DefaultIdentifier is used when sanitization produces an empty result.
	DefaultIdentifier = "default"
)

// Identifier lowercases s and maps it onto [a-z0-9_], collapsing runs of
// underscores. Long results are truncated with a hash suffix so distinct
// inputs stay distinct.
//
//	"github.com/pallets/flask" -> "github_com_pallets_flask"
//	"My Repo!"                 -> "my_repo"
//	"" or "!!!"                -> "default"
func Identifier(s string) string {
	return clean(strings.ToLower(s), func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
	}, '_')
}

// PathSegment keeps letters, digits, '-', '_' and '.' so repository names
// such as "socket.io" survive, but never yields "." or "..".
func PathSegment(s string) string {
	seg := clean(s, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.'
	}, '_')
	seg = strings.Trim(seg, ".")
	if seg == "" {
		return DefaultIdentifier
	}
	return seg
}

func clean(s string, keep func(rune) bool, repl rune) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if keep(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(repl)
		}
	}

	out := b.String()
	double := string([]rune{repl, repl})
	for strings.Contains(out, double) {
		out = strings.ReplaceAll(out, double, string(repl))
	}
	out = strings.Trim(out, string(repl))

	if out == "" {
		return DefaultIdentifier
	}
	if len(out) > MaxIdentifierLength {
		out = truncateWithHash(out)
	}
	return out
}

// truncateWithHash returns <prefix>_<8-char-sha256>.
func truncateWithHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	prefix := strings.TrimRight(s[:MaxIdentifierLength-hashSuffixLength], "_")
	return prefix + "_" + hex.EncodeToString(sum[:])[:8]
}
