// Package metadata computes a read-only summary of a checked-out repository:
// file and line counts, an extension and language histogram, presence of
// well-known project files, and the git head it was built from.
package metadata

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// RepoMetadata is computed once per successful index build.
type RepoMetadata struct {
	TotalFiles         int            `json:"total_files"`
	CodeFiles          int            `json:"code_files"`
	Extensions         map[string]int `json:"extensions"`
	TotalLines         int            `json:"total_lines"`
	TotalBytes         int64          `json:"total_bytes"`
	HasReadme          bool           `json:"has_readme"`
	HasRequirements    bool           `json:"has_requirements"`
	HasPackageManifest bool           `json:"has_package_manifest"`
	Languages          map[string]int `json:"languages,omitempty"`
	SkippedFiles       int            `json:"skipped_files,omitempty"`
	HeadCommit         string         `json:"head_commit,omitempty"`
	Branch             string         `json:"branch,omitempty"`
	Description        string         `json:"description,omitempty"`
}

// Clone returns a deep copy. A nil receiver returns nil.
func (m *RepoMetadata) Clone() *RepoMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Extensions = maps.Clone(m.Extensions)
	c.Languages = maps.Clone(m.Languages)
	return &c
}

// Summary renders the metadata as a short plain-text block for prompts and
// CLI output.
func (m *RepoMetadata) Summary() string {
	if m == nil {
		return "No repository metadata available."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Files: %s total, %s code files, %s lines of code (%s)\n",
		humanize.Comma(int64(m.TotalFiles)),
		humanize.Comma(int64(m.CodeFiles)),
		humanize.Comma(int64(m.TotalLines)),
		humanize.Bytes(uint64(m.TotalBytes)))

	if langs := topKeys(m.Languages, 5); len(langs) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(langs, ", "))
	} else if exts := topKeys(m.Extensions, 5); len(exts) > 0 {
		fmt.Fprintf(&b, "Extensions: %s\n", strings.Join(exts, ", "))
	}

	var present []string
	if m.HasReadme {
		present = append(present, "README")
	}
	if m.HasRequirements {
		present = append(present, "requirements")
	}
	if m.HasPackageManifest {
		present = append(present, "package manifest")
	}
	if len(present) > 0 {
		fmt.Fprintf(&b, "Project files: %s\n", strings.Join(present, ", "))
	}

	if m.Branch != "" || m.HeadCommit != "" {
		fmt.Fprintf(&b, "Revision: %s@%s\n", m.Branch, shortHash(m.HeadCommit))
	}
	if m.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", m.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// topKeys returns up to n "key (count)" labels, highest count first.
func topKeys(hist map[string]int, n int) []string {
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if hist[keys[i]] != hist[keys[j]] {
			return hist[keys[i]] > hist[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = fmt.Sprintf("%s (%d)", k, hist[k])
	}
	return out
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
