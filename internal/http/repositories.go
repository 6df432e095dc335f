package http

import (
	"github.com/fyrsmithlabs/codematrix/internal/index"
)

// listRepositories summarizes every registered index. Entries removed
// between List and Get are skipped.
func listRepositories(registry *index.Registry, activeID string) []RepositoryInfo {
	ids := registry.List()
	out := make([]RepositoryInfo, 0, len(ids))
	for _, id := range ids {
		entry, ok := registry.Get(id)
		if !ok || entry == nil {
			continue
		}
		info := RepositoryInfo{
			ID:      id,
			Chunks:  len(entry.Chunks),
			Active:  id == activeID,
			BuiltAt: entry.BuiltAt,
			Summary: entry.Metadata.Clone(),
		}
		// Chunks are not retained on every entry; fall back to the index size.
		if info.Chunks == 0 && entry.Search != nil {
			info.Chunks = entry.Search.Len()
		}
		out = append(out, info)
	}
	return out
}
