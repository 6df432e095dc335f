package vectorstore

// Document is a chunk ready for indexing.
type Document struct {
	// ID is unique within a build. Empty IDs are assigned by position.
	ID string

	// Content is the chunk text.
	Content string

	// Source is the repository-relative path the chunk came from.
	Source string

	// Embedding is the chunk vector.
	Embedding []float32

	// Metadata holds extra string attributes stored with the chunk.
	Metadata map[string]string
}

// SearchResult is one hit from Nearest.
type SearchResult struct {
	ID      string
	Content string
	Source  string

	// Score is the cosine similarity (higher = more similar).
	Score float32

	Metadata map[string]string
}

// metadata keys reserved by the store.
const (
	metaSource   = "source"
	metaPosition = "position"
)
