package vectorstore

import "regexp"

// Document represents a stored record before persistence.
type Document struct {
	// ID is the unique record identifier within the collection.
	ID string

	// Content is the chunk text.
	Content string

	// Metadata contains key-value tags used for filtered search and
	// scoped deletion. Common keys: file_id, filename, source.
	Metadata map[string]string
}

// SearchResult is a single similarity-search hit. Ephemeral, produced
// per query and never persisted.
type SearchResult struct {
	// ID is the record identifier.
	ID string

	// Content is the stored chunk text.
	Content string

	// Metadata contains the record's tags.
	Metadata map[string]string

	// Distance is the cosine distance to the query (lower = more similar).
	Distance float32
}

// Stats describes a collection's current state.
type Stats struct {
	// RecordCount is the number of stored records.
	RecordCount int `json:"record_count"`

	// Backend is the backend name ("chroma", "qdrant").
	Backend string `json:"backend"`

	// Collection is the collection name.
	Collection string `json:"collection"`
}

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name.
// Rejects uppercase, special characters, path separators and spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return ErrInvalidCollectionName
	}
	if !collectionNamePattern.MatchString(name) {
		return ErrInvalidCollectionName
	}
	return nil
}
