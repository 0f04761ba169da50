// Package search provides full-text search over a profile's documents,
// backed by Meilisearch with a PostgreSQL FTS fallback.
package search

// Result is a single search hit returned to the caller.
type Result struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
}

// Query describes a search request. Results are always scoped to the
// requesting profile.
type Query struct {
	Text      string
	ProfileID string
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data indexed for a document. Content holds the
// plain-text rendering of the document body.
type DocumentRecord struct {
	ID        string `json:"id"`
	ProfileID string `json:"profileId"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}
