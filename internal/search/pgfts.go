package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// documentTSV matches the expression the GIN index is built on; any other
// form would force a sequential scan.
const documentTSV = "to_tsvector('english', COALESCE(d.title, '') || ' ' || COALESCE(d.content, ''))"

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries the documents table with plainto_tsquery and ts_rank,
// using ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('english', $1)"
	where := documentTSV + " @@ " + tsQuery + " AND d.profile_id = $2"
	args := []any{q.Text, q.ProfileID}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM documents d WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT d.id, d.title,
			ts_headline('english', COALESCE(d.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet
		FROM documents d
		WHERE %s
		ORDER BY ts_rank(%s, %s) DESC, d.updated_at DESC
		LIMIT %d OFFSET %d`,
		tsQuery, where, documentTSV, tsQuery, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.DocumentID, &r.Title, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all documents for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, profile_id, title, content
		FROM documents
	`)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	documents := make([]DocumentRecord, 0)
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.ID, &d.ProfileID, &d.Title, &d.Content); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	return documents, nil
}
