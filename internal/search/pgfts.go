package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"quill/api/internal/schema"
	"quill/api/internal/store"
)

// PgFTS implements search with PostgreSQL full-text queries as a fallback.
// The tsvector is computed over the title and the raw JSON payload, so it is
// coarser than the Meilisearch index but needs no extra infrastructure.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const pgDocVector = "to_tsvector('english', title || ' ' || coalesce(fields::text, ''))"

// Search runs a ranked full-text query over one kind's documents.
func (p *PgFTS) Search(ctx context.Context, kind schema.Kind, text string, limit, offset int) ([]Hit, int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	where := fmt.Sprintf("kind = $2 AND %s @@ plainto_tsquery('english', $1)", pgDocVector)

	var total int
	countSQL := "SELECT count(*) FROM documents WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, text, kind.Name).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, title, slug, state,
			ts_headline('english', coalesce(fields::text, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM documents
		WHERE %s
		ORDER BY ts_rank(%s, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, pgDocVector, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, text, kind.Name)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		h := Hit{Kind: kind.Name}
		if err := rows.Scan(&h.ID, &h.Title, &h.Slug, &h.State, &h.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, total, rows.Err()
}

// LoadKindDocuments returns every document of one kind for full reindexing.
func (p *PgFTS) LoadKindDocuments(ctx context.Context, kindName string) ([]store.Document, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, slug, state, coalesce(fields::text, '{}')
		FROM documents
		WHERE kind = $1
	`, kindName)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	defer rows.Close()

	documents := make([]store.Document, 0)
	for rows.Next() {
		item := store.Document{Kind: kindName}
		var rawFields string
		if err := rows.Scan(&item.ID, &item.Title, &item.Slug, &item.State, &rawFields); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		item.Fields = decodeFields(rawFields)
		documents = append(documents, item)
	}
	return documents, rows.Err()
}
