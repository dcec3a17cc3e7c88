package search

import (
	"context"
	"encoding/json"
	"log"

	"quill/api/internal/schema"
	"quill/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to
// Postgres full-text search.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, kind schema.Kind, text string, limit, offset int) Response {
	if s.meili != nil && s.meili.Healthy() {
		hits, total, err := s.meili.Search(kind, text, limit, offset)
		if err == nil {
			return Response{Results: nonNil(hits), Total: total, Query: text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	hits, total, err := s.pgfts.Search(ctx, kind, text, limit, offset)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Hit{}, Total: 0, Query: text}
	}
	return Response{Results: nonNil(hits), Total: total, Query: text}
}

// IndexDocument mirrors one write into Meilisearch, fire and forget.
func (s *Service) IndexDocument(kind schema.Kind, item store.Document) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go s.meili.IndexDocument(kind, item)
}

// RemoveDocument drops one document from Meilisearch, fire and forget.
func (s *Service) RemoveDocument(kind schema.Kind, documentID string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go s.meili.RemoveDocument(kind, documentID)
}

// Reindex pushes every document of every searchable kind into Meilisearch.
// Meant to run in the background at startup.
func (s *Service) Reindex(ctx context.Context, kinds []schema.Kind) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	for _, kind := range kinds {
		if len(kind.Searchable) == 0 {
			continue
		}
		documents, err := s.pgfts.LoadKindDocuments(ctx, kind.Name)
		if err != nil {
			log.Printf("search: reindex %s: %v", kind.Name, err)
			continue
		}
		for _, item := range documents {
			s.meili.IndexDocument(kind, item)
		}
	}
}

func nonNil(hits []Hit) []Hit {
	if hits == nil {
		return []Hit{}
	}
	return hits
}

func decodeFields(raw string) map[string]any {
	fields := map[string]any{}
	if raw == "" {
		return fields
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return map[string]any{}
	}
	return fields
}
