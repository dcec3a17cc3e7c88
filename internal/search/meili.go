package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"

	"quill/api/internal/schema"
	"quill/api/internal/store"
)

const indexPrefix = "quill_"

// Meili mirrors document writes into Meilisearch, one index per searchable
// kind. It degrades to a no-op while the engine is unreachable.
type Meili struct {
	client  meili.ServiceManager
	kinds   []schema.Kind
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures one index per kind
// that declares searchable fields. The returned value is usable even when the
// engine is down; indexing calls drop until it recovers.
func NewMeili(url, apiKey string, kinds []schema.Kind) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}
	for _, k := range kinds {
		if len(k.Searchable) > 0 {
			m.kinds = append(m.kinds, k.Normalize())
		}
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func indexUID(kindName string) string {
	return indexPrefix + kindName
}

func (m *Meili) configureIndexes() {
	for _, kind := range m.kinds {
		uid := indexUID(kind.Name)
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", uid, err)
		}

		index := m.client.Index(uid)
		searchable := append([]string{"title"}, kind.Searchable...)
		if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", uid, err)
		}
		filterable := []interface{}{"state"}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// IndexDocument pushes one document into its kind's index. Kinds without
// searchable fields are skipped; failures are logged and dropped.
func (m *Meili) IndexDocument(kind schema.Kind, item store.Document) {
	if len(kind.Searchable) == 0 || !m.healthy.Load() {
		return
	}
	record := map[string]any{
		"id":    item.ID,
		"title": item.Title,
		"slug":  item.Slug,
		"state": item.State,
	}
	for _, field := range kind.Searchable {
		if value, ok := item.Fields[field]; ok {
			record[field] = value
		}
	}
	if _, err := m.client.Index(indexUID(kind.Name)).AddDocuments([]map[string]any{record}, nil); err != nil {
		log.Printf("search: index %s/%s: %v", kind.Name, item.ID, err)
		m.healthy.Store(false)
	}
}

// RemoveDocument drops a document from its kind's index.
func (m *Meili) RemoveDocument(kind schema.Kind, documentID string) {
	if len(kind.Searchable) == 0 || !m.healthy.Load() {
		return
	}
	if _, err := m.client.Index(indexUID(kind.Name)).DeleteDocument(documentID, nil); err != nil {
		log.Printf("search: remove %s/%s: %v", kind.Name, documentID, err)
		m.healthy.Store(false)
	}
}

// Search runs a full-text query against one kind's index.
func (m *Meili) Search(kind schema.Kind, text string, limit, offset int) ([]Hit, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if limit <= 0 {
		limit = 20
	}

	resp, err := m.client.Index(indexUID(kind.Name)).Search(text, &meili.SearchRequest{
		Limit:                 int64(limit),
		Offset:                int64(offset),
		AttributesToHighlight: []string{"*"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Hits))
	for _, raw := range resp.Hits {
		hits = append(hits, hitFromRaw(raw, kind))
	}
	return hits, int(resp.EstimatedTotalHits), nil
}

func hitFromRaw(raw meili.Hit, kind schema.Kind) Hit {
	h := Hit{
		Kind:  kind.Name,
		ID:    decodeString(raw, "id"),
		Title: decodeString(raw, "title"),
		Slug:  decodeString(raw, "slug"),
		State: decodeString(raw, "state"),
	}
	for _, field := range kind.Searchable {
		if snippet := decodeFormattedString(raw, field); snippet != "" {
			h.Snippet = snippet
			break
		}
	}
	if formatted := decodeFormattedString(raw, "title"); formatted != "" {
		h.Title = formatted
	}
	return h
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}
