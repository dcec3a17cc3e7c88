package store

import (
	"context"
	"fmt"
	"strings"

	"quill/api/internal/schema"
)

// Columns of the documents table that index definitions may name directly.
// Any other field indexes into the jsonb payload.
var documentIndexColumns = map[string]bool{
	"slug":        true,
	"title":       true,
	"state":       true,
	"author_id":   true,
	"category_id": true,
	"created_at":  true,
	"updated_at":  true,
}

// EnsureKindIndexes materializes a kind's declared index definitions as
// partial indexes over the shared documents table. Runs at startup after
// migrations; CREATE INDEX IF NOT EXISTS keeps it idempotent.
func (s *PostgresStore) EnsureKindIndexes(ctx context.Context, kind schema.Kind) error {
	for _, idx := range kind.Indexes {
		if len(idx.Fields) == 0 {
			continue
		}

		exprs := make([]string, 0, len(idx.Fields))
		for _, field := range idx.Fields {
			if documentIndexColumns[field] {
				exprs = append(exprs, field)
			} else {
				exprs = append(exprs, fmt.Sprintf("(fields->>'%s')", strings.ReplaceAll(field, "'", "")))
			}
		}

		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		name := idx.Name
		if name == "" {
			name = fmt.Sprintf("idx_%s_%s", kind.Name, strings.Join(idx.Fields, "_"))
		}

		stmt := fmt.Sprintf(
			`CREATE %sINDEX IF NOT EXISTS %q ON documents (%s) WHERE kind = '%s'`,
			unique, name, strings.Join(exprs, ", "), strings.ReplaceAll(kind.Name, "'", ""),
		)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure index %s: %w", name, err)
		}
	}
	return nil
}
