package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quill/api/internal/schema"
	"quill/api/internal/util"
)

// openTestStore connects to the database named by QUILL_TEST_DATABASE_URL,
// resets the schema and applies migrations. Tests skip when the variable is
// unset.
func openTestStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("QUILL_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("QUILL_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func TestDocumentLifecyclePostgres(t *testing.T) {
	s, ctx := openTestStore(t)

	author := User{ID: util.NewID("usr"), Email: "ana@example.com", DisplayName: "Ana", Role: "registered"}
	if err := s.CreateUser(ctx, author); err != nil {
		t.Fatalf("create user: %v", err)
	}

	doc := Document{
		ID:       util.NewID("doc"),
		Kind:     "article",
		Slug:     "first-post",
		Title:    "First Post",
		Fields:   map[string]any{"body": "hello"},
		State:    StatePublished,
		AuthorID: &author.ID,
	}
	if err := s.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("insert document: %v", err)
	}

	bySlug, found, err := s.GetDocumentBySlug(ctx, "article", "first-post")
	if err != nil || !found {
		t.Fatalf("get by slug: found=%v err=%v", found, err)
	}
	if bySlug.ID != doc.ID || bySlug.Fields["body"] != "hello" {
		t.Fatalf("slug lookup returned %+v", bySlug)
	}

	title := "Renamed"
	updated, found, err := s.UpdateDocument(ctx, "article", doc.ID, DocumentPatch{Title: &title})
	if err != nil || !found {
		t.Fatalf("update: found=%v err=%v", found, err)
	}
	if updated.Title != "Renamed" || updated.Fields["body"] != "hello" {
		t.Fatalf("partial update clobbered row: %+v", updated)
	}

	count, err := s.CountDocuments(ctx, DocumentFilter{Kind: "article", State: StatePublished})
	if err != nil || count != 1 {
		t.Fatalf("count = %d err=%v, want 1", count, err)
	}

	deleted, err := s.DeleteDocument(ctx, "article", doc.ID)
	if err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	if _, found, _ := s.GetDocumentByID(ctx, "article", doc.ID); found {
		t.Fatal("document still present after delete")
	}
}

func TestCommentCascadePostgres(t *testing.T) {
	s, ctx := openTestStore(t)

	doc := Document{ID: util.NewID("doc"), Kind: "article", Title: "Parent", State: StatePublished}
	if err := s.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("insert document: %v", err)
	}

	parent := Comment{ID: util.NewID("cmt"), Kind: "article", DocumentID: doc.ID, Body: "root", State: CommentAccepted}
	if err := s.InsertComment(ctx, parent); err != nil {
		t.Fatalf("insert parent comment: %v", err)
	}
	for _, body := range []string{"x", "y"} {
		child := Comment{ID: util.NewID("cmt"), Kind: "article", DocumentID: doc.ID, ParentID: &parent.ID, Body: body, State: CommentAccepted}
		if err := s.InsertComment(ctx, child); err != nil {
			t.Fatalf("insert child comment: %v", err)
		}
	}

	if _, err := s.DeleteComment(ctx, parent.ID); err != nil {
		t.Fatalf("delete parent: %v", err)
	}
	if err := s.MarkChildCommentsOrphaned(ctx, parent.ID); err != nil {
		t.Fatalf("orphan children: %v", err)
	}

	children, err := s.ListCommentChildren(ctx, parent.ID)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d, want 2", len(children))
	}
	for _, c := range children {
		if c.State != CommentParentDeleted {
			t.Fatalf("child %s state = %q, want parent_deleted", c.ID, c.State)
		}
	}
}

func TestEnsureKindIndexesPostgres(t *testing.T) {
	s, ctx := openTestStore(t)

	kind := schema.Kind{
		Name:    "article",
		HasSlug: true,
		Indexes: []schema.Index{
			{Fields: []string{"state", "created_at"}},
			{Name: "idx_article_topic", Fields: []string{"topic"}},
		},
	}.Normalize()

	if err := s.EnsureKindIndexes(ctx, kind); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	// Idempotent on a second run.
	if err := s.EnsureKindIndexes(ctx, kind); err != nil {
		t.Fatalf("ensure indexes twice: %v", err)
	}
}
