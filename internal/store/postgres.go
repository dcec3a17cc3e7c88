package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Email, user.DisplayName, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, bool, error) {
	return s.getUser(ctx, `WHERE id = $1`, userID)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, bool, error) {
	return s.getUser(ctx, `WHERE email = $1`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg any) (User, bool, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, password_hash, role, created_at, updated_at
		FROM users `+where,
		arg,
	).Scan(&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("lookup user: %w", err)
	}
	return user, true, nil
}

func (s *PostgresStore) UpdateUserRole(ctx context.Context, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET role=$2, updated_at=NOW() WHERE id=$1`, userID, role)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Documents

const documentColumns = `id, kind, slug, title, fields, state, author_id, category_id, created_at, updated_at`

var documentSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
	"state":     "state",
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentFilter, sort string, skip, limit int) ([]Document, error) {
	where, args := documentWhere(filter)
	query := `SELECT ` + documentColumns + ` FROM documents` + where +
		` ORDER BY ` + orderBy(sort, documentSortColumns, "created_at DESC") +
		` OFFSET ` + strconv.Itoa(skip) + ` LIMIT ` + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		item, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountDocuments(ctx context.Context, filter DocumentFilter) (int, error) {
	where, args := documentWhere(filter)
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) GetDocumentByID(ctx context.Context, kind, documentID string) (Document, bool, error) {
	return s.getDocument(ctx, `WHERE kind=$1 AND id=$2`, kind, documentID)
}

func (s *PostgresStore) GetDocumentBySlug(ctx context.Context, kind, docSlug string) (Document, bool, error) {
	return s.getDocument(ctx, `WHERE kind=$1 AND slug=$2`, kind, docSlug)
}

func (s *PostgresStore) getDocument(ctx context.Context, where string, args ...any) (Document, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents `+where, args...)
	item, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}
	return item, true, nil
}

func (s *PostgresStore) ListDocumentSlugs(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug FROM documents WHERE kind=$1 AND slug <> ''`, kind)
	if err != nil {
		return nil, fmt.Errorf("list document slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan slug: %w", err)
		}
		slugs = append(slugs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slugs: %w", err)
	}
	return slugs, nil
}

func (s *PostgresStore) InsertDocument(ctx context.Context, item Document) error {
	fields, err := json.Marshal(fieldsOrEmpty(item.Fields))
	if err != nil {
		return fmt.Errorf("marshal document fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, kind, slug, title, fields, state, author_id, category_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.Kind, item.Slug, item.Title, fields, item.State, item.AuthorID, item.CategoryID)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// UpdateDocument applies the patch and returns the updated row. The second
// return is false when no row matched.
func (s *PostgresStore) UpdateDocument(ctx context.Context, kind, documentID string, patch DocumentPatch) (Document, bool, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{kind, documentID}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Fields != nil {
		fields, err := json.Marshal(patch.Fields)
		if err != nil {
			return Document{}, false, fmt.Errorf("marshal document fields: %w", err)
		}
		add("fields", fields)
	}
	if patch.State != nil {
		add("state", *patch.State)
	}
	if patch.AuthorID != nil {
		add("author_id", *patch.AuthorID)
	}
	if patch.CategoryID != nil {
		if *patch.CategoryID == "" {
			sets = append(sets, "category_id=NULL")
		} else {
			add("category_id", *patch.CategoryID)
		}
	}

	query := `UPDATE documents SET ` + strings.Join(sets, ", ") +
		` WHERE kind=$1 AND id=$2 RETURNING ` + documentColumns
	row := s.db.QueryRowContext(ctx, query, args...)
	item, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}
	return item, true, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, kind, documentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE kind=$1 AND id=$2`, kind, documentID)
	if err != nil {
		return false, fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete document result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListDocumentsByCategory(ctx context.Context, categoryID string) ([]Document, error) {
	return s.ListDocuments(ctx, DocumentFilter{CategoryID: categoryID}, "-createdAt", 0, 1000)
}

func documentWhere(filter DocumentFilter) (string, []any) {
	var clauses []string
	var args []any

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	add("kind", filter.Kind)
	add("state", filter.State)
	add("author_id", filter.AuthorID)
	add("category_id", filter.CategoryID)

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var item Document
	var fields []byte
	err := row.Scan(&item.ID, &item.Kind, &item.Slug, &item.Title, &fields, &item.State,
		&item.AuthorID, &item.CategoryID, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, err
	}
	if err != nil {
		return Document{}, fmt.Errorf("scan document: %w", err)
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &item.Fields); err != nil {
			return Document{}, fmt.Errorf("unmarshal document fields: %w", err)
		}
	}
	return item, nil
}

func fieldsOrEmpty(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return fields
}

// ---------------------------------------------------------------------------
// Comments

const commentColumns = `id, kind, document_id, parent_id, title, body, author_id, state, created_at, updated_at`

var commentSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"state":     "state",
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id=$1`, commentID)
	item, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, false, nil
	}
	if err != nil {
		return Comment{}, false, err
	}
	return item, true, nil
}

// ListCommentChildren returns the live set of comments whose parent is
// commentID. This is the reverse lookup behind Comment.Children.
func (s *PostgresStore) ListCommentChildren(ctx context.Context, commentID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+` FROM comments WHERE parent_id=$1 ORDER BY created_at ASC
	`, commentID)
	if err != nil {
		return nil, fmt.Errorf("list comment children: %w", err)
	}
	defer rows.Close()
	return collectComments(rows)
}

func (s *PostgresStore) ListComments(ctx context.Context, filter CommentFilter, sort string, skip, limit int) ([]Comment, error) {
	where, args := commentWhere(filter)
	query := `SELECT ` + commentColumns + ` FROM comments` + where +
		` ORDER BY ` + orderBy(sort, commentSortColumns, "created_at DESC") +
		` OFFSET ` + strconv.Itoa(skip) + ` LIMIT ` + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	return collectComments(rows)
}

func (s *PostgresStore) CountComments(ctx context.Context, filter CommentFilter) (int, error) {
	where, args := commentWhere(filter)
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, item Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, kind, document_id, parent_id, title, body, author_id, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.Kind, item.DocumentID, item.ParentID, item.Title, item.Body, item.AuthorID, item.State)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateComment(ctx context.Context, commentID string, patch CommentPatch) (Comment, bool, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{commentID}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Body != nil {
		add("body", *patch.Body)
	}
	if patch.State != nil {
		add("state", *patch.State)
	}

	query := `UPDATE comments SET ` + strings.Join(sets, ", ") +
		` WHERE id=$1 RETURNING ` + commentColumns
	row := s.db.QueryRowContext(ctx, query, args...)
	item, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, false, nil
	}
	if err != nil {
		return Comment{}, false, err
	}
	return item, true, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete comment result: %w", err)
	}
	return affected > 0, nil
}

// MarkChildCommentsOrphaned moves every direct child of commentID to the
// parent_deleted state. Runs after the parent delete, outside any shared
// transaction; a crash in between leaves children in their prior state.
func (s *PostgresStore) MarkChildCommentsOrphaned(ctx context.Context, commentID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE comments SET state=$2, updated_at=NOW() WHERE parent_id=$1
	`, commentID, CommentParentDeleted)
	if err != nil {
		return fmt.Errorf("orphan child comments: %w", err)
	}
	return nil
}

func commentWhere(filter CommentFilter) (string, []any) {
	var clauses []string
	var args []any

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	add("kind", filter.Kind)
	add("document_id", filter.DocumentID)
	add("parent_id", filter.ParentID)
	add("author_id", filter.AuthorID)
	add("state", filter.State)

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanComment(row rowScanner) (Comment, error) {
	var item Comment
	err := row.Scan(&item.ID, &item.Kind, &item.DocumentID, &item.ParentID, &item.Title,
		&item.Body, &item.AuthorID, &item.State, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, err
	}
	if err != nil {
		return Comment{}, fmt.Errorf("scan comment: %w", err)
	}
	return item, nil
}

func collectComments(rows *sql.Rows) ([]Comment, error) {
	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Categories

const categoryColumns = `id, kind, name, slug, description, parent_id, created_at, updated_at`

func (s *PostgresStore) GetCategoryByID(ctx context.Context, categoryID string) (Category, bool, error) {
	return s.getCategory(ctx, `WHERE id=$1`, categoryID)
}

func (s *PostgresStore) GetCategoryBySlug(ctx context.Context, kind, catSlug string) (Category, bool, error) {
	return s.getCategory(ctx, `WHERE kind=$1 AND slug=$2`, kind, catSlug)
}

func (s *PostgresStore) getCategory(ctx context.Context, where string, args ...any) (Category, bool, error) {
	var item Category
	err := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories `+where, args...).
		Scan(&item.ID, &item.Kind, &item.Name, &item.Slug, &item.Description, &item.ParentID,
			&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, false, nil
	}
	if err != nil {
		return Category{}, false, fmt.Errorf("lookup category: %w", err)
	}
	return item, true, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context, kind string, skip, limit int) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+categoryColumns+` FROM categories WHERE kind=$1 ORDER BY name ASC
		OFFSET `+strconv.Itoa(skip)+` LIMIT `+strconv.Itoa(limit), kind)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	items := make([]Category, 0)
	for rows.Next() {
		var item Category
		if err := rows.Scan(&item.ID, &item.Kind, &item.Name, &item.Slug, &item.Description,
			&item.ParentID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountCategories(ctx context.Context, kind string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE kind=$1`, kind).Scan(&count); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListCategorySlugs(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slug FROM categories WHERE kind=$1`, kind)
	if err != nil {
		return nil, fmt.Errorf("list category slugs: %w", err)
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan category slug: %w", err)
		}
		slugs = append(slugs, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category slugs: %w", err)
	}
	return slugs, nil
}

func (s *PostgresStore) InsertCategory(ctx context.Context, item Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, kind, name, slug, description, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.Kind, item.Name, item.Slug, item.Description, item.ParentID)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, categoryID string, patch CategoryPatch) (Category, bool, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{categoryID}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}

	var item Category
	err := s.db.QueryRowContext(ctx, `UPDATE categories SET `+strings.Join(sets, ", ")+
		` WHERE id=$1 RETURNING `+categoryColumns, args...).
		Scan(&item.ID, &item.Kind, &item.Name, &item.Slug, &item.Description, &item.ParentID,
			&item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Category{}, false, nil
	}
	if err != nil {
		return Category{}, false, fmt.Errorf("update category: %w", err)
	}
	return item, true, nil
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, categoryID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id=$1`, categoryID)
	if err != nil {
		return false, fmt.Errorf("delete category: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete category result: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) CountChildCategories(ctx context.Context, categoryID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE parent_id=$1`, categoryID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count child categories: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountDocumentsInCategory(ctx context.Context, categoryID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE category_id=$1`, categoryID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents in category: %w", err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Sorting

// orderBy maps an API sort key ("-createdAt" for descending) to a whitelisted
// ORDER BY clause. Unknown keys fall back to the default.
func orderBy(sort string, allowed map[string]string, fallback string) string {
	direction := "ASC"
	key := sort
	if strings.HasPrefix(sort, "-") {
		direction = "DESC"
		key = sort[1:]
	}
	column, ok := allowed[key]
	if !ok {
		return fallback
	}
	return column + " " + direction
}
