package store

import "time"

// Document lifecycle states.
const (
	StatePublished = "published"
	StateDraft     = "draft"
)

// Comment moderation states.
const (
	CommentAccepted      = "accepted"
	CommentRejected      = "rejected"
	CommentWaiting       = "waiting"
	CommentParentDeleted = "parent_deleted"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Document is one persisted record of a configured kind. Fields carries the
// kind-specific payload as a JSON object.
type Document struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Slug       string         `json:"slug,omitempty"`
	Title      string         `json:"title"`
	Fields     map[string]any `json:"fields"`
	State      string         `json:"state"`
	AuthorID   *string        `json:"authorId"`
	CategoryID *string        `json:"categoryId,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Comment belongs to a document and optionally to a parent comment. Children
// is a view computed by reverse parent lookup, never stored.
type Comment struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	DocumentID string    `json:"documentId"`
	ParentID   *string   `json:"parentId,omitempty"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	AuthorID   *string   `json:"authorId"`
	State      string    `json:"state"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Children   []Comment `json:"children,omitempty"`
}

// Category is a single-level-deep tree node. Documents is a view computed by
// reverse lookup on the tagged documents, never stored.
type Category struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description string     `json:"description,omitempty"`
	ParentID    *string    `json:"parentId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Documents   []Document `json:"documents,omitempty"`
}

// DocumentFilter narrows document listings. Zero-valued fields do not filter.
type DocumentFilter struct {
	Kind       string
	State      string
	AuthorID   string
	CategoryID string
}

// CommentFilter narrows comment listings. Zero-valued fields do not filter.
type CommentFilter struct {
	Kind       string
	DocumentID string
	ParentID   string
	AuthorID   string
	State      string
}

// DocumentPatch is a partial update; nil fields are left untouched.
type DocumentPatch struct {
	Title      *string
	Fields     map[string]any
	State      *string
	AuthorID   *string
	CategoryID *string
}

// CommentPatch is a partial update; nil fields are left untouched.
type CommentPatch struct {
	Title *string
	Body  *string
	State *string
}

// CategoryPatch is a partial update; nil fields are left untouched.
type CategoryPatch struct {
	Name        *string
	Description *string
}
