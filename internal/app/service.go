package app

import (
	"context"
	"log"
	"time"

	"quill/api/internal/archive"
	"quill/api/internal/auth"
	"quill/api/internal/config"
	"quill/api/internal/directory"
	"quill/api/internal/rbac"
	"quill/api/internal/schema"
	"quill/api/internal/search"
	"quill/api/internal/store"
	"quill/api/internal/util"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	Role      string
	ExpiresAt time.Time
}

// dataStore is the storage collaborator surface the controllers consume.
type dataStore interface {
	ListDocuments(ctx context.Context, filter store.DocumentFilter, sort string, skip, limit int) ([]store.Document, error)
	CountDocuments(ctx context.Context, filter store.DocumentFilter) (int, error)
	GetDocumentByID(ctx context.Context, kind, documentID string) (store.Document, bool, error)
	GetDocumentBySlug(ctx context.Context, kind, slug string) (store.Document, bool, error)
	ListDocumentSlugs(ctx context.Context, kind string) ([]string, error)
	InsertDocument(ctx context.Context, item store.Document) error
	UpdateDocument(ctx context.Context, kind, documentID string, patch store.DocumentPatch) (store.Document, bool, error)
	DeleteDocument(ctx context.Context, kind, documentID string) (bool, error)

	GetComment(ctx context.Context, commentID string) (store.Comment, bool, error)
	ListCommentChildren(ctx context.Context, commentID string) ([]store.Comment, error)
	ListComments(ctx context.Context, filter store.CommentFilter, sort string, skip, limit int) ([]store.Comment, error)
	CountComments(ctx context.Context, filter store.CommentFilter) (int, error)
	InsertComment(ctx context.Context, item store.Comment) error
	UpdateComment(ctx context.Context, commentID string, patch store.CommentPatch) (store.Comment, bool, error)
	DeleteComment(ctx context.Context, commentID string) (bool, error)
	MarkChildCommentsOrphaned(ctx context.Context, commentID string) error

	GetCategoryByID(ctx context.Context, categoryID string) (store.Category, bool, error)
	GetCategoryBySlug(ctx context.Context, kind, slug string) (store.Category, bool, error)
	ListCategories(ctx context.Context, kind string, skip, limit int) ([]store.Category, error)
	CountCategories(ctx context.Context, kind string) (int, error)
	ListCategorySlugs(ctx context.Context, kind string) ([]string, error)
	InsertCategory(ctx context.Context, item store.Category) error
	UpdateCategory(ctx context.Context, categoryID string, patch store.CategoryPatch) (store.Category, bool, error)
	DeleteCategory(ctx context.Context, categoryID string) (bool, error)
	CountChildCategories(ctx context.Context, categoryID string) (int, error)
	CountDocumentsInCategory(ctx context.Context, categoryID string) (int, error)
	ListDocumentsByCategory(ctx context.Context, categoryID string) ([]store.Document, error)

	Ping(ctx context.Context) error
}

// userDirectory resolves actors. Absence is a value.
type userDirectory interface {
	Lookup(ctx context.Context, userID string) (store.User, bool, error)
}

// searchIndex mirrors document writes into the search engine and answers
// full-text queries. Indexing is best effort.
type searchIndex interface {
	IndexDocument(kind schema.Kind, item store.Document)
	RemoveDocument(kind schema.Kind, documentID string)
	Search(ctx context.Context, kind schema.Kind, text string, limit, offset int) search.Response
}

// revisionArchive snapshots document writes and answers history queries.
// Saving is best effort.
type revisionArchive interface {
	SaveRevision(kindName string, item store.Document, actor string) error
	History(kindName, documentID string, limit int) ([]archive.RevisionInfo, error)
}

// moderationNotifier is told about comments entering the waiting state.
type moderationNotifier interface {
	CommentWaiting(kindName string, comment store.Comment)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	users    userDirectory
	accounts *directory.Service
	search   searchIndex
	archive  revisionArchive
	notifier moderationNotifier
	kinds    map[string]schema.Kind
}

// New wires the controllers for a set of kind configurations. Each kind is
// normalized exactly once here; search, archive and notifier may be nil.
func New(cfg config.Config, dataStore *store.PostgresStore, users *directory.Service, kinds []schema.Kind) *Service {
	byName := make(map[string]schema.Kind, len(kinds))
	for _, k := range kinds {
		byName[k.Name] = k.Normalize()
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		users:    users,
		accounts: users,
		kinds:    byName,
	}
}

// WithSearch attaches a search indexer.
func (s *Service) WithSearch(index searchIndex) *Service {
	s.search = index
	return s
}

// WithArchive attaches a revision archive.
func (s *Service) WithArchive(archive revisionArchive) *Service {
	s.archive = archive
	return s
}

// WithNotifier attaches a moderation notifier.
func (s *Service) WithNotifier(notifier moderationNotifier) *Service {
	s.notifier = notifier
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Kind returns the normalized configuration for a kind name.
func (s *Service) Kind(name string) (schema.Kind, *DomainError) {
	kind, ok := s.kinds[name]
	if !ok {
		return schema.Kind{}, notFound("kind", "unknown document kind")
	}
	return kind, nil
}

// resolveActor resolves userID against the directory. An empty or unknown id
// is "user not found"; both are expected outcomes, not faults.
func (s *Service) resolveActor(ctx context.Context, userID string) (store.User, error) {
	if userID == "" {
		return store.User{}, notFound("user", "user not found")
	}
	user, found, err := s.users.Lookup(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	if !found {
		return store.User{}, notFound("user", "user not found")
	}
	return user, nil
}

// gate resolves the actor only when required exceeds guest, then checks the
// role bar. Returns the actor (zero-valued when no resolution was needed).
func (s *Service) gate(ctx context.Context, required rbac.Role, userID string) (store.User, error) {
	if required == rbac.RoleGuest {
		return store.User{}, nil
	}
	actor, err := s.resolveActor(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	if !rbac.Satisfies(rbac.Role(actor.Role), required) {
		return store.User{}, forbidden("no permission for this action")
	}
	return actor, nil
}

// Login authenticates against the directory and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	if s.accounts == nil {
		return Session{}, forbidden("login is not available")
	}
	user, err := s.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(user)
}

// SignUpUser registers an account and issues a session token.
func (s *Service) SignUpUser(ctx context.Context, email, password, displayName string) (Session, error) {
	if s.accounts == nil {
		return Session{}, forbidden("signup is not available")
	}
	user, err := s.accounts.SignUp(ctx, directory.SignUpRequest{Email: email, Password: password, DisplayName: displayName})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(user)
}

// SessionFromToken validates a bearer token.
func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Role:      claims.Role,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) issueSession(user store.User) (Session, error) {
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		ExpiresAt: expiresAt,
	}, nil
}

func logArchiveError(kindName, documentID string, err error) {
	log.Printf("archive: %s/%s: %v", kindName, documentID, err)
}

func newDocumentID() string { return util.NewID("doc") }
func newCommentID() string  { return util.NewID("cmt") }
func newCategoryID() string { return util.NewID("cat") }
