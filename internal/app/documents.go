package app

import (
	"context"

	"quill/api/internal/archive"
	"quill/api/internal/page"
	"quill/api/internal/rbac"
	"quill/api/internal/schema"
	"quill/api/internal/search"
	"quill/api/internal/slug"
	"quill/api/internal/store"
	"quill/api/internal/util"
)

// DocumentList is one page of documents with its pagination metadata.
type DocumentList struct {
	Items []store.Document
	Page  page.Data
}

// DocumentPayload carries caller-supplied fields for create.
type DocumentPayload struct {
	Title      string
	Fields     map[string]any
	State      string
	CategoryID string
}

// DocumentEdit is a partial update; nil fields are left untouched. Setting
// AuthorID reassigns ownership and is re-checked against the kind's create
// permission.
type DocumentEdit struct {
	Title      *string
	Fields     map[string]any
	State      *string
	AuthorID   *string
	CategoryID *string
}

// ListDocuments is the getAll operation: role-gated, draft-filtered,
// paginated.
func (s *Service) ListDocuments(ctx context.Context, kindName string, pageNum, limit int, sort, userID string) (DocumentList, error) {
	kind, derr := s.Kind(kindName)
	if derr != nil {
		return DocumentList{}, derr
	}
	perms := kind.Permissions

	actor, resolved := store.User{}, false
	if perms.GetAll != rbac.RoleGuest {
		var err error
		actor, err = s.gate(ctx, perms.GetAll, userID)
		if err != nil {
			return DocumentList{}, err
		}
		resolved = true
	}

	filter := store.DocumentFilter{Kind: kind.Name, State: store.StatePublished}
	if s.draftsVisible(ctx, kind, userID, actor, resolved) {
		filter.State = ""
	}

	total, err := s.store.CountDocuments(ctx, filter)
	if err != nil {
		return DocumentList{}, err
	}
	skip, pageData := page.Paginate(pageNum, limit, total)

	items, err := s.store.ListDocuments(ctx, filter, sort, skip, pageData.Limit)
	if err != nil {
		return DocumentList{}, err
	}
	return DocumentList{Items: items, Page: pageData}, nil
}

// draftsVisible implements the drafts policy of getAll: drafts are listed for
// everyone when the policy is guest-public, or when the querying actor meets
// the drafts role. This is a whole-listing switch, not a per-record owner
// filter.
func (s *Service) draftsVisible(ctx context.Context, kind schema.Kind, userID string, actor store.User, resolved bool) bool {
	drafts := kind.Permissions.Drafts
	if drafts.Public && drafts.Role == rbac.RoleGuest {
		return true
	}
	if !resolved {
		if userID == "" {
			return false
		}
		user, found, err := s.users.Lookup(ctx, userID)
		if err != nil || !found {
			return false
		}
		actor = user
	}
	return rbac.Satisfies(rbac.Role(actor.Role), drafts.Role)
}

// GetDocument is the getOne operation: role-gated, addressed by id or slug.
func (s *Service) GetDocument(ctx context.Context, kindName, identity, userID string) (store.Document, error) {
	kind, derr := s.Kind(kindName)
	if derr != nil {
		return store.Document{}, derr
	}

	if _, err := s.gate(ctx, kind.Permissions.GetOne, userID); err != nil {
		return store.Document{}, err
	}

	item, found, err := s.findDocument(ctx, kind, identity)
	if err != nil {
		return store.Document{}, err
	}
	if !found {
		return store.Document{}, notFound("document", "document not found")
	}
	return item, nil
}

// CreateDocument persists a new record with the resolved author attached.
func (s *Service) CreateDocument(ctx context.Context, kindName string, payload DocumentPayload, authorID string) (store.Document, error) {
	kind, derr := s.Kind(kindName)
	if derr != nil {
		return store.Document{}, derr
	}
	perms := kind.Permissions

	var author *string
	if perms.Create != rbac.RoleGuest {
		if authorID == "" {
			return store.Document{}, notFound("author", "author not found")
		}
		user, found, err := s.users.Lookup(ctx, authorID)
		if err != nil {
			return store.Document{}, err
		}
		if !found {
			return store.Document{}, notFound("author", "author not found")
		}
		if !rbac.Satisfies(rbac.Role(user.Role), perms.Create) {
			return store.Document{}, forbidden("no permission to create")
		}
		author = &user.ID
	} else if authorID != "" {
		// Guest-level creation still attaches an author when one resolves.
		user, found, err := s.users.Lookup(ctx, authorID)
		if err != nil {
			return store.Document{}, err
		}
		if !found {
			return store.Document{}, notFound("author", "author not found")
		}
		author = &user.ID
	}

	state := payload.State
	if state == "" {
		state = store.StatePublished
	}
	if state != store.StatePublished && state != store.StateDraft {
		return store.Document{}, validation("state", "state must be published or draft")
	}

	var category *string
	if payload.CategoryID != "" {
		id, err := s.checkCategoryRef(ctx, kind, payload.CategoryID)
		if err != nil {
			return store.Document{}, err
		}
		category = id
	}

	item := store.Document{
		ID:         newDocumentID(),
		Kind:       kind.Name,
		Title:      payload.Title,
		Fields:     payload.Fields,
		State:      state,
		AuthorID:   author,
		CategoryID: category,
	}
	if kind.HasSlug {
		taken, err := s.store.ListDocumentSlugs(ctx, kind.Name)
		if err != nil {
			return store.Document{}, err
		}
		item.Slug = slug.Generate(payload.Title, taken)
	}

	if err := s.store.InsertDocument(ctx, item); err != nil {
		return store.Document{}, err
	}

	created, found, err := s.store.GetDocumentByID(ctx, kind.Name, item.ID)
	if err != nil || !found {
		// Fall back to the row we wrote; timestamps are then zero-valued.
		created = item
	}

	s.afterDocumentWrite(kind, created, authorID)
	return created, nil
}

// EditDocument applies a partial update. Check order is fixed: existence,
// permission, ownership, then author-reassignment eligibility.
func (s *Service) EditDocument(ctx context.Context, kindName, identity string, edit DocumentEdit, editorID string) (store.Document, error) {
	kind, derr := s.Kind(kindName)
	if derr != nil {
		return store.Document{}, derr
	}

	item, found, err := s.findDocument(ctx, kind, identity)
	if err != nil {
		return store.Document{}, err
	}
	if !found {
		return store.Document{}, notFound("document", "document not found")
	}

	if err := s.authorizeOwnerAction(ctx, *kind.Permissions.Edit, item, editorID); err != nil {
		return store.Document{}, err
	}

	if edit.AuthorID != nil && (item.AuthorID == nil || *edit.AuthorID != *item.AuthorID) {
		newAuthor, found, err := s.users.Lookup(ctx, *edit.AuthorID)
		if err != nil {
			return store.Document{}, err
		}
		if !found {
			return store.Document{}, notFound("author", "author not found")
		}
		// Reassignment reuses the creation bar, not the edit bar.
		if !rbac.Satisfies(rbac.Role(newAuthor.Role), kind.Permissions.Create) {
			return store.Document{}, conflict("author", "new author cannot own this document kind")
		}
	}

	if edit.State != nil && *edit.State != store.StatePublished && *edit.State != store.StateDraft {
		return store.Document{}, validation("state", "state must be published or draft")
	}
	if edit.CategoryID != nil && *edit.CategoryID != "" {
		if _, err := s.checkCategoryRef(ctx, kind, *edit.CategoryID); err != nil {
			return store.Document{}, err
		}
	}

	updated, found, err := s.store.UpdateDocument(ctx, kind.Name, item.ID, store.DocumentPatch{
		Title:      edit.Title,
		Fields:     edit.Fields,
		State:      edit.State,
		AuthorID:   edit.AuthorID,
		CategoryID: edit.CategoryID,
	})
	if err != nil {
		return store.Document{}, err
	}
	if !found {
		return store.Document{}, notFound("document", "document not found")
	}

	s.afterDocumentWrite(kind, updated, editorID)
	return updated, nil
}

// DeleteDocument hard-deletes a record, mirroring edit's authorization.
func (s *Service) DeleteDocument(ctx context.Context, kindName, identity, userID string) error {
	kind, derr := s.Kind(kindName)
	if derr != nil {
		return derr
	}

	item, found, err := s.findDocument(ctx, kind, identity)
	if err != nil {
		return err
	}
	if !found {
		return notFound("document", "document not found")
	}

	if err := s.authorizeOwnerAction(ctx, *kind.Permissions.Delete, item, userID); err != nil {
		return err
	}

	deleted, err := s.store.DeleteDocument(ctx, kind.Name, item.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("document", "document not found")
	}

	if s.search != nil {
		s.search.RemoveDocument(kind, item.ID)
	}
	return nil
}

// authorizeOwnerAction enforces an owner-aware policy: actor resolution is
// skipped only for {guest, public}; a non-public policy additionally requires
// the actor to be the record's author.
func (s *Service) authorizeOwnerAction(ctx context.Context, policy schema.Access, item store.Document, userID string) error {
	if policy.Role == rbac.RoleGuest && policy.Public {
		return nil
	}
	actor, err := s.resolveActor(ctx, userID)
	if err != nil {
		return err
	}
	if !rbac.Satisfies(rbac.Role(actor.Role), policy.Role) {
		return forbidden("no permission for this action")
	}
	if !policy.Public {
		if item.AuthorID == nil || *item.AuthorID != actor.ID {
			return forbidden("only the author may do this")
		}
	}
	return nil
}

// findDocument resolves an identity with exactly one lookup: by id when it
// has the native id syntax, otherwise by slug.
func (s *Service) findDocument(ctx context.Context, kind schema.Kind, identity string) (store.Document, bool, error) {
	if util.IsID(identity) {
		return s.store.GetDocumentByID(ctx, kind.Name, identity)
	}
	return s.store.GetDocumentBySlug(ctx, kind.Name, identity)
}

func (s *Service) checkCategoryRef(ctx context.Context, kind schema.Kind, categoryID string) (*string, error) {
	if !kind.CategoriesEnabled() {
		return nil, featureDisabled("categories")
	}
	category, found, err := s.store.GetCategoryByID(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound("category", "category not found")
	}
	return &category.ID, nil
}

// DocumentHistory lists the archived revisions of one document, newest
// first.
func (s *Service) DocumentHistory(ctx context.Context, kindName, identity string, limit int, userID string) ([]archive.RevisionInfo, error) {
	kind, derr := s.Kind(kindName)
	if derr != nil {
		return nil, derr
	}
	if _, err := s.gate(ctx, kind.Permissions.GetOne, userID); err != nil {
		return nil, err
	}
	if s.archive == nil {
		return nil, featureDisabled("history")
	}

	item, found, err := s.findDocument(ctx, kind, identity)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, notFound("document", "document not found")
	}
	return s.archive.History(kind.Name, item.ID, limit)
}

// SearchDocuments runs a full-text query over one kind. Only kinds that
// declare searchable fields answer.
func (s *Service) SearchDocuments(ctx context.Context, kindName, query string, limit, offset int, userID string) (search.Response, error) {
	kind, derr := s.Kind(kindName)
	if derr != nil {
		return search.Response{}, derr
	}
	if _, err := s.gate(ctx, kind.Permissions.GetAll, userID); err != nil {
		return search.Response{}, err
	}
	if s.search == nil || len(kind.Searchable) == 0 {
		return search.Response{}, featureDisabled("search")
	}
	return s.search.Search(ctx, kind, query, limit, offset), nil
}

func (s *Service) afterDocumentWrite(kind schema.Kind, item store.Document, actor string) {
	if s.search != nil {
		s.search.IndexDocument(kind, item)
	}
	if s.archive != nil {
		if err := s.archive.SaveRevision(kind.Name, item, actor); err != nil {
			logArchiveError(kind.Name, item.ID, err)
		}
	}
}
