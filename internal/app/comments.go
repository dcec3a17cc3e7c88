package app

import (
	"context"

	"quill/api/internal/page"
	"quill/api/internal/rbac"
	"quill/api/internal/schema"
	"quill/api/internal/store"
)

// CommentList is one page of comments with its pagination metadata.
type CommentList struct {
	Items []store.Comment
	Page  page.Data
}

// CommentPayload carries caller-supplied fields for a new comment. Document
// addresses the parent document by id or slug; ParentID threads the comment
// under another comment of the same document.
type CommentPayload struct {
	Document string
	ParentID string
	Title    string
	Body     string
	State    string
}

// CommentEdit is a partial update; nil fields are left untouched.
type CommentEdit struct {
	Title *string
	Body  *string
	State *string
}

// commentKind resolves the kind and requires comments to be enabled on it.
func (s *Service) commentKind(kindName string) (schema.Kind, *schema.CommentOptions, *DomainError) {
	kind, derr := s.Kind(kindName)
	if derr != nil {
		return schema.Kind{}, nil, derr
	}
	if !kind.CommentsEnabled() {
		return schema.Kind{}, nil, featureDisabled("comments")
	}
	return kind, kind.Comments, nil
}

// GetComment fetches one comment with its children view populated.
func (s *Service) GetComment(ctx context.Context, kindName, commentID string) (store.Comment, error) {
	_, _, derr := s.commentKind(kindName)
	if derr != nil {
		return store.Comment{}, derr
	}

	item, found, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return store.Comment{}, err
	}
	if !found {
		return store.Comment{}, notFound("comment", "comment not found")
	}

	children, err := s.store.ListCommentChildren(ctx, item.ID)
	if err != nil {
		return store.Comment{}, err
	}
	item.Children = children
	return item, nil
}

// ListDocumentComments lists the accepted comments of one document.
func (s *Service) ListDocumentComments(ctx context.Context, kindName, identity string, pageNum, limit int) (CommentList, error) {
	kind, _, derr := s.commentKind(kindName)
	if derr != nil {
		return CommentList{}, derr
	}

	doc, found, err := s.findDocument(ctx, kind, identity)
	if err != nil {
		return CommentList{}, err
	}
	if !found {
		return CommentList{}, notFound("document", "document not found")
	}

	filter := store.CommentFilter{Kind: kind.Name, DocumentID: doc.ID, State: store.CommentAccepted}
	total, err := s.store.CountComments(ctx, filter)
	if err != nil {
		return CommentList{}, err
	}
	skip, pageData := page.Paginate(pageNum, limit, total)

	items, err := s.store.ListComments(ctx, filter, "createdAt", skip, pageData.Limit)
	if err != nil {
		return CommentList{}, err
	}
	return CommentList{Items: items, Page: pageData}, nil
}

// ListComments is the moderation listing over an arbitrary filter. The caller
// must satisfy the kind's manage role.
func (s *Service) ListComments(ctx context.Context, kindName string, pageNum, limit int, filter store.CommentFilter, sort, userID string) (CommentList, error) {
	kind, opts, derr := s.commentKind(kindName)
	if derr != nil {
		return CommentList{}, derr
	}

	actor, err := s.resolveActor(ctx, userID)
	if err != nil {
		return CommentList{}, err
	}
	if !rbac.Satisfies(rbac.Role(actor.Role), opts.Manage) {
		return CommentList{}, forbidden("no permission to manage comments")
	}

	filter.Kind = kind.Name
	total, err := s.store.CountComments(ctx, filter)
	if err != nil {
		return CommentList{}, err
	}
	skip, pageData := page.Paginate(pageNum, limit, total)

	items, err := s.store.ListComments(ctx, filter, sort, skip, pageData.Limit)
	if err != nil {
		return CommentList{}, err
	}
	return CommentList{Items: items, Page: pageData}, nil
}

// CreateComment stamps the author and persists a new comment. Non-verifiers
// always start in the waiting state.
func (s *Service) CreateComment(ctx context.Context, kindName string, payload CommentPayload, userID string) (store.Comment, error) {
	kind, opts, derr := s.commentKind(kindName)
	if derr != nil {
		return store.Comment{}, derr
	}

	var author *string
	actor := store.User{}
	if opts.Write != rbac.RoleGuest {
		var err error
		actor, err = s.resolveActor(ctx, userID)
		if err != nil {
			return store.Comment{}, err
		}
		if !rbac.Satisfies(rbac.Role(actor.Role), opts.Write) {
			return store.Comment{}, forbidden("no permission to comment")
		}
		author = &actor.ID
	} else if userID != "" {
		user, found, err := s.users.Lookup(ctx, userID)
		if err != nil {
			return store.Comment{}, err
		}
		if !found {
			return store.Comment{}, notFound("user", "user not found")
		}
		actor = user
		author = &user.ID
	}

	doc, found, err := s.findDocument(ctx, kind, payload.Document)
	if err != nil {
		return store.Comment{}, err
	}
	if !found {
		return store.Comment{}, notFound("document", "document not found")
	}

	var parent *string
	if payload.ParentID != "" {
		parentComment, found, err := s.store.GetComment(ctx, payload.ParentID)
		if err != nil {
			return store.Comment{}, err
		}
		if !found {
			return store.Comment{}, notFound("comment", "parent comment not found")
		}
		if parentComment.DocumentID != doc.ID {
			return store.Comment{}, validation("parent", "parent comment belongs to another document")
		}
		parent = &parentComment.ID
	}

	// Only verifiers may choose a state; everyone else waits for moderation.
	state := store.CommentWaiting
	if rbac.Satisfies(rbac.Role(actor.Role), opts.Verify) {
		state = store.CommentAccepted
		if payload.State != "" {
			if !settableCommentState(payload.State) {
				return store.Comment{}, validation("state", "invalid comment state")
			}
			state = payload.State
		}
	}

	item := store.Comment{
		ID:         newCommentID(),
		Kind:       kind.Name,
		DocumentID: doc.ID,
		ParentID:   parent,
		Title:      payload.Title,
		Body:       payload.Body,
		AuthorID:   author,
		State:      state,
	}
	if err := s.store.InsertComment(ctx, item); err != nil {
		return store.Comment{}, err
	}

	if item.State == store.CommentWaiting && s.notifier != nil {
		s.notifier.CommentWaiting(kind.Name, item)
	}
	return item, nil
}

// EditComment applies a partial update. An editor below the verify role can
// never land a terminal state: the comment is forced back to waiting.
func (s *Service) EditComment(ctx context.Context, kindName, commentID string, edit CommentEdit, editorID string) (store.Comment, error) {
	kind, opts, derr := s.commentKind(kindName)
	if derr != nil {
		return store.Comment{}, derr
	}

	editor, err := s.resolveActor(ctx, editorID)
	if err != nil {
		return store.Comment{}, err
	}

	if !rbac.Satisfies(rbac.Role(editor.Role), opts.Verify) {
		waiting := store.CommentWaiting
		edit.State = &waiting
	} else if edit.State != nil && !settableCommentState(*edit.State) {
		return store.Comment{}, validation("state", "invalid comment state")
	}

	updated, found, err := s.store.UpdateComment(ctx, commentID, store.CommentPatch{
		Title: edit.Title,
		Body:  edit.Body,
		State: edit.State,
	})
	if err != nil {
		return store.Comment{}, err
	}
	if !found {
		return store.Comment{}, notFound("comment", "comment not found")
	}

	if updated.State == store.CommentWaiting && s.notifier != nil {
		s.notifier.CommentWaiting(kind.Name, updated)
	}
	return updated, nil
}

// DeleteComment removes a comment and moves its direct children to the
// parent_deleted state. Only the comment's author or a manager may delete.
func (s *Service) DeleteComment(ctx context.Context, kindName, commentID, editorID string) error {
	_, opts, derr := s.commentKind(kindName)
	if derr != nil {
		return derr
	}

	editor, err := s.resolveActor(ctx, editorID)
	if err != nil {
		return err
	}

	item, found, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return err
	}
	if !found {
		return notFound("comment", "comment not found")
	}

	isAuthor := item.AuthorID != nil && *item.AuthorID == editor.ID
	if !isAuthor && !rbac.Satisfies(rbac.Role(editor.Role), opts.Manage) {
		return forbidden("no permission to delete this comment")
	}

	deleted, err := s.store.DeleteComment(ctx, item.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("comment", "comment not found")
	}

	// One-level cascade: direct children only. The two statements are not one
	// transaction; a crash in between leaves children in their prior state.
	return s.store.MarkChildCommentsOrphaned(ctx, item.ID)
}

func settableCommentState(state string) bool {
	switch state {
	case store.CommentAccepted, store.CommentRejected, store.CommentWaiting:
		return true
	}
	return false
}
