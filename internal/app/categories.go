package app

import (
	"context"

	"quill/api/internal/page"
	"quill/api/internal/schema"
	"quill/api/internal/slug"
	"quill/api/internal/store"
	"quill/api/internal/util"
)

// CategoryList is one page of categories with its pagination metadata.
type CategoryList struct {
	Items []store.Category
	Page  page.Data
}

// CategoryPayload carries caller-supplied fields for a new category.
type CategoryPayload struct {
	Name        string
	Description string
	ParentID    string
}

// CategoryEdit is a partial update; nil fields are left untouched.
type CategoryEdit struct {
	Name        *string
	Description *string
}

// categoryKind resolves the kind and requires categories to be enabled on it.
func (s *Service) categoryKind(kindName string) (schema.Kind, *schema.CategoryOptions, *DomainError) {
	kind, derr := s.Kind(kindName)
	if derr != nil {
		return schema.Kind{}, nil, derr
	}
	if !kind.CategoriesEnabled() {
		return schema.Kind{}, nil, featureDisabled("categories")
	}
	return kind, kind.Categories, nil
}

// ListCategories lists the kind's categories one page at a time.
func (s *Service) ListCategories(ctx context.Context, kindName string, pageNum, limit int, userID string) (CategoryList, error) {
	kind, opts, derr := s.categoryKind(kindName)
	if derr != nil {
		return CategoryList{}, derr
	}
	if _, err := s.gate(ctx, opts.Read, userID); err != nil {
		return CategoryList{}, err
	}

	total, err := s.store.CountCategories(ctx, kind.Name)
	if err != nil {
		return CategoryList{}, err
	}
	skip, pageData := page.Paginate(pageNum, limit, total)

	items, err := s.store.ListCategories(ctx, kind.Name, skip, pageData.Limit)
	if err != nil {
		return CategoryList{}, err
	}
	return CategoryList{Items: items, Page: pageData}, nil
}

// GetCategory fetches one category by id or slug with its tagged documents
// populated.
func (s *Service) GetCategory(ctx context.Context, kindName, identity, userID string) (store.Category, error) {
	kind, opts, derr := s.categoryKind(kindName)
	if derr != nil {
		return store.Category{}, derr
	}
	if _, err := s.gate(ctx, opts.Read, userID); err != nil {
		return store.Category{}, err
	}

	item, found, err := s.findCategory(ctx, kind, identity)
	if err != nil {
		return store.Category{}, err
	}
	if !found {
		return store.Category{}, notFound("category", "category not found")
	}

	docs, err := s.store.ListDocumentsByCategory(ctx, item.ID)
	if err != nil {
		return store.Category{}, err
	}
	item.Documents = docs
	return item, nil
}

// CreateCategory persists a new category. A parent must itself be a root
// category; the tree never grows past one level.
func (s *Service) CreateCategory(ctx context.Context, kindName string, payload CategoryPayload, userID string) (store.Category, error) {
	kind, opts, derr := s.categoryKind(kindName)
	if derr != nil {
		return store.Category{}, derr
	}
	if _, err := s.gate(ctx, opts.Write, userID); err != nil {
		return store.Category{}, err
	}

	if payload.Name == "" {
		return store.Category{}, validation("name", "name is required")
	}

	var parent *string
	if payload.ParentID != "" {
		parentCat, found, err := s.store.GetCategoryByID(ctx, payload.ParentID)
		if err != nil {
			return store.Category{}, err
		}
		if !found {
			return store.Category{}, notFound("parent", "parent category not found")
		}
		if parentCat.Kind != kind.Name {
			return store.Category{}, validation("parent", "parent category belongs to another kind")
		}
		if parentCat.ParentID != nil {
			return store.Category{}, conflict("parent", "categories nest one level deep")
		}
		parent = &parentCat.ID
	}

	taken, err := s.store.ListCategorySlugs(ctx, kind.Name)
	if err != nil {
		return store.Category{}, err
	}

	item := store.Category{
		ID:          newCategoryID(),
		Kind:        kind.Name,
		Name:        payload.Name,
		Slug:        slug.Generate(payload.Name, taken),
		Description: payload.Description,
		ParentID:    parent,
	}
	if err := s.store.InsertCategory(ctx, item); err != nil {
		return store.Category{}, err
	}
	return item, nil
}

// EditCategory applies a partial update to name and description. The slug is
// fixed at creation time.
func (s *Service) EditCategory(ctx context.Context, kindName, identity string, edit CategoryEdit, userID string) (store.Category, error) {
	kind, opts, derr := s.categoryKind(kindName)
	if derr != nil {
		return store.Category{}, derr
	}
	if _, err := s.gate(ctx, opts.Write, userID); err != nil {
		return store.Category{}, err
	}

	item, found, err := s.findCategory(ctx, kind, identity)
	if err != nil {
		return store.Category{}, err
	}
	if !found {
		return store.Category{}, notFound("category", "category not found")
	}

	updated, found, err := s.store.UpdateCategory(ctx, item.ID, store.CategoryPatch{
		Name:        edit.Name,
		Description: edit.Description,
	})
	if err != nil {
		return store.Category{}, err
	}
	if !found {
		return store.Category{}, notFound("category", "category not found")
	}
	return updated, nil
}

// DeleteCategory removes an empty category. A category still holding child
// categories or tagged documents refuses to go.
func (s *Service) DeleteCategory(ctx context.Context, kindName, identity, userID string) error {
	kind, opts, derr := s.categoryKind(kindName)
	if derr != nil {
		return derr
	}
	if _, err := s.gate(ctx, opts.Write, userID); err != nil {
		return err
	}

	item, found, err := s.findCategory(ctx, kind, identity)
	if err != nil {
		return err
	}
	if !found {
		return notFound("category", "category not found")
	}

	children, err := s.store.CountChildCategories(ctx, item.ID)
	if err != nil {
		return err
	}
	if children > 0 {
		return conflict("category", "category still has child categories")
	}
	tagged, err := s.store.CountDocumentsInCategory(ctx, item.ID)
	if err != nil {
		return err
	}
	if tagged > 0 {
		return conflict("category", "category still has documents")
	}

	deleted, err := s.store.DeleteCategory(ctx, item.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return notFound("category", "category not found")
	}
	return nil
}

func (s *Service) findCategory(ctx context.Context, kind schema.Kind, identity string) (store.Category, bool, error) {
	if util.IsID(identity) {
		return s.store.GetCategoryByID(ctx, identity)
	}
	return s.store.GetCategoryBySlug(ctx, kind.Name, identity)
}
