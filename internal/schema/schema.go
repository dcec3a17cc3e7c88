// Package schema holds the declarative configuration for a document kind and
// resolves its permission rules into a fully-populated form.
package schema

import "quill/api/internal/rbac"

// Access is an owner-aware permission: the minimum role plus whether any actor
// meeting that role may act on records they do not own.
type Access struct {
	Role   rbac.Role
	Public bool
}

// Permissions declares who may act on a document kind. Read and Write are
// shorthands; the named actions override them. Unset fields (zero roles, nil
// accesses) are filled by Kind.Normalize.
type Permissions struct {
	Read  rbac.Role
	Write rbac.Role

	GetAll rbac.Role
	GetOne rbac.Role
	Create rbac.Role

	Edit   *Access
	Delete *Access
	Drafts *Access
}

// CommentOptions enables threaded comments on a kind.
type CommentOptions struct {
	Write  rbac.Role // who may comment
	Verify rbac.Role // who may set a comment to a terminal accepted/rejected state
	Manage rbac.Role // who may list and delete any comment
}

// CategoryOptions enables category tagging on a kind.
type CategoryOptions struct {
	Read  rbac.Role
	Write rbac.Role
}

// Index is a storage index definition materialized at startup.
type Index struct {
	Name   string
	Fields []string
	Unique bool
}

// Kind is the immutable configuration for one document kind. Construct it,
// call Normalize once, and share the result freely across requests.
type Kind struct {
	Name        string
	HasSlug     bool
	Permissions Permissions
	Comments    *CommentOptions
	Categories  *CategoryOptions
	Indexes     []Index
	Searchable  []string

	normalized bool
}

// Normalized reports whether Normalize has run on this value.
func (k Kind) Normalized() bool { return k.normalized }

// Normalize fills every unset permission field from the shorthands and the
// role defaults. It is idempotent and never fails; an absent section simply
// takes full defaults.
func (k Kind) Normalize() Kind {
	if k.normalized {
		return k
	}

	read := k.Permissions.Read
	if read == "" {
		read = rbac.RoleGuest
	}
	write := k.Permissions.Write
	if write == "" {
		write = rbac.RoleRegistered
	}

	p := k.Permissions
	if p.GetAll == "" {
		p.GetAll = read
	}
	if p.GetOne == "" {
		p.GetOne = read
	}
	if p.Create == "" {
		p.Create = write
	}
	p.Edit = resolveAccess(p.Edit, write, false)
	p.Delete = resolveAccess(p.Delete, write, false)
	p.Drafts = resolveAccess(p.Drafts, write, true)
	p.Read = read
	p.Write = write
	k.Permissions = p

	if k.Comments != nil {
		c := *k.Comments
		if c.Write == "" {
			c.Write = rbac.RoleRegistered
		}
		if c.Verify == "" {
			c.Verify = rbac.RoleModerator
		}
		if c.Manage == "" {
			c.Manage = rbac.RoleModerator
		}
		k.Comments = &c
	}

	if k.Categories != nil {
		c := *k.Categories
		if c.Read == "" {
			c.Read = rbac.RoleGuest
		}
		if c.Write == "" {
			c.Write = rbac.RoleModerator
		}
		k.Categories = &c
	}

	k.normalized = true
	return k
}

func resolveAccess(explicit *Access, role rbac.Role, public bool) *Access {
	if explicit != nil {
		a := *explicit
		if a.Role == "" {
			a.Role = role
		}
		return &a
	}
	return &Access{Role: role, Public: public}
}

// CommentsEnabled reports whether the kind accepts comments.
func (k Kind) CommentsEnabled() bool { return k.Comments != nil }

// CategoriesEnabled reports whether the kind accepts category tags.
func (k Kind) CategoriesEnabled() bool { return k.Categories != nil }
