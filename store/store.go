// Package store is the storage boundary of the blog: filtered, ordered
// queries over posts, existence checks on the follow graph, and the
// create/delete operations together with their cascade rules.
package store

import (
	"context"
	"errors"

	"blogfeed/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// Scope narrows a post query. Empty fields do not filter; a zero Scope
// selects every post.
type Scope struct {
	GroupID    *uint
	AuthorID   *uint
	FollowerID *uint // posts by authors this user follows
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id uint) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	// DeleteUser removes the user with their posts, comments and follow edges.
	DeleteUser(ctx context.Context, id uint) error
}

type GroupStore interface {
	CreateGroup(ctx context.Context, g *models.Group) error
	GroupByID(ctx context.Context, id uint) (*models.Group, error)
	GroupBySlug(ctx context.Context, slug string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	// DeleteGroup keeps the group's posts and clears their group reference.
	DeleteGroup(ctx context.Context, slug string) error
}

type PostStore interface {
	CountPosts(ctx context.Context, scope Scope) (int64, error)
	// ListPosts returns posts newest first, with author and group loaded.
	ListPosts(ctx context.Context, scope Scope, limit, offset int) ([]models.Post, error)
	PostByID(ctx context.Context, id uint) (*models.Post, error)
	CreatePost(ctx context.Context, p *models.Post) error
	UpdatePost(ctx context.Context, p *models.Post) error
	// DeletePost removes the post and its comments.
	DeletePost(ctx context.Context, id uint) error
}

type CommentStore interface {
	CreateComment(ctx context.Context, c *models.Comment) error
	// CommentsForPost returns comments oldest first, with authors loaded.
	CommentsForPost(ctx context.Context, postID uint) ([]models.Comment, error)
}

type FollowStore interface {
	FollowExists(ctx context.Context, userID, authorID uint) (bool, error)
	// CreateFollow is a no-op when the edge already exists.
	CreateFollow(ctx context.Context, userID, authorID uint) error
	// DeleteFollow is a no-op when the edge does not exist.
	DeleteFollow(ctx context.Context, userID, authorID uint) error
}

type Store interface {
	UserStore
	GroupStore
	PostStore
	CommentStore
	FollowStore
}
