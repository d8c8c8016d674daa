// Package feed assembles the paginated post collections of the blog: the
// global index, a group, an author's profile and a reader's follow feed.
// Every feed is ordered newest first and reflects the state of the store at
// the time of the request.
package feed

import (
	"context"
	"errors"
	"fmt"

	"blogfeed/metrics"
	"blogfeed/models"
	"blogfeed/pagination"
	"blogfeed/store"
)

var ErrUnauthenticated = errors.New("authentication required")

type Page = pagination.Page[models.Post]

type GroupPage struct {
	Group *models.Group `json:"group"`
	Page  Page          `json:"page_obj"`
}

type ProfilePage struct {
	Author     *models.User `json:"author"`
	PostsCount int          `json:"posts_count"`
	Following  bool         `json:"following"`
	Page       Page         `json:"page_obj"`
}

type PostDetail struct {
	Post       *models.Post     `json:"post"`
	Author     *models.User     `json:"author"`
	PostsCount int              `json:"posts_count"`
	Comments   []models.Comment `json:"comments"`
}

type Service struct {
	store   store.Store
	perPage int
}

func NewService(s store.Store, perPage int) *Service {
	if perPage <= 0 {
		panic("feed: perPage must be positive")
	}
	return &Service{store: s, perPage: perPage}
}

func (s *Service) page(ctx context.Context, label string, scope store.Scope, rawPage string) (Page, error) {
	count, err := s.store.CountPosts(ctx, scope)
	if err != nil {
		return Page{}, fmt.Errorf("count %s posts: %w", label, err)
	}
	meta := pagination.Resolve(int(count), s.perPage, rawPage)

	var posts []models.Post
	if count > 0 {
		posts, err = s.store.ListPosts(ctx, scope, meta.PerPage, meta.Offset)
		if err != nil {
			return Page{}, fmt.Errorf("list %s posts: %w", label, err)
		}
	}
	metrics.FeedPages.WithLabelValues(label).Inc()
	return pagination.Of(posts, meta), nil
}

// IndexPage returns a page of all posts.
func (s *Service) IndexPage(ctx context.Context, rawPage string) (Page, error) {
	return s.page(ctx, "index", store.Scope{}, rawPage)
}

// GroupPage returns a page of the posts in the group with the given slug.
func (s *Service) GroupPage(ctx context.Context, slug, rawPage string) (*GroupPage, error) {
	group, err := s.store.GroupBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	page, err := s.page(ctx, "group", store.Scope{GroupID: &group.ID}, rawPage)
	if err != nil {
		return nil, err
	}
	return &GroupPage{Group: group, Page: page}, nil
}

// ProfilePage returns a page of the posts written by username. viewer may be
// nil for anonymous requests.
func (s *Service) ProfilePage(ctx context.Context, viewer *models.User, username, rawPage string) (*ProfilePage, error) {
	author, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	page, err := s.page(ctx, "profile", store.Scope{AuthorID: &author.ID}, rawPage)
	if err != nil {
		return nil, err
	}
	following, err := s.IsFollowing(ctx, viewer, author)
	if err != nil {
		return nil, err
	}
	return &ProfilePage{
		Author:     author,
		PostsCount: page.Count,
		Following:  following,
		Page:       page,
	}, nil
}

// FollowPage returns a page of the posts by authors viewer follows.
func (s *Service) FollowPage(ctx context.Context, viewer *models.User, rawPage string) (Page, error) {
	if viewer == nil {
		return Page{}, ErrUnauthenticated
	}
	return s.page(ctx, "follow", store.Scope{FollowerID: &viewer.ID}, rawPage)
}

// PostDetail returns a post with its comments and its author's post count.
func (s *Service) PostDetail(ctx context.Context, id uint) (*PostDetail, error) {
	post, err := s.store.PostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	count, err := s.store.CountPosts(ctx, store.Scope{AuthorID: &post.AuthorID})
	if err != nil {
		return nil, fmt.Errorf("count author posts: %w", err)
	}
	comments, err := s.store.CommentsForPost(ctx, post.ID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	author := post.Author
	return &PostDetail{
		Post:       post,
		Author:     &author,
		PostsCount: int(count),
		Comments:   comments,
	}, nil
}
