// Package posts holds the write side of the blog: publishing, editing and
// deleting posts and commenting on them.
package posts

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"blogfeed/events"
	"blogfeed/models"
	"blogfeed/store"
)

var (
	ErrForbidden    = errors.New("only the author may change this post")
	ErrEmptyText    = errors.New("text is required")
	ErrUnknownGroup = errors.New("unknown group")
)

type Input struct {
	Text    string
	GroupID *uint
	ImgURL  string
}

type Service struct {
	store  store.Store
	events events.Publisher
	policy *bluemonday.Policy
}

func NewService(s store.Store, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{store: s, events: pub, policy: bluemonday.UGCPolicy()}
}

// sanitize strips markup that is not safe to show and returns the text
// unescaped, ready for the presentation layer to escape once.
func (s *Service) sanitize(text string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

func (s *Service) validate(ctx context.Context, in Input) (Input, error) {
	in.Text = s.sanitize(in.Text)
	if in.Text == "" {
		return in, ErrEmptyText
	}
	if in.GroupID != nil && *in.GroupID == 0 {
		in.GroupID = nil
	}
	if in.GroupID != nil {
		if _, err := s.store.GroupByID(ctx, *in.GroupID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return in, fmt.Errorf("group %d: %w", *in.GroupID, ErrUnknownGroup)
			}
			return in, err
		}
	}
	return in, nil
}

func (s *Service) Create(ctx context.Context, author *models.User, in Input) (*models.Post, error) {
	in, err := s.validate(ctx, in)
	if err != nil {
		return nil, err
	}
	p := &models.Post{
		Text:     in.Text,
		AuthorID: author.ID,
		GroupID:  in.GroupID,
		ImgURL:   in.ImgURL,
	}
	if err := s.store.CreatePost(ctx, p); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	p.Author = *author
	s.publish(ctx, events.PostCreated, p)
	return p, nil
}

// Editable returns the post if editor wrote it.
func (s *Service) Editable(ctx context.Context, editor *models.User, id uint) (*models.Post, error) {
	p, err := s.store.PostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if editor == nil || p.AuthorID != editor.ID {
		return p, ErrForbidden
	}
	return p, nil
}

// Edit replaces the text, group and image of a post. An empty ImgURL keeps
// the current image.
func (s *Service) Edit(ctx context.Context, editor *models.User, id uint, in Input) (*models.Post, error) {
	p, err := s.Editable(ctx, editor, id)
	if err != nil {
		return nil, err
	}
	in, err = s.validate(ctx, in)
	if err != nil {
		return nil, err
	}
	p.Text = in.Text
	p.GroupID = in.GroupID
	if in.ImgURL != "" {
		p.ImgURL = in.ImgURL
	}
	if err := s.store.UpdatePost(ctx, p); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, editor *models.User, id uint) error {
	p, err := s.Editable(ctx, editor, id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePost(ctx, id); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	s.publish(ctx, events.PostDeleted, p)
	return nil
}

func (s *Service) AddComment(ctx context.Context, author *models.User, postID uint, text string) (*models.Comment, error) {
	post, err := s.store.PostByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	text = s.sanitize(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	c := &models.Comment{PostID: &post.ID, AuthorID: author.ID, Text: text}
	if err := s.store.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	c.Author = *author
	return c, nil
}

// publish never fails the request; a lost event is logged.
func (s *Service) publish(ctx context.Context, typ string, p *models.Post) {
	ev := events.Event{
		Type:     typ,
		PostID:   p.ID,
		AuthorID: p.AuthorID,
		GroupID:  p.GroupID,
		At:       time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		slog.Warn("Failed to publish post event",
			"error", err,
			"type", typ,
			"post_id", p.ID,
		)
	}
}
