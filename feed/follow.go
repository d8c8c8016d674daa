package feed

import (
	"context"
	"fmt"
	"log/slog"

	"blogfeed/models"
)

// IsFollowing reports whether user follows author. It is false for an
// anonymous user and for a user looking at their own profile.
func (s *Service) IsFollowing(ctx context.Context, user, author *models.User) (bool, error) {
	if user == nil || author == nil || user.ID == author.ID {
		return false, nil
	}
	ok, err := s.store.FollowExists(ctx, user.ID, author.ID)
	if err != nil {
		return false, fmt.Errorf("follow lookup: %w", err)
	}
	return ok, nil
}

// Follow makes user follow the author called username. Following yourself
// or an author you already follow does nothing.
func (s *Service) Follow(ctx context.Context, user *models.User, username string) error {
	if user == nil {
		return ErrUnauthenticated
	}
	author, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if author.ID == user.ID {
		slog.Debug("Ignoring self follow", "user_id", user.ID)
		return nil
	}
	exists, err := s.store.FollowExists(ctx, user.ID, author.ID)
	if err != nil {
		return fmt.Errorf("follow lookup: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.store.CreateFollow(ctx, user.ID, author.ID); err != nil {
		return fmt.Errorf("create follow: %w", err)
	}
	return nil
}

// Unfollow removes the edge from user to username, if there is one.
func (s *Service) Unfollow(ctx context.Context, user *models.User, username string) error {
	if user == nil {
		return ErrUnauthenticated
	}
	author, err := s.store.UserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if err := s.store.DeleteFollow(ctx, user.ID, author.ID); err != nil {
		return fmt.Errorf("delete follow: %w", err)
	}
	return nil
}
