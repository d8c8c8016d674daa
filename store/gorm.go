package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"blogfeed/config"
	"blogfeed/models"
)

// Open connects to the configured database and creates missing tables.
func Open(cfg config.DB) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}

	level := logger.Warn
	if cfg.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		// every new connection to :memory: is a fresh database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func notFound(err error, what string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, key, ErrNotFound)
	}
	return err
}

func conflict(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return err
}

// Users

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return conflict(s.db.WithContext(ctx).Create(u).Error, "user "+u.Username)
}

func (s *GormStore) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (s *GormStore) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err, "user", username)
	}
	return &u, nil
}

func (s *GormStore) DeleteUser(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ownPosts := tx.Model(&models.Post{}).Select("id").Where("author_id = ?", id)
		if err := tx.Where("author_id = ? OR post_id IN (?)", id, ownPosts).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", id).Delete(&models.Post{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR author_id = ?", id, id).Delete(&models.Follow{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("user %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// Groups

func (s *GormStore) CreateGroup(ctx context.Context, g *models.Group) error {
	return conflict(s.db.WithContext(ctx).Create(g).Error, "group "+g.Slug)
}

func (s *GormStore) GroupByID(ctx context.Context, id uint) (*models.Group, error) {
	var g models.Group
	if err := s.db.WithContext(ctx).First(&g, id).Error; err != nil {
		return nil, notFound(err, "group", id)
	}
	return &g, nil
}

func (s *GormStore) GroupBySlug(ctx context.Context, slug string) (*models.Group, error) {
	var g models.Group
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&g).Error; err != nil {
		return nil, notFound(err, "group", slug)
	}
	return &g, nil
}

func (s *GormStore) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.WithContext(ctx).Order("title").Order("id").Find(&groups).Error
	return groups, err
}

func (s *GormStore) DeleteGroup(ctx context.Context, slug string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g models.Group
		if err := tx.Where("slug = ?", slug).First(&g).Error; err != nil {
			return notFound(err, "group", slug)
		}
		if err := tx.Model(&models.Post{}).Where("group_id = ?", g.ID).Update("group_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&g).Error
	})
}

// Posts

func (s *GormStore) scoped(ctx context.Context, scope Scope) *gorm.DB {
	db := s.db.WithContext(ctx)
	q := db.Model(&models.Post{})
	if scope.GroupID != nil {
		q = q.Where("group_id = ?", *scope.GroupID)
	}
	if scope.AuthorID != nil {
		q = q.Where("author_id = ?", *scope.AuthorID)
	}
	if scope.FollowerID != nil {
		followed := db.Model(&models.Follow{}).Select("author_id").Where("user_id = ?", *scope.FollowerID)
		q = q.Where("author_id IN (?)", followed)
	}
	return q
}

func (s *GormStore) CountPosts(ctx context.Context, scope Scope) (int64, error) {
	var n int64
	err := s.scoped(ctx, scope).Count(&n).Error
	return n, err
}

func (s *GormStore) ListPosts(ctx context.Context, scope Scope, limit, offset int) ([]models.Post, error) {
	var posts []models.Post
	err := s.scoped(ctx, scope).
		Preload("Author").
		Preload("Group").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	return posts, err
}

func (s *GormStore) PostByID(ctx context.Context, id uint) (*models.Post, error) {
	var p models.Post
	if err := s.db.WithContext(ctx).Preload("Author").Preload("Group").First(&p, id).Error; err != nil {
		return nil, notFound(err, "post", id)
	}
	return &p, nil
}

func (s *GormStore) CreatePost(ctx context.Context, p *models.Post) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error
}

func (s *GormStore) UpdatePost(ctx context.Context, p *models.Post) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Post
		if err := tx.Select("id").First(&existing, p.ID).Error; err != nil {
			return notFound(err, "post", p.ID)
		}
		return tx.Model(&existing).Updates(map[string]any{
			"text":     p.Text,
			"group_id": p.GroupID,
			"img_url":  p.ImgURL,
		}).Error
	})
}

func (s *GormStore) DeletePost(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Post{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("post %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// Comments

func (s *GormStore) CreateComment(ctx context.Context, c *models.Comment) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(c).Error
}

func (s *GormStore) CommentsForPost(ctx context.Context, postID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("id").
		Find(&comments).Error
	return comments, err
}

// Follows

func (s *GormStore) FollowExists(ctx context.Context, userID, authorID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Count(&n).Error
	return n > 0, err
}

func (s *GormStore) CreateFollow(ctx context.Context, userID, authorID uint) error {
	f := models.Follow{UserID: userID, AuthorID: authorID}
	return s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&f).Error
}

func (s *GormStore) DeleteFollow(ctx context.Context, userID, authorID uint) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Delete(&models.Follow{}).Error
}
