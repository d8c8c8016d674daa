package models

import (
	"time"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(150);uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Group struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"type:varchar(200);not null" json:"title"`
	Slug        string `gorm:"type:varchar(50);uniqueIndex;not null" json:"slug"`
	Description string `gorm:"type:text" json:"description"`
}

// Post is ordered newest first everywhere it is listed.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"index;autoCreateTime" json:"pub_date"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	Author    User      `gorm:"constraint:OnDelete:CASCADE" json:"author"`
	GroupID   *uint     `gorm:"index" json:"group_id"`
	Group     *Group    `gorm:"constraint:OnDelete:SET NULL" json:"group,omitempty"`
	ImgURL    string    `json:"image,omitempty"` // object storage URL
}

type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PostID    *uint     `gorm:"index" json:"post_id"`
	Post      *Post     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AuthorID  uint      `gorm:"index;not null" json:"author_id"`
	Author    User      `gorm:"constraint:OnDelete:CASCADE" json:"author"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created"`
}

// Follow is a directed edge: UserID receives AuthorID's posts in their follow feed.
type Follow struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	UserID   uint `gorm:"uniqueIndex:idx_follow_user_author;not null" json:"user_id"`
	User     User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AuthorID uint `gorm:"uniqueIndex:idx_follow_user_author;index;not null" json:"author_id"`
	Author   User `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// All lists every model in dependency order, for AutoMigrate.
func All() []any {
	return []any{&User{}, &Group{}, &Post{}, &Comment{}, &Follow{}}
}
