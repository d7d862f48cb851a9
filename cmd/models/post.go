package models

import (
	"fmt"
	"time"
)

type Post struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Text     string    `gorm:"column:text;type:text;not null" json:"text"`
	PubDate  time.Time `gorm:"column:pub_date;autoCreateTime;not null;index" json:"pub_date"`
	AuthorID uint      `gorm:"column:author_id;not null;index" json:"author_id"`
	GroupID  *uint     `gorm:"column:group_id;index" json:"group_id,omitempty"`
	Image    string    `gorm:"column:image;size:255" json:"image,omitempty"`
	Author   *User     `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
	Group    *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL" json:"group,omitempty"`
}

// URL is the canonical detail path. Author must be loaded.
func (p Post) URL() string {
	if p.Author == nil {
		return ""
	}
	return fmt.Sprintf("/%s/%d/", p.Author.Username, p.ID)
}

func (p Post) String() string {
	return Excerpt(p.Text, 15)
}

type Comment struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	PostID   uint      `gorm:"column:post_id;not null;index" json:"post_id"`
	AuthorID uint      `gorm:"column:author_id;not null;index" json:"author_id"`
	Text     string    `gorm:"column:text;type:text;not null" json:"text"`
	Created  time.Time `gorm:"column:created;autoCreateTime;not null" json:"created"`
	Post     *Post     `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	Author   *User     `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
}

// Excerpt cuts s to at most n runes.
func Excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
