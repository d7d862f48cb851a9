package models

type Group struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"column:title;size:200;not null" json:"title"`
	Slug        string `gorm:"column:slug;size:50;not null;uniqueIndex" json:"slug"`
	Description string `gorm:"column:description;type:text;not null" json:"description"`
}

func (g Group) String() string {
	return g.Title
}
