package models

// Follow subscribes User to the posts of Author.
type Follow struct {
	ID       uint  `gorm:"primaryKey" json:"id"`
	UserID   uint  `gorm:"column:user_id;not null;uniqueIndex:unique_follow,priority:1" json:"user_id"`
	AuthorID uint  `gorm:"column:author_id;not null;uniqueIndex:unique_follow,priority:2;index" json:"author_id"`
	User     *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Author   *User `gorm:"foreignKey:AuthorID;constraint:OnDelete:CASCADE" json:"author,omitempty"`
}
