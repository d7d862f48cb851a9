package posts

import (
	"fmt"

	"github.com/zzstop/hw05-final/cmd/models"
	"github.com/zzstop/hw05-final/cmd/utils"
	"gorm.io/gorm"
)

// Scopes filtering the post listing. They compose with ListPosts.

func InGroup(groupID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.group_id = ?", groupID)
	}
}

func ByAuthor(authorID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("posts.author_id = ?", authorID)
	}
}

// FollowedBy keeps posts whose author userID follows.
func FollowedBy(userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		followed := db.Session(&gorm.Session{NewDB: true}).
			Model(&models.Follow{}).
			Select("author_id").
			Where("user_id = ?", userID)
		return db.Where("posts.author_id IN (?)", followed)
	}
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("posts.pub_date DESC").Order("posts.id DESC")
}

func withRelations(db *gorm.DB) *gorm.DB {
	return db.Preload("Author").Preload("Group")
}

// AllPosts loads the whole filtered listing, newest first.
func AllPosts(db *gorm.DB, scopes ...func(*gorm.DB) *gorm.DB) ([]models.Post, error) {
	var posts []models.Post
	err := db.Model(&models.Post{}).
		Scopes(scopes...).
		Scopes(newestFirst, withRelations).
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return posts, nil
}

// ListPosts loads one page of the filtered listing. rawPage is the
// unvalidated ?page= value.
func ListPosts(db *gorm.DB, rawPage string, scopes ...func(*gorm.DB) *gorm.DB) (utils.Page[models.Post], error) {
	var total int64
	if err := db.Model(&models.Post{}).Scopes(scopes...).Count(&total).Error; err != nil {
		return utils.Page[models.Post]{}, fmt.Errorf("counting posts: %w", err)
	}

	p := utils.NewPaginator(total, utils.PostsPerPage)
	number := p.Number(rawPage)
	offset, limit := p.Bounds(number)

	posts := []models.Post{}
	if limit > 0 {
		err := db.Model(&models.Post{}).
			Scopes(scopes...).
			Scopes(newestFirst, withRelations).
			Offset(offset).
			Limit(limit).
			Find(&posts).Error
		if err != nil {
			return utils.Page[models.Post]{}, fmt.Errorf("listing posts: %w", err)
		}
	}
	return utils.NewPage(posts, number, p), nil
}

// Feed returns one page of posts by authors userID follows, newest first.
func Feed(db *gorm.DB, userID uint, rawPage string) (utils.Page[models.Post], error) {
	return ListPosts(db, rawPage, FollowedBy(userID))
}

func CountPosts(db *gorm.DB, authorID uint) (int64, error) {
	var n int64
	err := db.Model(&models.Post{}).Where("author_id = ?", authorID).Count(&n).Error
	return n, err
}

func IsFollowing(db *gorm.DB, userID, authorID uint) (bool, error) {
	var n int64
	err := db.Model(&models.Follow{}).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Count(&n).Error
	return n > 0, err
}

// FollowCounts returns how many users follow userID and how many userID follows.
func FollowCounts(db *gorm.DB, userID uint) (followers, following int64, err error) {
	if err = db.Model(&models.Follow{}).Where("author_id = ?", userID).Count(&followers).Error; err != nil {
		return 0, 0, err
	}
	if err = db.Model(&models.Follow{}).Where("user_id = ?", userID).Count(&following).Error; err != nil {
		return 0, 0, err
	}
	return followers, following, nil
}
