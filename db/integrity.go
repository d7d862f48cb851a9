package db

import (
	"fmt"

	"github.com/zzstop/hw05-final/cmd/models"
	"gorm.io/gorm"
)

// Referential rules, applied explicitly so they hold even when the
// store ignores declared foreign key actions:
//
//	posts.group_id     -> groups.id  SET NULL
//	posts.author_id    -> users.id   CASCADE
//	comments.post_id   -> posts.id   CASCADE
//	comments.author_id -> users.id   CASCADE
//	follows.*          -> users.id   CASCADE

// DeleteGroup removes a group and detaches its posts.
func DeleteGroup(db *gorm.DB, groupID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.First(&group, groupID).Error; err != nil {
			return fmt.Errorf("loading group %d: %w", groupID, err)
		}
		if err := tx.Model(&models.Post{}).Where("group_id = ?", groupID).
			Update("group_id", nil).Error; err != nil {
			return fmt.Errorf("detaching posts: %w", err)
		}
		if err := tx.Delete(&group).Error; err != nil {
			return fmt.Errorf("deleting group: %w", err)
		}
		return nil
	})
}

// DeletePost removes a post with its comments.
func DeletePost(db *gorm.DB, postID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, postID).Error; err != nil {
			return fmt.Errorf("loading post %d: %w", postID, err)
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("deleting comments: %w", err)
		}
		if err := tx.Delete(&post).Error; err != nil {
			return fmt.Errorf("deleting post: %w", err)
		}
		return nil
	})
}

// DeleteUser removes a user with everything they authored and every follow
// they take part in. It returns the image paths of the deleted posts so the
// caller can clean up media.
func DeleteUser(db *gorm.DB, userID uint) ([]string, error) {
	var images []string
	err := db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return fmt.Errorf("loading user %d: %w", userID, err)
		}

		authored := tx.Model(&models.Post{}).Select("id").Where("author_id = ?", userID)
		if err := tx.Where("post_id IN (?) OR author_id = ?", authored, userID).
			Delete(&models.Comment{}).Error; err != nil {
			return fmt.Errorf("deleting comments: %w", err)
		}

		if err := tx.Model(&models.Post{}).Where("author_id = ? AND image <> ''", userID).
			Pluck("image", &images).Error; err != nil {
			return fmt.Errorf("collecting images: %w", err)
		}
		if err := tx.Where("author_id = ?", userID).Delete(&models.Post{}).Error; err != nil {
			return fmt.Errorf("deleting posts: %w", err)
		}

		if err := tx.Where("user_id = ? OR author_id = ?", userID, userID).
			Delete(&models.Follow{}).Error; err != nil {
			return fmt.Errorf("deleting follows: %w", err)
		}

		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("deleting user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}
