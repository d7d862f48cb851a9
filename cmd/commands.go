package main

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/zzstop/hw05-final/cmd/config"
	"github.com/zzstop/hw05-final/cmd/models"
	"github.com/zzstop/hw05-final/cmd/utils"
	"github.com/zzstop/hw05-final/db"
)

var clearDBCmd = &cobra.Command{
	Use:   "clear-db",
	Short: "Drop tables (all of them unless --tables is given)",
	RunE:  runDatabaseClear,
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage groups",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a group",
	Args:  cobra.NoArgs,
	RunE:  runGroupCreate,
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete SLUG",
	Short: "Delete a group; its posts stay, without a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupDelete,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete USERNAME",
	Short: "Delete a user with their posts, comments and follows",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDelete,
}

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Manage posts",
}

var postDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a post with its comments and image",
	Args:  cobra.ExactArgs(1),
	RunE:  runPostDelete,
}

func init() {
	clearDBCmd.Flags().Bool("yes", false, "skip the confirmation prompt")
	clearDBCmd.Flags().StringSlice("tables", nil, "tables to drop, e.g. --tables=comment,post")

	groupCreateCmd.Flags().String("title", "", "group title")
	groupCreateCmd.Flags().String("slug", "", "URL slug (derived from the title when empty)")
	groupCreateCmd.Flags().String("description", "", "group description")
	_ = groupCreateCmd.MarkFlagRequired("title")

	groupCmd.AddCommand(groupCreateCmd, groupDeleteCmd)
	userCmd.AddCommand(userDeleteCmd)
	postCmd.AddCommand(postDeleteCmd)
}

func runDatabaseClear(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	names, _ := cmd.Flags().GetStringSlice("tables")

	var tables []interface{}
	for _, name := range names {
		model, ok := db.ModelByName(name)
		if !ok {
			return fmt.Errorf("unknown table: %s", name)
		}
		tables = append(tables, model)
	}

	if !yes {
		fmt.Fprint(cmd.OutOrStdout(), "Are you sure you want to clear the database? (yes/no): ")
		confirmation, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if strings.TrimSpace(confirmation) != "yes" {
			log.Println("Database clearing cancelled.")
			return nil
		}
	}

	return withDB(func(_ *config.Config, DB *gorm.DB) error {
		log.Println("Dropping tables...")
		if err := db.DropTables(DB, tables); err != nil {
			return fmt.Errorf("error clearing database: %w", err)
		}
		log.Println("Database cleared successfully")
		return nil
	})
}

// newGroup validates the create flags, deriving the slug from the title when empty.
func newGroup(title, groupSlug, description string) (models.Group, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Group{}, errors.New("title must not be empty")
	}
	if groupSlug == "" {
		groupSlug = slug.Make(title)
	}
	if !slug.IsSlug(groupSlug) {
		return models.Group{}, fmt.Errorf("invalid slug %q", groupSlug)
	}
	if len(groupSlug) > 50 {
		return models.Group{}, fmt.Errorf("slug %q is longer than 50 characters", groupSlug)
	}

	return models.Group{
		Title:       title,
		Slug:        groupSlug,
		Description: description,
	}, nil
}

func runGroupCreate(cmd *cobra.Command, args []string) error {
	title, _ := cmd.Flags().GetString("title")
	groupSlug, _ := cmd.Flags().GetString("slug")
	description, _ := cmd.Flags().GetString("description")

	group, err := newGroup(title, groupSlug, description)
	if err != nil {
		return err
	}

	return withDB(func(_ *config.Config, DB *gorm.DB) error {
		if err := DB.Create(&group).Error; err != nil {
			return fmt.Errorf("creating group %s: %w", group.Slug, err)
		}
		log.Printf("Group %q created at /group/%s/", group.Title, group.Slug)
		return nil
	})
}

func runGroupDelete(cmd *cobra.Command, args []string) error {
	return withDB(func(_ *config.Config, DB *gorm.DB) error {
		var group models.Group
		if err := DB.Where("slug = ?", args[0]).First(&group).Error; err != nil {
			return fmt.Errorf("group %s: %w", args[0], err)
		}
		if err := db.DeleteGroup(DB, group.ID); err != nil {
			return err
		}
		log.Printf("Group %s deleted", group.Slug)
		return nil
	})
}

func runUserDelete(cmd *cobra.Command, args []string) error {
	return withDB(func(cfg *config.Config, DB *gorm.DB) error {
		var user models.User
		if err := DB.Where("username = ?", args[0]).First(&user).Error; err != nil {
			return fmt.Errorf("user %s: %w", args[0], err)
		}

		images, err := db.DeleteUser(DB, user.ID)
		if err != nil {
			return err
		}

		store := utils.NewImageStore(cfg.MediaRoot)
		for _, image := range images {
			if err := store.Delete(image); err != nil {
				log.Printf("Error deleting image %s: %v", image, err)
			}
		}
		log.Printf("User %s deleted along with %d image(s)", user.Username, len(images))
		return nil
	})
}

func parsePostID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid post id %q", raw)
	}
	return uint(id), nil
}

func runPostDelete(cmd *cobra.Command, args []string) error {
	postID, err := parsePostID(args[0])
	if err != nil {
		return err
	}

	return withDB(func(cfg *config.Config, DB *gorm.DB) error {
		return deletePost(DB, utils.NewImageStore(cfg.MediaRoot), postID)
	})
}

// deletePost removes the post and its comments, then its image file.
func deletePost(DB *gorm.DB, store *utils.ImageStore, postID uint) error {
	var post models.Post
	if err := DB.First(&post, postID).Error; err != nil {
		return fmt.Errorf("post %d: %w", postID, err)
	}
	if err := db.DeletePost(DB, post.ID); err != nil {
		return err
	}
	if err := store.Delete(post.Image); err != nil {
		log.Printf("Error deleting image %s: %v", post.Image, err)
	}
	log.Printf("Post %d deleted", post.ID)
	return nil
}
