package posts

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zzstop/hw05-final/cmd/models"
	"github.com/zzstop/hw05-final/cmd/utils"
	"github.com/zzstop/hw05-final/service/cache"
	"github.com/zzstop/hw05-final/service/mail"
	"github.com/zzstop/hw05-final/service/render"
)

// Broadcaster is told about every published post.
type Broadcaster interface {
	PostCreated(post models.Post)
}

type PostHandler struct {
	db       *gorm.DB
	render   *render.Renderer
	index    *cache.IndexCache
	images   *utils.ImageStore
	live     Broadcaster
	notifier mail.Notifier
}

func NewPostHandler(db *gorm.DB, rd *render.Renderer, index *cache.IndexCache, images *utils.ImageStore, live Broadcaster, notifier mail.Notifier) *PostHandler {
	return &PostHandler{
		db:       db,
		render:   rd,
		index:    index,
		images:   images,
		live:     live,
		notifier: notifier,
	}
}

// RegisterRoutes mounts the post pages. The catch-all /{username}/ routes go
// last, so fixed prefixes registered earlier on the router win.
func (h *PostHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/", h.Index).Methods("GET")
	router.HandleFunc("/group/{slug}/", h.GroupPosts).Methods("GET")
	router.HandleFunc("/new/", utils.LoginRequired(h.NewPost)).Methods("GET", "POST")
}

func (h *PostHandler) RegisterAuthorRoutes(router *mux.Router) {
	router.HandleFunc("/{username}/", h.Profile).Methods("GET")
	router.HandleFunc("/{username}/{post_id:[0-9]+}/", h.PostView).Methods("GET")
	router.HandleFunc("/{username}/{post_id:[0-9]+}/edit/", utils.LoginRequired(h.PostEdit)).Methods("GET", "POST")
	router.HandleFunc("/{username}/{post_id:[0-9]+}/comment/", utils.LoginRequired(h.AddComment)).Methods("POST")
}

// Index lists every post, served from the index cache.
func (h *PostHandler) Index(w http.ResponseWriter, r *http.Request) {
	posts, err := h.index.Posts(func() ([]models.Post, error) {
		return AllPosts(h.db.WithContext(r.Context()))
	})
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	h.render.HTML(w, r, http.StatusOK, "index.html", map[string]interface{}{
		"Page": utils.PageOf(posts, utils.PostsPerPage, r.URL.Query().Get("page")),
	})
}

func (h *PostHandler) GroupPosts(w http.ResponseWriter, r *http.Request) {
	db := h.db.WithContext(r.Context())

	var group models.Group
	if err := db.Where("slug = ?", mux.Vars(r)["slug"]).First(&group).Error; err != nil {
		h.lookupFailed(w, r, err)
		return
	}

	page, err := ListPosts(db, r.URL.Query().Get("page"), InGroup(group.ID))
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	h.render.HTML(w, r, http.StatusOK, "group.html", map[string]interface{}{
		"Group": group,
		"Page":  page,
	})
}

func (h *PostHandler) Profile(w http.ResponseWriter, r *http.Request) {
	db := h.db.WithContext(r.Context())

	author, err := FindUser(db, mux.Vars(r)["username"])
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}

	page, err := ListPosts(db, r.URL.Query().Get("page"), ByAuthor(author.ID))
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	followers, following, err := FollowCounts(db, author.ID)
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	data := map[string]interface{}{
		"Author":     author,
		"Page":       page,
		"PostsCount": page.Count,
		"Followers":  followers,
		"Following":  following,
	}

	if viewer, ok := utils.UserFromContext(r.Context()); ok && viewer.ID != author.ID {
		isFollowing, err := IsFollowing(db, viewer.ID, author.ID)
		if err != nil {
			h.render.ServerError(w, r, err)
			return
		}
		data["CanFollow"] = true
		data["IsFollowing"] = isFollowing
	}

	h.render.HTML(w, r, http.StatusOK, "profile.html", data)
}

func (h *PostHandler) PostView(w http.ResponseWriter, r *http.Request) {
	db := h.db.WithContext(r.Context())

	post, err := h.findPost(db, r)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}

	var comments []models.Comment
	if err := db.Where("post_id = ?", post.ID).
		Preload("Author").
		Order("created DESC").Order("id DESC").
		Find(&comments).Error; err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	postsCount, err := CountPosts(db, post.AuthorID)
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	viewer, _ := utils.UserFromContext(r.Context())
	h.render.HTML(w, r, http.StatusOK, "post.html", map[string]interface{}{
		"Post":       post,
		"Author":     post.Author,
		"Comments":   comments,
		"PostsCount": postsCount,
		"CanEdit":    viewer != nil && viewer.ID == post.AuthorID,
	})
}

// NewPost shows and handles the post form.
func (h *PostHandler) NewPost(w http.ResponseWriter, r *http.Request) {
	user, _ := utils.UserFromContext(r.Context())
	db := h.db.WithContext(r.Context())
	form := NewPostForm(nil)

	if r.Method == http.MethodPost {
		if err := form.Bind(r, db, h.images); err != nil {
			h.bindFailed(w, r, err)
			return
		}
		defer form.Close()

		if form.Valid() {
			post := models.Post{
				Text:     form.Text,
				AuthorID: user.ID,
				GroupID:  form.Group(),
			}
			if err := h.savePost(db, &post, form); err != nil {
				h.render.ServerError(w, r, err)
				return
			}

			post.Author = user
			h.live.PostCreated(post)
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
	}

	h.renderForm(w, r, db, form, "/new/", false)
}

// PostEdit lets the author change text, group and image. Anyone else is
// sent back to the post.
func (h *PostHandler) PostEdit(w http.ResponseWriter, r *http.Request) {
	user, _ := utils.UserFromContext(r.Context())
	db := h.db.WithContext(r.Context())

	post, err := h.findPost(db, r)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	if post.AuthorID != user.ID {
		http.Redirect(w, r, post.URL(), http.StatusFound)
		return
	}

	form := NewPostForm(&post)
	if r.Method == http.MethodPost {
		if err := form.Bind(r, db, h.images); err != nil {
			h.bindFailed(w, r, err)
			return
		}
		defer form.Close()

		if form.Valid() {
			oldImage := post.Image
			post.Text = form.Text
			post.GroupID = form.Group()
			if form.ClearImage && !form.HasUpload() {
				post.Image = ""
			}
			if err := h.savePost(db, &post, form); err != nil {
				h.render.ServerError(w, r, err)
				return
			}
			if oldImage != "" && oldImage != post.Image {
				if err := h.images.Delete(oldImage); err != nil {
					log.Printf("Error deleting image %s: %v", oldImage, err)
				}
			}
			http.Redirect(w, r, post.URL(), http.StatusFound)
			return
		}
	}

	h.renderForm(w, r, db, form, post.URL()+"edit/", true)
}

// AddComment stores a comment. An empty comment is dropped silently.
func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	user, _ := utils.UserFromContext(r.Context())
	db := h.db.WithContext(r.Context())

	post, err := h.findPost(db, r)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}

	var form CommentForm
	if err := form.Bind(r); err != nil {
		h.bindFailed(w, r, err)
		return
	}

	if form.Valid() {
		comment := models.Comment{
			PostID:   post.ID,
			AuthorID: user.ID,
			Text:     form.Text,
		}
		if err := db.Create(&comment).Error; err != nil {
			h.render.ServerError(w, r, err)
			return
		}
		comment.Author = user
		// Send email in background
		go func() {
			if err := h.notifier.NewComment(post, comment); err != nil {
				log.Printf("Error notifying %s about comment %d: %v", post.Author.Username, comment.ID, err)
			}
		}()
	}

	http.Redirect(w, r, post.URL(), http.StatusFound)
}

// savePost stores the upload (if any) and then the post. A failed insert
// removes the freshly written file.
func (h *PostHandler) savePost(db *gorm.DB, post *models.Post, form *PostForm) error {
	var saved string
	if form.HasUpload() {
		path, err := h.images.Save(form.file, form.header)
		if err != nil {
			return err
		}
		saved = path
		post.Image = path
	}

	var err error
	if post.ID == 0 {
		err = db.Create(post).Error
	} else {
		// pub_date is never rewritten
		err = db.Model(post).Select("text", "group_id", "image").Omit(clause.Associations).Updates(post).Error
	}
	if err != nil && saved != "" {
		if delErr := h.images.Delete(saved); delErr != nil {
			log.Printf("Error deleting image %s: %v", saved, delErr)
		}
	}
	return err
}

func (h *PostHandler) renderForm(w http.ResponseWriter, r *http.Request, db *gorm.DB, form *PostForm, action string, editing bool) {
	var groups []models.Group
	if err := db.Order("title").Find(&groups).Error; err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	h.render.HTML(w, r, http.StatusOK, "new_post.html", map[string]interface{}{
		"Form":    form,
		"Groups":  groups,
		"Action":  action,
		"Editing": editing,
	})
}

// findPost loads the post named by the URL, which must belong to the URL's username.
func (h *PostHandler) findPost(db *gorm.DB, r *http.Request) (models.Post, error) {
	vars := mux.Vars(r)
	postID, err := strconv.ParseUint(vars["post_id"], 10, 64)
	if err != nil {
		return models.Post{}, gorm.ErrRecordNotFound
	}

	author, err := FindUser(db, vars["username"])
	if err != nil {
		return models.Post{}, err
	}

	var post models.Post
	err = db.Preload("Group").
		Where("id = ? AND author_id = ?", postID, author.ID).
		First(&post).Error
	post.Author = &author
	return post, err
}

func (h *PostHandler) lookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.render.NotFound(w, r)
		return
	}
	h.render.ServerError(w, r, err)
}

func (h *PostHandler) bindFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrMalformedForm) {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}
	h.render.ServerError(w, r, err)
}

func FindUser(db *gorm.DB, username string) (models.User, error) {
	var user models.User
	err := db.Where("username = ?", username).First(&user).Error
	return user, err
}
