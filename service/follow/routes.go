package follow

import (
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zzstop/hw05-final/cmd/models"
	"github.com/zzstop/hw05-final/cmd/utils"
	"github.com/zzstop/hw05-final/service/mail"
	"github.com/zzstop/hw05-final/service/posts"
	"github.com/zzstop/hw05-final/service/render"
)

type FollowHandler struct {
	db       *gorm.DB
	render   *render.Renderer
	notifier mail.Notifier
}

func NewFollowHandler(db *gorm.DB, rd *render.Renderer, notifier mail.Notifier) *FollowHandler {
	return &FollowHandler{db: db, render: rd, notifier: notifier}
}

func (h *FollowHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/follow/", utils.LoginRequired(h.FollowIndex)).Methods("GET")
}

func (h *FollowHandler) RegisterAuthorRoutes(router *mux.Router) {
	router.HandleFunc("/{username}/follow/", utils.LoginRequired(h.ProfileFollow)).Methods("GET", "POST")
	router.HandleFunc("/{username}/unfollow/", utils.LoginRequired(h.ProfileUnfollow)).Methods("GET", "POST")
}

// FollowIndex shows posts of every author the user follows.
func (h *FollowHandler) FollowIndex(w http.ResponseWriter, r *http.Request) {
	user, _ := utils.UserFromContext(r.Context())

	page, err := posts.Feed(h.db.WithContext(r.Context()), user.ID, r.URL.Query().Get("page"))
	if err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	h.render.HTML(w, r, http.StatusOK, "follow.html", map[string]interface{}{
		"Page": page,
	})
}

// ProfileFollow subscribes the user to an author. Following twice or
// following yourself changes nothing.
func (h *FollowHandler) ProfileFollow(w http.ResponseWriter, r *http.Request) {
	user, _ := utils.UserFromContext(r.Context())
	db := h.db.WithContext(r.Context())

	author, err := posts.FindUser(db, mux.Vars(r)["username"])
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}

	if author.ID != user.ID {
		created, err := Follow(db, user.ID, author.ID)
		if err != nil {
			h.render.ServerError(w, r, err)
			return
		}
		if created {
			follower := *user
			go func() {
				if err := h.notifier.NewFollower(author, follower); err != nil {
					log.Printf("Error notifying %s about follower %s: %v", author.Username, follower.Username, err)
				}
			}()
		}
	}

	http.Redirect(w, r, "/"+author.Username+"/", http.StatusFound)
}

func (h *FollowHandler) ProfileUnfollow(w http.ResponseWriter, r *http.Request) {
	user, _ := utils.UserFromContext(r.Context())
	db := h.db.WithContext(r.Context())

	author, err := posts.FindUser(db, mux.Vars(r)["username"])
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}

	if err := Unfollow(db, user.ID, author.ID); err != nil {
		h.render.ServerError(w, r, err)
		return
	}

	http.Redirect(w, r, "/"+author.Username+"/", http.StatusFound)
}

func (h *FollowHandler) lookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.render.NotFound(w, r)
		return
	}
	h.render.ServerError(w, r, err)
}

// Follow stores the (user, author) pair unless it already exists and reports
// whether a row was added. Racing duplicates collapse on the unique index.
func Follow(db *gorm.DB, userID, authorID uint) (bool, error) {
	if userID == authorID {
		return false, nil
	}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Follow{UserID: userID, AuthorID: authorID})
	return result.RowsAffected > 0, result.Error
}

func Unfollow(db *gorm.DB, userID, authorID uint) error {
	return db.Where("user_id = ? AND author_id = ?", userID, authorID).
		Delete(&models.Follow{}).Error
}
