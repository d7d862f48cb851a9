package user

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/zzstop/hw05-final/cmd/models"
	"github.com/zzstop/hw05-final/cmd/utils"
	"github.com/zzstop/hw05-final/service/render"
)

const minPasswordLength = 8

type Handler struct {
	db       *gorm.DB
	render   *render.Renderer
	sessions *utils.Sessions
}

func NewHandler(db *gorm.DB, rd *render.Renderer, sessions *utils.Sessions) *Handler {
	return &Handler{db: db, render: rd, sessions: sessions}
}

// RegisterRoutes sets up the account pages
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/signup/", h.handleSignup).Methods("GET", "POST")
	router.HandleFunc("/auth/login/", h.handleLogin).Methods("GET", "POST")
	router.HandleFunc("/auth/logout/", h.handleLogout).Methods("GET", "POST")
}

type signupForm struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var form signupForm
	errs := map[string][]string{}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return
		}

		form = signupForm{
			FirstName: strings.TrimSpace(r.PostFormValue("first_name")),
			LastName:  strings.TrimSpace(r.PostFormValue("last_name")),
			Username:  strings.TrimSpace(r.PostFormValue("username")),
			Email:     strings.TrimSpace(r.PostFormValue("email")),
		}
		password1 := r.PostFormValue("password1")
		password2 := r.PostFormValue("password2")

		switch {
		case form.Username == "":
			errs["username"] = append(errs["username"], "This field is required.")
		case !models.ValidUsername(form.Username):
			errs["username"] = append(errs["username"], "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
		default:
			var existing int64
			if err := h.db.Model(&models.User{}).Where("username = ?", form.Username).Count(&existing).Error; err != nil {
				h.render.ServerError(w, r, err)
				return
			}
			if existing > 0 {
				errs["username"] = append(errs["username"], "A user with that username already exists.")
			}
		}

		if form.Email != "" {
			if _, err := mail.ParseAddress(form.Email); err != nil {
				errs["email"] = append(errs["email"], "Enter a valid email address.")
			}
		}

		if len(password1) < minPasswordLength {
			errs["password1"] = append(errs["password1"], "This password is too short. It must contain at least 8 characters.")
		}
		if password1 != password2 {
			errs["password2"] = append(errs["password2"], "The two password fields didn't match.")
		}

		if len(errs) == 0 {
			hash, err := bcrypt.GenerateFromPassword([]byte(password1), bcrypt.DefaultCost)
			if err != nil {
				h.render.ServerError(w, r, err)
				return
			}

			user := models.User{
				Username:     form.Username,
				Email:        form.Email,
				FirstName:    form.FirstName,
				LastName:     form.LastName,
				PasswordHash: string(hash),
			}
			if err := h.db.Create(&user).Error; err != nil {
				h.render.ServerError(w, r, err)
				return
			}

			http.Redirect(w, r, utils.LoginURL, http.StatusFound)
			return
		}
	}

	h.render.HTML(w, r, http.StatusOK, "signup.html", map[string]interface{}{
		"Form":   form,
		"Errors": errs,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	next := r.FormValue("next")
	username := strings.TrimSpace(r.PostFormValue("username"))
	errs := map[string][]string{}

	if r.Method == http.MethodPost {
		user, err := h.authenticate(username, r.PostFormValue("password"))
		switch {
		case err == nil:
			cookie, err := h.sessions.Cookie(user.ID)
			if err != nil {
				h.render.ServerError(w, r, err)
				return
			}
			http.SetCookie(w, cookie)

			target, ok := utils.SafeNext(next)
			if !ok {
				target = "/"
			}
			http.Redirect(w, r, target, http.StatusFound)
			return
		case errors.Is(err, errInvalidCredentials):
			errs["all"] = append(errs["all"], "Please enter a correct username and password. Note that both fields may be case-sensitive.")
		default:
			h.render.ServerError(w, r, err)
			return
		}
	}

	h.render.HTML(w, r, http.StatusOK, "login.html", map[string]interface{}{
		"Next":     next,
		"Username": username,
		"Errors":   errs,
	})
}

var errInvalidCredentials = errors.New("invalid credentials")

func (h *Handler) authenticate(username, password string) (models.User, error) {
	var user models.User
	if err := h.db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, errInvalidCredentials
		}
		return user, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return user, errInvalidCredentials
	}
	return user, nil
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, utils.ExpiredSessionCookie())
	http.Redirect(w, r, "/", http.StatusFound)
}
