package utils

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/zzstop/hw05-final/cmd/models"
	"gorm.io/gorm"
)

type contextKey string

const UserKey contextKey = "user"

const LoginURL = "/auth/login/"

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// UserFromContext returns the authenticated user of the request, if any.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserKey).(*models.User)
	return user, ok && user != nil
}

// SessionMiddleware resolves the session cookie into the request's user.
// Requests with a missing, expired or forged token continue anonymously.
func SessionMiddleware(db *gorm.DB, sessions *Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := sessions.Parse(cookie.Value)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			var user models.User
			if err := db.WithContext(r.Context()).First(&user, userID).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					log.Printf("Error loading session user %d: %v", userID, err)
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), &user)))
		})
	}
}

// LoginRequired sends anonymous visitors to the login page, remembering
// where they were going.
func LoginRequired(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			http.Redirect(w, r, LoginRedirectURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next(w, r)
	}
}

func LoginRedirectURL(next string) string {
	return LoginURL + "?next=" + url.QueryEscape(next)
}

// SafeNext accepts only same-site paths as a post-login destination.
func SafeNext(next string) (string, bool) {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "", false
	}
	return next, true
}
