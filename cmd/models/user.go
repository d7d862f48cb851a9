package models

import (
	"regexp"
	"time"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"column:username;size:150;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"column:email;size:254" json:"email,omitempty"`
	FirstName    string    `gorm:"column:first_name;size:150" json:"first_name,omitempty"`
	LastName     string    `gorm:"column:last_name;size:150" json:"last_name,omitempty"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	DateJoined   time.Time `gorm:"column:date_joined;autoCreateTime;not null" json:"date_joined"`
}

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// Usernames that would shadow a top-level route.
var reservedUsernames = map[string]bool{
	"about":  true,
	"auth":   true,
	"follow": true,
	"group":  true,
	"media":  true,
	"new":    true,
	"static": true,
	"ws":     true,
}

func ValidUsername(username string) bool {
	return len(username) <= 150 && usernamePattern.MatchString(username) && !reservedUsernames[username]
}

func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}
