// Package mail e-mails authors about activity around their posts.
package mail

import (
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/zzstop/hw05-final/cmd/config"
	"github.com/zzstop/hw05-final/cmd/models"
)

type Notifier interface {
	// NewComment tells the post's author about a comment. Post.Author and
	// Comment.Author must be loaded.
	NewComment(post models.Post, comment models.Comment) error
	NewFollower(author, follower models.User) error
}

// New picks the SMTP notifier when SMTP is configured.
func New(cfg *config.Config) Notifier {
	if !cfg.MailEnabled() {
		return NopNotifier{}
	}
	return NewSMTPNotifier(gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass), cfg.SMTPFrom, cfg.SiteURL)
}

type NopNotifier struct{}

func (NopNotifier) NewComment(models.Post, models.Comment) error { return nil }
func (NopNotifier) NewFollower(models.User, models.User) error   { return nil }

// Sender delivers messages; *gomail.Dialer is one.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPNotifier struct {
	sender  Sender
	from    string
	siteURL string
}

func NewSMTPNotifier(sender Sender, from, siteURL string) *SMTPNotifier {
	return &SMTPNotifier{sender: sender, from: from, siteURL: strings.TrimRight(siteURL, "/")}
}

func (n *SMTPNotifier) NewComment(post models.Post, comment models.Comment) error {
	if post.Author == nil || comment.Author == nil {
		return fmt.Errorf("comment %d: authors not loaded", comment.ID)
	}
	if post.Author.Email == "" || post.AuthorID == comment.AuthorID {
		return nil
	}

	m := n.message(post.Author.Email, fmt.Sprintf("New comment from %s", comment.Author.Username))
	m.SetBody("text/plain", fmt.Sprintf(
		"%s commented on your post \"%s\":\n\n%s\n\n%s%s",
		comment.Author.Username, post, comment.Text, n.siteURL, post.URL(),
	))
	return n.send(m)
}

func (n *SMTPNotifier) NewFollower(author, follower models.User) error {
	if author.Email == "" {
		return nil
	}

	m := n.message(author.Email, fmt.Sprintf("%s is now following you", follower.Username))
	m.SetBody("text/plain", fmt.Sprintf(
		"%s subscribed to your posts.\n\n%s/%s/",
		follower.FullName(), n.siteURL, follower.Username,
	))
	return n.send(m)
}

func (n *SMTPNotifier) message(to, subject string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	return m
}

func (n *SMTPNotifier) send(m *gomail.Message) error {
	if err := n.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}
