package posts

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/zzstop/hw05-final/cmd/models"
	"github.com/zzstop/hw05-final/cmd/utils"
	"gorm.io/gorm"
)

const maxUploadMemory = 32 << 20

// ErrMalformedForm marks a request body that could not be parsed at all.
// Any other Bind error comes from the store.
var ErrMalformedForm = errors.New("malformed form")

// FieldErrors maps a form field to its messages; "all" holds non-field errors.
type FieldErrors map[string][]string

func (e FieldErrors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e FieldErrors) Any() bool {
	return len(e) > 0
}

// PostForm is the create/edit form of a post.
type PostForm struct {
	Text       string
	GroupID    uint
	Image      string
	ClearImage bool
	Errors     FieldErrors

	file   multipart.File
	header *multipart.FileHeader
}

func NewPostForm(post *models.Post) *PostForm {
	form := &PostForm{Errors: FieldErrors{}}
	if post != nil {
		form.Text = post.Text
		form.Image = post.Image
		if post.GroupID != nil {
			form.GroupID = *post.GroupID
		}
	}
	return form
}

// parseForm handles both multipart and urlencoded bodies.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxUploadMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedForm, err)
	}
	return nil
}

// Bind reads the submitted fields and validates them against the store.
// The caller must Close the form afterwards.
func (f *PostForm) Bind(r *http.Request, db *gorm.DB, images *utils.ImageStore) error {
	if err := parseForm(r); err != nil {
		return err
	}

	f.Text = strings.TrimSpace(r.PostFormValue("text"))
	if f.Text == "" {
		f.Errors.Add("text", "This field is required.")
	}

	f.GroupID = 0
	if raw := strings.TrimSpace(r.PostFormValue("group")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			f.Errors.Add("group", "Select a valid choice.")
		} else {
			var group models.Group
			if err := db.First(&group, id).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("looking up group %d: %w", id, err)
				}
				f.Errors.Add("group", "Select a valid choice.")
			} else {
				f.GroupID = group.ID
			}
		}
	}

	f.ClearImage = r.PostFormValue("image-clear") != ""

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	case err != nil:
		return fmt.Errorf("%w: %v", ErrMalformedForm, err)
	case header.Size == 0 && header.Filename == "":
		file.Close()
	default:
		f.file, f.header = file, header
		if err := images.Validate(file, header); err != nil {
			if errors.Is(err, utils.ErrInvalidImage) {
				f.Errors.Add("image", err.Error())
			} else {
				f.Errors.Add("image", "Upload a valid image: "+err.Error())
			}
		}
	}
	return nil
}

func (f *PostForm) Valid() bool {
	return !f.Errors.Any()
}

func (f *PostForm) HasUpload() bool {
	return f.file != nil
}

func (f *PostForm) Close() {
	if f.file != nil {
		f.file.Close()
	}
}

// Group returns the chosen group as a nullable foreign key.
func (f *PostForm) Group() *uint {
	if f.GroupID == 0 {
		return nil
	}
	id := f.GroupID
	return &id
}

// CommentForm is the comment box under a post.
type CommentForm struct {
	Text   string
	Errors FieldErrors
}

func (f *CommentForm) Bind(r *http.Request) error {
	if err := parseForm(r); err != nil {
		return err
	}
	f.Errors = FieldErrors{}
	f.Text = strings.TrimSpace(r.PostFormValue("text"))
	if f.Text == "" {
		f.Errors.Add("text", "This field is required.")
	}
	return nil
}

func (f *CommentForm) Valid() bool {
	return !f.Errors.Any()
}
