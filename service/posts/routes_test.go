package posts_test

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/zzstop/hw05-final/cmd/models"
	"github.com/zzstop/hw05-final/cmd/utils"
	"github.com/zzstop/hw05-final/db/dbtest"
	"github.com/zzstop/hw05-final/service/cache"
	"github.com/zzstop/hw05-final/service/mail"
	"github.com/zzstop/hw05-final/service/posts"
	"github.com/zzstop/hw05-final/service/render"
)

var smallGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x02, 0x00,
	0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xFF, 0xFF, 0xFF, 0x21, 0xF9, 0x04, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00,
	0x02, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x0C,
	0x0A, 0x00, 0x3B,
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	posts []models.Post
}

func (b *recordingBroadcaster) PostCreated(post models.Post) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts = append(b.posts, post)
}

// recordingNotifier is called from background goroutines.
type recordingNotifier struct {
	mu       sync.Mutex
	comments []models.Comment
}

func (n *recordingNotifier) NewComment(post models.Post, comment models.Comment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.comments = append(n.comments, comment)
	return nil
}

func (n *recordingNotifier) NewFollower(author, follower models.User) error { return nil }

func (n *recordingNotifier) Comments() []models.Comment {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Comment(nil), n.comments...)
}

// stalledNotifier holds every comment mail until release is closed, like an
// SMTP server that stopped answering.
type stalledNotifier struct {
	release chan struct{}
	sent    chan models.Comment
}

func (n *stalledNotifier) NewComment(post models.Post, comment models.Comment) error {
	<-n.release
	n.sent <- comment
	return nil
}

func (n *stalledNotifier) NewFollower(author, follower models.User) error { return nil }

type testServer struct {
	db       *gorm.DB
	router   *mux.Router
	sessions *utils.Sessions
	images   *utils.ImageStore
	live     *recordingBroadcaster
	notifier *recordingNotifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	notifier := &recordingNotifier{}
	s := newTestServerWith(t, notifier)
	s.notifier = notifier
	return s
}

func newTestServerWith(t *testing.T, notifier mail.Notifier) *testServer {
	t.Helper()

	s := &testServer{
		db:       dbtest.New(t),
		sessions: utils.NewSessions("test-secret", time.Hour),
		images:   utils.NewImageStore(t.TempDir()),
		live:     &recordingBroadcaster{},
	}

	rd := render.MustNew()
	index := cache.NewIndexCache(cache.NewMemory(time.Minute), time.Minute)
	h := posts.NewPostHandler(s.db, rd, index, s.images, s.live, notifier)

	s.router = mux.NewRouter().StrictSlash(true)
	s.router.Use(utils.SessionMiddleware(s.db, s.sessions))
	s.router.NotFoundHandler = http.HandlerFunc(rd.NotFound)
	h.RegisterRoutes(s.router)
	h.RegisterAuthorRoutes(s.router)
	return s
}

// do sends r as user (anonymous when nil).
func (s *testServer) do(t *testing.T, r *http.Request, user *models.User) *httptest.ResponseRecorder {
	t.Helper()

	if user != nil {
		cookie, err := s.sessions.Cookie(user.ID)
		require.NoError(t, err)
		r.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func (s *testServer) get(t *testing.T, target string, user *models.User) *httptest.ResponseRecorder {
	return s.do(t, httptest.NewRequest(http.MethodGet, target, nil), user)
}

func (s *testServer) postForm(t *testing.T, target string, form url.Values, user *models.User) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(t, r, user)
}

func (s *testServer) postMultipart(t *testing.T, target string, fields map[string]string, filename string, content []byte, user *models.User) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, target, body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(t, r, user)
}

func countItems(body string) int {
	return strings.Count(body, `<article class="post">`)
}

func TestNewPostRequiresLogin(t *testing.T) {
	s := newTestServer(t)

	w := s.get(t, "/new/", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/login/?next=%2Fnew%2F", w.Header().Get("Location"))

	w = s.postForm(t, "/new/", url.Values{"text": {"sneaky"}}, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Zero(t, dbtest.Count(t, s.db, &models.Post{}, ""))
}

func TestNewPostForm(t *testing.T) {
	s := newTestServer(t)
	user := dbtest.CreateUser(t, s.db, "leo")
	dbtest.CreateGroup(t, s.db, "cats")

	w := s.get(t, "/new/", &user)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="text"`)
	assert.Contains(t, w.Body.String(), "Group cats")
}

func TestNewPostCreates(t *testing.T) {
	s := newTestServer(t)
	user := dbtest.CreateUser(t, s.db, "leo")
	group := dbtest.CreateGroup(t, s.db, "cats")

	w := s.postForm(t, "/new/", url.Values{"text": {"without a group"}}, &user)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	w = s.postForm(t, "/new/", url.Values{
		"text":  {"with a group"},
		"group": {fmt.Sprint(group.ID)},
	}, &user)
	assert.Equal(t, http.StatusFound, w.Code)

	assert.EqualValues(t, 2, dbtest.Count(t, s.db, &models.Post{}, "author_id = ?", user.ID))
	assert.EqualValues(t, 1, dbtest.Count(t, s.db, &models.Post{}, "text = ? AND group_id IS NULL", "without a group"))
	assert.EqualValues(t, 1, dbtest.Count(t, s.db, &models.Post{}, "text = ? AND group_id = ?", "with a group", group.ID))

	require.Len(t, s.live.posts, 2)
	assert.Equal(t, "leo", s.live.posts[0].Author.Username)
}

func TestNewPostRejectsInvalidInput(t *testing.T) {
	s := newTestServer(t)
	user := dbtest.CreateUser(t, s.db, "leo")

	tests := []struct {
		name  string
		form  url.Values
		field string
	}{
		{name: "empty text", form: url.Values{"text": {"   "}}, field: "This field is required."},
		{name: "unknown group", form: url.Values{"text": {"hi"}, "group": {"999"}}, field: "Select a valid choice."},
		{name: "garbage group", form: url.Values{"text": {"hi"}, "group": {"cats"}}, field: "Select a valid choice."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.postForm(t, "/new/", tt.form, &user)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.field)
			assert.Zero(t, dbtest.Count(t, s.db, &models.Post{}, ""))
		})
	}
}

func TestNewPostImageUpload(t *testing.T) {
	s := newTestServer(t)
	user := dbtest.CreateUser(t, s.db, "leo")

	w := s.postMultipart(t, "/new/", map[string]string{"text": "not a picture"}, "fake.gif", []byte("plain text"), &user)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "upload a valid image")
	assert.Zero(t, dbtest.Count(t, s.db, &models.Post{}, ""))

	w = s.postMultipart(t, "/new/", map[string]string{"text": "a picture"}, "small.gif", smallGIF, &user)
	require.Equal(t, http.StatusFound, w.Code)

	var post models.Post
	require.NoError(t, s.db.Where("text = ?", "a picture").First(&post).Error)
	assert.True(t, strings.HasPrefix(post.Image, "posts/"))
	_, err := os.Stat(filepath.Join(s.images.Root, post.Image))
	assert.NoError(t, err)
}

func TestNewPostStoreErrorIsServerError(t *testing.T) {
	s := newTestServer(t)
	user := dbtest.CreateUser(t, s.db, "leo")
	group := dbtest.CreateGroup(t, s.db, "cats")
	require.NoError(t, s.db.Migrator().DropTable(&models.Group{}))

	w := s.postForm(t, "/new/", url.Values{
		"text":  {"group lookup fails"},
		"group": {fmt.Sprint(group.ID)},
	}, &user)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "Error parsing form")
	assert.Zero(t, dbtest.Count(t, s.db, &models.Post{}, ""))
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	s := newTestServer(t)
	user := dbtest.CreateUser(t, s.db, "leo")
	post := dbtest.CreatePost(t, s.db, user, nil, "commentable")

	for _, target := range []string{"/new/", fmt.Sprintf("/leo/%d/edit/", post.ID), fmt.Sprintf("/leo/%d/comment/", post.ID)} {
		t.Run(target, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, target, strings.NewReader("no parts here"))
			r.Header.Set("Content-Type", "multipart/form-data; boundary=missing")

			w := s.do(t, r, &user)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.EqualValues(t, 1, dbtest.Count(t, s.db, &models.Post{}, ""))
			assert.Zero(t, dbtest.Count(t, s.db, &models.Comment{}, ""))
		})
	}
}

func TestPostEdit(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	stranger := dbtest.CreateUser(t, s.db, "tom")
	group := dbtest.CreateGroup(t, s.db, "cats")
	post := dbtest.CreatePost(t, s.db, author, nil, "original text")
	editURL := fmt.Sprintf("/leo/%d/edit/", post.ID)
	postURL := fmt.Sprintf("/leo/%d/", post.ID)

	t.Run("anonymous goes to login", func(t *testing.T) {
		w := s.get(t, editURL, nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, utils.LoginRedirectURL(editURL), w.Header().Get("Location"))
	})

	t.Run("stranger is sent back to the post", func(t *testing.T) {
		w := s.postForm(t, editURL, url.Values{"text": {"hijacked"}}, &stranger)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, postURL, w.Header().Get("Location"))

		var got models.Post
		require.NoError(t, s.db.First(&got, post.ID).Error)
		assert.Equal(t, "original text", got.Text)
	})

	t.Run("author sees the filled form", func(t *testing.T) {
		w := s.get(t, editURL, &author)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "original text")
	})

	t.Run("author saves", func(t *testing.T) {
		w := s.postForm(t, editURL, url.Values{
			"text":  {"edited text"},
			"group": {fmt.Sprint(group.ID)},
		}, &author)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, postURL, w.Header().Get("Location"))

		var got models.Post
		require.NoError(t, s.db.First(&got, post.ID).Error)
		assert.Equal(t, "edited text", got.Text)
		require.NotNil(t, got.GroupID)
		assert.Equal(t, group.ID, *got.GroupID)
		assert.WithinDuration(t, post.PubDate, got.PubDate, time.Second)
		assert.EqualValues(t, 1, dbtest.Count(t, s.db, &models.Post{}, ""))
	})

	t.Run("wrong author in the path", func(t *testing.T) {
		w := s.get(t, fmt.Sprintf("/tom/%d/edit/", post.ID), &author)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPostEditReplacesImage(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")

	w := s.postMultipart(t, "/new/", map[string]string{"text": "picture"}, "one.gif", smallGIF, &author)
	require.Equal(t, http.StatusFound, w.Code)
	var post models.Post
	require.NoError(t, s.db.First(&post).Error)
	oldPath := filepath.Join(s.images.Root, post.Image)

	editURL := fmt.Sprintf("/leo/%d/edit/", post.ID)
	w = s.postMultipart(t, editURL, map[string]string{"text": "no picture", "image-clear": "on"}, "", nil, &author)
	require.Equal(t, http.StatusFound, w.Code)

	require.NoError(t, s.db.First(&post, post.ID).Error)
	assert.Empty(t, post.Image)
	_, err := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
}

func TestAddComment(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	reader := dbtest.CreateUser(t, s.db, "tom")
	post := dbtest.CreatePost(t, s.db, author, nil, "commentable")
	commentURL := fmt.Sprintf("/leo/%d/comment/", post.ID)
	postURL := fmt.Sprintf("/leo/%d/", post.ID)

	w := s.postForm(t, commentURL, url.Values{"text": {"anonymous"}}, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), utils.LoginURL))
	assert.Zero(t, dbtest.Count(t, s.db, &models.Comment{}, ""))

	w = s.postForm(t, commentURL, url.Values{"text": {"   "}}, &reader)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Zero(t, dbtest.Count(t, s.db, &models.Comment{}, ""))

	w = s.postForm(t, commentURL, url.Values{"text": {"nice post"}}, &reader)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, postURL, w.Header().Get("Location"))
	assert.EqualValues(t, 1, dbtest.Count(t, s.db, &models.Comment{}, "post_id = ? AND author_id = ?", post.ID, reader.ID))
	require.Eventually(t, func() bool { return len(s.notifier.Comments()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "nice post", s.notifier.Comments()[0].Text)

	w = s.get(t, postURL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "nice post")
	assert.NotContains(t, w.Body.String(), `action="`+commentURL+`"`)
}

func TestAddCommentDoesNotWaitForMail(t *testing.T) {
	notifier := &stalledNotifier{release: make(chan struct{}), sent: make(chan models.Comment, 1)}
	s := newTestServerWith(t, notifier)
	author := dbtest.CreateUser(t, s.db, "leo")
	reader := dbtest.CreateUser(t, s.db, "tom")
	post := dbtest.CreatePost(t, s.db, author, nil, "commentable")

	start := time.Now()
	w := s.postForm(t, fmt.Sprintf("/leo/%d/comment/", post.ID), url.Values{"text": {"quick reply"}}, &reader)
	elapsed := time.Since(start)
	close(notifier.release)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, fmt.Sprintf("/leo/%d/", post.ID), w.Header().Get("Location"))
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.EqualValues(t, 1, dbtest.Count(t, s.db, &models.Comment{}, "post_id = ?", post.ID))

	select {
	case comment := <-notifier.sent:
		assert.Equal(t, "quick reply", comment.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("comment mail was never sent")
	}
}

func TestPostViewNotFound(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	dbtest.CreateUser(t, s.db, "tom")
	post := dbtest.CreatePost(t, s.db, author, nil, "exists")

	for _, target := range []string{
		"/nobody/",
		"/nobody/1/",
		fmt.Sprintf("/tom/%d/", post.ID),
		fmt.Sprintf("/leo/%d/", post.ID+100),
		"/group/missing/",
	} {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, http.StatusNotFound, s.get(t, target, nil).Code)
		})
	}
}

func TestPostView(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	post := dbtest.CreatePost(t, s.db, author, nil, "a detailed post")
	target := fmt.Sprintf("/leo/%d/", post.ID)

	w := s.get(t, target, &author)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "a detailed post")
	assert.Contains(t, w.Body.String(), target+"edit/")

	w = s.get(t, target, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), target+"edit/")
}

func TestIndexPagination(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	created := dbtest.CreatePosts(t, s.db, author, nil, 13)

	w := s.get(t, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, countItems(w.Body.String()))
	assert.Contains(t, w.Body.String(), created[12].Text)

	w = s.get(t, "/?page=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, countItems(w.Body.String()))
	assert.Contains(t, w.Body.String(), created[0].Text)
}

func TestIndexIsCached(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	dbtest.CreatePost(t, s.db, author, nil, "first post")

	w := s.get(t, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "first post")

	require.NoError(t, s.db.Where("1 = 1").Delete(&models.Post{}).Error)

	w = s.get(t, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "first post")
}

func TestGroupPosts(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	cats := dbtest.CreateGroup(t, s.db, "cats")
	dogs := dbtest.CreateGroup(t, s.db, "dogs")
	dbtest.CreatePost(t, s.db, author, &cats, "about cats")
	dbtest.CreatePost(t, s.db, author, &dogs, "about dogs")

	w := s.get(t, "/group/cats/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "about cats")
	assert.NotContains(t, w.Body.String(), "about dogs")
	assert.Equal(t, 1, countItems(w.Body.String()))
}

func TestProfile(t *testing.T) {
	s := newTestServer(t)
	author := dbtest.CreateUser(t, s.db, "leo")
	viewer := dbtest.CreateUser(t, s.db, "tom")
	dbtest.CreatePosts(t, s.db, author, nil, 3)
	dbtest.CreatePost(t, s.db, viewer, nil, "someone else")

	w := s.get(t, "/leo/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, countItems(w.Body.String()))
	assert.Contains(t, w.Body.String(), `<span id="posts-count">3</span>`)
	assert.NotContains(t, w.Body.String(), "someone else")
	assert.NotContains(t, w.Body.String(), `id="follow"`)

	w = s.get(t, "/leo/", &viewer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `id="follow"`)

	dbtest.CreateFollow(t, s.db, viewer, author)
	w = s.get(t, "/leo/", &viewer)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `id="unfollow"`)
	assert.Contains(t, w.Body.String(), `<span id="followers-count">1</span>`)

	w = s.get(t, "/leo/", &author)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `id="follow"`)
	assert.NotContains(t, w.Body.String(), `id="unfollow"`)
}
