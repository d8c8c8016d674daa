package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"blogfeed/cache"
	"blogfeed/config"
	"blogfeed/events"
	"blogfeed/events/eventstest"
	"blogfeed/feed"
	"blogfeed/middleware"
	"blogfeed/models"
	"blogfeed/posts"
	"blogfeed/store"
)

const adminToken = "admin-token"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMedia struct {
	puts []string
}

func (m *fakeMedia) Put(_ context.Context, filename, _ string, r io.Reader, _ int64) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	m.puts = append(m.puts, filename)
	return "http://media.test/posts/" + filename, nil
}

type app struct {
	t      *testing.T
	cfg    *config.Config
	store  *store.GormStore
	cache  *cache.Memory
	events *eventstest.Recorder
	media  *fakeMedia
	router *gin.Engine
}

func newApp(t *testing.T) *app {
	t.Helper()
	db, err := store.Open(config.DB{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		CacheTTL:     20 * time.Second,
		CachePrefix:  "index_page",
		PostsPerPage: 10,
		JWTSecret:    "test-secret",
		TokenTTL:     time.Hour,
		AdminToken:   adminToken,
		LoginURL:     "/auth/login/",
	}
	a := &app{
		t:      t,
		cfg:    cfg,
		store:  store.New(db),
		cache:  cache.NewMemory(100, cfg.CacheTTL),
		events: &eventstest.Recorder{},
		media:  &fakeMedia{},
	}
	h := New(Deps{
		Store:  a.store,
		Feed:   feed.NewService(a.store, cfg.PostsPerPage),
		Posts:  posts.NewService(a.store, a.events),
		Cache:  a.cache,
		Media:  a.media,
		Config: cfg,
	})
	a.router = gin.New()
	h.Register(a.router)
	return a
}

func (a *app) user(name string) *models.User {
	a.t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("pass-"+name), bcrypt.MinCost)
	require.NoError(a.t, err)
	u := &models.User{Username: name, Password: string(hashed)}
	require.NoError(a.t, a.store.CreateUser(context.Background(), u))
	return u
}

func (a *app) group(slug string) *models.Group {
	a.t.Helper()
	g := &models.Group{Title: "test_group", Slug: slug, Description: "test_description"}
	require.NoError(a.t, a.store.CreateGroup(context.Background(), g))
	return g
}

func (a *app) post(author *models.User, text string) *models.Post {
	a.t.Helper()
	p := &models.Post{Text: text, AuthorID: author.ID}
	require.NoError(a.t, a.store.CreatePost(context.Background(), p))
	return p
}

func (a *app) token(u *models.User) string {
	a.t.Helper()
	tok, err := middleware.IssueToken([]byte(a.cfg.JWTSecret), u.ID, time.Hour)
	require.NoError(a.t, err)
	return tok
}

// do sends a request as u, or anonymously when u is nil. A url.Values body
// is sent urlencoded.
func (a *app) do(method, target string, u *models.User, form url.Values) *httptest.ResponseRecorder {
	a.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+a.token(u))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type pageBody struct {
	PageObj struct {
		Items    []models.Post `json:"items"`
		Number   int           `json:"number"`
		NumPages int           `json:"num_pages"`
		Count    int           `json:"count"`
	} `json:"page_obj"`
}

func decodePage(t *testing.T, w *httptest.ResponseRecorder) pageBody {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body pageBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestPublicPages(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")
	a.group("test_slug")
	p := a.post(author, "test_text")

	for _, path := range []string{
		"/",
		"/group/test_slug/",
		"/profile/auth/",
		fmt.Sprintf("/posts/%d/", p.ID),
		"/healthz",
	} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusOK, a.do(http.MethodGet, path, nil, nil).Code)
		})
	}
}

func TestNotFound(t *testing.T) {
	a := newApp(t)
	for _, path := range []string{
		"/posts/15/",
		"/posts/abc/",
		"/profile/Superman/",
		"/group/SupermanFans/",
		"/unexisted/",
	} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, path, nil, nil).Code)
		})
	}
}

func TestLoginRequired(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")
	p := a.post(author, "test_text")

	tests := []struct {
		method, path string
	}{
		{http.MethodGet, "/create/"},
		{http.MethodGet, fmt.Sprintf("/posts/%d/edit/", p.ID)},
		{http.MethodGet, "/follow/"},
		{http.MethodPost, fmt.Sprintf("/posts/%d/comment/", p.ID)},
		{http.MethodGet, "/profile/auth/follow/"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := a.do(tt.method, tt.path, nil, nil)
			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, "/auth/login/?next="+tt.path, w.Header().Get("Location"))
		})
	}
}

func TestIndexIsCached(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")
	p := a.post(author, "cached text")

	first := a.do(http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Contains(t, first.Body.String(), "cached text")
	assert.Empty(t, first.Header().Get(cache.HeaderCache))

	require.NoError(t, a.store.DeletePost(context.Background(), p.ID))

	second := a.do(http.MethodGet, "/", nil, nil)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get(cache.HeaderCache))

	req := httptest.NewRequest(http.MethodDelete, "/admin/cache", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	third := a.do(http.MethodGet, "/", nil, nil)
	assert.NotEqual(t, first.Body.String(), third.Body.String())
	assert.NotContains(t, third.Body.String(), "cached text")
}

func TestIndexPagination(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")
	for i := 0; i < 15; i++ {
		a.post(author, fmt.Sprintf("post %d", i))
	}

	first := decodePage(t, a.do(http.MethodGet, "/", nil, nil))
	assert.Len(t, first.PageObj.Items, 10)
	assert.Equal(t, 2, first.PageObj.NumPages)
	assert.Equal(t, "post 14", first.PageObj.Items[0].Text)

	second := decodePage(t, a.do(http.MethodGet, "/?page=2", nil, nil))
	assert.Len(t, second.PageObj.Items, 5)
	assert.Equal(t, 2, second.PageObj.Number)

	past := decodePage(t, a.do(http.MethodGet, "/?page=99", nil, nil))
	assert.Equal(t, 2, past.PageObj.Number)
}

func TestCreatePost(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")
	g := a.group("test_slug")

	w := a.do(http.MethodGet, "/create/", author, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_slug")

	w = a.do(http.MethodPost, "/create/", author, url.Values{
		"text":  {"new post"},
		"group": {fmt.Sprint(g.ID)},
	})
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/profile/auth/", w.Header().Get("Location"))

	body := decodePage(t, a.do(http.MethodGet, "/group/test_slug/", nil, nil))
	require.Len(t, body.PageObj.Items, 1)
	assert.Equal(t, "new post", body.PageObj.Items[0].Text)
	assert.Equal(t, author.ID, body.PageObj.Items[0].AuthorID)

	require.Len(t, a.events.Events(), 1)
	assert.Equal(t, events.PostCreated, a.events.Events()[0].Type)
}

func TestCreatePostRejectsEmptyText(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")

	w := a.do(http.MethodPost, "/create/", author, url.Values{"text": {"   "}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	n, err := a.store.CountPosts(context.Background(), store.Scope{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreatePostRejectsBadGroup(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")

	w := a.do(http.MethodPost, "/create/", author, url.Values{"text": {"hello"}, "group": {"abc"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "group")
	assert.NotContains(t, w.Body.String(), "text is required")

	w = a.do(http.MethodPost, "/create/", author, url.Values{"text": {"hello"}, "group": {"42"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown group")
}

func TestCreatePostFromJSON(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")
	g := a.group("test_slug")

	body := fmt.Sprintf(`{"text": "json post", "group": %d}`, g.ID)
	req := httptest.NewRequest(http.MethodPost, "/create/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.token(author))
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	page := decodePage(t, a.do(http.MethodGet, "/group/test_slug/", nil, nil))
	require.Len(t, page.PageObj.Items, 1)
	assert.Equal(t, "json post", page.PageObj.Items[0].Text)
}

func TestCreatePostWithImage(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("text", "with picture"))
	part, err := mw.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="image"; filename="small.gif"`},
		"Content-Type":        {"image/gif"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("GIF89a"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/create/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.token(author))
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	assert.Equal(t, []string{"small.gif"}, a.media.puts)
	list, err := a.store.ListPosts(context.Background(), store.Scope{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "http://media.test/posts/small.gif", list[0].ImgURL)
}

func TestEditPost(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")
	other := a.user("other")
	p := a.post(author, "before")
	edit := fmt.Sprintf("/posts/%d/edit/", p.ID)

	w := a.do(http.MethodGet, edit, author, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"is_edit":true`)

	w = a.do(http.MethodGet, edit, other, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, detailURL(p.ID), w.Header().Get("Location"))

	w = a.do(http.MethodPost, edit, other, url.Values{"text": {"hijacked"}})
	assert.Equal(t, http.StatusFound, w.Code)

	w = a.do(http.MethodPost, edit, author, url.Values{"text": {"after"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, detailURL(p.ID), w.Header().Get("Location"))

	got, err := a.store.PostByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Text)
}

func TestDeletePost(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")
	other := a.user("other")
	p := a.post(author, "doomed")
	del := fmt.Sprintf("/posts/%d/delete/", p.ID)

	w := a.do(http.MethodPost, del, other, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, detailURL(p.ID), w.Header().Get("Location"))

	w = a.do(http.MethodPost, del, author, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, detailURL(p.ID), nil, nil).Code)
}

func TestAddComment(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")
	reader := a.user("reader")
	p := a.post(author, "test_text")
	comment := fmt.Sprintf("/posts/%d/comment/", p.ID)

	w := a.do(http.MethodPost, comment, reader, url.Values{"text": {"nice"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, detailURL(p.ID), w.Header().Get("Location"))

	w = a.do(http.MethodPost, comment, reader, url.Values{"text": {""}})
	assert.Equal(t, http.StatusFound, w.Code)

	w = a.do(http.MethodGet, detailURL(p.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Comments []models.Comment `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "nice", detail.Comments[0].Text)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/posts/999/comment/", reader, url.Values{"text": {"x"}}).Code)
}

func TestFollowFlow(t *testing.T) {
	a := newApp(t)
	author := a.user("author")
	follower := a.user("follower")
	stranger := a.user("stranger")
	a.post(author, "for followers")

	w := a.do(http.MethodPost, "/profile/author/follow/", follower, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/profile/author/", w.Header().Get("Location"))

	ok, err := a.store.FollowExists(context.Background(), follower.ID, author.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	feedPage := decodePage(t, a.do(http.MethodGet, "/follow/", follower, nil))
	require.Len(t, feedPage.PageObj.Items, 1)
	assert.Equal(t, "for followers", feedPage.PageObj.Items[0].Text)

	empty := decodePage(t, a.do(http.MethodGet, "/follow/", stranger, nil))
	assert.Empty(t, empty.PageObj.Items)

	w = a.do(http.MethodGet, "/profile/author/", follower, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"following":true`)

	w = a.do(http.MethodPost, "/profile/author/unfollow/", follower, nil)
	assert.Equal(t, http.StatusFound, w.Code)
	ok, err = a.store.FollowExists(context.Background(), follower.ID, author.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/profile/nobody/follow/", follower, nil).Code)
}

func TestSignupAndLogin(t *testing.T) {
	a := newApp(t)

	w := a.do(http.MethodPost, "/auth/signup/", nil, url.Values{"username": {"newbie"}, "password": {"secret"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = a.do(http.MethodPost, "/auth/signup/", nil, url.Values{"username": {"newbie"}, "password": {"again"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = a.do(http.MethodPost, "/auth/login/", nil, url.Values{"username": {"newbie"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = a.do(http.MethodPost, "/auth/login/?next=/create/", nil, url.Values{"username": {"newbie"}, "password": {"secret"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/create/", w.Header().Get("Location"))

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.TokenCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodGet, "/create/", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodPost, "/auth/login/?next=//evil.test/", nil, url.Values{"username": {"newbie"}, "password": {"secret"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "token")
}

func TestAdminGroups(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")

	admin := func(method, path string, form url.Values) *httptest.ResponseRecorder {
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req := httptest.NewRequest(method, path, body)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Admin-Token", adminToken)
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/admin/groups/", author, url.Values{"title": {"t"}, "slug": {"s"}}).Code)

	w := admin(http.MethodPost, "/admin/groups/", url.Values{"title": {"Cats"}, "slug": {"cats"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, http.StatusConflict, admin(http.MethodPost, "/admin/groups/", url.Values{"title": {"Cats"}, "slug": {"cats"}}).Code)
	assert.Equal(t, http.StatusBadRequest, admin(http.MethodPost, "/admin/groups/", url.Values{"title": {"No slug"}}).Code)

	g, err := a.store.GroupBySlug(context.Background(), "cats")
	require.NoError(t, err)
	p := &models.Post{Text: "meow", AuthorID: author.ID, GroupID: &g.ID}
	require.NoError(t, a.store.CreatePost(context.Background(), p))

	assert.Equal(t, http.StatusNoContent, admin(http.MethodDelete, "/admin/groups/cats/", nil).Code)
	assert.Equal(t, http.StatusNotFound, admin(http.MethodDelete, "/admin/groups/cats/", nil).Code)

	got, err := a.store.PostByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GroupID)
}

func TestUploadDisabled(t *testing.T) {
	a := newApp(t)
	author := a.user("auth")
	a.router = gin.New()
	New(Deps{
		Store:  a.store,
		Feed:   feed.NewService(a.store, 10),
		Posts:  posts.NewService(a.store, nil),
		Cache:  a.cache,
		Config: a.cfg,
	}).Register(a.router)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "a.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("png"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+a.token(author))
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
