// Package handlers exposes the blog over HTTP. Each request runs through
// authentication, then the page cache where one applies, then scope
// resolution and feed assembly in the feed service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"blogfeed/cache"
	"blogfeed/config"
	"blogfeed/feed"
	"blogfeed/media"
	"blogfeed/middleware"
	"blogfeed/posts"
	"blogfeed/store"
)

var (
	errUploadsDisabled = errors.New("image uploads are disabled")
	errNotImage        = errors.New("file is not an image")
	errBadForm         = errors.New("invalid form")
)

var getOrPost = []string{http.MethodGet, http.MethodPost}

type Deps struct {
	Store  store.Store
	Feed   *feed.Service
	Posts  *posts.Service
	Cache  cache.Cache
	Media  media.Storage // nil disables uploads
	Config *config.Config
}

type Handler struct {
	store store.Store
	feed  *feed.Service
	posts *posts.Service
	cache cache.Cache
	media media.Storage
	cfg   *config.Config
}

func New(deps Deps) *Handler {
	return &Handler{
		store: deps.Store,
		feed:  deps.Feed,
		posts: deps.Posts,
		cache: deps.Cache,
		media: deps.Media,
		cfg:   deps.Config,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.Use(middleware.Authenticate([]byte(h.cfg.JWTSecret), h.store))
	login := middleware.LoginRequired(h.cfg.LoginURL)

	r.GET("/", cache.Page(h.cache, h.cfg.CachePrefix, h.cfg.CacheTTL), h.index)
	r.GET("/group/:slug/", h.groupPosts)
	r.GET("/profile/:username/", h.profile)
	r.GET("/posts/:id/", h.postDetail)
	r.GET("/follow/", login, h.followIndex)

	r.Match(getOrPost, "/create/", login, h.postCreate)
	r.Match(getOrPost, "/posts/:id/edit/", login, h.postEdit)
	r.Match(getOrPost, "/posts/:id/delete/", login, h.postDelete)
	r.POST("/posts/:id/comment/", login, h.addComment)
	r.Match(getOrPost, "/profile/:username/follow/", login, h.profileFollow)
	r.Match(getOrPost, "/profile/:username/unfollow/", login, h.profileUnfollow)
	r.POST("/upload/", login, h.uploadImage)

	r.POST("/auth/signup/", h.signup)
	r.Match(getOrPost, "/auth/login/", h.login)
	r.POST("/auth/logout/", h.logout)

	admin := r.Group("/admin", middleware.AdminOnly(h.cfg.AdminToken))
	admin.POST("/groups/", h.createGroup)
	admin.DELETE("/groups/:slug/", h.deleteGroup)
	admin.DELETE("/cache", h.clearCache)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, posts.ErrEmptyText),
		errors.Is(err, posts.ErrUnknownGroup),
		errors.Is(err, errNotImage),
		errors.Is(err, errBadForm):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errUploadsDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, feed.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		slog.Error("Request failed",
			"error", err,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// idParam parses the :id path parameter. Anything that is not a positive
// integer cannot name a post, so it is answered with not found.
func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return uint(id), true
}

func detailURL(id uint) string {
	return "/posts/" + strconv.FormatUint(uint64(id), 10) + "/"
}

func profileURL(username string) string {
	return "/profile/" + url.PathEscape(username) + "/"
}
