package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"blogfeed/middleware"
)

func (h *Handler) index(c *gin.Context) {
	page, err := h.feed.IndexPage(c.Request.Context(), c.Query("page"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page_obj": page})
}

func (h *Handler) groupPosts(c *gin.Context) {
	page, err := h.feed.GroupPage(c.Request.Context(), c.Param("slug"), c.Query("page"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) profile(c *gin.Context) {
	page, err := h.feed.ProfilePage(c.Request.Context(), middleware.CurrentUser(c), c.Param("username"), c.Query("page"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) postDetail(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	detail, err := h.feed.PostDetail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) followIndex(c *gin.Context) {
	page, err := h.feed.FollowPage(c.Request.Context(), middleware.CurrentUser(c), c.Query("page"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"page_obj": page})
}

func (h *Handler) profileFollow(c *gin.Context) {
	username := c.Param("username")
	if err := h.feed.Follow(c.Request.Context(), middleware.CurrentUser(c), username); err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, profileURL(username))
}

func (h *Handler) profileUnfollow(c *gin.Context) {
	username := c.Param("username")
	if err := h.feed.Unfollow(c.Request.Context(), middleware.CurrentUser(c), username); err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, profileURL(username))
}
