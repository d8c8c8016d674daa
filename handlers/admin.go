package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"blogfeed/models"
)

type groupForm struct {
	Title       string `form:"title" json:"title" binding:"required,max=200"`
	Slug        string `form:"slug" json:"slug" binding:"required"`
	Description string `form:"description" json:"description"`
}

func (h *Handler) createGroup(c *gin.Context) {
	var form groupForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	group := &models.Group{Title: form.Title, Slug: form.Slug, Description: form.Description}
	if err := h.store.CreateGroup(c.Request.Context(), group); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *Handler) deleteGroup(c *gin.Context) {
	if err := h.store.DeleteGroup(c.Request.Context(), c.Param("slug")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// clearCache drops every cached page so the next request renders fresh.
func (h *Handler) clearCache(c *gin.Context) {
	if err := h.cache.Clear(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	slog.Info("Page cache cleared")
	c.Status(http.StatusNoContent)
}
