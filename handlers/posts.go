package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"blogfeed/media"
	"blogfeed/middleware"
	"blogfeed/posts"
)

type postForm struct {
	Text  string      `form:"text" json:"text"`
	Group json.Number `form:"group" json:"group"`
	Image string      `form:"image_url" json:"image"`
}

// groupID parses the optional group field. Empty means no group.
func (f postForm) groupID() (*uint, error) {
	if f.Group == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(f.Group.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: group must be a group id, got %q", errBadForm, f.Group)
	}
	gid := uint(id)
	return &gid, nil
}

// bindPost reads a post from a JSON, urlencoded or multipart body. A
// multipart "image" file is uploaded and replaces any image URL given.
func (h *Handler) bindPost(c *gin.Context) (posts.Input, error) {
	var form postForm
	if err := c.ShouldBind(&form); err != nil {
		return posts.Input{}, fmt.Errorf("%w: %v", errBadForm, err)
	}
	groupID, err := form.groupID()
	if err != nil {
		return posts.Input{}, err
	}
	in := posts.Input{Text: form.Text, GroupID: groupID, ImgURL: form.Image}

	fh, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return in, nil
	case err != nil:
		return in, err
	}
	imgURL, err := h.upload(c, fh)
	if err != nil {
		return in, err
	}
	in.ImgURL = imgURL
	return in, nil
}

func (h *Handler) upload(c *gin.Context, fh *multipart.FileHeader) (string, error) {
	if h.media == nil {
		return "", errUploadsDisabled
	}
	contentType := fh.Header.Get("Content-Type")
	if !media.IsImage(contentType) {
		return "", errNotImage
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	return h.media.Put(c.Request.Context(), fh.Filename, contentType, src, fh.Size)
}

func (h *Handler) postCreate(c *gin.Context) {
	ctx := c.Request.Context()
	if c.Request.Method == http.MethodGet {
		groups, err := h.store.ListGroups(ctx)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"groups": groups})
		return
	}

	in, err := h.bindPost(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	user := middleware.CurrentUser(c)
	if _, err := h.posts.Create(ctx, user, in); err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, profileURL(user.Username))
}

func (h *Handler) postEdit(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user := middleware.CurrentUser(c)

	post, err := h.posts.Editable(ctx, user, id)
	if errors.Is(err, posts.ErrForbidden) {
		c.Redirect(http.StatusFound, detailURL(id))
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if c.Request.Method == http.MethodGet {
		groups, err := h.store.ListGroups(ctx)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"post": post, "groups": groups, "is_edit": true})
		return
	}

	in, err := h.bindPost(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if _, err := h.posts.Edit(ctx, user, id, in); err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, detailURL(id))
}

func (h *Handler) postDelete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user := middleware.CurrentUser(c)

	post, err := h.posts.Editable(ctx, user, id)
	if errors.Is(err, posts.ErrForbidden) {
		c.Redirect(http.StatusFound, detailURL(id))
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if c.Request.Method == http.MethodGet {
		c.JSON(http.StatusOK, gin.H{"post": post})
		return
	}
	if err := h.posts.Delete(ctx, user, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// addComment always returns to the post; a blank comment is dropped.
func (h *Handler) addComment(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var form struct {
		Text string `form:"text" json:"text"`
	}
	_ = c.ShouldBind(&form)

	_, err := h.posts.AddComment(c.Request.Context(), middleware.CurrentUser(c), id, form.Text)
	if err != nil && !errors.Is(err, posts.ErrEmptyText) {
		h.fail(c, err)
		return
	}
	c.Redirect(http.StatusFound, detailURL(id))
}

func (h *Handler) uploadImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	imgURL, err := h.upload(c, fh)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": imgURL})
}
