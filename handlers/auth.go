package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"blogfeed/middleware"
	"blogfeed/models"
	"blogfeed/store"
)

type credentials struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func (h *Handler) setToken(c *gin.Context, user *models.User) (string, error) {
	tok, err := middleware.IssueToken([]byte(h.cfg.JWTSecret), user.ID, h.cfg.TokenTTL)
	if err != nil {
		return "", err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, tok, int(h.cfg.TokenTTL.Seconds()), "/", "", c.Request.TLS != nil, true)
	return tok, nil
}

func (h *Handler) signup(c *gin.Context) {
	var input credentials
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		h.fail(c, err)
		return
	}
	user := &models.User{Username: strings.TrimSpace(input.Username), Password: string(hashed)}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		h.fail(c, err)
		return
	}

	tok, err := h.setToken(c, user)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "username": user.Username, "token": tok})
}

// safeNext only allows redirects to paths on this site.
func safeNext(next string) bool {
	return strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//")
}

func (h *Handler) login(c *gin.Context) {
	next := c.Query("next")
	if next == "" {
		next = c.PostForm("next")
	}
	if c.Request.Method == http.MethodGet {
		c.JSON(http.StatusOK, gin.H{"next": next})
		return
	}

	var input credentials
	if err := c.ShouldBind(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := h.store.UserByUsername(c.Request.Context(), input.Username)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid credentials"})
		return
	}

	tok, err := h.setToken(c, user)
	if err != nil {
		h.fail(c, err)
		return
	}
	if safeNext(next) {
		c.Redirect(http.StatusFound, next)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok})
}

func (h *Handler) logout(c *gin.Context) {
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", c.Request.TLS != nil, true)
	c.Status(http.StatusNoContent)
}
