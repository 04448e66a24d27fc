package bookmarks

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bookhub/internal/auth"
	"bookhub/internal/events"
	"bookhub/pkg/models"
	"bookhub/pkg/utils"
)

const perPage = 4

type Handler struct {
	Repo *Repo
	Hub  *events.Hub
}

func NewHandler(repo *Repo, hub *events.Hub) *Handler {
	return &Handler{Repo: repo, Hub: hub}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/bookmarks", h.list)
	rg.POST("/bookmarks", h.create)
	rg.DELETE("/bookmarks", h.remove)
}

func (h *Handler) list(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	page := parseInt(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}

	total, err := h.Repo.Count(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "count failed", "error": err.Error()})
		return
	}

	rows, err := h.Repo.List(c.Request.Context(), claims.UserID, perPage, (page-1)*perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "list failed", "error": err.Error()})
		return
	}

	data := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		// only the first image is shown on the bookmark shelf
		images := models.DecodeImages(r.ImageJSON)
		if len(images) > 1 {
			images = images[:1]
		}
		data = append(data, gin.H{
			"id":            r.BookID,
			"images":        images,
			"title":         r.Title,
			"username":      r.Username,
			"category":      r.Category,
			"content":       utils.StripHTML(r.Content),
			"created_at":    r.BookCreatedAt.UTC().Format(time.RFC3339),
			"book_creator":  r.BookCreator,
			"is_bookmarked": true,
		})
	}

	c.JSON(http.StatusOK, models.NewPage(data, page, perPage, total))
}

type createReq struct {
	BookID int64 `json:"id_book"`
}

func (h *Handler) create(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil || req.BookID <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "validation failed",
			"errors":  gin.H{"id_book": "id_book is required"},
		})
		return
	}

	if ok, err := h.Repo.BookExists(c.Request.Context(), req.BookID); err != nil || !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "validation failed",
			"errors":  gin.H{"id_book": "the selected book is invalid"},
		})
		return
	}

	if exists, err := h.Repo.Exists(c.Request.Context(), claims.UserID, req.BookID); err == nil && exists {
		c.JSON(http.StatusConflict, gin.H{"message": "book already bookmarked"})
		return
	}

	id, err := h.Repo.Create(c.Request.Context(), claims.UserID, req.BookID)
	if err != nil {
		// lost check-then-insert race: the unique index still holds
		if errors.Is(err, ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"message": "book already bookmarked"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save bookmark", "error": err.Error()})
		return
	}

	saved, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil || saved == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save bookmark"})
		return
	}

	var first any
	if images := models.DecodeImages(saved.ImageJSON); len(images) > 0 {
		first = images[0]
	}

	h.broadcast(events.BookmarkCreated, claims.UserID, req.BookID)
	c.JSON(http.StatusCreated, gin.H{
		"message": "bookmark saved",
		"data": gin.H{
			"id":         saved.BookmarkID,
			"images":     first,
			"title":      saved.Title,
			"username":   saved.Username,
			"category":   saved.Category,
			"content":    utils.StripHTML(saved.Content),
			"created_at": saved.CreatedAt.UTC().Format("02-01-2006"),
		},
	})
}

func (h *Handler) remove(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil || req.BookID <= 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "validation failed",
			"errors":  gin.H{"id_book": "id_book is required"},
		})
		return
	}

	ok, err := h.Repo.DeleteByBook(c.Request.Context(), claims.UserID, req.BookID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to delete bookmark", "error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "bookmark not found"})
		return
	}

	h.broadcast(events.BookmarkDeleted, claims.UserID, req.BookID)
	c.JSON(http.StatusOK, gin.H{"message": "bookmark deleted"})
}

func (h *Handler) broadcast(eventType string, userID, bookID int64) {
	if h.Hub == nil {
		return
	}
	go h.Hub.BroadcastJSON(events.Event{
		Type:   eventType,
		UserID: userID,
		BookID: bookID,
		At:     time.Now().UTC(),
	})
}

func parseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
