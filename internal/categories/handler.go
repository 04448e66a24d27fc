package categories

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bookhub/pkg/models"
)

const perPage = 10

type Handler struct {
	Repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/categories", h.list)
	rg.GET("/categories/:id", h.getByID)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/categories", h.create)
	rg.PUT("/categories/:id", h.update)
	rg.DELETE("/categories/:id", h.remove)
}

func (h *Handler) list(c *gin.Context) {
	keyword := c.Query("keyword")
	page := parseInt(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}

	total, err := h.Repo.Count(c.Request.Context(), keyword)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "count failed", "error": err.Error()})
		return
	}

	items, err := h.Repo.List(c.Request.Context(), keyword, perPage, (page-1)*perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "list failed", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.NewPage(items, page, perPage, total))
}

func (h *Handler) getByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	cat, err := h.Repo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "get failed", "error": err.Error()})
		return
	}
	if cat == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "category not found"})
		return
	}
	c.JSON(http.StatusOK, cat)
}

type categoryReq struct {
	Name string `json:"name"`
}

func (h *Handler) create(c *gin.Context) {
	var req categoryReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "validation failed",
			"errors":  gin.H{"name": "category name is required"},
		})
		return
	}

	if _, err := h.Repo.Create(c.Request.Context(), strings.TrimSpace(req.Name)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save category", "error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "category saved"})
}

func (h *Handler) update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req categoryReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "validation failed",
			"errors":  gin.H{"name": "category name is required"},
		})
		return
	}

	updated, err := h.Repo.Update(c.Request.Context(), id, strings.TrimSpace(req.Name))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to update category", "error": err.Error()})
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, gin.H{"message": "category not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "category updated"})
}

func (h *Handler) remove(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	deleted, err := h.Repo.Delete(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to delete category", "error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"message": "category not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "category deleted"})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "category not found"})
		return 0, false
	}
	return id, true
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
