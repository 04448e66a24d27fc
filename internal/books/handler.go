package books

import (
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"bookhub/internal/auth"
	"bookhub/internal/events"
	"bookhub/internal/storage"
	"bookhub/pkg/models"
	"bookhub/pkg/utils"
)

const (
	listPerPage = 12
	userPerPage = 4
)

type Handler struct {
	Repo  *Repo
	Store *storage.Store
	Hub   *events.Hub
}

func NewHandler(repo *Repo, store *storage.Store, hub *events.Hub) *Handler {
	return &Handler{Repo: repo, Store: store, Hub: hub}
}

// RegisterPublicRoutes expects a group wrapped in AuthOptional so that
// is_bookmarked reflects the caller when a token is supplied.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("/books", h.list)
	rg.GET("/books/:id", h.getByID)
	rg.GET("/books-category", h.byCategory)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/books", h.create)
	rg.PUT("/books/:id", h.update)
	rg.DELETE("/books/:id", h.remove)
	rg.GET("/books-users", h.byUser)
}

func (h *Handler) list(c *gin.Context) {
	page := parseInt(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}

	q := ListQuery{
		Keyword:    c.Query("keyword"),
		Sort:       c.DefaultQuery("sort", "newest"),
		CategoryID: int64(parseInt(c.Query("id_category"), 0)),
		ViewerID:   auth.CallerID(c),
		Limit:      listPerPage,
		Offset:     (page - 1) * listPerPage,
	}

	total, err := h.Repo.Count(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "count failed", "error": err.Error()})
		return
	}

	rows, err := h.Repo.List(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "list failed", "error": err.Error()})
		return
	}

	data := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		data = append(data, formatRow(r, true))
	}

	c.JSON(http.StatusOK, models.NewPage(data, page, listPerPage, total))
}

func (h *Handler) getByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	viewerID := auth.CallerID(c)
	row, err := h.Repo.GetByID(c.Request.Context(), id, viewerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "get failed", "error": err.Error()})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "book not found"})
		return
	}

	related, err := h.Repo.Related(c.Request.Context(), row.CategoryID, row.ID, viewerID, 5)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "related failed", "error": err.Error()})
		return
	}

	relatedBooks := make([]gin.H, 0, len(related))
	for _, r := range related {
		relatedBooks = append(relatedBooks, formatRow(r, false))
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            row.ID,
		"title":         row.Title,
		"category":      row.Category,
		"content":       row.Content,
		"images":        models.DecodeImages(row.ImageJSON),
		"username":      row.Username,
		"avatar":        row.Avatar,
		"created_at":    row.CreatedAt.UTC().Format(time.RFC3339),
		"is_bookmarked": row.IsBookmarked,
		"related_books": relatedBooks,
	})
}

func (h *Handler) create(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	title := strings.TrimSpace(c.PostForm("title"))
	content := c.PostForm("content")
	categoryID, _ := strconv.ParseInt(c.PostForm("id_category"), 10, 64)

	errs := map[string]string{}
	if title == "" {
		errs["title"] = "title must be included"
	}
	if strings.TrimSpace(content) == "" {
		errs["content"] = "content must be included"
	}
	if categoryID <= 0 {
		errs["id_category"] = "category must be valid"
	} else if ok, err := h.Repo.CategoryExists(c.Request.Context(), categoryID); err != nil || !ok {
		errs["id_category"] = "category must be valid"
	}

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, fh := range form.File["image"] {
			if err := storage.CheckImage(fh); err != nil {
				errs["image"] = err.Error()
				break
			}
			files = append(files, fh)
		}
	}
	if len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "validation failed", "errors": errs})
		return
	}

	var list []imageEntry
	for _, fh := range files {
		url, err := saveUpload(h.Store, fh)
		if err != nil {
			log.Printf("save book image: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save book", "error": err.Error()})
			return
		}
		list = appendImage(list, url)
	}

	imageJSON, err := encodeImages(list)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save book", "error": err.Error()})
		return
	}

	id, err := h.Repo.Create(c.Request.Context(), title, claims.UserID, categoryID, content, imageJSON)
	if err != nil {
		log.Printf("create book: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to save book", "error": err.Error()})
		return
	}

	h.broadcast(events.BookCreated, claims.UserID, id)
	c.JSON(http.StatusCreated, gin.H{"message": "book saved"})
}

func (h *Handler) update(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}

	row, err := h.Repo.GetByID(c.Request.Context(), id, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "get failed", "error": err.Error()})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "book not found"})
		return
	}
	if row.UserID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"message": "unauthorized"})
		return
	}

	var upd UpdateFields
	errs := map[string]string{}

	if v, present := c.GetPostForm("title"); present {
		v = strings.TrimSpace(v)
		if v == "" {
			errs["title"] = "title must be included"
		}
		upd.Title = &v
	}
	if v, present := c.GetPostForm("content"); present {
		if strings.TrimSpace(v) == "" {
			errs["content"] = "content must be included"
		}
		upd.Content = &v
	}
	if v, present := c.GetPostForm("id_category"); present {
		categoryID, _ := strconv.ParseInt(v, 10, 64)
		if categoryID <= 0 {
			errs["id_category"] = "category must be valid"
		} else if ok, err := h.Repo.CategoryExists(c.Request.Context(), categoryID); err != nil || !ok {
			errs["id_category"] = "category must be valid"
		}
		upd.CategoryID = &categoryID
	}

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil && form != nil {
		for _, fh := range form.File["image"] {
			if err := storage.CheckImage(fh); err != nil {
				errs["image"] = err.Error()
				break
			}
			files = append(files, fh)
		}
	}
	if len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "validation failed", "errors": errs})
		return
	}

	// reconcile the image list: removals first, then additions
	list := parseImageEntries(row.ImageJSON)
	list, removed := removeImages(list, parseRemoveIDs(c))
	for _, img := range removed {
		// a missing file is skipped; the list entry goes regardless
		_ = h.Store.Delete(img.URL)
	}
	for _, fh := range files {
		url, err := saveUpload(h.Store, fh)
		if err != nil {
			log.Printf("save book image: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to update book", "error": err.Error()})
			return
		}
		list = appendImage(list, url)
	}

	imageJSON, err := encodeImages(list)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to update book", "error": err.Error()})
		return
	}
	upd.ImageJSON = &imageJSON

	if err := h.Repo.Update(c.Request.Context(), id, upd); err != nil {
		log.Printf("update book: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to update book", "error": err.Error()})
		return
	}

	saved, err := h.Repo.GetByID(c.Request.Context(), id, claims.UserID)
	if err != nil || saved == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to update book"})
		return
	}

	h.broadcast(events.BookUpdated, claims.UserID, id)
	c.JSON(http.StatusOK, gin.H{
		"message": "book updated",
		"book": gin.H{
			"id":         saved.ID,
			"images":     models.DecodeImages(saved.ImageJSON),
			"title":      saved.Title,
			"username":   saved.Username,
			"category":   saved.Category,
			"content":    saved.Content,
			"created_at": saved.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

func (h *Handler) remove(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, ok := parseID(c)
	if !ok {
		return
	}

	row, err := h.Repo.GetByID(c.Request.Context(), id, claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "get failed", "error": err.Error()})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "book not found"})
		return
	}
	if row.UserID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"message": "unauthorized"})
		return
	}

	if _, err := h.Repo.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to delete book", "error": err.Error()})
		return
	}

	h.broadcast(events.BookDeleted, claims.UserID, id)
	c.JSON(http.StatusOK, gin.H{"message": "book deleted"})
}

// byUser lists the caller's own books.
func (h *Handler) byUser(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	page := parseInt(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}

	total, err := h.Repo.CountByUser(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "count failed", "error": err.Error()})
		return
	}

	rows, err := h.Repo.ListByUser(c.Request.Context(), claims.UserID, claims.UserID, userPerPage, (page-1)*userPerPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "list failed", "error": err.Error()})
		return
	}

	data := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		data = append(data, gin.H{
			"id":            r.ID,
			"title":         r.Title,
			"username":      r.Username,
			"avatar_image":  r.Avatar,
			"content":       r.Content,
			"category":      r.Category,
			"created_at":    r.CreatedAt.UTC().Format(time.RFC3339),
			"images":        models.DecodeImages(r.ImageJSON),
			"is_bookmarked": r.IsBookmarked,
		})
	}

	c.JSON(http.StatusOK, models.NewPage(data, page, userPerPage, total))
}

// byCategory lists every book grouped by its category.
func (h *Handler) byCategory(c *gin.Context) {
	rows, err := h.Repo.ListAll(c.Request.Context(), auth.CallerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "list failed", "error": err.Error()})
		return
	}

	groups := []gin.H{}
	var current gin.H
	var currentBooks []gin.H
	var currentID int64 = -1

	flush := func() {
		if current != nil {
			current["books"] = currentBooks
			groups = append(groups, current)
		}
	}

	for _, r := range rows {
		if r.CategoryID != currentID {
			flush()
			currentID = r.CategoryID
			current = gin.H{"category_id": r.CategoryID, "category_name": r.Category}
			currentBooks = nil
		}
		currentBooks = append(currentBooks, formatRow(r, false))
	}
	flush()

	c.JSON(http.StatusOK, gin.H{
		"data":        groups,
		"total_books": len(rows),
	})
}

func formatRow(r Row, stripContent bool) gin.H {
	content := r.Content
	if stripContent {
		content = utils.StripHTML(content)
	}
	return gin.H{
		"id":            r.ID,
		"images":        models.DecodeImages(r.ImageJSON),
		"title":         r.Title,
		"username":      r.Username,
		"avatar":        r.Avatar,
		"category":      r.Category,
		"content":       content,
		"created_at":    r.CreatedAt.UTC().Format(time.RFC3339),
		"is_bookmarked": r.IsBookmarked,
	}
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

// parseRemoveIDs accepts remove_images as repeated form fields or a single
// comma-separated value.
func parseRemoveIDs(c *gin.Context) []int {
	raw := c.PostFormArray("remove_images")
	if len(raw) == 1 && strings.Contains(raw[0], ",") {
		raw = strings.Split(raw[0], ",")
	}

	out := make([]int, 0, len(raw))
	for _, s := range raw {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"message": "book not found"})
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

func saveUpload(store *storage.Store, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return store.SaveBookImage(f, fh.Filename)
}
