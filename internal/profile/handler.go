package profile

import (
	"log"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"bookhub/internal/auth"
	"bookhub/internal/storage"
	"bookhub/pkg/models"
)

type Handler struct {
	Repo  *Repo
	Store *storage.Store
}

func NewHandler(repo *Repo, store *storage.Store) *Handler {
	return &Handler{Repo: repo, Store: store}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/user", h.getUser)
	rg.PUT("/edit-profile", h.editProfile)
	rg.POST("/upload-image", h.uploadImage)
}

func (h *Handler) getUser(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	u, err := h.Repo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "get user failed", "error": err.Error()})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "user not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": userBody(u)})
}

type editProfileReq struct {
	Name               *string `json:"name"`
	AboutMe            *string `json:"about_me"`
	CurrentPassword    *string `json:"current_password"`
	NewPassword        *string `json:"new_password"`
	ConfirmNewPassword *string `json:"new_password_confirmation"`
}

// editProfile applies a partial update: only keys present in the body
// change anything.
func (h *Handler) editProfile(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req editProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "invalid json"})
		return
	}

	errs := map[string]string{}
	if req.Name != nil && (strings.TrimSpace(*req.Name) == "" || len(*req.Name) > 50) {
		errs["name"] = "name must be 1-50 characters"
	}
	if req.AboutMe != nil && len(*req.AboutMe) > 500 {
		errs["about_me"] = "about me must not exceed 500 characters"
	}
	if req.NewPassword != nil {
		if req.CurrentPassword == nil {
			errs["current_password"] = "current password is required to change the password"
		}
		if msg := passwordIssue(*req.NewPassword); msg != "" {
			errs["new_password"] = msg
		}
		if req.ConfirmNewPassword == nil || *req.ConfirmNewPassword != *req.NewPassword {
			errs["new_password_confirmation"] = "the new password confirmation does not match"
		}
	}
	if len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "validation failed", "errors": errs})
		return
	}

	u, err := h.Repo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil || u == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "get user failed"})
		return
	}

	var fields Fields
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		fields.Name = &name
	}
	fields.AboutMe = req.AboutMe

	if req.NewPassword != nil {
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(*req.CurrentPassword)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "the current password is incorrect"})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "hash failed"})
			return
		}
		hashed := string(hash)
		fields.PasswordHash = &hashed
	}

	if err := h.Repo.UpdateProfile(c.Request.Context(), claims.UserID, fields); err != nil {
		log.Printf("update profile: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to update profile", "error": err.Error()})
		return
	}

	saved, err := h.Repo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil || saved == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "profile updated", "data": userBody(saved)})
}

func (h *Handler) uploadImage(c *gin.Context) {
	claims := auth.MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	fh, err := c.FormFile("avatar_image")
	if err != nil {
		// no file is not an error for this endpoint
		c.JSON(http.StatusOK, gin.H{"message": "no avatar uploaded"})
		return
	}

	if err := storage.CheckImage(fh); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "validation failed",
			"errors":  gin.H{"avatar_image": err.Error()},
		})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to upload avatar", "error": err.Error()})
		return
	}
	defer f.Close()

	url, err := h.Store.SaveAvatar(f, fh.Filename)
	if err != nil {
		log.Printf("save avatar: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to upload avatar", "error": err.Error()})
		return
	}

	if err := h.Repo.UpdateAvatar(c.Request.Context(), claims.UserID, url); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to upload avatar", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "avatar uploaded",
		"data":    gin.H{"image_url": url},
	})
}

func userBody(u *models.User) gin.H {
	return gin.H{
		"id":           u.ID,
		"name":         u.Name,
		"username":     u.Username,
		"email":        u.Email,
		"about_me":     u.AboutMe,
		"avatar_image": u.AvatarImage,
		"created_at":   u.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":   u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func passwordIssue(s string) string {
	if len(s) < 8 || len(s) > 72 {
		return "password must be 8-72 characters"
	}
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune("@$!#%*?&", r):
			symbol = true
		}
	}
	if !lower || !upper || !digit || !symbol {
		return "password must include at least one uppercase letter, one lowercase letter, one number and one symbol"
	}
	return ""
}
