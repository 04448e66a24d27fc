package auth

import (
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"bookhub/pkg/models"
)

type Handler struct {
	Repo   *Repo
	Tokens TokenService
}

func NewHandler(repo *Repo, tokens TokenService) *Handler {
	return &Handler{Repo: repo, Tokens: tokens}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.register)
	rg.POST("/login", h.login)
	rg.POST("/logout", AuthRequired(h.Tokens, h.Repo), h.logout)
}

type registerReq struct {
	Name            string `json:"name"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "invalid json"})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	errs := map[string]string{}
	if len(req.Name) < 4 {
		errs["name"] = "name must be at least 4 characters"
	}
	if len(req.Username) < 4 {
		errs["username"] = "username must be at least 4 characters"
	}
	if !strings.Contains(req.Email, "@") || len(req.Email) > 50 {
		errs["email"] = "a valid email of at most 50 characters is required"
	}
	if msg := passwordIssue(req.Password); msg != "" {
		errs["password"] = msg
	}
	if req.ConfirmPassword != req.Password {
		errs["confirm_password"] = "the confirmation must match the password"
	}

	// uniqueness checks only once the fields themselves are valid
	if len(errs) == 0 {
		if u, _ := h.Repo.GetByEmail(c.Request.Context(), req.Email); u != nil {
			errs["email"] = "email already taken"
		}
		if u, _ := h.Repo.GetByUsername(c.Request.Context(), req.Username); u != nil {
			errs["username"] = "username already taken"
		}
	}
	if len(errs) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "validation failed", "errors": errs})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "hash failed"})
		return
	}

	u := models.User{
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	}

	id, err := h.Repo.CreateUser(c.Request.Context(), &u)
	if err != nil {
		// SQLite unique constraint will also trigger here in races
		c.JSON(http.StatusInternalServerError, gin.H{"message": "create user failed", "error": err.Error()})
		return
	}
	u.ID = id

	// auto-login
	token, jti, exp, err := h.Tokens.Sign(&u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "token failed"})
		return
	}
	if err := h.Repo.CreateToken(c.Request.Context(), jti, u.ID, exp); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "token failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "user registered",
		"user": gin.H{
			"id":       u.ID,
			"name":     u.Name,
			"username": u.Username,
			"email":    u.Email,
		},
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

type loginReq struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "invalid json"})
		return
	}

	login := strings.TrimSpace(req.UsernameOrEmail)
	if login == "" || req.Password == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"message": "validation failed",
			"errors":  gin.H{"username_or_email": "username or email and password are required"},
		})
		return
	}

	var (
		u   *models.User
		err error
	)
	if strings.Contains(login, "@") {
		u, err = h.Repo.GetByEmail(c.Request.Context(), login)
	} else {
		u, err = h.Repo.GetByUsername(c.Request.Context(), login)
	}
	if err != nil || u == nil {
		// don't reveal which part failed
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, jti, exp, err := h.Tokens.Sign(u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "token failed"})
		return
	}
	if err := h.Repo.CreateToken(c.Request.Context(), jti, u.ID, exp); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "token failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "login successful",
		"user": gin.H{
			"id":       u.ID,
			"name":     u.Name,
			"username": u.Username,
			"email":    u.Email,
		},
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) logout(c *gin.Context) {
	claims := MustGetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if err := h.Repo.DeleteToken(c.Request.Context(), claims.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "logout failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logout success"})
}

// passwordIssue mirrors the registration password policy: at least 8 chars
// with lowercase, uppercase, digit and one of @$!#%*?&.
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
