package categories

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bookhub/internal/auth"
	"bookhub/pkg/database"
	"bookhub/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(t *testing.T) (*gin.Engine, *sql.DB, string) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(database.Config{Path: dbPath})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	tokens := auth.TokenService{Secret: []byte("test-secret"), Issuer: "bookhub-test", Duration: time.Hour}
	authRepo := auth.NewRepo(db)
	handler := NewHandler(NewRepo(db))

	router := gin.New()
	handler.RegisterPublicRoutes(router.Group("/"))

	protected := router.Group("/")
	protected.Use(auth.AuthRequired(tokens, authRepo))
	handler.RegisterProtectedRoutes(protected)

	// one authenticated user for the mutating routes
	hash, err := bcrypt.GenerateFromPassword([]byte("Sup3rSecret!"), bcrypt.MinCost)
	require.NoError(t, err)
	u := models.User{Name: "Test Admin", Username: "admin1", Email: "admin1@example.com", PasswordHash: string(hash)}
	id, err := authRepo.CreateUser(context.Background(), &u)
	require.NoError(t, err)
	u.ID = id

	token, jti, exp, err := tokens.Sign(&u)
	require.NoError(t, err)
	require.NoError(t, authRepo.CreateToken(context.Background(), jti, id, exp))

	return router, db, token
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func insertCategory(t *testing.T, db *sql.DB, name string) int64 {
	res, err := db.Exec(`INSERT INTO categories (name) VALUES (?)`, name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestListCategories_Envelope(t *testing.T) {
	router, db, _ := setupTestRouter(t)
	for i := 1; i <= 12; i++ {
		insertCategory(t, db, fmt.Sprintf("Category %02d", i))
	}

	w := doJSON(t, router, http.MethodGet, "/categories", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.EqualValues(t, 12, body["total"])
	assert.EqualValues(t, 10, body["per_page"])
	assert.EqualValues(t, 2, body["last_page"])
	assert.Len(t, body["data"].([]any), 10)
}

func TestListCategories_Keyword(t *testing.T) {
	router, db, _ := setupTestRouter(t)
	insertCategory(t, db, "Fantasy")
	insertCategory(t, db, "Horror")
	insertCategory(t, db, "Historical")

	w := doJSON(t, router, http.MethodGet, "/categories?keyword=H", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.EqualValues(t, 2, body["total"])

	names := []string{}
	for _, item := range body["data"].([]any) {
		names = append(names, item.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{"Horror", "Historical"}, names)
}

func TestGetCategory(t *testing.T) {
	router, db, _ := setupTestRouter(t)
	id := insertCategory(t, db, "Fantasy")

	w := doJSON(t, router, http.MethodGet, fmt.Sprintf("/categories/%d", id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Fantasy", decodeBody(t, w)["name"])

	w = doJSON(t, router, http.MethodGet, "/categories/9999", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateCategory(t *testing.T) {
	router, db, token := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/categories", gin.H{"name": "Fantasy"}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "category saved", decodeBody(t, w)["message"])

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM categories WHERE name = 'Fantasy'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCreateCategory_EmptyName(t *testing.T) {
	router, _, token := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/categories", gin.H{"name": "   "}, token)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errs := decodeBody(t, w)["errors"].(map[string]any)
	assert.Contains(t, errs, "name")
}

func TestCreateCategory_RequiresAuth(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/categories", gin.H{"name": "Fantasy"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateCategory(t *testing.T) {
	router, db, token := setupTestRouter(t)
	id := insertCategory(t, db, "Fantasy")

	w := doJSON(t, router, http.MethodPut, fmt.Sprintf("/categories/%d", id), gin.H{"name": "High Fantasy"}, token)
	require.Equal(t, http.StatusOK, w.Code)

	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM categories WHERE id = ?`, id).Scan(&name))
	assert.Equal(t, "High Fantasy", name)

	w = doJSON(t, router, http.MethodPut, "/categories/9999", gin.H{"name": "Ghost"}, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteCategory(t *testing.T) {
	router, db, token := setupTestRouter(t)
	id := insertCategory(t, db, "Fantasy")

	w := doJSON(t, router, http.MethodDelete, fmt.Sprintf("/categories/%d", id), nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/categories/%d", id), nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
