package books

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bookhub/internal/auth"
	"bookhub/internal/storage"
	"bookhub/pkg/database"
	"bookhub/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router     *gin.Engine
	db         *sql.DB
	authRepo   *auth.Repo
	tokens     auth.TokenService
	store      *storage.Store
	storageDir string
}

func setupEnv(t *testing.T) *testEnv {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.Open(database.Config{Path: dbPath})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	storageDir := t.TempDir()
	store, err := storage.New(storageDir, "http://localhost:8080")
	require.NoError(t, err)

	tokens := auth.TokenService{Secret: []byte("test-secret"), Issuer: "bookhub-test", Duration: time.Hour}
	authRepo := auth.NewRepo(db)
	handler := NewHandler(NewRepo(db), store, nil)

	router := gin.New()
	public := router.Group("/")
	public.Use(auth.AuthOptional(tokens, authRepo))
	handler.RegisterPublicRoutes(public)

	protected := router.Group("/")
	protected.Use(auth.AuthRequired(tokens, authRepo))
	handler.RegisterProtectedRoutes(protected)

	return &testEnv{
		router:     router,
		db:         db,
		authRepo:   authRepo,
		tokens:     tokens,
		store:      store,
		storageDir: storageDir,
	}
}

func (e *testEnv) createUser(t *testing.T, username string) (int64, string) {
	hash, err := bcrypt.GenerateFromPassword([]byte("Sup3rSecret!"), bcrypt.MinCost)
	require.NoError(t, err)

	u := models.User{
		Name:         "Test " + username,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
	}
	id, err := e.authRepo.CreateUser(context.Background(), &u)
	require.NoError(t, err)
	u.ID = id

	token, jti, exp, err := e.tokens.Sign(&u)
	require.NoError(t, err)
	require.NoError(t, e.authRepo.CreateToken(context.Background(), jti, id, exp))
	return id, token
}

func (e *testEnv) createCategory(t *testing.T, name string) int64 {
	res, err := e.db.Exec(`INSERT INTO categories (name) VALUES (?)`, name)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func (e *testEnv) createBook(t *testing.T, title string, userID, categoryID int64, createdAt time.Time) int64 {
	res, err := e.db.Exec(`
		INSERT INTO books (title, id_user, id_category, content, image, created_at)
		VALUES (?, ?, ?, ?, '[]', ?)
	`, title, userID, categoryID, "<p>content of "+title+"</p>", createdAt.UTC())
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func (e *testEnv) bookmark(t *testing.T, userID, bookID int64) {
	_, err := e.db.Exec(`INSERT INTO bookmarks (id_user, id_book) VALUES (?, ?)`, userID, bookID)
	require.NoError(t, err)
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func titlesOf(data []any) []string {
	out := make([]string, 0, len(data))
	for _, item := range data {
		out = append(out, item.(map[string]any)["title"].(string))
	}
	return out
}

// multipartBody builds a book form with optional image file parts.
func multipartBody(t *testing.T, fields map[string]string, images ...string) (io.Reader, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, name := range images {
		fw, err := mw.CreateFormFile("image", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte("fake image bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestListBooks_NewestAndPagination(t *testing.T) {
	env := setupEnv(t)
	userID, _ := env.createUser(t, "author1")
	catID := env.createCategory(t, "Fantasy")

	base := time.Now().Add(-time.Hour)
	for i := 1; i <= 15; i++ {
		env.createBook(t, fmt.Sprintf("Book %02d", i), userID, catID, base.Add(time.Duration(i)*time.Minute))
	}

	w := env.do(t, http.MethodGet, "/books", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.EqualValues(t, 1, body["current_page"])
	assert.EqualValues(t, 2, body["last_page"])
	assert.EqualValues(t, 12, body["per_page"])
	assert.EqualValues(t, 15, body["total"])

	data := body["data"].([]any)
	require.Len(t, data, 12)
	assert.Equal(t, "Book 15", titlesOf(data)[0])

	w = env.do(t, http.MethodGet, "/books?page=2", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	data = decodeBody(t, w)["data"].([]any)
	require.Len(t, data, 3)
	assert.Equal(t, []string{"Book 03", "Book 02", "Book 01"}, titlesOf(data))
}

func TestListBooks_SortPopular(t *testing.T) {
	env := setupEnv(t)
	authorID, _ := env.createUser(t, "author1")
	fan1, _ := env.createUser(t, "reader1")
	fan2, _ := env.createUser(t, "reader2")
	catID := env.createCategory(t, "Fantasy")

	now := time.Now()
	quiet := env.createBook(t, "Quiet Book", authorID, catID, now)
	hit := env.createBook(t, "Popular Book", authorID, catID, now)
	env.bookmark(t, fan1, hit)
	env.bookmark(t, fan2, hit)
	env.bookmark(t, fan1, quiet)

	w := env.do(t, http.MethodGet, "/books?sort=popular", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Popular Book", "Quiet Book"}, titlesOf(decodeBody(t, w)["data"].([]any)))
}

func TestListBooks_SortAlphabetical(t *testing.T) {
	env := setupEnv(t)
	userID, _ := env.createUser(t, "author1")
	catID := env.createCategory(t, "Fantasy")

	now := time.Now()
	env.createBook(t, "banana", userID, catID, now)
	env.createBook(t, "Apple", userID, catID, now)
	env.createBook(t, "cherry", userID, catID, now)

	w := env.do(t, http.MethodGet, "/books?sort=a-z", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Apple", "banana", "cherry"}, titlesOf(decodeBody(t, w)["data"].([]any)))

	w = env.do(t, http.MethodGet, "/books?sort=z-a", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"cherry", "banana", "Apple"}, titlesOf(decodeBody(t, w)["data"].([]any)))
}

func TestListBooks_KeywordMatchesTitleAndAuthor(t *testing.T) {
	env := setupEnv(t)
	authorID, _ := env.createUser(t, "tolkien")
	otherID, _ := env.createUser(t, "austen")
	catID := env.createCategory(t, "Fantasy")

	now := time.Now()
	env.createBook(t, "The Hobbit", authorID, catID, now)
	env.createBook(t, "Emma", otherID, catID, now)

	w := env.do(t, http.MethodGet, "/books?keyword=hobbit", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"The Hobbit"}, titlesOf(decodeBody(t, w)["data"].([]any)))

	// author username also matches
	w = env.do(t, http.MethodGet, "/books?keyword=tolkien", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"The Hobbit"}, titlesOf(decodeBody(t, w)["data"].([]any)))
}

func TestListBooks_StripsHTMLAndMarksBookmarks(t *testing.T) {
	env := setupEnv(t)
	authorID, _ := env.createUser(t, "author1")
	readerID, readerToken := env.createUser(t, "reader1")
	catID := env.createCategory(t, "Fantasy")

	bookID := env.createBook(t, "Tagged Book", authorID, catID, time.Now())
	env.bookmark(t, readerID, bookID)

	// anonymous browse
	w := env.do(t, http.MethodGet, "/books", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	item := decodeBody(t, w)["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "content of Tagged Book", item["content"])
	assert.Equal(t, false, item["is_bookmarked"])

	// authenticated browse sees the bookmark
	w = env.do(t, http.MethodGet, "/books", nil, "", readerToken)
	require.Equal(t, http.StatusOK, w.Code)
	item = decodeBody(t, w)["data"].([]any)[0].(map[string]any)
	assert.Equal(t, true, item["is_bookmarked"])
}

func TestGetBook_WithRelated(t *testing.T) {
	env := setupEnv(t)
	userID, _ := env.createUser(t, "author1")
	catID := env.createCategory(t, "Fantasy")
	otherCat := env.createCategory(t, "Horror")

	now := time.Now()
	mainID := env.createBook(t, "Main Book", userID, catID, now)
	env.createBook(t, "Same Category", userID, catID, now)
	env.createBook(t, "Other Category", userID, otherCat, now)

	w := env.do(t, http.MethodGet, fmt.Sprintf("/books/%d", mainID), nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "Main Book", body["title"])
	assert.Equal(t, "author1", body["username"])
	// detail keeps the raw HTML
	assert.Equal(t, "<p>content of Main Book</p>", body["content"])

	related := body["related_books"].([]any)
	require.Len(t, related, 1)
	assert.Equal(t, "Same Category", related[0].(map[string]any)["title"])
}

func TestGetBook_NotFound(t *testing.T) {
	env := setupEnv(t)

	w := env.do(t, http.MethodGet, "/books/9999", nil, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/books/abc", nil, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateBook_Multipart(t *testing.T) {
	env := setupEnv(t)
	userID, token := env.createUser(t, "author1")
	catID := env.createCategory(t, "Fantasy")

	body, ct := multipartBody(t, map[string]string{
		"title":       "New Book",
		"content":     "<p>hello</p>",
		"id_category": fmt.Sprintf("%d", catID),
	}, "cover.jpg", "back.png")

	w := env.do(t, http.MethodPost, "/books", body, ct, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "book saved", decodeBody(t, w)["message"])

	var imageJSON string
	var owner int64
	require.NoError(t, env.db.QueryRow(`SELECT image, id_user FROM books WHERE title = 'New Book'`).Scan(&imageJSON, &owner))
	assert.Equal(t, userID, owner)

	images := models.DecodeImages(imageJSON)
	require.Len(t, images, 2)
	assert.Equal(t, 1, images[0].ID)
	assert.Equal(t, 2, images[1].ID)

	// the files landed under the books prefix
	entries, err := os.ReadDir(filepath.Join(env.storageDir, "books"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestCreateBook_Validation(t *testing.T) {
	env := setupEnv(t)
	_, token := env.createUser(t, "author1")

	body, ct := multipartBody(t, map[string]string{
		"title":       "",
		"content":     "",
		"id_category": "9999",
	})

	w := env.do(t, http.MethodPost, "/books", body, ct, token)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	errs := decodeBody(t, w)["errors"].(map[string]any)
	assert.Contains(t, errs, "title")
	assert.Contains(t, errs, "content")
	assert.Contains(t, errs, "id_category")
}

func TestCreateBook_RejectsBadImageType(t *testing.T) {
	env := setupEnv(t)
	_, token := env.createUser(t, "author1")
	catID := env.createCategory(t, "Fantasy")

	body, ct := multipartBody(t, map[string]string{
		"title":       "New Book",
		"content":     "text",
		"id_category": fmt.Sprintf("%d", catID),
	}, "malware.exe")

	w := env.do(t, http.MethodPost, "/books", body, ct, token)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	errs := decodeBody(t, w)["errors"].(map[string]any)
	assert.Contains(t, errs, "image")
}

func TestCreateBook_RequiresAuth(t *testing.T) {
	env := setupEnv(t)

	body, ct := multipartBody(t, map[string]string{"title": "New Book"})
	w := env.do(t, http.MethodPost, "/books", body, ct, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUpdateBook_PartialByOwner(t *testing.T) {
	env := setupEnv(t)
	userID, token := env.createUser(t, "author1")
	catID := env.createCategory(t, "Fantasy")
	bookID := env.createBook(t, "Old Title", userID, catID, time.Now())

	body, ct := multipartBody(t, map[string]string{"title": "New Title"})
	w := env.do(t, http.MethodPut, fmt.Sprintf("/books/%d", bookID), body, ct, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	book := decodeBody(t, w)["book"].(map[string]any)
	assert.Equal(t, "New Title", book["title"])
	// untouched fields survive
	assert.Equal(t, "<p>content of Old Title</p>", book["content"])
}

func TestUpdateBook_NonOwnerForbidden(t *testing.T) {
	env := setupEnv(t)
	ownerID, _ := env.createUser(t, "author1")
	_, intruderToken := env.createUser(t, "intruder")
	catID := env.createCategory(t, "Fantasy")
	bookID := env.createBook(t, "Owned Book", ownerID, catID, time.Now())

	body, ct := multipartBody(t, map[string]string{"title": "Hijacked"})
	w := env.do(t, http.MethodPut, fmt.Sprintf("/books/%d", bookID), body, ct, intruderToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateBook_RemoveAndAddImages(t *testing.T) {
	env := setupEnv(t)
	_, token := env.createUser(t, "author1")
	catID := env.createCategory(t, "Fantasy")

	// create with two images through the handler so files exist on disk
	body, ct := multipartBody(t, map[string]string{
		"title":       "Picture Book",
		"content":     "text",
		"id_category": fmt.Sprintf("%d", catID),
	}, "one.jpg", "two.jpg")
	w := env.do(t, http.MethodPost, "/books", body, ct, token)
	require.Equal(t, http.StatusCreated, w.Code)

	var bookID int64
	require.NoError(t, env.db.QueryRow(`SELECT id FROM books WHERE title = 'Picture Book'`).Scan(&bookID))

	// drop image 1, add a new one
	body, ct = multipartBody(t, map[string]string{"remove_images": "1"}, "three.jpg")
	w = env.do(t, http.MethodPut, fmt.Sprintf("/books/%d", bookID), body, ct, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	images := decodeBody(t, w)["book"].(map[string]any)["images"].([]any)
	require.Len(t, images, 2)
	ids := []float64{
		images[0].(map[string]any)["id"].(float64),
		images[1].(map[string]any)["id"].(float64),
	}
	// surviving id 2 plus the new max+1
	assert.Equal(t, []float64{2, 3}, ids)

	// the removed file is gone from disk, two remain
	entries, err := os.ReadDir(filepath.Join(env.storageDir, "books"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDeleteBook_CascadesBookmarks(t *testing.T) {
	env := setupEnv(t)
	ownerID, token := env.createUser(t, "author1")
	readerID, _ := env.createUser(t, "reader1")
	catID := env.createCategory(t, "Fantasy")
	bookID := env.createBook(t, "Doomed Book", ownerID, catID, time.Now())
	env.bookmark(t, readerID, bookID)

	w := env.do(t, http.MethodDelete, fmt.Sprintf("/books/%d", bookID), nil, "", token)
	require.Equal(t, http.StatusOK, w.Code)

	var books, bookmarks int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM books`).Scan(&books))
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM bookmarks`).Scan(&bookmarks))
	assert.Zero(t, books)
	assert.Zero(t, bookmarks)
}

func TestDeleteBook_NonOwnerForbidden(t *testing.T) {
	env := setupEnv(t)
	ownerID, _ := env.createUser(t, "author1")
	_, intruderToken := env.createUser(t, "intruder")
	catID := env.createCategory(t, "Fantasy")
	bookID := env.createBook(t, "Owned Book", ownerID, catID, time.Now())

	w := env.do(t, http.MethodDelete, fmt.Sprintf("/books/%d", bookID), nil, "", intruderToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBooksByUser_OwnBooksPaginated(t *testing.T) {
	env := setupEnv(t)
	userID, token := env.createUser(t, "author1")
	otherID, _ := env.createUser(t, "author2")
	catID := env.createCategory(t, "Fantasy")

	base := time.Now().Add(-time.Hour)
	for i := 1; i <= 6; i++ {
		env.createBook(t, fmt.Sprintf("Mine %d", i), userID, catID, base.Add(time.Duration(i)*time.Minute))
	}
	env.createBook(t, "Not Mine", otherID, catID, time.Now())

	w := env.do(t, http.MethodGet, "/books-users", nil, "", token)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.EqualValues(t, 6, body["total"])
	assert.EqualValues(t, 4, body["per_page"])
	assert.EqualValues(t, 2, body["last_page"])

	data := body["data"].([]any)
	require.Len(t, data, 4)
	for _, item := range data {
		assert.True(t, strings.HasPrefix(item.(map[string]any)["title"].(string), "Mine"))
	}
}

func TestBooksByCategory_Grouped(t *testing.T) {
	env := setupEnv(t)
	userID, _ := env.createUser(t, "author1")
	fantasy := env.createCategory(t, "Fantasy")
	horror := env.createCategory(t, "Horror")

	now := time.Now()
	env.createBook(t, "Fantasy One", userID, fantasy, now)
	env.createBook(t, "Fantasy Two", userID, fantasy, now)
	env.createBook(t, "Horror One", userID, horror, now)

	w := env.do(t, http.MethodGet, "/books-category", nil, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.EqualValues(t, 3, body["total_books"])

	groups := body["data"].([]any)
	require.Len(t, groups, 2)

	first := groups[0].(map[string]any)
	assert.Equal(t, "Fantasy", first["category_name"])
	assert.Len(t, first["books"].([]any), 2)

	second := groups[1].(map[string]any)
	assert.Equal(t, "Horror", second["category_name"])
	assert.Len(t, second["books"].([]any), 1)
}
