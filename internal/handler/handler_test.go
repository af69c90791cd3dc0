package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentadmin/internal/auth"
	"studentadmin/internal/config"
	"studentadmin/internal/store"
	"studentadmin/internal/student"
)

var testDBSeq int

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDBSeq++
	dsn := fmt.Sprintf("file:handlertest%d?mode=memory&cache=shared", testDBSeq)
	db, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	authSvc := auth.NewService(auth.NewRepository(db), time.Hour, config.RegistrationBootstrap)
	studentSvc := student.NewService(student.NewRepository(db), 100)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	r := gin.New()
	New(authSvc, studentSvc, log).Register(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func loginAs(t *testing.T, r *gin.Engine, username, password, role string) string {
	t.Helper()
	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "",
		gin.H{"username": username, "password": password, "role": role})
	require.Equal(t, http.StatusCreated, w.Code)

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "",
		gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "",
		gin.H{"username": "ana", "password": "secret"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, true, body["success"])

	w, body = doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "",
		gin.H{"username": "ana", "password": "other"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["message"])

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "",
		gin.H{"username": "", "password": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginEndpoint(t *testing.T) {
	r := newTestRouter(t)
	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "",
		gin.H{"username": "ana", "password": "secret", "role": "admin"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "",
		gin.H{"username": "ana", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", body["role"])

	expires, ok := body["expires_at"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, expires)
	assert.NoError(t, err)

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "",
		gin.H{"username": "ana", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	r := newTestRouter(t)
	token := loginAs(t, r, "ana", "secret", "user")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Token "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w2, _ := doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w2.Code)

	w2, _ = doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestStudentRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodGet, "/api/v1/students", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/students", "made-up-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStudentCRUDRoundTrip(t *testing.T) {
	r := newTestRouter(t)
	adminToken := loginAs(t, r, "boss", "secret", "admin")

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/students", adminToken,
		gin.H{"name": "Ana", "enrollment_number": "123", "course": "CS", "email": "ANA@X.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := int64(body["id"].(float64))
	require.NotZero(t, id)

	w, body = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/students/%d", id), adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rec := body["record"].(map[string]any)
	assert.Equal(t, "ana@x.com", rec["email"])
	assert.Equal(t, "Ana", rec["name"])

	w, _ = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/students/%d", id), adminToken,
		gin.H{"course": "Math"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, body = doJSON(t, r, http.MethodGet, "/api/v1/students?page=1&per_page=10", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, 10, body["per_page"])

	w, _ = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/students/%d", id), adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/students/%d", id), adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentErrorStatuses(t *testing.T) {
	r := newTestRouter(t)
	adminToken := loginAs(t, r, "boss", "secret", "admin")

	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/students", adminToken,
		gin.H{"name": "Ana", "enrollment_number": "12x", "course": "CS", "email": "ana@x.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/students", adminToken,
		gin.H{"name": "Ana", "enrollment_number": "123", "course": "CS", "email": "ana@x.com"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/students", adminToken,
		gin.H{"name": "Bia", "enrollment_number": "123", "course": "Math", "email": "bia@x.com"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, false, body["success"])

	w, _ = doJSON(t, r, http.MethodPut, "/api/v1/students/999", adminToken, gin.H{"course": "Math"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/v1/students/999", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/students/not-a-number", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMutationsRequireAdmin(t *testing.T) {
	r := newTestRouter(t)
	userToken := loginAs(t, r, "ana", "secret", "user")

	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/students", userToken,
		gin.H{"name": "Ana", "enrollment_number": "123", "course": "CS", "email": "ana@x.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = doJSON(t, r, http.MethodPut, "/api/v1/students/1", userToken, gin.H{"course": "Math"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/v1/students/1", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Read-only routes stay open to the user role.
	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/students", userToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExpiredTokenOverHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	testDBSeq++
	dsn := fmt.Sprintf("file:handlertest%d?mode=memory&cache=shared", testDBSeq)
	db, err := store.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// Issue a very short-lived token and wait it out.
	authSvc := auth.NewService(auth.NewRepository(db), time.Millisecond, config.RegistrationBootstrap)
	studentSvc := student.NewService(student.NewRepository(db), 100)
	r := gin.New()
	New(authSvc, studentSvc, nil).Register(r)

	token := loginAs(t, r, "ana", "secret", "user")
	time.Sleep(5 * time.Millisecond)

	w, body := doJSON(t, r, http.MethodGet, "/api/v1/students", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, false, body["success"])
}
