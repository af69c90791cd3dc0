// Package handler registers the HTTP routes and translates domain
// outcomes to status codes and the JSON response envelope.
package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"studentadmin/internal/apperr"
	"studentadmin/internal/auth"
	"studentadmin/internal/student"
)

// Handler wires the services into gin routes.
type Handler struct {
	auth     *auth.Service
	students *student.Service
	log      *logrus.Logger
}

// New creates a handler.
func New(authSvc *auth.Service, studentSvc *student.Service, log *logrus.Logger) *Handler {
	return &Handler{auth: authSvc, students: studentSvc, log: log}
}

// Register attaches all API routes to the engine. Student routes run
// behind the guard pipeline: token check for everything, role check for
// mutating methods.
func (h *Handler) Register(r *gin.Engine) {
	authGroup := r.Group("/api/v1/auth")
	authGroup.POST("/register", h.register)
	authGroup.POST("/login", h.login)
	authGroup.POST("/logout", h.logout)

	students := r.Group("/api/v1/students", auth.TokenRequired(h.auth))
	students.GET("", h.list)
	students.GET("/:id", h.read)

	admin := students.Group("", auth.AdminRequired())
	admin.POST("", h.create)
	admin.PUT("/:id", h.update)
	admin.DELETE("/:id", h.remove)
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.BadRequest("invalid request body"))
		return
	}
	if err := h.auth.Register(c.Request.Context(), req.Username, req.Password, req.Role); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "user registered"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, apperr.BadRequest("invalid request body"))
		return
	}
	sess, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "login successful",
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt.Format(time.RFC3339),
		"role":       sess.Role,
	})
}

func (h *Handler) logout(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		h.fail(c, apperr.Unauthorized("missing or malformed bearer token"))
		return
	}
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logout successful"})
}

func (h *Handler) list(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 10)

	result, err := h.students.List(c.Request.Context(), id, page, perPage)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"records":  result.Records,
		"total":    result.Total,
		"page":     result.Page,
		"per_page": result.PerPage,
	})
}

func (h *Handler) create(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	var in student.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, apperr.BadRequest("invalid request body"))
		return
	}
	newID, err := h.students.Create(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "student created", "id": newID})
}

func (h *Handler) read(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	recordID, ok := pathID(c)
	if !ok {
		return
	}
	rec, err := h.students.Read(c.Request.Context(), id, recordID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "record": rec})
}

func (h *Handler) update(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	recordID, ok := pathID(c)
	if !ok {
		return
	}
	var f student.Fields
	if err := c.ShouldBindJSON(&f); err != nil {
		h.fail(c, apperr.BadRequest("invalid request body"))
		return
	}
	if err := h.students.Update(c.Request.Context(), id, recordID, f); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "student updated"})
}

func (h *Handler) remove(c *gin.Context) {
	id, _ := auth.IdentityFrom(c)
	recordID, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.students.Delete(c.Request.Context(), id, recordID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "student deleted"})
}

// fail writes the envelope for a domain error. Internal causes are logged
// with operation detail and surfaced only as a generic message; tokens and
// credentials never reach the log fields.
func (h *Handler) fail(c *gin.Context, err error) {
	if apperr.KindOf(err) == apperr.KindInternal && h.log != nil {
		h.log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).WithError(err).Error("request failed")
	}
	c.JSON(apperr.HTTPStatus(err), gin.H{"success": false, "message": apperr.MessageOf(err)})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "student not found"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func bearerToken(header string) (string, bool) {
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("bearer "):])
	return token, token != ""
}
