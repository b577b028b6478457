package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"linkshorty/internal/apperr"
	"linkshorty/internal/auth"
	"linkshorty/internal/domain"
	"linkshorty/internal/service"
)

// Version is reported by the service banner.
const Version = "1.0.0"

// Handler wires HTTP routes to the auth flow.
type Handler struct {
	users  service.UserService
	guard  *auth.Guard
	logger *logrus.Logger
	debug  bool
}

// NewHandler builds the HTTP layer. With debug set, internal error details
// are included in 500 responses.
func NewHandler(users service.UserService, guard *auth.Guard, logger *logrus.Logger, debug bool) *Handler {
	return &Handler{
		users:  users,
		guard:  guard,
		logger: logger,
		debug:  debug,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	// the access log wraps recovery so recovered panics are logged with their 500
	router.Use(h.requestLogger(), h.recovery(), corsMiddleware())

	router.GET("/", h.banner)

	api := router.Group("/api/auth")
	{
		api.POST("/register", h.register)
		api.POST("/login", h.login)
		api.GET("/profile", h.requireAuth(), h.profile)
	}

	router.NoRoute(h.notFound)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string          `json:"message"`
	User    domain.Identity `json:"user"`
	Token   string          `json:"token"`
}

type profileResponse struct {
	User domain.Identity `json:"user"`
}

func (h *Handler) register(c *gin.Context) {
	req, ok := h.bindCredentials(c)
	if !ok {
		return
	}

	result, err := h.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, authResponse{
		Message: "User registered successfully",
		User:    result.User,
		Token:   result.Token,
	})
}

func (h *Handler) login(c *gin.Context) {
	req, ok := h.bindCredentials(c)
	if !ok {
		return
	}

	result, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, authResponse{
		Message: "Login successful",
		User:    result.User,
		Token:   result.Token,
	})
}

func (h *Handler) profile(c *gin.Context) {
	var identity *domain.Identity
	if id, ok := auth.IdentityFromContext(c.Request.Context()); ok {
		identity = &id
	}

	user, err := h.users.Profile(identity)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, profileResponse{User: user})
}

func (h *Handler) banner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "LinkShorty Backend API",
		"version": Version,
		"endpoints": gin.H{
			"auth": gin.H{
				"register": "POST /api/auth/register",
				"login":    "POST /api/auth/login",
				"profile":  "GET /api/auth/profile",
			},
		},
	})
}

func (h *Handler) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"message": "Route not found",
		"path":    c.Request.URL.RequestURI(),
	})
}

// bindCredentials decodes the JSON body. An empty body decodes to the zero
// request so the service reports each missing field.
func (h *Handler) bindCredentials(c *gin.Context) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(c, apperr.Validation([]apperr.FieldError{{
			Field:   "body",
			Message: "Request body must be a JSON object with string username and password",
		}}))
		return credentialsRequest{}, false
	}
	return req, true
}
