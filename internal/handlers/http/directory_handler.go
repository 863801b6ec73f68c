package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
	"github.com/hftl-ims-research/wonder/internal/core/services"
	"github.com/hftl-ims-research/wonder/internal/infrastructure/middleware"
)

// DirectoryHandler serves the identity directory API.
type DirectoryHandler struct {
	repo        ports.DirectoryRepository
	authService services.AuthService
	logger      *zap.SugaredLogger
}

func NewDirectoryHandler(repo ports.DirectoryRepository, authService services.AuthService, logger *zap.SugaredLogger) *DirectoryHandler {
	return &DirectoryHandler{
		repo:        repo,
		authService: authService,
		logger:      logger,
	}
}

func (h *DirectoryHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.POST("/api/v1/login", h.Login)

	api := router.Group("/api/v1")
	{
		api.GET("/identities/:id", h.Lookup)
	}

	authed := router.Group("/api/v1")
	authed.Use(middleware.AuthMiddleware(h.authService))
	{
		authed.POST("/identities", h.Register)
		authed.DELETE("/identities/:id", h.Remove)
	}
}

func (h *DirectoryHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Login validates the identity's directory password and issues an access
// token.
func (h *DirectoryHandler) Login(c *gin.Context) {
	var req struct {
		RtcIdentity string `json:"rtcIdentity" binding:"required"`
		Password    string `json:"password"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records, err := h.repo.Lookup(c.Request.Context(), req.RtcIdentity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// first registration of an identity needs no prior record
	if len(records) > 0 && records[0].Password != "" && records[0].Password != req.Password {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.authService.GenerateToken(req.RtcIdentity)
	if err != nil {
		h.logger.Errorw("token generation failed", "rtc_identity", req.RtcIdentity, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *DirectoryHandler) Register(c *gin.Context) {
	var record domain.DirectoryRecord
	if err := c.BindJSON(&record); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// a token only authorizes registering its own identity
	if caller := c.GetString("rtc_identity"); caller != "" && caller != record.RtcIdentity {
		c.JSON(http.StatusForbidden, gin.H{"error": "token does not match identity"})
		return
	}
	if record.RtcIdentity == "" || record.TransportSelector == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rtcIdentity and transportSelector are required"})
		return
	}

	if err := h.repo.Register(c.Request.Context(), record); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Infow("identity registered",
		"rtc_identity", record.RtcIdentity, "selector", record.TransportSelector)
	c.JSON(http.StatusCreated, gin.H{"record": record})
}

func (h *DirectoryHandler) Lookup(c *gin.Context) {
	rtcIdentity := c.Param("id")

	records, err := h.repo.Lookup(c.Request.Context(), rtcIdentity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return
	}

	// passwords never leave the directory
	for i := range records {
		records[i].Password = ""
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *DirectoryHandler) Remove(c *gin.Context) {
	rtcIdentity := c.Param("id")

	if caller := c.GetString("rtc_identity"); caller != "" && caller != rtcIdentity {
		c.JSON(http.StatusForbidden, gin.H{"error": "token does not match identity"})
		return
	}

	if err := h.repo.Remove(c.Request.Context(), rtcIdentity); err != nil {
		if errors.Is(err, domain.ErrIdentityNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": rtcIdentity})
}
