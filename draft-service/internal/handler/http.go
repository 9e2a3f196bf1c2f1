package handler

import (
	"errors"
	"net/http"

	"story-draft-server/draft-service/internal/service"
	"story-draft-server/shared/authutils"
	sharedMiddleware "story-draft-server/shared/middleware"
	"story-draft-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DraftHandler обрабатывает HTTP запросы к хранилищу черновиков.
type DraftHandler struct {
	service  service.DraftService
	logger   *zap.Logger
	verifier *authutils.JWTVerifier
}

// NewDraftHandler создает новый DraftHandler.
func NewDraftHandler(s service.DraftService, logger *zap.Logger, jwtSecret string) *DraftHandler {
	verifier, err := authutils.NewJWTVerifier(jwtSecret, logger)
	if err != nil {
		logger.Fatal("Failed to create JWT Verifier", zap.Error(err))
	}
	return &DraftHandler{
		service:  s,
		logger:   logger.Named("DraftHandler"),
		verifier: verifier,
	}
}

// RegisterRoutes регистрирует маршруты черновиков.
// extra - дополнительные middleware (например, rate limiter), применяемые к группе.
func (h *DraftHandler) RegisterRoutes(router *gin.Engine, extra ...gin.HandlerFunc) {
	authMiddleware := sharedMiddleware.GinAuthMiddleware(h.verifier.VerifyToken, h.logger)

	drafts := router.Group("/api/story-drafts", authMiddleware)
	for _, mw := range extra {
		drafts.Use(mw)
	}
	{
		drafts.GET("", h.getDraft)
		drafts.PUT("", h.saveDraft)
		drafts.PATCH("", h.restoreDraftVersion)
		drafts.DELETE("", h.deleteDraft)
	}
}

// handleServiceError транслирует ошибки сервиса в HTTP статусы.
func (h *DraftHandler) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp models.ErrorResponse

	switch {
	case errors.Is(err, models.ErrEmptySnapshot):
		statusCode = http.StatusBadRequest
		errResp = models.ErrorResponse{Error: "Draft snapshot is empty"}
	case errors.Is(err, models.ErrBadRequest):
		statusCode = http.StatusBadRequest
		errResp = models.ErrorResponse{Error: "Invalid request"}
	case errors.Is(err, models.ErrVersionNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Error: "Draft version not found"}
	case errors.Is(err, models.ErrDraftNotFound), errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Error: "Draft not found"}
	default:
		h.logger.Error("Internal error processing draft request",
			zap.String("path", c.Request.URL.Path), zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = models.ErrorResponse{Error: "Internal server error"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
