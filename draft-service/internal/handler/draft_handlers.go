package handler

import (
	"net/http"

	"story-draft-server/draft-service/internal/service"
	"story-draft-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getDraft обрабатывает GET /api/story-drafts?draftKey=...&ownerWallet=...
func (h *DraftHandler) getDraft(c *gin.Context) {
	draftKey := c.Query("draftKey")
	ownerWallet := c.Query("ownerWallet")

	rec, err := h.service.GetDraft(c.Request.Context(), draftKey, ownerWallet)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DraftResponse{Draft: rec})
}

// saveDraft обрабатывает PUT /api/story-drafts.
// Отвечает 201 при неявном создании записи и 200 при обновлении.
func (h *DraftHandler) saveDraft(c *gin.Context) {
	var req saveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind save draft request", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Snapshot == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Draft snapshot is required"})
		return
	}

	cmd := service.SaveDraftCommand{
		DraftKey:    req.DraftKey,
		StoryType:   req.StoryType,
		StoryFormat: req.StoryFormat,
		OwnerWallet: req.OwnerWallet,
		OwnerRole:   req.OwnerRole,
		Snapshot:    *req.Snapshot,
		SaveReason:  req.SaveReason,
		MaxVersions: req.MaxVersions,
	}

	rec, created, err := h.service.SaveDraft(c.Request.Context(), cmd)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, models.DraftResponse{Draft: rec})
}

// restoreDraftVersion обрабатывает PATCH /api/story-drafts.
func (h *DraftHandler) restoreDraftVersion(c *gin.Context) {
	var req restoreDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind restore draft request", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	rec, err := h.service.RestoreDraftVersion(c.Request.Context(), req.DraftKey, req.VersionID, req.MaxVersions)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DraftResponse{Draft: rec})
}

// deleteDraft обрабатывает DELETE /api/story-drafts?draftKey=...
// Удаление идемпотентно: несуществующий ключ тоже дает success.
func (h *DraftHandler) deleteDraft(c *gin.Context) {
	draftKey := c.Query("draftKey")

	if err := h.service.DeleteDraft(c.Request.Context(), draftKey); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}
