package handler

import "story-draft-server/shared/models"

// saveDraftRequest - тело PUT /api/story-drafts.
// Snapshot обязателен; остальные поля провенанса необязательны и
// приводятся к безопасным значениям по умолчанию.
type saveDraftRequest struct {
	DraftKey    string           `json:"draftKey"`
	StoryType   string           `json:"storyType"`
	StoryFormat string           `json:"storyFormat"`
	OwnerWallet string           `json:"ownerWallet"`
	OwnerRole   string           `json:"ownerRole"`
	Snapshot    *models.Snapshot `json:"snapshot"`
	SaveReason  string           `json:"saveReason"`
	MaxVersions int              `json:"maxVersions"`
}

// restoreDraftRequest - тело PATCH /api/story-drafts.
type restoreDraftRequest struct {
	DraftKey    string `json:"draftKey"`
	VersionID   string `json:"versionId"`
	MaxVersions int    `json:"maxVersions"`
}
