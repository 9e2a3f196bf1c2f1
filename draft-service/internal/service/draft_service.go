package service

import (
	"context"
	"strings"
	"time"

	"story-draft-server/draft-service/internal/messaging"
	"story-draft-server/draft-service/internal/repository"
	"story-draft-server/shared/models"

	"go.uber.org/zap"
)

// SaveDraftCommand - входные данные операции сохранения, уже декодированные
// из HTTP-запроса, но еще не нормализованные.
type SaveDraftCommand struct {
	DraftKey    string
	StoryType   string
	StoryFormat string
	OwnerWallet string
	OwnerRole   string
	Snapshot    models.Snapshot
	SaveReason  string
	MaxVersions int
}

// DraftService определяет бизнес-логику работы с черновиками.
type DraftService interface {
	GetDraft(ctx context.Context, draftKey, ownerWallet string) (*models.DraftRecord, error)
	SaveDraft(ctx context.Context, cmd SaveDraftCommand) (*models.DraftRecord, bool, error)
	RestoreDraftVersion(ctx context.Context, draftKey, versionID string, maxVersions int) (*models.DraftRecord, error)
	DeleteDraft(ctx context.Context, draftKey string) error
}

// Compile-time check
var _ DraftService = (*draftService)(nil)

type draftService struct {
	repo      repository.DraftRepository
	cache     repository.DraftCache
	publisher messaging.DraftEventPublisher
	logger    *zap.Logger
}

// NewDraftService создает сервис черновиков. cache и publisher опциональны:
// nil отключает кэширование и публикацию событий соответственно.
func NewDraftService(
	repo repository.DraftRepository,
	cache repository.DraftCache,
	publisher messaging.DraftEventPublisher,
	logger *zap.Logger,
) DraftService {
	return &draftService{
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		logger:    logger.Named("DraftService"),
	}
}

// GetDraft возвращает запись по ключу, опционально сужая поиск по владельцу.
func (s *draftService) GetDraft(ctx context.Context, draftKey, ownerWallet string) (*models.DraftRecord, error) {
	draftKey = strings.TrimSpace(draftKey)
	if draftKey == "" {
		return nil, models.ErrBadRequest
	}
	ownerWallet = strings.ToLower(strings.TrimSpace(ownerWallet))

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, draftKey)
		if err == nil && cached != nil {
			if ownerWallet == "" || cached.OwnerWallet == ownerWallet {
				s.logger.Debug("Draft served from cache", zap.String("draftKey", draftKey))
				return cached, nil
			}
			// Владелец не совпал: кэш не авторитетен для скоупинга, идем в базу.
		}
	}

	rec, err := s.repo.GetByKey(ctx, draftKey, ownerWallet)
	if err != nil {
		return nil, err
	}
	s.cacheRecord(ctx, rec)
	return rec, nil
}

// SaveDraft нормализует снапшот и выполняет идемпотентный upsert.
// Пустые после нормализации снапшоты отклоняются: пустые черновики не сохраняются.
func (s *draftService) SaveDraft(ctx context.Context, cmd SaveDraftCommand) (*models.DraftRecord, bool, error) {
	draftKey := strings.TrimSpace(cmd.DraftKey)
	if draftKey == "" {
		return nil, false, models.ErrBadRequest
	}

	now := time.Now().UnixMilli()
	snap := models.NormalizeSnapshot(cmd.Snapshot, now)
	if !snap.HasMeaningfulContent() {
		return nil, false, models.ErrEmptySnapshot
	}

	storyType := strings.TrimSpace(cmd.StoryType)
	if storyType == "" {
		storyType = "text"
	}
	storyFormat := strings.TrimSpace(cmd.StoryFormat)
	if storyFormat == "" {
		storyFormat = "free"
	}

	params := repository.SaveDraftParams{
		DraftKey:    draftKey,
		StoryType:   storyType,
		StoryFormat: storyFormat,
		OwnerWallet: strings.ToLower(strings.TrimSpace(cmd.OwnerWallet)),
		OwnerRole:   models.NormalizeOwnerRole(models.OwnerRole(cmd.OwnerRole)),
		Snapshot:    snap,
		Reason:      models.NormalizeSaveReason(models.SaveReason(cmd.SaveReason)),
		MaxVersions: models.NormalizeVersionLimit(cmd.MaxVersions),
	}

	rec, created, err := s.repo.Save(ctx, params)
	if err != nil {
		return nil, false, err
	}
	s.cacheRecord(ctx, rec)
	s.publishSaved(ctx, rec, params.Reason, created)
	return rec, created, nil
}

// RestoreDraftVersion продвигает версию из истории в current.
func (s *draftService) RestoreDraftVersion(ctx context.Context, draftKey, versionID string, maxVersions int) (*models.DraftRecord, error) {
	draftKey = strings.TrimSpace(draftKey)
	versionID = strings.TrimSpace(versionID)
	if draftKey == "" || versionID == "" {
		return nil, models.ErrBadRequest
	}

	rec, err := s.repo.RestoreVersion(ctx, draftKey, versionID, models.NormalizeVersionLimit(maxVersions))
	if err != nil {
		return nil, err
	}
	s.cacheRecord(ctx, rec)
	return rec, nil
}

// DeleteDraft удаляет запись. Идемпотентен: несуществующий ключ не ошибка.
func (s *draftService) DeleteDraft(ctx context.Context, draftKey string) error {
	draftKey = strings.TrimSpace(draftKey)
	if draftKey == "" {
		return models.ErrBadRequest
	}
	if err := s.repo.Delete(ctx, draftKey); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, draftKey); err != nil {
			s.logger.Warn("Failed to invalidate draft cache after delete", zap.String("draftKey", draftKey), zap.Error(err))
		}
	}
	return nil
}

// cacheRecord обновляет кэш. Ошибки кэша не влияют на результат операции.
func (s *draftService) cacheRecord(ctx context.Context, rec *models.DraftRecord) {
	if s.cache == nil || rec == nil {
		return
	}
	if err := s.cache.Set(ctx, rec); err != nil {
		s.logger.Warn("Failed to cache draft record", zap.String("draftKey", rec.DraftKey), zap.Error(err))
	}
}

// publishSaved отправляет событие сохранения. Публикация best-effort:
// отказ брокера не должен ломать сохранение.
func (s *draftService) publishSaved(ctx context.Context, rec *models.DraftRecord, reason models.SaveReason, created bool) {
	if s.publisher == nil {
		return
	}
	event := messaging.DraftSavedEvent{
		DraftKey:    rec.DraftKey,
		OwnerWallet: rec.OwnerWallet,
		StoryType:   rec.StoryType,
		Version:     rec.Current.Version,
		Reason:      reason,
		Created:     created,
		SavedAt:     rec.UpdatedAt,
	}
	if err := s.publisher.PublishDraftSaved(ctx, event); err != nil {
		s.logger.Warn("Failed to publish draft saved event", zap.String("draftKey", rec.DraftKey), zap.Error(err))
	}
}
