package repository

import (
	"context"
	"sync"
	"time"

	"story-draft-server/shared/models"
)

// Compile-time check
var _ DraftRepository = (*memoryDraftRepository)(nil)

// memoryDraftRepository - потокобезопасная in-memory реализация для тестов
// и локального запуска без PostgreSQL. Семантика сохранения и восстановления
// полностью повторяет PostgreSQL-реализацию.
type memoryDraftRepository struct {
	mu      sync.Mutex
	records map[string]*models.DraftRecord
}

// NewMemoryDraftRepository создает пустой in-memory репозиторий.
func NewMemoryDraftRepository() DraftRepository {
	return &memoryDraftRepository{records: make(map[string]*models.DraftRecord)}
}

func (r *memoryDraftRepository) GetByKey(_ context.Context, draftKey, ownerWallet string) (*models.DraftRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[draftKey]
	if !ok {
		return nil, models.ErrDraftNotFound
	}
	if ownerWallet != "" && rec.OwnerWallet != ownerWallet {
		return nil, models.ErrDraftNotFound
	}
	return rec.Clone(), nil
}

func (r *memoryDraftRepository) Save(_ context.Context, params SaveDraftParams) (*models.DraftRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UnixMilli()
	rec, ok := r.records[params.DraftKey]
	if !ok {
		snap := params.Snapshot
		snap.Version = 1
		created := &models.DraftRecord{
			DraftKey:    params.DraftKey,
			StoryType:   params.StoryType,
			StoryFormat: params.StoryFormat,
			OwnerWallet: params.OwnerWallet,
			OwnerRole:   params.OwnerRole,
			Current:     snap,
			Versions:    []models.Version{},
			AIMetadata:  models.NewAIMetadata(),
			CreatedAt:   now,
			UpdatedAt:   snap.UpdatedAt,
		}
		if created.UpdatedAt <= 0 {
			created.UpdatedAt = now
		}
		r.records[params.DraftKey] = created
		return created.Clone(), true, nil
	}

	snap := params.Snapshot
	snap.UpdatedAt = now
	models.ApplySnapshot(rec, snap, params.Reason, params.MaxVersions, now)
	rec.StoryType = params.StoryType
	rec.StoryFormat = params.StoryFormat
	if params.OwnerWallet != "" {
		rec.OwnerWallet = params.OwnerWallet
	}
	rec.OwnerRole = params.OwnerRole
	return rec.Clone(), false, nil
}

func (r *memoryDraftRepository) RestoreVersion(_ context.Context, draftKey, versionID string, maxVersions int) (*models.DraftRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[draftKey]
	if !ok {
		return nil, models.ErrDraftNotFound
	}
	if !models.RestoreVersion(rec, versionID, maxVersions, time.Now().UnixMilli()) {
		return nil, models.ErrVersionNotFound
	}
	return rec.Clone(), nil
}

func (r *memoryDraftRepository) Delete(_ context.Context, draftKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, draftKey)
	return nil
}
