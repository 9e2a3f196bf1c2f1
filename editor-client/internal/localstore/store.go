package localstore

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"story-draft-server/shared/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// storeState - персистентная форма хранилища: один блоб со всеми записями
// и указателем на активный ключ.
type storeState struct {
	ActiveDraftKey string                         `json:"activeDraftKey"`
	Drafts         map[string]*models.DraftRecord `json:"drafts"`
}

// SaveSnapshotParams - параметры локального сохранения снапшота.
type SaveSnapshotParams struct {
	DraftKey    string
	StoryType   string
	StoryFormat string
	Snapshot    models.Snapshot
	Reason      models.SaveReason
	MaxVersions int
}

// RestoreVersionParams - параметры локального восстановления версии.
type RestoreVersionParams struct {
	DraftKey    string
	VersionID   string
	MaxVersions int
}

// MigrateLegacyParams - параметры одноразовой миграции легаси-снапшота.
type MigrateLegacyParams struct {
	DraftKey    string
	StoryType   string
	StoryFormat string
	MaxVersions int
}

// Store - локальное хранилище черновиков. Это клиентский кэш, а не система
// записи: чтение битых данных откатывается к пустому состоянию, а неудачная
// запись на носитель логируется, но не ломает вызывающего - значение в памяти
// при этом остается корректным.
type Store struct {
	mu        sync.Mutex
	backend   Backend
	state     storeState
	corrupted bool
	logger    *zap.Logger
}

// NewStore загружает состояние из backend'а. Неразбираемый блоб дает пустое
// хранилище; факт порчи доступен через Health.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	s := &Store{
		backend: backend,
		state:   storeState{Drafts: make(map[string]*models.DraftRecord)},
		logger:  logger.Named("DraftStore"),
	}

	data, err := backend.Load()
	if err != nil {
		s.logger.Warn("Failed to load draft store blob, starting empty", zap.Error(err))
		return s
	}
	if data == nil {
		return s
	}

	var state storeState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.Warn("Draft store blob is corrupted, resetting to empty", zap.Error(err))
		s.corrupted = true
		return s
	}
	if state.Drafts == nil {
		state.Drafts = make(map[string]*models.DraftRecord)
	}
	s.state = state
	return s
}

// Health возвращает models.ErrStoreCorrupted, если персистентный блоб был
// неразбираем при загрузке. Хранилище при этом полностью работоспособно.
func (s *Store) Health() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corrupted {
		return models.ErrStoreCorrupted
	}
	return nil
}

// CreateDraftKey генерирует новый глобально-уникальный ключ с заданным префиксом.
func (s *Store) CreateDraftKey(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "draft"
	}
	return prefix + "-" + uuid.NewString()
}

// GetDraftRecord возвращает глубокую копию записи или nil.
func (s *Store) GetDraftRecord(draftKey string) *models.DraftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Drafts[draftKey].Clone()
}

// GetLatestDraftRecord возвращает самую свежую по updatedAt запись,
// удовлетворяющую предикату (nil-предикат пропускает все).
func (s *Store) GetLatestDraftRecord(predicate func(*models.DraftRecord) bool) *models.DraftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.DraftRecord
	for _, rec := range s.state.Drafts {
		if predicate != nil && !predicate(rec) {
			continue
		}
		if latest == nil || rec.UpdatedAt > latest.UpdatedAt {
			latest = rec
		}
	}
	return latest.Clone()
}

// UpsertDraftRecord перезаписывает запись целиком (серверный вид побеждает
// без пополевого слияния) и делает ее ключ активным.
func (s *Store) UpsertDraftRecord(rec *models.DraftRecord) *models.DraftRecord {
	if rec == nil || rec.DraftKey == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Drafts[rec.DraftKey] = rec.Clone()
	s.state.ActiveDraftKey = rec.DraftKey
	s.persistLocked()
	return rec.Clone()
}

// SaveDraftSnapshot - основной путь записи. Создает запись при первом
// сохранении (версия принудительно 1), иначе применяет общие правила
// истории и инкремента версии. Ключ становится активным.
func (s *Store) SaveDraftSnapshot(params SaveSnapshotParams) *models.DraftRecord {
	if params.DraftKey == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	snap := params.Snapshot
	if snap.UpdatedAt <= 0 {
		snap.UpdatedAt = now
	}

	rec, ok := s.state.Drafts[params.DraftKey]
	if !ok {
		snap.Version = 1
		rec = &models.DraftRecord{
			DraftKey:    params.DraftKey,
			StoryType:   params.StoryType,
			StoryFormat: params.StoryFormat,
			OwnerRole:   models.RoleWallet,
			Current:     snap,
			Versions:    []models.Version{},
			AIMetadata:  models.NewAIMetadata(),
			CreatedAt:   now,
			UpdatedAt:   snap.UpdatedAt,
		}
		s.state.Drafts[params.DraftKey] = rec
	} else {
		models.ApplySnapshot(rec, snap, params.Reason, params.MaxVersions, now)
		if params.StoryType != "" {
			rec.StoryType = params.StoryType
		}
		if params.StoryFormat != "" {
			rec.StoryFormat = params.StoryFormat
		}
	}

	s.state.ActiveDraftKey = params.DraftKey
	s.persistLocked()
	return rec.Clone()
}

// RestoreDraftVersion продвигает версию из истории в current. Возвращает nil
// без ошибки, если запись или версия не найдены - вызывающий сам решает,
// как показать "не найдено".
func (s *Store) RestoreDraftVersion(params RestoreVersionParams) *models.DraftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.Drafts[params.DraftKey]
	if !ok {
		return nil
	}
	if !models.RestoreVersion(rec, params.VersionID, params.MaxVersions, time.Now().UnixMilli()) {
		return nil
	}
	s.persistLocked()
	return rec.Clone()
}

// ClearDraftRecord удаляет запись; если она была активной, указатель сбрасывается.
func (s *Store) ClearDraftRecord(draftKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Drafts[draftKey]; !ok && s.state.ActiveDraftKey != draftKey {
		return
	}
	delete(s.state.Drafts, draftKey)
	if s.state.ActiveDraftKey == draftKey {
		s.state.ActiveDraftKey = ""
	}
	s.persistLocked()
}

// legacySnapshot - плоский снапшот дорекордного формата.
type legacySnapshot struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Genre          string `json:"genre"`
	Content        string `json:"content"`
	CoverImageName string `json:"coverImageName"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// MigrateLegacyDraftToRecord - одноразовый путь совместимости: читает
// легаси-блоб и, если в нем есть содержимое, конвертирует его в полноценную
// запись через обычный путь сохранения, после чего легаси-блоб удаляется.
// Возвращает nil, если мигрировать было нечего или payload пустой/неразбираемый.
func (s *Store) MigrateLegacyDraftToRecord(params MigrateLegacyParams) *models.DraftRecord {
	data, err := s.backend.LoadLegacy()
	if err != nil {
		s.logger.Warn("Failed to read legacy draft blob", zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}

	// Легаси-блоб удаляется в любом случае: и после успешной конвертации,
	// и когда payload пустой или неразбираемый. Миграция строго одноразовая.
	defer func() {
		if err := s.backend.DeleteLegacy(); err != nil {
			s.logger.Warn("Failed to delete legacy draft blob", zap.Error(err))
		}
	}()

	var legacy legacySnapshot
	if err := json.Unmarshal(data, &legacy); err != nil {
		s.logger.Warn("Legacy draft blob is unparseable, dropping", zap.Error(err))
		return nil
	}

	snap := models.Snapshot{
		Title:          legacy.Title,
		Description:    legacy.Description,
		Genre:          legacy.Genre,
		Content:        legacy.Content,
		CoverImageName: legacy.CoverImageName,
		UpdatedAt:      legacy.UpdatedAt,
	}
	if !snap.HasMeaningfulContent() {
		return nil
	}

	return s.SaveDraftSnapshot(SaveSnapshotParams{
		DraftKey:    params.DraftKey,
		StoryType:   params.StoryType,
		StoryFormat: params.StoryFormat,
		Snapshot:    snap,
		Reason:      models.ReasonAutosave,
		MaxVersions: params.MaxVersions,
	})
}

// GetActiveDraftKey возвращает активный ключ или пустую строку.
func (s *Store) GetActiveDraftKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ActiveDraftKey
}

// SetActiveDraftKey устанавливает активный ключ; пустая строка сбрасывает его.
func (s *Store) SetActiveDraftKey(draftKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.ActiveDraftKey == draftKey {
		return
	}
	s.state.ActiveDraftKey = draftKey
	s.persistLocked()
}

// persistLocked сериализует состояние на носитель. Ошибки только логируются:
// значение в памяти остается источником истины для текущей сессии.
func (s *Store) persistLocked() {
	data, err := json.Marshal(s.state)
	if err != nil {
		s.logger.Error("Failed to marshal draft store state", zap.Error(err))
		return
	}
	if err := s.backend.Store(data); err != nil {
		s.logger.Warn("Failed to persist draft store blob", zap.Error(err))
	}
}
