package models

import (
	"strings"

	"github.com/google/uuid"
)

// SaveReason - причина сохранения версии. Используется только как
// метаданные происхождения и никогда не влияет на логику слияния.
type SaveReason string

const (
	ReasonAutosave SaveReason = "autosave"
	ReasonBlur     SaveReason = "blur"
	ReasonManual   SaveReason = "manual"
	ReasonRestore  SaveReason = "restore"
)

// NormalizeSaveReason приводит неизвестные значения к ReasonAutosave.
func NormalizeSaveReason(reason SaveReason) SaveReason {
	switch reason {
	case ReasonAutosave, ReasonBlur, ReasonManual, ReasonRestore:
		return reason
	default:
		return ReasonAutosave
	}
}

// OwnerRole определяет роль владельца черновика.
type OwnerRole string

const (
	RoleWallet OwnerRole = "wallet"
	RoleAdmin  OwnerRole = "admin"
	RoleGuest  OwnerRole = "guest"
)

// NormalizeOwnerRole приводит неизвестные значения к RoleWallet.
func NormalizeOwnerRole(role OwnerRole) OwnerRole {
	switch role {
	case RoleWallet, RoleAdmin, RoleGuest:
		return role
	default:
		return RoleWallet
	}
}

// PipelineState - состояние AI-конвейера для черновика.
type PipelineState string

const (
	PipelineIdle       PipelineState = "idle"
	PipelineReady      PipelineState = "ready"
	PipelineProcessing PipelineState = "processing"
)

// Жесткие лимиты длины текстовых полей. Сервер - финальная точка
// принуждения этих ограничений независимо от того, что прислал клиент.
const (
	MaxTitleLen       = 140
	MaxDescriptionLen = 2000
	MaxGenreLen       = 80
	MaxContentLen     = 100000
	MaxCoverNameLen   = 260
)

// Границы количества версий в истории.
const (
	DefaultVersionLimit = 5
	MinVersionLimit     = 1
	MaxVersionLimit     = 20
)

// Snapshot - неизменяемое после сохранения состояние редактируемого текста.
// Timestamps передаются по проводу как epoch-миллисекунды.
type Snapshot struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Genre          string `json:"genre"`
	Content        string `json:"content"`
	CoverImageName string `json:"coverImageName"`
	UpdatedAt      int64  `json:"updatedAt"`
	Version        int    `json:"version"`
}

// Version - снапшот, попавший в историю, с идентификатором и причиной сохранения.
type Version struct {
	Snapshot
	ID     string     `json:"id"`
	Reason SaveReason `json:"reason"`
}

// AIMetadata - побочный канал для AI-конвейера. Присутствует в модели
// данных, но не участвует ни в одном из основных алгоритмов.
type AIMetadata struct {
	PipelineState    PipelineState `json:"pipelineState"`
	SuggestedEdits   []string      `json:"suggestedEdits"`
	LastEditedByAIAt *int64        `json:"lastEditedByAIAt"`
}

// NewAIMetadata возвращает метаданные для свежесозданной записи.
func NewAIMetadata() AIMetadata {
	return AIMetadata{
		PipelineState:  PipelineReady,
		SuggestedEdits: []string{},
	}
}

// DraftRecord - агрегат черновика, уникально идентифицируемый draftKey.
type DraftRecord struct {
	DraftKey    string     `json:"draftKey"`
	StoryType   string     `json:"storyType"`
	StoryFormat string     `json:"storyFormat"`
	OwnerWallet string     `json:"ownerWallet,omitempty"`
	OwnerRole   OwnerRole  `json:"ownerRole"`
	Current     Snapshot   `json:"current"`
	Versions    []Version  `json:"versions"`
	AIMetadata  AIMetadata `json:"aiMetadata"`
	CreatedAt   int64      `json:"createdAt"`
	UpdatedAt   int64      `json:"updatedAt"`
}

// Clone возвращает глубокую копию записи. Вызывающие никогда не должны
// иметь возможность мутировать внутреннее состояние хранилища через
// возвращенное значение.
func (r *DraftRecord) Clone() *DraftRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Versions = make([]Version, len(r.Versions))
	copy(out.Versions, r.Versions)
	out.AIMetadata.SuggestedEdits = make([]string, len(r.AIMetadata.SuggestedEdits))
	copy(out.AIMetadata.SuggestedEdits, r.AIMetadata.SuggestedEdits)
	if r.AIMetadata.LastEditedByAIAt != nil {
		ts := *r.AIMetadata.LastEditedByAIAt
		out.AIMetadata.LastEditedByAIAt = &ts
	}
	return &out
}

// HasMeaningfulContent сообщает, есть ли в снапшоте хотя бы одно
// непустое поле. Пустые черновики не сохраняются и не попадают в историю.
func (s Snapshot) HasMeaningfulContent() bool {
	return strings.TrimSpace(s.Title) != "" ||
		strings.TrimSpace(s.Description) != "" ||
		strings.TrimSpace(s.Genre) != "" ||
		strings.TrimSpace(s.Content) != "" ||
		s.CoverImageName != ""
}

// SnapshotChanged сравнивает два снапшота по содержательным полям,
// игнорируя timestamp и счетчик версии.
func SnapshotChanged(prev, next Snapshot) bool {
	return prev.Title != next.Title ||
		prev.Description != next.Description ||
		prev.Genre != next.Genre ||
		prev.Content != next.Content ||
		prev.CoverImageName != next.CoverImageName
}

// NormalizeVersionLimit приводит лимит истории к допустимому диапазону.
func NormalizeVersionLimit(limit int) int {
	if limit <= 0 {
		return DefaultVersionLimit
	}
	if limit < MinVersionLimit {
		return MinVersionLimit
	}
	if limit > MaxVersionLimit {
		return MaxVersionLimit
	}
	return limit
}

func cleanText(value string, maxLen int) string {
	value = strings.TrimSpace(value)
	if len(value) > maxLen {
		value = value[:maxLen]
	}
	return value
}

// NormalizeSnapshot обрезает и усекает текстовые поля до жестких лимитов
// и подставляет now, если клиент не прислал валидный updatedAt.
func NormalizeSnapshot(s Snapshot, now int64) Snapshot {
	s.Title = cleanText(s.Title, MaxTitleLen)
	s.Description = cleanText(s.Description, MaxDescriptionLen)
	s.Genre = cleanText(s.Genre, MaxGenreLen)
	s.Content = cleanText(s.Content, MaxContentLen)
	s.CoverImageName = cleanText(s.CoverImageName, MaxCoverNameLen)
	if s.UpdatedAt <= 0 {
		s.UpdatedAt = now
	}
	return s
}

// NewVersionID генерирует уникальный идентификатор версии.
func NewVersionID() string {
	return uuid.NewString()
}

// ApplySnapshot применяет новый снапшот к записи по общим для клиента и
// сервера правилам: старый current попадает в историю, только если он
// содержателен и отличается от нового снапшота; счетчик версии
// увеличивается на 1 при каждой принятой записи; история усекается до
// limit записей. Запись мутируется на месте.
func ApplySnapshot(rec *DraftRecord, snap Snapshot, reason SaveReason, limit int, now int64) {
	limit = NormalizeVersionLimit(limit)

	prev := rec.Current
	next := snap
	next.Version = prev.Version + 1

	if prev.HasMeaningfulContent() && SnapshotChanged(prev, next) {
		entry := Version{
			Snapshot: prev,
			ID:       NewVersionID(),
			Reason:   NormalizeSaveReason(reason),
		}
		rec.Versions = append([]Version{entry}, rec.Versions...)
	}
	if len(rec.Versions) > limit {
		rec.Versions = rec.Versions[:limit]
	}

	rec.Current = next
	rec.UpdatedAt = next.UpdatedAt
	if rec.UpdatedAt <= 0 {
		rec.UpdatedAt = now
	}
}

// RestoreVersion продвигает версию versionID из истории в current.
// Текущий current (если содержателен) уходит в историю с причиной
// restore, восстановленная запись удаляется из истории, а ее содержимое
// становится current со следующим номером версии и свежим updatedAt.
// Возвращает false, если версия не найдена; запись при этом не меняется.
func RestoreVersion(rec *DraftRecord, versionID string, limit int, now int64) bool {
	limit = NormalizeVersionLimit(limit)

	idx := -1
	for i, v := range rec.Versions {
		if v.ID == versionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	restored := rec.Versions[idx]

	history := make([]Version, 0, len(rec.Versions))
	if rec.Current.HasMeaningfulContent() {
		history = append(history, Version{
			Snapshot: rec.Current,
			ID:       NewVersionID(),
			Reason:   ReasonRestore,
		})
	}
	for i, v := range rec.Versions {
		if i != idx {
			history = append(history, v)
		}
	}
	if len(history) > limit {
		history = history[:limit]
	}

	next := restored.Snapshot
	next.Version = rec.Current.Version + 1
	next.UpdatedAt = now

	rec.Current = next
	rec.Versions = history
	rec.UpdatedAt = now
	return true
}
