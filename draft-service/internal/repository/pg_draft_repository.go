package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"story-draft-server/shared/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check
var _ DraftRepository = (*pgDraftRepository)(nil)

type pgDraftRepository struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgDraftRepository создает репозиторий черновиков поверх PostgreSQL.
func NewPgDraftRepository(db DBTX, logger *zap.Logger) DraftRepository {
	return &pgDraftRepository{
		db:     db,
		logger: logger.Named("PgDraftRepo"),
	}
}

const draftColumns = `draft_key, story_type, story_format, owner_wallet, owner_role, current, versions, ai_metadata, created_at, updated_at`

// scanDraftRow собирает DraftRecord из строки story_drafts.
// JSONB-колонки десериализуются, timestamptz переводится в epoch-миллисекунды.
func scanDraftRow(row pgx.Row) (*models.DraftRecord, error) {
	var (
		rec          models.DraftRecord
		ownerWallet  *string
		currentJSON  []byte
		versionsJSON []byte
		metadataJSON []byte
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := row.Scan(
		&rec.DraftKey, &rec.StoryType, &rec.StoryFormat, &ownerWallet, &rec.OwnerRole,
		&currentJSON, &versionsJSON, &metadataJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ownerWallet != nil {
		rec.OwnerWallet = *ownerWallet
	}
	if err := json.Unmarshal(currentJSON, &rec.Current); err != nil {
		return nil, fmt.Errorf("ошибка десериализации current: %w", err)
	}
	if err := json.Unmarshal(versionsJSON, &rec.Versions); err != nil {
		return nil, fmt.Errorf("ошибка десериализации versions: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &rec.AIMetadata); err != nil {
		return nil, fmt.Errorf("ошибка десериализации ai_metadata: %w", err)
	}
	if rec.Versions == nil {
		rec.Versions = []models.Version{}
	}
	rec.CreatedAt = createdAt.UnixMilli()
	rec.UpdatedAt = updatedAt.UnixMilli()
	return &rec, nil
}

// GetByKey возвращает запись по draftKey, опционально фильтруя по владельцу.
func (r *pgDraftRepository) GetByKey(ctx context.Context, draftKey, ownerWallet string) (*models.DraftRecord, error) {
	logFields := []zap.Field{zap.String("draftKey", draftKey)}
	r.logger.Debug("Getting draft by key", logFields...)

	query := `SELECT ` + draftColumns + ` FROM story_drafts WHERE draft_key = $1`
	args := []any{draftKey}
	if ownerWallet != "" {
		query += ` AND owner_wallet = $2`
		args = append(args, ownerWallet)
	}

	rec, err := scanDraftRow(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Draft not found by key", logFields...)
			return nil, models.ErrDraftNotFound
		}
		r.logger.Error("Failed to get draft by key", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения черновика %s: %w", draftKey, err)
	}
	return rec, nil
}

// Save выполняет атомарный upsert: строка блокируется через SELECT ... FOR UPDATE,
// история дописывается от состояния на момент записи, а не от устаревшего чтения.
func (r *pgDraftRepository) Save(ctx context.Context, params SaveDraftParams) (*models.DraftRecord, bool, error) {
	logFields := []zap.Field{
		zap.String("draftKey", params.DraftKey),
		zap.String("reason", string(params.Reason)),
	}
	r.logger.Debug("Saving draft snapshot", logFields...)

	pool, ok := r.db.(*pgxpool.Pool)
	if !ok {
		r.logger.Error("r.db is not *pgxpool.Pool, cannot begin transaction for save", logFields...)
		return nil, false, fmt.Errorf("внутренняя ошибка: невозможно начать транзакцию (неверный тип DBTX)")
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin transaction for draft save", append(logFields, zap.Error(err))...)
		return nil, false, fmt.Errorf("ошибка начала транзакции для сохранения черновика: %w", err)
	}
	defer tx.Rollback(ctx) // Откат по умолчанию

	now := time.Now().UTC()
	lockQuery := `SELECT ` + draftColumns + ` FROM story_drafts WHERE draft_key = $1 FOR UPDATE`
	rec, err := scanDraftRow(tx.QueryRow(ctx, lockQuery, params.DraftKey))

	created := false
	switch {
	case err == nil:
		// Существующая запись: применяем снапшот поверх заблокированного состояния.
		snap := params.Snapshot
		snap.UpdatedAt = now.UnixMilli()
		models.ApplySnapshot(rec, snap, params.Reason, params.MaxVersions, now.UnixMilli())
		rec.StoryType = params.StoryType
		rec.StoryFormat = params.StoryFormat
		if params.OwnerWallet != "" {
			rec.OwnerWallet = params.OwnerWallet
		}
		rec.OwnerRole = params.OwnerRole
	case errors.Is(err, pgx.ErrNoRows):
		// Первое сохранение: запись создается неявно, версия принудительно 1.
		created = true
		snap := params.Snapshot
		snap.Version = 1
		rec = &models.DraftRecord{
			DraftKey:    params.DraftKey,
			StoryType:   params.StoryType,
			StoryFormat: params.StoryFormat,
			OwnerWallet: params.OwnerWallet,
			OwnerRole:   params.OwnerRole,
			Current:     snap,
			Versions:    []models.Version{},
			AIMetadata:  models.NewAIMetadata(),
			CreatedAt:   now.UnixMilli(),
			UpdatedAt:   snap.UpdatedAt,
		}
		if rec.UpdatedAt <= 0 {
			rec.UpdatedAt = now.UnixMilli()
		}
	default:
		r.logger.Error("Failed to lock draft row for save", append(logFields, zap.Error(err))...)
		return nil, false, fmt.Errorf("ошибка блокировки черновика %s: %w", params.DraftKey, err)
	}

	if err := r.upsertLocked(ctx, tx, rec); err != nil {
		r.logger.Error("Failed to upsert draft", append(logFields, zap.Error(err))...)
		return nil, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit draft save", append(logFields, zap.Error(err))...)
		return nil, false, fmt.Errorf("ошибка коммита сохранения черновика: %w", err)
	}
	r.logger.Info("Draft saved", append(logFields, zap.Bool("created", created), zap.Int("version", rec.Current.Version))...)
	return rec, created, nil
}

// RestoreVersion продвигает версию из истории в current под той же блокировкой строки.
func (r *pgDraftRepository) RestoreVersion(ctx context.Context, draftKey, versionID string, maxVersions int) (*models.DraftRecord, error) {
	logFields := []zap.Field{zap.String("draftKey", draftKey), zap.String("versionID", versionID)}
	r.logger.Debug("Restoring draft version", logFields...)

	pool, ok := r.db.(*pgxpool.Pool)
	if !ok {
		r.logger.Error("r.db is not *pgxpool.Pool, cannot begin transaction for restore", logFields...)
		return nil, fmt.Errorf("внутренняя ошибка: невозможно начать транзакцию (неверный тип DBTX)")
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		r.logger.Error("Failed to begin transaction for draft restore", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка начала транзакции для восстановления версии: %w", err)
	}
	defer tx.Rollback(ctx) // Откат по умолчанию

	lockQuery := `SELECT ` + draftColumns + ` FROM story_drafts WHERE draft_key = $1 FOR UPDATE`
	rec, err := scanDraftRow(tx.QueryRow(ctx, lockQuery, draftKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Draft not found for restore", logFields...)
			return nil, models.ErrDraftNotFound
		}
		r.logger.Error("Failed to lock draft row for restore", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка блокировки черновика %s: %w", draftKey, err)
	}

	now := time.Now().UTC()
	if !models.RestoreVersion(rec, versionID, maxVersions, now.UnixMilli()) {
		r.logger.Warn("Draft version not found for restore", logFields...)
		return nil, models.ErrVersionNotFound
	}

	if err := r.upsertLocked(ctx, tx, rec); err != nil {
		r.logger.Error("Failed to upsert restored draft", append(logFields, zap.Error(err))...)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		r.logger.Error("Failed to commit draft restore", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка коммита восстановления версии: %w", err)
	}
	r.logger.Info("Draft version restored", append(logFields, zap.Int("version", rec.Current.Version))...)
	return rec, nil
}

// Delete удаляет запись. Отсутствие строки не считается ошибкой.
func (r *pgDraftRepository) Delete(ctx context.Context, draftKey string) error {
	logFields := []zap.Field{zap.String("draftKey", draftKey)}
	r.logger.Debug("Deleting draft", logFields...)

	commandTag, err := r.db.Exec(ctx, `DELETE FROM story_drafts WHERE draft_key = $1`, draftKey)
	if err != nil {
		r.logger.Error("Failed to delete draft", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка удаления черновика %s: %w", draftKey, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Debug("Draft already absent on delete", logFields...)
	} else {
		r.logger.Info("Draft deleted", logFields...)
	}
	return nil
}

// upsertLocked записывает полное состояние записи. Вызывается только внутри
// транзакции, удерживающей блокировку строки (или для новой строки).
func (r *pgDraftRepository) upsertLocked(ctx context.Context, tx pgx.Tx, rec *models.DraftRecord) error {
	currentJSON, err := json.Marshal(rec.Current)
	if err != nil {
		return fmt.Errorf("ошибка сериализации current: %w", err)
	}
	versionsJSON, err := json.Marshal(rec.Versions)
	if err != nil {
		return fmt.Errorf("ошибка сериализации versions: %w", err)
	}
	metadataJSON, err := json.Marshal(rec.AIMetadata)
	if err != nil {
		return fmt.Errorf("ошибка сериализации ai_metadata: %w", err)
	}

	var ownerWallet *string
	if rec.OwnerWallet != "" {
		ownerWallet = &rec.OwnerWallet
	}

	query := `
        INSERT INTO story_drafts
            (draft_key, story_type, story_format, owner_wallet, owner_role, current, versions, ai_metadata, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, to_timestamp($9 / 1000.0), to_timestamp($10 / 1000.0))
        ON CONFLICT (draft_key) DO UPDATE SET
            story_type = EXCLUDED.story_type,
            story_format = EXCLUDED.story_format,
            owner_wallet = EXCLUDED.owner_wallet,
            owner_role = EXCLUDED.owner_role,
            current = EXCLUDED.current,
            versions = EXCLUDED.versions,
            ai_metadata = EXCLUDED.ai_metadata,
            updated_at = EXCLUDED.updated_at
    `
	_, err = tx.Exec(ctx, query,
		rec.DraftKey, rec.StoryType, rec.StoryFormat, ownerWallet, rec.OwnerRole,
		currentJSON, versionsJSON, metadataJSON, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи черновика %s: %w", rec.DraftKey, err)
	}
	return nil
}
