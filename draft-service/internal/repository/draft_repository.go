package repository

import (
	"context"

	"story-draft-server/shared/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX абстрагирует *pgxpool.Pool и pgx.Tx, чтобы репозиторий работал
// как с пулом, так и внутри внешней транзакции.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SaveDraftParams - параметры идемпотентного upsert'а черновика.
// Snapshot уже нормализован сервисом; MaxVersions уже приведен к [1,20].
type SaveDraftParams struct {
	DraftKey    string
	StoryType   string
	StoryFormat string
	OwnerWallet string
	OwnerRole   models.OwnerRole
	Snapshot    models.Snapshot
	Reason      models.SaveReason
	MaxVersions int
}

// DraftRepository определяет авторитетное хранилище DraftRecord'ов на сервере.
type DraftRepository interface {
	// GetByKey возвращает запись по ключу. Если ownerWallet не пуст,
	// запись дополнительно фильтруется по владельцу.
	// Возвращает models.ErrDraftNotFound, если записи нет.
	GetByKey(ctx context.Context, draftKey, ownerWallet string) (*models.DraftRecord, error)

	// Save применяет снапшот к записи (создавая ее при первом сохранении)
	// по правилам models.ApplySnapshot. Вся последовательность
	// "прочитать старый current, дописать историю, заменить current"
	// выполняется атомарно для каждого draftKey.
	// Второй результат - true, если запись была создана.
	Save(ctx context.Context, params SaveDraftParams) (*models.DraftRecord, bool, error)

	// RestoreVersion продвигает указанную версию из истории в current.
	// Возвращает models.ErrDraftNotFound / models.ErrVersionNotFound.
	RestoreVersion(ctx context.Context, draftKey, versionID string, maxVersions int) (*models.DraftRecord, error)

	// Delete удаляет запись. Удаление несуществующего ключа - не ошибка.
	Delete(ctx context.Context, draftKey string) error
}
