package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"story-draft-server/editor-client/internal/localstore"
	"story-draft-server/shared/models"

	"go.uber.org/zap"
)

// DefaultRequestTimeout ограничивает каждый сетевой вызов.
const DefaultRequestTimeout = 10 * time.Second

const draftsPath = "/api/story-drafts"

// SyncState - состояние синхронизации для индикатора в редакторе.
type SyncState string

const (
	// StateSynced - последний push дошел до сервера.
	StateSynced SyncState = "synced"
	// StateLocalOnly - сервер недоступен, изменения сохранены только локально.
	StateLocalOnly SyncState = "local_only"
	// StateOffline - клиент явно переведен в офлайн, сеть не используется.
	StateOffline SyncState = "offline"
)

// SyncStatus - состояние плюс человекочитаемое сообщение. Индикатор
// консультативный: пользователь продолжает печатать в любом состоянии.
type SyncStatus struct {
	State   SyncState
	Message string
}

// Виды операций для отмены вытесненных запросов: новый вызов того же вида
// отменяет еще не завершившийся предыдущий.
const (
	opPush    = "push"
	opHydrate = "hydrate"
	opRestore = "restore"
	opDelete  = "delete"
)

// PushParams - параметры отправки локального сохранения на сервер.
type PushParams struct {
	DraftKey    string
	StoryType   string
	StoryFormat string
	OwnerWallet string
	OwnerRole   models.OwnerRole
	Snapshot    models.Snapshot
	Reason      models.SaveReason
	MaxVersions int
}

// Client - мост между локальным хранилищем и серверным. Никогда не
// блокирует редактор: каждый вызов ограничен таймаутом и отменяем, а
// локальная копия остается авторитетной для текущей сессии даже без сети.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
	store      *localstore.Store
	logger     *zap.Logger
	timeout    time.Duration

	mu       sync.Mutex
	offline  bool
	syncErr  bool
	inflight map[string]*opHandle
}

// opHandle идентифицирует конкретный запрос в слоте своего вида.
type opHandle struct {
	cancel context.CancelFunc
}

// NewClient создает клиент синхронизации. authToken подставляется в
// Authorization каждого запроса.
func NewClient(baseURL, authToken string, store *localstore.Store, logger *zap.Logger) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid draft service base URL: %w", err)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		authToken:  authToken,
		store:      store,
		logger:     logger.Named("SyncClient"),
		timeout:    DefaultRequestTimeout,
		inflight:   make(map[string]*opHandle),
	}, nil
}

// SetOffline переводит клиент в явный офлайн: сетевые попытки пропускаются,
// сохранения остаются локальными до возврата в онлайн.
func (c *Client) SetOffline(offline bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline = offline
}

// HasSyncError сообщает, есть ли незакрытая ошибка синхронизации.
// Следующий autosave с неизменным fingerprint'ом все равно попытается
// отправить данные, пока ошибка не снята успешным push'ем.
func (c *Client) HasSyncError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncErr
}

// Status возвращает текущее состояние синхронизации для UI.
func (c *Client) Status() SyncStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.offline:
		return SyncStatus{State: StateOffline, Message: "Offline, черновик сохраняется локально"}
	case c.syncErr:
		return SyncStatus{State: StateLocalOnly, Message: "Облачная синхронизация недоступна, черновик сохранен локально"}
	default:
		return SyncStatus{State: StateSynced, Message: "Черновик синхронизирован"}
	}
}

// beginOp отменяет вытесненный запрос того же вида и возвращает контекст
// с таймаутом для нового.
func (c *Client) beginOp(ctx context.Context, kind string) (context.Context, *opHandle) {
	c.mu.Lock()
	if prev, ok := c.inflight[kind]; ok {
		prev.cancel()
	}
	opCtx, cancel := context.WithTimeout(ctx, c.timeout)
	handle := &opHandle{cancel: cancel}
	c.inflight[kind] = handle
	c.mu.Unlock()
	return opCtx, handle
}

func (c *Client) endOp(kind string, handle *opHandle) {
	c.mu.Lock()
	// Чистим слот, только если он все еще наш: новый вызов мог его занять.
	if c.inflight[kind] == handle {
		delete(c.inflight, kind)
	}
	c.mu.Unlock()
	handle.cancel()
}

func (c *Client) setSyncError(failed bool) {
	c.mu.Lock()
	c.syncErr = failed
	c.mu.Unlock()
}

func (c *Client) isOffline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

// aborted различает отмену вытесненного запроса и настоящий сетевой отказ.
// Отмена не считается ошибкой и не трогает состояние синхронизации.
func aborted(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Push отправляет локально сохраненный снапшот на сервер. В офлайне вызов
// пропускается без ошибки. При успехе ответ сервера целиком замещает
// локальную запись (upsert) и снимает ошибку синхронизации.
func (c *Client) Push(ctx context.Context, params PushParams) (*models.DraftRecord, error) {
	if c.isOffline() {
		c.logger.Debug("Push skipped, client offline", zap.String("draftKey", params.DraftKey))
		return nil, nil
	}

	opCtx, handle := c.beginOp(ctx, opPush)
	defer c.endOp(opPush, handle)

	body := map[string]any{
		"draftKey":    params.DraftKey,
		"storyType":   params.StoryType,
		"storyFormat": params.StoryFormat,
		"ownerWallet": params.OwnerWallet,
		"ownerRole":   params.OwnerRole,
		"snapshot":    params.Snapshot,
		"saveReason":  params.Reason,
		"maxVersions": params.MaxVersions,
	}

	rec, err := c.doDraftRequest(opCtx, http.MethodPut, draftsPath, nil, body)
	if err != nil {
		if aborted(err) {
			c.logger.Debug("Push aborted", zap.String("draftKey", params.DraftKey))
			return nil, nil
		}
		c.setSyncError(true)
		c.logger.Warn("Push failed, draft kept locally", zap.String("draftKey", params.DraftKey), zap.Error(err))
		return nil, err
	}

	c.store.UpsertDraftRecord(rec)
	c.setSyncError(false)
	c.logger.Debug("Push succeeded", zap.String("draftKey", params.DraftKey), zap.Int("version", rec.Current.Version))
	return rec, nil
}

// Hydrate запрашивает серверную копию записи. Отсутствие, отказ или отмена -
// не ошибка: локальное состояние остается как есть. Серверная запись
// принимается только если она строго новее локальной, чтобы устаревший ответ
// не затер более свежие локальные правки.
func (c *Client) Hydrate(ctx context.Context, draftKey, ownerWallet string) (*models.DraftRecord, error) {
	if c.isOffline() {
		return nil, nil
	}

	opCtx, handle := c.beginOp(ctx, opHydrate)
	defer c.endOp(opHydrate, handle)

	query := url.Values{"draftKey": {draftKey}}
	if ownerWallet != "" {
		query.Set("ownerWallet", ownerWallet)
	}

	rec, err := c.doDraftRequest(opCtx, http.MethodGet, draftsPath, query, nil)
	if err != nil {
		if !aborted(err) && !errors.Is(err, models.ErrDraftNotFound) {
			c.logger.Debug("Hydrate failed, local state stands", zap.String("draftKey", draftKey), zap.Error(err))
		}
		return nil, nil
	}

	local := c.store.GetDraftRecord(draftKey)
	if local != nil && rec.UpdatedAt <= local.UpdatedAt {
		c.logger.Debug("Hydrate skipped, server record not newer",
			zap.String("draftKey", draftKey),
			zap.Int64("serverUpdatedAt", rec.UpdatedAt),
			zap.Int64("localUpdatedAt", local.UpdatedAt),
		)
		return nil, nil
	}

	adopted := c.store.UpsertDraftRecord(rec)
	c.logger.Debug("Hydrate adopted server record", zap.String("draftKey", draftKey))
	return adopted, nil
}

// PushRestore выполняет восстановление версии на сервере и принимает
// результат в локальное хранилище.
func (c *Client) PushRestore(ctx context.Context, draftKey, versionID string, maxVersions int) (*models.DraftRecord, error) {
	if c.isOffline() {
		return nil, nil
	}

	opCtx, handle := c.beginOp(ctx, opRestore)
	defer c.endOp(opRestore, handle)

	body := map[string]any{
		"draftKey":    draftKey,
		"versionId":   versionID,
		"maxVersions": maxVersions,
	}
	rec, err := c.doDraftRequest(opCtx, http.MethodPatch, draftsPath, nil, body)
	if err != nil {
		if aborted(err) {
			return nil, nil
		}
		c.logger.Warn("Restore push failed", zap.String("draftKey", draftKey), zap.Error(err))
		return nil, err
	}

	c.store.UpsertDraftRecord(rec)
	return rec, nil
}

// DeleteRemote удаляет серверную копию. Best-effort: отказ логируется
// вызывающим и не блокирует локальный сценарий.
func (c *Client) DeleteRemote(ctx context.Context, draftKey string) error {
	if c.isOffline() {
		return nil
	}

	opCtx, handle := c.beginOp(ctx, opDelete)
	defer c.endOp(opDelete, handle)

	query := url.Values{"draftKey": {draftKey}}
	req, err := c.newRequest(opCtx, http.MethodDelete, draftsPath, query, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if aborted(err) {
			return nil
		}
		return fmt.Errorf("ошибка удаления серверной копии черновика: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("удаление серверной копии вернуло статус %d", resp.StatusCode)
	}
	return nil
}

// CancelAll отменяет все незавершенные запросы (вызывается при закрытии сессии).
func (c *Client) CancelAll() {
	c.mu.Lock()
	for kind, handle := range c.inflight {
		handle.cancel()
		delete(c.inflight, kind)
	}
	c.mu.Unlock()
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ошибка сериализации тела запроса: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания HTTP запроса: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	return req, nil
}

// doDraftRequest выполняет запрос, ожидающий в ответе { "draft": ... }.
func (c *Client) doDraftRequest(ctx context.Context, method, path string, query url.Values, body any) (*models.DraftRecord, error) {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if aborted(err) {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("ошибка запроса к draft-service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, models.ErrDraftNotFound
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("draft-service вернул статус %d", resp.StatusCode)
	}

	var payload models.DraftResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("ошибка декодирования ответа draft-service: %w", err)
	}
	if payload.Draft == nil {
		return nil, errors.New("ответ draft-service не содержит записи")
	}
	return payload.Draft, nil
}
