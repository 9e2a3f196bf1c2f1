package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"story-draft-server/editor-client/internal/localstore"
	"story-draft-server/editor-client/internal/syncclient"
	"story-draft-server/shared/models"

	"go.uber.org/zap"
)

// DefaultAutosaveInterval - период фонового автосохранения.
const DefaultAutosaveInterval = 8 * time.Second

// State - фаза жизненного цикла одной сессии редактирования.
type State string

const (
	// StateResolving - определяется draftKey и выполняется миграция легаси.
	StateResolving State = "resolving"
	// StateRecoverable - найден содержательный черновик, пользователю
	// предлагается восстановить или отбросить его.
	StateRecoverable State = "recoverable"
	// StateEditing - живое редактирование с автосохранением.
	StateEditing State = "editing"
	// StateClosed - сессия завершена, таймер остановлен.
	StateClosed State = "closed"
)

// FormState - текущее содержимое полей формы редактора.
type FormState struct {
	Title          string
	Description    string
	Genre          string
	Content        string
	CoverImageName string
}

// Snapshot переводит форму в снапшот без таймстемпа и версии
// (их назначают хранилища).
func (f FormState) Snapshot() models.Snapshot {
	return models.Snapshot{
		Title:          f.Title,
		Description:    f.Description,
		Genre:          f.Genre,
		Content:        f.Content,
		CoverImageName: f.CoverImageName,
	}
}

// Fingerprint - производное сравнимое значение для обнаружения
// "ничего не изменилось": упорядоченный кортеж текстовых полей.
func (f FormState) Fingerprint() string {
	data, err := json.Marshal([]string{f.Title, f.Description, f.Genre, f.Content, f.CoverImageName})
	if err != nil {
		return ""
	}
	return string(data)
}

func formFromSnapshot(s models.Snapshot) FormState {
	return FormState{
		Title:          s.Title,
		Description:    s.Description,
		Genre:          s.Genre,
		Content:        s.Content,
		CoverImageName: s.CoverImageName,
	}
}

// Options - параметры открытия сессии редактирования.
type Options struct {
	// DraftKey - явный ключ от вызывающего; пустой ключ включает
	// восстановление последнего локального черновика подходящего типа,
	// а при его отсутствии - выпуск нового ключа.
	DraftKey         string
	StoryType        string
	StoryFormat      string
	OwnerWallet      string
	OwnerRole        models.OwnerRole
	MaxVersions      int
	AutosaveInterval time.Duration
}

// Controller ведет одну сессию редактирования одного draftKey: когда
// сохранять, когда пропустить, когда предложить восстановление. Сам он
// не хранит ничего - вся персистентность в store и syncclient.
type Controller struct {
	store  *localstore.Store
	sync   *syncclient.Client
	opts   Options
	logger *zap.Logger

	mu              sync.Mutex
	state           State
	draftKey        string
	form            FormState
	lastFingerprint string
	recovered       *models.DraftRecord

	stopAutosave  chan struct{}
	cancelHydrate context.CancelFunc
	wg            sync.WaitGroup
}

// NewController создает контроллер сессии. Start должен быть вызван до
// любых операций с формой.
func NewController(store *localstore.Store, syncClient *syncclient.Client, opts Options, logger *zap.Logger) *Controller {
	if opts.StoryType == "" {
		opts.StoryType = "text"
	}
	if opts.StoryFormat == "" {
		opts.StoryFormat = "free"
	}
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = DefaultAutosaveInterval
	}
	return &Controller{
		store:        store,
		sync:         syncClient,
		opts:         opts,
		logger:       logger.Named("EditorSession"),
		state:        StateResolving,
		stopAutosave: make(chan struct{}),
	}
}

// Start разрешает draftKey, выполняет одноразовую миграцию легаси-формата,
// предлагает восстановление найденного содержательного черновика, запускает
// фоновой hydrate и таймер автосохранения.
func (c *Controller) Start(ctx context.Context) {
	key := c.resolveDraftKey()

	c.mu.Lock()
	c.draftKey = key
	c.mu.Unlock()

	c.store.SetActiveDraftKey(key)

	if migrated := c.store.MigrateLegacyDraftToRecord(localstore.MigrateLegacyParams{
		DraftKey:    key,
		StoryType:   c.opts.StoryType,
		StoryFormat: c.opts.StoryFormat,
		MaxVersions: c.opts.MaxVersions,
	}); migrated != nil {
		c.logger.Info("Legacy draft migrated", zap.String("draftKey", key))
	}

	local := c.store.GetDraftRecord(key)

	c.mu.Lock()
	if local != nil && local.Current.HasMeaningfulContent() {
		c.state = StateRecoverable
		c.recovered = local
		c.lastFingerprint = formFromSnapshot(local.Current).Fingerprint()
	} else {
		c.state = StateEditing
	}
	c.mu.Unlock()

	// Фоновая гидратация: серверная копия может быть свежее локальной.
	hydrateCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelHydrate = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		adopted, err := c.sync.Hydrate(hydrateCtx, key, c.opts.OwnerWallet)
		if err != nil || adopted == nil {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		// Предлагаем восстановление, только если диалог еще не показан
		// и сессия не ушла дальше.
		if adopted.Current.HasMeaningfulContent() && c.state != StateClosed && c.recovered == nil {
			c.state = StateRecoverable
			c.recovered = adopted
			c.lastFingerprint = formFromSnapshot(adopted.Current).Fingerprint()
		}
	}()

	c.wg.Add(1)
	go c.autosaveLoop(ctx)
}

// resolveDraftKey: явный ключ > самый свежий локальный черновик того же
// типа > новый ключ.
func (c *Controller) resolveDraftKey() string {
	if c.opts.DraftKey != "" {
		return c.opts.DraftKey
	}
	latest := c.store.GetLatestDraftRecord(func(r *models.DraftRecord) bool {
		return r.StoryType == c.opts.StoryType
	})
	if latest != nil {
		return latest.DraftKey
	}
	return c.store.CreateDraftKey(c.opts.StoryType + "-story")
}

// autosaveLoop читает актуальное состояние формы из ячейки в момент
// срабатывания таймера, а не замыкает его при старте.
func (c *Controller) autosaveLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.opts.AutosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.persist(ctx, models.ReasonAutosave, false)
		case <-c.stopAutosave:
			return
		case <-ctx.Done():
			return
		}
	}
}

// State возвращает текущую фазу сессии.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DraftKey возвращает ключ, за которым закреплена сессия.
func (c *Controller) DraftKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draftKey
}

// RecoveredDraft возвращает запись, предложенную к восстановлению, или nil.
func (c *Controller) RecoveredDraft() *models.DraftRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recovered.Clone()
}

// SyncStatus - индикатор синхронизации для UI.
func (c *Controller) SyncStatus() syncclient.SyncStatus {
	return c.sync.Status()
}

// SetForm обновляет ячейку с актуальным содержимым формы.
func (c *Controller) SetForm(form FormState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = form
}

// FieldBlur - сохранение по уходу фокуса с поля.
func (c *Controller) FieldBlur(ctx context.Context) {
	c.persist(ctx, models.ReasonBlur, false)
}

// SaveNow - явное сохранение по действию пользователя.
func (c *Controller) SaveNow(ctx context.Context) {
	c.persist(ctx, models.ReasonManual, true)
}

// NavigateAway - уход со страницы редактора. Навигация всегда пытается
// сохранить, независимо от fingerprint'а: молчаливая потеря данных на
// выходе недопустима.
func (c *Controller) NavigateAway(ctx context.Context) {
	c.persist(ctx, models.ReasonManual, true)
}

// Suspend - скрытие/выгрузка страницы. Форсированное сохранение, как и навигация.
func (c *Controller) Suspend(ctx context.Context) {
	c.persist(ctx, models.ReasonBlur, true)
}

// persist - общий путь сохранения. Автосохранение с неизменным
// fingerprint'ом - полный no-op (ни локальной записи, ни сети), если только
// не висит незакрытая ошибка синхронизации: тогда сеть пробуется снова.
// Иначе всегда сначала синхронная локальная запись, затем push.
func (c *Controller) persist(ctx context.Context, reason models.SaveReason, force bool) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateRecoverable {
		c.mu.Unlock()
		return
	}
	form := c.form
	key := c.draftKey
	unchanged := form.Fingerprint() == c.lastFingerprint
	c.mu.Unlock()

	snap := form.Snapshot()
	if !snap.HasMeaningfulContent() {
		return
	}
	if reason == models.ReasonAutosave && !force && unchanged && !c.sync.HasSyncError() {
		return
	}

	// Локальная запись первой: сетевой отказ не может стоить данных.
	rec := c.store.SaveDraftSnapshot(localstore.SaveSnapshotParams{
		DraftKey:    key,
		StoryType:   c.opts.StoryType,
		StoryFormat: c.opts.StoryFormat,
		Snapshot:    snap,
		Reason:      reason,
		MaxVersions: c.opts.MaxVersions,
	})
	if rec == nil {
		return
	}

	c.mu.Lock()
	c.lastFingerprint = form.Fingerprint()
	c.mu.Unlock()

	if _, err := c.sync.Push(ctx, syncclient.PushParams{
		DraftKey:    key,
		StoryType:   c.opts.StoryType,
		StoryFormat: c.opts.StoryFormat,
		OwnerWallet: c.opts.OwnerWallet,
		OwnerRole:   c.opts.OwnerRole,
		Snapshot:    rec.Current,
		Reason:      reason,
		MaxVersions: c.opts.MaxVersions,
	}); err != nil {
		// Состояние "сохранено локально" уже выставлено клиентом синхронизации.
		c.logger.Debug("Push failed after local save", zap.String("draftKey", key), zap.Error(err))
	}
}

// AcceptRecovery загружает предложенный черновик в форму и продолжает
// редактирование.
func (c *Controller) AcceptRecovery() FormState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recovered == nil {
		return c.form
	}
	c.form = formFromSnapshot(c.recovered.Current)
	c.lastFingerprint = c.form.Fingerprint()
	c.recovered = nil
	c.state = StateEditing
	return c.form
}

// DiscardRecovery отбрасывает предложенный черновик: локальная запись
// удаляется, серверная - best-effort (отказ удаления логируется и не
// блокирует редактирование).
func (c *Controller) DiscardRecovery(ctx context.Context) {
	c.mu.Lock()
	if c.recovered == nil {
		c.mu.Unlock()
		return
	}
	key := c.draftKey
	c.recovered = nil
	c.state = StateEditing
	c.lastFingerprint = ""
	c.mu.Unlock()

	c.store.ClearDraftRecord(key)
	c.store.SetActiveDraftKey(key)

	if err := c.sync.DeleteRemote(ctx, key); err != nil {
		c.logger.Warn("Failed to delete remote copy of discarded draft", zap.String("draftKey", key), zap.Error(err))
	}
}

// Complete завершает сессию после успешной публикации: обе копии черновика
// удаляются, активный ключ сбрасывается.
func (c *Controller) Complete(ctx context.Context) {
	c.mu.Lock()
	key := c.draftKey
	c.mu.Unlock()

	c.store.ClearDraftRecord(key)
	c.store.SetActiveDraftKey("")

	if err := c.sync.DeleteRemote(ctx, key); err != nil {
		c.logger.Warn("Failed to delete remote draft on completion", zap.String("draftKey", key), zap.Error(err))
	}
	c.shutdown()
}

// Close останавливает таймер и отменяет незавершенные запросы, не трогая
// сохраненные данные.
func (c *Controller) Close() {
	c.shutdown()
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	cancelHydrate := c.cancelHydrate
	c.mu.Unlock()

	close(c.stopAutosave)
	if cancelHydrate != nil {
		cancelHydrate()
	}
	c.sync.CancelAll()
	c.wg.Wait()
}
