package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"story-draft-server/editor-client/internal/localstore"
	"story-draft-server/editor-client/internal/syncclient"
	"story-draft-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	store      *localstore.Store
	client     *syncclient.Client
	controller *Controller
	serverHits *atomic.Int64

	mu         sync.Mutex
	lastReason string
}

// lastSaveReason возвращает saveReason последнего принятого сервером PUT.
func (f *fixture) lastSaveReason() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReason
}

// newFixture собирает контроллер поверх in-memory хранилища и клиента,
// направленного на тестовый сервер. Сервер эхом возвращает принятый
// снапшот, как это делает настоящий.
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	// Считаются только записывающие запросы: фоновый hydrate (GET) стартует
	// асинхронно и не должен влиять на проверки "в сеть не ходили".
	f := &fixture{serverHits: &atomic.Int64{}}
	puts := &atomic.Int64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			f.serverHits.Add(1)
		}
		switch r.Method {
		case http.MethodGet:
			http.Error(w, `{"error":"draft not found"}`, http.StatusNotFound)
		case http.MethodDelete:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			snap, _ := body["snapshot"].(map[string]any)
			content, _ := snap["content"].(string)
			reason, _ := body["saveReason"].(string)
			f.mu.Lock()
			f.lastReason = reason
			f.mu.Unlock()
			rec := &models.DraftRecord{
				DraftKey:  body["draftKey"].(string),
				StoryType: "text",
				OwnerRole: models.RoleWallet,
				Current: models.Snapshot{
					Content:   content,
					Version:   int(puts.Add(1)),
					UpdatedAt: time.Now().UnixMilli(),
				},
				Versions:  []models.Version{},
				UpdatedAt: time.Now().UnixMilli(),
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(models.DraftResponse{Draft: rec})
		}
	}))
	t.Cleanup(srv.Close)

	f.store = localstore.NewStore(localstore.NewMemoryBackend(), zap.NewNop())
	client, err := syncclient.NewClient(srv.URL, "test-token", f.store, zap.NewNop())
	require.NoError(t, err)
	f.client = client

	f.controller = NewController(f.store, f.client, opts, zap.NewNop())
	t.Cleanup(f.controller.Close)

	return f
}

func TestStart_MintsKeyWhenNothingLocal(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})
	f.controller.Start(context.Background())

	key := f.controller.DraftKey()
	assert.True(t, strings.HasPrefix(key, "text-story-"))
	assert.Equal(t, StateEditing, f.controller.State())
	assert.Equal(t, key, f.store.GetActiveDraftKey())
}

func TestStart_ExplicitKeyWins(t *testing.T) {
	f := newFixture(t, Options{DraftKey: "text-story-explicit", StoryType: "text"})
	f.controller.Start(context.Background())

	assert.Equal(t, "text-story-explicit", f.controller.DraftKey())
}

func TestStart_ResumesLatestLocalDraftOfSameType(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})

	f.store.SaveDraftSnapshot(localstore.SaveSnapshotParams{
		DraftKey:  "comic-story-1",
		StoryType: "comic",
		Snapshot:  models.Snapshot{Content: "комикс", UpdatedAt: 3000},
	})
	f.store.SaveDraftSnapshot(localstore.SaveSnapshotParams{
		DraftKey:  "text-story-old",
		StoryType: "text",
		Snapshot:  models.Snapshot{Content: "старое", UpdatedAt: 1000},
	})

	f.controller.Start(context.Background())

	// Подхватывается последний черновик того же типа, чужой тип игнорируется
	assert.Equal(t, "text-story-old", f.controller.DraftKey())
	assert.Equal(t, StateRecoverable, f.controller.State())

	recovered := f.controller.RecoveredDraft()
	require.NotNil(t, recovered)
	assert.Equal(t, "старое", recovered.Current.Content)
}

func TestRecovery_AcceptLoadsDraftIntoForm(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})
	f.store.SaveDraftSnapshot(localstore.SaveSnapshotParams{
		DraftKey:  "text-story-1",
		StoryType: "text",
		Snapshot:  models.Snapshot{Title: "Титул", Content: "восстановимое", UpdatedAt: 1000},
	})

	f.controller.Start(context.Background())
	require.Equal(t, StateRecoverable, f.controller.State())

	form := f.controller.AcceptRecovery()
	assert.Equal(t, "Титул", form.Title)
	assert.Equal(t, "восстановимое", form.Content)
	assert.Equal(t, StateEditing, f.controller.State())
	assert.Nil(t, f.controller.RecoveredDraft())
}

func TestRecovery_DiscardClearsLocalRecord(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})
	f.store.SaveDraftSnapshot(localstore.SaveSnapshotParams{
		DraftKey:  "text-story-1",
		StoryType: "text",
		Snapshot:  models.Snapshot{Content: "ненужное", UpdatedAt: 1000},
	})

	f.controller.Start(context.Background())
	require.Equal(t, StateRecoverable, f.controller.State())

	f.controller.DiscardRecovery(context.Background())

	assert.Equal(t, StateEditing, f.controller.State())
	assert.Nil(t, f.store.GetDraftRecord("text-story-1"))
	// Ключ остается за сессией: отказ от старого текста не меняет черновик
	assert.Equal(t, "text-story-1", f.store.GetActiveDraftKey())
}

func TestSaveNow_PersistsLocallyAndPushes(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})
	f.controller.Start(context.Background())
	key := f.controller.DraftKey()

	f.controller.SetForm(FormState{Title: "Первый", Content: "текст истории"})
	f.controller.SaveNow(context.Background())

	local := f.store.GetDraftRecord(key)
	require.NotNil(t, local)
	assert.Equal(t, StateEditing, f.controller.State())
	assert.False(t, f.client.HasSyncError())
}

func TestPersist_EmptyFormIsFullNoop(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})
	f.controller.Start(context.Background())
	key := f.controller.DraftKey()
	before := f.serverHits.Load()

	f.controller.SetForm(FormState{Title: "   "})
	f.controller.SaveNow(context.Background())

	assert.Nil(t, f.store.GetDraftRecord(key))
	assert.Equal(t, before, f.serverHits.Load(), "пустая форма не ходит в сеть")
}

func TestAutosave_UnchangedFingerprintSkipsEverything(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text", AutosaveInterval: 25 * time.Millisecond})
	f.controller.Start(context.Background())
	key := f.controller.DraftKey()

	f.controller.SetForm(FormState{Content: "стабильный текст"})
	f.controller.SaveNow(context.Background())
	version := f.store.GetDraftRecord(key).Current.Version
	hits := f.serverHits.Load()

	// Несколько тиков без правок формы и без висящей ошибки синхронизации
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, version, f.store.GetDraftRecord(key).Current.Version)
	assert.Equal(t, hits, f.serverHits.Load(), "автосейв без изменений не пишет и не ходит в сеть")
}

func TestAutosave_TickerSavesChangedForm(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text", AutosaveInterval: 30 * time.Millisecond})
	f.controller.Start(context.Background())
	key := f.controller.DraftKey()

	f.controller.SetForm(FormState{Content: "набрано между тиками"})

	require.Eventually(t, func() bool {
		rec := f.store.GetDraftRecord(key)
		return rec != nil && rec.Current.Content == "набрано между тиками"
	}, 2*time.Second, 10*time.Millisecond)

	// Причину сохранения видно в теле PUT, принятом сервером
	require.Eventually(t, func() bool {
		return f.lastSaveReason() == string(models.ReasonAutosave)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestComplete_DeletesDraftAndClosesSession(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})
	f.controller.Start(context.Background())
	key := f.controller.DraftKey()

	f.controller.SetForm(FormState{Content: "опубликовано"})
	f.controller.SaveNow(context.Background())
	require.NotNil(t, f.store.GetDraftRecord(key))

	f.controller.Complete(context.Background())

	assert.Equal(t, StateClosed, f.controller.State())
	assert.Nil(t, f.store.GetDraftRecord(key))
	assert.Equal(t, "", f.store.GetActiveDraftKey())
}

func TestClose_KeepsSavedData(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})
	f.controller.Start(context.Background())
	key := f.controller.DraftKey()

	f.controller.SetForm(FormState{Content: "не теряем"})
	f.controller.SaveNow(context.Background())

	f.controller.Close()

	assert.Equal(t, StateClosed, f.controller.State())
	require.NotNil(t, f.store.GetDraftRecord(key))
}

func TestNavigateAway_SavesEvenWhenFingerprintUnchanged(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})
	f.controller.Start(context.Background())
	key := f.controller.DraftKey()

	f.controller.SetForm(FormState{Content: "уходим со страницы"})
	f.controller.SaveNow(context.Background())
	first := f.store.GetDraftRecord(key).Current.Version

	// Форма не менялась, но навигация все равно обязана сохранить
	f.controller.NavigateAway(context.Background())

	second := f.store.GetDraftRecord(key).Current.Version
	assert.Equal(t, first+1, second)
	assert.Equal(t, string(models.ReasonManual), f.lastSaveReason())
}

func TestPersist_BlockedWhileRecoveryPromptShowing(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})
	f.store.SaveDraftSnapshot(localstore.SaveSnapshotParams{
		DraftKey:  "text-story-1",
		StoryType: "text",
		Snapshot:  models.Snapshot{Content: "старый текст", UpdatedAt: 1000},
	})

	f.controller.Start(context.Background())
	require.Equal(t, StateRecoverable, f.controller.State())

	f.controller.SetForm(FormState{Content: "не должно записаться"})
	f.controller.SaveNow(context.Background())

	rec := f.store.GetDraftRecord("text-story-1")
	require.NotNil(t, rec)
	assert.Equal(t, "старый текст", rec.Current.Content)
}

func TestOffline_SaveNowKeepsLocalCopy(t *testing.T) {
	f := newFixture(t, Options{StoryType: "text"})
	f.controller.Start(context.Background())
	key := f.controller.DraftKey()
	f.client.SetOffline(true)
	before := f.serverHits.Load()

	f.controller.SetForm(FormState{Content: "оффлайн текст"})
	f.controller.SaveNow(context.Background())

	require.NotNil(t, f.store.GetDraftRecord(key))
	assert.Equal(t, before, f.serverHits.Load())
	assert.Equal(t, syncclient.StateOffline, f.controller.SyncStatus().State)
}
