package localstore

import (
	"encoding/json"
	"fmt"
	"testing"

	"story-draft-server/shared/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore() (*Store, *MemoryBackend) {
	backend := NewMemoryBackend()
	return NewStore(backend, zap.NewNop()), backend
}

func saveParams(key, content string, maxVersions int) SaveSnapshotParams {
	return SaveSnapshotParams{
		DraftKey:    key,
		StoryType:   "text",
		StoryFormat: "free",
		Snapshot:    models.Snapshot{Title: "История", Content: content},
		Reason:      models.ReasonAutosave,
		MaxVersions: maxVersions,
	}
}

func TestCreateDraftKey(t *testing.T) {
	store, _ := newTestStore()

	k1 := store.CreateDraftKey("text-story")
	k2 := store.CreateDraftKey("text-story")
	assert.NotEqual(t, k1, k2)
	assert.Contains(t, k1, "text-story-")

	assert.Contains(t, store.CreateDraftKey("  "), "draft-")
}

func TestSaveDraftSnapshot_CreateAndUpdate(t *testing.T) {
	store, _ := newTestStore()

	rec := store.SaveDraftSnapshot(saveParams("text-story-1", "v1", 5))
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Current.Version)
	assert.Empty(t, rec.Versions)
	assert.Equal(t, "text-story-1", store.GetActiveDraftKey(), "сохранение делает ключ активным")

	rec = store.SaveDraftSnapshot(saveParams("text-story-1", "v2", 5))
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.Current.Version)
	require.Len(t, rec.Versions, 1)
	assert.Equal(t, "v1", rec.Versions[0].Content)
}

func TestSaveDraftSnapshot_MaxVersionsScenario(t *testing.T) {
	// Сценарий из контракта: maxVersions=3, сохранения v1..v4.
	store, _ := newTestStore()

	for i := 1; i <= 4; i++ {
		store.SaveDraftSnapshot(saveParams("text-story-1", fmt.Sprintf("v%d", i), 3))
	}

	rec := store.GetDraftRecord("text-story-1")
	require.NotNil(t, rec)
	assert.Equal(t, "v4", rec.Current.Content)
	assert.Equal(t, 4, rec.Current.Version)
	require.Len(t, rec.Versions, 3)
	assert.Equal(t, "v3", rec.Versions[0].Content)
	assert.Equal(t, "v2", rec.Versions[1].Content)
	assert.Equal(t, "v1", rec.Versions[2].Content)
}

func TestGetDraftRecord_ReturnsDeepCopy(t *testing.T) {
	store, _ := newTestStore()
	store.SaveDraftSnapshot(saveParams("text-story-1", "v1", 5))
	store.SaveDraftSnapshot(saveParams("text-story-1", "v2", 5))

	rec := store.GetDraftRecord("text-story-1")
	require.NotNil(t, rec)
	rec.Current.Content = "mutated"
	rec.Versions[0].Content = "mutated"

	fresh := store.GetDraftRecord("text-story-1")
	assert.Equal(t, "v2", fresh.Current.Content, "мутация копии не затрагивает хранилище")
	assert.Equal(t, "v1", fresh.Versions[0].Content)

	assert.Nil(t, store.GetDraftRecord("no-such-key"))
}

func TestGetLatestDraftRecord(t *testing.T) {
	store, _ := newTestStore()

	a := store.SaveDraftSnapshot(SaveSnapshotParams{
		DraftKey:  "text-story-a",
		StoryType: "text",
		Snapshot:  models.Snapshot{Content: "a", UpdatedAt: 1000},
	})
	require.NotNil(t, a)
	b := store.SaveDraftSnapshot(SaveSnapshotParams{
		DraftKey:  "comic-story-b",
		StoryType: "comic",
		Snapshot:  models.Snapshot{Content: "b", UpdatedAt: 2000},
	})
	require.NotNil(t, b)

	latest := store.GetLatestDraftRecord(nil)
	require.NotNil(t, latest)
	assert.Equal(t, "comic-story-b", latest.DraftKey)

	latestText := store.GetLatestDraftRecord(func(r *models.DraftRecord) bool {
		return r.StoryType == "text"
	})
	require.NotNil(t, latestText)
	assert.Equal(t, "text-story-a", latestText.DraftKey)

	assert.Nil(t, store.GetLatestDraftRecord(func(r *models.DraftRecord) bool { return false }))
}

func TestUpsertDraftRecord_ServerViewWinsWholesale(t *testing.T) {
	store, _ := newTestStore()
	store.SaveDraftSnapshot(saveParams("text-story-1", "local", 5))

	remote := &models.DraftRecord{
		DraftKey:  "text-story-1",
		StoryType: "text",
		Current:   models.Snapshot{Content: "remote", Version: 7, UpdatedAt: 9999},
		Versions: []models.Version{
			{Snapshot: models.Snapshot{Content: "older"}, ID: "ver-1", Reason: models.ReasonAutosave},
		},
		UpdatedAt: 9999,
	}
	got := store.UpsertDraftRecord(remote)
	require.NotNil(t, got)

	rec := store.GetDraftRecord("text-story-1")
	assert.Equal(t, "remote", rec.Current.Content)
	assert.Equal(t, 7, rec.Current.Version)
	require.Len(t, rec.Versions, 1)
	assert.Equal(t, "ver-1", rec.Versions[0].ID)
	assert.Equal(t, "text-story-1", store.GetActiveDraftKey())
}

func TestRestoreDraftVersion(t *testing.T) {
	store, _ := newTestStore()
	store.SaveDraftSnapshot(saveParams("text-story-1", "v1", 5))
	rec := store.SaveDraftSnapshot(saveParams("text-story-1", "v2", 5))
	require.Len(t, rec.Versions, 1)

	restored := store.RestoreDraftVersion(RestoreVersionParams{
		DraftKey:  "text-story-1",
		VersionID: rec.Versions[0].ID,
	})
	require.NotNil(t, restored)
	assert.Equal(t, "v1", restored.Current.Content)
	assert.Equal(t, 3, restored.Current.Version)
	require.Len(t, restored.Versions, 1)
	assert.Equal(t, models.ReasonRestore, restored.Versions[0].Reason)
	assert.Equal(t, "v2", restored.Versions[0].Content)

	// Неизвестная версия и неизвестный ключ - nil без ошибки
	assert.Nil(t, store.RestoreDraftVersion(RestoreVersionParams{DraftKey: "text-story-1", VersionID: "nope"}))
	assert.Nil(t, store.RestoreDraftVersion(RestoreVersionParams{DraftKey: "missing", VersionID: "nope"}))
}

func TestClearDraftRecord(t *testing.T) {
	store, _ := newTestStore()
	store.SaveDraftSnapshot(saveParams("text-story-1", "v1", 5))
	require.Equal(t, "text-story-1", store.GetActiveDraftKey())

	store.ClearDraftRecord("text-story-1")
	assert.Nil(t, store.GetDraftRecord("text-story-1"))
	assert.Empty(t, store.GetActiveDraftKey(), "удаление активной записи сбрасывает указатель")
}

func TestActiveDraftKey(t *testing.T) {
	store, _ := newTestStore()
	assert.Empty(t, store.GetActiveDraftKey())

	store.SetActiveDraftKey("text-story-1")
	assert.Equal(t, "text-story-1", store.GetActiveDraftKey())

	store.SetActiveDraftKey("")
	assert.Empty(t, store.GetActiveDraftKey())
}

func TestCorruptedBlobFallsBackToEmpty(t *testing.T) {
	backend := NewMemoryBackend()
	backend.SeedBlob([]byte(`{not json at all`))

	store := NewStore(backend, zap.NewNop())
	assert.ErrorIs(t, store.Health(), models.ErrStoreCorrupted)
	assert.Nil(t, store.GetDraftRecord("anything"))
	assert.Nil(t, store.GetLatestDraftRecord(nil))

	// Последующее сохранение работает как в пустом хранилище
	rec := store.SaveDraftSnapshot(saveParams("text-story-1", "после порчи", 5))
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.Current.Version)
}

func TestStateSurvivesReload(t *testing.T) {
	backend := NewMemoryBackend()
	store := NewStore(backend, zap.NewNop())
	store.SaveDraftSnapshot(saveParams("text-story-1", "v1", 5))
	store.SaveDraftSnapshot(saveParams("text-story-1", "v2", 5))

	reloaded := NewStore(backend, zap.NewNop())
	require.NoError(t, reloaded.Health())
	rec := reloaded.GetDraftRecord("text-story-1")
	require.NotNil(t, rec)
	assert.Equal(t, "v2", rec.Current.Content)
	assert.Len(t, rec.Versions, 1)
	assert.Equal(t, "text-story-1", reloaded.GetActiveDraftKey())
}

func TestMigrateLegacyDraft_ExactlyOnce(t *testing.T) {
	backend := NewMemoryBackend()
	legacy, err := json.Marshal(map[string]any{
		"title":   "Старый черновик",
		"content": "текст из легаси-формата",
	})
	require.NoError(t, err)
	backend.SeedLegacy(legacy)

	store := NewStore(backend, zap.NewNop())
	rec := store.MigrateLegacyDraftToRecord(MigrateLegacyParams{
		DraftKey:  "text-story-1",
		StoryType: "text",
	})
	require.NotNil(t, rec)
	assert.Equal(t, "текст из легаси-формата", rec.Current.Content)
	assert.Equal(t, 1, rec.Current.Version)

	// Повторный вызов - уже нечего мигрировать
	assert.Nil(t, store.MigrateLegacyDraftToRecord(MigrateLegacyParams{
		DraftKey:  "text-story-2",
		StoryType: "text",
	}))
	assert.Nil(t, store.GetDraftRecord("text-story-2"))
}

func TestMigrateLegacyDraft_EmptyOrUnparseable(t *testing.T) {
	backend := NewMemoryBackend()
	backend.SeedLegacy([]byte(`{"title":"  ","content":""}`))
	store := NewStore(backend, zap.NewNop())
	assert.Nil(t, store.MigrateLegacyDraftToRecord(MigrateLegacyParams{DraftKey: "k", StoryType: "text"}))

	backend2 := NewMemoryBackend()
	backend2.SeedLegacy([]byte(`garbage`))
	store2 := NewStore(backend2, zap.NewNop())
	assert.Nil(t, store2.MigrateLegacyDraftToRecord(MigrateLegacyParams{DraftKey: "k", StoryType: "text"}))
}
