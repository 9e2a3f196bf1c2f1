package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"story-draft-server/draft-service/internal/handler"
	"story-draft-server/draft-service/internal/repository"
	"story-draft-server/draft-service/internal/service"
	"story-draft-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testJWTSecret = "test-secret-for-drafts"

func newTestRouter(t *testing.T) (*gin.Engine, service.DraftService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := service.NewDraftService(repository.NewMemoryDraftRepository(), nil, nil, zap.NewNop())
	h := handler.NewDraftHandler(svc, zap.NewNop(), testJWTSecret)

	router := gin.New()
	h.RegisterRoutes(router)
	return router, svc
}

func signTestToken(t *testing.T, wallet string) string {
	t.Helper()
	claims := models.Claims{
		Wallet: wallet,
		Role:   "wallet",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func doRequest(t *testing.T, router *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "0xabc"))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeDraft(t *testing.T, rr *httptest.ResponseRecorder) *models.DraftRecord {
	t.Helper()
	var resp models.DraftResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Draft)
	return resp.Draft
}

func TestSaveDraft_CreateAndUpdateStatuses(t *testing.T) {
	router, _ := newTestRouter(t)

	body := map[string]any{
		"draftKey":  "text-story-1",
		"storyType": "text",
		"snapshot":  map[string]any{"title": "История", "content": "v1"},
	}
	rr := doRequest(t, router, http.MethodPut, "/api/story-drafts", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rec := decodeDraft(t, rr)
	assert.Equal(t, 1, rec.Current.Version)

	body["snapshot"] = map[string]any{"title": "История", "content": "v2"}
	rr = doRequest(t, router, http.MethodPut, "/api/story-drafts", body)
	require.Equal(t, http.StatusOK, rr.Code)
	rec = decodeDraft(t, rr)
	assert.Equal(t, 2, rec.Current.Version)
	assert.Len(t, rec.Versions, 1)
}

func TestSaveDraft_BadRequests(t *testing.T) {
	router, _ := newTestRouter(t)

	// Отсутствующий snapshot
	rr := doRequest(t, router, http.MethodPut, "/api/story-drafts", map[string]any{"draftKey": "k"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Пустой после нормализации snapshot
	rr = doRequest(t, router, http.MethodPut, "/api/story-drafts", map[string]any{
		"draftKey": "k",
		"snapshot": map[string]any{"title": "   "},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Пустой draftKey
	rr = doRequest(t, router, http.MethodPut, "/api/story-drafts", map[string]any{
		"snapshot": map[string]any{"title": "t"},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetDraft(t *testing.T) {
	router, svc := newTestRouter(t)

	_, _, err := svc.SaveDraft(context.Background(), service.SaveDraftCommand{
		DraftKey:    "text-story-1",
		OwnerWallet: "0xabc",
		Snapshot:    models.Snapshot{Content: "текст"},
	})
	require.NoError(t, err)

	rr := doRequest(t, router, http.MethodGet, "/api/story-drafts?draftKey=text-story-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rec := decodeDraft(t, rr)
	assert.Equal(t, "text-story-1", rec.DraftKey)

	rr = doRequest(t, router, http.MethodGet, "/api/story-drafts?draftKey=text-story-1&ownerWallet=0xother", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, router, http.MethodGet, "/api/story-drafts?draftKey=missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRestoreDraftVersion(t *testing.T) {
	router, svc := newTestRouter(t)
	ctx := context.Background()

	_, _, err := svc.SaveDraft(ctx, service.SaveDraftCommand{
		DraftKey: "text-story-1",
		Snapshot: models.Snapshot{Content: "v1"},
	})
	require.NoError(t, err)
	rec, _, err := svc.SaveDraft(ctx, service.SaveDraftCommand{
		DraftKey: "text-story-1",
		Snapshot: models.Snapshot{Content: "v2"},
	})
	require.NoError(t, err)
	require.Len(t, rec.Versions, 1)

	rr := doRequest(t, router, http.MethodPatch, "/api/story-drafts", map[string]any{
		"draftKey":  "text-story-1",
		"versionId": rec.Versions[0].ID,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	restored := decodeDraft(t, rr)
	assert.Equal(t, "v1", restored.Current.Content)
	assert.Equal(t, 3, restored.Current.Version)

	rr = doRequest(t, router, http.MethodPatch, "/api/story-drafts", map[string]any{
		"draftKey":  "text-story-1",
		"versionId": "no-such-version",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(t, router, http.MethodPatch, "/api/story-drafts", map[string]any{
		"draftKey":  "missing",
		"versionId": "whatever",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteDraft_Idempotent(t *testing.T) {
	router, svc := newTestRouter(t)

	_, _, err := svc.SaveDraft(context.Background(), service.SaveDraftCommand{
		DraftKey: "text-story-1",
		Snapshot: models.Snapshot{Content: "текст"},
	})
	require.NoError(t, err)

	rr := doRequest(t, router, http.MethodDelete, "/api/story-drafts?draftKey=text-story-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp models.SuccessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	// Повторное удаление несуществующего ключа тоже success
	rr = doRequest(t, router, http.MethodDelete, "/api/story-drafts?draftKey=text-story-1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthRequired(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/story-drafts?draftKey=k", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/story-drafts?draftKey=k", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
