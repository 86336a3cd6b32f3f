package trending

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tagpulse-lab/tagpulse/internal/bucketstore"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func TestHandleTrending(t *testing.T) {
	asOf := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	svc, store := newEngine(t, asOf, 24*time.Hour, nil)

	delta := make(bucketstore.Delta)
	delta.Add("golang", asOf.Truncate(time.Minute), 5)
	delta.Add("python", asOf.Truncate(time.Minute), 9)
	_, _, err := store.ApplyDelta(context.Background(), delta)
	require.NoError(t, err)

	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/hashtags/trending?window=60&k=5", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp TrendingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 60, resp.WindowMinutes)
	require.Equal(t, 2, resp.TotalCount)
	require.Equal(t, "python", resp.Hashtags[0].Hashtag)
	require.Equal(t, int64(9), resp.Hashtags[0].Count)
}

func TestHandleTrending_DefaultsApplied(t *testing.T) {
	asOf := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	svc, _ := newEngine(t, asOf, 24*time.Hour, nil)
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/hashtags/trending", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp TrendingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 60, resp.WindowMinutes)
}

func TestHandleTrending_ParameterValidation(t *testing.T) {
	asOf := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	svc, _ := newEngine(t, asOf, 24*time.Hour, nil)
	router := newTestRouter(svc)

	for _, path := range []string{
		"/v1/hashtags/trending?k=0",
		"/v1/hashtags/trending?k=101",
		"/v1/hashtags/trending?window=0",
		"/v1/hashtags/trending?window=notanumber",
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code, "path %s", path)
	}
}

func TestHandleTrending_WindowExceedsHistory(t *testing.T) {
	asOf := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	// Retention of one hour, request 120 minutes.
	svc, _ := newEngine(t, asOf, time.Hour, nil)
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/hashtags/trending?window=120", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "window_exceeds_history")
}

func TestHandleStatus(t *testing.T) {
	asOf := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	svc, store := newEngine(t, asOf, 24*time.Hour, nil)

	_, err := store.Increment(context.Background(), "python", asOf)
	require.NoError(t, err)

	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/hashtags/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.TotalHashtags)
	require.Equal(t, 1, resp.TotalBuckets)
}
