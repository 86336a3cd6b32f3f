package recommend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tagpulse-lab/tagpulse/internal/core/storage"
)

func newTestRouter(engine *Engine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	engine.RegisterRoutes(r)
	return r
}

func scenarioSource() *stubPostSource {
	return &stubPostSource{posts: []storage.PostHashtags{
		{PostID: 1, Hashtags: []string{"python", "coding", "webdev"}},
		{PostID: 2, Hashtags: []string{"python", "coding"}},
		{PostID: 3, Hashtags: []string{"python", "coding", "ai"}},
		{PostID: 4, Hashtags: []string{"python", "datascience"}},
	}}
}

func TestHandleRecommend(t *testing.T) {
	engine := New(scenarioSource(), Options{MinRate: 0.3, MaxResults: 3})
	router := newTestRouter(engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/hashtags/recommend/python", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp RecommendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "python", resp.Hashtag)
	require.Equal(t, 1, resp.TotalCount)
	require.Equal(t, "coding", resp.Recommendations[0].Hashtag)
	require.Equal(t, 0.75, resp.Recommendations[0].Rate)
}

func TestHandleRecommend_ExplicitZeroMinRate(t *testing.T) {
	engine := New(scenarioSource(), Options{MinRate: 0.3, MaxResults: 3})
	router := newTestRouter(engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/hashtags/recommend/python?min_rate=0&max=10", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	// 0 disables the threshold instead of falling back to the default.
	var resp RecommendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 4, resp.TotalCount)
}

func TestHandleRecommend_MaxBoundsResults(t *testing.T) {
	engine := New(scenarioSource(), Options{MinRate: 0.3, MaxResults: 3})
	router := newTestRouter(engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/hashtags/recommend/python?min_rate=0.1&max=1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp RecommendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.TotalCount)
	require.Equal(t, "coding", resp.Recommendations[0].Hashtag)
}

func TestHandleRecommend_ParameterValidation(t *testing.T) {
	engine := New(scenarioSource(), Options{})
	router := newTestRouter(engine)

	for _, path := range []string{
		"/v1/hashtags/recommend/python?min_rate=1.5",
		"/v1/hashtags/recommend/python?min_rate=-0.1",
		"/v1/hashtags/recommend/python?min_rate=notanumber",
		"/v1/hashtags/recommend/python?max=0",
		"/v1/hashtags/recommend/python?max=11",
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code, "path %s", path)
		require.Contains(t, w.Body.String(), "invalid_request", "path %s", path)
	}
}

func TestHandleRecommend_MalformedHashtag(t *testing.T) {
	engine := New(scenarioSource(), Options{})
	router := newTestRouter(engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/hashtags/recommend/%20", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_request")
}

func TestHandleRecommend_UnknownHashtagReturnsEmptyList(t *testing.T) {
	engine := New(&stubPostSource{}, Options{})
	router := newTestRouter(engine)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/hashtags/recommend/nonexistent", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp RecommendResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 0, resp.TotalCount)
	require.NotNil(t, resp.Recommendations)
}
