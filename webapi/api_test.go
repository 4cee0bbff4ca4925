package webapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zillafilter/adblock"
	"zillafilter/config"
	"zillafilter/fetcher"
	"zillafilter/pipeline"
	"zillafilter/stats"
)

func newTestServer(t *testing.T) (*Server, *stats.Stats) {
	t.Helper()
	cfg := config.Default()
	rs, err := adblock.Build(adblock.EngineSimple, adblock.DefaultRules)
	require.NoError(t, err)

	st := stats.NewStats(100)
	p := pipeline.New(rs, fetcher.New(fetcher.Options{}), st, pipeline.Options{
		DefaultSourceURL: cfg.Filter.DefaultSourceURL,
	})
	return NewServer(cfg, p, st), st
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestInterceptRelaysUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "a=1")
		w.Header().Add("Set-Cookie", "b=2")
		w.Header().Set("Content-Type", "text/css")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("body{}"))
	}))
	defer upstream.Close()

	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/api/intercept?url="+url.QueryEscape(upstream.URL+"/site.css"))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())
	assert.Equal(t, []string{"a=1", "b=2"}, rec.Header().Values("Set-Cookie"))
	assert.Equal(t, "text/css", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestInterceptBlocked(t *testing.T) {
	s, st := newTestServer(t)
	rec := get(t, s.Handler(), "/api/intercept?url="+url.QueryEscape("https://ads.doubleclick.net/x"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, int64(1), st.GetSnapshot(0).Blocked)
}

func TestInterceptMalformed(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s.Handler(), "/api/intercept?url="+url.QueryEscape("not a valid url"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = get(t, s.Handler(), "/api/intercept")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInterceptKeepsRequestID(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/intercept?url="+url.QueryEscape("https://ads.doubleclick.net/x"), nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestCheck(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s.Handler(), "/api/check?url="+url.QueryEscape("https://example.com/ad.png"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool        `json:"success"`
		Data    CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "block", resp.Data.Decision)
	assert.Equal(t, "/ad.png", resp.Data.Rule)
	assert.Equal(t, "image", resp.Data.ResourceType)
	assert.Equal(t, "https://adblock-tester.com/", resp.Data.SourceURL)

	rec = get(t, s.Handler(), "/api/check?url="+url.QueryEscape("https://cdn.test/app.js")+"&source="+url.QueryEscape("https://news.test/"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "allow", resp.Data.Decision)
	assert.Equal(t, "script", resp.Data.ResourceType)
	assert.Equal(t, "https://news.test/", resp.Data.SourceURL)

	rec = get(t, s.Handler(), "/api/check?url=relative.js")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsAndClear(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	get(t, h, "/api/intercept?url="+url.QueryEscape("https://ads.doubleclick.net/x"))

	rec := get(t, h, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Requests stats.Snapshot `json:"requests"`
			Rules    struct {
				Engine string `json:"engine"`
				Count  int    `json:"count"`
			} `json:"rules"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Data.Requests.Blocked)
	require.Len(t, resp.Data.Requests.TopBlocked, 1)
	assert.Equal(t, "ads.doubleclick.net", resp.Data.Requests.TopBlocked[0].Host)
	assert.Equal(t, "simple", resp.Data.Rules.Engine)
	assert.Equal(t, 2, resp.Data.Rules.Count)

	rec = get(t, h, "/api/stats/clear")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stats/clear", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, h, "/api/stats")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(0), resp.Data.Requests.Blocked)
}

func TestMetricsAndHealth(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	get(t, h, "/api/intercept?url="+url.QueryEscape("https://ads.doubleclick.net/x"))

	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "zillafilter_requests_total"))

	rec = get(t, h, "/health")
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.AllowedOrigins = []string{"http://localhost:3000"}

	req := httptest.NewRequest(http.MethodOptions, "/api/check", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

// TestForeignOriginRejected 其他网站不能借 /api/intercept 读取内网资源
func TestForeignOriginRejected(t *testing.T) {
	var hits int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write([]byte("router-admin-secret"))
	}))
	defer upstream.Close()

	s, st := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/intercept?url="+url.QueryEscape(upstream.URL+"/admin"), nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotContains(t, rec.Body.String(), "router-admin-secret")
	assert.Zero(t, hits)

	get(t, h, "/api/intercept?url="+url.QueryEscape("https://ads.doubleclick.net/x"))
	req = httptest.NewRequest(http.MethodPost, "/api/stats/clear", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, int64(1), st.GetSnapshot(0).Blocked)
}

func TestNoOriginGetsNoCORSHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/api/intercept?url="+url.QueryEscape(upstream.URL+"/page"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://"+s.cfg.ListenAddr)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
