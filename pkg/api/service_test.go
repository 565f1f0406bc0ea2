package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accessops/idsync/pkg/diffcache"
	"github.com/accessops/idsync/pkg/source"
)

type staticSource struct {
	rows []source.Row
}

func (s *staticSource) Execute(_ context.Context, _ string, _ source.Params) ([]source.Row, error) {
	return s.rows, nil
}

const testQuery = "SELECT cpf, nome FROM pessoal"

func newTestApp(t *testing.T, src *staticSource) (*fiber.App, *diffcache.Cache) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cache, err := diffcache.New(log, src, &diffcache.Config{
		Path:           filepath.Join(t.TempDir(), "cache.db"),
		RetentionHours: 24,
	})
	require.NoError(t, err)

	svc := NewService(log, &Config{Enabled: true, Addr: ":0"}, cache, nil, testQuery, nil)

	return svc.(*service).newApp(), cache
}

func doRequest(t *testing.T, app *fiber.App, method, target string) (*http.Response, map[string]any) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var body map[string]any
	if resp.Header.Get("Content-Type") == fiber.MIMEApplicationJSON {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	}

	return resp, body
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t, &staticSource{})

	resp, _ := doRequest(t, app, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	src := &staticSource{rows: []source.Row{{"111", "Ana"}, {"222", "Bruno"}}}
	app, cache := newTestApp(t, src)

	_, err := cache.ProcessSelect(context.Background(), testQuery, nil)
	require.NoError(t, err)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/cache/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.EqualValues(t, 1, body["total_queries"])
	assert.EqualValues(t, 2, body["total_active_rows"])
}

func TestDataEndpoint(t *testing.T) {
	src := &staticSource{rows: []source.Row{{"111", "Ana"}, {"222", "Bruno"}}}
	app, cache := newTestApp(t, src)

	_, err := cache.ProcessSelect(context.Background(), testQuery, nil)
	require.NoError(t, err)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/cache/data")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.EqualValues(t, 2, body["count"])
}

func TestDeletedEndpoint(t *testing.T) {
	src := &staticSource{rows: []source.Row{{"111", "Ana"}, {"222", "Bruno"}}}
	app, cache := newTestApp(t, src)

	_, err := cache.ProcessSelect(context.Background(), testQuery, nil)
	require.NoError(t, err)

	src.rows = []source.Row{{"111", "Ana"}}
	_, err = cache.ProcessSelect(context.Background(), testQuery, nil)
	require.NoError(t, err)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/cache/deleted?hours=1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.EqualValues(t, 1, body["count"])

	records, ok := body["records"].([]any)
	require.True(t, ok)
	require.Len(t, records, 1)

	record, ok := records[0].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, record["deleted_at"])
}

func TestDeletedEndpointRejectsBadHours(t *testing.T) {
	app, _ := newTestApp(t, &staticSource{})

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/cache/deleted?hours=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCleanupEndpoint(t *testing.T) {
	app, _ := newTestApp(t, &staticSource{})

	resp, body := doRequest(t, app, http.MethodPost, "/api/v1/cache/cleanup")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Fresh store, nothing expired.
	assert.EqualValues(t, 0, body["purged"])
}

func TestClearEndpoint(t *testing.T) {
	src := &staticSource{rows: []source.Row{{"111", "Ana"}}}
	app, cache := newTestApp(t, src)

	_, err := cache.ProcessSelect(context.Background(), testQuery, nil)
	require.NoError(t, err)

	resp, body := doRequest(t, app, http.MethodDelete, "/api/v1/cache")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["cleared"])

	stats, err := cache.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalQueries)
}

func TestQueueEndpointWithoutQueue(t *testing.T) {
	app, _ := newTestApp(t, &staticSource{})

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/queue")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{Enabled: true}
	require.ErrorIs(t, cfg.Validate(), ErrAPIAddrRequired)

	cfg = &Config{Enabled: false}
	require.NoError(t, cfg.Validate())

	cfg = &Config{Enabled: true, Addr: ":8080"}
	require.NoError(t, cfg.Validate())
}
