package fixture

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webview-isolation/internal/infrastructure/monitoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestServerServesPageAtAnyPath(t *testing.T) {
	s := NewServer(ServerConfig{}, nil)

	for _, path := range []string{"/", "/team/example_1", "/index.html?x=1"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "function open_window()", path)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	}
}

func TestServerRejectsWrites(t *testing.T) {
	s := NewServer(ServerConfig{}, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerLifecycle(t *testing.T) {
	s := NewServer(ServerConfig{Host: "127.0.0.1", Port: 0}, nil)
	assert.Empty(t, s.URL())

	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "second start must fail")

	url := s.URL()
	require.NotEmpty(t, url)

	var wg sync.WaitGroup
	client := &http.Client{Timeout: 5 * time.Second}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(url + "/")
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			assert.Equal(t, string(Page()), string(body))
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stop must be idempotent")
	assert.Empty(t, s.URL())
}

func TestServerRecordsRequests(t *testing.T) {
	metrics := monitoring.NewMetrics()
	s := NewServer(ServerConfig{Metrics: metrics}, nil)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("fixture", "GET", "200")))
}
