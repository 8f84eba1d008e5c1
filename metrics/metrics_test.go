package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arloliu/go-serbridge/bridge"
	"github.com/arloliu/go-serbridge/bus"
	"github.com/arloliu/go-serbridge/endpoint"
	"github.com/arloliu/go-serbridge/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	bridge   bridge.Metrics
	bus      bus.Metrics
	endpoint endpoint.Metrics
}

func (s *fakeSource) GetMetrics() *bridge.Metrics           { return &s.bridge }
func (s *fakeSource) GetBusMetrics() *bus.Metrics           { return &s.bus }
func (s *fakeSource) GetEndpointMetrics() *endpoint.Metrics { return &s.endpoint }

func scrape(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)

	return rec.Code, string(body)
}

func TestCollectors(t *testing.T) {
	src := &fakeSource{}
	cs := Collectors(src)
	require.Len(t, cs, 22)

	src.bus.DropCount.Add(3)
	assert.InDelta(t, 3, testutil.ToFloat64(cs[10]), 0)

	src.bridge.ClientGauge.Add(2)
	assert.InDelta(t, 2, testutil.ToFloat64(cs[3]), 0)
}

func TestHandler_ServesLiveValues(t *testing.T) {
	src := &fakeSource{}
	reg, err := NewRegistry(src)
	require.NoError(t, err)

	h := NewHandler(reg)

	src.bridge.AcceptCount.Add(5)
	src.bus.PublishCount.Add(42)
	src.endpoint.ActiveGauge.Add(3)

	code, body := scrape(t, h, DefaultPath)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "serbridge_bridge_accepted_total 5")
	assert.Contains(t, body, "serbridge_bus_published_total 42")
	assert.Contains(t, body, "serbridge_endpoint_active 3")
	assert.Contains(t, body, "go_goroutines")

	code, body = scrape(t, h, "/health")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)
}

func TestNewRegistry_FromBridge(t *testing.T) {
	cfg, err := bridge.NewConfig("127.0.0.1", 0)
	require.NoError(t, err)
	b, err := bridge.New(t.Context(), cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	reg, err := NewRegistry(b)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "serbridge_bridge_clients")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListenAndServe_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	errCh := make(chan error, 1)
	go func() {
		errCh <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), logger.NewPermissiveMockLogger())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
