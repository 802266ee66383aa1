package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/sinecast/internal/adapter/metrics"
	"github.com/pscheid92/sinecast/internal/app"
	"github.com/pscheid92/sinecast/internal/broadcast"
	"github.com/pscheid92/sinecast/internal/platform/config"
	"github.com/pscheid92/sinecast/internal/series"
	"github.com/stretchr/testify/require"
)

const (
	testSeed     = 0.25
	testInterval = 10 * time.Millisecond
	testStep     = 0.005
	tolerance    = 1e-9
)

type testEnv struct {
	srv         *Server
	store       *series.Store
	clock       *clockwork.FakeClock
	metrics     *metrics.Set
	broadcaster *broadcast.Broadcaster
	cfg         *config.Config
	healthChecks []HealthCheck
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                    "development",
		Port:                      "0",
		AdvanceMode:               "session",
		StreamInterval:            testInterval,
		AdvanceStep:               testStep,
		MaxStreamConnections:      100,
		MaxStreamConnectionsPerIP: 100,
		StreamConnectRate:         1000,
		StreamConnectBurst:        1000,
		RegistrationRate:          1000,
		RegistrationBurst:         1000,
	}
}

func withConfig(fn func(*config.Config)) func(*testEnv) {
	return func(env *testEnv) { fn(env.cfg) }
}

func withBroadcastMode() func(*testEnv) {
	return func(env *testEnv) { env.cfg.AdvanceMode = "broadcast" }
}

func withHealthChecks(checks ...HealthCheck) func(*testEnv) {
	return func(env *testEnv) { env.healthChecks = append(env.healthChecks, checks...) }
}

// newTestEnv builds a server over a real store, a fixed seed and a fake clock.
func newTestEnv(t *testing.T, opts ...func(*testEnv)) *testEnv {
	t.Helper()

	env := &testEnv{
		store: series.NewStore(),
		clock: clockwork.NewFakeClock(),
		cfg:   testConfig(),
	}
	for _, opt := range opts {
		opt(env)
	}

	env.metrics = metrics.NewSet(env.store.Len)
	svc := app.NewService(env.store, func() float64 { return testSeed }, env.metrics.Series)

	if env.cfg.AdvanceMode == "broadcast" {
		env.broadcaster = broadcast.NewBroadcaster(env.store, env.clock, env.cfg.StreamInterval, env.cfg.AdvanceStep, env.metrics.Stream)
		t.Cleanup(env.broadcaster.Stop)
	}

	var hub streamHub
	if env.broadcaster != nil {
		hub = env.broadcaster
	}

	srv, err := NewServer(env.cfg, svc, env.store, hub, env.clock, env.metrics, env.healthChecks)
	require.NoError(t, err)
	env.srv = srv

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return env
}

// serve starts a real listener in front of the router for WebSocket tests.
func (env *testEnv) serve(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(env.srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) postSeries(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/series", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return env.do(req)
}

// stepClock waits until n timers are parked on the clock, then fires them.
func (env *testEnv) stepClock(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.clock.BlockUntilContext(ctx, n))
	env.clock.Advance(env.cfg.StreamInterval)
}

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]float64 {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]float64
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}
