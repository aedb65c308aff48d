package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/isdelr/ender-monitor-be/internal/auth"
	"github.com/isdelr/ender-monitor-be/internal/database"
	"github.com/isdelr/ender-monitor-be/internal/insights"
	"github.com/isdelr/ender-monitor-be/internal/models"
	"github.com/isdelr/ender-monitor-be/internal/services"
	"github.com/isdelr/ender-monitor-be/internal/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var base = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	router http.Handler
	hub    *websocket.Hub
	events *services.SQLEventService
	stats  *services.StatsService
}

func newTestEnv(t *testing.T, authn *auth.Authenticator) *testEnv {
	t.Helper()
	dir := t.TempDir()

	eventsDB, err := database.New(database.SQLite, filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("open events db: %v", err)
	}
	events, err := services.NewSQLEventService(eventsDB)
	if err != nil {
		t.Fatalf("migrate events: %v", err)
	}
	t.Cleanup(func() { _ = events.Close() })

	statsDB, err := database.New(database.SQLite, filepath.Join(dir, "stats.db"))
	if err != nil {
		t.Fatalf("open stats db: %v", err)
	}
	if err := database.Migrate(statsDB, database.SQLite); err != nil {
		t.Fatalf("migrate stats: %v", err)
	}
	stats := services.NewStatsService(statsDB)
	t.Cleanup(func() { _ = stats.Close() })

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	return &testEnv{
		router: NewRouter(Deps{
			Hub:            hub,
			Export:         services.NewExportService(events, stats),
			Insights:       insights.NewCurrent(),
			Auth:           authn,
			AllowedOrigins: []string{"http://localhost:3000"},
		}),
		hub:    hub,
		events: events,
		stats:  stats,
	}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (e *testEnv) seed(t *testing.T, cpus ...float64) {
	t.Helper()
	ctx := context.Background()
	for i, cpu := range cpus {
		ts := base.Add(time.Duration(i) * time.Second)
		if err := e.events.InsertMetric(ctx, &models.Metric{CPU: cpu, Mem: 6.5, Timestamp: ts}); err != nil {
			t.Fatalf("insert metric: %v", err)
		}
		if err := e.events.InsertLog(ctx, &models.Log{Message: "tick", Timestamp: ts}); err != nil {
			t.Fatalf("insert log: %v", err)
		}
		if _, err := e.stats.InsertStat(ctx, models.DbStat{Timestamp: ts, Connections: i, QueryCount: 10 * i, CacheHitRatio: 0.5}); err != nil {
			t.Fatalf("insert stat: %v", err)
		}
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestLatestMetricEmptyStore(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.get(t, "/api/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	m := decode[models.Metric](t, rec)
	if m.CPU != 0 || m.Mem != 0 || m.Timestamp.IsZero() {
		t.Fatalf("default metric = %+v", m)
	}
}

func TestScenarioEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, 10.0, 95.5, 50.0)

	m := decode[models.Metric](t, env.get(t, "/api/metrics"))
	if m.CPU != 50.0 || !m.Timestamp.Equal(base.Add(2*time.Second)) {
		t.Fatalf("latest = %+v", m)
	}

	rec := env.get(t, "/api/export/metrics.csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("csv status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=metrics.csv" {
		t.Fatalf("disposition = %q", cd)
	}
	records, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 4 || strings.Join(records[0], ",") != "cpu,mem,timestamp" {
		t.Fatalf("csv = %v", records)
	}
	for i, want := range []string{"10", "95.5", "50"} {
		if records[i+1][0] != want {
			t.Fatalf("row %d cpu = %q, want %q", i+1, records[i+1][0], want)
		}
	}

	stats := decode[[]models.DbStat](t, env.get(t, "/api/db/stats"))
	if len(stats) != 3 || stats[0].Timestamp.Before(stats[1].Timestamp) {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestLogsLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seed(t, 1, 2, 3, 4)

	cases := []struct {
		query string
		want  int
	}{
		{"", 4},
		{"?limit=2", 2},
		{"?limit=0", 4},
		{"?limit=abc", 4},
		{"?limit=100000", 4},
	}
	for _, tc := range cases {
		logs := decode[[]models.Log](t, env.get(t, "/api/logs"+tc.query))
		if len(logs) != tc.want {
			t.Fatalf("%q: %d logs, want %d", tc.query, len(logs), tc.want)
		}
		if !logs[0].Timestamp.Equal(base.Add(3 * time.Second)) {
			t.Fatalf("%q: first log %+v is not the newest", tc.query, logs[0])
		}
	}
}

func TestExportJSONHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	for path, file := range map[string]string{
		"/api/export/metrics": "metrics.json",
		"/api/export/logs":    "logs.json",
	} {
		rec := env.get(t, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename="+file {
			t.Fatalf("%s disposition = %q", path, cd)
		}
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Fatalf("%s body = %q, want []", path, rec.Body.String())
		}
	}
}

func TestInsightsEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	a := decode[models.Anomaly](t, env.get(t, "/api/ml/anomaly"))
	if a.Anomaly || a.Score != 0 {
		t.Fatalf("initial anomaly = %+v", a)
	}
	o := decode[models.Optimization](t, env.get(t, "/api/ml/optimizer"))
	if o != insights.Suggestions[0] {
		t.Fatalf("initial optimization = %+v", o)
	}
}

type failingExport struct{ services.ExportServiceProvider }

var errDown = &services.StoreError{Store: "events", Op: "scan", Err: errors.New("connection refused")}

func (failingExport) LatestMetric(context.Context) (models.Metric, error) { return models.Metric{}, errDown }
func (failingExport) ExportMetricsCSV(context.Context) ([]byte, error)   { return nil, errDown }

func TestStoreErrorsBecome500(t *testing.T) {
	hub := websocket.NewHub()
	router := NewRouter(Deps{Hub: hub, Export: failingExport{}, Insights: insights.NewCurrent()})

	for _, path := range []string{"/api/metrics", "/api/export/metrics.csv"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		if rec.Header().Get("Content-Disposition") != "" {
			t.Fatalf("%s: failed export must not be an attachment", path)
		}
		body := decode[map[string]string](t, rec)
		if !strings.Contains(body["error"], "connection refused") {
			t.Fatalf("%s error body = %v", path, body)
		}
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	body := decode[map[string]any](t, env.get(t, "/healthz"))
	if body["status"] != "ok" || body["subscribers"] != float64(0) {
		t.Fatalf("healthz = %v", body)
	}
}

func TestAuthGuard(t *testing.T) {
	authn := auth.New("s3cret")
	env := newTestEnv(t, authn)

	if rec := env.get(t, "/api/metrics"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}
	if rec := env.get(t, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz must stay open, got %d", rec.Code)
	}

	token, err := authn.GenerateToken("dashboard", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d", rec.Code)
	}
}

func TestWebSocketReceivesBroadcasts(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := env.hub.Broadcast(websocket.EventMetrics, models.Metric{CPU: 12.5, Mem: 4.25, Timestamp: base}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := env.hub.Broadcast(websocket.EventLog, models.Log{Message: "hi", Level: models.LevelInfo, Timestamp: base}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []string{websocket.EventMetrics, websocket.EventLog} {
		var msg struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Event != want {
			t.Fatalf("event = %q, want %q", msg.Event, want)
		}
		if want == websocket.EventMetrics {
			var m models.Metric
			if err := json.Unmarshal(msg.Payload, &m); err != nil || m.CPU != 12.5 {
				t.Fatalf("metrics payload = %s (%v)", msg.Payload, err)
			}
		}
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	if _, _, err := gorillaws.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("foreign origin was accepted")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWebSocketWithTokenLogsSubject(t *testing.T) {
	var logs lockedBuffer
	saved := log.Logger
	log.Logger = zerolog.New(&logs)
	defer func() { log.Logger = saved }()

	authn := auth.New("s3cret")
	env := newTestEnv(t, authn)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, _, err := gorillaws.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("upgrade without token was accepted")
	}

	token, err := authn.GenerateToken("wall-display", time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	conn, _, err := gorillaws.DefaultDialer.Dial(url+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(logs.String(), `"subject":"wall-display"`) {
		t.Fatalf("connect log lacks subject: %s", logs.String())
	}
}
