package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidplay/internal/events"
	"github.com/jmylchreest/vidplay/internal/http/handlers"
	"github.com/jmylchreest/vidplay/internal/player"
	"github.com/jmylchreest/vidplay/internal/service/playback"
	"github.com/jmylchreest/vidplay/internal/testutil"
)

const testSource = "rtsp://camera.test/stream1"

type testEnv struct {
	router  *chi.Mux
	svc     *playback.Service
	backend *testutil.Backend
	streams *handlers.StreamHandler
}

func newTestEnv(t *testing.T, clip testutil.ClipSpec) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := testutil.NewBackend(clip)
	p := player.New(backend, player.Options{
		StallTimeout: time.Second,
		PausePoll:    2 * time.Millisecond,
		IdlePoll:     5 * time.Millisecond,
		Logger:       logger,
	})
	svc := playback.NewService(p, events.NewHub(0), logger)
	t.Cleanup(func() { _ = svc.Close() })

	router := chi.NewRouter()
	api := humachi.New(router, huma.DefaultConfig("Test API", "1.0.0"))
	handlers.NewHealthHandler("1.0.0", p).Register(api)
	handlers.NewPlayerHandler(svc).Register(api)
	streams := handlers.NewStreamHandler(svc, logger)
	streams.Register(api)
	streams.RegisterStreams(router)

	return &testEnv{router: router, svc: svc, backend: backend, streams: streams}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) player.Status {
	t.Helper()
	var st player.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	return st
}

func TestHandlers_SharedSchemaRegistry(t *testing.T) {
	env := newTestEnv(t, testutil.DefaultClip())

	rec := env.do(t, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var doc struct {
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&doc))
	for _, name := range []string{"Status", "Stats", "HubStats", "HealthResponse"} {
		assert.Contains(t, doc.Components.Schemas, name)
	}
}

func TestPlayerHandler_OpenAndControl(t *testing.T) {
	env := newTestEnv(t, testutil.ClipSpec{Seconds: 3, FPS: 25, Width: 320, Height: 240, Audio: true, Seed: 1})

	rec := env.do(t, http.MethodPost, "/api/v1/player/open", handlers.OpenRequest{Source: testSource})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decodeStatus(t, rec)
	assert.Equal(t, player.StatePlaying, st.State)
	assert.Equal(t, 320, st.Stream.Width)
	assert.NotEmpty(t, st.SessionID)

	rec = env.do(t, http.MethodPost, "/api/v1/player/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, player.StatePaused, decodeStatus(t, rec).State)

	rec = env.do(t, http.MethodPost, "/api/v1/player/play", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, player.StatePlaying, decodeStatus(t, rec).State)

	rec = env.do(t, http.MethodPut, "/api/v1/player/resolution", handlers.ResolutionRequest{Width: 160})
	require.Equal(t, http.StatusOK, rec.Code)
	st = decodeStatus(t, rec)
	assert.Equal(t, 160, st.OutputWidth)
	assert.Equal(t, 120, st.OutputHeight)

	rec = env.do(t, http.MethodPost, "/api/v1/player/seek", handlers.SeekRequest{Seconds: 1.5})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/player/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, player.StateStopped, decodeStatus(t, rec).State)
	assert.True(t, env.backend.Last().Closed())

	rec = env.do(t, http.MethodGet, "/api/v1/player/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, player.StateStopped, decodeStatus(t, rec).State)
}

func TestPlayerHandler_Errors(t *testing.T) {
	env := newTestEnv(t, testutil.ClipSpec{Seconds: 1, FPS: 25, Width: 32, Height: 32, Seed: 1})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"play before open", http.MethodPost, "/api/v1/player/play", nil, http.StatusConflict},
		{"unsupported scheme", http.MethodPost, "/api/v1/player/open", handlers.OpenRequest{Source: "ftp://host/clip"}, http.StatusBadRequest},
		{"empty source", http.MethodPost, "/api/v1/player/open", handlers.OpenRequest{}, http.StatusUnprocessableEntity},
		{"negative seek", http.MethodPost, "/api/v1/player/seek", map[string]any{"seconds": -1}, http.StatusUnprocessableEntity},
		{"negative width", http.MethodPut, "/api/v1/player/resolution", map[string]any{"width": -2, "height": 0}, http.StatusUnprocessableEntity},
		{"no frame yet", http.MethodGet, "/api/v1/player/snapshot", nil, http.StatusNotFound},
		{"bad snapshot format", http.MethodGet, "/api/v1/player/snapshot?format=gif", nil, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	t.Run("backend failure", func(t *testing.T) {
		env.backend.FailWith(assert.AnError)
		defer env.backend.FailWith(nil)

		rec := env.do(t, http.MethodPost, "/api/v1/player/open", handlers.OpenRequest{Source: testSource})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "could not open source")
	})

	t.Run("seek past duration", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/player/open", handlers.OpenRequest{Source: testSource})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodPost, "/api/v1/player/seek", handlers.SeekRequest{Seconds: 30})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "out of range")
	})
}

func TestPlayerHandler_Snapshot(t *testing.T) {
	env := newTestEnv(t, testutil.ClipSpec{Seconds: 0.2, FPS: 25, Width: 32, Height: 16, Seed: 9})
	require.NoError(t, env.svc.Open(testSource))

	require.Eventually(t, func() bool { return env.svc.Status().Exhausted }, 2*time.Second, 5*time.Millisecond)

	rec := env.do(t, http.MethodGet, "/api/v1/player/snapshot?format=png", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "5", rec.Header().Get("X-Frame-Sequence"))
	assert.Equal(t, "0.160", rec.Header().Get("X-Frame-PTS"))

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())

	want := env.backend.Last().ColorAt(4)
	r, g, b, _ := img.At(3, 3).RGBA()
	assert.Equal(t, []uint8{want[0], want[1], want[2]}, []uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)})

	rec = env.do(t, http.MethodGet, "/api/v1/player/snapshot?format=bmp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/bmp", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "BM"))
}

func TestStreamHandler_RecentEvents(t *testing.T) {
	env := newTestEnv(t, testutil.ClipSpec{Seconds: 0.2, FPS: 25, Width: 16, Height: 16, Seed: 1})
	require.NoError(t, env.svc.Open(testSource))

	rec := env.do(t, http.MethodGet, "/api/v1/player/events/recent?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []events.Event  `json:"events"`
		Stats  events.HubStats `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.NotEmpty(t, body.Events)
	assert.Equal(t, events.TypeState, body.Events[0].Type)
	assert.GreaterOrEqual(t, body.Stats.Total, int64(2))
}

func TestStreamHandler_SSEEvents(t *testing.T) {
	t.Run("establishes SSE connection", func(t *testing.T) {
		env := newTestEnv(t, testutil.DefaultClip())

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/player/events", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		var wg sync.WaitGroup
		wg.Go(func() {
			env.router.ServeHTTP(rec, req)
		})
		wg.Wait()

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
		assert.Contains(t, rec.Body.String(), ":connected")
	})

	t.Run("streams filtered player events", func(t *testing.T) {
		env := newTestEnv(t, testutil.ClipSpec{Seconds: 2, FPS: 25, Width: 16, Height: 16, Seed: 1})

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/player/events?type=state", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		var wg sync.WaitGroup
		wg.Go(func() {
			env.router.ServeHTTP(rec, req)
		})

		require.Eventually(t, func() bool {
			return env.svc.Events().Stats().Subscribers == 1
		}, time.Second, time.Millisecond)

		require.NoError(t, env.svc.Open(testSource))
		require.NoError(t, env.svc.Seek(1))
		env.svc.Pause()

		wg.Wait()

		body := rec.Body.String()
		assert.Contains(t, body, "event: player")
		assert.Contains(t, body, `"state":"playing"`)
		assert.Contains(t, body, `"state":"paused"`)
		assert.NotContains(t, body, `"type":"seek"`)
	})

	t.Run("replays recent events", func(t *testing.T) {
		env := newTestEnv(t, testutil.DefaultClip())
		env.svc.Events().Publish(events.Event{Type: events.TypeError, Message: "earlier failure"})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/player/events?initial=10", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		var wg sync.WaitGroup
		wg.Go(func() {
			env.router.ServeHTTP(rec, req)
		})
		wg.Wait()

		assert.Contains(t, rec.Body.String(), "earlier failure")
	})

	t.Run("sends heartbeat comments", func(t *testing.T) {
		env := newTestEnv(t, testutil.DefaultClip())
		env.streams.SetHeartbeatInterval(20 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		req := httptest.NewRequest(http.MethodGet, "/api/v1/player/events", nil).WithContext(ctx)
		rec := httptest.NewRecorder()

		var wg sync.WaitGroup
		wg.Go(func() {
			env.router.ServeHTTP(rec, req)
		})
		wg.Wait()

		assert.Contains(t, rec.Body.String(), ":heartbeat")
	})
}

func TestStreamHandler_Audio(t *testing.T) {
	env := newTestEnv(t, testutil.ClipSpec{Seconds: 0.4, FPS: 25, Width: 16, Height: 16, Audio: true, Seed: 1})
	env.streams.SetAudioStreaming(1000, 5*time.Millisecond)

	require.NoError(t, env.svc.Open(testSource))
	require.Eventually(t, func() bool { return env.svc.Status().Exhausted }, 2*time.Second, 5*time.Millisecond)
	appended := env.svc.Status().Audio.BytesAppended
	require.NotZero(t, appended)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/player/audio", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Go(func() {
		env.router.ServeHTTP(rec, req)
	})
	wg.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s16le", rec.Header().Get("X-Audio-Format"))
	assert.Equal(t, "44100", rec.Header().Get("X-Audio-Rate"))
	assert.Equal(t, "2", rec.Header().Get("X-Audio-Channels"))
	assert.Equal(t, int(appended), rec.Body.Len(), "every buffered byte is streamed once")
	assert.Zero(t, rec.Body.Len()%4, "only whole sample frames are sent")
	assert.Zero(t, env.svc.Status().Audio.Buffered)
}
