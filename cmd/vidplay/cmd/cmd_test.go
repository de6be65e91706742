package cmd

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jmylchreest/vidplay/internal/config"
	"github.com/jmylchreest/vidplay/internal/events"
	"github.com/jmylchreest/vidplay/internal/player"
	"github.com/jmylchreest/vidplay/internal/service/playback"
	"github.com/jmylchreest/vidplay/internal/snapshot"
	"github.com/jmylchreest/vidplay/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestToMap(t *testing.T) {
	cfg, err := defaultConfig()
	require.NoError(t, err)

	m := toMap(cfg)
	server, ok := m["server"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 8090, server["port"])
	assert.Equal(t, "4.0 KiB", server["audio_chunk"])

	p, ok := m["player"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "30s", p["stall_timeout"])
	assert.Equal(t, "10 MiB", p["audio_hard_limit"])
	assert.Equal(t, "50ms", p["video_tolerance"])
}

func TestWriteConfigYAML_LoadsBack(t *testing.T) {
	cfg, err := defaultConfig()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeConfigYAML(&buf, cfg, true))
	assert.Contains(t, buf.String(), "# All values shown below are defaults.")
	assert.Contains(t, buf.String(), "VIDPLAY_PLAYER_STALL_TIMEOUT")

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(&buf))
	loaded, err := config.Unmarshal(v)
	require.NoError(t, err)

	assert.Equal(t, cfg.Server.Port, loaded.Server.Port)
	assert.Equal(t, cfg.Server.AudioChunk, loaded.Server.AudioChunk)
	assert.Equal(t, cfg.Player.AudioHardLimit, loaded.Player.AudioHardLimit)
	assert.Equal(t, cfg.Player.StallTimeout, loaded.Player.StallTimeout)
	assert.Equal(t, cfg.Logging.FFmpegLevel, loaded.Logging.FFmpegLevel)
}

func TestCheckInputOptions(t *testing.T) {
	logger := discardLogger()

	assert.NoError(t, checkInputOptions(nil, logger))
	assert.NoError(t, checkInputOptions(map[string]string{"rtsp_transport": "tcp", "fflags": "nobuffer"}, logger))

	err := checkInputOptions(map[string]string{"headers": "X-Evil: 1", "rw_timeout": "1"}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "headers")
	assert.Contains(t, err.Error(), "rw_timeout")
}

func TestWaitForEnd(t *testing.T) {
	t.Run("end of source", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		hub := events.NewHub(0)
		sub := hub.Subscribe(ctx)

		hub.Publish(events.Event{Type: events.TypeState, State: "playing"})
		hub.Publish(events.Event{Type: events.TypeEnd})
		assert.ErrorIs(t, waitForEnd(ctx, sub), errPlaybackEnded)
	})

	t.Run("fatal error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		hub := events.NewHub(0)
		sub := hub.Subscribe(ctx)

		hub.Publish(events.Event{Type: events.TypeError, Message: "decode hiccup"})
		hub.Publish(events.Event{Type: events.TypeError, Message: "stream stalled", Fatal: true})
		err := waitForEnd(ctx, sub)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stream stalled")
	})

	t.Run("context done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		hub := events.NewHub(0)
		sub := hub.Subscribe(ctx)
		cancel()
		assert.NoError(t, waitForEnd(ctx, sub))
	})
}

func TestDrainAudio(t *testing.T) {
	backend := testutil.NewBackend(testutil.ClipSpec{Seconds: 0.4, FPS: 25, Width: 32, Height: 24, Audio: true, Seed: 7})
	p := player.New(backend, player.Options{
		PausePoll: 2 * time.Millisecond,
		IdlePoll:  5 * time.Millisecond,
		Logger:    discardLogger(),
	})
	svc := playback.NewService(p, events.NewHub(0), discardLogger())
	defer func() { _ = svc.Close() }()

	require.NoError(t, svc.Open("rtsp://camera.test/stream"))
	require.Eventually(t, func() bool { return svc.Status().Exhausted }, 3*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	written, err := drainAudio(ctx, p, &out, 4096, 5*time.Millisecond)
	require.NoError(t, err)

	st := svc.Status()
	assert.Positive(t, written)
	assert.Equal(t, int64(out.Len()), written)
	assert.Equal(t, st.Audio.BytesAppended, uint64(written))
	assert.Zero(t, written%4, "whole stereo samples only")
}

func TestOpenAudioOutput(t *testing.T) {
	var stdout bytes.Buffer

	w, closeFn, err := openAudioOutput("", &stdout)
	require.NoError(t, err)
	assert.Equal(t, io.Discard, w)
	closeFn()

	w, closeFn, err = openAudioOutput("-", &stdout)
	require.NoError(t, err)
	_, _ = w.Write([]byte{1, 2, 3, 4})
	closeFn()
	assert.Equal(t, 4, stdout.Len())

	path := filepath.Join(t.TempDir(), "out.pcm")
	w, closeFn, err = openAudioOutput(path, &stdout)
	require.NoError(t, err)
	_, _ = w.Write([]byte{0, 0, 0, 0})
	closeFn()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 4)
}

func TestWriteSnapshot(t *testing.T) {
	store := &snapshot.Store{}
	path := filepath.Join(t.TempDir(), "last.png")

	assert.ErrorIs(t, writeSnapshot(store, path), snapshot.ErrNoFrame)

	store.Put(player.Frame{Width: 2, Height: 2, Stride: 8, Pix: make([]byte, 16)})
	require.NoError(t, writeSnapshot(store, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "1.5s", formatSeconds(1.5))
	assert.Equal(t, "160ms", formatSeconds(0.1604))
	assert.Equal(t, "0s", formatSeconds(0))
}
