package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/jmylchreest/vidplay/internal/audio"
	"github.com/jmylchreest/vidplay/internal/events"
	"github.com/jmylchreest/vidplay/internal/observability"
	"github.com/jmylchreest/vidplay/internal/service/playback"
)

// Stream defaults used when the handler is built without explicit values.
const (
	DefaultAudioChunk = 4096
	DefaultAudioPoll  = 20 * time.Millisecond
	maxInitialEvents  = 500
)

// StreamHandler serves the long-lived endpoints: the event stream and the
// raw PCM stream.
type StreamHandler struct {
	svc               *playback.Service
	logger            *slog.Logger
	heartbeatInterval time.Duration
	audioChunk        int
	audioPoll         time.Duration

	// audioBusy admits one PCM reader; reads drain the buffer.
	audioBusy atomic.Bool
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(svc *playback.Service, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		svc:               svc,
		logger:            logger,
		heartbeatInterval: events.HeartbeatInterval,
		audioChunk:        DefaultAudioChunk,
		audioPoll:         DefaultAudioPoll,
	}
}

// SetHeartbeatInterval changes the idle keepalive period.
func (h *StreamHandler) SetHeartbeatInterval(d time.Duration) {
	h.heartbeatInterval = d
}

// SetAudioStreaming sets the PCM read size, rounded down to whole sample
// frames, and the empty-buffer wait.
func (h *StreamHandler) SetAudioStreaming(chunk int, poll time.Duration) {
	chunk -= chunk % audio.FrameSize
	if chunk >= audio.FrameSize {
		h.audioChunk = chunk
	}
	if poll > 0 {
		h.audioPoll = poll
	}
}

// PlayerEventMessage is sent for each player notification streamed via SSE.
type PlayerEventMessage events.Event

// SSEPlayerEventsInput defines query parameters for the events endpoint.
type SSEPlayerEventsInput struct {
	Type    string `query:"type" doc:"Only stream events of this type (state, error, end, open, seek, progress)"`
	Initial int    `query:"initial" default:"0" minimum:"0" maximum:"500" doc:"Number of recent events to replay on connect"`
}

// RecentEventsInput is the input for listing recent events.
type RecentEventsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum number of events to return"`
}

// RecentEventsOutput lists recent events, oldest first.
type RecentEventsOutput struct {
	Body struct {
		Events []events.Event  `json:"events"`
		Stats  events.HubStats `json:"stats"`
	}
}

// Register registers the documented stream operations with the API.
func (h *StreamHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getRecentPlayerEvents",
		Method:      "GET",
		Path:        "/api/v1/player/events/recent",
		Summary:     "Get recent player events",
		Tags:        []string{"Events"},
	}, h.GetRecent)

	// Documentation only: RegisterStreams installs the real handler on the
	// chi router, which takes precedence.
	sse.Register(api, huma.Operation{
		OperationID: "playerEventsStream",
		Method:      "GET",
		Path:        "/api/v1/player/events",
		Summary:     "Subscribe to player events",
		Description: `Server-Sent Events stream of player notifications.

- On connect: receives a ` + "`" + `:connected` + "`" + ` comment
- With ` + "`" + `initial=N` + "`" + `: up to N recent events are replayed first
- While idle: a ` + "`" + `:heartbeat <unix_epoch>` + "`" + ` comment every 15s`,
		Tags: []string{"Events"},
	}, map[string]any{
		"player": PlayerEventMessage{},
	}, func(ctx context.Context, input *SSEPlayerEventsInput, send sse.Sender) {
		<-ctx.Done()
	})
}

// RegisterStreams registers the raw streaming endpoints on a chi router.
func (h *StreamHandler) RegisterStreams(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/player/events", h.handleEvents)
	router.Get("/api/v1/player/audio", h.handleAudio)
}

// GetRecent returns recent events and hub counters.
func (h *StreamHandler) GetRecent(ctx context.Context, input *RecentEventsInput) (*RecentEventsOutput, error) {
	out := &RecentEventsOutput{}
	out.Body.Events = h.svc.Events().Recent(input.Limit)
	out.Body.Stats = h.svc.Events().Stats()
	return out, nil
}

func (h *StreamHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	typeFilter := events.Type(r.URL.Query().Get("type"))
	initial := 0
	if s := r.URL.Query().Get("initial"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= maxInitialEvents {
			initial = n
		}
	}

	ctx := r.Context()
	logger := observability.LoggerFromContextOr(ctx, h.logger)
	hub := h.svc.Events()
	sub := hub.Subscribe(ctx)
	defer hub.Unsubscribe(sub.ID)

	rc := http.NewResponseController(w)
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		logger.Error("failed to flush initial SSE connection", slog.String("error", err.Error()))
		return
	}

	if initial > 0 {
		for _, ev := range hub.Recent(initial) {
			if typeFilter != "" && ev.Type != typeFilter {
				continue
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				logger.Debug("heartbeat flush failed, client likely disconnected", slog.String("error", err.Error()))
				return
			}
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if typeFilter != "" && ev.Type != typeFilter {
				continue
			}
			if err := writeEvent(w, ev); err != nil {
				logger.Debug("failed to write player event", slog.String("error", err.Error()))
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// writeEvent writes ev as one SSE message.
func writeEvent(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: player\ndata: %s\n\n", ev.ID, data)
	return err
}

// handleAudio streams buffered PCM as it is produced. The body is raw
// interleaved S16LE stereo at 44.1kHz; format headers describe it.
func (h *StreamHandler) handleAudio(w http.ResponseWriter, r *http.Request) {
	if !h.audioBusy.CompareAndSwap(false, true) {
		http.Error(w, "audio is already being streamed to another client", http.StatusConflict)
		return
	}
	defer h.audioBusy.Store(false)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Audio-Format", "s16le")
	w.Header().Set("X-Audio-Rate", strconv.Itoa(audio.SampleRate))
	w.Header().Set("X-Audio-Channels", strconv.Itoa(audio.Channels))
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	logger := observability.LoggerFromContextOr(ctx, h.logger)
	p := h.svc.Player()
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		return
	}

	buf := make([]byte, h.audioChunk)
	for ctx.Err() == nil {
		n := p.ReadAudio(buf)
		if n == 0 {
			waitCtx, cancel := context.WithTimeout(ctx, h.audioPoll)
			_ = p.AudioBuffer().Wait(waitCtx)
			cancel()
			continue
		}
		if _, err := w.Write(buf[:n]); err != nil {
			logger.Debug("audio client went away", slog.String("error", err.Error()))
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
