package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/vidplay/internal/observability"
	"github.com/jmylchreest/vidplay/internal/player"
	"github.com/jmylchreest/vidplay/internal/service/playback"
	"github.com/jmylchreest/vidplay/internal/snapshot"
)

// PlayerHandler exposes playback controls.
type PlayerHandler struct {
	svc *playback.Service
}

// NewPlayerHandler creates a player handler.
func NewPlayerHandler(svc *playback.Service) *PlayerHandler {
	return &PlayerHandler{svc: svc}
}

// OpenRequest is the request body for opening a source.
type OpenRequest struct {
	Source string `json:"source" minLength:"1" doc:"File path or URL (file, http(s), rtsp(s), rtmp(s), rtp, srt, udp, tcp)" example:"rtsp://camera.local:554/stream1"`
}

// OpenInput is the input for opening a source.
type OpenInput struct {
	Body OpenRequest
}

// SeekRequest is the request body for seeking.
type SeekRequest struct {
	Seconds float64 `json:"seconds" minimum:"0" doc:"Target position in seconds"`
}

// SeekInput is the input for seeking.
type SeekInput struct {
	Body SeekRequest
}

// ResolutionRequest is the request body for changing the output size.
type ResolutionRequest struct {
	Width  int `json:"width" minimum:"0" doc:"Output width; 0 derives it from height and the aspect ratio"`
	Height int `json:"height" minimum:"0" doc:"Output height; 0 derives it from width and the aspect ratio"`
}

// ResolutionInput is the input for changing the output size.
type ResolutionInput struct {
	Body ResolutionRequest
}

// ControlInput is the input for body-less control calls.
type ControlInput struct{}

// StatusOutput carries the player status.
type StatusOutput struct {
	Body player.Status
}

// SnapshotInput selects the image encoding.
type SnapshotInput struct {
	Format string `query:"format" default:"png" enum:"png,jpeg,jpg,bmp,tiff,tif" doc:"Image encoding"`
}

// SnapshotOutput is the encoded latest frame.
type SnapshotOutput struct {
	ContentType string `header:"Content-Type"`
	Sequence    string `header:"X-Frame-Sequence"`
	PTS         string `header:"X-Frame-PTS"`
	Body        []byte
}

// Register registers the player routes with the API.
func (h *PlayerHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "openSource",
		Method:      "POST",
		Path:        "/api/v1/player/open",
		Summary:     "Open a source",
		Description: "Stops any current session, opens the source and starts playback",
		Tags:        []string{"Player"},
	}, h.Open)

	huma.Register(api, huma.Operation{
		OperationID: "play",
		Method:      "POST",
		Path:        "/api/v1/player/play",
		Summary:     "Play",
		Description: "Resumes a paused session or re-opens the last source after a stop",
		Tags:        []string{"Player"},
	}, h.Play)

	huma.Register(api, huma.Operation{
		OperationID: "pause",
		Method:      "POST",
		Path:        "/api/v1/player/pause",
		Summary:     "Pause",
		Tags:        []string{"Player"},
	}, h.Pause)

	huma.Register(api, huma.Operation{
		OperationID: "stop",
		Method:      "POST",
		Path:        "/api/v1/player/stop",
		Summary:     "Stop",
		Description: "Ends the session and releases decoder resources",
		Tags:        []string{"Player"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "seek",
		Method:      "POST",
		Path:        "/api/v1/player/seek",
		Summary:     "Seek",
		Description: "Posts a seek; buffered audio is discarded immediately",
		Tags:        []string{"Player"},
	}, h.Seek)

	huma.Register(api, huma.Operation{
		OperationID: "setResolution",
		Method:      "PUT",
		Path:        "/api/v1/player/resolution",
		Summary:     "Set output resolution",
		Tags:        []string{"Player"},
	}, h.SetResolution)

	huma.Register(api, huma.Operation{
		OperationID: "getPlayerStatus",
		Method:      "GET",
		Path:        "/api/v1/player/status",
		Summary:     "Get player status",
		Tags:        []string{"Player"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getSnapshot",
		Method:      "GET",
		Path:        "/api/v1/player/snapshot",
		Summary:     "Get the latest frame",
		Description: "Encodes the most recently delivered frame as an image",
		Tags:        []string{"Player"},
	}, h.GetSnapshot)
}

// Open opens a source.
func (h *PlayerHandler) Open(ctx context.Context, input *OpenInput) (_ *StatusOutput, err error) {
	logger := observability.LoggerFromContext(ctx).With(
		slog.String("source", observability.RedactSource(input.Body.Source)))
	defer observability.TimedOperationWithError(ctx, logger, "open source", &err)()

	if err := h.svc.Open(input.Body.Source); err != nil {
		var openErr *player.OpenError
		if errors.As(err, &openErr) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, huma.Error400BadRequest(err.Error())
	}
	return h.status(), nil
}

// Play resumes playback.
func (h *PlayerHandler) Play(ctx context.Context, input *ControlInput) (*StatusOutput, error) {
	if err := h.svc.Play(); err != nil {
		if errors.Is(err, player.ErrNotOpen) {
			return nil, huma.Error409Conflict(err.Error())
		}
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	return h.status(), nil
}

// Pause pauses playback.
func (h *PlayerHandler) Pause(ctx context.Context, input *ControlInput) (*StatusOutput, error) {
	h.svc.Pause()
	return h.status(), nil
}

// Stop stops playback.
func (h *PlayerHandler) Stop(ctx context.Context, input *ControlInput) (*StatusOutput, error) {
	h.svc.Stop()
	return h.status(), nil
}

// Seek posts a seek.
func (h *PlayerHandler) Seek(ctx context.Context, input *SeekInput) (*StatusOutput, error) {
	if err := h.svc.Seek(input.Body.Seconds); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return h.status(), nil
}

// SetResolution changes the output size.
func (h *PlayerHandler) SetResolution(ctx context.Context, input *ResolutionInput) (*StatusOutput, error) {
	if err := h.svc.SetResolution(input.Body.Width, input.Body.Height); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return h.status(), nil
}

// GetStatus returns the player status.
func (h *PlayerHandler) GetStatus(ctx context.Context, input *ControlInput) (*StatusOutput, error) {
	return h.status(), nil
}

// GetSnapshot encodes the latest frame.
func (h *PlayerHandler) GetSnapshot(ctx context.Context, input *SnapshotInput) (*SnapshotOutput, error) {
	format, err := snapshot.ParseFormat(input.Format)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	frame, seq, err := h.svc.Snapshots().Latest()
	if err != nil {
		if errors.Is(err, snapshot.ErrNoFrame) {
			return nil, huma.Error404NotFound(err.Error())
		}
		return nil, huma.Error500InternalServerError("reading snapshot", err)
	}

	data, err := snapshot.EncodeBytes(frame, format)
	if err != nil {
		return nil, huma.Error500InternalServerError("encoding snapshot", err)
	}

	return &SnapshotOutput{
		ContentType: format.ContentType(),
		Sequence:    strconv.FormatUint(seq, 10),
		PTS:         strconv.FormatFloat(frame.PTS, 'f', 3, 64),
		Body:        data,
	}, nil
}

func (h *PlayerHandler) status() *StatusOutput {
	return &StatusOutput{Body: h.svc.Status()}
}
