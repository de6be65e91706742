package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidplay/internal/player"
	"github.com/jmylchreest/vidplay/internal/testutil"
)

func TestHealthHandler_GetLivez(t *testing.T) {
	handler := NewHealthHandler("1.0.0", nil)

	output, err := handler.GetLivez(context.Background(), &LivezInput{})
	require.NoError(t, err)
	assert.Equal(t, "ok", output.Body.Status)
}

func TestHealthHandler_GetHealth(t *testing.T) {
	t.Run("without a player", func(t *testing.T) {
		handler := NewHealthHandler("1.0.0", nil)

		output, err := handler.GetHealth(context.Background(), &HealthInput{})
		require.NoError(t, err)

		assert.Equal(t, "healthy", output.Body.Status)
		assert.Equal(t, "1.0.0", output.Body.Version)
		assert.NotEmpty(t, output.Body.Uptime)
		assert.NotZero(t, output.Body.CPUInfo.Cores)
		assert.NotZero(t, output.Body.Memory.Goroutines)
		assert.Equal(t, "unknown", output.Body.Checks["player"])
	})

	t.Run("idle player", func(t *testing.T) {
		p := player.New(testutil.NewBackend(testutil.DefaultClip()), player.Options{})
		handler := NewHealthHandler("1.0.0", p)

		output, err := handler.GetHealth(context.Background(), &HealthInput{})
		require.NoError(t, err)

		assert.Equal(t, "idle", output.Body.Player.Status)
		assert.Equal(t, string(player.StateStopped), output.Body.Player.State)
	})
}
