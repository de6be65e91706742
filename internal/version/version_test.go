package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuild(t *testing.T, v, c, d string) {
	t.Helper()
	ov, oc, od := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = ov, oc, od })
	Version, Commit, Date = v, c, d
}

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	assert.NotEmpty(t, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestShort(t *testing.T) {
	tests := []struct {
		name   string
		commit string
		want   string
	}{
		{"without commit", "unknown", "vidplay 1.2.3"},
		{"with commit", "0123456789abcdef", "vidplay 1.2.3 (01234567)"},
		{"short commit ignored", "abc", "vidplay 1.2.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuild(t, "1.2.3", tt.commit, "2026-01-01T00:00:00Z")
			assert.Equal(t, tt.want, Short())
		})
	}
}

func TestString(t *testing.T) {
	withBuild(t, "1.2.3", "0123456789abcdef", "2026-01-01T00:00:00Z")
	s := String()
	assert.Contains(t, s, "vidplay version 1.2.3")
	assert.Contains(t, s, "commit: 01234567")
	assert.Contains(t, s, "built: 2026-01-01T00:00:00Z")
}

func TestJSON(t *testing.T) {
	withBuild(t, "2.0.0", "deadbeefcafe", "today")

	var info Info
	require.NoError(t, json.Unmarshal([]byte(JSON()), &info))
	assert.Equal(t, "2.0.0", info.Version)
	assert.Equal(t, "deadbeefcafe", info.Commit)
}

func TestUserAgent(t *testing.T) {
	withBuild(t, "0.9.0", "unknown", "unknown")
	assert.Equal(t, "vidplay/0.9.0", UserAgent())
}
