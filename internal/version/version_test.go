package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, v, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = v, commit, date
	t.Cleanup(func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	})
}

func TestGetInfo(t *testing.T) {
	withBuild(t, "1.0.0", "abc123def456", "2024-01-01T12:00:00Z")

	info := GetInfo()
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, "abc123def456", info.Commit)
	assert.Equal(t, "2024-01-01T12:00:00Z", info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		name   string
		commit string
		want   string
	}{
		{name: "long commit is shortened", commit: "abc123def456", want: "(abc123de)"},
		{name: "short commit is kept", commit: "abc", want: "(abc)"},
		{name: "unknown commit", commit: "unknown", want: "(unknown)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Info{Version: "1.2.3", Commit: tt.commit, Date: "today", GoVersion: "go1.24", Platform: "linux/amd64"}
			s := info.String()
			assert.Contains(t, s, "rman 1.2.3")
			assert.Contains(t, s, tt.want)
			assert.Contains(t, s, "built today with go1.24 for linux/amd64")
		})
	}
}

func TestShortAndTemplate(t *testing.T) {
	info := Info{Version: "2.0.0-beta.1", Commit: "deadbeef"}
	assert.Equal(t, "2.0.0-beta.1", info.Short())
	assert.Equal(t, info.String()+"\n", info.Template())
}
