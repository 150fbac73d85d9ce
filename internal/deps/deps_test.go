package deps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "ffmpeg")
	require.NoError(t, os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	results := CheckBinaries([]Requirement{
		{Name: "ffmpeg", Command: present},
		{Name: "ffprobe", Command: "definitely-not-installed-anywhere"},
		{Name: "unset", Command: "  "},
	})
	require.Len(t, results, 3)

	assert.True(t, results[0].Available)
	assert.Empty(t, results[0].Detail)

	assert.False(t, results[1].Available)
	assert.Contains(t, results[1].Detail, "not found")

	assert.False(t, results[2].Available)
	assert.Equal(t, "command not configured", results[2].Detail)
}

func TestMissing(t *testing.T) {
	statuses := []Status{
		{Name: "ffmpeg", Available: true},
		{Name: "ffprobe", Available: false},
		{Name: "extra", Available: false, Optional: true},
	}

	missing := Missing(statuses)
	require.Len(t, missing, 1)
	assert.Equal(t, "ffprobe", missing[0].Name)
}

func TestRequirementsDefaults(t *testing.T) {
	reqs := Requirements("", "")
	require.Len(t, reqs, 2)
	assert.Equal(t, "ffmpeg", reqs[0].Command)
	assert.Equal(t, "ffprobe", reqs[1].Command)

	custom := Requirements("/opt/ffmpeg/bin/ffmpeg", "/opt/ffmpeg/bin/ffprobe")
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", custom[0].Command)
	assert.Equal(t, "/opt/ffmpeg/bin/ffprobe", custom[1].Command)
}
