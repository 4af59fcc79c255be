package cli

import (
	"bytes"
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionOutput(t *testing.T) {
	oldVersion, oldCommit, oldDate := version, commit, date
	defer SetVersionInfo(oldVersion, oldCommit, oldDate)
	SetVersionInfo("1.2.3", "abc1234", "2026-01-08T12:00:00Z")

	var buf bytes.Buffer
	versionShort = false
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)
	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	out := buf.String()
	assert.Contains(t, out, "netmon v1.2.3\n")
	assert.Contains(t, out, "commit: abc1234\n")
	assert.Contains(t, out, "built: 2026-01-08T12:00:00Z\n")
	assert.Contains(t, out, "go: "+runtime.Version())
	assert.Contains(t, out, "os/arch: "+runtime.GOOS+"/"+runtime.GOARCH)
}

func TestVersionShort(t *testing.T) {
	oldVersion, oldCommit, oldDate := version, commit, date
	defer SetVersionInfo(oldVersion, oldCommit, oldDate)
	SetVersionInfo("2.0.0", "", "")

	var buf bytes.Buffer
	versionShort = true
	defer func() { versionShort = false }()
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)
	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	require.Equal(t, "2.0.0\n", buf.String())
}

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"dev", "dev"},
		{"1.0.0", "v1.0.0"},
		{"v1.0.0", "v1.0.0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatVersion(tt.in), tt.in)
	}
}

func TestVersionJSON(t *testing.T) {
	oldVersion, oldCommit, oldDate := version, commit, date
	defer SetVersionInfo(oldVersion, oldCommit, oldDate)
	SetVersionInfo("1.4.0", "deadbee", "2026-03-01")

	var buf bytes.Buffer
	versionJSON = true
	defer func() { versionJSON = false }()
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)
	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	var got struct {
		Success bool      `json:"success"`
		Data    buildInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, "v1.4.0", got.Data.Version)
	assert.Equal(t, "deadbee", got.Data.Commit)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, got.Data.OSArch)
}
