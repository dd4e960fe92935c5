package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf2zh-server/internal/config"
	"pdf2zh-server/internal/types"
)

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "pdf2zh-server "+Version)
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "translate", "crop", "crop-compare", "compare", "split", "version"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

func TestLocalOptions(t *testing.T) {
	clip := types.ClipSettings{WOffset: 40, HOffset: 20, OffsetRatio: 5}
	cfg := &types.Config{Clip: clip}

	local.outputs = []string{"dual", "compare"}
	local.engine = config.EnginePdf2zh
	defer func() { local.outputs, local.engine = nil, "" }()

	opts, err := localOptions(cfg)
	require.NoError(t, err)
	assert.True(t, bool(opts.Dual))
	assert.True(t, bool(opts.Compare))
	assert.False(t, bool(opts.Mono))
	assert.Equal(t, config.EnginePdf2zh, opts.Engine)

	local.outputs = []string{"sideways"}
	_, err = localOptions(cfg)
	assert.Equal(t, types.ErrInvalidInput, types.CodeOf(err))
}

func TestStage(t *testing.T) {
	src := filepath.Join(t.TempDir(), "paper.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF"), 0644))
	out := t.TempDir()

	staged, err := stage(src, out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "paper.pdf"), staged)
	assert.FileExists(t, staged)

	same, err := stage(staged, out)
	require.NoError(t, err)
	assert.Equal(t, staged, same)

	_, err = stage(filepath.Join(out, "missing.pdf"), out)
	assert.Equal(t, types.ErrFileNotFound, types.CodeOf(err))
}

func TestRuntimeMode(t *testing.T) {
	assert.Equal(t, "system", runtimeMode(&types.Config{}))
	assert.Equal(t, "venv", runtimeMode(&types.Config{VenvDir: "/opt/venv"}))

	exe := filepath.Join(t.TempDir(), "pdf2zh.exe")
	cfg := &types.Config{EnableWinExe: true, WinExePath: exe}
	assert.Equal(t, "winexe", runtimeMode(cfg))
	assert.False(t, engineReady(cfg)())
	require.NoError(t, os.WriteFile(exe, nil, 0755))
	assert.True(t, engineReady(cfg)())
	assert.True(t, engineReady(&types.Config{})())
}
