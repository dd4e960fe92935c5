package venv

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeVenv(t *testing.T, tools ...string) *Env {
	t.Helper()
	dir := t.TempDir()
	env, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(env.BinDir, 0755))
	for _, tool := range tools {
		name := tool
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		require.NoError(t, os.WriteFile(filepath.Join(env.BinDir, name), []byte("#!/bin/sh\n"), 0755))
	}
	return env
}

func TestNew(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)

	env, err := New(t.TempDir())
	require.NoError(t, err)
	if runtime.GOOS == "windows" {
		assert.Equal(t, "Scripts", filepath.Base(env.BinDir))
	} else {
		assert.Equal(t, "bin", filepath.Base(env.BinDir))
	}
	assert.Equal(t, env.BinDir, filepath.Dir(env.PythonPath))
}

func TestCommandAndEnv(t *testing.T) {
	env := fakeVenv(t, "pdf2zh_next")

	args, vars, err := env.CommandAndEnv([]string{"pdf2zh_next", "in.pdf", "--google"})
	require.NoError(t, err)
	assert.Equal(t, env.BinDir, filepath.Dir(args[0]))
	assert.Equal(t, []string{"in.pdf", "--google"}, args[1:])

	var path, virtualEnv string
	for _, kv := range vars {
		switch {
		case strings.HasPrefix(kv, "PATH="):
			path = strings.TrimPrefix(kv, "PATH=")
		case strings.HasPrefix(kv, "VIRTUAL_ENV="):
			virtualEnv = strings.TrimPrefix(kv, "VIRTUAL_ENV=")
		}
	}
	assert.True(t, strings.HasPrefix(path, env.BinDir), "venv bin dir comes first on PATH")
	assert.Equal(t, env.Dir, virtualEnv)
}

func TestCommandAndEnv_Missing(t *testing.T) {
	env := fakeVenv(t)

	_, _, err := env.CommandAndEnv([]string{"pdf2zh"})
	assert.Error(t, err)
	_, _, err = env.CommandAndEnv(nil)
	assert.Error(t, err)
}

func TestValid_NoPython(t *testing.T) {
	env := fakeVenv(t)
	assert.False(t, env.Valid())
	assert.False(t, env.Valid(), "result is cached")
}
