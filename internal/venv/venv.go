// Package venv locates engine executables inside an existing Python virtual
// environment and builds the environment variables that activate it.
// Creating or updating the environment is left to the user's tooling (uv,
// conda, python -m venv).
package venv

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Env is an existing virtual environment
type Env struct {
	Dir        string // venv root
	BinDir     string // bin on Unix, Scripts on Windows
	PythonPath string // python executable in BinDir

	mu      sync.Mutex
	checked bool
	valid   bool
}

// New describes the virtual environment rooted at dir. It does not touch
// the filesystem; use Valid to check it.
func New(dir string) (*Env, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("venv directory is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve venv directory: %w", err)
	}

	env := &Env{Dir: abs}
	if runtime.GOOS == "windows" {
		env.BinDir = filepath.Join(abs, "Scripts")
		env.PythonPath = filepath.Join(env.BinDir, "python.exe")
	} else {
		env.BinDir = filepath.Join(abs, "bin")
		env.PythonPath = filepath.Join(env.BinDir, "python")
	}
	return env, nil
}

// Valid reports whether the venv has a working python. The result is cached.
func (e *Env) Valid() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.checked {
		return e.valid
	}
	e.checked = true

	if _, err := os.Stat(e.PythonPath); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, e.PythonPath, "--version")
	hideWindow(cmd)
	e.valid = cmd.Run() == nil
	return e.valid
}

// Executable returns the path of name inside the venv, or an error when the
// venv does not provide it
func (e *Env) Executable(name string) (string, error) {
	candidates := []string{filepath.Join(e.BinDir, name)}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		candidates = append([]string{filepath.Join(e.BinDir, name+".exe")}, candidates...)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%s not found in %s", name, e.BinDir)
}

// Environ returns the variables that activate the venv: PATH with the venv
// bin directory first and VIRTUAL_ENV
func (e *Env) Environ() []string {
	path := e.BinDir
	if current := os.Getenv("PATH"); current != "" {
		path += string(os.PathListSeparator) + current
	}
	return []string{
		"PATH=" + path,
		"VIRTUAL_ENV=" + e.Dir,
	}
}

// CommandAndEnv resolves args[0] inside the venv and returns the rewritten
// argument list with the activation variables
func (e *Env) CommandAndEnv(args []string) ([]string, []string, error) {
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("empty command")
	}
	exe, err := e.Executable(args[0])
	if err != nil {
		return nil, nil, err
	}
	out := append([]string{exe}, args[1:]...)
	return out, e.Environ(), nil
}
