//go:build windows

package process

import (
	"errors"
	"os/exec"
)

// PTYSource is unavailable on Windows; DetectSource never selects it there
type PTYSource struct{}

func (PTYSource) Name() string { return ModePTY }

func (PTYSource) Start(cmd *exec.Cmd) (Stream, error) {
	return nil, errors.New("pseudo-terminals are not supported on windows")
}

// PTYAvailable reports whether a pseudo-terminal can be opened
func PTYAvailable() bool { return false }
