//go:build !windows

package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// terminal size presented to the engine; wide enough that progress bars
// never wrap
var ptySize = &pty.Winsize{Rows: 24, Cols: 200}

// PTYSource runs the command on a pseudo-terminal so progress bars are
// rendered live instead of being buffered until exit
type PTYSource struct{}

func (PTYSource) Name() string { return ModePTY }

func (PTYSource) Start(cmd *exec.Cmd) (Stream, error) {
	f, err := pty.StartWithSize(cmd, ptySize)
	if err != nil {
		return nil, err
	}
	return &ptyStream{f: f}, nil
}

type ptyStream struct {
	f *os.File
}

// Read reports io.EOF once every slave end is closed; Linux signals that with EIO.
func (p *ptyStream) Read(b []byte) (int, error) {
	n, err := p.f.Read(b)
	if err != nil && errors.Is(err, syscall.EIO) {
		return n, io.EOF
	}
	return n, err
}

func (p *ptyStream) Exited() {}

func (p *ptyStream) Close() error { return p.f.Close() }

// PTYAvailable reports whether a pseudo-terminal can be opened
func PTYAvailable() bool {
	master, slave, err := pty.Open()
	if err != nil {
		return false
	}
	slave.Close()
	master.Close()
	return true
}
