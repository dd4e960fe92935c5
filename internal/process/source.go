package process

import (
	"io"
	"os/exec"
	"strings"
)

// Source attaches a command's combined output to a readable stream
type Source interface {
	Name() string
	// Start starts cmd with stdout and stderr attached to the returned stream
	Start(cmd *exec.Cmd) (Stream, error)
}

// Stream is the output of a started command
type Stream interface {
	io.Reader
	// Exited is called once the process has been reaped. Buffered output
	// can still be read afterwards.
	Exited()
	// Close releases the stream and unblocks pending reads
	Close() error
}

// Process modes accepted by DetectSource
const (
	ModeAuto = "auto"
	ModePTY  = "pty"
	ModePipe = "pipe"
)

// DetectSource picks the output source for a configured mode. "auto" uses a
// pseudo-terminal when one can be opened and pipes otherwise.
func DetectSource(mode string) Source {
	switch strings.ToLower(mode) {
	case ModePipe:
		return PipeSource{}
	case ModePTY:
		return PTYSource{}
	}
	if PTYAvailable() {
		return PTYSource{}
	}
	return PipeSource{}
}

// PipeSource merges stdout and stderr into one in-memory pipe
type PipeSource struct{}

func (PipeSource) Name() string { return ModePipe }

func (PipeSource) Start(cmd *exec.Cmd) (Stream, error) {
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	hideWindow(cmd)
	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, err
	}
	return &pipeStream{PipeReader: pr, w: pw}, nil
}

type pipeStream struct {
	*io.PipeReader
	w *io.PipeWriter
}

func (p *pipeStream) Exited() { p.w.Close() }

func (p *pipeStream) Close() error {
	p.w.Close()
	return p.PipeReader.Close()
}
