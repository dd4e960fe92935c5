// Package process runs translation engines as supervised subprocesses and
// turns their terminal output into progress updates.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"pdf2zh-server/internal/logger"
	"pdf2zh-server/internal/types"
)

const (
	// DefaultTailLines is how much output is kept for failure reports
	DefaultTailLines = 4000
	// drainQuiet bounds how long output is drained after the process exits
	drainQuiet = 100 * time.Millisecond
	readSize   = 4096
)

// childEnv is applied on top of the inherited environment so the engine
// writes unbuffered, colored, 200-column output
var childEnv = map[string]string{
	"PYTHONUNBUFFERED": "1",
	"COLUMNS":          "200",
	"FORCE_COLOR":      "1",
	"TERM":             "xterm-256color",
}

// Command describes one engine invocation
type Command struct {
	Args []string
	// Env holds KEY=VALUE overrides on top of the inherited environment
	Env []string
	Dir string
}

// Options configures a Supervisor
type Options struct {
	Source Source
	// Encoding names the console encoding of the engine (utf-8, gbk, big5, ...)
	Encoding string
	// Echo receives the decoded output as it arrives; nil discards it
	Echo      io.Writer
	TailLines int
}

// Supervisor runs engine processes
type Supervisor struct {
	source Source
	enc    encoding.Encoding
	echo   io.Writer
	tail   int
}

// NewSupervisor validates opts and returns a Supervisor
func NewSupervisor(opts Options) (*Supervisor, error) {
	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, fmt.Sprintf("unknown output encoding %q", opts.Encoding), err)
	}
	s := &Supervisor{source: opts.Source, enc: enc, echo: opts.Echo, tail: opts.TailLines}
	if s.source == nil {
		s.source = DetectSource(ModeAuto)
	}
	if s.echo == nil {
		s.echo = io.Discard
	}
	if s.tail <= 0 {
		s.tail = DefaultTailLines
	}
	return s, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return unicode.UTF8, nil
	}
	return htmlindex.Get(name)
}

// SourceName reports which output source the supervisor uses
func (s *Supervisor) SourceName() string {
	return s.source.Name()
}

// Run starts the command and blocks until it exits, calling onProgress for
// every complete output line in order. A non-zero exit yields a *Failure.
// Cancelling ctx kills the process.
func (s *Supervisor) Run(ctx context.Context, c Command, onProgress func(Update)) (int, error) {
	if len(c.Args) == 0 {
		return -1, types.NewAppError(types.ErrInvalidInput, "empty command", nil)
	}
	if onProgress == nil {
		onProgress = func(Update) {}
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(os.Environ(), c.Env)
	// output pipes held open by orphaned children must not block Wait forever
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	stream, err := s.source.Start(cmd)
	if err != nil {
		return -1, types.NewAppErrorWithDetails(types.ErrProcessFailure, "failed to start engine", c.Args[0], err)
	}
	logger.Info("engine started",
		logger.String("source", s.source.Name()),
		logger.Int("pid", cmd.Process.Pid))

	chunks := make(chan string, 64)
	done := make(chan struct{})
	defer close(done)
	go readChunks(transform.NewReader(stream, s.enc.NewDecoder()), chunks, done)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	tail := newRing(s.tail)
	var pending string
	lineStart, blank := true, false
	consume := func(text string) {
		io.WriteString(s.echo, text)
		var segments []string
		segments, pending, lineStart = splitSegments(pending+text, lineStart)
		for _, seg := range segments {
			u := ParseProgress(seg)
			if strings.TrimSpace(u.Line) == "" {
				// one blank per run; it ends a ValueError continuation
				if !blank {
					tail.add("")
					blank = true
				}
				continue
			}
			blank = false
			tail.add(u.Line)
			onProgress(u)
		}
	}

	var (
		waitErr error
		exited  bool
		quiet   *time.Timer
		quietC  <-chan time.Time
	)
loop:
	for {
		select {
		case text, ok := <-chunks:
			if !ok {
				chunks = nil
				if exited {
					break loop
				}
				continue
			}
			consume(text)
			if quiet != nil {
				quiet.Reset(drainQuiet)
			}
		case waitErr = <-waitCh:
			exited = true
			waitCh = nil
			stream.Exited()
			if chunks == nil {
				break loop
			}
			quiet = time.NewTimer(drainQuiet)
			quietC = quiet.C
		case <-quietC:
			break loop
		}
	}
	if quiet != nil {
		quiet.Stop()
	}
	stream.Close()
	if pending != "" {
		consume("\n")
	}

	elapsed := time.Since(start)
	if ctx.Err() != nil {
		logger.Warn("engine cancelled", logger.Duration("elapsed", elapsed))
		return -1, types.NewAppError(types.ErrProcessFailure, "engine run cancelled", ctx.Err())
	}
	if waitErr == nil {
		logger.Info("engine finished", logger.Duration("elapsed", elapsed))
		return 0, nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code = exitErr.ExitCode()
	}
	failure := NewFailure(code, tail.snapshot())
	logger.Error("engine failed", failure,
		logger.Int("exit_code", code),
		logger.String("kind", failure.Kind),
		logger.Duration("elapsed", elapsed))
	return code, failure
}

func readChunks(r io.Reader, out chan<- string, done <-chan struct{}) {
	defer close(out)
	buf := make([]byte, readSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case out <- string(buf[:n]):
			case <-done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// mergeEnv applies the child defaults and overrides to base. NO_COLOR is
// always removed.
func mergeEnv(base, overrides []string) []string {
	env := make(map[string]string, len(base)+len(childEnv))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	delete(env, "NO_COLOR")
	for k, v := range childEnv {
		env[k] = v
	}
	for _, kv := range overrides {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + env[k]
	}
	return out
}
