package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf2zh-server/internal/types"
)

// TestHelperProcess is not a real test; the supervisor tests re-run the test
// binary with it as a stand-in engine.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if len(args) == 0 {
		os.Exit(2)
	}

	switch args[0] {
	case "progress":
		fmt.Print("loading model\n")
		fmt.Print("translate 1/4\rtranslate 2/4\r\n")
		fmt.Print("Parse Page Layout (1/1) 2/2 0:00:00\n")
		fmt.Print("\x1b[32mtranslate\x1b[0m ━━━━ 4/4 0:00:01\n")
		fmt.Print("done without newline")
	case "valueerror":
		fmt.Println("Traceback (most recent call last):")
		fmt.Println(`  File "main.py", line 3, in <module>`)
		fmt.Println("ValueError: unsupported language")
		fmt.Println("  zz-ZZ is not known")
		fmt.Fprintln(os.Stderr, "")
		os.Exit(1)
	case "valueerror-blank":
		fmt.Println("ValueError: bad key")
		fmt.Println("  check the service settings")
		fmt.Println()
		fmt.Println()
		fmt.Println("  shutting down workers")
		os.Exit(1)
	case "exit":
		code, _ := strconv.Atoi(args[1])
		fmt.Println("first line")
		fmt.Fprintln(os.Stderr, "RuntimeError: out of memory")
		os.Exit(code)
	case "env":
		fmt.Printf("%s|%s|%s|%t|%s\n", os.Getenv("PYTHONUNBUFFERED"), os.Getenv("COLUMNS"),
			os.Getenv("TERM"), os.Getenv("NO_COLOR") == "", os.Getenv("EXTRA"))
	case "gbk":
		os.Stdout.Write([]byte{0xc4, 0xe3, 0xba, 0xc3, '\n'})
	case "sleep":
		time.Sleep(30 * time.Second)
	}
	os.Exit(0)
}

func helperCommand(args ...string) Command {
	return Command{
		Args: append([]string{os.Args[0], "-test.run=TestHelperProcess", "--"}, args...),
		Env:  []string{"GO_WANT_HELPER_PROCESS=1"},
	}
}

func newTestSupervisor(t *testing.T, opts Options) *Supervisor {
	t.Helper()
	if opts.Source == nil {
		opts.Source = PipeSource{}
	}
	s, err := NewSupervisor(opts)
	require.NoError(t, err)
	return s
}

func TestRunReportsProgressInOrder(t *testing.T) {
	var echo bytes.Buffer
	s := newTestSupervisor(t, Options{Echo: &echo})

	var updates []Update
	code, err := s.Run(context.Background(), helperCommand("progress"), func(u Update) {
		updates = append(updates, u)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	var percents []int
	var steps []string
	var logs []string
	for _, u := range updates {
		switch u.Kind {
		case UpdateProgress:
			percents = append(percents, u.Percent)
		case UpdateStep:
			steps = append(steps, u.Status)
		case UpdateLog:
			logs = append(logs, u.Line)
		}
	}
	assert.Equal(t, []int{25, 50, 100}, percents)
	assert.Equal(t, []string{"Parse Page Layout"}, steps)
	assert.Equal(t, []string{"loading model", "done without newline"}, logs)
	assert.Contains(t, echo.String(), "loading model")
}

func TestRunValueError(t *testing.T) {
	s := newTestSupervisor(t, Options{})

	code, err := s.Run(context.Background(), helperCommand("valueerror"), nil)
	require.Error(t, err)
	assert.Equal(t, 1, code)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, KindValueError, failure.Kind)
	assert.Equal(t, "unsupported language zz-ZZ is not known", failure.Message)
	assert.Equal(t, 1, failure.ExitCode)
	assert.Equal(t, types.ErrProcessFailure, types.CodeOf(err))
}

func TestRunValueErrorStopsAtBlankLine(t *testing.T) {
	s := newTestSupervisor(t, Options{})

	_, err := s.Run(context.Background(), helperCommand("valueerror-blank"), nil)
	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, KindValueError, failure.Kind)
	assert.Equal(t, "bad key check the service settings", failure.Message)
	assert.Equal(t, []string{"ValueError: bad key", "  check the service settings", "", "  shutting down workers"},
		failure.Tail, "blank runs collapse to one line")
}

func TestRunExitCodeAndTail(t *testing.T) {
	s := newTestSupervisor(t, Options{TailLines: 10})

	code, err := s.Run(context.Background(), helperCommand("exit", "3"), nil)
	require.Error(t, err)
	assert.Equal(t, 3, code)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, KindProcessError, failure.Kind)
	assert.Equal(t, "RuntimeError: out of memory", failure.Message)
	assert.Contains(t, failure.Tail, "first line")
}

func TestRunEnvironment(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var echo bytes.Buffer
	s := newTestSupervisor(t, Options{Echo: &echo})

	cmd := helperCommand("env")
	cmd.Env = append(cmd.Env, "EXTRA=yes")
	_, err := s.Run(context.Background(), cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, "1|200|xterm-256color|true|yes", strings.TrimSpace(echo.String()))
}

func TestRunDecodesLegacyEncoding(t *testing.T) {
	s := newTestSupervisor(t, Options{Encoding: "gbk"})

	var lines []string
	_, err := s.Run(context.Background(), helperCommand("gbk"), func(u Update) {
		lines = append(lines, u.Line)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"你好"}, lines)
}

func TestRunCancel(t *testing.T) {
	s := newTestSupervisor(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := s.Run(ctx, helperCommand("sleep"), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunMissingExecutable(t *testing.T) {
	s := newTestSupervisor(t, Options{})
	code, err := s.Run(context.Background(), Command{Args: []string{"/nonexistent/engine-binary"}}, nil)
	require.Error(t, err)
	assert.Equal(t, -1, code)
	assert.Equal(t, types.ErrProcessFailure, types.CodeOf(err))

	_, err = s.Run(context.Background(), Command{}, nil)
	assert.Equal(t, types.ErrInvalidInput, types.CodeOf(err))
}

func TestRunWithPTY(t *testing.T) {
	if !PTYAvailable() {
		t.Skip("no pseudo-terminal available")
	}
	s := newTestSupervisor(t, Options{Source: PTYSource{}})

	var percents []int
	code, err := s.Run(context.Background(), helperCommand("progress"), func(u Update) {
		if u.Kind == UpdateProgress {
			percents = append(percents, u.Percent)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []int{25, 50, 100}, percents)
}

func TestNewSupervisorRejectsUnknownEncoding(t *testing.T) {
	_, err := NewSupervisor(Options{Source: PipeSource{}, Encoding: "klingon-8"})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.CodeOf(err))
}

func TestDetectSource(t *testing.T) {
	assert.Equal(t, ModePipe, DetectSource("pipe").Name())
	assert.Equal(t, ModePTY, DetectSource("PTY").Name())
	auto := DetectSource("auto").Name()
	assert.Contains(t, []string{ModePipe, ModePTY}, auto)
}

func TestMergeEnv(t *testing.T) {
	env := mergeEnv([]string{"PATH=/bin", "NO_COLOR=1", "COLUMNS=80"}, []string{"PATH=/venv/bin", "X=1"})
	assert.Contains(t, env, "PATH=/venv/bin")
	assert.Contains(t, env, "COLUMNS=200")
	assert.Contains(t, env, "X=1")
	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "NO_COLOR="))
	}
}
