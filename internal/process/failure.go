package process

import (
	"fmt"
	"regexp"
	"strings"

	"pdf2zh-server/internal/types"
)

const (
	// KindValueError marks failures whose output ends in a Python ValueError
	KindValueError = "ValueError"
	// KindProcessError marks any other non-zero exit
	KindProcessError = "ProcessError"
)

var valueErrorLine = regexp.MustCompile(`^ValueError:\s*(.+)$`)

// Failure is returned when the engine exits with a non-zero code
type Failure struct {
	ExitCode int
	Kind     string
	Message  string
	Tail     []string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("engine exited with code %d: %s", f.ExitCode, f.Message)
}

func (f *Failure) ErrorCode() types.ErrorCode { return types.ErrProcessFailure }

// ErrorKind is "ValueError" or "ProcessError"
func (f *Failure) ErrorKind() string { return f.Kind }

// Reason is the readable cause extracted from the output
func (f *Failure) Reason() string { return f.Message }

// ExitStatus is the engine's exit code
func (f *Failure) ExitStatus() int { return f.ExitCode }

// NewFailure classifies a failed run from the retained output tail
func NewFailure(exitCode int, tail []string) *Failure {
	f := &Failure{ExitCode: exitCode, Kind: KindProcessError, Tail: tail}
	if msg, ok := extractValueError(tail); ok {
		f.Kind, f.Message = KindValueError, msg
		return f
	}
	f.Message = lastReadable(tail)
	if f.Message == "" {
		f.Message = fmt.Sprintf("process exited with code %d", exitCode)
	}
	return f
}

// extractValueError finds the last "ValueError: msg" line and appends its
// indented continuation lines up to the first blank line.
func extractValueError(lines []string) (string, bool) {
	at := -1
	var msg string
	for i := len(lines) - 1; i >= 0; i-- {
		if m := valueErrorLine.FindStringSubmatch(strings.TrimRight(lines[i], " \t")); m != nil {
			at, msg = i, strings.TrimSpace(m[1])
			break
		}
	}
	if at < 0 || msg == "" {
		return "", false
	}

	parts := []string{msg}
	for _, line := range lines[at+1:] {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "Traceback") || valueErrorLine.MatchString(line) {
			break
		}
		if line[0] != ' ' && line[0] != '\t' && line[0] != '^' {
			break
		}
		parts = append(parts, strings.TrimSpace(line))
	}
	return strings.Join(parts, " "), true
}

func lastReadable(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "Traceback") || strings.HasPrefix(line, "File ") {
			continue
		}
		return line
	}
	return ""
}

// ring keeps the last n lines of output
type ring struct {
	lines []string
	next  int
	full  bool
}

func newRing(n int) *ring {
	return &ring{lines: make([]string, n)}
}

func (r *ring) add(line string) {
	if len(r.lines) == 0 {
		return
	}
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns the retained lines oldest first
func (r *ring) snapshot() []string {
	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}
