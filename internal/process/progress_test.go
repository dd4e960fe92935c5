package process

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	cases := []struct {
		line    string
		kind    UpdateKind
		percent int
		status  string
	}{
		{"translate ━━━━━━━━ 50/100 0:00:15", UpdateProgress, 50, "translating"},
		{"\x1b[1;34mtranslate\x1b[0m \x1b[38;5;237m━━━\x1b[0m 1/3 0:00:01", UpdateProgress, 33, "translating"},
		{"Parse Page Layout (1/1) ━━━━━ 2/2 0:00:00", UpdateStep, -1, "Parse Page Layout"},
		{"Translate Paragraphs (1/1) ━━━━━ 1/1 0:00:00", UpdateStep, -1, "Translate Paragraphs"},
		{" 45%|████▌     | 9/20 [00:03<00:04]  Translate", UpdateLog, -1, ""},
		{"Translate:  45%|████▌     | 9/20", UpdateProgress, 45, "translating"},
		{"RUNNING pages 3/4", UpdateProgress, 75, "translating"},
		{"translate 0/0", UpdateLog, -1, ""},
		{"plain log line 2/3 without keyword", UpdateLog, -1, ""},
	}
	for _, c := range cases {
		u := ParseProgress(c.line)
		assert.Equal(t, c.kind, u.Kind, c.line)
		assert.Equal(t, c.percent, u.Percent, c.line)
		assert.Equal(t, c.status, u.Status, c.line)
	}
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "hello world", StripANSI("\x1b[2K\x1b[1mhello\x1b[0m world"))
	assert.Equal(t, "link", StripANSI("\x1b]8;;http://x\x1b\\link\x1b]8;;\x1b\\"))
	assert.Equal(t, "bell", StripANSI("\x1b]0;title\x07bell"))
	assert.Equal(t, "c1", StripANSI("\u009b31mc1"))
}

func TestSplitSegments(t *testing.T) {
	segs, rest, start := splitSegments("a\rb\r\nc\n\nd", true)
	assert.Equal(t, []string{"a", "b", "c", ""}, segs)
	assert.Equal(t, "d", rest)
	assert.False(t, start)

	segs, rest, _ = splitSegments("no terminator", true)
	assert.Empty(t, segs)
	assert.Equal(t, "no terminator", rest)

	segs, _, _ = splitSegments("x\r\n\r\ny\n", true)
	assert.Equal(t, []string{"x", "", "y"}, segs, "CRLF blank line")

	segs, _, start = splitSegments("line\n", true)
	assert.Equal(t, []string{"line"}, segs)
	require.True(t, start)
	segs, _, _ = splitSegments("\nnext\n", start)
	assert.Equal(t, []string{"", "next"}, segs, "blank line split across chunks")
}

func TestPercentBounded(t *testing.T) {
	f := func(cur, total uint16) bool {
		u := ParseProgress("translate " + itoa(int(cur)) + "/" + itoa(int(total)))
		if total == 0 {
			return u.Kind == UpdateLog
		}
		return u.Percent >= 0 && u.Percent <= 100
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 100}); err != nil {
		t.Errorf("percentage out of range: %v", err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func TestExtractValueError(t *testing.T) {
	tail := []string{
		"ValueError: first",
		"Traceback (most recent call last):",
		`  File "x.py", line 1`,
		"ValueError: second problem",
		"    detail one",
		"^^^^",
		"not indented",
	}
	msg, ok := extractValueError(tail)
	assert.True(t, ok)
	assert.Equal(t, "second problem detail one ^^^^", msg)

	_, ok = extractValueError([]string{"KeyError: x"})
	assert.False(t, ok)

	msg, ok = extractValueError([]string{
		"ValueError: bad key",
		"  check the service settings",
		"",
		"  unrelated indented log line",
	})
	assert.True(t, ok)
	assert.Equal(t, "bad key check the service settings", msg, "blank line ends the continuation")
}

func TestNewFailureFallbacks(t *testing.T) {
	f := NewFailure(2, []string{"useful line", "Traceback (most recent call last):", `  File "a.py", line 9`})
	assert.Equal(t, "useful line", f.Message)
	assert.Equal(t, KindProcessError, f.Kind)

	f = NewFailure(7, nil)
	assert.Equal(t, "process exited with code 7", f.Message)
	assert.Contains(t, f.Error(), "code 7")
}

func TestRing(t *testing.T) {
	r := newRing(3)
	for _, s := range []string{"a", "b"} {
		r.add(s)
	}
	assert.Equal(t, []string{"a", "b"}, r.snapshot())
	for _, s := range []string{"c", "d", "e"} {
		r.add(s)
	}
	assert.Equal(t, []string{"c", "d", "e"}, r.snapshot())
}
