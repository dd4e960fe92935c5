package process

import (
	"regexp"
	"strconv"
	"strings"
)

// UpdateKind classifies one line of engine output
type UpdateKind int

const (
	// UpdateLog is a plain output line
	UpdateLog UpdateKind = iota
	// UpdateStep reports a sub-step; it carries a status but no percentage
	UpdateStep
	// UpdateProgress reports overall progress
	UpdateProgress
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateStep:
		return "step"
	case UpdateProgress:
		return "progress"
	}
	return "log"
}

// Update is what the supervisor reports for each output line
type Update struct {
	Kind    UpdateKind
	Percent int
	Status  string
	Line    string
}

var (
	ansiPattern = regexp.MustCompile(`\x1b\][^\x07\x1b]*(?:\x07|\x1b\\)|(?:\x1b[@-_]|[\x{80}-\x{9f}])[0-?]*[ -/]*[@-~]`)

	// overall bar of pdf2zh_next, e.g. "translate ━━━━ 50/100 0:00:15"
	mainProgress = regexp.MustCompile(`(?:^|\s)translate\s+.*?(\d+)/(\d+)`)
	// sub-steps, e.g. "Parse Page Layout (1/1) ━━━━ 2/2 0:00:00"
	stepProgress = regexp.MustCompile(`^(.+?)\(\d+/\d+\)\s+.*?(\d+)/(\d+)`)
	// pdf2zh 1.x tqdm bars
	legacyProgress = regexp.MustCompile(`(?i)(?:translate|running|parse).*?(\d+)/(\d+)`)
)

// StripANSI removes terminal escape sequences
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// ParseProgress classifies one output segment. The overall bar wins over
// step bars, which win over the legacy format.
func ParseProgress(segment string) Update {
	line := strings.TrimRight(StripANSI(segment), " \t")
	clean := strings.TrimSpace(line)
	u := Update{Kind: UpdateLog, Percent: -1, Line: line}

	if m := mainProgress.FindStringSubmatch(clean); m != nil {
		if pct, ok := percent(m[1], m[2]); ok {
			u.Kind, u.Percent, u.Status = UpdateProgress, pct, "translating"
		}
		return u
	}
	if m := stepProgress.FindStringSubmatch(clean); m != nil {
		u.Kind, u.Status = UpdateStep, strings.TrimSpace(m[1])
		return u
	}
	if m := legacyProgress.FindStringSubmatch(clean); m != nil {
		if pct, ok := percent(m[1], m[2]); ok {
			u.Kind, u.Percent, u.Status = UpdateProgress, pct, "translating"
		}
	}
	return u
}

func percent(cur, total string) (int, bool) {
	c, err1 := strconv.Atoi(cur)
	t, err2 := strconv.Atoi(total)
	if err1 != nil || err2 != nil || t <= 0 {
		return 0, false
	}
	pct := c * 100 / t
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

// splitSegments cuts text at newlines and carriage returns. The returned
// rest is an unterminated trailing segment to be completed by later output.
// A blank line (two newlines with nothing but carriage returns between) is
// reported as an empty segment; lineStart carries that state across calls.
func splitSegments(text string, lineStart bool) (segments []string, rest string, atLineStart bool) {
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\n' && c != '\r' {
			continue
		}
		switch {
		case i > start:
			segments = append(segments, text[start:i])
			lineStart = c == '\n'
		case c == '\n' && lineStart:
			segments = append(segments, "")
		case c == '\n':
			lineStart = true
		}
		start = i + 1
	}
	if start < len(text) {
		lineStart = false
	}
	return segments, text[start:], lineStart
}
