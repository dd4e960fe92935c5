package geometry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResources struct {
	fonts map[string]*fontMetrics
	boxes map[string]Rect
}

func (s stubResources) font(name string) *fontMetrics { return s.fonts[name] }

func (s stubResources) xobject(name string) (Rect, bool) {
	b, ok := s.boxes[name]
	return b, ok
}

// every glyph of F1 is 500 units wide, so 6pt at size 12
var fixedFont = stubResources{
	fonts: map[string]*fontMetrics{"F1": {missingWidth: 500, scale: 1}},
	boxes: map[string]Rect{"Im1": {URX: 1, URY: 1}},
}

func TestParseContent(t *testing.T) {
	src := []byte("q 1 0 0 1 5 5 cm % comment\nBT /F#31 12 Tf (a\\(b\\)\\101) Tj [<0041> -20 (x)] TJ ET\n" +
		"BI /W 2 /H 1 /BPC 8 /CS /G ID \x00EI\xff EI Q")
	ops, err := parseContent(src)
	require.NoError(t, err)

	var names []string
	for _, op := range ops {
		names = append(names, op.op)
	}
	assert.Equal(t, []string{"q", "cm", "BT", "Tf", "Tj", "TJ", "ET", "BI", "Q"}, names)

	assert.Equal(t, "F1", ops[3].operands[0].name)
	assert.Equal(t, []byte("a(b)A"), ops[4].operands[0].str)
	tj := ops[5].operands[0]
	require.Equal(t, kindArray, tj.kind)
	require.Len(t, tj.items, 3)
	assert.Equal(t, []byte{0x00, 0x41}, tj.items[0].str)
	assert.Equal(t, -20.0, tj.items[1].num)
	assert.Equal(t, "1 0 0 1 5 5 cm", string(ops[1].raw))
	assert.True(t, strings.HasSuffix(string(ops[7].raw), "\xff EI"), "inline image data must be kept whole")
}

func TestParseContentErrors(t *testing.T) {
	for _, src := range []string{"(open", "<41", "[1 2", "BI /W 1 ID abc"} {
		_, err := parseContent([]byte(src))
		assert.Error(t, err, src)
	}
}

func TestRedactTextPerGlyph(t *testing.T) {
	clip := Rect{LLX: 40, LLY: 20, URX: 308, URY: 780}
	src := "BT /F1 12 Tf 100 400 Td (LEFT) Tj ET\n" +
		"BT /F1 12 Tf 450 400 Td (RIGHT) Tj ET\n" +
		"BT /F1 12 Tf 280 500 Td (MIDDLE) Tj ET"

	out, removed, err := redactContent([]byte(src), clip, fixedFont)
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, "(LEFT) Tj")
	assert.NotContains(t, s, "RIGHT")
	assert.Contains(t, s, "[-2500] TJ", "removed glyphs still advance the text position")
	assert.Contains(t, s, "[<4d494444> -1000] TJ")
	assert.Equal(t, 5+2, removed)
}

func TestRedactTextKeepsTrailingPosition(t *testing.T) {
	clip := Rect{LLX: 292, LLY: 20, URX: 560, URY: 780}
	src := "BT /F1 12 Tf 280 500 Td (MIDDLE) Tj (!) Tj ET"

	out, _, err := redactContent([]byte(src), clip, fixedFont)
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, "[-1000 <44444c45>] TJ")
	// the following show starts at 316, inside the clip, and is kept as is
	assert.Contains(t, s, "(!) Tj")
}

func TestRedactTextUsesCTMAndQuoteOperators(t *testing.T) {
	clip := Rect{URX: 300, URY: 800}
	// the cm pushes text right by 400, out of the clip
	src := "q 1 0 0 1 400 0 cm BT /F1 10 Tf 14 TL 0 700 Td (A) ' ET Q\n" +
		"BT /F1 10 Tf 0 600 Td 1 2 (B) \" ET"

	out, removed, err := redactContent([]byte(src), clip, fixedFont)
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, "T*\n[-500] TJ")
	assert.Contains(t, s, "1 2 (B) \"")
	assert.Equal(t, 1, removed)
}

func TestRedactTwoByteFont(t *testing.T) {
	res := stubResources{fonts: map[string]*fontMetrics{
		"C0": {twoByte: true, missingWidth: 1000, cidWidths: map[int]float64{0x41: 500}, scale: 1},
	}}
	clip := Rect{URX: 112, URY: 800}
	src := "BT /C0 10 Tf 100 100 Td <00410042> Tj ET"

	out, removed, err := redactContent([]byte(src), clip, res)
	require.NoError(t, err)

	// 0x41 spans 100..105, 0x42 spans 105..115 and crosses the clip
	assert.Contains(t, string(out), "[<0041> -1000] TJ")
	assert.Equal(t, 1, removed)
}

func TestRedactPathsAndImages(t *testing.T) {
	clip := Rect{URX: 300, URY: 800}
	src := "10 10 m 100 100 l S\n" +
		"250 10 100 20 re f\n" +
		"0 0 300 800 re W n\n" +
		"q 50 0 0 50 20 20 cm /Im1 Do Q\n" +
		"q 50 0 0 50 400 20 cm /Im1 Do Q\n" +
		"q 50 0 0 50 280 20 cm /Im1 Do Q\n" +
		"/Unknown Do"

	out, removed, err := redactContent([]byte(src), clip, fixedFont)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")

	assert.Contains(t, lines, "S", "stroke inside the clip is kept")
	assert.Contains(t, lines, "250 10 100 20 re")
	assert.Contains(t, lines, "n", "fill crossing the clip becomes a no-op")
	assert.NotContains(t, lines, "f")
	assert.Contains(t, lines, "W")

	doCount := strings.Count(string(out), "/Im1 Do")
	assert.Equal(t, 2, doCount, "images fully outside are dropped, partial ones stay")
	assert.Contains(t, string(out), "/Unknown Do")
	assert.Equal(t, 2, removed)
}

func TestRedactGraphicsStateStack(t *testing.T) {
	clip := Rect{URX: 300, URY: 800}
	src := "q 1 0 0 1 500 0 cm Q BT /F1 10 Tf 10 10 Td (ok) Tj ET"

	out, removed, err := redactContent([]byte(src), clip, fixedFont)
	require.NoError(t, err)
	assert.Contains(t, string(out), "(ok) Tj", "Q restores the matrix in effect before q")
	assert.Zero(t, removed)
}

func TestBuildTJ(t *testing.T) {
	parts := []tjPart{
		{code: []byte("a")},
		{adjust: -120},
		{code: []byte("b")},
		{skipped: true, advance: 6},
		{code: []byte("c")},
	}
	assert.Equal(t, "[<61> -120 <62> -500 <63>] TJ", string(buildTJ(parts, 12)))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", formatNumber(-0.00001))
	assert.Equal(t, "12.5", formatNumber(12.5))
	assert.Equal(t, "-1000", formatNumber(-1000))
	assert.Equal(t, "0.3333", formatNumber(1.0/3))
}
