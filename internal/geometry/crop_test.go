package geometry

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf2zh-server/internal/types"
)

func twoColumnPage(left, right string) fixturePage {
	return page(600, 800, textAt(100, 400, left)+textAt(450, 400, right))
}

func TestCropMonoCut(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "paper-mono.pdf", twoColumnPage("LEFTA", "RIGHTA"), twoColumnPage("LEFTB", "RIGHTB"))
	dst := filepath.Join(dir, "paper-mono-cut.pdf")

	report, err := Crop(src, dst, ModeMonoCut, DefaultClipConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, report.InputPages)
	assert.Equal(t, 4, report.OutputPages)
	assert.Empty(t, report.Warnings)

	column := Size{Width: 268, Height: 760}
	assert.Equal(t, []Size{column, column, column, column}, sizes(t, dst))

	wantKept := []string{"LEFTA", "RIGHTA", "LEFTB", "RIGHTB"}
	wantGone := []string{"RIGHTA", "LEFTA", "RIGHTB", "LEFTB"}
	for i := range wantKept {
		forms := formContents(t, dst, i+1)
		require.Len(t, forms, 1)
		assert.Contains(t, forms[0], "("+wantKept[i]+")", "page %d", i+1)
		assert.NotContains(t, forms[0], "("+wantGone[i]+")", "page %d must not carry hidden text", i+1)
	}
}

func TestCropDualCutInterleaves(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "paper-dual.pdf",
		twoColumnPage("T1L", "T1R"), twoColumnPage("O1L", "O1R"), twoColumnPage("T2L", "T2R"))
	dst := filepath.Join(dir, "paper-dual-cut.pdf")

	report, err := Crop(src, dst, ModeDualCut, DefaultClipConfig())
	require.NoError(t, err)
	assert.Equal(t, 4, report.OutputPages)
	require.Len(t, report.Warnings, 1, "the unpaired page is reported")
	assert.Contains(t, report.Warnings[0], "odd page count 3")

	for i, want := range []string{"T1L", "O1L", "T1R", "O1R"} {
		forms := formContents(t, dst, i+1)
		require.Len(t, forms, 1)
		assert.Contains(t, forms[0], "("+want+")", "page %d", i+1)
	}
}

func TestCropCompareSideBySide(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "paper-dual.pdf", twoColumnPage("T1L", "T1R"), twoColumnPage("O1L", "O1R"))
	dst := filepath.Join(dir, "paper-crop-compare.pdf")

	report, err := Crop(src, dst, ModeCropCompare, DefaultClipConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, report.OutputPages)
	assert.Equal(t, []Size{{Width: 600, Height: 760}, {Width: 600, Height: 760}}, sizes(t, dst))

	first := formContents(t, dst, 1)
	require.Len(t, first, 2)
	assert.Contains(t, first[0], "(T1L)")
	assert.Contains(t, first[1], "(O1L)")
	assert.NotContains(t, strings.Join(first, ""), "R)")

	second := formContents(t, dst, 2)
	require.Len(t, second, 2)
	assert.Contains(t, second[0], "(T1R)")
	assert.Contains(t, second[1], "(O1R)")
}

func TestCropRejectsSinglePagePairs(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "one.pdf", twoColumnPage("A", "B"))

	_, err := Crop(src, filepath.Join(dir, "out.pdf"), ModeDualCut, DefaultClipConfig())
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidInput, types.CodeOf(err))
	assert.NoFileExists(t, filepath.Join(dir, "out.pdf"))
}

func TestCropInvalidInput(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "a.pdf", twoColumnPage("A", "B"))

	_, err := Crop(src, filepath.Join(dir, "out.pdf"), Mode("diagonal"), DefaultClipConfig())
	assert.Equal(t, types.ErrInvalidInput, types.CodeOf(err))

	_, err = Crop(src, filepath.Join(dir, "out.pdf"), ModeMonoCut, ClipConfig{OffsetRatio: 0})
	assert.Equal(t, types.ErrInvalidInput, types.CodeOf(err))

	_, err = Crop(src, filepath.Join(dir, "out.pdf"), ModeMonoCut, ClipConfig{WOffset: 400, HOffset: 0, OffsetRatio: 5})
	assert.Equal(t, types.ErrInvalidInput, types.CodeOf(err), "margins wider than the page")
}

func TestCropMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := Crop(filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "out.pdf"), ModeMonoCut, DefaultClipConfig())
	require.Error(t, err)

	var readErr *DocumentReadError
	assert.ErrorAs(t, err, &readErr)
	assert.Equal(t, types.ErrDocumentRead, types.CodeOf(err))
}

func TestMergeSideBySide(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "paper-dual.pdf",
		page(600, 800, textAt(50, 700, "P1")),
		page(500, 900, textAt(50, 700, "P2")),
		page(600, 800, textAt(50, 700, "P3")))
	dst := filepath.Join(dir, "paper-compare.pdf")

	report, err := MergeSideBySide(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 3, report.InputPages)
	assert.Equal(t, 2, report.OutputPages)
	assert.Len(t, report.Warnings, 1)
	assert.Equal(t, []Size{{Width: 1100, Height: 900}, {Width: 1200, Height: 800}}, sizes(t, dst))

	first := formContents(t, dst, 1)
	require.Len(t, first, 2)
	assert.Contains(t, first[0], "(P1)")
	assert.Contains(t, first[1], "(P2)")
}

func TestConvertLRtoTB(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "paper.zh.LR_dual.pdf", page(1200, 800, textAt(100, 400, "ORIG")+textAt(700, 400, "TRANS")))
	dst := filepath.Join(dir, "paper.zh.TB_dual.pdf")

	report, err := ConvertLRtoTB(src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, report.OutputPages)
	assert.Equal(t, []Size{{Width: 600, Height: 800}, {Width: 600, Height: 800}}, sizes(t, dst))

	left := formContents(t, dst, 1)[0]
	right := formContents(t, dst, 2)[0]
	assert.Contains(t, left, "(ORIG)")
	assert.NotContains(t, left, "TRANS")
	assert.Contains(t, right, "(TRANS)")
	assert.NotContains(t, right, "ORIG")
}

func TestMergeThenSplitRestoresPages(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "in.pdf",
		page(600, 800, textAt(50, 50, "A")), page(600, 800, textAt(50, 50, "B")),
		page(600, 800, textAt(50, 50, "C")), page(600, 800, textAt(50, 50, "D")))
	merged := filepath.Join(dir, "merged.pdf")
	split := filepath.Join(dir, "split.pdf")

	_, err := MergeSideBySide(src, merged)
	require.NoError(t, err)
	_, err = ConvertLRtoTB(merged, split)
	require.NoError(t, err)

	n, err := PageCount(split)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	for _, s := range sizes(t, split) {
		assert.Equal(t, Size{Width: 600, Height: 800}, s)
	}
}

func TestPageCount(t *testing.T) {
	dir := t.TempDir()
	src := writeFixture(t, dir, "three.pdf", page(100, 100, ""), page(100, 100, ""), page(100, 100, ""))

	n, err := PageCount(src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = PageCount(filepath.Join(dir, "nope.pdf"))
	assert.Error(t, err)
}
