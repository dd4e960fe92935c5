package document

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf2zh-server/internal/types"
)

func TestDetectType(t *testing.T) {
	cases := map[string]Type{
		"paper.pdf":                      Origin,
		"paper-mono.pdf":                 Mono,
		"paper.zh.mono.pdf":              Mono,
		"paper-dual.pdf":                 Dual,
		"paper.no_watermark.zh.dual.pdf": Dual,
		"paper.zh.TB_dual.pdf":           Dual,
		"paper-dual-cut.pdf":             DualCut,
		"paper-mono-cut.pdf":             MonoCut,
		"paper-crop-compare.pdf":         CropCompare,
		"paper-compare.pdf":              Compare,
		"paper-cut.pdf":                  OriginCut,
		"paper.cut.pdf":                  OriginCut,
	}
	for name, want := range cases {
		assert.Equal(t, want, DetectType(name), name)
	}
	assert.Equal(t, Origin, DetectType(filepath.Join("mono.pdf", "x.pdf")), "only the base name counts")
}

func TestDetectLayout(t *testing.T) {
	assert.Equal(t, LayoutLR, DetectLayout("a.zh.LR_dual.pdf"))
	assert.Equal(t, LayoutTB, DetectLayout("a-TB_dual.pdf"))
	assert.Equal(t, LayoutUnknown, DetectLayout("a-dual.pdf"))
}

func TestDerivedPath(t *testing.T) {
	dir := filepath.Join("data", "out")
	at := func(name string) Document { return New(filepath.Join(dir, name)) }

	cases := []struct {
		in     Document
		out    Type
		naming Naming
		want   string
	}{
		{at("paper.pdf"), OriginCut, NamingDash, "paper-cut.pdf"},
		{at("paper.pdf"), OriginCut, NamingDot, "paper.cut.pdf"},
		{at("paper.pdf"), Compare, NamingDash, "paper-compare.pdf"},
		{at("paper.pdf"), Compare, NamingDot, "paper.compare.pdf"},
		{at("paper-dual.pdf"), DualCut, NamingDash, "paper-dual-cut.pdf"},
		{at("paper-mono.pdf"), MonoCut, NamingDot, "paper-mono-cut.pdf"},
		{at("paper.zh.TB_dual.pdf"), CropCompare, NamingDot, "paper.zh.TB_crop-compare.pdf"},
		{at("paper-dual-cut.pdf"), CropCompare, NamingDash, "paper-crop-compare.pdf"},
	}
	for _, c := range cases {
		got := DerivedPath(c.in, c.out, c.naming)
		assert.Equal(t, filepath.Join(dir, c.want), got, "%s -> %s", c.in, c.out)
		assert.Equal(t, c.out, DetectType(got), "derived name must round-trip through DetectType")
	}
}

func TestTransitions(t *testing.T) {
	valid := [][2]Type{
		{Origin, Mono}, {Origin, Dual}, {Origin, OriginCut},
		{Dual, DualCut}, {Dual, CropCompare}, {Dual, Compare},
		{Mono, MonoCut},
		{Origin, MonoCut}, {Origin, DualCut}, {Origin, CropCompare}, {Origin, Compare},
	}
	for _, v := range valid {
		assert.NoError(t, ValidateTransition(v[0], v[1]), "%s -> %s", v[0], v[1])
	}

	invalid := [][2]Type{
		{Mono, DualCut}, {Mono, Compare}, {Dual, MonoCut}, {DualCut, Dual},
		{Compare, Origin}, {OriginCut, Mono}, {Origin, Origin}, {Type("weird"), Mono},
	}
	for _, v := range invalid {
		err := ValidateTransition(v[0], v[1])
		require.Error(t, err, "%s -> %s", v[0], v[1])

		var transitionErr *InvalidLayoutTransitionError
		require.True(t, errors.As(err, &transitionErr))
		assert.Equal(t, v[0], transitionErr.From)
		assert.Equal(t, v[1], transitionErr.To)
		assert.Equal(t, types.ErrInvalidTransition, types.CodeOf(err))
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, []Type{Origin, Mono, MonoCut}, Path(Origin, MonoCut))
	assert.Equal(t, []Type{Origin, Dual, Compare}, Path(Origin, Compare))
	assert.Nil(t, Path(Mono, Dual))
}
