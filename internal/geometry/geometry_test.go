package geometry

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestClips(t *testing.T) {
	box := Rect{URX: 600, URY: 800}
	left, right := DefaultClipConfig().Clips(box)

	assert.Equal(t, Rect{LLX: 40, LLY: 20, URX: 308, URY: 780}, left)
	assert.Equal(t, Rect{LLX: 292, LLY: 20, URX: 560, URY: 780}, right)
}

func TestClipsFollowBoxOrigin(t *testing.T) {
	box := Rect{LLX: 10, LLY: 50, URX: 610, URY: 850}
	left, right := DefaultClipConfig().Clips(box)

	assert.Equal(t, Rect{LLX: 50, LLY: 70, URX: 318, URY: 830}, left)
	assert.Equal(t, Rect{LLX: 302, LLY: 70, URX: 570, URY: 830}, right)
}

func TestClipsStayInsideBox(t *testing.T) {
	cfg := &quick.Config{MaxCount: 100}
	f := func(w, h, wOff, hOff uint16, ratio uint8) bool {
		box := Rect{URX: float64(w%2000) + 1, URY: float64(h%2000) + 1}
		clip := ClipConfig{WOffset: float64(wOff % 300), HOffset: float64(hOff % 300), OffsetRatio: float64(ratio%20) + 1}
		left, right := clip.Clips(box)
		for _, r := range []Rect{left, right} {
			if !r.Empty() && !box.Contains(r, 0) {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, cfg); err != nil {
		t.Errorf("clip escaped its page box: %v", err)
	}
}

func TestClipConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultClipConfig().Validate())
	assert.Error(t, ClipConfig{WOffset: -1, HOffset: 0, OffsetRatio: 5}.Validate())
	assert.Error(t, ClipConfig{WOffset: 1, HOffset: -3, OffsetRatio: 5}.Validate())
	assert.Error(t, ClipConfig{WOffset: 1, HOffset: 1, OffsetRatio: 0}.Validate())
	assert.Error(t, ClipConfig{WOffset: math.NaN(), HOffset: 1, OffsetRatio: 1}.Validate())
}

func TestHalves(t *testing.T) {
	left, right := Halves(Rect{LLX: 0, LLY: 0, URX: 1200, URY: 800})
	assert.Equal(t, Rect{URX: 600, URY: 800}, left)
	assert.Equal(t, Rect{LLX: 600, URX: 1200, URY: 800}, right)
}

func TestMatrixMultiply(t *testing.T) {
	scale := Matrix{2, 0, 0, 2, 0, 0}
	move := Translation(10, 5)

	// scale first, then move
	x, y := scale.Multiply(move).Apply(1, 1)
	assert.True(t, almostEqual(12, x) && almostEqual(7, y), "got (%v, %v)", x, y)

	// move first, then scale
	x, y = move.Multiply(scale).Apply(1, 1)
	assert.True(t, almostEqual(22, x) && almostEqual(12, y), "got (%v, %v)", x, y)

	assert.Equal(t, scale, scale.Multiply(Identity))
}

func TestFitMatrixCentersAndScales(t *testing.T) {
	cfg := &quick.Config{MaxCount: 100}
	f := func(sw, sh, dw, dh uint16) bool {
		src := Rect{LLX: 30, LLY: 40, URX: 30 + float64(sw%1000) + 1, URY: 40 + float64(sh%1000) + 1}
		dst := Rect{LLX: 100, LLY: 0, URX: 100 + float64(dw%1000) + 1, URY: float64(dh%1000) + 1}
		got := FitMatrix(src, dst).ApplyRect(src)

		fits := dst.Contains(got, 1e-6)
		touches := almostEqual(got.Width(), dst.Width()) || almostEqual(got.Height(), dst.Height())
		cx := almostEqual(got.LLX+got.Width()/2, dst.LLX+dst.Width()/2)
		cy := almostEqual(got.LLY+got.Height()/2, dst.LLY+dst.Height()/2)
		return fits && touches && cx && cy
	}
	if err := quick.Check(f, cfg); err != nil {
		t.Errorf("FitMatrix property failed: %v", err)
	}
}

func TestRectOps(t *testing.T) {
	a := NewRect(10, 10, 0, 0)
	assert.Equal(t, Rect{URX: 10, URY: 10}, a)
	assert.True(t, a.Overlaps(Rect{LLX: 5, LLY: 5, URX: 20, URY: 20}))
	assert.False(t, a.Overlaps(Rect{LLX: 10, LLY: 0, URX: 20, URY: 10}), "touching edges share no area")
	assert.True(t, a.Contains(Rect{LLX: -0.2, URX: 10, URY: 10}, 0.5))
	assert.False(t, a.Contains(Rect{LLX: -1, URX: 10, URY: 10}, 0.5))
	assert.Equal(t, Rect{URX: 20, URY: 20}, a.Union(Rect{LLX: 15, LLY: 15, URX: 20, URY: 20}))
	assert.True(t, Rect{LLX: 5, URX: 5, URY: 1}.Empty())
}
