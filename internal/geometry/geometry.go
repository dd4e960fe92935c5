// Package geometry reshapes translated PDFs into bilingual reading layouts.
//
// Every operation reads one source file and writes exactly one new file. Pages
// are re-composed from Form XObjects whose content streams have been redacted
// to the region being shown, so text outside a crop is removed from the file
// rather than merely hidden.
package geometry

import (
	"fmt"
	"math"
)

// Rect is an axis-aligned rectangle in PDF user space (y grows upwards)
type Rect struct {
	LLX, LLY, URX, URY float64
}

// NewRect returns the normalized rectangle spanning the two corners
func NewRect(x0, y0, x1, y1 float64) Rect {
	return Rect{
		LLX: math.Min(x0, x1), LLY: math.Min(y0, y1),
		URX: math.Max(x0, x1), URY: math.Max(y0, y1),
	}
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Intersect returns the overlap of r and o; the result may be Empty
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		LLX: math.Max(r.LLX, o.LLX), LLY: math.Max(r.LLY, o.LLY),
		URX: math.Min(r.URX, o.URX), URY: math.Min(r.URY, o.URY),
	}
}

// Overlaps reports whether r and o share any area
func (r Rect) Overlaps(o Rect) bool {
	return !r.Intersect(o).Empty()
}

// Contains reports whether o lies inside r, allowing tol points of slack
func (r Rect) Contains(o Rect, tol float64) bool {
	return o.LLX >= r.LLX-tol && o.LLY >= r.LLY-tol && o.URX <= r.URX+tol && o.URY <= r.URY+tol
}

// Union returns the smallest rectangle covering r and o
func (r Rect) Union(o Rect) Rect {
	return Rect{
		LLX: math.Min(r.LLX, o.LLX), LLY: math.Min(r.LLY, o.LLY),
		URX: math.Max(r.URX, o.URX), URY: math.Max(r.URY, o.URY),
	}
}

// Translate moves r by (dx, dy)
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{LLX: r.LLX + dx, LLY: r.LLY + dy, URX: r.URX + dx, URY: r.URY + dy}
}

func (r Rect) String() string {
	return fmt.Sprintf("[%.2f %.2f %.2f %.2f]", r.LLX, r.LLY, r.URX, r.URY)
}

// Matrix is a PDF transformation matrix [a b c d e f]
type Matrix [6]float64

// Identity is the identity transformation
var Identity = Matrix{1, 0, 0, 1, 0, 0}

// Translation returns a matrix moving points by (tx, ty)
func Translation(tx, ty float64) Matrix {
	return Matrix{1, 0, 0, 1, tx, ty}
}

// Multiply returns m × n: applying the result equals applying m then n.
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// Apply transforms the point (x, y)
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// ApplyRect returns the bounding box of r after transformation
func (m Matrix) ApplyRect(r Rect) Rect {
	x0, y0 := m.Apply(r.LLX, r.LLY)
	x1, y1 := m.Apply(r.URX, r.LLY)
	x2, y2 := m.Apply(r.URX, r.URY)
	x3, y3 := m.Apply(r.LLX, r.URY)
	return Rect{
		LLX: math.Min(math.Min(x0, x1), math.Min(x2, x3)),
		LLY: math.Min(math.Min(y0, y1), math.Min(y2, y3)),
		URX: math.Max(math.Max(x0, x1), math.Max(x2, x3)),
		URY: math.Max(math.Max(y0, y1), math.Max(y2, y3)),
	}
}

// ClipConfig controls the column crop margins
type ClipConfig struct {
	// WOffset is trimmed from the outer left and right edges
	WOffset float64
	// HOffset is trimmed from the top and bottom edges
	HOffset float64
	// OffsetRatio sets how far each column reaches past the centre line: WOffset/OffsetRatio
	OffsetRatio float64
}

// DefaultClipConfig returns the standard margins for two-column papers
func DefaultClipConfig() ClipConfig {
	return ClipConfig{WOffset: 40, HOffset: 20, OffsetRatio: 5}
}

// Validate rejects negative margins and non-positive ratios
func (c ClipConfig) Validate() error {
	if c.WOffset < 0 || c.HOffset < 0 || c.OffsetRatio <= 0 || math.IsNaN(c.WOffset+c.HOffset+c.OffsetRatio) {
		return fmt.Errorf("invalid clip config w_offset=%v h_offset=%v ratio=%v", c.WOffset, c.HOffset, c.OffsetRatio)
	}
	return nil
}

// Clips returns the left and right column regions of a page box. Both are
// clamped to the box and overlap by 2*WOffset/OffsetRatio around the centre.
func (c ClipConfig) Clips(box Rect) (left, right Rect) {
	w, h := box.Width(), box.Height()
	overlap := c.WOffset / c.OffsetRatio
	left = Rect{LLX: c.WOffset, LLY: c.HOffset, URX: w/2 + overlap, URY: h - c.HOffset}
	right = Rect{LLX: w/2 - overlap, LLY: c.HOffset, URX: w - c.WOffset, URY: h - c.HOffset}
	left = left.Translate(box.LLX, box.LLY).Intersect(box)
	right = right.Translate(box.LLX, box.LLY).Intersect(box)
	return left, right
}

// Halves splits a page box down the middle
func Halves(box Rect) (left, right Rect) {
	mid := box.LLX + box.Width()/2
	return Rect{LLX: box.LLX, LLY: box.LLY, URX: mid, URY: box.URY},
		Rect{LLX: mid, LLY: box.LLY, URX: box.URX, URY: box.URY}
}

// FitMatrix maps src into dst, scaled uniformly to fit and centered
func FitMatrix(src, dst Rect) Matrix {
	s := math.Min(dst.Width()/src.Width(), dst.Height()/src.Height())
	tx := dst.LLX + (dst.Width()-s*src.Width())/2 - s*src.LLX
	ty := dst.LLY + (dst.Height()-s*src.Height())/2 - s*src.LLY
	return Matrix{s, 0, 0, s, tx, ty}
}

// Mode selects a crop layout
type Mode string

const (
	// ModeMonoCut splits every page into its left and right column
	ModeMonoCut Mode = "mono-cut"
	// ModeOriginCut is ModeMonoCut applied to an untranslated document
	ModeOriginCut Mode = "origin-cut"
	// ModeDualCut interleaves columns of (translated, original) page pairs
	ModeDualCut Mode = "dual-cut"
	// ModeCropCompare puts matching columns of a page pair side by side
	ModeCropCompare Mode = "crop-compare"
)

// Size is a page size in points
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Report summarizes a finished transform
type Report struct {
	InputPages  int      `json:"inputPages"`
	OutputPages int      `json:"outputPages"`
	Warnings    []string `json:"warnings,omitempty"`
	// Removed counts content operations deleted by redaction
	Removed int `json:"removed"`
}

func (r *Report) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
