package geometry

import (
	"fmt"
	"time"

	"pdf2zh-server/internal/logger"
	"pdf2zh-server/internal/types"
)

// Crop reads src, lays its pages out according to mode and writes dst.
//
//   - mono-cut and origin-cut emit each page's left then right column.
//   - dual-cut walks page pairs and emits first-left, second-left,
//     first-right, second-right.
//   - crop-compare walks page pairs and emits two pages: both left columns
//     side by side, then both right columns.
//
// Pair modes drop a trailing unpaired page with a warning in the report.
func Crop(src, dst string, mode Mode, clip ClipConfig) (*Report, error) {
	if err := clip.Validate(); err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "invalid crop margins", err)
	}
	start := time.Now()

	doc, err := openSource(src)
	if err != nil {
		return nil, err
	}
	b, err := doc.newBuilder()
	if err != nil {
		return nil, err
	}
	report := &Report{InputPages: doc.pageCount()}

	switch mode {
	case ModeMonoCut, ModeOriginCut:
		err = cropColumns(doc, b, clip, report)
	case ModeDualCut:
		err = cropPairs(doc, b, report, func(first, second *sourcePage) error {
			return interleaveColumns(b, clip, report, first, second)
		})
	case ModeCropCompare:
		err = cropPairs(doc, b, report, func(first, second *sourcePage) error {
			return compareColumns(b, clip, report, first, second)
		})
	default:
		return nil, types.NewAppError(types.ErrInvalidInput, fmt.Sprintf("unknown crop mode %q", mode), nil)
	}
	if err != nil {
		return nil, err
	}

	if err := b.finish(dst); err != nil {
		return nil, err
	}
	report.OutputPages = len(b.pages)
	report.Removed = b.removed

	logger.Info("crop finished",
		logger.String("mode", string(mode)),
		logger.String("src", src),
		logger.String("dst", dst),
		logger.Int("pages_in", report.InputPages),
		logger.Int("pages_out", report.OutputPages),
		logger.Int("removed_ops", report.Removed),
		logger.Duration("elapsed", time.Since(start)))
	for _, w := range report.Warnings {
		logger.Warn(w, logger.String("src", src))
	}
	return report, nil
}

func columnsOf(p *sourcePage, clip ClipConfig, report *Report) (Rect, Rect, error) {
	if p.rotate%360 != 0 {
		report.warn("page %d is rotated %d degrees; columns are taken from the unrotated page", p.number, p.rotate)
	}
	left, right := clip.Clips(p.box)
	if left.Empty() || right.Empty() {
		return Rect{}, Rect{}, types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"crop margins leave no visible area", fmt.Sprintf("page %d box %s", p.number, p.box), nil)
	}
	return left, right, nil
}

func cropColumns(doc *sourceDoc, b *builder, clip ClipConfig, report *Report) error {
	for nr := 1; nr <= doc.pageCount(); nr++ {
		p, err := doc.page(nr)
		if err != nil {
			return err
		}
		left, right, err := columnsOf(p, clip, report)
		if err != nil {
			return err
		}
		if err := b.addRegion(p, left); err != nil {
			return err
		}
		if err := b.addRegion(p, right); err != nil {
			return err
		}
	}
	return nil
}

func cropPairs(doc *sourceDoc, b *builder, report *Report, emit func(first, second *sourcePage) error) error {
	n := doc.pageCount()
	if n < 2 {
		return types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"document needs at least two pages to pair", doc.path, nil)
	}
	if n%2 == 1 {
		report.warn("odd page count %d; trailing page %d ignored", n, n)
	}
	for nr := 1; nr+1 <= n; nr += 2 {
		first, err := doc.page(nr)
		if err != nil {
			return err
		}
		second, err := doc.page(nr + 1)
		if err != nil {
			return err
		}
		if err := emit(first, second); err != nil {
			return err
		}
	}
	return nil
}

func interleaveColumns(b *builder, clip ClipConfig, report *Report, first, second *sourcePage) error {
	fl, fr, err := columnsOf(first, clip, report)
	if err != nil {
		return err
	}
	sl, sr, err := columnsOf(second, clip, report)
	if err != nil {
		return err
	}
	for _, step := range []struct {
		page   *sourcePage
		region Rect
	}{{first, fl}, {second, sl}, {first, fr}, {second, sr}} {
		if err := b.addRegion(step.page, step.region); err != nil {
			return err
		}
	}
	return nil
}

// compareColumns emits two pages as wide as the first page and as tall as
// its column clip, each holding one column of both pages fitted into halves.
func compareColumns(b *builder, clip ClipConfig, report *Report, first, second *sourcePage) error {
	fl, fr, err := columnsOf(first, clip, report)
	if err != nil {
		return err
	}
	sl, sr, err := columnsOf(second, clip, report)
	if err != nil {
		return err
	}
	size := Size{Width: first.box.Width(), Height: fl.Height()}
	leftHalf := Rect{URX: size.Width / 2, URY: size.Height}
	rightHalf := Rect{LLX: size.Width / 2, URX: size.Width, URY: size.Height}

	for _, pair := range [][2]Rect{{fl, sl}, {fr, sr}} {
		a, err := b.form(first, pair[0], true)
		if err != nil {
			return err
		}
		c, err := b.form(second, pair[1], true)
		if err != nil {
			return err
		}
		err = b.addPage(size,
			placement{form: a, m: FitMatrix(pair[0], leftHalf)},
			placement{form: c, m: FitMatrix(pair[1], rightHalf)})
		if err != nil {
			return err
		}
	}
	return nil
}
