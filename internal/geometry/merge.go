package geometry

import (
	"math"
	"time"

	"pdf2zh-server/internal/logger"
)

// MergeSideBySide joins consecutive page pairs of src onto single wide pages.
// Each output page is as wide as both inputs together and as tall as the
// taller one, with both pages aligned to the top edge. A trailing unpaired
// page is placed on the left of a page twice its width.
func MergeSideBySide(src, dst string) (*Report, error) {
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

	n := doc.pageCount()
	for nr := 1; nr <= n; nr += 2 {
		first, err := doc.page(nr)
		if err != nil {
			return nil, err
		}
		a, err := b.form(first, first.box, false)
		if err != nil {
			return nil, err
		}
		wa, ha := first.box.Width(), first.box.Height()

		if nr+1 > n {
			report.warn("odd page count %d; page %d placed alone", n, nr)
			err = b.addPage(Size{Width: 2 * wa, Height: ha},
				placement{form: a, m: Translation(-first.box.LLX, -first.box.LLY)})
			if err != nil {
				return nil, err
			}
			continue
		}

		second, err := doc.page(nr + 1)
		if err != nil {
			return nil, err
		}
		c, err := b.form(second, second.box, false)
		if err != nil {
			return nil, err
		}
		wb, hb := second.box.Width(), second.box.Height()
		h := math.Max(ha, hb)
		err = b.addPage(Size{Width: wa + wb, Height: h},
			placement{form: a, m: Translation(-first.box.LLX, h-ha-first.box.LLY)},
			placement{form: c, m: Translation(wa-second.box.LLX, h-hb-second.box.LLY)})
		if err != nil {
			return nil, err
		}
	}

	if err := b.finish(dst); err != nil {
		return nil, err
	}
	report.OutputPages = len(b.pages)
	logger.Info("merge finished",
		logger.String("src", src),
		logger.String("dst", dst),
		logger.Int("pages_in", report.InputPages),
		logger.Int("pages_out", report.OutputPages),
		logger.Duration("elapsed", time.Since(start)))
	return report, nil
}

// ConvertLRtoTB splits every page of a side-by-side document down the middle,
// emitting the left half and then the right half as separate pages.
func ConvertLRtoTB(src, dst string) (*Report, error) {
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

	for nr := 1; nr <= doc.pageCount(); nr++ {
		p, err := doc.page(nr)
		if err != nil {
			return nil, err
		}
		if p.rotate%360 != 0 {
			report.warn("page %d is rotated %d degrees; halves are taken from the unrotated page", nr, p.rotate)
		}
		left, right := Halves(p.box)
		if err := b.addRegion(p, left); err != nil {
			return nil, err
		}
		if err := b.addRegion(p, right); err != nil {
			return nil, err
		}
	}

	if err := b.finish(dst); err != nil {
		return nil, err
	}
	report.OutputPages = len(b.pages)
	report.Removed = b.removed
	logger.Info("split finished",
		logger.String("src", src),
		logger.String("dst", dst),
		logger.Int("pages_in", report.InputPages),
		logger.Int("pages_out", report.OutputPages),
		logger.Duration("elapsed", time.Since(start)))
	return report, nil
}
