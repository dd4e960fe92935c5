package geometry

import (
	"errors"
	"fmt"

	lpdf "github.com/ledongthuc/pdf"

	"pdf2zh-server/internal/logger"
)

// PageInfo describes one page of a document
type PageInfo struct {
	Number int  `json:"number"`
	Box    Rect `json:"box"`
	Rotate int  `json:"rotate"`
}

// PageCount returns the number of pages in path. Files pdfcpu refuses to
// validate are retried with a lenient reader before giving up.
func PageCount(path string) (int, error) {
	doc, err := openSource(path)
	if err == nil {
		return doc.pageCount(), nil
	}
	var empty *EmptyDocumentError
	if errors.As(err, &empty) {
		return 0, err
	}

	n, ferr := lenientPageCount(path)
	if ferr != nil || n == 0 {
		return 0, err
	}
	logger.Warn("page count read with lenient parser", logger.String("path", path), logger.Err(err))
	return n, nil
}

func lenientPageCount(path string) (n int, err error) {
	// the lenient reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, &DocumentReadError{Path: path, Cause: fmt.Errorf("parser panic: %v", r)}
		}
	}()
	f, r, err := lpdf.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return r.NumPage(), nil
}

// Pages returns the visible box of every page in path
func Pages(path string) ([]PageInfo, error) {
	doc, err := openSource(path)
	if err != nil {
		return nil, err
	}
	pages := make([]PageInfo, 0, doc.pageCount())
	for nr := 1; nr <= doc.pageCount(); nr++ {
		d, _, inh, err := doc.ctx.PageDict(nr, false)
		if err != nil || d == nil {
			return nil, &DocumentReadError{Path: path, Page: nr, Cause: err}
		}
		info := PageInfo{Number: nr, Box: letter}
		if inh != nil {
			info.Rotate = inh.Rotate
			if inh.MediaBox != nil {
				info.Box = rectFromPDF(inh.MediaBox)
			}
			if inh.CropBox != nil {
				if cb := rectFromPDF(inh.CropBox).Intersect(info.Box); !cb.Empty() {
					info.Box = cb
				}
			}
		}
		pages = append(pages, info)
	}
	return pages, nil
}
