package geometry

import (
	"fmt"

	"pdf2zh-server/internal/types"
)

// DocumentReadError means a source PDF could not be opened or parsed
type DocumentReadError struct {
	Path  string
	Page  int // 0 when the failure is not page specific
	Cause error
}

func (e *DocumentReadError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("cannot read %s (page %d): %v", e.Path, e.Page, e.Cause)
	}
	return fmt.Sprintf("cannot read %s: %v", e.Path, e.Cause)
}

func (e *DocumentReadError) Unwrap() error { return e.Cause }

func (e *DocumentReadError) ErrorCode() types.ErrorCode { return types.ErrDocumentRead }

// EmptyDocumentError means a source PDF has no pages
type EmptyDocumentError struct {
	Path string
}

func (e *EmptyDocumentError) Error() string {
	return fmt.Sprintf("%s has no pages", e.Path)
}

func (e *EmptyDocumentError) ErrorCode() types.ErrorCode { return types.ErrEmptyDocument }

// WriteError means the output file could not be produced
type WriteError struct {
	Path  string
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cannot write %s: %v", e.Path, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

func (e *WriteError) ErrorCode() types.ErrorCode { return types.ErrInternal }
