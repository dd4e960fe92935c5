// Package document models what a PDF on disk is in the translation pipeline:
// an original, an engine output, or a derived bilingual layout. The type is
// carried explicitly; file names are only consulted at the filesystem boundary.
package document

import (
	"fmt"
	"path/filepath"
	"strings"

	"pdf2zh-server/internal/types"
)

// Type is the layout type of a document
type Type string

const (
	Origin      Type = "origin"
	Mono        Type = "mono"
	Dual        Type = "dual"
	MonoCut     Type = "mono-cut"
	DualCut     Type = "dual-cut"
	CropCompare Type = "crop-compare"
	Compare     Type = "compare"
	OriginCut   Type = "origin-cut"
)

// Types lists every document type
var Types = []Type{Origin, Mono, Dual, MonoCut, DualCut, CropCompare, Compare, OriginCut}

// Valid reports whether t is a known type
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// DualLayout says how a dual document pairs original and translated pages
type DualLayout string

const (
	// LayoutUnknown is used for non-dual documents
	LayoutUnknown DualLayout = ""
	// LayoutLR places both pages side by side on one page
	LayoutLR DualLayout = "LR"
	// LayoutTB puts them on consecutive pages
	LayoutTB DualLayout = "TB"
)

// Document is a PDF file together with its layout type
type Document struct {
	Path   string
	Type   Type
	Layout DualLayout
}

func (d Document) String() string {
	if d.Layout != LayoutUnknown {
		return fmt.Sprintf("%s(%s,%s)", filepath.Base(d.Path), d.Type, d.Layout)
	}
	return fmt.Sprintf("%s(%s)", filepath.Base(d.Path), d.Type)
}

// New tags path with its detected type. Use it only for files that arrive
// from outside the pipeline (uploads, engine outputs).
func New(path string) Document {
	return Document{Path: path, Type: DetectType(path), Layout: DetectLayout(path)}
}

// suffix rules in match order; "cut.pdf" must come after the longer cut suffixes
var typeSuffixes = []struct {
	marker string
	typ    Type
}{
	{"mono.pdf", Mono},
	{"dual.pdf", Dual},
	{"dual-cut.pdf", DualCut},
	{"mono-cut.pdf", MonoCut},
	{"crop-compare.pdf", CropCompare},
	{"compare.pdf", Compare},
	{"cut.pdf", OriginCut},
}

// DetectType infers a document type from the file name.
func DetectType(path string) Type {
	name := filepath.Base(path)
	for _, rule := range typeSuffixes {
		if strings.Contains(name, rule.marker) {
			return rule.typ
		}
	}
	return Origin
}

// DetectLayout reports the dual layout encoded in a file name, if any.
func DetectLayout(path string) DualLayout {
	name := filepath.Base(path)
	switch {
	case strings.Contains(name, "LR_dual.pdf"):
		return LayoutLR
	case strings.Contains(name, "TB_dual.pdf"):
		return LayoutTB
	}
	return LayoutUnknown
}

// Naming selects the separator used when deriving output names. pdf2zh 1.x
// outputs look like "paper-mono.pdf", pdf2zh_next outputs like "paper.zh.mono.pdf".
type Naming int

const (
	NamingDash Naming = iota
	NamingDot
)

// DerivedPath returns the file path a transform from in to outType writes to.
// Origin inputs get a suffix ("-dual-cut.pdf" or ".dual-cut.pdf", with the
// short "cut" for origin-cut); other inputs swap their type marker.
func DerivedPath(in Document, outType Type, naming Naming) string {
	dir, name := filepath.Split(in.Path)
	if in.Type == Origin {
		sep := "-"
		if naming == NamingDot {
			sep = "."
		}
		marker := string(outType)
		if outType == OriginCut {
			marker = "cut"
		}
		base := strings.TrimSuffix(name, filepath.Ext(name))
		return filepath.Join(dir, base+sep+marker+".pdf")
	}
	from := string(in.Type) + ".pdf"
	if i := strings.LastIndex(name, from); i >= 0 {
		return filepath.Join(dir, name[:i]+string(outType)+".pdf"+name[i+len(from):])
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return filepath.Join(dir, base+"-"+string(outType)+".pdf")
}

// transitions lists the direct layout edges
var transitions = map[Type][]Type{
	Origin: {Mono, Dual, OriginCut},
	Dual:   {DualCut, CropCompare, Compare},
	Mono:   {MonoCut},
}

// CanTransition reports whether a direct edge from -> to exists
func CanTransition(from, to Type) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Path returns the chain of types from -> ... -> to through the transition
// table, or nil when to is unreachable.
func Path(from, to Type) []Type {
	if from == to {
		return []Type{from}
	}
	for _, next := range transitions[from] {
		if rest := Path(next, to); rest != nil {
			return append([]Type{from}, rest...)
		}
	}
	return nil
}

// InvalidLayoutTransitionError reports a request for an output type that
// cannot be produced from the input type.
type InvalidLayoutTransitionError struct {
	From Type
	To   Type
}

func (e *InvalidLayoutTransitionError) Error() string {
	return fmt.Sprintf("cannot produce %s from %s", e.To, e.From)
}

func (e *InvalidLayoutTransitionError) ErrorCode() types.ErrorCode {
	return types.ErrInvalidTransition
}

// ValidateTransition returns an InvalidLayoutTransitionError unless to is
// reachable from from.
func ValidateTransition(from, to Type) error {
	if !from.Valid() || !to.Valid() || Path(from, to) == nil || from == to {
		return &InvalidLayoutTransitionError{From: from, To: to}
	}
	return nil
}
