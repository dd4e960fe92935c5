package geometry

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/filter"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// letter is used for pages that carry no usable MediaBox
var letter = Rect{LLX: 0, LLY: 0, URX: 612, URY: 792}

// catalog entries that point into the replaced page tree
var staleCatalogKeys = []string{
	"Outlines", "Dests", "Names", "StructTreeRoot", "AcroForm",
	"PageLabels", "OpenAction", "Threads", "PageMode",
}

type sourceDoc struct {
	path string
	ctx  *model.Context
}

type sourcePage struct {
	number    int
	box       Rect
	rotate    int
	resources types.Dict
	content   []byte
}

func openSource(path string) (*sourceDoc, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, &DocumentReadError{Path: path, Cause: err}
	}
	if ctx.PageCount == 0 {
		return nil, &EmptyDocumentError{Path: path}
	}
	return &sourceDoc{path: path, ctx: ctx}, nil
}

func (s *sourceDoc) pageCount() int {
	return s.ctx.PageCount
}

// page loads page nr (1-based) with its visible box and decoded content
func (s *sourceDoc) page(nr int) (*sourcePage, error) {
	d, _, inh, err := s.ctx.PageDict(nr, true)
	if err != nil {
		return nil, &DocumentReadError{Path: s.path, Page: nr, Cause: err}
	}
	if d == nil {
		return nil, &DocumentReadError{Path: s.path, Page: nr, Cause: errors.New("missing page dictionary")}
	}

	p := &sourcePage{number: nr}
	if inh != nil {
		p.resources = inh.Resources
		p.rotate = inh.Rotate
		if inh.MediaBox != nil {
			p.box = rectFromPDF(inh.MediaBox)
		}
		if inh.CropBox != nil {
			if cb := rectFromPDF(inh.CropBox).Intersect(p.box); !cb.Empty() {
				p.box = cb
			}
		}
	}
	if p.box.Empty() {
		if r, ok := rectOf(s.ctx, d["MediaBox"]); ok && !r.Empty() {
			p.box = r
		} else {
			p.box = letter
		}
	}
	if p.resources == nil {
		p.resources, _ = s.ctx.DereferenceDict(d["Resources"])
	}

	content, err := s.content(d["Contents"])
	if err != nil {
		return nil, &DocumentReadError{Path: s.path, Page: nr, Cause: err}
	}
	p.content = content
	return p, nil
}

func (s *sourceDoc) content(o types.Object) ([]byte, error) {
	obj, err := s.ctx.Dereference(o)
	if err != nil {
		return nil, err
	}
	switch v := obj.(type) {
	case nil:
		return nil, nil
	case types.StreamDict:
		if err := v.Decode(); err != nil {
			return nil, fmt.Errorf("decode content stream: %w", err)
		}
		return v.Content, nil
	case types.Array:
		var buf bytes.Buffer
		for _, el := range v {
			b, err := s.content(el)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unexpected content object %T", obj)
}

func rectFromPDF(r *types.Rectangle) Rect {
	return NewRect(r.LL.X, r.LL.Y, r.UR.X, r.UR.Y)
}

// builder assembles a new page tree inside the source context. Source pages
// are referenced only through Form XObjects, so the old page objects become
// unreachable and are not written.
type builder struct {
	src      *sourceDoc
	pagesRef types.IndirectRef
	pages    []types.IndirectRef
	removed  int
}

func (s *sourceDoc) newBuilder() (*builder, error) {
	ref, err := s.ctx.Pages()
	if err != nil {
		return nil, &DocumentReadError{Path: s.path, Cause: err}
	}
	if ref == nil {
		return nil, &DocumentReadError{Path: s.path, Cause: errors.New("missing page tree")}
	}
	return &builder{src: s, pagesRef: *ref}, nil
}

// form wraps the region of page p in a Form XObject. With redact set the
// content is rewritten so nothing outside region survives in the file.
func (b *builder) form(p *sourcePage, region Rect, redact bool) (types.IndirectRef, error) {
	content := p.content
	if redact {
		out, removed, err := redactContent(p.content, region, newPageResources(b.src.ctx, p.resources))
		if err != nil {
			return types.IndirectRef{}, &DocumentReadError{Path: b.src.path, Page: p.number, Cause: err}
		}
		content = out
		b.removed += removed
	}

	d := types.Dict{
		"Type":     types.Name("XObject"),
		"Subtype":  types.Name("Form"),
		"FormType": types.Integer(1),
		"BBox":     rectArray(region),
		"Matrix":   matrixArray(Identity),
	}
	if p.resources != nil {
		d["Resources"] = p.resources
	}
	return b.stream(d, content)
}

// placement draws a form with a transformation on an output page
type placement struct {
	form types.IndirectRef
	m    Matrix
}

func (b *builder) addPage(size Size, placements ...placement) error {
	xobjs := types.Dict{}
	var content bytes.Buffer
	for i, pl := range placements {
		name := fmt.Sprintf("Fm%d", i)
		xobjs[name] = pl.form
		fmt.Fprintf(&content, "q %s %s %s %s %s %s cm /%s Do Q\n",
			formatNumber(pl.m[0]), formatNumber(pl.m[1]), formatNumber(pl.m[2]),
			formatNumber(pl.m[3]), formatNumber(pl.m[4]), formatNumber(pl.m[5]), name)
	}
	contentRef, err := b.stream(types.Dict{}, content.Bytes())
	if err != nil {
		return err
	}
	page := types.Dict{
		"Type":      types.Name("Page"),
		"Parent":    b.pagesRef,
		"MediaBox":  rectArray(Rect{URX: size.Width, URY: size.Height}),
		"Resources": types.Dict{"XObject": xobjs},
		"Contents":  contentRef,
	}
	ref, err := b.src.ctx.IndRefForNewObject(page)
	if err != nil {
		return err
	}
	b.pages = append(b.pages, *ref)
	return nil
}

// addRegion places region of p on its own page of exactly that size
func (b *builder) addRegion(p *sourcePage, region Rect) error {
	f, err := b.form(p, region, true)
	if err != nil {
		return err
	}
	return b.addPage(Size{Width: region.Width(), Height: region.Height()},
		placement{form: f, m: Translation(-region.LLX, -region.LLY)})
}

func (b *builder) stream(d types.Dict, content []byte) (types.IndirectRef, error) {
	sd := types.StreamDict{
		Dict:           d,
		Content:        content,
		FilterPipeline: []types.PDFFilter{{Name: filter.Flate, DecodeParms: nil}},
	}
	sd.InsertName("Filter", filter.Flate)
	if err := sd.Encode(); err != nil {
		return types.IndirectRef{}, err
	}
	ref, err := b.src.ctx.IndRefForNewObject(sd)
	if err != nil {
		return types.IndirectRef{}, err
	}
	return *ref, nil
}

// finish swaps in the new page list and writes the document to dst
func (b *builder) finish(dst string) error {
	ctx := b.src.ctx
	root, err := ctx.DereferenceDict(b.pagesRef)
	if err != nil || root == nil {
		return &WriteError{Path: dst, Cause: fmt.Errorf("page tree root: %v", err)}
	}
	kids := make(types.Array, len(b.pages))
	for i, ref := range b.pages {
		kids[i] = ref
	}
	root.Update("Kids", kids)
	root.Update("Count", types.Integer(len(b.pages)))
	for _, key := range []string{"MediaBox", "CropBox", "Resources", "Rotate"} {
		root.Delete(key)
	}
	ctx.PageCount = len(b.pages)

	if cat, err := ctx.Catalog(); err == nil {
		for _, key := range staleCatalogKeys {
			cat.Delete(key)
		}
	}
	return writeAtomic(ctx, dst)
}

// writeAtomic writes ctx next to dst and renames it into place
func writeAtomic(ctx *model.Context, dst string) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &WriteError{Path: dst, Cause: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return &WriteError{Path: dst, Cause: err}
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := api.WriteContextFile(ctx, tmpPath); err != nil {
		os.Remove(tmpPath)
		return &WriteError{Path: dst, Cause: err}
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return &WriteError{Path: dst, Cause: err}
	}
	return nil
}
