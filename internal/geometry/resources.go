package geometry

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// maxCIDRange bounds a single "first last width" run in a W array
const maxCIDRange = 1 << 16

// pageResources resolves fonts and XObjects of one page resource dictionary
type pageResources struct {
	ctx   *model.Context
	dict  types.Dict
	fonts map[string]*fontMetrics
	boxes map[string]xobjectBox
}

type xobjectBox struct {
	box Rect
	ok  bool
}

func newPageResources(ctx *model.Context, dict types.Dict) *pageResources {
	return &pageResources{
		ctx:   ctx,
		dict:  dict,
		fonts: make(map[string]*fontMetrics),
		boxes: make(map[string]xobjectBox),
	}
}

func (p *pageResources) font(name string) *fontMetrics {
	if f, seen := p.fonts[name]; seen {
		return f
	}
	f := p.loadFont(name)
	p.fonts[name] = f
	return f
}

func (p *pageResources) xobject(name string) (Rect, bool) {
	if b, seen := p.boxes[name]; seen {
		return b.box, b.ok
	}
	box, ok := p.loadXObject(name)
	p.boxes[name] = xobjectBox{box: box, ok: ok}
	return box, ok
}

func (p *pageResources) subDict(key string) types.Dict {
	if p.dict == nil {
		return nil
	}
	o, found := p.dict.Find(key)
	if !found {
		return nil
	}
	d, err := p.ctx.DereferenceDict(o)
	if err != nil {
		return nil
	}
	return d
}

func (p *pageResources) loadFont(name string) *fontMetrics {
	fonts := p.subDict("Font")
	if fonts == nil {
		return nil
	}
	o, found := fonts.Find(name)
	if !found {
		return nil
	}
	fd, err := p.ctx.DereferenceDict(o)
	if err != nil || fd == nil {
		return nil
	}

	m := &fontMetrics{scale: 1, missingWidth: defaultGlyphWidth}
	switch nameOf(p.ctx, fd["Subtype"]) {
	case "Type0":
		m.twoByte = true
		m.missingWidth = 1000
		m.cidWidths = make(map[int]float64)
		desc, err := p.ctx.DereferenceArray(fd["DescendantFonts"])
		if err != nil || len(desc) == 0 {
			return m
		}
		cid, err := p.ctx.DereferenceDict(desc[0])
		if err != nil || cid == nil {
			return m
		}
		if dw, ok := numberOf(p.ctx, cid["DW"]); ok {
			m.missingWidth = dw
		}
		p.cidWidths(cid["W"], m.cidWidths)
		return m
	case "Type3":
		if fm, err := p.ctx.DereferenceArray(fd["FontMatrix"]); err == nil && len(fm) == 6 {
			if a, ok := numberOf(p.ctx, fm[0]); ok && a != 0 {
				m.scale = a * 1000
			}
		}
	}

	if fc, ok := numberOf(p.ctx, fd["FirstChar"]); ok {
		m.firstChar = int(fc)
	}
	widths, err := p.ctx.DereferenceArray(fd["Widths"])
	if err != nil || len(widths) == 0 {
		return m
	}
	m.widths = make([]float64, len(widths))
	for i, w := range widths {
		m.widths[i], _ = numberOf(p.ctx, w)
	}
	m.missingWidth = 0
	if desc, err := p.ctx.DereferenceDict(fd["FontDescriptor"]); err == nil && desc != nil {
		if mw, ok := numberOf(p.ctx, desc["MissingWidth"]); ok {
			m.missingWidth = mw
		}
	}
	return m
}

// cidWidths decodes a CIDFont W array: "c [w1 w2 ...]" and "cfirst clast w" runs
func (p *pageResources) cidWidths(o types.Object, into map[int]float64) {
	arr, err := p.ctx.DereferenceArray(o)
	if err != nil {
		return
	}
	for i := 0; i+1 < len(arr); {
		first, ok := numberOf(p.ctx, arr[i])
		if !ok {
			return
		}
		next, err := p.ctx.Dereference(arr[i+1])
		if err != nil {
			return
		}
		if ws, isArray := next.(types.Array); isArray {
			for j, w := range ws {
				if v, ok := numberOf(p.ctx, w); ok {
					into[int(first)+j] = v
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(arr) {
			return
		}
		last, _ := numberOf(p.ctx, next)
		w, _ := numberOf(p.ctx, arr[i+2])
		for c := int(first); c <= int(last) && c-int(first) < maxCIDRange; c++ {
			into[c] = w
		}
		i += 3
	}
}

func (p *pageResources) loadXObject(name string) (Rect, bool) {
	xobjs := p.subDict("XObject")
	if xobjs == nil {
		return Rect{}, false
	}
	o, found := xobjs.Find(name)
	if !found {
		return Rect{}, false
	}
	obj, err := p.ctx.Dereference(o)
	if err != nil {
		return Rect{}, false
	}
	sd, ok := obj.(types.StreamDict)
	if !ok {
		return Rect{}, false
	}
	switch nameOf(p.ctx, sd.Dict["Subtype"]) {
	case "Image":
		return Rect{LLX: 0, LLY: 0, URX: 1, URY: 1}, true
	case "Form":
		bbox, ok := rectOf(p.ctx, sd.Dict["BBox"])
		if !ok {
			return Rect{}, false
		}
		m, ok := matrixOf(p.ctx, sd.Dict["Matrix"])
		if !ok {
			m = Identity
		}
		return m.ApplyRect(bbox), true
	}
	return Rect{}, false
}

func numberOf(ctx *model.Context, o types.Object) (float64, bool) {
	if o == nil {
		return 0, false
	}
	obj, err := ctx.Dereference(o)
	if err != nil {
		return 0, false
	}
	switch v := obj.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

func nameOf(ctx *model.Context, o types.Object) string {
	if o == nil {
		return ""
	}
	obj, err := ctx.Dereference(o)
	if err != nil {
		return ""
	}
	if n, ok := obj.(types.Name); ok {
		return string(n)
	}
	return ""
}

func rectOf(ctx *model.Context, o types.Object) (Rect, bool) {
	arr, err := ctx.DereferenceArray(o)
	if err != nil || len(arr) != 4 {
		return Rect{}, false
	}
	var v [4]float64
	for i := range v {
		n, ok := numberOf(ctx, arr[i])
		if !ok {
			return Rect{}, false
		}
		v[i] = n
	}
	return NewRect(v[0], v[1], v[2], v[3]), true
}

func matrixOf(ctx *model.Context, o types.Object) (Matrix, bool) {
	arr, err := ctx.DereferenceArray(o)
	if err != nil || len(arr) != 6 {
		return Matrix{}, false
	}
	var m Matrix
	for i := range m {
		n, ok := numberOf(ctx, arr[i])
		if !ok {
			return Matrix{}, false
		}
		m[i] = n
	}
	return m, true
}

func rectArray(r Rect) types.Array {
	return types.Array{types.Float(r.LLX), types.Float(r.LLY), types.Float(r.URX), types.Float(r.URY)}
}

func matrixArray(m Matrix) types.Array {
	arr := make(types.Array, len(m))
	for i, v := range m {
		arr[i] = types.Float(v)
	}
	return arr
}
