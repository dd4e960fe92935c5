package geometry

import (
	"bytes"
	"encoding/hex"
)

const (
	// defaultGlyphWidth is used when a font carries no width information
	defaultGlyphWidth = 500.0
	glyphAscent       = 0.85
	glyphDescent      = -0.25
	// containTolerance is the slack in points when testing containment
	containTolerance = 0.5
)

// fontMetrics holds the advance widths of one font resource in 1/1000 text space units
type fontMetrics struct {
	twoByte      bool
	firstChar    int
	widths       []float64
	cidWidths    map[int]float64
	missingWidth float64
	// scale converts glyph space widths to 1/1000 text space (Type3 fonts)
	scale float64
}

func (f *fontMetrics) width(code int) float64 {
	if f == nil {
		return defaultGlyphWidth
	}
	w := f.missingWidth
	if f.twoByte {
		if cw, ok := f.cidWidths[code]; ok {
			w = cw
		}
	} else if i := code - f.firstChar; i >= 0 && i < len(f.widths) {
		w = f.widths[i]
	}
	return w * f.scale
}

func (f *fontMetrics) codeLength() int {
	if f != nil && f.twoByte {
		return 2
	}
	return 1
}

// resourceLookup resolves the named resources a content stream refers to
type resourceLookup interface {
	// font returns the metrics of a font resource, nil when unknown
	font(name string) *fontMetrics
	// xobject returns the bounds of an XObject in the space it is drawn in
	xobject(name string) (Rect, bool)
}

type textState struct {
	charSpace float64
	wordSpace float64
	scale     float64
	leading   float64
	rise      float64
	size      float64
	font      *fontMetrics
}

type graphicsState struct {
	ctm  Matrix
	text textState
}

// redactor rewrites a content stream so that nothing is drawn outside clip.
// Text is removed glyph by glyph, path painting and images are dropped when
// they leave the clip, and every other operator passes through unchanged.
type redactor struct {
	clip    Rect
	res     resourceLookup
	gs      graphicsState
	saved   []graphicsState
	tm, tlm Matrix

	path    Rect
	hasPath bool

	out     bytes.Buffer
	removed int
}

// redactContent returns the rewritten content and the number of removed operations
func redactContent(content []byte, clip Rect, res resourceLookup) ([]byte, int, error) {
	ops, err := parseContent(content)
	if err != nil {
		return nil, 0, err
	}
	r := &redactor{
		clip: clip,
		res:  res,
		gs:   graphicsState{ctm: Identity, text: textState{scale: 1}},
		tm:   Identity,
		tlm:  Identity,
	}
	for _, op := range ops {
		r.apply(op)
	}
	return r.out.Bytes(), r.removed, nil
}

func (r *redactor) emit(op operation) {
	r.out.Write(op.raw)
	r.out.WriteByte('\n')
}

func (r *redactor) apply(op operation) {
	ts := &r.gs.text
	switch op.op {
	case "q":
		r.saved = append(r.saved, r.gs)
	case "Q":
		if n := len(r.saved); n > 0 {
			r.gs = r.saved[n-1]
			r.saved = r.saved[:n-1]
		}
	case "cm":
		if m, ok := matrixOperands(op.operands); ok {
			r.gs.ctm = m.Multiply(r.gs.ctm)
		}
	case "BT":
		r.tm, r.tlm = Identity, Identity
	case "Tc":
		ts.charSpace = numberAt(op, 0)
	case "Tw":
		ts.wordSpace = numberAt(op, 0)
	case "Tz":
		ts.scale = numberAt(op, 0) / 100
	case "TL":
		ts.leading = numberAt(op, 0)
	case "Ts":
		ts.rise = numberAt(op, 0)
	case "Tf":
		if len(op.operands) >= 2 && op.operands[0].kind == kindName {
			ts.font = r.res.font(op.operands[0].name)
			ts.size = op.operands[1].num
		}
	case "Td":
		r.moveText(numberAt(op, 0), numberAt(op, 1))
	case "TD":
		ts.leading = -numberAt(op, 1)
		r.moveText(numberAt(op, 0), numberAt(op, 1))
	case "Tm":
		if m, ok := matrixOperands(op.operands); ok {
			r.tm, r.tlm = m, m
		}
	case "T*":
		r.moveText(0, -ts.leading)
	case "Tj":
		r.showText(op, lastOperand(op), "")
		return
	case "'":
		r.moveText(0, -ts.leading)
		r.showText(op, lastOperand(op), "T*")
		return
	case "\"":
		if len(op.operands) >= 3 {
			ts.wordSpace = op.operands[0].num
			ts.charSpace = op.operands[1].num
		}
		r.moveText(0, -ts.leading)
		prefix := formatNumber(ts.wordSpace) + " Tw " + formatNumber(ts.charSpace) + " Tc T*"
		r.showText(op, lastOperand(op), prefix)
		return
	case "TJ":
		var elems []operand
		if n := len(op.operands); n > 0 && op.operands[n-1].kind == kindArray {
			elems = op.operands[n-1].items
		}
		r.showText(op, elems, "")
		return
	case "m", "l":
		r.addPoints(op.operands, 2)
	case "c":
		r.addPoints(op.operands, 6)
	case "v", "y":
		r.addPoints(op.operands, 4)
	case "re":
		if len(op.operands) >= 4 {
			x, y, w, h := op.operands[0].num, op.operands[1].num, op.operands[2].num, op.operands[3].num
			r.addPoint(x, y)
			r.addPoint(x+w, y+h)
			r.addPoint(x+w, y)
			r.addPoint(x, y+h)
		}
	case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*":
		r.paint(op)
		return
	case "n":
		r.hasPath = false
	case "Do":
		if len(op.operands) > 0 && op.operands[0].kind == kindName {
			if box, ok := r.res.xobject(op.operands[0].name); ok && !r.visible(box) {
				r.removed++
				return
			}
		}
	case "BI":
		if !r.visible(Rect{LLX: 0, LLY: 0, URX: 1, URY: 1}) {
			r.removed++
			return
		}
	}
	r.emit(op)
}

// visible reports whether a box in current object space overlaps the clip
func (r *redactor) visible(box Rect) bool {
	return r.gs.ctm.ApplyRect(box).Overlaps(r.clip)
}

func (r *redactor) moveText(tx, ty float64) {
	r.tlm = Translation(tx, ty).Multiply(r.tlm)
	r.tm = r.tlm
}

func (r *redactor) addPoints(ops []operand, n int) {
	if len(ops) < n {
		return
	}
	for i := 0; i+1 < n; i += 2 {
		r.addPoint(ops[i].num, ops[i+1].num)
	}
}

func (r *redactor) addPoint(x, y float64) {
	ux, uy := r.gs.ctm.Apply(x, y)
	pt := Rect{LLX: ux, LLY: uy, URX: ux, URY: uy}
	if !r.hasPath {
		r.path, r.hasPath = pt, true
		return
	}
	r.path = r.path.Union(pt)
}

// paint keeps a painted path only when it lies inside the clip. A dropped
// path is still ended with "n" so a pending W clip keeps its effect.
func (r *redactor) paint(op operation) {
	inside := !r.hasPath || r.clip.Contains(r.path, containTolerance)
	r.hasPath = false
	if inside {
		r.emit(op)
		return
	}
	r.removed++
	r.out.WriteString("n\n")
}

type tjPart struct {
	code    []byte
	adjust  float64 // TJ number, in thousandths of text space
	advance float64 // text space advance of a removed glyph
	skipped bool
}

// showText draws elems glyph by glyph, keeping those inside the clip. When
// anything is removed the operator is rewritten as a TJ whose numeric
// adjustments stand in for the removed glyphs, so kept glyphs stay in place.
func (r *redactor) showText(op operation, elems []operand, prefix string) {
	ts := r.gs.text
	trm := r.tm.Multiply(r.gs.ctm)
	step := ts.font.codeLength()

	var (
		parts   []tjPart
		x       float64
		dropped int
	)
	for _, el := range elems {
		switch el.kind {
		case kindNumber:
			x -= el.num / 1000 * ts.size * ts.scale
			parts = append(parts, tjPart{adjust: el.num})
		case kindString:
			for i := 0; i+step <= len(el.str); i += step {
				code := int(el.str[i])
				if step == 2 {
					code = code<<8 | int(el.str[i+1])
				}
				w := ts.font.width(code) / 1000
				adv := w*ts.size + ts.charSpace
				if step == 1 && code == ' ' {
					adv += ts.wordSpace
				}
				adv *= ts.scale

				glyph := NewRect(x, ts.rise+glyphDescent*ts.size, x+w*ts.size*ts.scale, ts.rise+glyphAscent*ts.size)
				if r.clip.Contains(trm.ApplyRect(glyph), containTolerance) {
					parts = append(parts, tjPart{code: el.str[i : i+step]})
				} else {
					dropped++
					parts = append(parts, tjPart{advance: adv, skipped: true})
				}
				x += adv
			}
		}
	}
	r.tm = Translation(x, 0).Multiply(r.tm)

	if dropped == 0 {
		r.emit(op)
		return
	}
	r.removed += dropped
	if prefix != "" {
		r.out.WriteString(prefix)
		r.out.WriteByte('\n')
	}
	r.out.Write(buildTJ(parts, ts.size*ts.scale))
	r.out.WriteByte('\n')
}

func buildTJ(parts []tjPart, unit float64) []byte {
	var (
		b       bytes.Buffer
		run     []byte
		pending float64
	)
	sep := func() {
		if b.Len() > 1 {
			b.WriteByte(' ')
		}
	}
	flushRun := func() {
		if len(run) > 0 {
			sep()
			b.WriteByte('<')
			b.WriteString(hex.EncodeToString(run))
			b.WriteByte('>')
			run = nil
		}
	}
	flushAdjust := func() {
		if pending != 0 {
			sep()
			b.WriteString(formatNumber(pending))
			pending = 0
		}
	}

	b.WriteByte('[')
	for _, p := range parts {
		switch {
		case p.code != nil:
			flushAdjust()
			run = append(run, p.code...)
		case p.skipped:
			flushRun()
			if unit != 0 {
				pending -= p.advance * 1000 / unit
			}
		default:
			flushRun()
			pending += p.adjust
		}
	}
	flushRun()
	flushAdjust()
	b.WriteString("] TJ")
	return b.Bytes()
}

func numberAt(op operation, i int) float64 {
	if i < len(op.operands) && op.operands[i].kind == kindNumber {
		return op.operands[i].num
	}
	return 0
}

func lastOperand(op operation) []operand {
	if n := len(op.operands); n > 0 {
		return op.operands[n-1:]
	}
	return nil
}

func matrixOperands(ops []operand) (Matrix, bool) {
	if len(ops) < 6 {
		return Matrix{}, false
	}
	var m Matrix
	for i := range m {
		if ops[i].kind != kindNumber {
			return Matrix{}, false
		}
		m[i] = ops[i].num
	}
	return m, true
}
