package geometry

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/require"
)

type fixturePage struct {
	width, height float64
	content       string
}

func page(w, h float64, content string) fixturePage {
	return fixturePage{width: w, height: h, content: content}
}

func textAt(x, y float64, s string) string {
	return fmt.Sprintf("BT /F1 12 Tf %s %s Td (%s) Tj ET\n", formatNumber(x), formatNumber(y), s)
}

// writeFixture writes a small uncompressed PDF with one Helvetica font
func writeFixture(t *testing.T, dir, name string, pages ...fixturePage) string {
	t.Helper()
	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, p := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s %s] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			formatNumber(p.width), formatNumber(p.height), 5+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(p.content), p.content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

// formContents returns the decoded content of every form drawn on page nr
func formContents(t *testing.T, path string, nr int) []string {
	t.Helper()
	doc, err := openSource(path)
	require.NoError(t, err)
	p, err := doc.page(nr)
	require.NoError(t, err)

	xobjs := newPageResources(doc.ctx, p.resources).subDict("XObject")
	require.NotNil(t, xobjs, "page %d has no XObjects", nr)
	names := make([]string, 0, len(xobjs))
	for name := range xobjs {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []string
	for _, name := range names {
		obj, err := doc.ctx.Dereference(xobjs[name])
		require.NoError(t, err)
		sd, ok := obj.(types.StreamDict)
		require.True(t, ok, "%s is not a stream", name)
		require.NoError(t, sd.Decode())
		out = append(out, string(sd.Content))
	}
	return out
}

func sizes(t *testing.T, path string) []Size {
	t.Helper()
	pages, err := Pages(path)
	require.NoError(t, err)
	out := make([]Size, len(pages))
	for i, p := range pages {
		out[i] = Size{Width: p.Box.Width(), Height: p.Box.Height()}
	}
	return out
}
