// Command check_pages prints the page boxes of a PDF together with the type
// detected from its file name and the column regions a crop would keep.
//
// Usage:
//
//	go run ./cmd/check_pages [-w 40] [-h 20] [-r 5] <file.pdf>
package main

import (
	"flag"
	"fmt"
	"os"

	"pdf2zh-server/internal/document"
	"pdf2zh-server/internal/geometry"
)

func main() {
	def := geometry.DefaultClipConfig()
	w := flag.Float64("w", def.WOffset, "left/right margin trimmed from each page")
	h := flag.Float64("h", def.HOffset, "top/bottom margin trimmed from each page")
	r := flag.Float64("r", def.OffsetRatio, "column overlap ratio")
	flag.Usage = func() {
		fmt.Println("Usage: check_pages [-w 40] [-h 20] [-r 5] <file.pdf>")
		fmt.Println()
		fmt.Println("Prints per-page media boxes, the detected document type and the")
		fmt.Println("left/right clip regions used by mono-cut and dual-cut.")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	path := flag.Arg(0)
	clip := geometry.ClipConfig{WOffset: *w, HOffset: *h, OffsetRatio: *r}
	if err := clip.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	doc := document.New(path)
	pages, err := geometry.Pages(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("File:   %s\n", path)
	fmt.Printf("Type:   %s\n", doc.Type)
	if doc.Layout != document.LayoutUnknown {
		fmt.Printf("Layout: %s\n", doc.Layout)
	}
	fmt.Printf("Pages:  %d\n", len(pages))
	if len(pages)%2 == 1 && (doc.Type == document.Dual || doc.Type == document.DualCut) {
		fmt.Printf("Warning: odd page count; the last page has no partner\n")
	}
	fmt.Println()

	for _, p := range pages {
		left, right := clip.Clips(p.Box)
		fmt.Printf("page %3d  box %-32s", p.Number, p.Box)
		if p.Rotate != 0 {
			fmt.Printf(" rotate %d", p.Rotate)
		}
		fmt.Println()
		fmt.Printf("          left  %s\n", left)
		fmt.Printf("          right %s\n", right)
	}
}
