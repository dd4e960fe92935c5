// Package engine builds command lines for the external translation engines
// (pdf2zh 1.x and pdf2zh_next 2.x) and locates the files they produce.
package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"pdf2zh-server/internal/config"
	"pdf2zh-server/internal/document"
	"pdf2zh-server/internal/geometry"
	"pdf2zh-server/internal/types"
)

// Request is one engine invocation
type Request struct {
	// Input is the original PDF
	Input     string
	OutputDir string
	Options   *config.TranslateOptions
	// SkipSubsetFonts adds --skip-subset-fonts regardless of the options
	SkipSubsetFonts bool
	// ConfigFile is passed to the engine when non-empty
	ConfigFile string
}

// Outputs are the files an engine run is expected to produce. Empty paths
// were not requested.
type Outputs struct {
	Mono       string
	Dual       string
	DualLayout document.DualLayout
}

// Documents returns the outputs as typed documents
func (o Outputs) Documents() []document.Document {
	var docs []document.Document
	if o.Mono != "" {
		docs = append(docs, document.Document{Path: o.Mono, Type: document.Mono})
	}
	if o.Dual != "" {
		docs = append(docs, document.Document{Path: o.Dual, Type: document.Dual, Layout: o.DualLayout})
	}
	return docs
}

// Engine is one translation engine's command surface
type Engine interface {
	Name() string
	// Args returns the command line; element 0 is the default executable name
	Args(req Request) ([]string, error)
	// Expected returns the files a successful run leaves in req.OutputDir
	Expected(req Request) Outputs
	// ConfigFileName is the engine config file inside the config directory
	ConfigFileName() string
	// SyncConfig writes the request's service credentials into path
	SyncConfig(path string, opts *config.TranslateOptions) error
}

// ByName returns the engine for name
func ByName(name string) (Engine, error) {
	switch name {
	case config.EnginePdf2zh:
		return Pdf2zh{}, nil
	case config.EnginePdf2zhNext:
		return Pdf2zhNext{}, nil
	}
	return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "unsupported engine", name, nil)
}

// countPages is swapped in tests
var countPages = geometry.PageCount

// lastPage returns the last page to translate when skip trailing pages are
// dropped. It is 0 when nothing is skipped.
func lastPage(input string, skip int) (int, error) {
	if skip <= 0 {
		return 0, nil
	}
	n, err := countPages(input)
	if err != nil {
		return 0, err
	}
	end := n - skip
	if end < 1 {
		return 0, types.NewAppErrorWithDetails(types.ErrInvalidInput, "skipLastPages leaves nothing to translate",
			fmt.Sprintf("document has %d pages, skipLastPages=%d", n, skip), nil)
	}
	return end, nil
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// sensitive argument names whose following value is masked in logs
var sensitiveWords = []string{"key", "token", "secret", "password"}

// MaskSecrets replaces the values of credential flags with ***
func MaskSecrets(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = arg
		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") && isSensitive(name) {
			out[i] = name + "=***"
			continue
		}
		if i > 0 && strings.HasPrefix(args[i-1], "-") && !strings.Contains(args[i-1], "=") && isSensitive(args[i-1]) {
			out[i] = "***"
		}
	}
	return out
}

func isSensitive(flag string) bool {
	flag = strings.ToLower(flag)
	for _, w := range sensitiveWords {
		if strings.Contains(flag, w) {
			return true
		}
	}
	return false
}
