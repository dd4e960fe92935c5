package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"pdf2zh-server/internal/config"
	"pdf2zh-server/internal/document"
)

// Pdf2zhNext drives pdf2zh_next 2.x
type Pdf2zhNext struct{}

func (Pdf2zhNext) Name() string { return config.EnginePdf2zhNext }

func (Pdf2zhNext) ConfigFileName() string { return "config.toml" }

// serviceAliases maps client service names to pdf2zh_next flags
var serviceAliases = map[string]string{
	"ModelScope":      "modelscope",
	"openailiked":     "openaicompatible",
	"tencent":         "tencentmechinetranslation",
	"silicon":         "siliconflow",
	"qwen-mt":         "qwenmt",
	"AliyunDashScope": "aliyundashscope",
}

// NextService returns the pdf2zh_next name of a service
func NextService(service string) string {
	if alias, ok := serviceAliases[service]; ok {
		return alias
	}
	return service
}

var fontFamilies = map[string]bool{"serif": true, "sans-serif": true, "script": true}

func (Pdf2zhNext) Args(req Request) ([]string, error) {
	o := req.Options
	args := []string{
		config.EnginePdf2zhNext,
		req.Input,
		"--" + NextService(o.NextService),
		"--qps", strconv.Itoa(int(o.QPS)),
		"--output", req.OutputDir,
		"--lang-in", o.SourceLang,
		"--lang-out", o.TargetLang,
	}
	if req.ConfigFile != "" {
		args = append(args, "--config-file", req.ConfigFile)
	}
	if o.NoWatermark {
		args = append(args, "--watermark-output-mode", "no_watermark")
	} else {
		args = append(args, "--watermark-output-mode", "watermarked")
	}
	end, err := lastPage(req.Input, int(o.SkipLastPages))
	if err != nil {
		return nil, err
	}
	if end > 0 {
		args = append(args, "--pages", fmt.Sprintf("1-%d", end))
	}

	flags := []struct {
		on   bool
		flag string
	}{
		{bool(o.NoDual), "--no-dual"},
		{bool(o.NoMono), "--no-mono"},
		{bool(o.TransFirst), "--dual-translate-first"},
		{bool(o.SkipClean), "--skip-clean"},
		{bool(o.DisableRichTextTranslate), "--disable-rich-text-translate"},
		{bool(o.EnhanceCompatibility), "--enhance-compatibility"},
		{bool(o.SaveGlossary), "--save-auto-extracted-glossary"},
		{bool(o.DisableGlossary), "--no-auto-extract-glossary"},
		{o.DualMode == config.DualModeTB, "--use-alternating-pages-dual"},
		{bool(o.TranslateTableText), "--translate-table-text"},
		{bool(o.OCR), "--ocr-workaround"},
		{bool(o.AutoOCR), "--auto-enable-ocr-workaround"},
		{bool(o.SkipSubsetFonts) || req.SkipSubsetFonts, "--skip-subset-fonts"},
	}
	for _, f := range flags {
		if f.on {
			args = append(args, f.flag)
		}
	}
	if fontFamilies[o.FontFamily] {
		args = append(args, "--primary-font-family", o.FontFamily)
	}
	if o.PoolSize > 1 {
		args = append(args, "--pool-max-worker", strconv.Itoa(int(o.PoolSize)))
	}
	return args, nil
}

// Expected lists only the requested files:
// <base>[.no_watermark].<lang>.mono.pdf and .dual.pdf
func (Pdf2zhNext) Expected(req Request) Outputs {
	o := req.Options
	stem := baseName(req.Input)
	if o.NoWatermark {
		stem += ".no_watermark"
	}
	stem += "." + o.TargetLang

	out := Outputs{DualLayout: document.LayoutLR}
	if o.DualMode == config.DualModeTB {
		out.DualLayout = document.LayoutTB
	}
	if !o.NoMono {
		out.Mono = filepath.Join(req.OutputDir, stem+".mono.pdf")
	}
	if !o.NoDual {
		out.Dual = filepath.Join(req.OutputDir, stem+".dual.pdf")
	}
	return out
}

// SyncConfig stores the LLM credentials in the [<service>_detail] table of
// the pdf2zh_next config.toml. Other tables are kept.
func (Pdf2zhNext) SyncConfig(path string, opts *config.TranslateOptions) error {
	if opts.LLMAPI == nil {
		return nil
	}
	doc := map[string]interface{}{}
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	key := strings.ReplaceAll(NextService(opts.NextService), "-", "_")
	table, _ := doc[key+"_detail"].(map[string]interface{})
	if table == nil {
		table = map[string]interface{}{}
	}
	if opts.LLMAPI.APIKey != "" {
		table[key+"_api_key"] = opts.LLMAPI.APIKey
	}
	if opts.LLMAPI.APIURL != "" {
		table[key+"_base_url"] = opts.LLMAPI.APIURL
	}
	if opts.LLMAPI.Model != "" {
		table[key+"_model"] = opts.LLMAPI.Model
	}
	for k, v := range opts.LLMAPI.ExtraData {
		if v != nil {
			table[k] = v
		}
	}
	doc[key+"_detail"] = table

	data, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	return writeConfigFile(path, data)
}
