package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"pdf2zh-server/internal/config"
	"pdf2zh-server/internal/document"
	"pdf2zh-server/internal/logger"
)

// Pdf2zh drives pdf2zh 1.x
type Pdf2zh struct{}

func (Pdf2zh) Name() string { return config.EnginePdf2zh }

func (Pdf2zh) ConfigFileName() string { return "config.json" }

// pdf2zh 1.x only knows the short Chinese tag
func pdf2zhLang(lang string) string {
	if lang == "zh-CN" {
		return "zh"
	}
	return lang
}

func (Pdf2zh) Args(req Request) ([]string, error) {
	o := req.Options
	args := []string{
		config.EnginePdf2zh,
		req.Input,
		"--t", strconv.Itoa(int(o.ThreadNum)),
		"--output", req.OutputDir,
		"--service", o.Service,
		"--lang-in", pdf2zhLang(o.SourceLang),
		"--lang-out", pdf2zhLang(o.TargetLang),
	}
	if req.ConfigFile != "" {
		args = append(args, "--config", req.ConfigFile)
	}
	end, err := lastPage(req.Input, int(o.SkipLastPages))
	if err != nil {
		return nil, err
	}
	if end > 0 {
		args = append(args, "-p", fmt.Sprintf("1-%d", end))
	}
	if bool(o.SkipSubsetFonts) || req.SkipSubsetFonts {
		args = append(args, "--skip-subset-fonts")
	}
	if o.Babeldoc {
		logger.Warn("pdf2zh 1.x with babeldoc is deprecated, prefer pdf2zh_next")
		args = append(args, "--babeldoc")
	}
	return args, nil
}

// Expected always lists both files; pdf2zh 1.x dual output alternates
// original and translated pages.
func (Pdf2zh) Expected(req Request) Outputs {
	base := baseName(req.Input)
	out := Outputs{DualLayout: document.LayoutTB}
	if req.Options.Babeldoc {
		lang := pdf2zhLang(req.Options.TargetLang)
		out.Mono = filepath.Join(req.OutputDir, fmt.Sprintf("%s.%s.mono.pdf", base, lang))
		out.Dual = filepath.Join(req.OutputDir, fmt.Sprintf("%s.%s.dual.pdf", base, lang))
		return out
	}
	out.Mono = filepath.Join(req.OutputDir, base+"-mono.pdf")
	out.Dual = filepath.Join(req.OutputDir, base+"-dual.pdf")
	return out
}

// SyncConfig stores the LLM credentials in the translators list of the
// pdf2zh config.json, keyed by service. Other entries are kept.
func (Pdf2zh) SyncConfig(path string, opts *config.TranslateOptions) error {
	if opts.LLMAPI == nil {
		return nil
	}
	doc := map[string]interface{}{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	service := opts.Service
	prefix := envPrefix(service)
	envs := map[string]interface{}{}
	if opts.LLMAPI.APIKey != "" {
		envs[prefix+"_API_KEY"] = opts.LLMAPI.APIKey
	}
	if opts.LLMAPI.APIURL != "" {
		envs[prefix+"_BASE_URL"] = opts.LLMAPI.APIURL
	}
	if opts.LLMAPI.Model != "" {
		envs[prefix+"_MODEL"] = opts.LLMAPI.Model
	}
	for k, v := range opts.LLMAPI.ExtraData {
		if v != nil {
			envs[k] = v
		}
	}

	var translators []interface{}
	if list, ok := doc["translators"].([]interface{}); ok {
		translators = list
	}
	replaced := false
	for i, t := range translators {
		if m, ok := t.(map[string]interface{}); ok && m["name"] == service {
			translators[i] = map[string]interface{}{"name": service, "envs": envs}
			replaced = true
		}
	}
	if !replaced {
		translators = append(translators, map[string]interface{}{"name": service, "envs": envs})
	}
	doc["translators"] = translators

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	return writeConfigFile(path, data)
}

// envPrefix turns a service name into its environment variable prefix,
// e.g. "openailiked" -> "OPENAILIKED", "azure-openai" -> "AZURE_OPENAI"
func envPrefix(service string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(service))
}

func writeConfigFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
