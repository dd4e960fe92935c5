package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"pdf2zh-server/internal/types"
)

const (
	EnginePdf2zh     = "pdf2zh"
	EnginePdf2zhNext = "pdf2zh_next"

	DualModeLR = "LR"
	DualModeTB = "TB"

	DefaultService    = "bing"
	DefaultSourceLang = "en"
	DefaultTargetLang = "zh-CN"
	DefaultThreadNum  = 4
	DefaultQPS        = 10
)

// Flag is a boolean that also accepts the string forms clients send
// ("true", "1", "True", ...). Anything else, including "", is false.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case bool:
		*f = Flag(x)
	case float64:
		*f = Flag(x == 1)
	case string:
		switch strings.TrimSpace(x) {
		case "true", "True", "TRUE", "1":
			*f = true
		default:
			*f = false
		}
	default:
		*f = false
	}
	return nil
}

// Number is an integer that also accepts numeric strings; "" decodes to zero.
type Number int

func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		*n = Number(i)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*n = Number(int(f))
	return nil
}

// Decimal is a float that also accepts numeric strings; "" decodes to zero.
type Decimal float64

func (d *Decimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid decimal %q", s)
	}
	*d = Decimal(f)
	return nil
}

// LLMAPI carries the credentials for the active LLM service
type LLMAPI struct {
	Service   string                 `json:"service"`
	Model     string                 `json:"model"`
	APIKey    string                 `json:"apiKey"`
	APIURL    string                 `json:"apiUrl"`
	ExtraData map[string]interface{} `json:"extraData,omitempty"`
}

// TranslateOptions holds every option a job request may set. Unknown keys
// are ignored; Normalize fills defaults and validates once at submission.
type TranslateOptions struct {
	Engine      string `json:"engine"`
	Service     string `json:"service"`
	NextService string `json:"next_service"`
	SourceLang  string `json:"sourceLang"`
	TargetLang  string `json:"targetLang"`

	SkipLastPages Number `json:"skipLastPages"`
	ThreadNum     Number `json:"threadNum"`
	QPS           Number `json:"qps"`
	PoolSize      Number `json:"poolSize"`

	Mono        Flag `json:"mono"`
	Dual        Flag `json:"dual"`
	MonoCut     Flag `json:"mono_cut"`
	DualCut     Flag `json:"dual_cut"`
	CropCompare Flag `json:"crop_compare"`
	Compare     Flag `json:"compare"`

	// pdf2zh 1.x
	Babeldoc        Flag   `json:"babeldoc"`
	SkipSubsetFonts Flag   `json:"skipSubsetFonts"`
	FontFile        string `json:"fontFile"`

	// pdf2zh_next
	FontFamily               string `json:"fontFamily"`
	DualMode                 string `json:"dualMode"`
	TransFirst               Flag   `json:"transFirst"`
	OCR                      Flag   `json:"ocr"`
	AutoOCR                  Flag   `json:"autoOcr"`
	NoWatermark              Flag   `json:"noWatermark"`
	SaveGlossary             Flag   `json:"saveGlossary"`
	DisableGlossary          Flag   `json:"disableGlossary"`
	NoDual                   Flag   `json:"noDual"`
	NoMono                   Flag   `json:"noMono"`
	SkipClean                Flag   `json:"skipClean"`
	DisableRichTextTranslate Flag   `json:"disableRichTextTranslate"`
	EnhanceCompatibility     Flag   `json:"enhanceCompatibility"`
	TranslateTableText       Flag   `json:"translateTableText"`

	// crop margins; zero means use the server defaults
	WOffset     Decimal `json:"pdf_w_offset"`
	HOffset     Decimal `json:"pdf_h_offset"`
	OffsetRatio Decimal `json:"pdf_offset_ratio"`

	LLMAPI *LLMAPI `json:"llm_api,omitempty"`
}

// Normalize fills defaults from the server clip settings and validates the
// option set. It returns an INVALID_INPUT AppError on the first violation.
func (o *TranslateOptions) Normalize(clip types.ClipSettings) error {
	o.Engine = strings.TrimSpace(o.Engine)
	switch o.Engine {
	case "":
		o.Engine = EnginePdf2zhNext
	case EnginePdf2zh, EnginePdf2zhNext:
	default:
		return invalid("unsupported engine %q, expected %s or %s", o.Engine, EnginePdf2zh, EnginePdf2zhNext)
	}

	if o.Service == "" {
		o.Service = DefaultService
	}
	if o.NextService == "" {
		o.NextService = o.Service
	}
	if o.SourceLang == "" {
		o.SourceLang = DefaultSourceLang
	}
	if o.TargetLang == "" {
		o.TargetLang = DefaultTargetLang
	}
	if o.ThreadNum <= 0 {
		o.ThreadNum = DefaultThreadNum
	}
	if o.QPS <= 0 {
		o.QPS = DefaultQPS
	}
	if o.SkipLastPages < 0 {
		return invalid("skipLastPages must not be negative, got %d", o.SkipLastPages)
	}
	if o.PoolSize < 0 {
		return invalid("poolSize must not be negative, got %d", o.PoolSize)
	}

	switch strings.ToUpper(strings.TrimSpace(o.DualMode)) {
	case "", DualModeLR:
		o.DualMode = DualModeLR
	case DualModeTB:
		o.DualMode = DualModeTB
	default:
		return invalid("unsupported dualMode %q, expected LR or TB", o.DualMode)
	}

	if o.WOffset == 0 && o.HOffset == 0 && o.OffsetRatio == 0 {
		o.WOffset, o.HOffset, o.OffsetRatio = Decimal(clip.WOffset), Decimal(clip.HOffset), Decimal(clip.OffsetRatio)
	}
	if o.OffsetRatio == 0 {
		o.OffsetRatio = Decimal(clip.OffsetRatio)
	}
	if o.WOffset < 0 || o.HOffset < 0 || o.OffsetRatio <= 0 {
		return invalid("crop margins must be non-negative with a positive ratio")
	}

	if o.Engine == EnginePdf2zhNext {
		// derived layouts need their source file from the engine
		if o.Mono || o.MonoCut {
			o.NoMono = false
		}
		if o.Dual || o.DualCut || o.CropCompare || o.Compare {
			o.NoDual = false
		}
		if o.NoMono && o.NoDual {
			return invalid("pdf2zh_next must produce at least one of mono or dual, check noDual and noMono")
		}
	}
	return nil
}

// ActiveService returns the translation service for the selected engine
func (o *TranslateOptions) ActiveService() string {
	if o.Engine == EnginePdf2zhNext {
		return o.NextService
	}
	return o.Service
}

// Clip returns the crop margins as settings
func (o *TranslateOptions) Clip() types.ClipSettings {
	return types.ClipSettings{
		WOffset:     float64(o.WOffset),
		HOffset:     float64(o.HOffset),
		OffsetRatio: float64(o.OffsetRatio),
	}
}

// Clone returns a deep copy so per-call tweaks never leak between requests
func (o *TranslateOptions) Clone() *TranslateOptions {
	c := *o
	if o.LLMAPI != nil {
		api := *o.LLMAPI
		if o.LLMAPI.ExtraData != nil {
			api.ExtraData = make(map[string]interface{}, len(o.LLMAPI.ExtraData))
			for k, v := range o.LLMAPI.ExtraData {
				api.ExtraData[k] = v
			}
		}
		c.LLMAPI = &api
	}
	return &c
}

func invalid(format string, args ...interface{}) error {
	return types.NewAppErrorWithDetails(types.ErrInvalidInput, "invalid request options", fmt.Sprintf(format, args...), nil)
}
