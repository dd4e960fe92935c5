// Package pipeline turns a job request into engine runs and page geometry
// transforms. Every request is validated against the layout transition table
// before any work starts; the engine runs at most once per request, plus one
// retry with font subsetting disabled.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pdf2zh-server/internal/config"
	"pdf2zh-server/internal/document"
	"pdf2zh-server/internal/engine"
	"pdf2zh-server/internal/geometry"
	"pdf2zh-server/internal/jobs"
	"pdf2zh-server/internal/logger"
	"pdf2zh-server/internal/process"
	"pdf2zh-server/internal/types"
)

// engine progress fills this share of the job; post-processing the rest
const engineShare = 90

var countPages = geometry.PageCount

// Translator runs one engine invocation
type Translator interface {
	Run(ctx context.Context, req engine.Request, onProgress func(process.Update)) (engine.Outputs, error)
}

// Transformer performs page geometry transforms
type Transformer interface {
	Crop(src, dst string, mode geometry.Mode, clip geometry.ClipConfig) (*geometry.Report, error)
	MergeSideBySide(src, dst string) (*geometry.Report, error)
	ConvertLRtoTB(src, dst string) (*geometry.Report, error)
}

// Recorder receives pipeline metrics
type Recorder interface {
	RecordEngineRun(engine, outcome string)
	RecordEngineRetry(engine string)
	ObserveGeometry(op string, d time.Duration)
}

// Update reports job progress
type Update func(jobs.Patch)

type geometryTransformer struct{}

func (geometryTransformer) Crop(src, dst string, mode geometry.Mode, clip geometry.ClipConfig) (*geometry.Report, error) {
	return geometry.Crop(src, dst, mode, clip)
}

func (geometryTransformer) MergeSideBySide(src, dst string) (*geometry.Report, error) {
	return geometry.MergeSideBySide(src, dst)
}

func (geometryTransformer) ConvertLRtoTB(src, dst string) (*geometry.Report, error) {
	return geometry.ConvertLRtoTB(src, dst)
}

type nopRecorder struct{}

func (nopRecorder) RecordEngineRun(string, string)         {}
func (nopRecorder) RecordEngineRetry(string)               {}
func (nopRecorder) ObserveGeometry(string, time.Duration) {}

// Options configures an Orchestrator
type Options struct {
	Engine Translator
	// Geometry defaults to the geometry package
	Geometry Transformer
	Recorder Recorder
	// Workers bounds concurrent post-processing transforms
	Workers   int
	OutputDir string
}

// Orchestrator runs translate, crop, crop-compare and compare requests
type Orchestrator struct {
	engine    Translator
	geometry  Transformer
	recorder  Recorder
	workers   int
	outputDir string
}

// New creates an orchestrator
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		engine:    opts.Engine,
		geometry:  opts.Geometry,
		recorder:  opts.Recorder,
		workers:   opts.Workers,
		outputDir: opts.OutputDir,
	}
	if o.geometry == nil {
		o.geometry = geometryTransformer{}
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.workers <= 0 {
		o.workers = 1
	}
	return o
}

// requested returns the translate outputs in result order. With nothing
// selected, mono and dual are produced unless suppressed.
func requested(opts *config.TranslateOptions) []document.Type {
	var out []document.Type
	for _, sel := range []struct {
		on  config.Flag
		typ document.Type
	}{
		{opts.Mono, document.Mono},
		{opts.Dual, document.Dual},
		{opts.MonoCut, document.MonoCut},
		{opts.DualCut, document.DualCut},
		{opts.CropCompare, document.CropCompare},
		{opts.Compare, document.Compare},
	} {
		if sel.on {
			out = append(out, sel.typ)
		}
	}
	if len(out) == 0 {
		if !opts.NoMono {
			out = append(out, document.Mono)
		}
		if !opts.NoDual {
			out = append(out, document.Dual)
		}
	}
	return out
}

// Translate runs the engine once on an origin document and derives every
// requested layout from its mono and dual outputs. Requested outputs that
// could not be produced are skipped; the call fails only when none were.
func (o *Orchestrator) Translate(ctx context.Context, input string, opts *config.TranslateOptions, update Update) ([]string, error) {
	if err := Validate(jobs.KindTranslate, input, opts); err != nil {
		return nil, err
	}
	targets := requested(opts)

	out, err := o.runEngine(ctx, input, opts, update)
	if err != nil {
		return nil, err
	}
	var mono, dual *document.Document
	for _, d := range out.Documents() {
		d := d
		switch d.Type {
		case document.Mono:
			mono = &d
		case document.Dual:
			dual = &d
		}
	}

	results := make([]string, len(targets))
	var tasks []func() error
	var tb *document.Document
	var tbOnce sync.Once
	var tbErr error
	stacked := func() (*document.Document, error) {
		tbOnce.Do(func() { tb, tbErr = o.stacked(*dual) })
		return tb, tbErr
	}

	for i, t := range targets {
		i, t := i, t
		switch t {
		case document.Mono:
			if mono != nil {
				results[i] = mono.Path
			}
		case document.Dual:
			if dual != nil {
				results[i] = dual.Path
			}
		case document.MonoCut:
			if mono == nil {
				logger.Warn("mono output missing, skipping mono-cut", logger.String("input", input))
				continue
			}
			tasks = append(tasks, func() error {
				dst := document.DerivedPath(*mono, document.MonoCut, document.NamingDash)
				if err := o.crop(*mono, dst, geometry.ModeMonoCut, opts); err != nil {
					return err
				}
				results[i] = dst
				return nil
			})
		case document.DualCut, document.CropCompare:
			if dual == nil {
				logger.Warn("dual output missing, skipping "+string(t), logger.String("input", input))
				continue
			}
			mode := geometry.ModeDualCut
			if t == document.CropCompare {
				mode = geometry.ModeCropCompare
			}
			tasks = append(tasks, func() error {
				src, err := stacked()
				if err != nil {
					return err
				}
				dst := document.DerivedPath(*src, t, document.NamingDash)
				if err := o.crop(*src, dst, mode, opts); err != nil {
					return err
				}
				results[i] = dst
				return nil
			})
		case document.Compare:
			if dual == nil {
				logger.Warn("dual output missing, skipping compare", logger.String("input", input))
				continue
			}
			tasks = append(tasks, func() error {
				dst := document.DerivedPath(*dual, document.Compare, document.NamingDash)
				if dual.Layout == document.LayoutLR {
					// side-by-side already
					if err := moveOrCopy(dual.Path, dst, false); err != nil {
						return err
					}
					results[i] = dst
					return nil
				}
				if err := o.merge(*dual, dst); err != nil {
					return err
				}
				results[i] = dst
				return nil
			})
		}
	}

	firstErr := o.runTasks(ctx, tasks, update)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	files := compact(results)
	if len(files) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, types.NewAppError(types.ErrEngine, "translation produced no output files", nil)
	}
	logger.Info("translate finished", logger.String("input", input), logger.Strings("files", files))
	return files, nil
}

// runTasks runs post-processing transforms concurrently. A failing
// transform is logged and its output skipped; the first error is returned
// for reporting.
func (o *Orchestrator) runTasks(ctx context.Context, tasks []func() error, update Update) error {
	if len(tasks) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	var mu sync.Mutex
	var firstErr error
	done := 0
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			err := task()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("post-processing step failed", err)
				if firstErr == nil {
					firstErr = err
				}
			}
			done++
			report(update, engineShare+(100-engineShare)*done/len(tasks), "post-processing")
			return nil
		})
	}
	g.Wait()
	return firstErr
}

// Validate checks a request of the given job kind against the input's
// document type without running anything
func Validate(kind, input string, opts *config.TranslateOptions) error {
	in := document.New(input)
	switch kind {
	case jobs.KindTranslate:
		targets := requested(opts)
		if len(targets) == 0 {
			return types.NewAppError(types.ErrInvalidInput, "noMono and noDual leave nothing to produce", nil)
		}
		for _, t := range targets {
			if err := document.ValidateTransition(in.Type, t); err != nil {
				return err
			}
		}
		return nil
	case jobs.KindCrop:
		_, _, err := cropTarget(in.Type)
		return err
	case jobs.KindCropCompare:
		switch in.Type {
		case document.Origin, document.Dual, document.DualCut:
			return nil
		}
		return &document.InvalidLayoutTransitionError{From: in.Type, To: document.CropCompare}
	case jobs.KindCompare:
		return document.ValidateTransition(in.Type, document.Compare)
	}
	return types.NewAppError(types.ErrInvalidInput, fmt.Sprintf("unknown job kind %q", kind), nil)
}

func cropTarget(t document.Type) (document.Type, geometry.Mode, error) {
	switch t {
	case document.Origin:
		return document.OriginCut, geometry.ModeOriginCut, nil
	case document.Mono:
		return document.MonoCut, geometry.ModeMonoCut, nil
	case document.Dual:
		return document.DualCut, geometry.ModeDualCut, nil
	}
	return "", "", &document.InvalidLayoutTransitionError{From: t, To: document.Type(string(t) + "-cut")}
}

// Crop cuts an origin, mono or dual document into single columns
func (o *Orchestrator) Crop(ctx context.Context, input string, opts *config.TranslateOptions, update Update) ([]string, error) {
	in := document.New(input)
	target, mode, err := cropTarget(in.Type)
	if err != nil {
		return nil, err
	}

	src := in
	if in.Type == document.Dual {
		tb, err := o.stacked(in)
		if err != nil {
			return nil, err
		}
		src = *tb
	}
	report(update, 50, "cropping")
	dst := document.DerivedPath(src, target, document.NamingDash)
	if err := o.crop(src, dst, mode, opts); err != nil {
		return nil, err
	}
	return []string{dst}, nil
}

// CropCompare produces a crop-compare layout. Origin documents are
// translated to a stacked dual first; dual-cut documents are merged side by
// side.
func (o *Orchestrator) CropCompare(ctx context.Context, input string, opts *config.TranslateOptions, update Update) ([]string, error) {
	if err := Validate(jobs.KindCropCompare, input, opts); err != nil {
		return nil, err
	}
	in := document.New(input)

	if in.Type == document.Origin {
		dual, err := o.translateDual(ctx, input, opts, config.DualModeTB, update)
		if err != nil {
			return nil, err
		}
		in = dual
	}

	report(update, engineShare, "cropping")
	if in.Type == document.DualCut {
		dst := document.DerivedPath(in, document.CropCompare, document.NamingDash)
		if err := o.merge(in, dst); err != nil {
			return nil, err
		}
		return []string{dst}, nil
	}

	src, err := o.stacked(in)
	if err != nil {
		return nil, err
	}
	dst := document.DerivedPath(*src, document.CropCompare, document.NamingDash)
	if err := o.crop(*src, dst, geometry.ModeCropCompare, opts); err != nil {
		return nil, err
	}
	return []string{dst}, nil
}

// Compare produces a side-by-side layout from an origin or dual document
func (o *Orchestrator) Compare(ctx context.Context, input string, opts *config.TranslateOptions, update Update) ([]string, error) {
	in := document.New(input)
	if err := document.ValidateTransition(in.Type, document.Compare); err != nil {
		return nil, err
	}

	dst := document.DerivedPath(in, document.Compare, document.NamingDash)
	if in.Type == document.Origin {
		dual, err := o.translateDual(ctx, input, opts, config.DualModeLR, update)
		if err != nil {
			return nil, err
		}
		in = dual
	}

	report(update, engineShare, "merging")
	if in.Layout == document.LayoutLR {
		if err := moveOrCopy(in.Path, dst, in.Path != input); err != nil {
			return nil, err
		}
		return []string{dst}, nil
	}
	if err := o.merge(in, dst); err != nil {
		return nil, err
	}
	return []string{dst}, nil
}

// translateDual runs the engine for a dual document only
func (o *Orchestrator) translateDual(ctx context.Context, input string, opts *config.TranslateOptions, mode string, update Update) (document.Document, error) {
	opts = opts.Clone()
	if opts.Engine == config.EnginePdf2zhNext {
		opts.DualMode = mode
		opts.NoDual, opts.NoMono = false, true
	}
	out, err := o.runEngine(ctx, input, opts, update)
	if err != nil {
		return document.Document{}, err
	}
	if out.Dual == "" {
		return document.Document{}, types.NewAppError(types.ErrEngine, "engine produced no dual file", nil)
	}
	return document.Document{Path: out.Dual, Type: document.Dual, Layout: out.DualLayout}, nil
}

// runEngine runs the engine and retries once with font subsetting disabled
// when the process fails
func (o *Orchestrator) runEngine(ctx context.Context, input string, opts *config.TranslateOptions, update Update) (engine.Outputs, error) {
	if o.engine == nil {
		return engine.Outputs{}, types.NewAppError(types.ErrConfig, "no translation engine configured", nil)
	}
	req := engine.Request{Input: input, OutputDir: o.outputDir, Options: opts}
	onProgress := func(u process.Update) {
		switch u.Kind {
		case process.UpdateProgress:
			report(update, u.Percent*engineShare/100, u.Status)
		case process.UpdateStep:
			if update != nil {
				update(jobs.Patch{}.WithMessage(u.Status))
			}
		}
	}

	if n, err := countPages(input); err == nil && update != nil {
		update(jobs.Patch{}.WithTotalPages(n))
	}
	report(update, 0, "translating")
	out, err := o.engine.Run(ctx, req, onProgress)
	var failure *process.Failure
	if err != nil && errors.As(err, &failure) && ctx.Err() == nil && !bool(opts.SkipSubsetFonts) {
		o.recorder.RecordEngineRun(opts.Engine, "failure")
		o.recorder.RecordEngineRetry(opts.Engine)
		logger.Warn("engine failed, retrying with font subsetting disabled",
			logger.String("engine", opts.Engine),
			logger.Int("exitCode", failure.ExitCode),
			logger.String("reason", failure.Message))
		if update != nil {
			update(jobs.Patch{}.WithMessage("retrying without font subsetting"))
		}
		req.SkipSubsetFonts = true
		out, err = o.engine.Run(ctx, req, onProgress)
	}
	if err != nil {
		o.recorder.RecordEngineRun(opts.Engine, "failure")
		return engine.Outputs{}, err
	}
	o.recorder.RecordEngineRun(opts.Engine, "success")

	if out.Mono == "" && out.Dual == "" {
		return out, types.NewAppError(types.ErrEngine, "translation produced no output files", nil)
	}
	report(update, engineShare, "translated")
	return out, nil
}

// stacked returns a TB dual document, converting an LR one next to it
func (o *Orchestrator) stacked(dual document.Document) (*document.Document, error) {
	if dual.Layout != document.LayoutLR {
		return &dual, nil
	}
	dst := tbPath(dual.Path)
	start := time.Now()
	rep, err := o.geometry.ConvertLRtoTB(dual.Path, dst)
	o.recorder.ObserveGeometry("lr-to-tb", time.Since(start))
	if err != nil {
		return nil, err
	}
	logWarnings("lr-to-tb", rep)
	return &document.Document{Path: dst, Type: document.Dual, Layout: document.LayoutTB}, nil
}

func tbPath(lr string) string {
	dir, name := filepath.Split(lr)
	if i := strings.LastIndex(name, "LR_dual.pdf"); i >= 0 {
		return filepath.Join(dir, name[:i]+"TB_dual.pdf")
	}
	if i := strings.LastIndex(name, "dual.pdf"); i >= 0 {
		return filepath.Join(dir, name[:i]+"TB_dual.pdf")
	}
	return filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+"-TB_dual.pdf")
}

func (o *Orchestrator) crop(src document.Document, dst string, mode geometry.Mode, opts *config.TranslateOptions) error {
	clip := opts.Clip()
	start := time.Now()
	rep, err := o.geometry.Crop(src.Path, dst, mode, geometry.ClipConfig{
		WOffset:     clip.WOffset,
		HOffset:     clip.HOffset,
		OffsetRatio: clip.OffsetRatio,
	})
	o.recorder.ObserveGeometry(string(mode), time.Since(start))
	if err != nil {
		return err
	}
	logWarnings(string(mode), rep)
	return nil
}

func (o *Orchestrator) merge(src document.Document, dst string) error {
	start := time.Now()
	rep, err := o.geometry.MergeSideBySide(src.Path, dst)
	o.recorder.ObserveGeometry("compare", time.Since(start))
	if err != nil {
		return err
	}
	logWarnings("compare", rep)
	return nil
}

func logWarnings(op string, rep *geometry.Report) {
	if rep == nil {
		return
	}
	for _, w := range rep.Warnings {
		logger.Warn(w, logger.String("op", op))
	}
}

func report(update Update, pct int, msg string) {
	if update == nil {
		return
	}
	p := jobs.Patch{}.WithProgress(pct)
	if msg != "" {
		p = p.WithMessage(msg)
	}
	update(p)
}

func compact(paths []string) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			logger.Warn("expected output missing", logger.String("path", p))
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// moveOrCopy places src at dst, moving it when src is an intermediate file
func moveOrCopy(src, dst string, move bool) error {
	if src == dst {
		return nil
	}
	if move {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
	}
	in, err := os.Open(src)
	if err != nil {
		return types.NewAppError(types.ErrFileNotFound, fmt.Sprintf("cannot open %s", filepath.Base(src)), err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "cannot create output", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return types.NewAppError(types.ErrInternal, "cannot copy output", err)
	}
	return out.Close()
}
