package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"pdf2zh-server/internal/config"
	"pdf2zh-server/internal/document"
	"pdf2zh-server/internal/geometry"
	"pdf2zh-server/internal/jobs"
	"pdf2zh-server/internal/logger"
	"pdf2zh-server/internal/pipeline"
	"pdf2zh-server/internal/types"
)

var local struct {
	engine        string
	service       string
	sourceLang    string
	targetLang    string
	outputs       []string
	dualMode      string
	skipLastPages int
	threads       int
	outputDir     string
}

var translateCmd = &cobra.Command{
	Use:   "translate <file.pdf>",
	Short: "Translate a PDF locally and derive the requested layouts",
	Long: `Translate a PDF with the configured engine and write the requested outputs
next to the configured data directory.

Outputs: mono, dual, mono-cut, dual-cut, crop-compare, compare.

Examples:
  pdf2zh-server translate paper.pdf
  pdf2zh-server translate paper.pdf --engine pdf2zh --outputs dual,dual-cut`,
	Args: cobra.ExactArgs(1),
	RunE: runLocal(jobs.KindTranslate),
}

var cropCmd = &cobra.Command{
	Use:   "crop <file.pdf>",
	Short: "Cut an origin, mono or dual PDF into single columns",
	Args:  cobra.ExactArgs(1),
	RunE:  runLocal(jobs.KindCrop),
}

var cropCompareCmd = &cobra.Command{
	Use:   "crop-compare <file.pdf>",
	Short: "Build a cropped side-by-side layout from a dual or dual-cut PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runLocal(jobs.KindCropCompare),
}

var compareCmd = &cobra.Command{
	Use:   "compare <file.pdf>",
	Short: "Place original and translated pages side by side",
	Args:  cobra.ExactArgs(1),
	RunE:  runLocal(jobs.KindCompare),
}

var splitCmd = &cobra.Command{
	Use:   "split <file-LR_dual.pdf>",
	Short: "Convert a side-by-side dual PDF into stacked pages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSplit,
}

func init() {
	for _, c := range []*cobra.Command{translateCmd, cropCmd, cropCompareCmd, compareCmd} {
		f := c.Flags()
		f.StringVar(&local.engine, "engine", "", "translation engine (pdf2zh or pdf2zh_next)")
		f.StringVar(&local.service, "service", "", "translation service")
		f.StringVar(&local.sourceLang, "source-lang", "", "source language")
		f.StringVar(&local.targetLang, "target-lang", "", "target language")
		f.StringVar(&local.dualMode, "dual-mode", "", "dual layout of pdf2zh_next (LR or TB)")
		f.IntVar(&local.skipLastPages, "skip-last-pages", 0, "leave the last N pages untranslated")
		f.IntVar(&local.threads, "threads", 0, "engine worker threads")
		f.StringVarP(&local.outputDir, "output", "o", "", "output directory (default from config)")
		rootCmd.AddCommand(c)
	}
	translateCmd.Flags().StringSliceVar(&local.outputs, "outputs", nil, "outputs to produce")
	splitCmd.Flags().StringVarP(&local.outputDir, "output", "o", "", "output directory (default: next to the input)")
	rootCmd.AddCommand(splitCmd)
}

func localOptions(cfg *types.Config) (*config.TranslateOptions, error) {
	opts := &config.TranslateOptions{
		Engine:        local.engine,
		Service:       local.service,
		SourceLang:    local.sourceLang,
		TargetLang:    local.targetLang,
		DualMode:      local.dualMode,
		SkipLastPages: config.Number(local.skipLastPages),
		ThreadNum:     config.Number(local.threads),
	}
	for _, out := range local.outputs {
		switch document.Type(strings.TrimSpace(out)) {
		case document.Mono:
			opts.Mono = true
		case document.Dual:
			opts.Dual = true
		case document.MonoCut:
			opts.MonoCut = true
		case document.DualCut:
			opts.DualCut = true
		case document.CropCompare:
			opts.CropCompare = true
		case document.Compare:
			opts.Compare = true
		default:
			return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput, "unknown output", out, nil)
		}
	}
	if err := opts.Normalize(cfg.Clip); err != nil {
		return nil, err
	}
	return opts, nil
}

// stage copies input into the output directory so derived files land there
func stage(input, dir string) (string, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(abs); err != nil {
		return "", types.NewAppErrorWithDetails(types.ErrFileNotFound, "input not found", input, err)
	}
	dst := filepath.Join(dir, filepath.Base(abs))
	if dst == abs {
		return abs, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", types.NewAppError(types.ErrDocumentRead, "failed to read input", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to stage input", err)
	}
	return dst, nil
}

func runLocal(kind string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		mgr, err := setup()
		if err != nil {
			return err
		}
		cfg := mgr.GetConfig()
		if local.outputDir != "" {
			cfg.DataDir = local.outputDir
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return err
			}
		}
		opts, err := localOptions(cfg)
		if err != nil {
			return err
		}
		input, err := stage(args[0], cfg.DataDir)
		if err != nil {
			return err
		}
		if err := pipeline.Validate(kind, input, opts); err != nil {
			return err
		}

		orchestrator, err := newPipeline(cfg, nil)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		run := map[string]func(context.Context, string, *config.TranslateOptions, pipeline.Update) ([]string, error){
			jobs.KindTranslate:   orchestrator.Translate,
			jobs.KindCrop:        orchestrator.Crop,
			jobs.KindCropCompare: orchestrator.CropCompare,
			jobs.KindCompare:     orchestrator.Compare,
		}[kind]

		out := cmd.OutOrStdout()
		files, err := run(ctx, input, opts, printProgress(cmd))
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(out, f)
		}
		return nil
	}
}

// printProgress writes status changes to stderr
func printProgress(cmd *cobra.Command) pipeline.Update {
	last := -1
	return func(p jobs.Patch) {
		if p.Progress == nil || *p.Progress == last {
			return
		}
		last = *p.Progress
		msg := ""
		if p.Message != nil {
			msg = *p.Message
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\r%3d%% %-40s", last, msg)
		if last == 100 {
			fmt.Fprintln(cmd.ErrOrStderr())
		}
	}
}

func runSplit(cmd *cobra.Command, args []string) error {
	if _, err := setup(); err != nil {
		return err
	}
	src := args[0]
	name := filepath.Base(src)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	switch {
	case strings.HasSuffix(base, "LR_dual"):
		base = strings.TrimSuffix(base, "LR_dual") + "TB_dual"
	case strings.HasSuffix(base, "dual"):
		base = strings.TrimSuffix(base, "dual") + "TB_dual"
	default:
		base += "-TB_dual"
	}
	dir := local.outputDir
	if dir == "" {
		dir = filepath.Dir(src)
	}
	dst := filepath.Join(dir, base+".pdf")

	rep, err := geometry.ConvertLRtoTB(src, dst)
	if err != nil {
		return err
	}
	for _, w := range rep.Warnings {
		logger.Warn(w, logger.String("op", "split"))
	}
	fmt.Fprintln(cmd.OutOrStdout(), dst)
	return nil
}
