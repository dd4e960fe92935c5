package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"pdf2zh-server/internal/config"
	"pdf2zh-server/internal/logger"
	"pdf2zh-server/internal/process"
	"pdf2zh-server/internal/types"
	"pdf2zh-server/internal/venv"
)

// ProcessRunner runs one supervised command
type ProcessRunner interface {
	Run(ctx context.Context, c process.Command, onProgress func(process.Update)) (int, error)
}

// Settings select where engines are found and where their files go
type Settings struct {
	OutputDir string
	// ConfigDir holds config.json and config.toml; empty skips config sync
	ConfigDir string
	// Commands maps an engine name to its executable
	Commands map[string]string
	// Venv, when set, provides the engine executables
	Venv *venv.Env
	// WinExePath is a bundled pdf2zh_next executable used when EnableWinExe is set
	WinExePath   string
	EnableWinExe bool
}

// SettingsFromConfig derives runner settings from the server config
func SettingsFromConfig(cfg *types.Config) (Settings, error) {
	s := Settings{
		OutputDir: cfg.DataDir,
		ConfigDir: cfg.ConfigDir,
		Commands: map[string]string{
			config.EnginePdf2zh:     cfg.Pdf2zhCommand,
			config.EnginePdf2zhNext: cfg.Pdf2zhNextCommand,
		},
		WinExePath:   cfg.WinExePath,
		EnableWinExe: cfg.EnableWinExe,
	}
	if cfg.VenvDir != "" {
		env, err := venv.New(cfg.VenvDir)
		if err != nil {
			return s, types.NewAppError(types.ErrConfig, "invalid venv directory", err)
		}
		s.Venv = env
	}
	return s, nil
}

// Runner launches engines and collects their outputs
type Runner struct {
	settings Settings
	proc     ProcessRunner
}

// NewRunner creates a runner
func NewRunner(settings Settings, proc ProcessRunner) *Runner {
	return &Runner{settings: settings, proc: proc}
}

// Run translates req.Input once. The returned outputs hold only files that
// exist, renamed to <base>-mono.pdf and <base>-dual.pdf (pdf2zh) or
// <base>-LR_dual.pdf / <base>-TB_dual.pdf (pdf2zh_next).
func (r *Runner) Run(ctx context.Context, req Request, onProgress func(process.Update)) (Outputs, error) {
	eng, err := ByName(req.Options.Engine)
	if err != nil {
		return Outputs{}, err
	}
	if req.OutputDir == "" {
		req.OutputDir = r.settings.OutputDir
	}
	if req.OutputDir == "" {
		req.OutputDir = filepath.Dir(req.Input)
	}

	if r.settings.ConfigDir != "" {
		path := filepath.Join(r.settings.ConfigDir, eng.ConfigFileName())
		if err := eng.SyncConfig(path, req.Options); err != nil {
			return Outputs{}, types.NewAppError(types.ErrConfig, "failed to update engine config", err)
		}
		if _, err := os.Stat(path); err == nil {
			req.ConfigFile = path
		}
	}

	args, err := eng.Args(req)
	if err != nil {
		return Outputs{}, err
	}
	cmd, err := r.resolve(eng, args)
	if err != nil {
		return Outputs{}, err
	}

	logger.Info("running engine",
		logger.String("engine", eng.Name()),
		logger.String("command", strings.Join(MaskSecrets(cmd.Args), " ")),
		logger.Bool("skipSubsetFonts", req.SkipSubsetFonts))

	if _, err := r.proc.Run(ctx, cmd, onProgress); err != nil {
		return Outputs{}, err
	}
	return r.collect(eng, req), nil
}

// resolve picks the executable: the bundled exe, then the venv, then the
// configured command
func (r *Runner) resolve(eng Engine, args []string) (process.Command, error) {
	name := args[0]
	if configured := r.settings.Commands[eng.Name()]; configured != "" {
		name = configured
	}

	if eng.Name() == config.EnginePdf2zhNext && r.settings.EnableWinExe {
		if _, err := os.Stat(r.settings.WinExePath); err != nil {
			return process.Command{}, types.NewAppErrorWithDetails(types.ErrFileNotFound,
				"bundled engine not found", r.settings.WinExePath, err)
		}
		c := process.Command{
			Args: append([]string{r.settings.WinExePath}, args[1:]...),
			Dir:  filepath.Dir(r.settings.WinExePath),
		}
		if runtime.GOOS == "windows" && os.Getenv("LOKY_MAX_CPU_COUNT") == "" {
			// loky probes physical cores with a visible PowerShell window
			c.Env = append(c.Env, "LOKY_MAX_CPU_COUNT="+strconv.Itoa(max(1, runtime.NumCPU()-1)))
		}
		return c, nil
	}

	if r.settings.Venv != nil {
		vargs, env, err := r.settings.Venv.CommandAndEnv(append([]string{name}, args[1:]...))
		if err == nil {
			return process.Command{Args: vargs, Env: env}, nil
		}
		logger.Warn("engine not found in venv, using PATH",
			logger.String("venv", r.settings.Venv.Dir),
			logger.Err(err))
	}
	return process.Command{Args: append([]string{name}, args[1:]...)}, nil
}

// collect renames the expected outputs that exist and drops the missing ones
func (r *Runner) collect(eng Engine, req Request) Outputs {
	expected := eng.Expected(req)
	base := filepath.Join(req.OutputDir, baseName(req.Input))
	out := Outputs{DualLayout: expected.DualLayout}

	if expected.Mono != "" {
		out.Mono = settle(expected.Mono, base+"-mono.pdf")
	}
	if expected.Dual != "" {
		target := base + "-dual.pdf"
		if eng.Name() == config.EnginePdf2zhNext {
			target = fmt.Sprintf("%s-%s_dual.pdf", base, expected.DualLayout)
		}
		out.Dual = settle(expected.Dual, target)
	}
	return out
}

// settle moves an engine output to its canonical name. It returns "" when
// the output is missing.
func settle(found, canonical string) string {
	info, err := os.Stat(found)
	if err != nil || info.IsDir() {
		logger.Warn("expected engine output not found", logger.String("path", found))
		return ""
	}
	if found == canonical {
		return found
	}
	if err := os.Rename(found, canonical); err != nil {
		// keep the engine's name rather than losing the file
		logger.Warn("failed to rename engine output",
			logger.String("from", found),
			logger.String("to", canonical),
			logger.Err(err))
		return found
	}
	logger.Debug("engine output renamed", logger.String("from", filepath.Base(found)), logger.String("to", filepath.Base(canonical)))
	return canonical
}
