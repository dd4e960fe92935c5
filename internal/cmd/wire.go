package cmd

import (
	"os"

	"pdf2zh-server/internal/engine"
	"pdf2zh-server/internal/pipeline"
	"pdf2zh-server/internal/process"
	"pdf2zh-server/internal/types"
)

// newPipeline wires the supervisor, engine runner and orchestrator for cfg
func newPipeline(cfg *types.Config, recorder pipeline.Recorder) (*pipeline.Orchestrator, error) {
	opts := process.Options{
		Source:   process.DetectSource(cfg.ProcessMode),
		Encoding: cfg.OutputEncoding,
	}
	if cfg.EchoOutput {
		opts.Echo = os.Stderr
	}
	sup, err := process.NewSupervisor(opts)
	if err != nil {
		return nil, err
	}
	settings, err := engine.SettingsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Options{
		Engine:    engine.NewRunner(settings, sup),
		Recorder:  recorder,
		Workers:   cfg.PostprocessWorkers,
		OutputDir: cfg.DataDir,
	}), nil
}

// runtimeMode labels how the engine executables are found
func runtimeMode(cfg *types.Config) string {
	switch {
	case cfg.EnableWinExe:
		return "winexe"
	case cfg.VenvDir != "":
		return "venv"
	}
	return "system"
}

// engineReady reports whether the configured bundled executable exists
func engineReady(cfg *types.Config) func() bool {
	return func() bool {
		if !cfg.EnableWinExe {
			return true
		}
		info, err := os.Stat(cfg.WinExePath)
		return err == nil && !info.IsDir()
	}
}
