package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/specialistvlad/buildgridgo/internal/app"
	"github.com/specialistvlad/buildgridgo/internal/pipeline"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// varFlags collects repeated -var name=value flags.
type varFlags map[string]string

func (v varFlags) String() string {
	pairs := make([]string, 0, len(v))
	for k, val := range v {
		pairs = append(pairs, k+"="+val)
	}
	return strings.Join(pairs, ",")
}

func (v varFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("expected name=value, got %q", s)
	}
	v[strings.TrimSpace(name)] = value
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// Values come from the defaults, then the -config file, then every flag set
// explicitly on the command line.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("buildgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
BuildGridGo - A declarative, concurrent build pipeline for GPU node images.

Usage:
  buildgridgo [options] [PIPELINE_PATH]

Arguments:
  PIPELINE_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	def := app.DefaultConfig()
	configFlag := flagSet.String("config", "", "Path to a TOML config file. Flags override its values.")
	pipelineFlag := flagSet.String("pipeline", "", "Path to the pipeline file or directory.")
	pFlag := flagSet.String("p", "", "Path to the pipeline file or directory (shorthand).")
	modeFlag := flagSet.String("mode", string(def.Mode), "What to do: 'build', 'render' or 'validate'.")
	targetFlag := flagSet.String("target", string(def.Target), "Final assembly: 'container' or 'appliance'.")
	composeFlag := flagSet.String("compose", "", "Composition to build. Optional when the pipeline declares one.")
	contextFlag := flagSet.String("context", def.ContextDir, "Build context directory.")
	workDirFlag := flagSet.String("work-dir", def.WorkDir, "Directory for run roots and logs.")
	outDirFlag := flagSet.String("out-dir", def.OutDir, "Directory releases are published to.")
	outputFlag := flagSet.String("o", "", "Render mode: write to this file instead of stdout.")
	workersFlag := flagSet.Int("workers", def.WorkerCount, "Number of concurrent workers for the executor.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", def.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", def.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	keepWorkFlag := flagSet.Bool("keep-work", false, "Keep base and stage roots after the run.")
	vars := varFlags{}
	flagSet.Var(vars, "var", "Set a pipeline variable as name=value. Repeatable.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	cfg := def
	if *configFlag != "" {
		if err := app.LoadFile(*configFlag, &cfg); err != nil {
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		slog.Debug("Config file applied.", "path", *configFlag)
	}

	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pipeline":
			cfg.PipelinePath = *pipelineFlag
		case "p":
			cfg.PipelinePath = *pFlag
		case "mode":
			cfg.Mode = app.Mode(strings.ToLower(*modeFlag))
		case "target":
			cfg.Target = pipeline.Target(strings.ToLower(*targetFlag))
		case "compose":
			cfg.Compose = *composeFlag
		case "context":
			cfg.ContextDir = *contextFlag
		case "work-dir":
			cfg.WorkDir = *workDirFlag
		case "out-dir":
			cfg.OutDir = *outDirFlag
		case "o":
			cfg.Output = *outputFlag
		case "workers":
			cfg.WorkerCount = *workersFlag
		case "healthcheck-port":
			cfg.HealthcheckPort = *healthPortFlag
		case "log-format":
			cfg.LogFormat = strings.ToLower(*logFormatFlag)
		case "log-level":
			cfg.LogLevel = strings.ToLower(*logLevelFlag)
		case "keep-work":
			cfg.KeepWork = *keepWorkFlag
		case "var":
			if cfg.Vars == nil {
				cfg.Vars = make(map[string]string, len(vars))
			}
			for k, v := range vars {
				cfg.Vars[k] = v
			}
		}
	})
	if flagSet.NArg() > 0 {
		cfg.PipelinePath = flagSet.Arg(0)
	}
	slog.Debug("Pipeline path determined.", "path", cfg.PipelinePath)

	if cfg.PipelinePath == "" {
		slog.Debug("No pipeline path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
