package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/specialistvlad/buildgridgo/internal/pipeline"
)

// Mode selects what a run does with the pipeline.
type Mode string

const (
	// ModeBuild executes the pipeline locally and publishes the result.
	ModeBuild Mode = "build"
	// ModeRender writes a Dockerfile (container) or a provisioning script
	// (appliance) instead of building.
	ModeRender Mode = "render"
	// ModeValidate loads and resolves the pipeline and checks rendered output.
	ModeValidate Mode = "validate"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // hcl file or directory
	ContextDir   string // build context
	WorkDir      string
	OutDir       string
	// Output is where render mode writes; empty means the app's writer.
	Output string

	Mode    Mode
	Target  pipeline.Target
	Compose string
	Vars    map[string]string
	// InheritEnv lists host variables passed to steps besides the defaults.
	InheritEnv []string
	KeepWork   bool
	RunID      string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
}

// DefaultConfig returns the values used when neither a config file nor a
// flag sets a field.
func DefaultConfig() Config {
	return Config{
		ContextDir:  ".",
		WorkDir:     ".buildgrid/work",
		OutDir:      "out",
		Mode:        ModeBuild,
		Target:      pipeline.TargetContainer,
		LogFormat:   "text",
		LogLevel:    "info",
		WorkerCount: 4,
	}
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	var errs []error
	if cfg.PipelinePath == "" {
		errs = append(errs, errors.New("PipelinePath is a required configuration field and cannot be empty"))
	}
	switch cfg.Mode {
	case ModeBuild, ModeRender, ModeValidate:
	default:
		errs = append(errs, fmt.Errorf("invalid mode %q: must be 'build', 'render' or 'validate'", cfg.Mode))
	}
	if _, err := pipeline.ParseTarget(string(cfg.Target)); err != nil {
		errs = append(errs, err)
	}
	if cfg.Mode == ModeBuild && (cfg.WorkDir == "" || cfg.OutDir == "") {
		errs = append(errs, errors.New("work-dir and out-dir are required to build"))
	}
	if cfg.WorkerCount <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", cfg.WorkerCount))
	}
	if _, ok := logLevels[cfg.LogLevel]; !ok {
		errs = append(errs, errors.New("invalid log-level: must be 'debug', 'info', 'warn', or 'error'"))
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, errors.New("invalid log-format: must be 'text' or 'json'"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fileConfig is the TOML form of Config.
type fileConfig struct {
	Pipeline        string            `toml:"pipeline"`
	Context         string            `toml:"context"`
	WorkDir         string            `toml:"work_dir"`
	OutDir          string            `toml:"out_dir"`
	Output          string            `toml:"output"`
	Mode            string            `toml:"mode"`
	Target          string            `toml:"target"`
	Compose         string            `toml:"compose"`
	Vars            map[string]string `toml:"vars"`
	InheritEnv      []string          `toml:"inherit_env"`
	KeepWork        bool              `toml:"keep_work"`
	LogFormat       string            `toml:"log_format"`
	LogLevel        string            `toml:"log_level"`
	HealthcheckPort int               `toml:"healthcheck_port"`
	Workers         int               `toml:"workers"`
}

// LoadFile applies the keys defined in a TOML config file onto cfg. Keys the
// file does not define keep their current value.
func LoadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config file %s: unknown keys %s", path, strings.Join(keys, ", "))
	}

	setString := func(key string, dst *string, v string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(v)
		}
	}
	setString("pipeline", &cfg.PipelinePath, raw.Pipeline)
	setString("context", &cfg.ContextDir, raw.Context)
	setString("work_dir", &cfg.WorkDir, raw.WorkDir)
	setString("out_dir", &cfg.OutDir, raw.OutDir)
	setString("output", &cfg.Output, raw.Output)
	setString("compose", &cfg.Compose, raw.Compose)
	setString("log_format", &cfg.LogFormat, strings.ToLower(raw.LogFormat))
	setString("log_level", &cfg.LogLevel, strings.ToLower(raw.LogLevel))
	if meta.IsDefined("mode") {
		cfg.Mode = Mode(strings.TrimSpace(raw.Mode))
	}
	if meta.IsDefined("target") {
		cfg.Target = pipeline.Target(strings.TrimSpace(raw.Target))
	}
	if meta.IsDefined("vars") {
		if cfg.Vars == nil {
			cfg.Vars = make(map[string]string, len(raw.Vars))
		}
		for k, v := range raw.Vars {
			cfg.Vars[k] = v
		}
	}
	if meta.IsDefined("inherit_env") {
		cfg.InheritEnv = raw.InheritEnv
	}
	if meta.IsDefined("keep_work") {
		cfg.KeepWork = raw.KeepWork
	}
	if meta.IsDefined("healthcheck_port") {
		cfg.HealthcheckPort = raw.HealthcheckPort
	}
	if meta.IsDefined("workers") {
		cfg.WorkerCount = raw.Workers
	}
	return nil
}
