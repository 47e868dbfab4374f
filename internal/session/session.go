// Package session owns the directories of one pipeline run.
//
// A run gets its own work directory holding one root per base, one root per
// container stage and the step logs. The final artifact is assembled in a
// staging directory inside the output directory and only renamed into place
// by Publish, so a failed or interrupted run never leaves a partial artifact
// where consumers look for it.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/otiai10/copy"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/plan"
)

// ErrEscape reports a container path that does not map below its root.
var ErrEscape = errors.New("path escapes its root")

// Session represents a single pipeline run and manages its directories.
type Session struct {
	RunID      string
	WorkDir    string
	OutDir     string
	ContextDir string
}

// New creates the run-scoped directories below workRoot and outDir.
func New(workRoot, outDir, contextDir, runID string) (*Session, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	s := &Session{
		RunID:      runID,
		WorkDir:    filepath.Join(workRoot, runID),
		OutDir:     outDir,
		ContextDir: contextDir,
	}
	for _, dir := range []string{s.dir("bases"), s.dir("stages"), s.LogDir(), s.stagingParent()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	return s, nil
}

func (s *Session) dir(name string) string {
	return filepath.Join(s.WorkDir, name)
}

func (s *Session) stagingParent() string {
	return filepath.Join(s.OutDir, ".staging-"+s.RunID)
}

// BaseRoot is the filesystem a base provisions into.
func (s *Session) BaseRoot(name string) string {
	return filepath.Join(s.dir("bases"), name)
}

// StageRoot is the private filesystem of a container stage.
func (s *Session) StageRoot(name string) string {
	return filepath.Join(s.dir("stages"), name)
}

// LogDir holds one log file per node.
func (s *Session) LogDir() string {
	return s.dir("logs")
}

// LogPath is the log file of a node.
func (s *Session) LogPath(id nodeid.Address) string {
	return filepath.Join(s.LogDir(), id.String()+".log")
}

// StagingDir is where the final artifact of a composition is assembled.
func (s *Session) StagingDir(compose string) string {
	return filepath.Join(s.stagingParent(), compose)
}

// StagingRoot is the root filesystem inside StagingDir.
func (s *Session) StagingRoot(compose string) string {
	return filepath.Join(s.StagingDir(compose), "rootfs")
}

// ReleaseDir is where a published composition lives.
func (s *Session) ReleaseDir(compose string) string {
	return filepath.Join(s.OutDir, compose)
}

// HostPath maps an absolute container path into root.
func HostPath(root, p string) (string, error) {
	if !path.IsAbs(p) || path.Clean(p) != p {
		return "", fmt.Errorf("%w: %q is not a clean absolute path", ErrEscape, p)
	}
	return filepath.Join(root, filepath.FromSlash(p)), nil
}

// Seed fills dst with a copy of src. Symlinks are copied as links.
func (s *Session) Seed(ctx context.Context, dst, src string) error {
	ctxlog.FromContext(ctx).Debug("Seeding root.", "from", src, "to", dst)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("failed to create root: %w", err)
	}
	if err := copy.Copy(src, dst, copyOptions()); err != nil {
		return fmt.Errorf("failed to seed %s from %s: %w", dst, src, err)
	}
	return nil
}

// CopyInput copies a build context path into root.
func (s *Session) CopyInput(root string, in plan.Input) error {
	if !plan.IsLocal(in.Source) {
		return fmt.Errorf("%w: input %q is outside the build context", ErrEscape, in.Source)
	}
	src := filepath.Join(s.ContextDir, filepath.FromSlash(in.Source))
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("input %q: %w", in.Source, err)
	}
	dst, err := HostPath(root, in.Dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := copy.Copy(src, dst, copyOptions()); err != nil {
		return fmt.Errorf("failed to copy input %q to %s: %w", in.Source, in.Dest, err)
	}
	return nil
}

// CopyTree copies a host path to another host path, keeping modes and links.
func CopyTree(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return copy.Copy(src, dst, copyOptions())
}

func copyOptions() copy.Options {
	return copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Shallow },
	}
}

// Publish atomically moves the staged composition into the output
// directory, replacing a previous release of the same name.
func (s *Session) Publish(ctx context.Context, compose string) (string, error) {
	staging := s.StagingDir(compose)
	release := s.ReleaseDir(compose)
	if _, err := os.Stat(staging); err != nil {
		return "", fmt.Errorf("nothing staged for %s: %w", compose, err)
	}

	previous := ""
	if _, err := os.Lstat(release); err == nil {
		previous = filepath.Join(s.stagingParent(), compose+".previous")
		if err := os.Rename(release, previous); err != nil {
			return "", fmt.Errorf("failed to move previous release aside: %w", err)
		}
	}
	if err := os.Rename(staging, release); err != nil {
		if previous != "" {
			_ = os.Rename(previous, release)
		}
		return "", fmt.Errorf("failed to publish %s: %w", compose, err)
	}
	if previous != "" {
		if err := os.RemoveAll(previous); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to remove previous release.", "path", previous, "error", err)
		}
	}
	ctxlog.FromContext(ctx).Info("🚀 Published composition.", "compose", compose, "path", release)
	return release, s.Discard()
}

// Discard removes everything staged by this run.
func (s *Session) Discard() error {
	if err := os.RemoveAll(s.stagingParent()); err != nil {
		return fmt.Errorf("failed to discard staging: %w", err)
	}
	return nil
}

// Close releases the run's filesystems. Logs are always kept; roots are kept
// when keepWork is set.
func (s *Session) Close(ctx context.Context, keepWork bool) error {
	logger := ctxlog.FromContext(ctx)
	errs := []error{s.Discard()}
	if !keepWork {
		for _, dir := range []string{s.dir("bases"), s.dir("stages")} {
			errs = append(errs, os.RemoveAll(dir))
		}
	}
	logger.Debug("Session closed.", "work_dir", s.WorkDir, "keep_work", keepWork)
	return errors.Join(errs...)
}
