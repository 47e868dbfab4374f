package compose

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/specialistvlad/buildgridgo/internal/config"
)

const (
	unitDir         = "/etc/systemd/system"
	wantedBy        = "multi-user.target"
	defaultRestart  = "always"
	defaultUser     = "root"
	restartInterval = "5"
)

// UnitName is the systemd unit file name of a service.
func UnitName(svc *config.Service) string {
	return svc.Name + ".service"
}

// ServiceUnit returns the unit options that run the composition's launcher
// as a persistent service.
func ServiceUnit(c *config.Compose, svc *config.Service) []*unit.UnitOption {
	args := svc.Args
	if len(args) == 0 {
		args = c.EffectiveCmd()
	}
	description := svc.Description
	if description == "" {
		description = c.Name
	}
	user := svc.User
	if user == "" {
		user = defaultUser
	}
	restart := svc.Restart
	if restart == "" {
		restart = defaultRestart
	}
	workdir := svc.WorkingDirectory
	if workdir == "" {
		workdir = c.Workdir
	}

	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", description),
		unit.NewUnitOption("Unit", "After", "network-online.target"),
		unit.NewUnitOption("Unit", "Wants", "network-online.target"),
		unit.NewUnitOption("Service", "Type", "simple"),
		unit.NewUnitOption("Service", "User", user),
	}
	if workdir != "" {
		opts = append(opts, unit.NewUnitOption("Service", "WorkingDirectory", workdir))
	}
	for _, kv := range Env(c) {
		opts = append(opts, unit.NewUnitOption("Service", "Environment", quoteUnitWord(kv)))
	}
	if ld := libraryPath(c); ld != "" {
		opts = append(opts, unit.NewUnitOption("Service", "Environment", quoteUnitWord("LD_LIBRARY_PATH="+ld)))
	}
	opts = append(opts,
		unit.NewUnitOption("Service", "ExecStart", execLine(append(append([]string{}, c.Entrypoint...), args...))),
		unit.NewUnitOption("Service", "Restart", restart),
		unit.NewUnitOption("Service", "RestartSec", restartInterval),
		unit.NewUnitOption("Install", "WantedBy", wantedBy),
	)
	return opts
}

// InstallService writes the unit file below root and enables it the way
// `systemctl enable` does offline: a symlink in the wants directory of the
// target. It returns the container path of the unit.
func InstallService(root string, c *config.Compose, svc *config.Service) (string, error) {
	name := UnitName(svc)
	unitPath := path.Join(unitDir, name)

	dir := filepath.Join(root, filepath.FromSlash(unitDir))
	link := filepath.Join(root, filepath.FromSlash(WantsLink(svc)))
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return "", fmt.Errorf("failed to create unit directory: %w", err)
	}
	content, err := io.ReadAll(unit.Serialize(ServiceUnit(c, svc)))
	if err != nil {
		return "", fmt.Errorf("failed to serialize unit %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write unit %s: %w", name, err)
	}

	if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	if err := os.Symlink(unitPath, link); err != nil {
		return "", fmt.Errorf("failed to enable unit %s: %w", name, err)
	}
	return unitPath, nil
}

// WantsLink is the container path of the enablement symlink of a service.
func WantsLink(svc *config.Service) string {
	return path.Join(unitDir, wantedBy+".wants", UnitName(svc))
}

func libraryPath(c *config.Compose) string {
	if c.Appliance == nil {
		return ""
	}
	return strings.Join(c.Appliance.LibraryPath, ":")
}

func execLine(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = quoteUnitWord(w)
	}
	return strings.Join(quoted, " ")
}

// quoteUnitWord quotes a word for a systemd command line or assignment.
func quoteUnitWord(w string) string {
	if w != "" && !strings.ContainsAny(w, " \t\"'\\") {
		return w
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(w) + `"`
}
