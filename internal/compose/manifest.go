package compose

import (
	"bytes"
	"fmt"
	"os"

	digest "github.com/opencontainers/go-digest"
	"github.com/specialistvlad/buildgridgo/internal/config"
	"gopkg.in/yaml.v3"
)

// Manifest describes a released composition. It holds no run identifiers or
// timestamps, so two builds of the same inputs write identical manifests.
type Manifest struct {
	Compose    string            `yaml:"compose"`
	Target     string            `yaml:"target"`
	Base       string            `yaml:"base"`
	Entrypoint []string          `yaml:"entrypoint"`
	Cmd        []string          `yaml:"cmd"`
	Workdir    string            `yaml:"workdir,omitempty"`
	Env        []string          `yaml:"env"`
	Copies     []ManifestCopy    `yaml:"copies"`
	Services   []string          `yaml:"services,omitempty"`
	Profile    string            `yaml:"profile,omitempty"`
	Purged     []string          `yaml:"purged,omitempty"`
	Stages     map[string]string `yaml:"stages,omitempty"`
	RootFS     digest.Digest     `yaml:"rootfs"`
	Entries    int               `yaml:"entries"`
}

// ManifestCopy records one applied copy rule.
type ManifestCopy struct {
	From   string        `yaml:"from,omitempty"`
	Source string        `yaml:"source,omitempty"`
	To     string        `yaml:"to"`
	Mode   string        `yaml:"mode,omitempty"`
	Digest digest.Digest `yaml:"digest"`
}

// NewManifest fills the composition-level fields of a manifest.
func NewManifest(c *config.Compose, target string, base string) *Manifest {
	return &Manifest{
		Compose:    c.Name,
		Target:     target,
		Base:       base,
		Entrypoint: c.Entrypoint,
		Cmd:        c.EffectiveCmd(),
		Workdir:    c.Workdir,
		Env:        Env(c),
	}
}

// WriteManifest encodes m as YAML.
func WriteManifest(path string, m *Manifest) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest decodes a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := new(Manifest)
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return m, nil
}
