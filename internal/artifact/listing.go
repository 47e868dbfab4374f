package artifact

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
)

// Entry describes one path of a tree.
type Entry struct {
	Path   string        `yaml:"path"`
	Mode   string        `yaml:"mode"`
	Size   int64         `yaml:"size,omitempty"`
	Digest digest.Digest `yaml:"digest,omitempty"`
	Link   string        `yaml:"link,omitempty"`
}

// Listing is a deterministic description of a tree.
type Listing []Entry

// List walks root and describes every path below it. When root is a file
// the listing holds that single file under its base name.
func List(root string) (Listing, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissing, root)
	}
	if !info.IsDir() {
		e, err := describe(root, filepath.Base(root), info)
		if err != nil {
			return nil, err
		}
		return Listing{e}, nil
	}

	var listing Listing
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		e, err := describe(p, filepath.ToSlash(rel), info)
		if err != nil {
			return err
		}
		listing = append(listing, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].Path < listing[j].Path })
	return listing, nil
}

func describe(hostPath, rel string, info fs.FileInfo) (Entry, error) {
	e := Entry{Path: rel, Mode: info.Mode().String()}
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(hostPath)
		if err != nil {
			return Entry{}, err
		}
		e.Link = target
	case info.Mode().IsRegular():
		f, err := os.Open(hostPath)
		if err != nil {
			return Entry{}, err
		}
		defer f.Close()
		d, err := digest.Canonical.FromReader(f)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to digest %s: %w", hostPath, err)
		}
		e.Size = info.Size()
		e.Digest = d
	}
	return e, nil
}

// String renders the canonical text form of the listing.
func (l Listing) String() string {
	var b strings.Builder
	for _, e := range l {
		fmt.Fprintf(&b, "%s %d %s %s", e.Mode, e.Size, e.Digest, e.Path)
		if e.Link != "" {
			fmt.Fprintf(&b, " -> %s", e.Link)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Digest identifies the whole tree.
func (l Listing) Digest() digest.Digest {
	return digest.FromString(l.String())
}

// Prefixed returns a copy of the listing with every path placed below prefix.
func (l Listing) Prefixed(prefix string) Listing {
	out := make(Listing, len(l))
	for i, e := range l {
		e.Path = path.Join(prefix, e.Path)
		out[i] = e
	}
	return out
}

// Overlap returns the non-directory paths present in both listings.
func Overlap(a, b Listing) []string {
	seen := make(map[string]bool, len(a))
	for _, e := range a {
		if !strings.HasPrefix(e.Mode, "d") {
			seen[e.Path] = true
		}
	}
	var shared []string
	for _, e := range b {
		if seen[e.Path] {
			shared = append(shared, e.Path)
		}
	}
	sort.Strings(shared)
	return shared
}

// ListAll lists several trees concurrently. Results keep the order of roots.
func ListAll(ctx context.Context, roots []string, limit int) ([]Listing, error) {
	out := make([]Listing, len(roots))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, root := range roots {
		i, root := i, root
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			l, err := List(root)
			if err != nil {
				return err
			}
			out[i] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
