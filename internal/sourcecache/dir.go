// Package sourcecache keeps uploaded script sources on disk, one folder per
// upload under a folder per mission.
package sourcecache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a source cache rooted at Root.
type Dir struct {
	Root string
}

func (d Dir) missionDir(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid mission name %q", name)
	}
	return filepath.Join(d.Root, name), nil
}

// Clean removes every upload of a mission except keep.
func (d Dir) Clean(ctx context.Context, name, keep string) (removed []string, err error) {
	dir, err := d.missionDir(name)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if keep != "" && e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return removed, fmt.Errorf("remove upload %s/%s: %w", name, e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// Purge removes a mission's whole cache folder.
func (d Dir) Purge(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := d.missionDir(name)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
