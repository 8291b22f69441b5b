package updater

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/refit/pkg/fsutil"
	"github.com/cuemby/refit/pkg/types"
)

// FaultInjector is consulted before each file is replaced; a non-nil error
// fails the apply at that file
type FaultInjector func(rel string) error

// applier copies a staged release over the live tree file by file. The live
// tree is never removed as a whole and only directories the apply itself
// created are ever deleted.
type applier struct {
	root     string
	preserve []string
	fault    FaultInjector

	// created lists live files that did not exist before the apply
	created []string
	// createdDirs lists the directories it created, parents first
	createdDirs []string
}

func newApplier(root string, preserve []string, fault FaultInjector) *applier {
	a := &applier{root: root, fault: fault}
	for _, p := range preserve {
		if p == "" {
			continue
		}
		if filepath.IsAbs(p) {
			rel, err := filepath.Rel(root, p)
			if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
				continue
			}
			p = rel
		}
		a.preserve = append(a.preserve, filepath.ToSlash(filepath.Clean(p)))
	}
	return a
}

// preserved reports whether rel lies under a preserved path
func (a *applier) preserved(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range a.preserve {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// apply replaces every file of the staged tree in the live tree and returns
// the number of files written. Preserved paths keep their live content when
// it exists.
func (a *applier) apply(staged string) (int, error) {
	written := 0
	err := filepath.WalkDir(staged, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staged, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		live := filepath.Join(a.root, rel)

		_, lerr := os.Lstat(live)
		isNew := errors.Is(lerr, fs.ErrNotExist)

		if !d.IsDir() && !isNew && a.preserved(rel) {
			return nil
		}

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(live, info.Mode().Perm()|0700); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", rel, err)
			}
			if isNew {
				a.createdDirs = append(a.createdDirs, live)
			}
			return nil

		case d.Type()&fs.ModeSymlink != 0:
			if err := a.inject(rel); err != nil {
				return err
			}
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := fsutil.RemoveFile(live); err != nil {
				return err
			}
			if err := os.Symlink(target, live); err != nil {
				return fmt.Errorf("failed to link %s: %w", rel, err)
			}

		case d.Type().IsRegular():
			if err := a.inject(rel); err != nil {
				return err
			}
			if err := fsutil.ReplaceFile(path, live); err != nil {
				return err
			}

		default:
			return nil
		}

		if isNew {
			a.created = append(a.created, live)
		}
		written++
		return nil
	})
	if err != nil {
		return written, types.NewError(types.ErrApplyFailed, err, "failed to apply release after %d files", written)
	}
	return written, nil
}

func (a *applier) inject(rel string) error {
	if a.fault == nil {
		return nil
	}
	return a.fault(filepath.ToSlash(rel))
}

// removeCreated deletes the files the apply added, then the directories it
// created, deepest first. A restored backup does not know about them.
// Directories that still hold other content are kept.
func (a *applier) removeCreated() error {
	for i := len(a.created) - 1; i >= 0; i-- {
		if err := fsutil.RemoveFile(a.created[i]); err != nil {
			return err
		}
	}
	for i := len(a.createdDirs) - 1; i >= 0; i-- {
		if fsutil.IsEmptyDir(a.createdDirs[i]) {
			if err := os.Remove(a.createdDirs[i]); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to remove directory %s: %w", a.createdDirs[i], err)
			}
		}
	}
	return nil
}
