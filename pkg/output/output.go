// Package output writes generated artifacts into a directory as a unit.
package output

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/carved4/go-dllproxy/pkg/errors"
	"github.com/carved4/go-dllproxy/pkg/proxy"
)

const stagePattern = ".dllproxy-*"

// EnsureDir creates dir and its parents if they are missing.
func EnsureDir(dir string) error {
	fi, err := os.Stat(dir)
	switch {
	case err == nil && !fi.IsDir():
		return errors.New(errors.ErrWrite, dir+": not a directory")
	case err == nil:
		return nil
	case !os.IsNotExist(err):
		return errors.Wrap(errors.ErrWrite, dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.ErrWrite, dir, err)
	}
	return nil
}

// Write places every artifact in dir or none of them. Artifacts are first
// written to a staging directory inside dir and then renamed into place;
// on any failure the files already moved are removed again and files that
// existed before are restored.
func Write(dir string, arts []proxy.Artifact) error {
	for _, a := range arts {
		if a.Name == "" || a.Name != filepath.Base(a.Name) || strings.HasPrefix(a.Name, ".") {
			return errors.Newf(errors.ErrWrite, "invalid artifact name %q", a.Name)
		}
	}

	stage, err := os.MkdirTemp(dir, stagePattern)
	if err != nil {
		return errors.Wrap(errors.ErrWrite, dir, err)
	}
	defer os.RemoveAll(stage)

	for _, a := range arts {
		if err := os.WriteFile(filepath.Join(stage, a.Name), a.Body, 0o644); err != nil {
			return errors.Wrap(errors.ErrWrite, a.Name, err)
		}
	}

	var done []commit
	for _, a := range arts {
		c, err := place(stage, dir, a.Name)
		if err != nil {
			rollback(done)
			return errors.Wrap(errors.ErrWrite, a.Name, err)
		}
		done = append(done, c)
	}
	return nil
}

type commit struct {
	target string
	backup string // previous file at target, moved aside
}

func place(stage, dir, name string) (commit, error) {
	c := commit{target: filepath.Join(dir, name)}
	switch fi, err := os.Lstat(c.target); {
	case err == nil && fi.IsDir():
		return c, &fs.PathError{Op: "write", Path: c.target, Err: fs.ErrExist}
	case err == nil:
		c.backup = filepath.Join(stage, name+".old")
		if err := os.Rename(c.target, c.backup); err != nil {
			return c, err
		}
	case !os.IsNotExist(err):
		return c, err
	}
	if err := os.Rename(filepath.Join(stage, name), c.target); err != nil {
		if c.backup != "" {
			os.Rename(c.backup, c.target)
		}
		return c, err
	}
	return c, nil
}

func rollback(done []commit) {
	for i := len(done) - 1; i >= 0; i-- {
		c := done[i]
		os.Remove(c.target)
		if c.backup != "" {
			os.Rename(c.backup, c.target)
		}
	}
}
