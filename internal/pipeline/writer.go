package pipeline

import (
	"os"
	"path/filepath"

	"touch-braille-go/internal/apperr"
)

// WriteOutput replaces path with text atomically: a temp file in the same
// directory is written, synced and renamed over the destination.
func WriteOutput(path, text string) error {
	if path == "" {
		return apperr.New(apperr.KindOutputWrite, "output.write", "no output path")
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return apperr.Wrap(apperr.KindOutputWrite, "output.write", err, "cannot create file in %s", dir)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.Wrap(apperr.KindOutputWrite, "output.write", err, "write %s", path)
	}
	if _, err := tmp.WriteString(text); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.KindOutputWrite, "output.write", err, "write %s", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperr.Wrap(apperr.KindOutputWrite, "output.write", err, "replace %s", path)
	}
	return nil
}
