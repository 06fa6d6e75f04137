package transform

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/buildflow/internal/config"
)

// VersionedName inserts "-<tag>" before the final extension of path:
// "js/app.min.js" becomes "js/app.min-<tag>.js".
func VersionedName(path, tag string) string {
	if tag == "" {
		return path
	}
	dir, file := filepath.Split(path)
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	if stem == "" {
		// dotfiles such as ".htaccess" have no extension to preserve
		return filepath.Join(dir, file+"-"+tag)
	}
	return filepath.Join(dir, stem+"-"+tag+ext)
}

// emitVersioned writes a revision-suffixed copy next to every output when the
// build policy asks for it, and returns outputs extended with the copies.
func emitVersioned(name string, outputs []string, cfg *config.BuildConfig) ([]string, error) {
	if !cfg.RenameWithVersionSuffix || cfg.VersionTag == "" {
		return outputs, nil
	}
	all := make([]string, 0, len(outputs)*2)
	all = append(all, outputs...)
	for _, out := range outputs {
		suffixed := VersionedName(out, cfg.VersionTag)
		if err := copyFile(out, suffixed); err != nil {
			return nil, ioFailure(name, err)
		}
		all = append(all, suffixed)
	}
	return all, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
