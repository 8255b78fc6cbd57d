package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"p2pmsg/internal/domain"
)

// SaveAttachment writes data under files/<peer fingerprint>/<sanitized name>
// and returns the path it was written to. name is sanitized so the result
// can never escape the attachments root (spec §4.G).
func (s *Store) SaveAttachment(peer domain.Fingerprint, name string, data []byte) (string, error) {
	clean, err := sanitizeFilename(name)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.filesDir, peer.String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}

	target := filepath.Join(dir, clean)
	root, err := filepath.Abs(s.filesDir)
	if err != nil {
		return "", &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}
	if !strings.HasPrefix(absTarget, root+string(filepath.Separator)) {
		return "", &domain.UserError{Kind: domain.UserInvalidFilename, Err: fmt.Errorf("%q escapes attachments root", name)}
	}

	if err := writeFileAtomic(target, data, 0o600); err != nil {
		return "", &domain.StorageError{Kind: domain.StorageIOError, Err: err}
	}
	return target, nil
}

// sanitizeFilename strips directory components and rejects names that are
// empty or reduce to "." or "..".
func sanitizeFilename(name string) (string, error) {
	base := filepath.Base(filepath.Clean(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", &domain.UserError{Kind: domain.UserInvalidFilename, Err: fmt.Errorf("invalid attachment name %q", name)}
	}
	return base, nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
