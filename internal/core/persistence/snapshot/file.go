package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps the latest save at a fixed path. Writes go to a temporary
// file in the same directory which is then renamed over the target, so a
// reader never sees a partial save.
type FileStore struct {
	path       string
	keepBackup bool
}

// NewFileStore creates a store for path. With keepBackup the previous save is
// preserved as path+".bak" on every write.
func NewFileStore(path string, keepBackup bool) *FileStore {
	return &FileStore{path: path, keepBackup: keepBackup}
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) BackupPath() string {
	return f.path + ".bak"
}

// Save atomically replaces the save file with data.
func (f *FileStore) Save(ctx context.Context, data []byte) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp save: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp save: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp save: %w", err)
	}

	if f.keepBackup {
		if err = f.backup(); err != nil {
			return err
		}
	}
	if err = os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace save: %w", err)
	}
	return nil
}

// backup hard-links the current save to a temporary name and renames that
// over the backup. The save itself is never moved, so path always holds a
// complete save. Filesystems without hard links get a copy instead.
func (f *FileStore) backup() error {
	staged := f.BackupPath() + ".tmp"
	_ = os.Remove(staged)

	err := os.Link(f.path, staged)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		if err = copyFile(f.path, staged); err != nil {
			_ = os.Remove(staged)
			return fmt.Errorf("copy backup: %w", err)
		}
	}

	if err = os.Rename(staged, f.BackupPath()); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("rotate backup: %w", err)
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// Load reads the save file. When it is missing but a backup exists, the
// backup is returned. ErrNoSave means neither exists.
func (f *FileStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = os.ReadFile(f.BackupPath())
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSave
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read save: %w", err)
	}
	return data, nil
}
