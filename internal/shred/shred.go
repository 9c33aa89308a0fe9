// Package shred overwrites files with random data before removing them.
//
// Modern SSDs with wear leveling may still retain data; this is a best effort
// on top of excluding the secrets directory from version control.
package shred

import (
	"crypto/rand"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// MaxPasses bounds the number of overwrite passes.
const MaxPasses = 10

// File overwrites path passes times and removes it.
func File(path string, passes int) error {
	if passes < 1 || passes > MaxPasses {
		return fmt.Errorf("passes must be between 1 and %d, got %d", MaxPasses, passes)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	size := info.Size()
	if size > 0 {
		if err := overwrite(path, size, passes); err != nil {
			return fmt.Errorf("failed to overwrite %s: %w", path, err)
		}
	}

	return os.Remove(path)
}

// Dir shreds every regular file below dir, then removes dir. A missing dir is
// not an error. It returns the shredded files.
func Dir(dir string, passes int) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	for _, file := range files {
		if err := File(file, passes); err != nil {
			return nil, err
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	return files, nil
}

func overwrite(path string, size int64, passes int) error {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	for pass := 1; pass <= passes; pass++ {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := writeRandom(file, size); err != nil {
			return err
		}
		if err := file.Sync(); err != nil {
			return err
		}
	}
	return file.Close()
}

func writeRandom(w io.Writer, size int64) error {
	const bufSize = 64 * 1024

	buf := make([]byte, bufSize)
	remaining := size

	for remaining > 0 {
		n := bufSize
		if remaining < int64(bufSize) {
			n = int(remaining)
		}
		if _, err := rand.Read(buf[:n]); err != nil {
			return err
		}
		if _, err := w.Write(buf[:n]); err != nil {
			return err
		}
		remaining -= int64(n)
	}
	return nil
}
