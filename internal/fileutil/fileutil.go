package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// WriteUnique writes data into dir under name, or under name_1, name_2, ...
// when the name is taken. It never overwrites and returns the path written.
func WriteUnique(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	for counter := 0; ; counter++ {
		path := filepath.Join(dir, candidateName(name, counter))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}

		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", err
		}
		return path, nil
	}
}

// MoveFile moves a file into destDir without clobbering and returns the new path.
func MoveFile(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}

	destName := findUniqueName(filepath.Base(src), func(name string) bool {
		_, err := os.Stat(filepath.Join(destDir, name))
		return os.IsNotExist(err)
	})

	dest := filepath.Join(destDir, destName)
	if err := moveFileAcrossFS(src, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func candidateName(filename string, counter int) string {
	if counter == 0 {
		return filename
	}
	ext := filepath.Ext(filename)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(filename, ext), counter, ext)
}

// findUniqueName returns the first candidate for which isAvailable is true.
func findUniqueName(filename string, isAvailable func(string) bool) string {
	for counter := 0; ; counter++ {
		if candidate := candidateName(filename, counter); isAvailable(candidate) {
			return candidate
		}
	}
}

// moveFileAcrossFS renames, falling back to copy+delete across filesystems.
func moveFileAcrossFS(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := copyFile(src, dest); err != nil {
			return err
		}
		return os.Remove(src)
	}
	return err
}

func copyFile(src, dest string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	destFile, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, srcFile); err != nil {
		destFile.Close()
		os.Remove(dest)
		return err
	}
	return destFile.Close()
}

// MoveToTrash moves a file to the system trash.
//   - macOS: ~/.Trash
//   - Linux: $XDG_DATA_HOME/Trash (freedesktop.org layout with .trashinfo)
//   - Windows: Recycle Bin
func MoveToTrash(src string) error {
	switch runtime.GOOS {
	case "windows":
		return moveToWindowsTrash(src)
	case "linux":
		return moveToFreedesktopTrash(src, trashHome())
	default:
		trashDir, err := fallbackTrashDir()
		if err != nil {
			return err
		}
		_, err = MoveFile(src, trashDir)
		return err
	}
}

func trashHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "Trash")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "Trash")
}

func fallbackTrashDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(homeDir, ".Trash"), nil
	}
	return filepath.Join(homeDir, "imagecompressor_trash"), nil
}

// moveToFreedesktopTrash writes the .trashinfo record first and removes it
// again if the move fails.
func moveToFreedesktopTrash(src, trashRoot string) error {
	filesDir := filepath.Join(trashRoot, "files")
	infoDir := filepath.Join(trashRoot, "info")
	for _, dir := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create trash directory: %w", err)
		}
	}

	absPath, err := filepath.Abs(src)
	if err != nil {
		return err
	}

	destName := findUniqueName(filepath.Base(src), func(name string) bool {
		_, err1 := os.Stat(filepath.Join(filesDir, name))
		_, err2 := os.Stat(filepath.Join(infoDir, name+".trashinfo"))
		return os.IsNotExist(err1) && os.IsNotExist(err2)
	})

	infoPath := filepath.Join(infoDir, destName+".trashinfo")
	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		absPath, time.Now().Format("2006-01-02T15:04:05"))
	if err := os.WriteFile(infoPath, []byte(info), 0600); err != nil {
		return err
	}

	if err := moveFileAcrossFS(src, filepath.Join(filesDir, destName)); err != nil {
		os.Remove(infoPath)
		return err
	}
	return nil
}
