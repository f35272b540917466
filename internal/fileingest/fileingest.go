package fileingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ImageExtensions is the allow-list of image extensions picked up from a watch folder.
var ImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// FileMeta holds metadata about a file to be ingested.
type FileMeta struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// ReadFileContent reads the entire content of the file at the given path.
func ReadFileContent(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// IsHidden reports whether a base name is a dotfile.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// IsImageFile reports whether name carries an allow-listed image extension.
func IsImageFile(name string) bool {
	_, ok := ImageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// MimeType maps a file name to a content type by extension.
func MimeType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

/*
ListEligibleImages returns the images in dir that are ready to be submitted:
regular files with an allow-listed extension, not hidden and not empty.

The directory is not walked recursively. A missing directory yields no files.
Results are ordered by name.
*/
func ListEligibleImages(dir string) ([]FileMeta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	var files []FileMeta
	for _, entry := range entries {
		name := entry.Name()
		if IsHidden(name) || !IsImageFile(name) {
			continue
		}
		meta, metaErr := ExtractFileMeta(filepath.Join(dir, name))
		if metaErr != nil {
			// Vanished or unreadable between ReadDir and Stat; skip it.
			continue
		}
		if meta.Size <= 0 {
			continue
		}
		files = append(files, meta)
	}
	return files, nil
}

/*
ExtractFileMeta extracts metadata from a given file path.

Returns an error when the path does not exist or is not a regular file.
*/
func ExtractFileMeta(path string) (FileMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileMeta{}, err
	}
	if !info.Mode().IsRegular() {
		return FileMeta{}, fmt.Errorf("%s is not a regular file", path)
	}
	return FileMeta{
		Path:    path,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// IsRegularFile reports whether path exists and is a regular file.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// EnsureDir creates dir (and parents) if needed. It reports whether the directory was created.
func EnsureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("%s exists and is not a directory", dir)
		}
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create dir %s: %w", dir, err)
	}
	return true, nil
}

// MoveFile renames src to dst, falling back to copy and remove across devices.
func MoveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("copy %s across devices: %w", src, err)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place,
// so readers see either the old or the new content, never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file '%s': %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file '%s': %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file '%s': %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s into place: %w", tmpName, err)
	}
	return nil
}
