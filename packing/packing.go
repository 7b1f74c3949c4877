// The packing package turns a dataset folder (or a list of files) into a
// single ZIP archive ready for deposition, computing MD5 checksums along the
// way and describing the packed files in a Frictionless data package
// manifest.
package packing

import (
	"archive/zip"
	"crypto/md5"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/frictionlessdata/datapackage-go/datapackage"
	"github.com/frictionlessdata/datapackage-go/validator"
)

// a file stored in a packed archive
type PackedFile struct {
	// archive-relative name (forward slashes)
	Name string
	// original path on disk
	Path string
	// size in bytes
	Size int64
	// MD5 checksum (hex)
	MD5 string
}

// Checksum computes the MD5 checksum of the file at the given path.
func Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := md5.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// ArchiveFolder packs every regular file under the given folder into a ZIP
// archive at archivePath, preserving the folder-relative layout. Files are
// packed in sorted path order so the same folder always produces the same
// archive structure.
func ArchiveFolder(folder, archivePath string) ([]PackedFile, error) {
	var paths []string
	err := filepath.WalkDir(folder, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, &EmptyFolderError{Folder: folder}
	}
	sort.Strings(paths)

	names := make([]string, len(paths))
	for i, path := range paths {
		relative, err := filepath.Rel(folder, path)
		if err != nil {
			return nil, err
		}
		names[i] = filepath.ToSlash(relative)
	}
	return archive(paths, names, archivePath)
}

// ArchiveFiles packs the given files into a ZIP archive at archivePath under
// their base names.
func ArchiveFiles(paths []string, archivePath string) ([]PackedFile, error) {
	names := make([]string, len(paths))
	for i, path := range paths {
		names[i] = filepath.Base(path)
	}
	return archive(paths, names, archivePath)
}

// writes the given files into a ZIP archive under the given archive-relative
// names, checksumming each file as it streams in
func archive(paths, names []string, archivePath string) ([]PackedFile, error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	writer := zip.NewWriter(out)

	packed := make([]PackedFile, 0, len(paths))
	for i, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, err
		}
		slog.Debug(fmt.Sprintf("Packing %s (%d bytes)", names[i], info.Size()))
		entry, err := writer.Create(names[i])
		if err != nil {
			file.Close()
			return nil, err
		}
		hash := md5.New()
		if _, err := io.Copy(io.MultiWriter(entry, hash), file); err != nil {
			file.Close()
			return nil, err
		}
		file.Close()
		packed = append(packed, PackedFile{
			Name: names[i],
			Path: path,
			Size: info.Size(),
			MD5:  fmt.Sprintf("%x", hash.Sum(nil)),
		})
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return packed, nil
}

// Manifest builds a Frictionless data package describing the packed files.
func Manifest(name string, files []PackedFile) (*datapackage.Package, error) {
	resources := make([]any, 0, len(files))
	for _, file := range files {
		resources = append(resources, map[string]any{
			"name":  resourceName(file.Name),
			"path":  file.Name,
			"bytes": file.Size,
			"hash":  file.MD5,
		})
	}
	descriptor := map[string]any{
		"name":      resourceName(name),
		"resources": resources,
		"created":   time.Now().Format(time.RFC3339),
		"profile":   "data-package",
		"keywords":  []any{"electron diffraction", "deposition"},
	}
	return datapackage.New(descriptor, ".", validator.InMemoryLoader())
}

// data package names may only use lowercase alphanumerics, '.', '-', and '_'
func resourceName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, name)
	if mapped == "" {
		mapped = "_"
	}
	return mapped
}
