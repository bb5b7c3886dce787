package mgen

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"path"
	"sync"

	"github.com/bokwoon95/mgen/stacktrace"
)

// If a buffer's capacity exceeds this value, don't put it back in the pool
// because it's too expensive to keep it around in memory.
const maxPoolableBufferCapacity = 1 << 18

var bufPool = sync.Pool{
	New: func() any { return &bytes.Buffer{} },
}

// FS represents the writeable filesystem that a site is generated into.
//
// Every name passed to an FS method is a slash-separated path relative to the
// root of the output tree, as accepted by fs.ValidPath.
type FS interface {
	// WithContext returns a new FS with the given context which applies to all
	// subsequent operations carried out by the filesystem.
	WithContext(context.Context) FS

	// Open opens the named file.
	Open(name string) (fs.File, error)

	// OpenWriter opens an io.WriteCloser that represents a writeable instance
	// of a file. The parent directory must exist, otherwise an error wrapping
	// fs.ErrNotExist is returned. If the file exists it is truncated. The
	// file contents only become visible once Close returns successfully.
	OpenWriter(name string, perm fs.FileMode) (io.WriteCloser, error)

	// ReadDir reads the named directory and returns a list of directory
	// entries sorted by filename.
	ReadDir(name string) ([]fs.DirEntry, error)

	// MkdirAll creates a directory with the given name, along with any
	// necessary parents. It does nothing if the directory already exists.
	MkdirAll(name string, perm fs.FileMode) error

	// Remove removes the named file or empty directory.
	Remove(name string) error

	// RemoveAll removes name and any children it contains. If the path does
	// not exist, RemoveAll returns nil (no error).
	RemoveAll(name string) error

	// Copy copies srcName to destName. If srcName is a directory it is copied
	// recursively. Missing parent directories of destName are created and
	// existing files at the destination are overwritten, so copying twice
	// yields the same tree as copying once.
	Copy(srcName, destName string) error
}

// WriteFile writes the contents of reader into the named file, creating any
// missing parent directories.
func WriteFile(fsys FS, name string, reader io.Reader) error {
	writer, err := fsys.OpenWriter(name, 0644)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return stacktrace.New(err)
		}
		err := fsys.MkdirAll(path.Dir(name), 0755)
		if err != nil {
			return stacktrace.New(err)
		}
		writer, err = fsys.OpenWriter(name, 0644)
		if err != nil {
			return stacktrace.New(err)
		}
	}
	defer writer.Close()
	_, err = io.Copy(writer, reader)
	if err != nil {
		return stacktrace.New(err)
	}
	err = writer.Close()
	if err != nil {
		return stacktrace.New(err)
	}
	return nil
}

// copyFile copies a single file within fsys using OpenWriter, which is the
// fallback Copy implementation shared by the FS implementations.
func copyFile(fsys FS, srcName, destName string) error {
	srcFile, err := fsys.Open(srcName)
	if err != nil {
		return err
	}
	defer srcFile.Close()
	return WriteFile(fsys, destName, srcFile)
}

// copyDir recursively copies the directory srcName into destName, one file
// at a time.
func copyDir(fsys FS, srcName, destName string) error {
	return fs.WalkDir(fsys, srcName, func(filePath string, dirEntry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relativePath := path.Clean("." + filePath[len(srcName):])
		if relativePath == "." {
			relativePath = ""
		}
		if dirEntry.IsDir() {
			err := fsys.MkdirAll(path.Join(destName, relativePath), 0755)
			if err != nil {
				return stacktrace.New(err)
			}
			return nil
		}
		return copyFile(fsys, filePath, path.Join(destName, relativePath))
	})
}

// ContentTypes maps the file extensions that show up in a generated site to
// the Content-Type they should be served with. Extensions not listed here
// are served as application/octet-stream.
var ContentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "text/javascript; charset=utf-8",
	".md":    "text/markdown; charset=utf-8",
	".txt":   "text/plain; charset=utf-8",
	".xml":   "application/xml; charset=utf-8",
	".rss":   "application/rss+xml; charset=utf-8",
	".json":  "application/json",
	".yaml":  "application/yaml",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".png":   "image/png",
	".webp":  "image/webp",
	".gif":   "image/gif",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".pdf":   "application/pdf",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
}
