package mgen

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bokwoon95/mgen/stacktrace"
)

// DirectoryFSConfig holds the parameters needed to construct a DirectoryFS.
type DirectoryFSConfig struct {
	// (Required) RootDir is the directory the site is generated into.
	RootDir string

	// TempDir holds pages while they are being written. Defaults to
	// os.TempDir().
	TempDir string
}

// DirectoryFS writes the output tree into a local directory. Names use
// forward slashes on every platform.
type DirectoryFS struct {
	// RootDir is the absolute, slash separated output directory.
	RootDir string

	// TempDir is the absolute, slash separated directory pages are written
	// into before being renamed into RootDir. It is unused on Windows, where
	// renaming a freshly closed file intermittently fails with "Access is
	// denied".
	TempDir string

	ctx context.Context
}

// NewDirectoryFS constructs a new DirectoryFS. RootDir need not exist yet.
func NewDirectoryFS(config DirectoryFSConfig) (*DirectoryFS, error) {
	rootDir, err := filepath.Abs(config.RootDir)
	if err != nil {
		return nil, err
	}
	tempDir := config.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	tempDir, err = filepath.Abs(tempDir)
	if err != nil {
		return nil, err
	}
	return &DirectoryFS{
		RootDir: filepath.ToSlash(rootDir),
		TempDir: filepath.ToSlash(tempDir),
		ctx:     context.Background(),
	}, nil
}

// As writes the current DirectoryFS into the target if it is a valid
// DirectoryFS pointer.
func (fsys *DirectoryFS) As(target any) bool {
	switch target := target.(type) {
	case *DirectoryFS:
		*target = *fsys
		return true
	case **DirectoryFS:
		*target = fsys
		return true
	default:
		return false
	}
}

// WithContext returns a new FS with the given context.
func (fsys *DirectoryFS) WithContext(ctx context.Context) FS {
	return &DirectoryFS{
		RootDir: fsys.RootDir,
		TempDir: fsys.TempDir,
		ctx:     ctx,
	}
}

// local checks that the context is live and that name is a valid output
// path, then returns the path of name on disk.
func (fsys *DirectoryFS) local(op, name string) (string, error) {
	err := fsys.ctx.Err()
	if err != nil {
		return "", stacktrace.New(err)
	}
	if !fs.ValidPath(name) || strings.Contains(name, "\\") {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return path.Join(fsys.RootDir, name), nil
}

// Open implements the Open FS operation for DirectoryFS.
func (fsys *DirectoryFS) Open(name string) (fs.File, error) {
	localPath, err := fsys.local("open", name)
	if err != nil {
		return nil, err
	}
	return os.Open(localPath)
}

// Stat implements the fs.StatFS interface.
func (fsys *DirectoryFS) Stat(name string) (fs.FileInfo, error) {
	localPath, err := fsys.local("stat", name)
	if err != nil {
		return nil, err
	}
	return os.Stat(localPath)
}

// OpenWriter implements the OpenWriter FS operation for DirectoryFS. Except
// on Windows the page is written into TempDir and renamed over name on Close,
// so a web server serving RootDir never reads a partial page.
func (fsys *DirectoryFS) OpenWriter(name string, _ fs.FileMode) (io.WriteCloser, error) {
	localPath, err := fsys.local("openwriter", name)
	if err != nil {
		return nil, err
	}
	notExist := &fs.PathError{Op: "openwriter", Path: name, Err: fs.ErrNotExist}
	if runtime.GOOS == "windows" {
		file, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, notExist
			}
			return nil, stacktrace.New(err)
		}
		return file, nil
	}
	parentInfo, err := os.Stat(path.Dir(localPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notExist
		}
		return nil, stacktrace.New(err)
	}
	if !parentInfo.IsDir() {
		return nil, notExist
	}
	tempFile, err := os.CreateTemp(fsys.TempDir, "mgen-temp-*"+path.Ext(name))
	if err != nil {
		return nil, stacktrace.New(err)
	}
	// CreateTemp uses 0600, which a web server running as another user could
	// not read once the page is renamed into place.
	err = tempFile.Chmod(0644)
	if err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return nil, stacktrace.New(err)
	}
	return &directoryUpload{
		ctx:      fsys.ctx,
		file:     tempFile,
		destPath: localPath,
	}, nil
}

// directoryUpload is a page being written through a DirectoryFS.
type directoryUpload struct {
	ctx      context.Context
	file     *os.File
	destPath string
	failed   bool
}

// ReadFrom implements io.ReaderFrom.
func (upload *directoryUpload) ReadFrom(r io.Reader) (int64, error) {
	err := upload.ctx.Err()
	if err != nil {
		upload.failed = true
		return 0, stacktrace.New(err)
	}
	n, err := upload.file.ReadFrom(r)
	if err != nil {
		upload.failed = true
		return n, stacktrace.New(err)
	}
	return n, nil
}

// Write implements io.Writer.
func (upload *directoryUpload) Write(p []byte) (int, error) {
	err := upload.ctx.Err()
	if err != nil {
		upload.failed = true
		return 0, stacktrace.New(err)
	}
	n, err := upload.file.Write(p)
	if err != nil {
		upload.failed = true
		return n, stacktrace.New(err)
	}
	return n, nil
}

// Close moves the page over its destination. A failed write is discarded and
// leaves the destination untouched. Calling Close more than once is a no-op.
func (upload *directoryUpload) Close() error {
	if upload.file == nil {
		return nil
	}
	file := upload.file
	upload.file = nil
	defer os.Remove(file.Name())
	err := file.Close()
	if err != nil {
		return stacktrace.New(err)
	}
	if upload.failed {
		return nil
	}
	err = os.Rename(file.Name(), upload.destPath)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return stacktrace.New(err)
	}
	// TempDir is on another device than RootDir, /tmp as a tmpfs being the
	// usual case.
	err = replaceFile(upload.destPath, file.Name())
	if err != nil {
		return stacktrace.New(err)
	}
	return nil
}

// replaceFile overwrites destPath with the contents of srcPath.
func replaceFile(destPath, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()
	dest, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer dest.Close()
	_, err = io.Copy(dest, src)
	if err != nil {
		return err
	}
	return dest.Close()
}

// ReadDir implements the ReadDir FS operation for DirectoryFS.
func (fsys *DirectoryFS) ReadDir(name string) ([]fs.DirEntry, error) {
	localPath, err := fsys.local("readdir", name)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(localPath)
}

// MkdirAll implements the MkdirAll FS operation for DirectoryFS.
func (fsys *DirectoryFS) MkdirAll(name string, _ fs.FileMode) error {
	localPath, err := fsys.local("mkdirall", name)
	if err != nil {
		return err
	}
	return os.MkdirAll(localPath, 0755)
}

// Remove implements the Remove FS operation for DirectoryFS.
func (fsys *DirectoryFS) Remove(name string) error {
	localPath, err := fsys.local("remove", name)
	if err != nil {
		return err
	}
	return os.Remove(localPath)
}

// RemoveAll implements the RemoveAll FS operation for DirectoryFS. Removing
// "." empties RootDir but keeps the directory, which may be a mount point.
func (fsys *DirectoryFS) RemoveAll(name string) error {
	localPath, err := fsys.local("removeall", name)
	if err != nil {
		return err
	}
	if name != "." {
		return os.RemoveAll(localPath)
	}
	dirEntries, err := os.ReadDir(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return stacktrace.New(err)
	}
	for _, dirEntry := range dirEntries {
		err := os.RemoveAll(path.Join(localPath, dirEntry.Name()))
		if err != nil {
			return stacktrace.New(err)
		}
	}
	return nil
}

// Copy implements the Copy FS operation for DirectoryFS.
func (fsys *DirectoryFS) Copy(srcName, destName string) error {
	_, err := fsys.local("copy", destName)
	if err != nil {
		return err
	}
	fileInfo, err := fsys.Stat(srcName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &fs.PathError{Op: "copy", Path: srcName, Err: fs.ErrNotExist}
		}
		return err
	}
	if fileInfo.IsDir() {
		return copyDir(fsys, srcName, destName)
	}
	return copyFile(fsys, srcName, destName)
}
