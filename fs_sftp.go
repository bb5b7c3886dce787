package mgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bokwoon95/mgen/stacktrace"
	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// sftpTempPrefix marks the files an SFTPFS uploads into before renaming them
// into place. They are hidden from ReadDir.
const sftpTempPrefix = ".mgen-temp-"

// SFTPFSConfig holds the parameters needed to construct a SFTPFS.
type SFTPFSConfig struct {
	// (Required) NewSSHClient dials the server. It is called again whenever
	// the previous connection has dropped.
	NewSSHClient func() (*ssh.Client, error)

	// (Required) RootDir is the absolute directory on the server that the
	// site is generated into.
	RootDir string

	// TempDir is the absolute directory on the server that files are
	// uploaded into before being renamed into RootDir. Defaults to RootDir so
	// that the rename stays on one filesystem.
	TempDir string
}

// SFTPFS writes the output tree into a directory on a remote server over
// SFTP. Every operation shares one connection, which is redialed if the
// server drops it.
type SFTPFS struct {
	// RootDir is the absolute output directory on the server.
	RootDir string

	// TempDir is the absolute upload directory on the server.
	TempDir string

	conn *sftpConn
	ctx  context.Context
}

// NewSFTPFS constructs a new SFTPFS and dials the server once so that a bad
// address or credential fails the run before any page is rendered.
func NewSFTPFS(config SFTPFSConfig) (*SFTPFS, error) {
	if config.NewSSHClient == nil {
		return nil, fmt.Errorf("NewSSHClient cannot be nil")
	}
	newSSHClient := config.NewSSHClient
	return newSFTPFS(config.RootDir, config.TempDir, func() (*sftp.Client, error) {
		sshClient, err := newSSHClient()
		if err != nil {
			return nil, err
		}
		sftpClient, err := sftp.NewClient(sshClient)
		if err != nil {
			sshClient.Close()
			return nil, stacktrace.New(err)
		}
		go func() {
			// sftp.Client does not own the SSH connection, release it once
			// the session ends for any reason.
			_ = sftpClient.Wait()
			sshClient.Close()
		}()
		return sftpClient, nil
	})
}

// newSFTPFS constructs an SFTPFS on top of any dial function, which lets an
// in-process server stand in for SSH.
func newSFTPFS(rootDir, tempDir string, dial func() (*sftp.Client, error)) (*SFTPFS, error) {
	rootDir = filepath.ToSlash(rootDir)
	if rootDir == "" {
		return nil, fmt.Errorf("rootDir cannot be empty")
	}
	if !strings.HasPrefix(rootDir, "/") {
		return nil, fmt.Errorf("rootDir %q is not an absolute path", rootDir)
	}
	tempDir = filepath.ToSlash(tempDir)
	if tempDir == "" {
		tempDir = rootDir
	} else if !strings.HasPrefix(tempDir, "/") {
		return nil, fmt.Errorf("tempDir %q is not an absolute path", tempDir)
	}
	fsys := &SFTPFS{
		RootDir: path.Clean(rootDir),
		TempDir: path.Clean(tempDir),
		conn:    &sftpConn{dial: dial},
		ctx:     context.Background(),
	}
	_, err := fsys.conn.client()
	if err != nil {
		return nil, err
	}
	return fsys, nil
}

// As writes the current SFTPFS into the target if it is a valid SFTPFS
// pointer.
func (fsys *SFTPFS) As(target any) bool {
	switch target := target.(type) {
	case *SFTPFS:
		*target = *fsys
		return true
	case **SFTPFS:
		*target = fsys
		return true
	default:
		return false
	}
}

// WithContext returns a new FS with the given context. The connection is
// shared with the original.
func (fsys *SFTPFS) WithContext(ctx context.Context) FS {
	return &SFTPFS{
		RootDir: fsys.RootDir,
		TempDir: fsys.TempDir,
		conn:    fsys.conn,
		ctx:     ctx,
	}
}

// remote checks that the context is live and that name is a valid output
// path, then returns the connection and the absolute server path of name.
func (fsys *SFTPFS) remote(op, name string) (*sftp.Client, string, error) {
	err := fsys.ctx.Err()
	if err != nil {
		return nil, "", stacktrace.New(err)
	}
	if !fs.ValidPath(name) || strings.Contains(name, "\\") {
		return nil, "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	client, err := fsys.conn.client()
	if err != nil {
		return nil, "", err
	}
	return client, path.Join(fsys.RootDir, name), nil
}

// Open implements the Open FS operation for SFTPFS.
func (fsys *SFTPFS) Open(name string) (fs.File, error) {
	client, remotePath, err := fsys.remote("open", name)
	if err != nil {
		return nil, err
	}
	file, err := client.Open(remotePath)
	if err != nil {
		return nil, wrapSFTPError(err)
	}
	return file, nil
}

// Stat implements the fs.StatFS interface.
func (fsys *SFTPFS) Stat(name string) (fs.FileInfo, error) {
	client, remotePath, err := fsys.remote("stat", name)
	if err != nil {
		return nil, err
	}
	fileInfo, err := client.Stat(remotePath)
	if err != nil {
		return nil, wrapSFTPError(err)
	}
	return fileInfo, nil
}

// OpenWriter implements the OpenWriter FS operation for SFTPFS. The returned
// writer uploads into TempDir and renames the upload over name on Close, so
// readers of the site never see a partially written page.
func (fsys *SFTPFS) OpenWriter(name string, _ fs.FileMode) (io.WriteCloser, error) {
	client, remotePath, err := fsys.remote("openwriter", name)
	if err != nil {
		return nil, err
	}
	parentInfo, err := client.Stat(path.Dir(remotePath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &fs.PathError{Op: "openwriter", Path: name, Err: fs.ErrNotExist}
		}
		return nil, stacktrace.New(err)
	}
	if !parentInfo.IsDir() {
		return nil, &fs.PathError{Op: "openwriter", Path: name, Err: fs.ErrNotExist}
	}
	upload := &sftpUpload{
		ctx:        fsys.ctx,
		client:     client,
		destPath:   remotePath,
		uploadPath: path.Join(fsys.TempDir, sftpTempPrefix+uuid.NewString()+path.Ext(name)),
	}
	upload.file, err = client.OpenFile(upload.uploadPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, stacktrace.New(err)
	}
	return upload, nil
}

// sftpUpload is a file being written through an SFTPFS.
type sftpUpload struct {
	ctx        context.Context
	client     *sftp.Client
	file       *sftp.File
	uploadPath string
	destPath   string
	failed     bool
}

// ReadFrom implements io.ReaderFrom, which lets io.Copy use the pipelined
// writes of sftp.File.
func (upload *sftpUpload) ReadFrom(r io.Reader) (int64, error) {
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
func (upload *sftpUpload) Write(p []byte) (int, error) {
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

// Close moves the upload over the destination. A failed upload is discarded
// and leaves the destination untouched. Calling Close more than once is a
// no-op.
func (upload *sftpUpload) Close() error {
	if upload.file == nil {
		return nil
	}
	file := upload.file
	upload.file = nil
	err := file.Close()
	if err != nil || upload.failed {
		upload.client.Remove(upload.uploadPath)
		if err != nil {
			return stacktrace.New(err)
		}
		return nil
	}
	// posix-rename replaces the destination atomically. Without it the
	// destination must be removed first because plain SFTP rename refuses
	// to overwrite.
	if _, ok := upload.client.HasExtension("posix-rename@openssh.com"); ok {
		err = upload.client.PosixRename(upload.uploadPath, upload.destPath)
	} else {
		err = upload.client.Remove(upload.destPath)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			err = upload.client.Rename(upload.uploadPath, upload.destPath)
		}
	}
	if err != nil {
		upload.client.Remove(upload.uploadPath)
		return stacktrace.New(err)
	}
	return nil
}

// ReadDir implements the ReadDir FS operation for SFTPFS. Uploads in
// progress are left out.
func (fsys *SFTPFS) ReadDir(name string) ([]fs.DirEntry, error) {
	client, remotePath, err := fsys.remote("readdir", name)
	if err != nil {
		return nil, err
	}
	fileInfos, err := client.ReadDir(remotePath)
	if err != nil {
		return nil, wrapSFTPError(err)
	}
	dirEntries := make([]fs.DirEntry, 0, len(fileInfos))
	for _, fileInfo := range fileInfos {
		if strings.HasPrefix(fileInfo.Name(), sftpTempPrefix) {
			continue
		}
		dirEntries = append(dirEntries, fs.FileInfoToDirEntry(fileInfo))
	}
	return dirEntries, nil
}

// MkdirAll implements the MkdirAll FS operation for SFTPFS.
func (fsys *SFTPFS) MkdirAll(name string, _ fs.FileMode) error {
	client, remotePath, err := fsys.remote("mkdirall", name)
	if err != nil {
		return err
	}
	return wrapSFTPError(client.MkdirAll(remotePath))
}

// Remove implements the Remove FS operation for SFTPFS.
func (fsys *SFTPFS) Remove(name string) error {
	client, remotePath, err := fsys.remote("remove", name)
	if err != nil {
		return err
	}
	return wrapSFTPError(client.Remove(remotePath))
}

// RemoveAll implements the RemoveAll FS operation for SFTPFS. Removing "."
// empties RootDir but keeps the directory itself, since the server account
// may not be allowed to recreate it.
func (fsys *SFTPFS) RemoveAll(name string) error {
	client, remotePath, err := fsys.remote("removeall", name)
	if err != nil {
		return err
	}
	fileInfo, err := client.Stat(remotePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return stacktrace.New(err)
	}
	if name != "." || !fileInfo.IsDir() {
		return wrapSFTPError(client.RemoveAll(remotePath))
	}
	fileInfos, err := client.ReadDir(remotePath)
	if err != nil {
		return stacktrace.New(err)
	}
	for _, fileInfo := range fileInfos {
		err := client.RemoveAll(path.Join(remotePath, fileInfo.Name()))
		if err != nil {
			return stacktrace.New(err)
		}
	}
	return nil
}

// Copy implements the Copy FS operation for SFTPFS. SFTP has no server side
// copy, so the content makes a round trip through the client.
func (fsys *SFTPFS) Copy(srcName, destName string) error {
	_, _, err := fsys.remote("copy", destName)
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

// Close closes the SFTP connection.
func (fsys *SFTPFS) Close() error {
	return fsys.conn.close()
}

// wrapSFTPError keeps fs.ErrNotExist matchable and adds a stack trace to
// everything else.
func wrapSFTPError(err error) error {
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return stacktrace.New(err)
}

// sftpConn is the connection shared by an SFTPFS and its WithContext copies.
type sftpConn struct {
	dial func() (*sftp.Client, error)

	mutex   sync.Mutex
	current *sftp.Client
	dropped bool
}

// client returns the live connection, dialing a new one if there is none or
// the previous one was dropped.
func (conn *sftpConn) client() (*sftp.Client, error) {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	if conn.current != nil && !conn.dropped {
		return conn.current, nil
	}
	client, err := conn.dial()
	if err != nil {
		return nil, err
	}
	conn.current = client
	conn.dropped = false
	go func() {
		_ = client.Wait()
		conn.mutex.Lock()
		defer conn.mutex.Unlock()
		if conn.current == client {
			conn.dropped = true
		}
	}()
	return client, nil
}

func (conn *sftpConn) close() error {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	if conn.current == nil {
		return nil
	}
	err := conn.current.Close()
	conn.current = nil
	return err
}
