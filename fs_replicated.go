package mgen

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"

	"github.com/bokwoon95/mgen/stacktrace"
)

// ReplicatedFSConfig holds the parameters needed to construct a ReplicatedFS.
type ReplicatedFSConfig struct {
	// (Required) Leader is the primary FS that we read from and write to.
	Leader FS

	// Followers are the secondary FSes that writes are replicated to.
	Followers []FS

	// (Required) Logger is used for reporting replication progress.
	Logger *slog.Logger
}

// ReplicatedFS implements a writeable filesystem on a leader FS and zero or
// more follower FSes. All reads come from the leader, all writes go to the
// leader and are then replicated to every follower before the write call
// returns. A typical setup generates into a local DirectoryFS and mirrors
// the output tree to one or more web servers over SFTP.
//
// Replication happens in follower order on the calling goroutine, so the
// generator's writes stay strictly sequential.
type ReplicatedFS struct {
	// Leader is the primary FS that we read from and write to.
	Leader FS

	// Followers are the secondary FSes that writes are replicated to.
	Followers []FS

	// Logger is used for reporting replication progress.
	Logger *slog.Logger

	// ctx provides the context of all operations called on the ReplicatedFS.
	ctx context.Context
}

// NewReplicatedFS constructs a new ReplicatedFS.
func NewReplicatedFS(config ReplicatedFSConfig) (*ReplicatedFS, error) {
	if config.Leader == nil {
		return nil, errors.New("leader cannot be nil")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	replicatedFS := &ReplicatedFS{
		Leader:    config.Leader,
		Followers: config.Followers,
		Logger:    logger,
		ctx:       context.Background(),
	}
	return replicatedFS, nil
}

// As calls the `As(any) bool` method on the leader FS if it exists.
func (fsys *ReplicatedFS) As(target any) bool {
	switch target := target.(type) {
	case **ReplicatedFS:
		*target = fsys
		return true
	}
	if v, ok := fsys.Leader.(interface{ As(any) bool }); ok {
		return v.As(target)
	}
	return false
}

// WithContext returns a new FS with the given context.
func (fsys *ReplicatedFS) WithContext(ctx context.Context) FS {
	return &ReplicatedFS{
		Leader:    fsys.Leader,
		Followers: fsys.Followers,
		Logger:    fsys.Logger,
		ctx:       ctx,
	}
}

// Open implements the Open FS operation for ReplicatedFS.
func (fsys *ReplicatedFS) Open(name string) (fs.File, error) {
	return fsys.Leader.WithContext(fsys.ctx).Open(name)
}

// Stat implements the fs.StatFS interface.
func (fsys *ReplicatedFS) Stat(name string) (fs.FileInfo, error) {
	return fs.Stat(fsys.Leader.WithContext(fsys.ctx), name)
}

// OpenWriter implements the OpenWriter FS operation for ReplicatedFS.
func (fsys *ReplicatedFS) OpenWriter(name string, perm fs.FileMode) (io.WriteCloser, error) {
	writer, err := fsys.Leader.WithContext(fsys.ctx).OpenWriter(name, perm)
	if err != nil {
		return nil, err
	}
	file := &ReplicatedFileWriter{
		fsys:   fsys,
		name:   name,
		writer: writer,
	}
	return file, nil
}

// ReplicatedFileWriter represents a writable file on a ReplicatedFS.
type ReplicatedFileWriter struct {
	// fsys is the ReplicatedFS that the file belongs to.
	fsys *ReplicatedFS

	// name is the name of the file.
	name string

	// writer is the leader's writer.
	writer io.WriteCloser

	// writeFailed records if any writes to the leader failed.
	writeFailed bool
}

// Write implements io.Writer.
func (file *ReplicatedFileWriter) Write(p []byte) (n int, err error) {
	err = file.fsys.ctx.Err()
	if err != nil {
		file.writeFailed = true
		return 0, err
	}
	n, err = file.writer.Write(p)
	if err != nil {
		file.writeFailed = true
		return n, err
	}
	return n, nil
}

// Close commits the file on the leader, then copies the committed file onto
// every follower.
func (file *ReplicatedFileWriter) Close() error {
	if file.writer == nil {
		return nil
	}
	defer func() {
		file.writer = nil
	}()
	err := file.writer.Close()
	if err != nil {
		return err
	}
	if file.writeFailed {
		return nil
	}
	for _, follower := range file.fsys.Followers {
		err := file.replicate(follower)
		if err != nil {
			return err
		}
	}
	return nil
}

// replicate copies the committed file onto follower, creating any parent
// directories the follower lacks.
func (file *ReplicatedFileWriter) replicate(follower FS) error {
	ctx := file.fsys.ctx
	leaderFile, err := file.fsys.Leader.WithContext(ctx).Open(file.name)
	if err != nil {
		return stacktrace.New(err)
	}
	defer leaderFile.Close()
	err = WriteFile(follower.WithContext(ctx), file.name, leaderFile)
	if err != nil {
		return err
	}
	file.fsys.Logger.Debug("replicated", slog.String("name", file.name))
	return nil
}

// ReadDir implements the ReadDir FS operation for ReplicatedFS.
func (fsys *ReplicatedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fsys.Leader.WithContext(fsys.ctx).ReadDir(name)
}

// MkdirAll implements the MkdirAll FS operation for ReplicatedFS.
func (fsys *ReplicatedFS) MkdirAll(name string, perm fs.FileMode) error {
	return fsys.each(func(fsys FS) error {
		return fsys.MkdirAll(name, perm)
	})
}

// Remove implements the Remove FS operation for ReplicatedFS.
func (fsys *ReplicatedFS) Remove(name string) error {
	return fsys.each(func(fsys FS) error {
		return fsys.Remove(name)
	})
}

// RemoveAll implements the RemoveAll FS operation for ReplicatedFS.
func (fsys *ReplicatedFS) RemoveAll(name string) error {
	return fsys.each(func(fsys FS) error {
		return fsys.RemoveAll(name)
	})
}

// Copy implements the Copy FS operation for ReplicatedFS. Each follower
// performs the copy on its own side, which avoids shipping the bytes over the
// wire a second time.
func (fsys *ReplicatedFS) Copy(srcName, destName string) error {
	return fsys.each(func(fsys FS) error {
		return fsys.Copy(srcName, destName)
	})
}

// each runs fn against the leader, then against every follower in order,
// stopping at the first error.
func (fsys *ReplicatedFS) each(fn func(FS) error) error {
	err := fn(fsys.Leader.WithContext(fsys.ctx))
	if err != nil {
		return err
	}
	for _, follower := range fsys.Followers {
		err := fn(follower.WithContext(fsys.ctx))
		if err != nil {
			return err
		}
	}
	return nil
}

// Close closes every leader and follower that implements io.Closer.
func (fsys *ReplicatedFS) Close() error {
	var errs []error
	for _, member := range append([]FS{fsys.Leader}, fsys.Followers...) {
		if closer, ok := member.(io.Closer); ok {
			err := closer.Close()
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
