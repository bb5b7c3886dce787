package mgen

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/sftp"
)

// newTestSFTPFS returns an SFTPFS connected to an in-process SFTP server that
// serves the local filesystem, rooted at a temporary directory.
func newTestSFTPFS(t *testing.T) *SFTPFS {
	t.Helper()
	dial := func() (*sftp.Client, error) {
		serverReader, clientWriter := io.Pipe()
		clientReader, serverWriter := io.Pipe()
		server, err := sftp.NewServer(struct {
			io.Reader
			io.WriteCloser
		}{serverReader, serverWriter})
		if err != nil {
			return nil, err
		}
		go func() {
			server.Serve()
			serverWriter.Close()
		}()
		t.Cleanup(func() { server.Close() })
		return sftp.NewClientPipe(clientReader, clientWriter)
	}
	sftpFS, err := newSFTPFS(t.TempDir(), "", dial)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sftpFS.Close() })
	return sftpFS
}

func TestSFTPFSWriteFile(t *testing.T) {
	sftpFS := newTestSFTPFS(t)
	_, err := sftpFS.OpenWriter("post/id/a/index.html", 0644)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist for a missing parent, got %v", err)
	}
	err = WriteFile(sftpFS, "post/id/a/index.html", strings.NewReader("hello"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(sftpFS.RootDir, "post", "id", "a", "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello" {
		t.Errorf("got %q, want %q", string(b), "hello")
	}
	// Overwriting replaces the whole file.
	err = WriteFile(sftpFS, "post/id/a/index.html", strings.NewReader("bye"))
	if err != nil {
		t.Fatal(err)
	}
	if got := readTestFile(t, sftpFS, "post/id/a/index.html"); got != "bye" {
		t.Errorf("got %q, want %q", got, "bye")
	}
	// Uploads land in RootDir by default and are renamed away on Close.
	dirEntries, err := os.ReadDir(sftpFS.RootDir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, dirEntry := range dirEntries {
		names = append(names, dirEntry.Name())
	}
	if diff := cmp.Diff([]string{"post"}, names); diff != "" {
		t.Error(diff)
	}
}

func TestSFTPFSInvalidPath(t *testing.T) {
	sftpFS := newTestSFTPFS(t)
	for _, name := range []string{"../escape", "/abs", "a\\b"} {
		_, err := sftpFS.OpenWriter(name, 0644)
		if !errors.Is(err, fs.ErrInvalid) {
			t.Errorf("%q: expected fs.ErrInvalid, got %v", name, err)
		}
	}
	err := sftpFS.Copy("index.html", "../escape")
	if !errors.Is(err, fs.ErrInvalid) {
		t.Errorf("copy: expected fs.ErrInvalid, got %v", err)
	}
}

func TestSFTPFSCopy(t *testing.T) {
	sftpFS := newTestSFTPFS(t)
	for name, content := range map[string]string{
		"src/index.html":   "index",
		"src/nested/a.css": "css",
		"robots.txt":       "user-agent: *",
	} {
		err := WriteFile(sftpFS, name, strings.NewReader(content))
		if err != nil {
			t.Fatal(err)
		}
	}
	err := sftpFS.Copy("src", "dest")
	if err != nil {
		t.Fatal(err)
	}
	err = sftpFS.Copy("robots.txt", "res/robots.txt")
	if err != nil {
		t.Fatal(err)
	}
	for name, want := range map[string]string{
		"dest/index.html":   "index",
		"dest/nested/a.css": "css",
		"res/robots.txt":    "user-agent: *",
	} {
		if got := readTestFile(t, sftpFS, name); got != want {
			t.Errorf("%s: got %q, want %q", name, got, want)
		}
	}
	err = sftpFS.Copy("missing", "dest2")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestSFTPFSRemoveAll(t *testing.T) {
	sftpFS := newTestSFTPFS(t)
	for _, name := range []string{"index.html", "post/id/a/index.html", "res/site.css"} {
		err := WriteFile(sftpFS, name, strings.NewReader(name))
		if err != nil {
			t.Fatal(err)
		}
	}
	err := sftpFS.RemoveAll("post")
	if err != nil {
		t.Fatal(err)
	}
	_, err = sftpFS.Stat("post")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected post to be removed, got %v", err)
	}
	// Removing a missing path is not an error.
	err = sftpFS.RemoveAll("post")
	if err != nil {
		t.Fatal(err)
	}
	// Removing the root empties it but keeps the directory.
	err = sftpFS.RemoveAll(".")
	if err != nil {
		t.Fatal(err)
	}
	dirEntries, err := sftpFS.ReadDir(".")
	if err != nil {
		t.Fatal(err)
	}
	if len(dirEntries) != 0 {
		t.Errorf("expected an empty root, got %d entries", len(dirEntries))
	}
	fileInfo, err := os.Stat(sftpFS.RootDir)
	if err != nil {
		t.Fatal(err)
	}
	if !fileInfo.IsDir() {
		t.Errorf("expected %s to still be a directory", sftpFS.RootDir)
	}
}

func TestSFTPFSCanceled(t *testing.T) {
	sftpFS := newTestSFTPFS(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WriteFile(sftpFS.WithContext(ctx), "index.html", strings.NewReader("home"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
