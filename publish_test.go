package mgen

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDirectoryObjectStorage(t *testing.T) {
	ctx := context.Background()
	storage, err := NewDirObjectStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	keys, err := storage.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("expected no keys, got %q", keys)
	}
	for _, key := range []string{"post/id/a/index.html", "index.html", "res/site.css"} {
		err := storage.Put(ctx, key, strings.NewReader(key), int64(len(key)))
		if err != nil {
			t.Fatal(err)
		}
	}
	b, err := os.ReadFile(filepath.Join(storage.RootDir, "post", "id", "a", "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "post/id/a/index.html" {
		t.Errorf("got %q", string(b))
	}
	err = storage.Delete(ctx, "index.html")
	if err != nil {
		t.Fatal(err)
	}
	// Deleting a missing key is not an error.
	err = storage.Delete(ctx, "index.html")
	if err != nil {
		t.Fatal(err)
	}
	keys, err = storage.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"post/id/a/index.html", "res/site.css"}, keys); diff != "" {
		t.Error(diff)
	}
	err = storage.Put(ctx, "../escape", strings.NewReader(""), 0)
	if err == nil {
		t.Error("expected an error for an invalid key")
	}
}

func TestCacheControl(t *testing.T) {
	if got := CacheControl("res/site.css"); got != "public, max-age=86400" {
		t.Errorf("res/site.css: got %q", got)
	}
	if got := CacheControl("post/feed.rss"); got != "no-cache" {
		t.Errorf("post/feed.rss: got %q", got)
	}
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	storage, err := NewDirObjectStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	err = storage.Put(ctx, "post/id/removed/index.html", strings.NewReader("stale"), 5)
	if err != nil {
		t.Fatal(err)
	}
	site := fstest.MapFS{
		"index.html":                      {Data: []byte("home")},
		"post/id/kept/index.html":         {Data: []byte("post")},
		"post/feed.rss":                   {Data: []byte("<rss/>")},
		"res/css/site.css":                {Data: []byte("body{}")},
		"post/date/2020/3/1/k/index.html": {Data: []byte("post")},
	}
	publisher, err := NewPublisher(PublisherConfig{
		FS:            site,
		Storage:       storage,
		Concurrency:   2,
		LimitInterval: time.Millisecond,
		Delete:        true,
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := publisher.Publish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantResult := PublishResult{Uploaded: 5, Bytes: 4 + 4 + 6 + 6 + 4, Deleted: 1}
	if diff := cmp.Diff(wantResult, result); diff != "" {
		t.Error(diff)
	}
	keys, err := storage.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantKeys := []string{
		"index.html",
		"post/date/2020/3/1/k/index.html",
		"post/feed.rss",
		"post/id/kept/index.html",
		"res/css/site.css",
	}
	if diff := cmp.Diff(wantKeys, keys); diff != "" {
		t.Error(diff)
	}
}

func TestPublishCanceled(t *testing.T) {
	storage, err := NewDirObjectStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	publisher, err := NewPublisher(PublisherConfig{
		FS:      fstest.MapFS{"index.html": {Data: []byte("home")}},
		Storage: storage,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = publisher.Publish(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// failingStorage rejects every upload with err.
type failingStorage struct {
	err  error
	puts atomic.Int64
}

func (storage *failingStorage) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	storage.puts.Add(1)
	return storage.err
}

func (storage *failingStorage) Delete(ctx context.Context, key string) error { return nil }

func (storage *failingStorage) List(ctx context.Context) ([]string, error) { return nil, nil }

func TestPublishStorageError(t *testing.T) {
	quotaErr := errors.New("bucket quota exceeded")
	storage := &failingStorage{err: quotaErr}
	publisher, err := NewPublisher(PublisherConfig{
		FS: fstest.MapFS{
			"index.html":           {Data: []byte("home")},
			"post/feed.rss":        {Data: []byte("<rss/>")},
			"post/id/a/index.html": {Data: []byte("a")},
			"res/css/site.css":     {Data: []byte("body{}")},
		},
		Storage:     storage,
		Concurrency: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = publisher.Publish(context.Background())
	if !errors.Is(err, quotaErr) {
		t.Fatalf("expected %v, got %v", quotaErr, err)
	}
	// The failed upload cancels the walk, so not every file is attempted.
	if puts := storage.puts.Load(); puts >= 4 {
		t.Errorf("got %d uploads, expected the first failure to stop the rest", puts)
	}
}

func TestNewPublisherErrors(t *testing.T) {
	var configErr *ConfigurationError
	_, err := NewPublisher(PublisherConfig{Storage: &DirectoryObjectStorage{}})
	if !errors.As(err, &configErr) {
		t.Errorf("missing FS: expected *ConfigurationError, got %#v", err)
	}
	_, err = NewPublisher(PublisherConfig{FS: fstest.MapFS{}})
	if !errors.As(err, &configErr) {
		t.Errorf("missing storage: expected *ConfigurationError, got %#v", err)
	}
}
