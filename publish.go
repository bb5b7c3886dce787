package mgen

import (
	"context"
	"io/fs"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bokwoon95/mgen/stacktrace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// PublisherConfig holds the parameters needed to construct a Publisher.
type PublisherConfig struct {
	// (Required) FS is the generated site to publish.
	FS fs.FS

	// (Required) Storage is where the site is published to.
	Storage ObjectStorage

	// Concurrency is the maximum number of concurrent uploads. Defaults to 8.
	Concurrency int

	// LimitInterval is the minimum interval between two uploads. Zero means
	// no limit.
	LimitInterval time.Duration

	// LimitBurst is the number of uploads that may happen at once regardless
	// of LimitInterval. Defaults to Concurrency.
	LimitBurst int

	// Delete removes objects that are not part of the site anymore.
	Delete bool

	// Logger is used for reporting progress.
	Logger *slog.Logger
}

// Publisher uploads a generated site to object storage.
type Publisher struct {
	FS          fs.FS
	Storage     ObjectStorage
	Concurrency int
	Limiter     *rate.Limiter
	Delete      bool
	Logger      *slog.Logger
}

// PublishResult reports what a Publish call did.
type PublishResult struct {
	// Uploaded is the number of uploaded objects.
	Uploaded int

	// Bytes is the total size of the uploaded objects.
	Bytes int64

	// Deleted is the number of deleted objects.
	Deleted int
}

// NewPublisher constructs a new Publisher.
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	if config.FS == nil {
		return nil, &ConfigurationError{Reason: "no site to publish"}
	}
	if config.Storage == nil {
		return nil, &ConfigurationError{Reason: "no object storage to publish to"}
	}
	concurrency := config.Concurrency
	if concurrency < 1 {
		concurrency = 8
	}
	limit := rate.Inf
	if config.LimitInterval > 0 {
		limit = rate.Every(config.LimitInterval)
	}
	burst := config.LimitBurst
	if burst < 1 {
		burst = concurrency
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		FS:          config.FS,
		Storage:     config.Storage,
		Concurrency: concurrency,
		Limiter:     rate.NewLimiter(limit, burst),
		Delete:      config.Delete,
		Logger:      logger,
	}, nil
}

// Publish uploads every file of the site, keyed by its slash separated path.
// If Delete is set, objects without a corresponding file are removed once
// every upload succeeded.
func (publisher *Publisher) Publish(ctx context.Context) (PublishResult, error) {
	startedAt := time.Now()
	keys := make(map[string]struct{})
	var uploaded, deleted atomic.Int64
	var totalBytes atomic.Int64
	group, groupctx := errgroup.WithContext(ctx)
	group.SetLimit(publisher.Concurrency)
	err := fs.WalkDir(publisher.FS, ".", func(filePath string, dirEntry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if dirEntry.IsDir() {
			return nil
		}
		if err := groupctx.Err(); err != nil {
			return err
		}
		keys[filePath] = struct{}{}
		group.Go(func() (err error) {
			defer stacktrace.RecoverPanic(&err)
			err = publisher.Limiter.Wait(groupctx)
			if err != nil {
				return err
			}
			file, err := publisher.FS.Open(filePath)
			if err != nil {
				return stacktrace.New(err)
			}
			defer file.Close()
			fileInfo, err := file.Stat()
			if err != nil {
				return stacktrace.New(err)
			}
			err = publisher.Storage.Put(groupctx, filePath, file, fileInfo.Size())
			if err != nil {
				return err
			}
			uploaded.Add(1)
			totalBytes.Add(fileInfo.Size())
			publisher.Logger.Debug("uploaded", slog.String("key", filePath), slog.Int64("size", fileInfo.Size()))
			return nil
		})
		return nil
	})
	if err != nil {
		// A failed upload cancels groupctx, which stops the walk. Report the
		// upload's error rather than the cancellation it caused.
		waitErr := group.Wait()
		if waitErr != nil {
			return PublishResult{}, waitErr
		}
		return PublishResult{}, stacktrace.New(err)
	}
	err = group.Wait()
	if err != nil {
		return PublishResult{}, err
	}
	if publisher.Delete {
		existingKeys, err := publisher.Storage.List(ctx)
		if err != nil {
			return PublishResult{}, err
		}
		group, groupctx := errgroup.WithContext(ctx)
		group.SetLimit(publisher.Concurrency)
		for _, key := range existingKeys {
			if _, ok := keys[key]; ok {
				continue
			}
			key := key
			group.Go(func() (err error) {
				defer stacktrace.RecoverPanic(&err)
				err = publisher.Storage.Delete(groupctx, key)
				if err != nil {
					return err
				}
				deleted.Add(1)
				publisher.Logger.Debug("deleted", slog.String("key", key))
				return nil
			})
		}
		err = group.Wait()
		if err != nil {
			return PublishResult{}, err
		}
	}
	result := PublishResult{
		Uploaded: int(uploaded.Load()),
		Bytes:    totalBytes.Load(),
		Deleted:  int(deleted.Load()),
	}
	publisher.Logger.Info("published",
		slog.Int("uploaded", result.Uploaded),
		slog.Int64("bytes", result.Bytes),
		slog.Int("deleted", result.Deleted),
		slog.Duration("duration", time.Since(startedAt)),
	)
	return result, nil
}
