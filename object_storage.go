package mgen

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bokwoon95/mgen/stacktrace"
)

// ObjectStorage represents a bucket that a generated site is published to.
// Object keys are the slash-separated paths of the files in the output tree.
type ObjectStorage interface {
	// Put puts an object into the bucket. If key already exists, it is
	// replaced. size is the number of bytes reader will yield, or -1 if
	// unknown.
	Put(ctx context.Context, key string, reader io.Reader, size int64) error

	// Delete deletes an object from the bucket. It returns no error if the
	// object does not exist.
	Delete(ctx context.Context, key string) error

	// List returns the sorted keys of every object in the bucket.
	List(ctx context.Context) ([]string, error)
}

// S3ObjectStorage implements ObjectStorage via an S3-compatible provider.
type S3ObjectStorage struct {
	// S3 SDK client.
	Client *s3.Client

	// S3 Bucket to put objects in.
	Bucket string

	// Prefix is prepended to every object key (e.g. "blog/").
	Prefix string

	// Logger is used for reporting errors that cannot be handled and are
	// thrown away.
	Logger *slog.Logger
}

var _ ObjectStorage = (*S3ObjectStorage)(nil)

// S3StorageConfig holds the parameters needed to construct an S3ObjectStorage.
type S3StorageConfig struct {
	// (Required) S3 endpoint.
	Endpoint string

	// (Required) S3 region.
	Region string

	// (Required) S3 bucket.
	Bucket string

	// (Required) S3 access key ID.
	AccessKeyID string

	// (Required) S3 secret access key.
	SecretAccessKey string

	// Key prefix inside the bucket.
	Prefix string

	// (Required) Logger is used for reporting errors that cannot be handled
	// and are thrown away.
	Logger *slog.Logger
}

// NewS3Storage constructs a new S3ObjectStorage and checks that the bucket is
// reachable.
func NewS3Storage(ctx context.Context, config S3StorageConfig) (*S3ObjectStorage, error) {
	storage := &S3ObjectStorage{
		Client: s3.New(s3.Options{
			BaseEndpoint: aws.String(config.Endpoint),
			Region:       config.Region,
			Credentials:  aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")),
		}),
		Bucket: config.Bucket,
		Prefix: strings.Trim(config.Prefix, "/"),
		Logger: config.Logger,
	}
	if storage.Prefix != "" {
		storage.Prefix += "/"
	}
	_, err := storage.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &storage.Bucket,
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	return storage, nil
}

// multipartThreshold is the object size above which Put switches to a
// multipart upload. It is also the part size.
const multipartThreshold = 5 << 20

// Put implements the Put ObjectStorage operation for S3ObjectStorage.
func (storage *S3ObjectStorage) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	contentType := ContentTypes[path.Ext(key)]
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if size >= 0 && size < multipartThreshold {
		buf := bufPool.Get().(*bytes.Buffer)
		defer func() {
			if buf.Cap() <= maxPoolableBufferCapacity {
				buf.Reset()
				bufPool.Put(buf)
			}
		}()
		_, err := buf.ReadFrom(reader)
		if err != nil {
			return stacktrace.New(err)
		}
		_, err = storage.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        &storage.Bucket,
			Key:           aws.String(storage.Prefix + key),
			Body:          bytes.NewReader(buf.Bytes()),
			ContentLength: aws.Int64(int64(buf.Len())),
			ContentType:   aws.String(contentType),
			CacheControl:  aws.String(CacheControl(key)),
		})
		if err != nil {
			return stacktrace.New(err)
		}
		return nil
	}
	cleanup := func(uploadId *string) {
		_, err := storage.Client.AbortMultipartUpload(context.Background(), &s3.AbortMultipartUploadInput{
			Bucket:   &storage.Bucket,
			Key:      aws.String(storage.Prefix + key),
			UploadId: uploadId,
		})
		if err != nil {
			storage.Logger.Error(stacktrace.New(err).Error())
		}
	}
	createResult, err := storage.Client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:       &storage.Bucket,
		Key:          aws.String(storage.Prefix + key),
		CacheControl: aws.String(CacheControl(key)),
		ContentType:  aws.String(contentType),
	})
	if err != nil {
		return stacktrace.New(err)
	}
	var parts []types.CompletedPart
	var partNumber int32
	buf := make([]byte, multipartThreshold)
	done := false
	for !done {
		n, err := io.ReadFull(reader, buf)
		if err != nil {
			if err == io.EOF {
				break
			}
			if err != io.ErrUnexpectedEOF {
				cleanup(createResult.UploadId)
				return stacktrace.New(err)
			}
			done = true
		}
		partNumber++
		uploadResult, err := storage.Client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     &storage.Bucket,
			Key:        aws.String(storage.Prefix + key),
			UploadId:   createResult.UploadId,
			PartNumber: aws.Int32(partNumber),
			Body:       bytes.NewReader(buf[:n]),
		})
		if err != nil {
			cleanup(createResult.UploadId)
			return stacktrace.New(err)
		}
		parts = append(parts, types.CompletedPart{
			ETag:       uploadResult.ETag,
			PartNumber: aws.Int32(partNumber),
		})
	}
	_, err = storage.Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &storage.Bucket,
		Key:      aws.String(storage.Prefix + key),
		UploadId: createResult.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return stacktrace.New(err)
	}
	return nil
}

// Delete implements the Delete ObjectStorage operation for S3ObjectStorage.
func (storage *S3ObjectStorage) Delete(ctx context.Context, key string) error {
	_, err := storage.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &storage.Bucket,
		Key:    aws.String(storage.Prefix + key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil
		}
		return stacktrace.New(err)
	}
	return nil
}

// List implements the List ObjectStorage operation for S3ObjectStorage.
func (storage *S3ObjectStorage) List(ctx context.Context) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(storage.Client, &s3.ListObjectsV2Input{
		Bucket: &storage.Bucket,
		Prefix: aws.String(storage.Prefix),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, stacktrace.New(err)
		}
		for _, object := range output.Contents {
			if object.Key == nil {
				continue
			}
			keys = append(keys, strings.TrimPrefix(*object.Key, storage.Prefix))
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// CacheControl returns the Cache-Control header an object should be
// published with. Static resources are cached for a day, generated pages and
// feeds must be revalidated since they change on every publish.
func CacheControl(key string) string {
	if strings.HasPrefix(key, ResourcesDir+"/") {
		return "public, max-age=86400"
	}
	return "no-cache"
}

// DirectoryObjectStorage implements ObjectStorage using a local directory.
// Keys map directly onto file paths under RootDir.
type DirectoryObjectStorage struct {
	// Root directory to store objects in.
	RootDir string
}

var _ ObjectStorage = (*DirectoryObjectStorage)(nil)

// NewDirObjectStorage constructs a new DirectoryObjectStorage.
func NewDirObjectStorage(rootDir string) (*DirectoryObjectStorage, error) {
	rootDir, err := filepath.Abs(filepath.FromSlash(rootDir))
	if err != nil {
		return nil, err
	}
	return &DirectoryObjectStorage{RootDir: rootDir}, nil
}

func (storage *DirectoryObjectStorage) filePath(op, key string) (string, error) {
	if !fs.ValidPath(key) || key == "." {
		return "", &fs.PathError{Op: op, Path: key, Err: fs.ErrInvalid}
	}
	return filepath.Join(storage.RootDir, filepath.FromSlash(key)), nil
}

// Put implements the Put ObjectStorage operation for DirectoryObjectStorage.
func (storage *DirectoryObjectStorage) Put(ctx context.Context, key string, reader io.Reader, _ int64) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	filePath, err := storage.filePath("put", key)
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(filePath), 0755)
	if err != nil {
		return stacktrace.New(err)
	}
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return stacktrace.New(err)
	}
	defer file.Close()
	_, err = io.Copy(file, reader)
	if err != nil {
		return stacktrace.New(err)
	}
	err = file.Close()
	if err != nil {
		return stacktrace.New(err)
	}
	return nil
}

// Delete implements the Delete ObjectStorage operation for
// DirectoryObjectStorage.
func (storage *DirectoryObjectStorage) Delete(ctx context.Context, key string) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	filePath, err := storage.filePath("delete", key)
	if err != nil {
		return err
	}
	err = os.Remove(filePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return stacktrace.New(err)
	}
	return nil
}

// List implements the List ObjectStorage operation for
// DirectoryObjectStorage.
func (storage *DirectoryObjectStorage) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(storage.RootDir, func(filePath string, dirEntry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if dirEntry.IsDir() {
			return nil
		}
		relativePath, err := filepath.Rel(storage.RootDir, filePath)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(relativePath))
		return nil
	})
	if err != nil {
		return nil, stacktrace.New(err)
	}
	slices.Sort(keys)
	return keys, nil
}
