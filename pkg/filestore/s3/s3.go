// Package s3 provides an S3-bucket directory backend.
//
// Directories are emulated with key prefixes: every directory owns a
// zero-byte marker object at its own prefix so that empty directories
// exist, and listing uses delimiter queries. Backend-side copy uses
// CopyObject, so file content never travels through the service.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/planethub/planethub/pkg/filestore"
)

// Config holds configuration for the S3 backend.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// KeyPrefix is prepended to all keys. Should end with "/" if non-empty.
	KeyPrefix string

	// ForcePathStyle forces path-style addressing (required for MinIO).
	ForcePathStyle bool
}

// Handler maps one prefix of an S3 bucket.
type Handler struct {
	client *awss3.Client
	bucket string
	prefix string // "" for the root, otherwise ends in "/"
}

var (
	_ filestore.Handler = (*Handler)(nil)
	_ filestore.Copier  = (*Handler)(nil)
)

// New creates a handler for the bucket root with an existing client.
func New(client *awss3.Client, cfg Config) *Handler {
	return &Handler{client: client, bucket: cfg.Bucket, prefix: cfg.KeyPrefix}
}

// NewFromConfig creates the S3 client from the AWS default credential chain
// and returns the root handler.
func NewFromConfig(ctx context.Context, cfg Config) (*Handler, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(awss3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

func (h *Handler) key(name string) string {
	return h.prefix + name
}

// List implements filestore.Handler.
func (h *Handler) List(ctx context.Context, fn func(filestore.Entry)) error {
	paginator := awss3.NewListObjectsV2Paginator(h.client, &awss3.ListObjectsV2Input{
		Bucket:    aws.String(h.bucket),
		Prefix:    aws.String(h.prefix),
		Delimiter: aws.String("/"),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list %s: %w", h.prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), h.prefix), "/")
			if name != "" {
				fn(filestore.Entry{Type: filestore.EntryDir, Name: name})
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), h.prefix)
			if name == "" {
				// Our own directory marker.
				continue
			}
			fn(filestore.Entry{
				Type: filestore.EntryFile,
				Name: name,
				Info: filestore.FileInfo{
					Name: name,
					Size: aws.ToInt64(obj.Size),
				},
			})
		}
	}
	return nil
}

// GetFile implements filestore.Handler.
func (h *Handler) GetFile(ctx context.Context, name string) ([]byte, error) {
	out, err := h.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get %s: %w", name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", name, err)
	}
	return data, nil
}

// PutFile implements filestore.Handler.
func (h *Handler) PutFile(ctx context.Context, name string, content []byte) (filestore.FileInfo, error) {
	_, err := h.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(name)),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return filestore.FileInfo{}, fmt.Errorf("s3 put %s: %w", name, err)
	}
	return filestore.FileInfo{Name: name, Size: int64(len(content))}, nil
}

// RemoveFile implements filestore.Handler.
func (h *Handler) RemoveFile(ctx context.Context, name string) error {
	if exists, err := h.exists(ctx, h.key(name)); err != nil {
		return err
	} else if !exists {
		return fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	}
	_, err := h.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(name)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", name, err)
	}
	return nil
}

// EnterDirectory implements filestore.Handler.
func (h *Handler) EnterDirectory(ctx context.Context, name string) (filestore.Handler, error) {
	prefix := h.key(name) + "/"
	populated, err := h.anyKeyUnder(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if !populated {
		if exists, err := h.exists(ctx, h.key(name)); err == nil && exists {
			return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotDirectory)
		}
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	}
	return &Handler{client: h.client, bucket: h.bucket, prefix: prefix}, nil
}

// CreateDirectory implements filestore.Handler.
func (h *Handler) CreateDirectory(ctx context.Context, name string) (filestore.Handler, error) {
	prefix := h.key(name) + "/"
	if populated, err := h.anyKeyUnder(ctx, prefix); err != nil {
		return nil, err
	} else if populated {
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrExists)
	}
	if exists, err := h.exists(ctx, h.key(name)); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%s: %w", name, filestore.ErrExists)
	}

	_, err := h.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(prefix),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 mkdir %s: %w", name, err)
	}
	return &Handler{client: h.client, bucket: h.bucket, prefix: prefix}, nil
}

// RemoveDirectory implements filestore.Handler.
func (h *Handler) RemoveDirectory(ctx context.Context, name string) error {
	prefix := h.key(name) + "/"

	out, err := h.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(h.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(2),
	})
	if err != nil {
		return fmt.Errorf("s3 list %s: %w", prefix, err)
	}
	switch len(out.Contents) {
	case 0:
		return fmt.Errorf("%s: %w", name, filestore.ErrNotFound)
	case 1:
		if aws.ToString(out.Contents[0].Key) != prefix {
			return fmt.Errorf("%s: %w", name, filestore.ErrNotEmpty)
		}
	default:
		return fmt.Errorf("%s: %w", name, filestore.ErrNotEmpty)
	}

	_, err = h.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(prefix),
	})
	if err != nil {
		return fmt.Errorf("s3 rmdir %s: %w", name, err)
	}
	return nil
}

// CopyFile implements filestore.Copier via CopyObject. Sources from other
// backends are declined and fall back to a read-write copy.
func (h *Handler) CopyFile(ctx context.Context, src filestore.Handler, srcName, dstName string) (bool, error) {
	srcHandler, ok := src.(*Handler)
	if !ok || srcHandler.client != h.client {
		return false, nil
	}

	source := srcHandler.bucket + "/" + srcHandler.key(srcName)
	_, err := h.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(h.bucket),
		Key:        aws.String(h.key(dstName)),
		CopySource: aws.String(source),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return true, fmt.Errorf("%s: %w", srcName, filestore.ErrNotFound)
		}
		return true, fmt.Errorf("s3 copy %s: %w", srcName, err)
	}
	return true, nil
}

// exists reports whether the exact key is present.
func (h *Handler) exists(ctx context.Context, key string) (bool, error) {
	_, err := h.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head %s: %w", key, err)
	}
	return true, nil
}

// anyKeyUnder reports whether any object exists under the prefix.
func (h *Handler) anyKeyUnder(ctx context.Context, prefix string) (bool, error) {
	out, err := h.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(h.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("s3 list %s: %w", prefix, err)
	}
	return len(out.Contents) > 0, nil
}
