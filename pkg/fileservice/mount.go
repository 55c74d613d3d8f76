package fileservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/planethub/planethub/pkg/filestore"
	"github.com/planethub/planethub/pkg/filestore/ca"
	"github.com/planethub/planethub/pkg/filestore/localfs"
	"github.com/planethub/planethub/pkg/filestore/memory"
	"github.com/planethub/planethub/pkg/filestore/s3"
)

// OpenRoot opens the backend selected by the base-directory string:
//
//	path          local filesystem directory
//	int:          fresh in-memory store (tests, scratch instances)
//	ca:path       content-addressable store rooted at path
//	s3://bucket/prefix
//	              S3 bucket (prefix optional)
func OpenRoot(ctx context.Context, basedir string) (filestore.Handler, error) {
	switch {
	case basedir == "int:" || strings.HasPrefix(basedir, "int:"):
		return memory.New(), nil

	case strings.HasPrefix(basedir, "ca:"):
		store, err := ca.Open(strings.TrimPrefix(basedir, "ca:"))
		if err != nil {
			return nil, fmt.Errorf("failed to open content store: %w", err)
		}
		return store.Root(), nil

	case strings.HasPrefix(basedir, "s3://"):
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(basedir, "s3://"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid S3 base directory %q", basedir)
		}
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return s3.NewFromConfig(ctx, s3.Config{Bucket: bucket, KeyPrefix: prefix})

	default:
		return localfs.New(basedir)
	}
}
