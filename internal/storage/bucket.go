package storage

import (
	"fmt"

	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"
	"github.com/thanos-io/objstore/providers/s3"
	"github.com/vinceanalytics/collector/internal/config"
)

func OpenBucket(o config.Storage) (objstore.Bucket, error) {
	switch o.Backend {
	case "filesystem", "":
		return filesystem.NewBucket(o.Path)
	case "s3":
		c := s3.DefaultConfig
		c.Bucket = o.S3.Bucket
		c.Endpoint = o.S3.Endpoint
		c.Region = o.S3.Region
		c.AccessKey = o.S3.AccessKey
		c.SecretKey = o.S3.SecretKey
		c.Insecure = o.S3.Insecure
		return s3.NewBucketWithConfig(nil, c, "vince")
	case "memory":
		return objstore.NewInMemBucket(), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", o.Backend)
	}
}
