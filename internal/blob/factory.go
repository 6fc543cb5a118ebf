package blob

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Config selects and configures a blob backend.
type Config struct {
	Driver Driver   `mapstructure:"driver"`  // fs|s3|memory (default fs)
	FSRoot string   `mapstructure:"fs_root"` // directory root when driver=fs (default ./blobdata)
	S3     S3Config `mapstructure:"s3"`
}

// Open builds the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, errors.Newf("unknown blob driver %s", driver)
	}
}
