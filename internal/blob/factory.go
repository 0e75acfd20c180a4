package blob

import (
	"context"
	"fmt"
	"os"

	infraFS "rankmine/internal/infra/blob/fs"
	infraMem "rankmine/internal/infra/blob/memory"
	infraS3 "rankmine/internal/infra/blob/s3"
)

// Open selects a blob.Store implementation using environment variables.
//
//	RANKMINE_BLOB_DRIVER: fs|s3|memory (default fs)
//	RANKMINE_BLOB_FS_ROOT: directory root when driver=fs (default ./assetdata)
//	(S3 specific variables documented in the s3 driver package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("RANKMINE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return infraFS.New(os.Getenv("RANKMINE_BLOB_FS_ROOT"))
	case DriverS3:
		return infraS3.OpenFromEnv(ctx)
	case DriverMemory:
		return infraMem.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
