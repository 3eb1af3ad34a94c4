package store

import (
	"context"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/kode4food/cascade/pkg/api"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobStore keeps snapshots as JSON objects in a gocloud.dev bucket,
// supporting S3, GCS, Azure Blob Storage, local files and memory
type BlobStore struct {
	bucket *blob.Bucket
	prefix string
}

var _ Store = (*BlobStore)(nil)

func OpenBlob(
	ctx context.Context, bucketURL, prefix string,
) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return &BlobStore{bucket: bucket, prefix: prefix}, nil
}

func (s *BlobStore) Save(
	ctx context.Context, id api.RunID, snap *api.Snapshot,
) error {
	if err := checkSave(id, snap); err != nil {
		return err
	}
	data, err := encode(snap)
	if err != nil {
		return err
	}
	return s.bucket.WriteAll(ctx, s.keyFor(id), data, &blob.WriterOptions{
		ContentType: "application/json",
	})
}

func (s *BlobStore) Load(
	ctx context.Context, id api.RunID,
) (*api.Snapshot, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := s.bucket.ReadAll(ctx, s.keyFor(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

func (s *BlobStore) keyFor(id api.RunID) string {
	return s.prefix + string(id) + ".json"
}
