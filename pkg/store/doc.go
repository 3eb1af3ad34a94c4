// Package store persists flow run snapshots
//
// Every backend implements Store. Open selects a backend from a URL:
// memory:// keeps snapshots in process, redis:// and rediss:// use a Redis
// server, sqlite:// uses a local database file, and any other scheme is
// handed to gocloud.dev/blob (mem://, file://, s3://, gs://, azblob://)
package store
