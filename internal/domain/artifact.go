package domain

import "context"

// ArtifactStore is the durable blob backend for sealed snapshot payloads.
// Put returns an opaque location string which is persisted on the backup job
// and is the only handle later reads use.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) (location string, err error)
	Get(ctx context.Context, location string) ([]byte, error)
	Delete(ctx context.Context, location string) error
	List(ctx context.Context) ([]string, error)
}
