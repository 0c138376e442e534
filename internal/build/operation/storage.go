package operation

import (
	"context"
	"io"
)

// Storage keeps generated archives under keys derived from build IDs.
type Storage interface {
	Exists(ctx context.Context, key string) (bool, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, r io.Reader) error
}
