package backup

import (
	"context"
	"io"
)

// Source is the listing/content collaborator the engine reads from.
// Implementations wrap vendor errors into the package taxonomy so the
// executor can classify them.
type Source interface {
	Name() string
	// List enumerates every file in the source's configured scope.
	List(ctx context.Context) ([]RemoteFile, error)
	// Open resolves a listing locator to a content stream.
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	// Check verifies the source is reachable and authenticated.
	Check(ctx context.Context) error
}

// Destination is the blob-store collaborator uploads go to. Put must be
// atomic from the caller's view: no readable partial object on failure.
type Destination interface {
	Name() string
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Delete(ctx context.Context, key string) error
	Check(ctx context.Context) error
}
