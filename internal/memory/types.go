package memory

import "context"

type notFoundError struct{}

func (notFoundError) Error() string  { return "memory: key not found" }
func (notFoundError) NotFound() bool { return true }

// ErrNotFound is returned by Load and Erase when the key holds no blob.
var ErrNotFound error = notFoundError{}

// Store persists one opaque blob per key. Writes overwrite the previous blob wholesale.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Erase(ctx context.Context, key string) error
	Close() error
}
