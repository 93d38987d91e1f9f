package blob

import (
	"context"
	"fmt"
)

// Backend selects which Store implementation New constructs.
type Backend string

const (
	BackendFilesystem Backend = "filesystem"
	BackendS3         Backend = "s3"
)

// New constructs the Store named by backend. For BackendFilesystem, root is
// the local directory; for BackendS3, root is the bucket name.
func New(ctx context.Context, backend Backend, root string) (Store, error) {
	switch backend {
	case BackendFilesystem, "":
		return NewFilesystemStore(root)
	case BackendS3:
		return NewS3Store(ctx, root)
	default:
		return nil, fmt.Errorf("unknown blob backend %q", backend)
	}
}
