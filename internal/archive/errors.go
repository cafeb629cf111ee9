package archive

import (
	"errors"
	"fmt"

	"github.com/pressarc/wp-archive/internal/storage"
	"github.com/pressarc/wp-archive/internal/wordpress"
)

// MalformedContentError reports a record whose shape could not be decoded.
// The item is skipped and recorded; the run continues.
type MalformedContentError struct {
	ContentType wordpress.ContentType
	RemoteID    int64
	Err         error
}

func (e *MalformedContentError) Error() string {
	return fmt.Sprintf("malformed %s record %d: %v", e.ContentType, e.RemoteID, e.Err)
}

func (e *MalformedContentError) Unwrap() error { return e.Err }

// Error kinds recorded into session error details.
const (
	kindTransport = "transport"
	kindMalformed = "malformed"
	kindConflict  = "conflict"
	kindStorage   = "storage"
)

// classifyKind maps an error to its taxonomy bucket for session records.
func classifyKind(err error) string {
	var (
		transportErr *wordpress.TransportError
		notFoundErr  *wordpress.NotFoundError
		malformedErr *MalformedContentError
		conflictErr  *storage.ConflictError
	)
	switch {
	case errors.As(err, &malformedErr):
		return kindMalformed
	case errors.As(err, &conflictErr):
		return kindConflict
	case errors.As(err, &transportErr), errors.As(err, &notFoundErr):
		return kindTransport
	default:
		return kindStorage
	}
}
