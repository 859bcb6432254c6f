package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for programmatic handling via errors.Is.
var (
	// ErrManifestUnavailable is returned by Fetcher.FetchManifest when the
	// repository HEAD cannot be resolved.
	ErrManifestUnavailable = errors.New("catalog: manifest unavailable")

	// ErrTagHistoryUnavailable is returned by Fetcher.FetchTagHistory when
	// no tag history object exists. Callers (see pkg/traversal) treat this
	// as an empty snapshot set, not a failure.
	ErrTagHistoryUnavailable = errors.New("catalog: tag history unavailable")
)

// NotFoundError reports that Hash does not resolve to any object, as
// distinguished from a transport or decode error. Fetcher implementations
// must return a *NotFoundError (checkable with errors.As) rather than a bare
// error when an object is simply absent, so that the traversal engine's
// ignore_load_failure logic can tell "missing" apart from "broken".
type NotFoundError struct {
	Hash Hash
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("catalog: object %s not found", e.Hash)
}

// IsNotFound reports whether err (or any error it wraps) is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
