package snapshot

import (
	"context"
	"errors"
	"fmt"
)

// Failure kinds surfaced by the resolve pipeline. Callers classify with
// errors.Is; the underlying cause stays wrapped for logs.
var (
	// ErrRenderTimeout indicates the navigation or capture exceeded its
	// per-request deadline.
	ErrRenderTimeout = errors.New("render timed out")
	// ErrRenderFailure covers every other mid-pipeline engine fault:
	// DNS/connection failures, navigation errors, evaluation errors.
	ErrRenderFailure = errors.New("render failed")
	// ErrArtifactStore indicates the artifact upload failed; the render is
	// discarded and no record is written.
	ErrArtifactStore = errors.New("artifact store failure")
	// ErrRecordStore indicates a record read or write failed.
	ErrRecordStore = errors.New("record store failure")
)

// RenderError wraps an engine fault with the appropriate kind.
func RenderError(cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrRenderTimeout, cause)
	}
	return fmt.Errorf("%w: %v", ErrRenderFailure, cause)
}

// ArtifactStoreError wraps an upload fault.
func ArtifactStoreError(cause error) error {
	return fmt.Errorf("%w: %v", ErrArtifactStore, cause)
}

// RecordStoreError wraps a read/write fault.
func RecordStoreError(cause error) error {
	return fmt.Errorf("%w: %v", ErrRecordStore, cause)
}
