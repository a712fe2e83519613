package media

import (
	"errors"
	"fmt"
)

var (
	// ErrFileTooLarge is raised locally, before any network call, when a
	// payload exceeds the upload cap.
	ErrFileTooLarge = errors.New("file exceeds upload size limit")
	// ErrNotAuthenticated means no valid bearer token was available.
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrInvalidFileType   = errors.New("unsupported file type")
	ErrCompressionFailed = errors.New("image compression failed")
)

// UploadError is a non-200 answer from the media endpoint.
type UploadError struct {
	Status int
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("media upload failed: status %d", e.Status)
}
