package uploader

import "fmt"

// UploadError represents a failed transfer to a cloud backend. The file is
// left unrecorded so the next run retries it.
type UploadError struct {
	FileName string // Name of the file that failed to transfer
	Provider string // Backend the transfer was aimed at
	Err      error  // Underlying error, if any
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %s to %s: %v", e.FileName, e.Provider, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
