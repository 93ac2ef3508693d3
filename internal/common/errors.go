// Package common defines shared sentinel errors used across the upload
// pipeline and the HTTP layer. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Container / input errors (non-retryable, caller must fix input).
	ErrNotFound           = errors.New("not found")
	ErrMalformedContainer = errors.New("malformed container")
	ErrDecryptionFailed   = errors.New("decryption failed")

	// Remote management service errors.
	ErrRemoteRejected = errors.New("remote service rejected request")
	ErrCommitFailed   = errors.New("file commit failed")

	// Object storage errors.
	ErrUploadFailed = errors.New("blob upload failed")

	// Polling errors.
	ErrTimeout = errors.New("timed out")
)
