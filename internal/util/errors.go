package util

import "errors"

var (
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrCorruptFile       = errors.New("corrupt document file")
	ErrNoExtractableText = errors.New("no extractable text found in document")

	ErrNotFound             = errors.New("not found")
	ErrRunInProgress        = errors.New("a run is already in progress for this document")
	ErrInsufficientTokens   = errors.New("insufficient tokens")
	ErrUnknownFormatVersion = errors.New("unknown document format version")

	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
	ErrContextTooLong = errors.New("context too long")
)
