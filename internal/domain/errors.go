package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrProviderDisabled   = errors.New("provider disabled")
	ErrProviderFailure    = errors.New("provider failure")
	ErrAllDownloadsFailed = errors.New("all output downloads failed")
)
