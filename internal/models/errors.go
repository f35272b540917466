package models

import (
	"errors"
)

var (
	ErrValidation = errors.New("validation error")

	ErrProviderDisabled = errors.New("batch provider is disabled")
	ErrEmptyHandle      = errors.New("remote service returned an empty handle")
	ErrNoOutput         = errors.New("batch job has no output file")
)
