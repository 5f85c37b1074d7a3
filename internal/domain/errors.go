package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrEvaluation       = errors.New("evaluation failed")
	ErrBaseImageMissing = errors.New("base image missing")
	ErrProviderFailure  = errors.New("provider failure")
	ErrInvalidActor     = errors.New("invalid actor")
)
